package airsync

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const moduleName = "airsync"

// PullModules selects which tables a staging pull covers.
type PullModules struct {
	Purchases bool `json:"purchases"`
	Employees bool `json:"employees"`
}

func DefaultPullModules() PullModules {
	return PullModules{Purchases: true, Employees: true}
}

// SyncStaging pulls purchase and headcount rows from Airtable into the
// staging tables. Records that fail validation are skipped and recorded;
// the run row finishes either way.
func SyncStaging(ctx context.Context, modules PullModules, triggeredBy string) (*models.SyncRun, error) {
	client, err := newAirClient()
	if err != nil {
		return nil, err
	}
	return runStagingSync(ctx, client, modules, triggeredBy)
}

func runStagingSync(ctx context.Context, client *airClient, modules PullModules, triggeredBy string) (*models.SyncRun, error) {
	logger := config.GetLogger()

	run, err := models.StartSyncRun(ctx, models.SyncProviderAirtable, triggeredBy)
	if err != nil {
		return nil, err
	}

	synced := 0
	errCount := 0
	var firstErr error

	if modules.Purchases {
		count, errs, err := stagePurchases(ctx, client, run.ID)
		synced += count
		errCount += errs
		if err != nil {
			errCount++
			firstErr = err
			_ = models.RecordSyncError(ctx, run.ID, models.SyncProviderAirtable, "purchase", "", nil, err)
			config.LogError(logger, moduleName, "SyncStaging", "purchase pull failed", nil, err)
		}
	}

	if modules.Employees {
		count, errs, err := stageEmployees(ctx, client, run.ID)
		synced += count
		errCount += errs
		if err != nil {
			errCount++
			if firstErr == nil {
				firstErr = err
			}
			_ = models.RecordSyncError(ctx, run.ID, models.SyncProviderAirtable, "employee", "", nil, err)
			config.LogError(logger, moduleName, "SyncStaging", "employee pull failed", nil, err)
		}
	}

	if err := run.Finish(ctx, synced, errCount); err != nil {
		config.LogError(logger, moduleName, "SyncStaging", "finish sync run", run.ID, err)
	}

	logger.WithFields(logrus.Fields{
		"provider": models.SyncProviderAirtable,
		"synced":   synced,
		"errors":   errCount,
		"status":   run.Status,
	}).Info("airtable staging sync finished")

	return run, firstErr
}

func stagePurchases(ctx context.Context, client *airClient, runId uint) (int, int, error) {
	baseId := strings.TrimSpace(os.Getenv("AIRTABLE_BASE_ID"))
	if baseId == "" {
		return 0, 0, errors.New("airtable base id is empty")
	}
	tableId := tableFromEnv("AIRTABLE_NETSUITE_TABLE", "netsuite")

	records, err := client.listAll(ctx, baseId, tableId, nil)
	if err != nil {
		return 0, 0, err
	}

	synced := 0
	errCount := 0
	for _, rec := range records {
		input := buildPurchaseInput(rec)
		if _, err := models.UpsertPurchase(ctx, input); err != nil {
			errCount++
			config.MetricSyncErrors.WithLabelValues(models.SyncProviderAirtable, "purchase").Inc()
			payload, _ := json.Marshal(rec.Fields)
			_ = models.RecordSyncError(ctx, runId, models.SyncProviderAirtable, "purchase", rec.ID, payload, err)
			continue
		}
		synced++
		config.MetricSyncRecords.WithLabelValues(models.SyncProviderAirtable, "purchase").Inc()
	}
	return synced, errCount, nil
}

func stageEmployees(ctx context.Context, client *airClient, runId uint) (int, int, error) {
	baseId := strings.TrimSpace(os.Getenv("AIRTABLE_HEADCOUNT_BASE_ID"))
	if baseId == "" {
		baseId = strings.TrimSpace(os.Getenv("AIRTABLE_BASE_ID"))
	}
	if baseId == "" {
		return 0, 0, errors.New("airtable base id is empty")
	}
	tableId := tableFromEnv("AIRTABLE_HEADCOUNT_TABLE", "headcount")

	records, err := client.listAll(ctx, baseId, tableId, nil)
	if err != nil {
		return 0, 0, err
	}

	synced := 0
	errCount := 0
	seenDepartments := map[string]bool{}
	for _, rec := range records {
		input := buildEmployeeInput(rec)
		if _, err := models.UpsertEmployee(ctx, input); err != nil {
			errCount++
			config.MetricSyncErrors.WithLabelValues(models.SyncProviderAirtable, "employee").Inc()
			payload, _ := json.Marshal(rec.Fields)
			_ = models.RecordSyncError(ctx, runId, models.SyncProviderAirtable, "employee", rec.ID, payload, err)
			continue
		}
		synced++
		config.MetricSyncRecords.WithLabelValues(models.SyncProviderAirtable, "employee").Inc()

		// Headcount rows name departments in free text; stage each one so
		// the employee-department link has a row to point at.
		deptName := strings.TrimSpace(input.DepartmentName)
		if deptName != "" && !seenDepartments[deptName] {
			seenDepartments[deptName] = true
			if _, err := models.UpsertDepartment(ctx, "", deptName); err != nil {
				_ = models.RecordSyncError(ctx, runId, models.SyncProviderAirtable, "department", deptName, nil, err)
			}
		}
	}
	return synced, errCount, nil
}

func buildPurchaseInput(rec airRecord) models.NewPurchase {
	fields := normalizeFields(rec.Fields)

	purchaseId := airString(fields, "purchase_id")
	if purchaseId == "" {
		// Rows never pushed back carry no purchase_id; the Airtable record
		// id is the stable fallback key.
		purchaseId = rec.ID
	}

	vendor := airString(fields, "vendor")
	if vendor == "" {
		vendor = airString(fields, "vendor_name")
	}
	item := airString(fields, "item")
	if item == "" {
		item = airString(fields, "product_name")
	}

	return models.NewPurchase{
		PurchaseId:    purchaseId,
		Reference:     airString(fields, "reference"),
		VendorRaw:     vendor,
		Item:          item,
		Description:   airString(fields, "description"),
		Note:          airString(fields, "note"),
		Cost:          airDecimal(fields, "cost"),
		Date:          airDate(fields, "date"),
		Count:         airInt(fields, "count"),
		SerialNumbers: airString(fields, "serial_numbers"),
	}
}

func buildEmployeeInput(rec airRecord) models.NewEmployee {
	fields := normalizeFields(rec.Fields)

	externalId := airString(fields, "employee_id")
	if externalId == "" {
		externalId = rec.ID
	}

	return models.NewEmployee{
		ExternalId:        externalId,
		FirstName:         airString(fields, "first_name"),
		LastName:          airString(fields, "last_name"),
		Email:             airString(fields, "masterworks_email"),
		Title:             airString(fields, "title"),
		EmployeeType:      airString(fields, "employee_type"),
		Status:            models.EmployeeStatus(airString(fields, "status")),
		DepartmentName:    airString(fields, "department"),
		PositionStartDate: airDate(fields, "position_start_date"),
		TerminationDate:   airDate(fields, "termination_date"),
	}
}

func tableFromEnv(name string, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

// normalizeFields lowercases field names and converts spaces and hyphens to
// underscores so Airtable column labels line up with the staging columns.
func normalizeFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	out := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		out[strings.ToLower(replacer.Replace(key))] = value
	}
	return out
}

func airString(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	// Lookup and multi-select fields arrive as arrays; take the first value.
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		var first string
		if err := json.Unmarshal(list[0], &first); err == nil {
			return strings.TrimSpace(first)
		}
	}
	return ""
}

func airDecimal(fields map[string]json.RawMessage, key string) decimal.Decimal {
	raw, ok := fields[key]
	if !ok {
		return decimal.Zero
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if d, err := decimal.NewFromString(num.String()); err == nil {
			return d
		}
		return decimal.Zero
	}
	if s := airString(fields, key); s != "" {
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	}
	return decimal.Zero
}

func airInt(fields map[string]json.RawMessage, key string) int {
	d := airDecimal(fields, key)
	if d.IsZero() {
		return 0
	}
	return int(d.IntPart())
}

func airDate(fields map[string]json.RawMessage, key string) *time.Time {
	s := airString(fields, key)
	if s == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return &t
		}
	}
	return nil
}
