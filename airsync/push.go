package airsync

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/workflow"
	"github.com/sirupsen/logrus"
)

// PushModules selects which finalized tables get pushed back to Airtable.
type PushModules struct {
	Assets      bool `json:"assets"`
	Purchases   bool `json:"purchases"`
	Vendors     bool `json:"vendors"`
	Products    bool `json:"products"`
	AssetTypes  bool `json:"assetTypes"`
	Employees   bool `json:"employees"`
	Departments bool `json:"departments"`
}

func DefaultPushModules() PushModules {
	return PushModules{
		Assets:      true,
		Purchases:   true,
		Vendors:     true,
		Products:    true,
		AssetTypes:  true,
		Employees:   true,
		Departments: true,
	}
}

func isEmptyPushModules(mod PushModules) bool {
	return !mod.Assets && !mod.Purchases && !mod.Vendors && !mod.Products &&
		!mod.AssetTypes && !mod.Employees && !mod.Departments
}

type pusher struct {
	client *airClient
	baseId string
	runId  uint
}

// PushFinalized upserts the reconciled tables into Airtable: the merged
// asset report, the staged purchases, the canonical label sets and the
// headcount tables. Each record is isolated; one failure never stops the
// rest of a table.
func PushFinalized(ctx context.Context, engine *workflow.Engine, session *workflow.Session, modules PushModules, triggeredBy string) (*models.SyncRun, error) {
	client, err := newAirClient()
	if err != nil {
		return nil, err
	}
	return runPush(ctx, client, engine, session, modules, triggeredBy)
}

func runPush(ctx context.Context, client *airClient, engine *workflow.Engine, session *workflow.Session, modules PushModules, triggeredBy string) (*models.SyncRun, error) {
	baseId := strings.TrimSpace(os.Getenv("AIRTABLE_BASE_ID"))
	if baseId == "" {
		return nil, errors.New("airtable base id is empty")
	}
	logger := config.GetLogger()

	run, err := models.StartSyncRun(ctx, models.SyncProviderAirtablePush, triggeredBy)
	if err != nil {
		return nil, err
	}

	p := &pusher{client: client, baseId: baseId, runId: run.ID}
	synced := 0
	errCount := 0
	var firstErr error

	if modules.Assets {
		rows, err := session.ExportRows(ctx)
		if err != nil {
			errCount++
			if firstErr == nil {
				firstErr = err
			}
			_ = models.RecordSyncError(ctx, run.ID, models.SyncProviderAirtablePush, "asset", "", nil, err)
			config.LogError(logger, moduleName, "PushFinalized", "load export rows", nil, err)
		} else {
			count, errs := p.pushAssets(ctx, rows)
			synced += count
			errCount += errs
		}
	}

	if modules.Purchases {
		purchases, err := models.GetPurchases(ctx)
		if err != nil {
			errCount++
			if firstErr == nil {
				firstErr = err
			}
			_ = models.RecordSyncError(ctx, run.ID, models.SyncProviderAirtablePush, "purchase", "", nil, err)
			config.LogError(logger, moduleName, "PushFinalized", "load purchases", nil, err)
		} else {
			count, errs := p.pushPurchases(ctx, purchases)
			synced += count
			errCount += errs
		}
	}

	store := engine.Canonicalizer().Store()
	if modules.Vendors {
		count, errs := p.pushLabels(ctx, store, matching.DomainVendor, "vendor", "AIRTABLE_VENDORS_TABLE", "vendors")
		synced += count
		errCount += errs
	}
	if modules.Products {
		count, errs := p.pushLabels(ctx, store, matching.DomainProduct, "product", "AIRTABLE_PRODUCTS_TABLE", "products")
		synced += count
		errCount += errs
	}
	if modules.AssetTypes {
		count, errs := p.pushLabels(ctx, store, matching.DomainAssetType, "asset_type", "AIRTABLE_ASSET_TYPES_TABLE", "asset_types")
		synced += count
		errCount += errs
	}

	if modules.Employees {
		employees, err := models.GetActiveEmployees(ctx)
		if err != nil {
			errCount++
			if firstErr == nil {
				firstErr = err
			}
			_ = models.RecordSyncError(ctx, run.ID, models.SyncProviderAirtablePush, "employee", "", nil, err)
			config.LogError(logger, moduleName, "PushFinalized", "load employees", nil, err)
		} else {
			count, errs := p.pushEmployees(ctx, employees)
			synced += count
			errCount += errs
		}
	}

	if modules.Departments {
		departments, err := models.GetDepartments(ctx)
		if err != nil {
			errCount++
			if firstErr == nil {
				firstErr = err
			}
			_ = models.RecordSyncError(ctx, run.ID, models.SyncProviderAirtablePush, "department", "", nil, err)
			config.LogError(logger, moduleName, "PushFinalized", "load departments", nil, err)
		} else {
			count, errs := p.pushDepartments(ctx, departments)
			synced += count
			errCount += errs
		}
	}

	if err := run.Finish(ctx, synced, errCount); err != nil {
		config.LogError(logger, moduleName, "PushFinalized", "finish sync run", run.ID, err)
	}

	logger.WithFields(logrus.Fields{
		"provider": models.SyncProviderAirtablePush,
		"synced":   synced,
		"errors":   errCount,
		"status":   run.Status,
	}).Info("airtable push finished")

	return run, firstErr
}

// upsertByKey writes one record keyed by keyField. The entity mapping table
// short-circuits the formula lookup on repeat pushes; a stale cached record
// id falls back to the lookup path.
func (p *pusher) upsertByKey(ctx context.Context, tableId string, entityType string, keyField string, keyValue string, fields map[string]interface{}) error {
	mapping, err := models.FindEntityMapping(ctx, models.SyncProviderAirtable, entityType, keyValue)
	if err != nil {
		return err
	}
	if mapping != nil {
		if err := p.client.updateRecord(ctx, p.baseId, tableId, mapping.RemoteId, fields); err == nil {
			return models.SaveEntityMapping(ctx, models.SyncProviderAirtable, entityType, keyValue, mapping.RemoteId)
		}
	}

	existing, err := p.client.findByKey(ctx, p.baseId, tableId, keyField, keyValue)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := p.client.updateRecord(ctx, p.baseId, tableId, existing.ID, fields); err != nil {
			return err
		}
		return models.SaveEntityMapping(ctx, models.SyncProviderAirtable, entityType, keyValue, existing.ID)
	}

	recordId, err := p.client.createRecord(ctx, p.baseId, tableId, fields)
	if err != nil {
		return err
	}
	return models.SaveEntityMapping(ctx, models.SyncProviderAirtable, entityType, keyValue, recordId)
}

func (p *pusher) recordPushResult(ctx context.Context, entityType string, externalId string, err error) bool {
	if err != nil {
		config.MetricSyncErrors.WithLabelValues(models.SyncProviderAirtablePush, entityType).Inc()
		_ = models.RecordSyncError(ctx, p.runId, models.SyncProviderAirtablePush, entityType, externalId, nil, err)
		return false
	}
	config.MetricSyncRecords.WithLabelValues(models.SyncProviderAirtablePush, entityType).Inc()
	return true
}

func (p *pusher) pushAssets(ctx context.Context, rows []workflow.ExportRow) (int, int) {
	tableId := tableFromEnv("AIRTABLE_ASSETS_TABLE", "assets")
	synced := 0
	errCount := 0
	for _, row := range rows {
		assetId := strconv.Itoa(row.AssetId)
		fields := map[string]interface{}{
			"asset_id":          assetId,
			"name":              row.AssetName,
			"vendor":            row.CanonicalVendor,
			"product":           row.CanonicalProduct,
			"asset_type":        row.CanonicalAssetType,
			"assignment_status": row.AssignmentStatus,
		}
		if row.SerialNumber != "" {
			fields["serial_number"] = row.SerialNumber
		}
		if row.PurchaseId != "" {
			fields["purchase_id"] = row.PurchaseId
			fields["assigned_by"] = row.AssignedBy
			cost, _ := row.Cost.Float64()
			fields["cost"] = cost
			if row.AcquisitionDate != nil {
				fields["acquisition_date"] = row.AcquisitionDate.Format("2006-01-02")
			}
		}
		if p.recordPushResult(ctx, "asset", assetId, p.upsertByKey(ctx, tableId, "asset", "asset_id", assetId, fields)) {
			synced++
		} else {
			errCount++
		}
	}
	return synced, errCount
}

func (p *pusher) pushPurchases(ctx context.Context, purchases []models.Purchase) (int, int) {
	tableId := tableFromEnv("AIRTABLE_PURCHASES_TABLE", "purchases")
	synced := 0
	errCount := 0
	for _, purchase := range purchases {
		fields := map[string]interface{}{
			"purchase_id": purchase.PurchaseId,
			"count":       purchase.Count,
		}
		if purchase.Reference != "" {
			fields["reference"] = purchase.Reference
		}
		if purchase.VendorRaw != "" {
			fields["vendor"] = purchase.VendorRaw
		}
		if purchase.Item != "" {
			fields["item"] = purchase.Item
		}
		if purchase.Description != "" {
			fields["description"] = purchase.Description
		}
		if purchase.Note != "" {
			fields["note"] = purchase.Note
		}
		if !purchase.Cost.IsZero() {
			cost, _ := purchase.Cost.Float64()
			fields["cost"] = cost
		}
		if purchase.Date != nil {
			fields["date"] = purchase.Date.Format("2006-01-02")
		}
		if p.recordPushResult(ctx, "purchase", purchase.PurchaseId, p.upsertByKey(ctx, tableId, "purchase", "purchase_id", purchase.PurchaseId, fields)) {
			synced++
		} else {
			errCount++
		}
	}
	return synced, errCount
}

func (p *pusher) pushLabels(ctx context.Context, store *matching.MappingStore, domain matching.Domain, entityType string, tableEnv string, fallbackTable string) (int, int) {
	tableId := tableFromEnv(tableEnv, fallbackTable)
	synced := 0
	errCount := 0
	for _, label := range store.Labels(domain) {
		fields := map[string]interface{}{"name": label}
		if p.recordPushResult(ctx, entityType, label, p.upsertByKey(ctx, tableId, entityType, "name", label, fields)) {
			synced++
		} else {
			errCount++
		}
	}
	return synced, errCount
}

func (p *pusher) pushEmployees(ctx context.Context, employees []models.Employee) (int, int) {
	tableId := tableFromEnv("AIRTABLE_EMPLOYEES_TABLE", "employees")
	synced := 0
	errCount := 0
	for _, emp := range employees {
		fields := map[string]interface{}{
			"employee_id": emp.ExternalId,
			"first_name":  emp.FirstName,
			"last_name":   emp.LastName,
		}
		if emp.Email != "" {
			fields["masterworks_email"] = emp.Email
		}
		if emp.Title != "" {
			fields["title"] = emp.Title
		}
		if emp.EmployeeType != "" {
			fields["employee_type"] = emp.EmployeeType
		}
		if emp.Status != "" {
			fields["status"] = string(emp.Status)
		}
		if emp.DepartmentName != "" {
			fields["department"] = emp.DepartmentName
		}
		if emp.PositionStartDate != nil {
			fields["position_start_date"] = emp.PositionStartDate.Format("2006-01-02")
		}
		if emp.TerminationDate != nil {
			fields["termination_date"] = emp.TerminationDate.Format("2006-01-02")
		}
		if p.recordPushResult(ctx, "employee", emp.ExternalId, p.upsertByKey(ctx, tableId, "employee", "employee_id", emp.ExternalId, fields)) {
			synced++
		} else {
			errCount++
		}
	}
	return synced, errCount
}

func (p *pusher) pushDepartments(ctx context.Context, departments []models.Department) (int, int) {
	tableId := tableFromEnv("AIRTABLE_DEPARTMENTS_TABLE", "departments")
	synced := 0
	errCount := 0
	for _, dept := range departments {
		key := dept.ExternalId
		if key == "" {
			key = strconv.Itoa(dept.ID)
		}
		fields := map[string]interface{}{
			"department_id": key,
			"name":          dept.Name,
		}
		if p.recordPushResult(ctx, "department", key, p.upsertByKey(ctx, tableId, "department", "department_id", key, fields)) {
			synced++
		} else {
			errCount++
		}
	}
	return synced, errCount
}
