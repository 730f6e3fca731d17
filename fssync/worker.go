package fssync

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const moduleName = "fssync"

type fsAsset struct {
	DisplayId   int                        `json:"display_id"`
	Name        string                     `json:"name"`
	AssetTag    string                     `json:"asset_tag"`
	AssetTypeId int64                      `json:"asset_type_id"`
	UserId      *int64                     `json:"user_id"`
	TypeFields  map[string]json.RawMessage `json:"type_fields"`
}

type fsNamed struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type fsProduct struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
}

type fsRequester struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// fsLookups resolves the numeric ids asset rows carry for vendor, product,
// asset type and requester into display names.
type fsLookups struct {
	vendors    map[int64]string
	products   map[int64]fsProduct
	assetTypes map[int64]string
	requesters map[int64]string
}

// SyncAssets pulls the full asset inventory from Freshservice and refreshes
// the staged rows. Records that fail validation are skipped and recorded;
// the run row finishes either way.
func SyncAssets(ctx context.Context, triggeredBy string) (*models.SyncRun, error) {
	client, err := newFsClient()
	if err != nil {
		return nil, err
	}
	return runAssetSync(ctx, client, triggeredBy)
}

func runAssetSync(ctx context.Context, client *fsClient, triggeredBy string) (*models.SyncRun, error) {
	logger := config.GetLogger()

	run, err := models.StartSyncRun(ctx, models.SyncProviderFreshservice, triggeredBy)
	if err != nil {
		return nil, err
	}

	synced := 0
	errCount := 0
	var firstErr error

	deptCount, deptErrs, deptErr := stageDepartments(ctx, client, run.ID)
	synced += deptCount
	errCount += deptErrs
	if deptErr != nil {
		errCount++
		firstErr = deptErr
		_ = models.RecordSyncError(ctx, run.ID, models.SyncProviderFreshservice, "department", "", nil, deptErr)
		config.LogError(logger, moduleName, "SyncAssets", "department pull failed", nil, deptErr)
	}

	assetCount, assetErrs, assetErr := stageAssets(ctx, client, run.ID)
	synced += assetCount
	errCount += assetErrs
	if assetErr != nil {
		errCount++
		if firstErr == nil {
			firstErr = assetErr
		}
		_ = models.RecordSyncError(ctx, run.ID, models.SyncProviderFreshservice, "asset", "", nil, assetErr)
		config.LogError(logger, moduleName, "SyncAssets", "asset pull failed", nil, assetErr)
	}

	if err := run.Finish(ctx, synced, errCount); err != nil {
		config.LogError(logger, moduleName, "SyncAssets", "finish sync run", run.ID, err)
	}

	logger.WithFields(logrus.Fields{
		"provider":    models.SyncProviderFreshservice,
		"assets":      assetCount,
		"departments": deptCount,
		"errors":      errCount,
		"status":      run.Status,
	}).Info("freshservice sync finished")

	return run, firstErr
}

func stageDepartments(ctx context.Context, client *fsClient, runId uint) (int, int, error) {
	records, err := client.listAll(ctx, "/api/v2/departments", nil)
	if err != nil {
		return 0, 0, err
	}

	synced := 0
	errCount := 0
	for _, raw := range records {
		var dept fsNamed
		if err := json.Unmarshal(raw, &dept); err != nil {
			errCount++
			config.MetricSyncErrors.WithLabelValues(models.SyncProviderFreshservice, "department").Inc()
			_ = models.RecordSyncError(ctx, runId, models.SyncProviderFreshservice, "department", "", raw, err)
			continue
		}
		externalId := strconv.FormatInt(dept.ID, 10)
		if _, err := models.UpsertDepartment(ctx, externalId, dept.Name); err != nil {
			errCount++
			config.MetricSyncErrors.WithLabelValues(models.SyncProviderFreshservice, "department").Inc()
			_ = models.RecordSyncError(ctx, runId, models.SyncProviderFreshservice, "department", externalId, raw, err)
			continue
		}
		synced++
		config.MetricSyncRecords.WithLabelValues(models.SyncProviderFreshservice, "department").Inc()
	}
	return synced, errCount, nil
}

func stageAssets(ctx context.Context, client *fsClient, runId uint) (int, int, error) {
	lookups, err := fetchLookups(ctx, client)
	if err != nil {
		return 0, 0, err
	}

	params := url.Values{}
	params.Set("include", "type_fields")
	params.Set("order_by", "created_at")
	params.Set("order_type", "asc")
	records, err := client.listAll(ctx, "/api/v2/assets", params)
	if err != nil {
		return 0, 0, err
	}

	synced := 0
	errCount := 0
	for _, raw := range records {
		var remote fsAsset
		if err := json.Unmarshal(raw, &remote); err != nil {
			errCount++
			config.MetricSyncErrors.WithLabelValues(models.SyncProviderFreshservice, "asset").Inc()
			_ = models.RecordSyncError(ctx, runId, models.SyncProviderFreshservice, "asset", "", raw, err)
			continue
		}

		input := buildAssetInput(remote, lookups)
		if _, err := models.UpsertAsset(ctx, input); err != nil {
			errCount++
			config.MetricSyncErrors.WithLabelValues(models.SyncProviderFreshservice, "asset").Inc()
			_ = models.RecordSyncError(ctx, runId, models.SyncProviderFreshservice, "asset", strconv.Itoa(remote.DisplayId), raw, err)
			continue
		}
		synced++
		config.MetricSyncRecords.WithLabelValues(models.SyncProviderFreshservice, "asset").Inc()
	}
	return synced, errCount, nil
}

func fetchLookups(ctx context.Context, client *fsClient) (*fsLookups, error) {
	lookups := &fsLookups{
		vendors:    map[int64]string{},
		products:   map[int64]fsProduct{},
		assetTypes: map[int64]string{},
		requesters: map[int64]string{},
	}

	records, err := client.listAll(ctx, "/api/v2/vendors", nil)
	if err != nil {
		return nil, err
	}
	for _, raw := range records {
		var vendor fsNamed
		if err := json.Unmarshal(raw, &vendor); err == nil && vendor.ID != 0 {
			lookups.vendors[vendor.ID] = strings.TrimSpace(vendor.Name)
		}
	}

	records, err = client.listAll(ctx, "/api/v2/products", nil)
	if err != nil {
		return nil, err
	}
	for _, raw := range records {
		var product fsProduct
		if err := json.Unmarshal(raw, &product); err == nil && product.ID != 0 {
			product.Name = strings.TrimSpace(product.Name)
			product.Manufacturer = strings.TrimSpace(product.Manufacturer)
			lookups.products[product.ID] = product
		}
	}

	records, err = client.listAll(ctx, "/api/v2/asset_types", nil)
	if err != nil {
		return nil, err
	}
	for _, raw := range records {
		var assetType fsNamed
		if err := json.Unmarshal(raw, &assetType); err == nil && assetType.ID != 0 {
			lookups.assetTypes[assetType.ID] = strings.TrimSpace(assetType.Name)
		}
	}

	records, err = client.listAll(ctx, "/api/v2/requesters", nil)
	if err != nil {
		return nil, err
	}
	for _, raw := range records {
		var requester fsRequester
		if err := json.Unmarshal(raw, &requester); err == nil && requester.ID != 0 {
			lookups.requesters[requester.ID] = strings.TrimSpace(requester.FirstName + " " + requester.LastName)
		}
	}

	return lookups, nil
}

var typeFieldSuffix = regexp.MustCompile(`_\d+$`)

// flattenTypeFields strips the per-type numeric suffix Freshservice appends
// to every custom field key (serial_number_23000123456 -> serial_number).
func flattenTypeFields(fields map[string]json.RawMessage) map[string]json.RawMessage {
	flat := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		flat[typeFieldSuffix.ReplaceAllString(key, "")] = value
	}
	return flat
}

func buildAssetInput(remote fsAsset, lookups *fsLookups) models.NewAsset {
	fields := flattenTypeFields(remote.TypeFields)

	vendorRaw := lookups.vendors[idField(fields, "vendor")]
	productRaw := ""
	if product, ok := lookups.products[idField(fields, "product")]; ok {
		productRaw = product.Name
		// The manufacturer stands in when the asset row carries no vendor.
		if vendorRaw == "" {
			vendorRaw = product.Manufacturer
		}
	}

	requesterName := ""
	if remote.UserId != nil {
		requesterName = lookups.requesters[*remote.UserId]
	}

	return models.NewAsset{
		ExternalId:         remote.DisplayId,
		Name:               strings.TrimSpace(remote.Name),
		AssetTag:           strings.TrimSpace(remote.AssetTag),
		SerialNumber:       stringField(fields, "serial_number"),
		VendorRaw:          vendorRaw,
		ProductRaw:         productRaw,
		AssetTypeRaw:       lookups.assetTypes[remote.AssetTypeId],
		Cost:               decimalField(fields, "cost"),
		AcquiredAt:         dateField(fields, "acquisition_date"),
		WarrantyExpiresAt:  dateField(fields, "warranty_expiry_date"),
		LastLoggedUsername: stringField(fields, "last_logged_username"),
		RequesterName:      requesterName,
		Location:           stringField(fields, "location"),
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

func idField(fields map[string]json.RawMessage, key string) int64 {
	raw, ok := fields[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decimalField(fields map[string]json.RawMessage, key string) decimal.Decimal {
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
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return d
		}
	}
	return decimal.Zero
}

func dateField(fields map[string]json.RawMessage, key string) *time.Time {
	s := stringField(fields, key)
	if s == "" {
		return nil
	}
	return parseRemoteDate(s)
}

// parseRemoteDate accepts the ISO timestamps Freshservice emits and falls
// back to the date portion alone.
func parseRemoteDate(value string) *time.Time {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	if len(value) >= 10 {
		if t, err := time.Parse("2006-01-02", value[:10]); err == nil {
			return &t
		}
	}
	return nil
}
