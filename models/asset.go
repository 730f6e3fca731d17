package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Asset is the staged snapshot of one physical item fetched from the ITSM
// platform. Raw vendor/product/type strings stay as fetched; canonical values
// are derived per run from the mapping store and never written back here.
// Assignment state is owned by the ledger, not this table.
type Asset struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	ExternalId         int             `gorm:"uniqueIndex;not null" json:"external_id"`
	Name               string          `gorm:"size:255;not null" json:"name"`
	AssetTag           string          `gorm:"size:100" json:"asset_tag"`
	SerialNumber       string          `gorm:"size:100;index" json:"serial_number"`
	VendorRaw          string          `gorm:"size:255" json:"vendor_raw"`
	ProductRaw         string          `gorm:"size:255" json:"product_raw"`
	AssetTypeRaw       string          `gorm:"size:255" json:"asset_type_raw"`
	Cost               decimal.Decimal `gorm:"type:decimal(20,4)" json:"cost"`
	AcquiredAt         *time.Time      `json:"acquired_at"`
	WarrantyExpiresAt  *time.Time      `json:"warranty_expires_at"`
	LastLoggedUsername string          `gorm:"size:255" json:"last_logged_username"`
	RequesterName      string          `gorm:"size:255" json:"requester_name"`
	Location           string          `gorm:"size:255" json:"location"`
	EmployeeId         *int            `gorm:"index" json:"employee_id"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewAsset is the validated input built by the sync worker from one remote
// record, after flattening.
type NewAsset struct {
	ExternalId         int
	Name               string
	AssetTag           string
	SerialNumber       string
	VendorRaw          string
	ProductRaw         string
	AssetTypeRaw       string
	Cost               decimal.Decimal
	AcquiredAt         *time.Time
	WarrantyExpiresAt  *time.Time
	LastLoggedUsername string
	RequesterName      string
	Location           string
}

func (input NewAsset) Validate() error {
	if input.ExternalId <= 0 {
		return errors.New("asset external id is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return errors.New("asset name is required")
	}
	return nil
}

func (input NewAsset) fields() map[string]interface{} {
	return map[string]interface{}{
		"name":                 strings.TrimSpace(input.Name),
		"asset_tag":            input.AssetTag,
		"serial_number":        input.SerialNumber,
		"vendor_raw":           input.VendorRaw,
		"product_raw":          input.ProductRaw,
		"asset_type_raw":       input.AssetTypeRaw,
		"cost":                 input.Cost,
		"acquired_at":          input.AcquiredAt,
		"warranty_expires_at":  input.WarrantyExpiresAt,
		"last_logged_username": input.LastLoggedUsername,
		"requester_name":       input.RequesterName,
		"location":             input.Location,
	}
}

// UpsertAsset creates or refreshes the staged row keyed by the external id.
func UpsertAsset(ctx context.Context, input NewAsset) (created bool, err error) {
	if err := input.Validate(); err != nil {
		return false, err
	}
	db := config.GetDB()

	var existing Asset
	err = db.WithContext(ctx).Where("external_id = ?", input.ExternalId).First(&existing).Error
	if err == nil {
		return false, db.WithContext(ctx).Model(&Asset{}).
			Where("external_id = ?", input.ExternalId).
			Updates(input.fields()).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	asset := Asset{
		ExternalId:         input.ExternalId,
		Name:               strings.TrimSpace(input.Name),
		AssetTag:           input.AssetTag,
		SerialNumber:       input.SerialNumber,
		VendorRaw:          input.VendorRaw,
		ProductRaw:         input.ProductRaw,
		AssetTypeRaw:       input.AssetTypeRaw,
		Cost:               input.Cost,
		AcquiredAt:         input.AcquiredAt,
		WarrantyExpiresAt:  input.WarrantyExpiresAt,
		LastLoggedUsername: input.LastLoggedUsername,
		RequesterName:      input.RequesterName,
		Location:           input.Location,
	}
	if err := db.WithContext(ctx).Create(&asset).Error; err != nil {
		return false, err
	}
	return true, nil
}

// GetAssets returns the full staged population in a stable order.
func GetAssets(ctx context.Context) ([]Asset, error) {
	db := config.GetDB()
	var assets []Asset
	err := db.WithContext(ctx).Order("external_id ASC").Find(&assets).Error
	return assets, err
}

func GetAssetByExternalId(ctx context.Context, externalId int) (*Asset, error) {
	db := config.GetDB()
	var asset Asset
	err := db.WithContext(ctx).Where("external_id = ?", externalId).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// SetAssetEmployee records the headcount link; nil clears it.
func SetAssetEmployee(ctx context.Context, assetId int, employeeId *int) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&Asset{}).
		Where("id = ?", assetId).
		Update("employee_id", employeeId).Error
}
