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

// Purchase is one purchase-order line item staged from the spreadsheet store.
// Count > 1 means the line covers several units; consumption is tracked by
// the assignment ledger, never on this row.
type Purchase struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PurchaseId    string          `gorm:"size:64;uniqueIndex;not null" json:"purchase_id"`
	Reference     string          `gorm:"size:100" json:"reference"`
	VendorRaw     string          `gorm:"size:255" json:"vendor_raw"`
	Item          string          `gorm:"size:255" json:"item"`
	Description   string          `gorm:"type:text" json:"description"`
	Note          string          `gorm:"type:text" json:"note"`
	Cost          decimal.Decimal `gorm:"type:decimal(20,4)" json:"cost"`
	Date          *time.Time      `json:"date"`
	Count         int             `gorm:"not null;default:1" json:"count"`
	SerialNumbers string          `gorm:"type:text" json:"serial_numbers"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchase struct {
	PurchaseId    string
	Reference     string
	VendorRaw     string
	Item          string
	Description   string
	Note          string
	Cost          decimal.Decimal
	Date          *time.Time
	Count         int
	SerialNumbers string
}

func (input NewPurchase) Validate() error {
	if strings.TrimSpace(input.PurchaseId) == "" {
		return errors.New("purchase id is required")
	}
	if input.Count < 0 {
		return errors.New("purchase count cannot be negative")
	}
	return nil
}

// UpsertPurchase creates or refreshes the staged row keyed by purchase id.
// A missing count defaults to one unit.
func UpsertPurchase(ctx context.Context, input NewPurchase) (created bool, err error) {
	if err := input.Validate(); err != nil {
		return false, err
	}
	count := input.Count
	if count == 0 {
		count = 1
	}
	db := config.GetDB()

	purchaseId := strings.TrimSpace(input.PurchaseId)
	fields := map[string]interface{}{
		"reference":      input.Reference,
		"vendor_raw":     input.VendorRaw,
		"item":           input.Item,
		"description":    input.Description,
		"note":           input.Note,
		"cost":           input.Cost,
		"date":           input.Date,
		"count":          count,
		"serial_numbers": input.SerialNumbers,
	}

	var existing Purchase
	err = db.WithContext(ctx).Where("purchase_id = ?", purchaseId).First(&existing).Error
	if err == nil {
		return false, db.WithContext(ctx).Model(&Purchase{}).
			Where("purchase_id = ?", purchaseId).
			Updates(fields).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	purchase := Purchase{
		PurchaseId:    purchaseId,
		Reference:     input.Reference,
		VendorRaw:     input.VendorRaw,
		Item:          input.Item,
		Description:   input.Description,
		Note:          input.Note,
		Cost:          input.Cost,
		Date:          input.Date,
		Count:         count,
		SerialNumbers: input.SerialNumbers,
	}
	if err := db.WithContext(ctx).Create(&purchase).Error; err != nil {
		return false, err
	}
	return true, nil
}

// GetPurchases returns the staged purchase pool in a stable order.
func GetPurchases(ctx context.Context) ([]Purchase, error) {
	db := config.GetDB()
	var purchases []Purchase
	err := db.WithContext(ctx).Order("purchase_id ASC").Find(&purchases).Error
	return purchases, err
}

func GetPurchaseByPurchaseId(ctx context.Context, purchaseId string) (*Purchase, error) {
	db := config.GetDB()
	var purchase Purchase
	err := db.WithContext(ctx).Where("purchase_id = ?", purchaseId).First(&purchase).Error
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}
