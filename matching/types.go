package matching

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Domain partitions the canonical mapping space.
type Domain string

const (
	DomainVendor    Domain = "vendor"
	DomainProduct   Domain = "product"
	DomainAssetType Domain = "asset_type"
)

// UnknownLabel is the canonical value for empty/missing raw strings.
const UnknownLabel = "UNKNOWN"

// AssetRecord is the working view of one asset inside the engine. Vendor,
// Product and AssetType hold canonical labels once the pipeline has
// normalized the staged row.
type AssetRecord struct {
	ID           int
	Name         string
	Vendor       string
	Product      string
	AssetType    string
	SerialNumber string
	Cost         decimal.Decimal
	AcquiredAt   *time.Time
}

// PurchaseRecord is the working view of one purchase line. Count is the
// total number of units the line covers; consumption lives in the ledger.
type PurchaseRecord struct {
	ID          string
	Vendor      string
	Product     string
	Description string
	Cost        decimal.Decimal
	Date        *time.Time
	Count       int
}

type Tier string

const (
	TierExact      Tier = "exact"
	TierFuzzy      Tier = "fuzzy"
	TierVendorOnly Tier = "vendor_only"
)

// Candidate is one proposed purchase for an asset. Remaining is the slot
// count at evaluation time, carried for display only.
type Candidate struct {
	Purchase     PurchaseRecord
	Tier         Tier
	Score        int
	DateDiffDays int
	Remaining    int
}

// Normalize prepares a raw string for mapping lookup: trim plus case-fold.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
