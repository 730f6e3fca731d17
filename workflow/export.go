package workflow

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExportRow is one line of the reconciliation report: the asset joined with
// its assignment and the assigned purchase. Unassigned assets keep empty
// purchase columns; every staged asset appears exactly once.
type ExportRow struct {
	AssetId            int
	AssetName          string
	SerialNumber       string
	CanonicalVendor    string
	CanonicalProduct   string
	CanonicalAssetType string
	PurchaseId         string
	Cost               decimal.Decimal
	AcquisitionDate    *time.Time
	AssignmentStatus   string
	AssignedBy         string
}

var exportHeader = []string{
	"asset_id", "asset_name", "serial_number",
	"canonical_vendor", "canonical_product", "canonical_asset_type",
	"purchase_id", "cost", "acquisition_date",
	"assignment_status", "assigned_by",
}

// BuildExportRows joins the working set with the ledger, preserving the
// working set's asset order.
func BuildExportRows(set *WorkingSet, ledger *matching.Ledger) []ExportRow {
	rows := make([]ExportRow, 0, len(set.Assets))
	for _, asset := range set.Assets {
		row := ExportRow{
			AssetId:            asset.ID,
			AssetName:          asset.Name,
			SerialNumber:       asset.SerialNumber,
			CanonicalVendor:    asset.Vendor,
			CanonicalProduct:   asset.Product,
			CanonicalAssetType: asset.AssetType,
			AssignmentStatus:   "unassigned",
		}
		if entry, ok := ledger.Get(asset.ID); ok {
			row.PurchaseId = entry.PurchaseId
			row.AssignmentStatus = "assigned"
			row.AssignedBy = entry.AssignedBy
			if purchase, ok := set.Purchase(entry.PurchaseId); ok {
				row.Cost = purchase.Cost
				row.AcquisitionDate = purchase.Date
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (r ExportRow) cells() []interface{} {
	cost := ""
	acquired := ""
	if r.AssignmentStatus == "assigned" {
		cost = r.Cost.String()
		if r.AcquisitionDate != nil {
			acquired = r.AcquisitionDate.Format("2006-01-02")
		}
	}
	return []interface{}{
		r.AssetId, r.AssetName, r.SerialNumber,
		r.CanonicalVendor, r.CanonicalProduct, r.CanonicalAssetType,
		r.PurchaseId, cost, acquired,
		r.AssignmentStatus, r.AssignedBy,
	}
}

// WriteExportXLSX writes the report workbook to w.
func WriteExportXLSX(w io.Writer, rows []ExportRow) error {
	f := excelize.NewFile()
	sheet := "Sheet1"

	col := 'A'
	for _, h := range exportHeader {
		f.SetCellValue(sheet, string(col)+"1", h)
		col++
	}
	for i, row := range rows {
		col := 'A'
		for _, value := range row.cells() {
			f.SetCellValue(sheet, string(col)+fmt.Sprint(i+2), value)
			col++
		}
	}

	return f.Write(w)
}

// WriteExportCSV writes the same report as plain CSV.
func WriteExportCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, 0, len(exportHeader))
		for _, cell := range row.cells() {
			record = append(record, fmt.Sprint(cell))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
