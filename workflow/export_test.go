package workflow

import (
	"bytes"
	"encoding/csv"
	"testing"

	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func exportFixture(t *testing.T) (*WorkingSet, *matching.Ledger) {
	t.Helper()
	e := newTestEngine(t, nil)

	assets := []matching.AssetRecord{
		{ID: 1, Name: "Latitude 5520", Vendor: "Dell", Product: "latitude 5520", AssetType: "Laptop", SerialNumber: "SN-1", AcquiredAt: stagedDate(2025, 3, 10)},
		{ID: 2, Name: "Mystery Box", Vendor: matching.UnknownLabel, Product: matching.UnknownLabel, AssetType: matching.UnknownLabel},
	}
	purchases := []matching.PurchaseRecord{
		{ID: "PO-100", Vendor: "Dell", Product: "latitude 5520", Cost: decimal.NewFromInt(1100), Date: stagedDate(2025, 3, 1), Count: 2},
	}
	set := newTestSet(assets, purchases)
	e.Ledger().SetCapacities(set.Capacities)
	if err := e.Ledger().Assign(1, "PO-100", 1, "operator1", false); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	return set, e.Ledger()
}

func TestBuildExportRowsOneRowPerAsset(t *testing.T) {
	set, ledger := exportFixture(t)

	rows := BuildExportRows(set, ledger)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want one per asset", len(rows))
	}

	assigned := rows[0]
	if assigned.AssetId != 1 || assigned.PurchaseId != "PO-100" || assigned.AssignmentStatus != "assigned" {
		t.Fatalf("assigned row = %+v", assigned)
	}
	if !assigned.Cost.Equal(decimal.NewFromInt(1100)) || assigned.AcquisitionDate == nil {
		t.Fatalf("assigned row missing purchase columns: %+v", assigned)
	}
	if assigned.AssignedBy != "operator1" {
		t.Fatalf("AssignedBy = %q", assigned.AssignedBy)
	}

	unassigned := rows[1]
	if unassigned.AssetId != 2 || unassigned.PurchaseId != "" || unassigned.AssignmentStatus != "unassigned" {
		t.Fatalf("unassigned row = %+v", unassigned)
	}
	if unassigned.CanonicalVendor != matching.UnknownLabel {
		t.Fatalf("unassigned vendor = %q, want %s", unassigned.CanonicalVendor, matching.UnknownLabel)
	}
}

func TestWriteExportCSVShape(t *testing.T) {
	set, ledger := exportFixture(t)
	rows := BuildExportRows(set, ledger)

	var buf bytes.Buffer
	if err := WriteExportCSV(&buf, rows); err != nil {
		t.Fatalf("WriteExportCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d csv rows, want header + 2", len(records))
	}
	if records[0][0] != "asset_id" || records[0][6] != "purchase_id" || records[0][9] != "assignment_status" {
		t.Fatalf("header = %v", records[0])
	}
	if records[1][6] != "PO-100" || records[1][8] != "2025-03-01" || records[1][9] != "assigned" {
		t.Fatalf("assigned row = %v", records[1])
	}
	if records[2][6] != "" || records[2][9] != "unassigned" {
		t.Fatalf("unassigned row = %v", records[2])
	}
}

func TestWriteExportXLSXRoundTrip(t *testing.T) {
	set, ledger := exportFixture(t)
	rows := BuildExportRows(set, ledger)

	var buf bytes.Buffer
	if err := WriteExportXLSX(&buf, rows); err != nil {
		t.Fatalf("WriteExportXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	header, err := f.GetCellValue("Sheet1", "A1")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if header != "asset_id" {
		t.Fatalf("A1 = %q, want asset_id", header)
	}
	name, err := f.GetCellValue("Sheet1", "B2")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if name != "Latitude 5520" {
		t.Fatalf("B2 = %q, want Latitude 5520", name)
	}
	status, err := f.GetCellValue("Sheet1", "J3")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if status != "unassigned" {
		t.Fatalf("J3 = %q, want unassigned", status)
	}
}
