package airsync

import (
	"encoding/json"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"github.com/shopspring/decimal"
)

func TestNormalizeFieldsFoldsColumnLabels(t *testing.T) {
	fields := map[string]json.RawMessage{
		"Vendor Name":       json.RawMessage(`"Dell"`),
		"masterworks-email": json.RawMessage(`"a@b.org"`),
		"cost":              json.RawMessage(`100`),
	}

	out := normalizeFields(fields)
	if string(out["vendor_name"]) != `"Dell"` {
		t.Errorf("expected vendor_name key, got %v", out)
	}
	if string(out["masterworks_email"]) != `"a@b.org"` {
		t.Errorf("expected masterworks_email key, got %v", out)
	}
	if string(out["cost"]) != "100" {
		t.Errorf("expected cost key untouched, got %v", out)
	}
}

func TestAirStringReadsMixedValueTypes(t *testing.T) {
	fields := map[string]json.RawMessage{
		"padded": json.RawMessage(`"  Dell Inc  "`),
		"number": json.RawMessage(`42`),
		"lookup": json.RawMessage(`["Engineering", "Design"]`),
		"object": json.RawMessage(`{"a": 1}`),
	}

	if got := airString(fields, "padded"); got != "Dell Inc" {
		t.Errorf("expected trimmed string, got %q", got)
	}
	if got := airString(fields, "number"); got != "42" {
		t.Errorf("expected numeric string, got %q", got)
	}
	if got := airString(fields, "lookup"); got != "Engineering" {
		t.Errorf("expected first array element, got %q", got)
	}
	if got := airString(fields, "object"); got != "" {
		t.Errorf("expected empty for object value, got %q", got)
	}
	if got := airString(fields, "missing"); got != "" {
		t.Errorf("expected empty for missing key, got %q", got)
	}
}

func TestAirDecimalReadsNumbersAndStrings(t *testing.T) {
	fields := map[string]json.RawMessage{
		"number": json.RawMessage(`1999.99`),
		"string": json.RawMessage(`"1249.50"`),
		"text":   json.RawMessage(`"n/a"`),
	}

	if got := airDecimal(fields, "number"); !got.Equal(decimal.NewFromFloat(1999.99)) {
		t.Errorf("expected 1999.99, got %s", got)
	}
	if got := airDecimal(fields, "string"); !got.Equal(decimal.NewFromFloat(1249.50)) {
		t.Errorf("expected 1249.50, got %s", got)
	}
	if got := airDecimal(fields, "text"); !got.IsZero() {
		t.Errorf("expected zero for unparsable value, got %s", got)
	}
	if got := airDecimal(fields, "missing"); !got.IsZero() {
		t.Errorf("expected zero for missing key, got %s", got)
	}
}

func TestAirIntTruncatesDecimal(t *testing.T) {
	fields := map[string]json.RawMessage{
		"count":    json.RawMessage(`3`),
		"fraction": json.RawMessage(`2.9`),
	}

	if got := airInt(fields, "count"); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := airInt(fields, "fraction"); got != 2 {
		t.Errorf("expected truncation to 2, got %d", got)
	}
	if got := airInt(fields, "missing"); got != 0 {
		t.Errorf("expected 0 for missing key, got %d", got)
	}
}

func TestAirDateFormats(t *testing.T) {
	fields := map[string]json.RawMessage{
		"plain":   json.RawMessage(`"2024-03-15"`),
		"rfc":     json.RawMessage(`"2024-03-15T10:30:00Z"`),
		"longer":  json.RawMessage(`"2024-03-15 10:30:00"`),
		"garbage": json.RawMessage(`"soon"`),
	}

	if got := airDate(fields, "plain"); got == nil || !got.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected 2024-03-15, got %v", got)
	}
	if got := airDate(fields, "rfc"); got == nil || !got.Equal(time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("expected RFC3339 timestamp, got %v", got)
	}
	if got := airDate(fields, "longer"); got == nil || !got.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected date prefix fallback, got %v", got)
	}
	if got := airDate(fields, "garbage"); got != nil {
		t.Errorf("expected nil for unparsable date, got %v", got)
	}
	if got := airDate(fields, "missing"); got != nil {
		t.Errorf("expected nil for missing key, got %v", got)
	}
}

func TestBuildPurchaseInputMapsFields(t *testing.T) {
	rec := airRecord{
		ID: "recPO1",
		Fields: map[string]json.RawMessage{
			"purchase_id":    json.RawMessage(`"PO-2024-001"`),
			"Reference":      json.RawMessage(`"NS-4431"`),
			"vendor":         json.RawMessage(`"CDW Direct"`),
			"item":           json.RawMessage(`"Latitude 5520"`),
			"description":    json.RawMessage(`"Laptop order Q1"`),
			"note":           json.RawMessage(`"expedited"`),
			"cost":           json.RawMessage(`1899.00`),
			"date":           json.RawMessage(`"2024-02-12"`),
			"count":          json.RawMessage(`4`),
			"serial_numbers": json.RawMessage(`"SN1, SN2"`),
		},
	}

	input := buildPurchaseInput(rec)
	if input.PurchaseId != "PO-2024-001" {
		t.Errorf("expected explicit purchase id, got %q", input.PurchaseId)
	}
	if input.Reference != "NS-4431" {
		t.Errorf("expected reference from capitalized column, got %q", input.Reference)
	}
	if input.VendorRaw != "CDW Direct" || input.Item != "Latitude 5520" {
		t.Errorf("unexpected vendor/item: %q / %q", input.VendorRaw, input.Item)
	}
	if !input.Cost.Equal(decimal.NewFromInt(1899)) {
		t.Errorf("expected cost 1899, got %s", input.Cost)
	}
	if input.Date == nil || !input.Date.Equal(time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected date 2024-02-12, got %v", input.Date)
	}
	if input.Count != 4 {
		t.Errorf("expected count 4, got %d", input.Count)
	}
	if input.SerialNumbers != "SN1, SN2" {
		t.Errorf("expected serial numbers, got %q", input.SerialNumbers)
	}
}

func TestBuildPurchaseInputFallbackKeys(t *testing.T) {
	rec := airRecord{
		ID: "recXYZ123",
		Fields: map[string]json.RawMessage{
			"vendor_name":  json.RawMessage(`"Apple"`),
			"product_name": json.RawMessage(`"MacBook Pro 14"`),
		},
	}

	input := buildPurchaseInput(rec)
	if input.PurchaseId != "recXYZ123" {
		t.Errorf("expected record id fallback, got %q", input.PurchaseId)
	}
	if input.VendorRaw != "Apple" {
		t.Errorf("expected vendor_name fallback, got %q", input.VendorRaw)
	}
	if input.Item != "MacBook Pro 14" {
		t.Errorf("expected product_name fallback, got %q", input.Item)
	}
}

func TestBuildEmployeeInputMapsFields(t *testing.T) {
	rec := airRecord{
		ID: "recEmp9",
		Fields: map[string]json.RawMessage{
			"employee_id":         json.RawMessage(`"E-104"`),
			"First Name":          json.RawMessage(`"Maria"`),
			"last_name":           json.RawMessage(`"Santos"`),
			"masterworks_email":   json.RawMessage(`"maria.santos@example.org"`),
			"title":               json.RawMessage(`"Designer"`),
			"employee_type":       json.RawMessage(`"Full-Time"`),
			"status":              json.RawMessage(`"Active"`),
			"department":          json.RawMessage(`"Creative"`),
			"position_start_date": json.RawMessage(`"2023-06-01"`),
		},
	}

	input := buildEmployeeInput(rec)
	if input.ExternalId != "E-104" {
		t.Errorf("expected explicit employee id, got %q", input.ExternalId)
	}
	if input.FirstName != "Maria" || input.LastName != "Santos" {
		t.Errorf("unexpected name: %q %q", input.FirstName, input.LastName)
	}
	if input.Email != "maria.santos@example.org" {
		t.Errorf("unexpected email %q", input.Email)
	}
	if input.Status != models.EmployeeStatusActive {
		t.Errorf("expected Active status, got %q", input.Status)
	}
	if input.DepartmentName != "Creative" {
		t.Errorf("expected department, got %q", input.DepartmentName)
	}
	if input.PositionStartDate == nil || input.TerminationDate != nil {
		t.Errorf("unexpected dates: %v / %v", input.PositionStartDate, input.TerminationDate)
	}
}

func TestBuildEmployeeInputFallsBackToRecordId(t *testing.T) {
	rec := airRecord{
		ID: "recEmpFallback",
		Fields: map[string]json.RawMessage{
			"first_name": json.RawMessage(`"Lee"`),
		},
	}

	input := buildEmployeeInput(rec)
	if input.ExternalId != "recEmpFallback" {
		t.Errorf("expected record id fallback, got %q", input.ExternalId)
	}
}
