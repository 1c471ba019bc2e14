package google

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
	ports "github.com/renezit0/despesa-agil-93/internal/sheets"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected missing credentials error, got: %v", err)
	}
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got: %v", err)
	}
}

func TestClient_AppendWithoutService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	_, err := c.Append(context.Background(), ports.Row{ExpenseID: "e1"})
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got: %v", err)
	}
	if _, err := c.Rows(context.Background()); err == nil {
		t.Fatal("expected error from Rows without service")
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"Ledger", "2025 Ledger"},
		{"  Ledger  ", "2025 Ledger"},
		{"2024 Ledger", "2024 Ledger"},
		{"1800 Ledger", "2025 1800 Ledger"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, 2025); got != tt.want {
				t.Errorf("yearPrefixedName(%q) = %q, want %q", tt.base, got, tt.want)
			}
		})
	}
}

func TestParseRows(t *testing.T) {
	values := [][]interface{}{
		{"Date", "Event", "Expense", "Title", "Payment", "Discount", "Type", "Note", "Ref"},
		{"2024-03-01", "payment", "fin", "Car", "450.00", "50.00", "early_payment", "payoff", "tx1"},
		{"", "", "", "", "", "", "", "", ""},
		{"2024-03-02", "reset", "fin", "Car", "0,00", "0", "", "", "ev1"},
	}
	rows, err := parseRows(values)
	if err != nil {
		t.Fatalf("parseRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.Date != core.NewDate(2024, 3, 1) || first.Event != ports.EventPayment || first.Ref != "tx1" {
		t.Fatalf("unexpected first row %+v", first)
	}
	if !first.Payment.Equal(decimal.RequireFromString("450")) || !first.Discount.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("unexpected amounts %s / %s", first.Payment, first.Discount)
	}
	if first.PaymentType != core.EarlyPayment {
		t.Fatalf("unexpected type %s", first.PaymentType)
	}
	if rows[1].Event != ports.EventReset || !rows[1].Payment.IsZero() {
		t.Fatalf("unexpected reset row %+v", rows[1])
	}
}

func TestParseRowsReorderedColumns(t *testing.T) {
	values := [][]interface{}{
		{"Ref", "Expense", "Date", "Event", "Title", "Type", "Note", "Discount", "Payment"},
		{"tx9", "fin", "2024-05-10", "payment", "Car", "partial_payment", "", "0", "100"},
	}
	rows, err := parseRows(values)
	if err != nil {
		t.Fatalf("parseRows: %v", err)
	}
	if len(rows) != 1 || rows[0].Ref != "tx9" || !rows[0].Payment.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestParseRowsUnexpectedHeader(t *testing.T) {
	_, err := parseRows([][]interface{}{{"Date", "Amount"}})
	if err == nil || !strings.Contains(err.Error(), "unexpected ledger header") {
		t.Fatalf("expected header error, got: %v", err)
	}
}

func TestRowValuesMatchHeader(t *testing.T) {
	r := ports.Row{
		Date:        core.NewDate(2024, 1, 2),
		Event:       ports.EventPayment,
		ExpenseID:   "fin",
		Title:       "Car",
		Payment:     decimal.RequireFromString("12.5"),
		Discount:    decimal.Zero,
		PaymentType: core.PartialPayment,
		Ref:         "tx",
	}
	values := r.Values()
	if len(values) != len(ports.Header) {
		t.Fatalf("values has %d columns, header has %d", len(values), len(ports.Header))
	}
	matrix := [][]interface{}{make([]interface{}, len(ports.Header)), values}
	for i, h := range ports.Header {
		matrix[0][i] = h
	}
	rows, err := parseRows(matrix)
	if err != nil {
		t.Fatalf("parseRows: %v", err)
	}
	if len(rows) != 1 || rows[0].Ref != "tx" || !rows[0].Payment.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
