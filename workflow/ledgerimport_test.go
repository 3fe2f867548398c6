package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseLedgerRow(t *testing.T) {
	row, ok := parseLedgerRow([]string{"Omzet keuken", "Lunch", "8001", "1.234,56"})
	if !ok {
		t.Fatal("valid row rejected")
	}
	if row.Category != "Omzet keuken" || row.Subcategory != "Lunch" || row.GLAccount != "8001" {
		t.Fatalf("unexpected fields: %+v", row)
	}
	if !row.Amount.Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("European-formatted amount: got %s, want 1234.56", row.Amount)
	}

	if _, ok := parseLedgerRow([]string{"", "", "", "100"}); ok {
		t.Fatal("row without category must be skipped")
	}
	if _, ok := parseLedgerRow([]string{"Omzet", "", "", "not-a-number"}); ok {
		t.Fatal("row without parseable amount must be skipped")
	}
	if _, ok := parseLedgerRow([]string{"Omzet"}); ok {
		t.Fatal("short row must be skipped, not panic")
	}
}

func TestIsLedgerHeader(t *testing.T) {
	if !isLedgerHeader([]string{"Categorie", "Subcategorie", "Grootboek", "Bedrag"}) {
		t.Fatal("Dutch header row not detected")
	}
	if isLedgerHeader([]string{"Omzet keuken", "", "8001", "100"}) {
		t.Fatal("data row misdetected as header")
	}
	if isLedgerHeader(nil) {
		t.Fatal("empty row misdetected as header")
	}
}

// Sign normalization at the ingestion boundary: income positive, costs
// negative, financial rows passed through as exported.
func TestNormalizeLedgerSign(t *testing.T) {
	cases := []struct {
		category string
		in, want string
	}{
		{"Omzet keuken", "100", "100"},
		{"Omzet keuken", "-100", "100"},
		{"Overige opbrengsten", "-50", "50"},
		{"Inkoopwaarde omzet", "300", "-300"},
		{"Inkoopwaarde omzet", "-300", "-300"},
		{"Lonen en salarissen", "2500", "-2500"},
		{"Afschrijvingen materiële vaste activa", "120", "-120"},
		{"Rentebaten", "25", "25"},
		{"Rentelasten en bankkosten", "-80", "-80"},
		// Unconfigured categories are left untouched for the aggregator
		// to ignore.
		{"Totaal bedrijfskosten", "-9999", "-9999"},
	}

	for _, tc := range cases {
		got := normalizeLedgerSign(tc.category, decimal.RequireFromString(tc.in))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s %s: got %s, want %s", tc.category, tc.in, got, tc.want)
		}
	}
}
