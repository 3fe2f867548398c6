package workflow

import (
	"testing"

	"github.com/horecafocus/backoffice_backend/models"
	"github.com/shopspring/decimal"
)

func lineItem(category, amount string) models.PnLLineItem {
	return models.PnLLineItem{
		LocationRef: "amsterdam-centrum",
		Year:        2025,
		Month:       1,
		Category:    category,
		Amount:      decimal.RequireFromString(amount),
	}
}

// A row under a narrow category and a row under its broader parent rollup
// must each be counted exactly once. Substring matching would attribute the
// "Omzet keuken" row to both entries and double the total.
func TestComputePnL_ExactMatchMutualExclusivity(t *testing.T) {
	items := []models.PnLLineItem{
		lineItem("Omzet keuken", "100"),
		lineItem("Omzet", "50"),
	}

	aggregate, unmatched := ComputePnL("amsterdam-centrum", 2025, 1, items)
	if unmatched != 0 {
		t.Fatalf("expected 0 unmatched, got %d", unmatched)
	}
	if !aggregate.RevenueTotal.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("revenue: got %s, want 150 (each row counted once)", aggregate.RevenueTotal)
	}
}

// End-to-end fixture: 100 rows, revenue €141,481 split across two exact
// categories and a parent rollup row. The historical substring-matching
// defect reported roughly double this figure.
func TestComputePnL_RevenueFixture141481(t *testing.T) {
	var items []models.PnLLineItem
	for i := 0; i < 49; i++ {
		items = append(items, lineItem("Omzet keuken", "1000"))
	}
	for i := 0; i < 49; i++ {
		items = append(items, lineItem("Omzet dranken", "1500"))
	}
	items = append(items, lineItem("Omzet", "9490.5"))
	items = append(items, lineItem("Omzet", "9490.5"))
	if len(items) != 100 {
		t.Fatalf("fixture should hold 100 rows, has %d", len(items))
	}

	aggregate, unmatched := ComputePnL("amsterdam-centrum", 2025, 1, items)
	if unmatched != 0 {
		t.Fatalf("expected 0 unmatched, got %d", unmatched)
	}
	want := decimal.RequireFromString("141481")
	if !aggregate.RevenueTotal.Equal(want) {
		t.Fatalf("revenue: got %s, want %s", aggregate.RevenueTotal, want)
	}
	if aggregate.RevenueTotal.Equal(want.Mul(decimal.NewFromInt(2))) {
		t.Fatal("revenue doubled: rows attributed to more than one bucket")
	}
}

// Costs are stored negative, so resultaat is a pure sum and never flips a
// sign itself.
func TestComputePnL_ResultaatIsPureSum(t *testing.T) {
	items := []models.PnLLineItem{
		lineItem("Omzet", "10000"),
		lineItem("Overige opbrengsten", "500"),
		lineItem("Inkoopwaarde omzet", "-3000"),
		lineItem("Lonen en salarissen", "-2500"),
		lineItem("Sociale lasten", "-500"),
		lineItem("Huisvestingskosten", "-1200"),
		lineItem("Afschrijvingen materiële vaste activa", "-300"),
		lineItem("Rentelasten en bankkosten", "-100"),
		lineItem("Rentebaten", "25"),
	}

	aggregate, _ := ComputePnL("amsterdam-centrum", 2025, 1, items)

	if !aggregate.LaborTotal.Equal(decimal.RequireFromString("-3000")) {
		t.Fatalf("labor: got %s, want -3000", aggregate.LaborTotal)
	}
	if !aggregate.FinancialTotal.Equal(decimal.RequireFromString("-75")) {
		t.Fatalf("financial: got %s, want -75", aggregate.FinancialTotal)
	}
	want := decimal.RequireFromString("2925")
	if !aggregate.Resultaat.Equal(want) {
		t.Fatalf("resultaat: got %s, want %s", aggregate.Resultaat, want)
	}
}

func TestComputePnL_UnknownCategoriesAreCountedNotSummed(t *testing.T) {
	items := []models.PnLLineItem{
		lineItem("Omzet", "1000"),
		lineItem("Totaal bedrijfskosten", "-9999"), // subtotal row, not configured
	}

	aggregate, unmatched := ComputePnL("amsterdam-centrum", 2025, 1, items)
	if unmatched != 1 {
		t.Fatalf("expected 1 unmatched row, got %d", unmatched)
	}
	if !aggregate.Resultaat.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("resultaat must ignore unconfigured rows: got %s", aggregate.Resultaat)
	}
}

func TestBucketTableEntriesAreUnique(t *testing.T) {
	// The table is a map, so category -> bucket is single-valued by
	// construction; this guards against someone reintroducing prefix
	// matching by checking a known ambiguous pair resolves independently.
	if bucket, ok := BucketForCategory("Omzet keuken"); !ok || bucket != BucketRevenue {
		t.Fatalf("Omzet keuken: got %v/%v", bucket, ok)
	}
	if _, ok := BucketForCategory("Omzet keuk"); ok {
		t.Fatal("a truncated category name must not match any bucket")
	}
	if _, ok := BucketForCategory("omzet"); ok {
		t.Fatal("matching must be case-exact")
	}
}
