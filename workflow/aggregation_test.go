package workflow

import (
	"testing"
	"time"

	"github.com/horecafocus/backoffice_backend/models"
	"github.com/shopspring/decimal"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }

func aggregationFixture() []models.ProcessedRecord {
	date := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	return []models.ProcessedRecord{
		{
			ID: 1, SourceId: "s1", EndpointType: models.EndpointTypeShifts,
			Date: date, LocationRef: "amsterdam-centrum",
			WorkerId: strPtr("w1"), TeamRef: strPtr("kitchen"),
			HoursWorked: decimal.RequireFromString("8"),
			WageCost:    decPtr("120"),
			RecordKind:  models.RecordKindWorked,
		},
		{
			ID: 2, SourceId: "s2", EndpointType: models.EndpointTypeShifts,
			Date: date, LocationRef: "amsterdam-centrum",
			WorkerId: strPtr("w2"), TeamRef: strPtr("service"),
			HoursWorked: decimal.RequireFromString("6"),
			WageCost:    decPtr("90"),
			RecordKind:  models.RecordKindWorked,
		},
		{
			// Paid leave: wage counts, hours do not.
			ID: 3, SourceId: "s3", EndpointType: models.EndpointTypeAbsences,
			Date: date, LocationRef: "amsterdam-centrum",
			WorkerId: strPtr("w3"), TeamRef: strPtr("kitchen"),
			HoursWorked: decimal.RequireFromString("8"),
			WageCost:    decPtr("100"),
			RecordKind:  models.RecordKindLeave,
		},
	}
}

func findAggregate(t *testing.T, aggregates []models.AggregatedRecord, dimension string) models.AggregatedRecord {
	t.Helper()
	for _, a := range aggregates {
		if a.Dimension == dimension {
			return a
		}
	}
	t.Fatalf("no aggregate with dimension %q", dimension)
	return models.AggregatedRecord{}
}

func TestComputeDailyAggregates_LocationTotal(t *testing.T) {
	date := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	revenue := map[string]decimal.Decimal{
		aggregationKey(date, "amsterdam-centrum"): decimal.RequireFromString("2800"),
	}

	aggregates := computeDailyAggregates(aggregationFixture(), revenue)
	total := findAggregate(t, aggregates, "")

	// Worked hours only: 8 + 6. Leave hours excluded.
	if !total.TotalHoursWorked.Equal(decimal.RequireFromString("14")) {
		t.Fatalf("hours: got %s, want 14", total.TotalHoursWorked)
	}
	// Wage includes leave: 120 + 90 + 100.
	if !total.TotalWageCost.Equal(decimal.RequireFromString("310")) {
		t.Fatalf("wage: got %s, want 310", total.TotalWageCost)
	}
	if !total.TotalRevenue.Equal(decimal.RequireFromString("2800")) {
		t.Fatalf("revenue: got %s, want 2800", total.TotalRevenue)
	}
	if !total.LaborCostPct.Equal(decimal.RequireFromString("310").Div(decimal.RequireFromString("2800")).Round(6)) {
		t.Fatalf("labor pct: got %s", total.LaborCostPct)
	}
	if !total.RevenuePerHour.Equal(decimal.RequireFromString("2800").Div(decimal.RequireFromString("14")).Round(6)) {
		t.Fatalf("revenue/hour: got %s", total.RevenuePerHour)
	}
}

func TestComputeDailyAggregates_RevenueOnlyOnLocationTotal(t *testing.T) {
	date := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	revenue := map[string]decimal.Decimal{
		aggregationKey(date, "amsterdam-centrum"): decimal.RequireFromString("2800"),
	}

	aggregates := computeDailyAggregates(aggregationFixture(), revenue)
	kitchen := findAggregate(t, aggregates, "team:kitchen")

	if !kitchen.TotalRevenue.IsZero() {
		t.Fatalf("team rows must not carry revenue, got %s", kitchen.TotalRevenue)
	}
	if !kitchen.TotalHoursWorked.Equal(decimal.RequireFromString("8")) {
		t.Fatalf("kitchen hours: got %s, want 8", kitchen.TotalHoursWorked)
	}
	// Kitchen wage: worked 120 + leave 100.
	if !kitchen.TotalWageCost.Equal(decimal.RequireFromString("220")) {
		t.Fatalf("kitchen wage: got %s, want 220", kitchen.TotalWageCost)
	}
}

// Aggregation is full recomputation: the same input always yields the same
// totals, never accumulated ones.
func TestComputeDailyAggregates_RecomputationIdempotent(t *testing.T) {
	date := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	revenue := map[string]decimal.Decimal{
		aggregationKey(date, "amsterdam-centrum"): decimal.RequireFromString("2800"),
	}

	first := computeDailyAggregates(aggregationFixture(), revenue)
	second := computeDailyAggregates(aggregationFixture(), revenue)

	if len(first) != len(second) {
		t.Fatalf("row counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Dimension != second[i].Dimension ||
			!first[i].TotalHoursWorked.Equal(second[i].TotalHoursWorked) ||
			!first[i].TotalWageCost.Equal(second[i].TotalWageCost) ||
			!first[i].TotalRevenue.Equal(second[i].TotalRevenue) {
			t.Fatalf("row %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestComputeDailyAggregates_ZeroDenominators(t *testing.T) {
	// No revenue recorded: both derived metrics must be zero, not a panic
	// or an infinity.
	aggregates := computeDailyAggregates(aggregationFixture(), nil)
	total := findAggregate(t, aggregates, "")

	if !total.LaborCostPct.IsZero() {
		t.Fatalf("labor pct without revenue: got %s, want 0", total.LaborCostPct)
	}
	if !total.RevenuePerHour.IsZero() {
		t.Fatalf("revenue/hour without revenue: got %s, want 0", total.RevenuePerHour)
	}
}

func TestSafeRatio(t *testing.T) {
	if !safeRatio(decimal.RequireFromString("10"), decimal.Zero).IsZero() {
		t.Fatal("division by zero must yield zero")
	}
	if !safeRatio(decimal.RequireFromString("10"), decimal.RequireFromString("-5")).IsZero() {
		t.Fatal("negative denominator must yield zero")
	}
	got := safeRatio(decimal.RequireFromString("1"), decimal.RequireFromString("3"))
	if !got.Equal(decimal.RequireFromString("0.333333")) {
		t.Fatalf("1/3 rounded to 6 places: got %s", got)
	}
}
