package workflow

import (
	"testing"
	"time"

	"github.com/horecafocus/backoffice_backend/models"
	"github.com/shopspring/decimal"
)

func TestCategoriesForTeam(t *testing.T) {
	cases := []struct {
		teamRef string
		want    []string
	}{
		{"kitchen", []string{CategoryKitchen}},
		{"Bediening", []string{CategoryService}},
		{"administration", []string{CategoryManagement}},
		{"sick-leave", []string{CategoryOther}},
		// Business override: "general" is sick leave, not a default bucket.
		{"general", []string{CategoryOther}},
		{"dishwashing", []string{CategoryKitchen, CategoryService}},
		{"never-heard-of-it", []string{CategoryOther}},
	}

	for _, tc := range cases {
		shares := CategoriesForTeam(tc.teamRef)
		if len(shares) != len(tc.want) {
			t.Fatalf("%s: got %d shares, want %d", tc.teamRef, len(shares), len(tc.want))
		}
		sum := decimal.Zero
		for i, share := range shares {
			if share.Category != tc.want[i] {
				t.Fatalf("%s: share %d is %s, want %s", tc.teamRef, i, share.Category, tc.want[i])
			}
			sum = sum.Add(share.Ratio)
		}
		if !sum.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("%s: ratios sum to %s, want 1", tc.teamRef, sum)
		}
	}
}

func TestBuildHierarchyDocument_FractionalSplit(t *testing.T) {
	date := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	records := []models.ProcessedRecord{
		{
			ID: 1, SourceId: "s1", EndpointType: models.EndpointTypeShifts,
			Date: date, LocationRef: "amsterdam-centrum",
			WorkerId: strPtr("w1"), TeamRef: strPtr("dishwashing"),
			HoursWorked: decimal.RequireFromString("8"),
			WageCost:    decPtr("96"),
			RecordKind:  models.RecordKindWorked,
		},
	}
	teams := map[string]models.Team{
		"dishwashing": {Ref: "dishwashing", Name: "Dishwashing", Division: "Operations"},
	}

	doc := BuildHierarchyDocument("amsterdam-centrum", date, records, teams)

	division, ok := doc.ByDivision["Operations"]
	if !ok {
		t.Fatal("missing Operations division")
	}

	// Division totals carry the UNDIVIDED 8 hours exactly once.
	if !division.Totals.HoursWorked.Equal(decimal.RequireFromString("8")) {
		t.Fatalf("division hours: got %s, want 8", division.Totals.HoursWorked)
	}
	if !doc.Totals.HoursWorked.Equal(decimal.RequireFromString("8")) {
		t.Fatalf("location hours: got %s, want 8", doc.Totals.HoursWorked)
	}

	kitchen := division.ByTeamCategory[CategoryKitchen]
	service := division.ByTeamCategory[CategoryService]
	four := decimal.RequireFromString("4")
	if !kitchen.Totals.HoursWorked.Equal(four) {
		t.Fatalf("kitchen branch hours: got %s, want 4", kitchen.Totals.HoursWorked)
	}
	if !service.Totals.HoursWorked.Equal(four) {
		t.Fatalf("service branch hours: got %s, want 4", service.Totals.HoursWorked)
	}
	if !kitchen.Totals.HoursWorked.Add(service.Totals.HoursWorked).Equal(decimal.RequireFromString("8")) {
		t.Fatal("kitchen + service must equal the undivided total")
	}

	// Wage splits the same way, down to the worker leaf.
	worker := kitchen.BySubTeam["Dishwashing"].ByWorker["w1"]
	if !worker.WageCost.Equal(decimal.RequireFromString("48")) {
		t.Fatalf("worker kitchen wage: got %s, want 48", worker.WageCost)
	}
}

func TestBuildHierarchyDocument_NoDoubleCountAcrossRecords(t *testing.T) {
	date := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	records := []models.ProcessedRecord{
		{
			ID: 1, SourceId: "s1", EndpointType: models.EndpointTypeShifts,
			Date: date, LocationRef: "amsterdam-centrum",
			WorkerId: strPtr("w1"), TeamRef: strPtr("dishwashing"),
			HoursWorked: decimal.RequireFromString("8"),
			RecordKind:  models.RecordKindWorked,
		},
		{
			ID: 2, SourceId: "s2", EndpointType: models.EndpointTypeShifts,
			Date: date, LocationRef: "amsterdam-centrum",
			WorkerId: strPtr("w2"), TeamRef: strPtr("kitchen"),
			HoursWorked: decimal.RequireFromString("5"),
			RecordKind:  models.RecordKindWorked,
		},
	}
	teams := map[string]models.Team{
		"dishwashing": {Ref: "dishwashing", Name: "Dishwashing", Division: "Operations"},
		"kitchen":     {Ref: "kitchen", Name: "Kitchen", Division: "Operations"},
	}

	doc := BuildHierarchyDocument("amsterdam-centrum", date, records, teams)

	if !doc.Totals.HoursWorked.Equal(decimal.RequireFromString("13")) {
		t.Fatalf("location hours: got %s, want 13", doc.Totals.HoursWorked)
	}
	division := doc.ByDivision["Operations"]
	if !division.Totals.HoursWorked.Equal(decimal.RequireFromString("13")) {
		t.Fatalf("division hours: got %s, want 13", division.Totals.HoursWorked)
	}

	// Category branches sum back to the division total.
	branchSum := decimal.Zero
	for _, cat := range division.ByTeamCategory {
		branchSum = branchSum.Add(cat.Totals.HoursWorked)
	}
	if !branchSum.Equal(decimal.RequireFromString("13")) {
		t.Fatalf("category branch sum: got %s, want 13", branchSum)
	}
}

func TestBuildHierarchyDocument_UnknownTeamLandsInOther(t *testing.T) {
	date := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	records := []models.ProcessedRecord{
		{
			ID: 1, SourceId: "s1", EndpointType: models.EndpointTypeShifts,
			Date: date, LocationRef: "amsterdam-centrum",
			HoursWorked: decimal.RequireFromString("3"),
			RecordKind:  models.RecordKindWorked,
		},
	}

	doc := BuildHierarchyDocument("amsterdam-centrum", date, records, nil)

	division, ok := doc.ByDivision["General"]
	if !ok {
		t.Fatal("records without team metadata belong to the General division")
	}
	other := division.ByTeamCategory[CategoryOther]
	if !other.Totals.HoursWorked.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("other branch hours: got %s, want 3", other.Totals.HoursWorked)
	}
	if _, ok := other.BySubTeam["uncategorized"]; !ok {
		t.Fatal("missing uncategorized sub team")
	}
}
