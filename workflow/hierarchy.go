package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/horecafocus/backoffice_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Team categories of the productivity hierarchy.
const (
	CategoryKitchen    = "Kitchen"
	CategoryService    = "Service"
	CategoryManagement = "Management"
	CategoryOther      = "Other"
)

// CategoryShare is one branch a team's hours flow into. Ratios of a team's
// shares always sum to 1, so scaling contributions per branch never
// changes the division total.
type CategoryShare struct {
	Category string
	Ratio    decimal.Decimal
}

var (
	fullShare = decimal.NewFromInt(1)
	halfShare = decimal.NewFromFloat(0.5)
)

// teamCategoryTable maps normalized team refs onto categories. The table
// is static business logic, not configuration.
//
// Special cases:
//   - "general" is a business override: venues book sick leave on a team
//     literally named "general", so it maps to Other (sick leave), it is
//     NOT an uncategorized default.
//   - "dishwashing" is a fractional split: half Kitchen, half Service.
var teamCategoryTable = map[string][]CategoryShare{
	"kitchen":      {{CategoryKitchen, fullShare}},
	"keuken":       {{CategoryKitchen, fullShare}},
	"cold-kitchen": {{CategoryKitchen, fullShare}},
	"pastry":       {{CategoryKitchen, fullShare}},

	"service":   {{CategoryService, fullShare}},
	"bediening": {{CategoryService, fullShare}},
	"bar":       {{CategoryService, fullShare}},
	"terrace":   {{CategoryService, fullShare}},
	"host":      {{CategoryService, fullShare}},

	"management":     {{CategoryManagement, fullShare}},
	"administration": {{CategoryManagement, fullShare}},
	"hr":             {{CategoryManagement, fullShare}},
	"ordering":       {{CategoryManagement, fullShare}},
	"stock":          {{CategoryManagement, fullShare}},

	"leave":         {{CategoryOther, fullShare}},
	"sick-leave":    {{CategoryOther, fullShare}},
	"general-leave": {{CategoryOther, fullShare}},
	// Business override: "general" means sick leave here.
	"general": {{CategoryOther, fullShare}},

	// Fractional split: dishwashing hours serve both the kitchen and the
	// floor, 50/50.
	"dishwashing": {{CategoryKitchen, halfShare}, {CategoryService, halfShare}},
	"spoelkeuken": {{CategoryKitchen, halfShare}, {CategoryService, halfShare}},
}

// CategoriesForTeam resolves a team ref to its category shares.
// Unknown teams land in Other with a full share.
func CategoriesForTeam(teamRef string) []CategoryShare {
	ref := strings.ToLower(strings.TrimSpace(teamRef))
	if shares, ok := teamCategoryTable[ref]; ok {
		return shares
	}
	return []CategoryShare{{CategoryOther, fullShare}}
}

// HierarchyBuilder builds the nested location -> division -> team category
// -> sub team -> worker rollup for one (location, date).
type HierarchyBuilder struct {
	db *gorm.DB
}

func NewHierarchyBuilder(db *gorm.DB) *HierarchyBuilder {
	return &HierarchyBuilder{db: db}
}

// BuildHierarchy computes and stores the hierarchy for one location/day.
// Returns nil (no error) when the location has no processed data for the
// day. Existing rows are updated in place, never duplicated.
func (b *HierarchyBuilder) BuildHierarchy(ctx context.Context, locationRef string, date time.Time) (*models.HierarchyDocument, error) {
	records, err := models.ListProcessedRecordsForDay(ctx, b.db, locationRef, date)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	teams, err := models.ListTeamsByLocation(ctx, locationRef)
	if err != nil {
		return nil, err
	}
	teamsByRef := map[string]models.Team{}
	for _, t := range teams {
		teamsByRef[t.Ref] = t
	}

	doc := BuildHierarchyDocument(locationRef, date, records, teamsByRef)
	if err := models.UpsertHierarchicalAggregate(ctx, b.db, locationRef, date, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// BuildHierarchyDocument is the pure rollup. Division and location totals
// are accumulated from each record's UNDIVIDED totals exactly once;
// fractional splits only scale the per-category branches. That is what
// keeps a 50/50 team from double-counting at the division level.
func BuildHierarchyDocument(locationRef string, date time.Time, records []models.ProcessedRecord, teamsByRef map[string]models.Team) *models.HierarchyDocument {
	doc := &models.HierarchyDocument{
		Date:        date.Format("2006-01-02"),
		LocationRef: locationRef,
		ByDivision:  map[string]models.DivisionAggregate{},
	}

	for _, r := range records {
		teamRef := "uncategorized"
		if r.TeamRef != nil {
			teamRef = *r.TeamRef
		}

		division := "General"
		subTeam := teamRef
		if team, ok := teamsByRef[teamRef]; ok {
			if team.Division != "" {
				division = team.Division
			}
			if team.Name != "" {
				subTeam = team.Name
			}
		}

		workerId := "unknown"
		if r.WorkerId != nil {
			workerId = *r.WorkerId
		}

		totals := models.Totals{HoursWorked: r.HoursWorked}
		if r.WageCost != nil {
			totals.WageCost = *r.WageCost
		}

		div := doc.ByDivision[division]
		if div.ByTeamCategory == nil {
			div.ByTeamCategory = map[string]models.TeamCategoryAggregate{}
		}
		// Undivided totals, added once per record.
		div.Totals = div.Totals.Add(totals)
		doc.Totals = doc.Totals.Add(totals)

		for _, share := range CategoriesForTeam(teamRef) {
			scaled := totals.Scale(share.Ratio)

			cat := div.ByTeamCategory[share.Category]
			if cat.BySubTeam == nil {
				cat.BySubTeam = map[string]models.SubTeamAggregate{}
			}
			cat.Totals = cat.Totals.Add(scaled)

			st := cat.BySubTeam[subTeam]
			if st.ByWorker == nil {
				st.ByWorker = map[string]models.Totals{}
			}
			st.Totals = st.Totals.Add(scaled)
			st.ByWorker[workerId] = st.ByWorker[workerId].Add(scaled)

			cat.BySubTeam[subTeam] = st
			div.ByTeamCategory[share.Category] = cat
		}

		doc.ByDivision[division] = div
	}

	return doc
}
