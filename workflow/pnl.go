package workflow

import (
	"context"
	"fmt"

	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PnLBucket is one slot of the standardized statement schema.
type PnLBucket string

const (
	BucketRevenue      PnLBucket = "revenue"
	BucketOtherIncome  PnLBucket = "other_income"
	BucketCostOfSales  PnLBucket = "cost_of_sales"
	BucketLabor        PnLBucket = "labor"
	BucketOtherCosts   PnLBucket = "other_costs"
	BucketDepreciation PnLBucket = "depreciation"
	BucketFinancial    PnLBucket = "financial"
)

// pnlBucketTable maps exact ledger category names onto statement buckets.
//
// Matching is a map lookup, i.e. exact string equality — NEVER substring
// or prefix matching. The ledger taxonomy contains rollup categories whose
// names prefix their children ("Omzet" / "Omzet keuken"); substring
// matching attributes a child row to both its own entry and the rollup
// entry, which once doubled reported revenue. Exact lookup makes a row
// hit exactly one bucket by construction.
//
// A category name may appear in this table at most once, so the buckets
// stay mutually exclusive.
var pnlBucketTable = map[string]PnLBucket{
	// Revenue. "Omzet" itself only appears in exports that carry no
	// child-level detail rows for the month.
	"Omzet":         BucketRevenue,
	"Omzet keuken":  BucketRevenue,
	"Omzet dranken": BucketRevenue,
	"Omzet overig":  BucketRevenue,

	"Overige opbrengsten": BucketOtherIncome,

	"Inkoopwaarde omzet": BucketCostOfSales,

	// Personnel cost categories summed into labor.
	"Lonen en salarissen":      BucketLabor,
	"Sociale lasten":           BucketLabor,
	"Pensioenlasten":           BucketLabor,
	"Uitzendkrachten":          BucketLabor,
	"Overige personeelskosten": BucketLabor,

	// Minor expense categories summed into other costs.
	"Huisvestingskosten": BucketOtherCosts,
	"Exploitatiekosten":  BucketOtherCosts,
	"Verkoopkosten":      BucketOtherCosts,
	"Autokosten":         BucketOtherCosts,
	"Kantoorkosten":      BucketOtherCosts,
	"Algemene kosten":    BucketOtherCosts,

	"Afschrijvingen materiële vaste activa":   BucketDepreciation,
	"Afschrijvingen immateriële vaste activa": BucketDepreciation,

	"Rentebaten":                BucketFinancial,
	"Rentelasten en bankkosten": BucketFinancial,
}

// BucketForCategory resolves a ledger category name. The boolean is false
// for categories outside the statement schema (unknown or rollup parents
// with detail rows present).
func BucketForCategory(category string) (PnLBucket, bool) {
	bucket, ok := pnlBucketTable[category]
	return bucket, ok
}

// ComputePnL folds deduplicated line items into the statement. Costs are
// already negative at ingestion, so resultaat is a pure sum over every
// bucket — the sign convention is single-sourced and the formula never
// subtracts.
func ComputePnL(locationRef string, year, month int, items []models.PnLLineItem) (*models.PnLAggregate, int) {
	totals := map[PnLBucket]decimal.Decimal{}
	unmatched := 0

	for _, item := range items {
		bucket, ok := BucketForCategory(item.Category)
		if !ok {
			unmatched++
			continue
		}
		totals[bucket] = totals[bucket].Add(item.Amount)
	}

	aggregate := &models.PnLAggregate{
		LocationRef:       locationRef,
		Year:              year,
		Month:             month,
		RevenueTotal:      totals[BucketRevenue],
		OtherIncomeTotal:  totals[BucketOtherIncome],
		CostOfSalesTotal:  totals[BucketCostOfSales],
		LaborTotal:        totals[BucketLabor],
		OtherCostsTotal:   totals[BucketOtherCosts],
		DepreciationTotal: totals[BucketDepreciation],
		FinancialTotal:    totals[BucketFinancial],
	}
	aggregate.Resultaat = aggregate.RevenueTotal.
		Add(aggregate.OtherIncomeTotal).
		Add(aggregate.CostOfSalesTotal).
		Add(aggregate.LaborTotal).
		Add(aggregate.OtherCostsTotal).
		Add(aggregate.DepreciationTotal).
		Add(aggregate.FinancialTotal)

	return aggregate, unmatched
}

// AggregatePnL recomputes the monthly statement for one location from its
// deduplicated line items and upserts it. Run DedupePnLLineItems first
// after an import; this function assumes one canonical row per financial
// natural key.
func AggregatePnL(ctx context.Context, db *gorm.DB, locationRef string, year, month int) (*models.PnLAggregate, error) {
	items, err := models.ListPnLLineItems(ctx, db, locationRef, year, month)
	if err != nil {
		return nil, err
	}

	aggregate, unmatched := ComputePnL(locationRef, year, month, items)
	if unmatched > 0 {
		config.LogWarn(config.GetLogger(), "workflow", "AggregatePnL",
			fmt.Sprintf("%s %d-%02d", locationRef, year, month),
			fmt.Sprintf("%d line items outside the statement schema were skipped", unmatched))
	}

	if err := models.UpsertPnLAggregate(ctx, db, aggregate); err != nil {
		return nil, err
	}
	return aggregate, nil
}
