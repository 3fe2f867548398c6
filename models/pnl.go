package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PnLLineItem is one imported general-ledger row. Rows are immutable facts;
// re-imports of the same month produce new rows that deduplication later
// collapses on (category, subcategory, gl_account, amount) per
// (location, year, month), keeping the earliest-created row.
//
// Amounts carry their statement sign at ingestion: revenue positive, cost
// buckets negative. All downstream math is pure addition.
type PnLLineItem struct {
	ID          uint            `gorm:"primary_key" json:"id"`
	LocationRef string          `gorm:"index:idx_pnl_line_key,priority:1;size:64;not null" json:"location_ref"`
	Year        int             `gorm:"index:idx_pnl_line_key,priority:2;not null" json:"year"`
	Month       int             `gorm:"index:idx_pnl_line_key,priority:3;not null" json:"month"`
	Category    string          `gorm:"size:255;not null" json:"category"`
	Subcategory string          `gorm:"size:255" json:"subcategory"`
	GLAccount   string          `gorm:"size:64" json:"gl_account"`
	Amount      decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"amount"`
	ImportId    string          `gorm:"index;size:64;not null" json:"import_id"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// PnLAggregate is the standardized monthly statement per location.
//
// resultaat = revenue + other income + sum(cost buckets); cost buckets are
// stored negative, so the formula is a pure sum — never a subtraction.
type PnLAggregate struct {
	ID          uint   `gorm:"primary_key" json:"id"`
	LocationRef string `gorm:"uniqueIndex:idx_pnl_agg_natural,priority:1;size:64;not null" json:"location_ref"`
	Year        int    `gorm:"uniqueIndex:idx_pnl_agg_natural,priority:2;not null" json:"year"`
	Month       int    `gorm:"uniqueIndex:idx_pnl_agg_natural,priority:3;not null" json:"month"`

	RevenueTotal      decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"revenue_total"`
	OtherIncomeTotal  decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"other_income_total"`
	CostOfSalesTotal  decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"cost_of_sales_total"`
	LaborTotal        decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"labor_total"`
	OtherCostsTotal   decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"other_costs_total"`
	DepreciationTotal decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"depreciation_total"`
	FinancialTotal    decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"financial_total"`
	Resultaat         decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"resultaat"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func ListPnLLineItems(ctx context.Context, db *gorm.DB, locationRef string, year, month int) ([]PnLLineItem, error) {
	var items []PnLLineItem
	err := db.WithContext(ctx).
		Where("location_ref = ? AND year = ? AND month = ?", locationRef, year, month).
		Order("id").
		Find(&items).Error
	return items, err
}

func ListPnLLineItemsPage(ctx context.Context, db *gorm.DB, locationRef string, year, month int, afterId uint, limit int) ([]PnLLineItem, error) {
	var items []PnLLineItem
	err := db.WithContext(ctx).
		Where("location_ref = ? AND year = ? AND month = ? AND id > ?", locationRef, year, month, afterId).
		Order("id").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func UpsertPnLAggregate(ctx context.Context, db *gorm.DB, record *PnLAggregate) error {
	var existing PnLAggregate
	err := db.WithContext(ctx).
		Where("location_ref = ? AND year = ? AND month = ?", record.LocationRef, record.Year, record.Month).
		Take(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return db.WithContext(ctx).Create(record).Error
	}

	return db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"revenue_total":      record.RevenueTotal,
		"other_income_total": record.OtherIncomeTotal,
		"cost_of_sales_total": record.CostOfSalesTotal,
		"labor_total":        record.LaborTotal,
		"other_costs_total":  record.OtherCostsTotal,
		"depreciation_total": record.DepreciationTotal,
		"financial_total":    record.FinancialTotal,
		"resultaat":          record.Resultaat,
	}).Error
}
