package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AggregatedRecord is the daily rollup per location, optionally split by a
// dimension (team ref, record kind). Dimension "" is the location total.
//
// Grain: (date, location_ref, dimension) — upserted, never appended, so at
// most one row exists per key and recomputation is idempotent.
//
// Derived metrics follow fixed zero-denominator rules:
// - labor_cost_pct  = total_wage_cost / total_revenue when revenue > 0, else 0
// - revenue_per_hour = total_revenue / total_hours_worked when hours > 0, else 0
type AggregatedRecord struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	Date        time.Time `gorm:"uniqueIndex:idx_agg_natural,priority:1;not null" json:"date"`
	LocationRef string    `gorm:"uniqueIndex:idx_agg_natural,priority:2;size:64;not null" json:"location_ref"`
	Dimension   string    `gorm:"uniqueIndex:idx_agg_natural,priority:3;size:128;not null;default:''" json:"dimension"`

	TotalHoursWorked decimal.Decimal `gorm:"type:decimal(14,4);default:0" json:"total_hours_worked"`
	TotalWageCost    decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"total_wage_cost"`
	TotalRevenue     decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"total_revenue"`
	LaborCostPct     decimal.Decimal `gorm:"type:decimal(10,6);default:0" json:"labor_cost_pct"`
	RevenuePerHour   decimal.Decimal `gorm:"type:decimal(14,4);default:0" json:"revenue_per_hour"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertAggregatedRecord replaces the full set of totals for a key. Values
// are always complete recomputations; incrementally adding to an existing
// row would break re-run idempotence.
func UpsertAggregatedRecord(ctx context.Context, db *gorm.DB, record *AggregatedRecord) (created bool, err error) {
	err = db.WithContext(ctx).Create(record).Error
	if err == nil {
		return true, nil
	}
	if !isDuplicateKeyError(err) {
		return false, err
	}

	err = db.WithContext(ctx).
		Model(&AggregatedRecord{}).
		Where("date = ? AND location_ref = ? AND dimension = ?", record.Date, record.LocationRef, record.Dimension).
		Updates(map[string]interface{}{
			"total_hours_worked": record.TotalHoursWorked,
			"total_wage_cost":    record.TotalWageCost,
			"total_revenue":      record.TotalRevenue,
			"labor_cost_pct":     record.LaborCostPct,
			"revenue_per_hour":   record.RevenuePerHour,
		}).Error
	return false, err
}
