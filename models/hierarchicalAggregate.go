package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Totals is the unit of rollup at every level of the hierarchy.
type Totals struct {
	HoursWorked decimal.Decimal `json:"hours_worked"`
	WageCost    decimal.Decimal `json:"wage_cost"`
}

func (t Totals) Add(other Totals) Totals {
	return Totals{
		HoursWorked: t.HoursWorked.Add(other.HoursWorked),
		WageCost:    t.WageCost.Add(other.WageCost),
	}
}

func (t Totals) Scale(ratio decimal.Decimal) Totals {
	return Totals{
		HoursWorked: t.HoursWorked.Mul(ratio),
		WageCost:    t.WageCost.Mul(ratio),
	}
}

type SubTeamAggregate struct {
	Totals   Totals            `json:"totals"`
	ByWorker map[string]Totals `json:"by_worker"`
}

type TeamCategoryAggregate struct {
	Totals    Totals                      `json:"totals"`
	BySubTeam map[string]SubTeamAggregate `json:"by_sub_team"`
}

type DivisionAggregate struct {
	Totals         Totals                           `json:"totals"`
	ByTeamCategory map[string]TeamCategoryAggregate `json:"by_team_category"`
}

// HierarchyDocument is the nested location -> division -> team category ->
// sub team -> worker rollup for one (location, date).
//
// Invariant: totals at every level equal the sum of their children. A team
// with a fractional category split contributes proportionally to two
// category branches; the division totals are computed from the undivided
// worker totals so the split never double-counts.
type HierarchyDocument struct {
	Date        string                       `json:"date"`
	LocationRef string                       `json:"location_ref"`
	Totals      Totals                       `json:"totals"`
	ByDivision  map[string]DivisionAggregate `json:"by_division"`
}

// HierarchicalAggregate persists one HierarchyDocument per (location, date)
// as a JSON document, with the top-level totals denormalized into columns
// for range queries.
type HierarchicalAggregate struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	LocationRef string    `gorm:"uniqueIndex:idx_hier_natural,priority:1;size:64;not null" json:"location_ref"`
	Date        time.Time `gorm:"uniqueIndex:idx_hier_natural,priority:2;not null" json:"date"`

	TotalHoursWorked decimal.Decimal `gorm:"type:decimal(14,4);default:0" json:"total_hours_worked"`
	TotalWageCost    decimal.Decimal `gorm:"type:decimal(16,4);default:0" json:"total_wage_cost"`
	DocumentJSON     []byte          `gorm:"type:json" json:"document"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (h *HierarchicalAggregate) Document() (*HierarchyDocument, error) {
	var doc HierarchyDocument
	if err := json.Unmarshal(h.DocumentJSON, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpsertHierarchicalAggregate updates the row in place when one exists for
// the key, inserts otherwise. Never duplicates.
func UpsertHierarchicalAggregate(ctx context.Context, db *gorm.DB, locationRef string, date time.Time, doc *HierarchyDocument) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	var existing HierarchicalAggregate
	err = db.WithContext(ctx).
		Where("location_ref = ? AND date = ?", locationRef, date).
		Take(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		record := HierarchicalAggregate{
			LocationRef:      locationRef,
			Date:             date,
			TotalHoursWorked: doc.Totals.HoursWorked,
			TotalWageCost:    doc.Totals.WageCost,
			DocumentJSON:     docJSON,
		}
		return db.WithContext(ctx).Create(&record).Error
	}

	return db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"total_hours_worked": doc.Totals.HoursWorked,
		"total_wage_cost":    doc.Totals.WageCost,
		"document_json":      docJSON,
	}).Error
}

func GetHierarchicalAggregate(ctx context.Context, db *gorm.DB, locationRef string, date time.Time) (*HierarchicalAggregate, error) {
	var record HierarchicalAggregate
	err := db.WithContext(ctx).
		Where("location_ref = ? AND date = ?", locationRef, date).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
