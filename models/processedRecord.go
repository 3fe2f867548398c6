package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RecordKind string

const (
	RecordKindWorked RecordKind = "worked"
	RecordKindLeave  RecordKind = "leave"
	RecordKindOther  RecordKind = "other"
)

// ProcessedRecord is the canonical shape derived from exactly one raw
// record. It is regenerated (upsert by source id) whenever the canonical
// raw copy changes, so it carries no state of its own besides the
// aggregation watermark.
//
// Invariants: hours_worked >= 0; wage_cost is NULL when the partner did
// not supply a wage, never negative.
type ProcessedRecord struct {
	ID           uint             `gorm:"primary_key" json:"id"`
	SourceId     string           `gorm:"uniqueIndex:idx_processed_natural,priority:2;size:128;not null" json:"source_id"`
	EndpointType EndpointType     `gorm:"uniqueIndex:idx_processed_natural,priority:1;size:32;not null" json:"endpoint_type"`
	Date         time.Time        `gorm:"index:idx_processed_loc_date,priority:2;not null" json:"date"`
	LocationRef  string           `gorm:"index:idx_processed_loc_date,priority:1;size:64;not null" json:"location_ref"`
	WorkerId     *string          `gorm:"size:128" json:"worker_id"`
	TeamRef      *string          `gorm:"size:64" json:"team_ref"`
	StartTime    *time.Time       `json:"start_time"`
	EndTime      *time.Time       `json:"end_time"`
	HoursWorked  decimal.Decimal  `gorm:"type:decimal(12,4);default:0" json:"hours_worked"`
	WageCost     *decimal.Decimal `gorm:"type:decimal(14,4)" json:"wage_cost"`
	RecordKind   RecordKind       `gorm:"size:16;not null;default:worked" json:"record_kind"`

	// AggregatedAt is the engine's watermark: NULL means the row has not
	// been folded into the aggregated store since it last changed.
	AggregatedAt *time.Time `gorm:"index" json:"aggregated_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertProcessedRecord regenerates the canonical row for a source record.
// Any change clears the aggregation watermark so the engine picks the row
// up again on its next pass.
func UpsertProcessedRecord(ctx context.Context, db *gorm.DB, record *ProcessedRecord) error {
	err := db.WithContext(ctx).Create(record).Error
	if err == nil {
		return nil
	}
	if !isDuplicateKeyError(err) {
		return err
	}

	return db.WithContext(ctx).
		Model(&ProcessedRecord{}).
		Where("endpoint_type = ? AND source_id = ?", record.EndpointType, record.SourceId).
		Updates(map[string]interface{}{
			"date":          record.Date,
			"location_ref":  record.LocationRef,
			"worker_id":     record.WorkerId,
			"team_ref":      record.TeamRef,
			"start_time":    record.StartTime,
			"end_time":      record.EndTime,
			"hours_worked":  record.HoursWorked,
			"wage_cost":     record.WageCost,
			"record_kind":   record.RecordKind,
			"aggregated_at": nil,
		}).Error
}

// NextUnaggregatedBatch returns up to limit rows past the id cursor that
// still need aggregation. Batches are bounded by record count, not by date
// span: record density varies too much per day for date-based batches to
// stay inside a compute budget. The cursor lets a failing batch be skipped
// without stalling the loop.
func NextUnaggregatedBatch(ctx context.Context, db *gorm.DB, afterId uint, limit int) ([]ProcessedRecord, error) {
	var records []ProcessedRecord
	err := db.WithContext(ctx).
		Where("aggregated_at IS NULL AND id > ?", afterId).
		Order("id").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ListProcessedRecordsForRange loads the full processed set for a key range.
// The aggregation engine always recomputes from this full set; it never adds
// increments to an existing total.
func ListProcessedRecordsForRange(ctx context.Context, db *gorm.DB, from, to time.Time, locationRefs []string) ([]ProcessedRecord, error) {
	query := db.WithContext(ctx).
		Where("date >= ? AND date <= ?", from, to)
	if len(locationRefs) > 0 {
		query = query.Where("location_ref IN ?", locationRefs)
	}
	var records []ProcessedRecord
	err := query.Order("location_ref, date, id").Find(&records).Error
	return records, err
}

func ListProcessedRecordsForDay(ctx context.Context, db *gorm.DB, locationRef string, date time.Time) ([]ProcessedRecord, error) {
	var records []ProcessedRecord
	err := db.WithContext(ctx).
		Where("location_ref = ? AND date = ?", locationRef, date).
		Order("id").
		Find(&records).Error
	return records, err
}

func MarkRecordsAggregated(ctx context.Context, db *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	return db.WithContext(ctx).
		Model(&ProcessedRecord{}).
		Where("id IN ?", ids).
		Update("aggregated_at", &now).Error
}

func CountProcessedRecords(ctx context.Context, db *gorm.DB, from, to time.Time, locationRefs []string) (int64, error) {
	query := db.WithContext(ctx).
		Model(&ProcessedRecord{}).
		Where("date >= ? AND date <= ?", from, to)
	if len(locationRefs) > 0 {
		query = query.Where("location_ref IN ?", locationRefs)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}
