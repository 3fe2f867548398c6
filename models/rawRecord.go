package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type EndpointType string

const (
	EndpointTypeShifts       EndpointType = "shifts"
	EndpointTypeTimesheets   EndpointType = "timesheets"
	EndpointTypeAbsences     EndpointType = "absences"
	EndpointTypeRevenue      EndpointType = "revenue"
	EndpointTypeRevenueGroup EndpointType = "revenue_groups"
)

// RawRecord holds one source-shaped record exactly as the partner API
// returned it. Rows are immutable after ingestion; the only mutation is
// deletion when deduplication picks another row as the canonical copy.
//
// Natural key: (endpoint_type, source_id, business_date, location_ref).
// Repeated fetches of the same window upsert against that key, so syncing
// a window twice never duplicates rows.
type RawRecord struct {
	ID           uint         `gorm:"primary_key" json:"id"`
	SourceId     string       `gorm:"uniqueIndex:idx_raw_natural,priority:2;size:128;not null" json:"source_id"`
	BusinessDate time.Time    `gorm:"uniqueIndex:idx_raw_natural,priority:3;index;not null" json:"business_date"`
	LocationRef  string       `gorm:"uniqueIndex:idx_raw_natural,priority:4;index;size:64;not null" json:"location_ref"`
	EndpointType EndpointType `gorm:"uniqueIndex:idx_raw_natural,priority:1;size:32;not null" json:"endpoint_type"`
	PayloadJSON  []byte       `gorm:"type:json" json:"payload"`
	IngestedAt   time.Time    `gorm:"autoCreateTime" json:"ingested_at"`
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// UpsertRawRecord writes one fetched page item. Insert first; on a natural-key
// collision the payload of the existing row is replaced in place, which keeps
// the row id (and anything downstream keyed on it) stable.
func UpsertRawRecord(ctx context.Context, db *gorm.DB, record *RawRecord) (created bool, err error) {
	err = db.WithContext(ctx).Create(record).Error
	if err == nil {
		return true, nil
	}
	if !isDuplicateKeyError(err) {
		return false, err
	}

	err = db.WithContext(ctx).
		Model(&RawRecord{}).
		Where("endpoint_type = ? AND source_id = ? AND business_date = ? AND location_ref = ?",
			record.EndpointType, record.SourceId, record.BusinessDate, record.LocationRef).
		Updates(map[string]interface{}{
			"payload_json": record.PayloadJSON,
			"ingested_at":  time.Now(),
		}).Error
	return false, err
}

// ListRawRecordsPage pages through raw rows for one endpoint ordered by id,
// for bounded-memory consumers (dedup, processor).
func ListRawRecordsPage(ctx context.Context, db *gorm.DB, endpointType EndpointType, afterId uint, limit int) ([]RawRecord, error) {
	var records []RawRecord
	err := db.WithContext(ctx).
		Where("endpoint_type = ? AND id > ?", endpointType, afterId).
		Order("id").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func CountRawRecords(ctx context.Context, db *gorm.DB, endpointType EndpointType, from, to time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&RawRecord{}).
		Where("endpoint_type = ? AND business_date >= ? AND business_date <= ?", endpointType, from, to).
		Count(&count).Error
	return count, err
}
