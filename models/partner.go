package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	PartnerProviderPOS       = "pos"
	PartnerProviderWorkforce = "workforce"
)

const (
	PartnerStatusConnected    = "connected"
	PartnerStatusDisconnected = "disconnected"
	PartnerStatusError        = "error"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual    = "manual"
	SyncTriggeredScheduler = "scheduler"
	SyncTriggeredSystem    = "system"
)

// PartnerConnection holds the opaque credential object for one
// (location, provider) pair: base URL plus secret reference. Credentials
// are looked up per location; a missing or disconnected row is a terminal
// error for any sync touching that location.
type PartnerConnection struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	LocationRef       string     `gorm:"uniqueIndex:idx_partner_conn,priority:1;size:64;not null" json:"location_ref"`
	Provider          string     `gorm:"uniqueIndex:idx_partner_conn,priority:2;size:32;not null" json:"provider"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	BaseURL           string     `gorm:"size:255" json:"base_url"`
	AuthSecretRef     string     `gorm:"type:text" json:"auth_secret_ref"`
	SettingsJSON      []byte     `gorm:"type:json" json:"settings"`
	CursorStateJSON   []byte     `gorm:"type:json" json:"cursor_state"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRun tracks one pipeline run through its state machine:
// queued -> running -> success | partial | failed.
type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	JobType       string     `gorm:"index;size:32;not null" json:"job_type"`
	LocationRef   string     `gorm:"index;size:64" json:"location_ref"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	RangeStart    *time.Time `json:"range_start"`
	RangeEnd      *time.Time `json:"range_end"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	RecordsSynced int        `json:"records_synced"`
	ErrorCount    int        `json:"error_count"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRunError is one recorded per-entity failure inside a run. Retryable
// marks transient upstream errors; terminal validation failures are stored
// with Retryable=false and never retried.
type SyncRunError struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	SyncRunId   uint      `gorm:"index;not null" json:"sync_run_id"`
	LocationRef string    `gorm:"index;size:64" json:"location_ref"`
	EntityType  string    `gorm:"size:50" json:"entity_type"`
	ExternalId  string    `gorm:"size:128" json:"external_id"`
	ErrorCode   string    `gorm:"size:64" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Retryable   bool      `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func GetPartnerConnection(ctx context.Context, db *gorm.DB, locationRef, provider string) (*PartnerConnection, error) {
	var conn PartnerConnection
	err := db.WithContext(ctx).
		Where("location_ref = ? AND provider = ?", locationRef, provider).
		Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// TouchPartnerConnection applies post-run bookkeeping columns to one
// (location, provider) connection row.
func TouchPartnerConnection(ctx context.Context, db *gorm.DB, locationRef, provider string, update map[string]interface{}) error {
	return db.WithContext(ctx).
		Model(&PartnerConnection{}).
		Where("location_ref = ? AND provider = ?", locationRef, provider).
		Updates(update).Error
}

func CreateSyncRun(ctx context.Context, db *gorm.DB, run *SyncRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func CreateSyncRunError(ctx context.Context, db *gorm.DB, runErr *SyncRunError) error {
	return db.WithContext(ctx).Create(runErr).Error
}
