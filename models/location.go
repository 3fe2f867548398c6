package models

import (
	"context"
	"errors"
	"time"

	"github.com/horecafocus/backoffice_backend/config"
	"gorm.io/gorm"
)

// Location is partner-synced master data. Ref is the stable internal
// reference used by every store in the pipeline; ExternalId is whatever
// the workforce partner calls the same venue.
type Location struct {
	ID         uint       `gorm:"primary_key" json:"id"`
	Ref        string     `gorm:"uniqueIndex;size:64;not null" json:"ref"`
	ExternalId string     `gorm:"index;size:128" json:"external_id"`
	Name       string     `gorm:"size:255" json:"name"`
	Timezone   string     `gorm:"size:64" json:"timezone"`
	Active     bool       `gorm:"default:true" json:"active"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Team is partner-synced master data. Division is the venue floor the
// team belongs to (e.g. "Restaurant", "Bar", "Events"); the category it
// rolls up into is derived at build time, not stored.
type Team struct {
	ID          uint       `gorm:"primary_key" json:"id"`
	Ref         string     `gorm:"uniqueIndex:idx_team_loc_ref,priority:2;size:64;not null" json:"ref"`
	LocationRef string     `gorm:"uniqueIndex:idx_team_loc_ref,priority:1;size:64;not null" json:"location_ref"`
	ExternalId  string     `gorm:"index;size:128" json:"external_id"`
	Name        string     `gorm:"size:255" json:"name"`
	Division    string     `gorm:"size:128" json:"division"`
	Active      bool       `gorm:"default:true" json:"active"`
	LastSeenAt  *time.Time `json:"last_seen_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetLocationByRef(ctx context.Context, ref string) (*Location, error) {
	db := config.GetDB()
	var location Location
	err := db.WithContext(ctx).Where("ref = ?", ref).Take(&location).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &location, nil
}

func ListActiveLocations(ctx context.Context) ([]Location, error) {
	db := config.GetDB()
	var locations []Location
	err := db.WithContext(ctx).Where("active = ?", true).Order("ref").Find(&locations).Error
	return locations, err
}

func ListTeamsByLocation(ctx context.Context, locationRef string) ([]Team, error) {
	db := config.GetDB()
	var teams []Team
	err := db.WithContext(ctx).Where("location_ref = ?", locationRef).Order("ref").Find(&teams).Error
	return teams, err
}

// UpsertLocationByExternalId refreshes master data from the partner API.
// Matches on external id first, then on ref, so renames upstream do not
// create duplicate venues.
func UpsertLocationByExternalId(ctx context.Context, db *gorm.DB, input *Location) (*Location, error) {
	var existing Location
	err := db.WithContext(ctx).
		Where("external_id = ? OR ref = ?", input.ExternalId, input.Ref).
		Take(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err := db.WithContext(ctx).Create(input).Error; err != nil {
			return nil, err
		}
		return input, nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"external_id":  input.ExternalId,
		"name":         input.Name,
		"active":       input.Active,
		"last_seen_at": &now,
	}
	if input.Timezone != "" {
		updates["timezone"] = input.Timezone
	}
	if err := db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func UpsertTeamByExternalId(ctx context.Context, db *gorm.DB, input *Team) (*Team, error) {
	var existing Team
	err := db.WithContext(ctx).
		Where("location_ref = ? AND (external_id = ? OR ref = ?)", input.LocationRef, input.ExternalId, input.Ref).
		Take(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err := db.WithContext(ctx).Create(input).Error; err != nil {
			return nil, err
		}
		return input, nil
	}

	now := time.Now()
	if err := db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"external_id":  input.ExternalId,
		"name":         input.Name,
		"division":     input.Division,
		"active":       input.Active,
		"last_seen_at": &now,
	}).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}
