package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PipelineSetting is the single process-wide configuration record.
// DayStartHour defines when a venue's working day begins (0-23): a shift
// ending at 02:00 belongs to the previous business day when the venue's
// day starts at 06:00.
type PipelineSetting struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	DayStartHour int       `gorm:"not null;default:6" json:"day_start_hour"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const DefaultDayStartHour = 6

// GetPipelineSetting returns the singleton settings row, creating it with
// defaults on first use.
func GetPipelineSetting(ctx context.Context, db *gorm.DB) (*PipelineSetting, error) {
	var setting PipelineSetting
	err := db.WithContext(ctx).Order("id").First(&setting).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		setting = PipelineSetting{DayStartHour: DefaultDayStartHour}
		if err := db.WithContext(ctx).Create(&setting).Error; err != nil {
			return nil, err
		}
	}
	return &setting, nil
}

func UpdateDayStartHour(ctx context.Context, db *gorm.DB, hour int) error {
	if hour < 0 || hour > 23 {
		return errors.New("day start hour must be between 0 and 23")
	}
	setting, err := GetPipelineSetting(ctx, db)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(setting).Update("day_start_hour", hour).Error
}
