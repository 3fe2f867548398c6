package workflow

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

const (
	dayStartHourCacheKey = "settings:day_start_hour"
	dayStartHourCacheTTL = 5 * time.Minute
)

// WorkingDayResolver converts wall-clock timestamps into the business day
// they belong to. A venue's day does not start at midnight: with
// dayStartHour=6, a shift ending 02:00 belongs to the previous day.
//
// The day-start hour lives in the settings table; reads go through a
// 5-minute TTL cache (redis when available, in-process otherwise) so the
// resolver does not cost a DB round trip per record. Call Invalidate after
// changing the setting.
type WorkingDayResolver struct {
	db *gorm.DB

	mu        sync.Mutex
	hour      int
	expiresAt time.Time
}

func NewWorkingDayResolver(db *gorm.DB) *WorkingDayResolver {
	return &WorkingDayResolver{db: db}
}

// WorkingDayFor is the pure attribution rule: shift the timestamp back by
// the day-start hour, then take the calendar date.
func WorkingDayFor(ts time.Time, dayStartHour int) time.Time {
	shifted := ts.Add(-time.Duration(dayStartHour) * time.Hour)
	return utils.TruncateToDate(shifted)
}

func (r *WorkingDayResolver) ToWorkingDay(ctx context.Context, ts time.Time) (time.Time, error) {
	hour, err := r.dayStartHour(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return WorkingDayFor(ts, hour), nil
}

// ToWorkingDayRange shifts both ends and clamps the end to the last
// millisecond of its day, so a range query never leaks into the next
// business day.
func (r *WorkingDayResolver) ToWorkingDayRange(ctx context.Context, start, end time.Time) (time.Time, time.Time, error) {
	hour, err := r.dayStartHour(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from := WorkingDayFor(start, hour)
	to := utils.EndOfDay(WorkingDayFor(end, hour))
	return from, to, nil
}

func (r *WorkingDayResolver) dayStartHour(ctx context.Context) (int, error) {
	r.mu.Lock()
	if time.Now().Before(r.expiresAt) {
		hour := r.hour
		r.mu.Unlock()
		return hour, nil
	}
	r.mu.Unlock()

	if cached, ok, err := config.GetRedisValue(dayStartHourCacheKey); err == nil && ok {
		if hour, err := strconv.Atoi(cached); err == nil && hour >= 0 && hour <= 23 {
			r.store(hour)
			return hour, nil
		}
	}

	setting, err := models.GetPipelineSetting(ctx, r.db)
	if err != nil {
		return 0, err
	}
	_ = config.SetRedisValue(dayStartHourCacheKey, strconv.Itoa(setting.DayStartHour), dayStartHourCacheTTL)
	r.store(setting.DayStartHour)
	return setting.DayStartHour, nil
}

func (r *WorkingDayResolver) store(hour int) {
	r.mu.Lock()
	r.hour = hour
	r.expiresAt = time.Now().Add(dayStartHourCacheTTL)
	r.mu.Unlock()
}

// Invalidate drops both cache layers. Must be called after the setting
// changes; the TTL alone would serve the stale hour for up to 5 minutes.
func (r *WorkingDayResolver) Invalidate() {
	_ = config.RemoveRedisKey(dayStartHourCacheKey)
	r.mu.Lock()
	r.expiresAt = time.Time{}
	r.mu.Unlock()
}
