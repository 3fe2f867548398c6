package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/partnersync"
	"github.com/horecafocus/backoffice_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Processor unpacks source-shaped raw records into canonical processed
// records. Each endpoint type is a tag with its own normalization; the
// payload is never pattern-matched outside this file.
type Processor struct {
	db       *gorm.DB
	resolver *WorkingDayResolver
}

func NewProcessor(db *gorm.DB, resolver *WorkingDayResolver) *Processor {
	return &Processor{db: db, resolver: resolver}
}

var processableEndpoints = []models.EndpointType{
	models.EndpointTypeShifts,
	models.EndpointTypeTimesheets,
	models.EndpointTypeAbsences,
}

// ProcessAll normalizes every raw workforce record into the processed
// store, paging to bound memory. Returns processed count and per-record
// errors (the run continues past individual failures).
func (p *Processor) ProcessAll(ctx context.Context) (int, []error) {
	total := 0
	var errs []error

	hour, err := p.resolver.dayStartHour(ctx)
	if err != nil {
		return 0, []error{err}
	}

	for _, endpointType := range processableEndpoints {
		afterId := uint(0)
		for {
			page, err := models.ListRawRecordsPage(ctx, p.db, endpointType, afterId, dedupPageSize)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", endpointType, err))
				break
			}
			if len(page) == 0 {
				break
			}
			for _, raw := range page {
				afterId = raw.ID
				record, err := NormalizeRawRecord(raw, hour)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s %s: %w", endpointType, raw.SourceId, err))
					continue
				}
				if record == nil {
					continue
				}
				if err := models.UpsertProcessedRecord(ctx, p.db, record); err != nil {
					errs = append(errs, fmt.Errorf("%s %s: %w", endpointType, raw.SourceId, err))
					continue
				}
				total++
			}
			if len(page) < dedupPageSize {
				break
			}
		}
	}

	if len(errs) > 0 {
		config.LogWarn(config.GetLogger(), "workflow", "ProcessAll", "normalize",
			fmt.Sprintf("%d records failed normalization", len(errs)))
	}
	return total, errs
}

// NormalizeRawRecord is the pure per-tag normalization. Returns nil for
// record kinds that carry nothing to process (e.g. cancelled shifts).
func NormalizeRawRecord(raw models.RawRecord, dayStartHour int) (*models.ProcessedRecord, error) {
	switch raw.EndpointType {
	case models.EndpointTypeShifts, models.EndpointTypeTimesheets:
		var payload partnersync.ShiftPayload
		if err := json.Unmarshal(raw.PayloadJSON, &payload); err != nil {
			return nil, err
		}
		return normalizeShift(raw, payload, dayStartHour)
	case models.EndpointTypeAbsences:
		var payload partnersync.AbsencePayload
		if err := json.Unmarshal(raw.PayloadJSON, &payload); err != nil {
			return nil, err
		}
		return normalizeAbsence(raw, payload)
	default:
		// Revenue endpoints feed aggregation directly from the raw store.
		return nil, nil
	}
}

func normalizeShift(raw models.RawRecord, payload partnersync.ShiftPayload, dayStartHour int) (*models.ProcessedRecord, error) {
	if strings.EqualFold(payload.Status, "canceled") || strings.EqualFold(payload.Status, "cancelled") {
		return nil, nil
	}

	hours := firstDecimal(payload.Hours, payload.Total)
	if hours.IsNegative() {
		return nil, fmt.Errorf("negative hours %s", hours)
	}

	startTime := parseTimestamp(payload.StartTime, payload.StartsAt)
	endTime := parseTimestamp(payload.EndTime, payload.EndsAt)

	// Hours missing but both times present: derive duration.
	if hours.IsZero() && startTime != nil && endTime != nil && endTime.After(*startTime) {
		hours = decimal.NewFromFloat(endTime.Sub(*startTime).Hours()).Round(4)
	}

	date := raw.BusinessDate
	if startTime != nil {
		// A shift starting 01:30 belongs to the previous working day.
		date = WorkingDayFor(*startTime, dayStartHour)
	}

	kind := models.RecordKindWorked
	if payload.Absence {
		kind = models.RecordKindLeave
	}

	record := &models.ProcessedRecord{
		SourceId:     raw.SourceId,
		EndpointType: raw.EndpointType,
		Date:         date,
		LocationRef:  raw.LocationRef,
		WorkerId:     nonEmptyPtr(payload.EmployeeId, payload.UserId),
		TeamRef:      teamRefPtr(payload.TeamId, payload.Department),
		StartTime:    startTime,
		EndTime:      endTime,
		HoursWorked:  hours,
		WageCost:     wageCostPtr(payload.WageCost, payload.Wage),
		RecordKind:   kind,
	}
	return record, nil
}

func normalizeAbsence(raw models.RawRecord, payload partnersync.AbsencePayload) (*models.ProcessedRecord, error) {
	hours := firstDecimal(payload.Hours)
	if hours.IsNegative() {
		return nil, fmt.Errorf("negative hours %s", hours)
	}

	record := &models.ProcessedRecord{
		SourceId:     raw.SourceId,
		EndpointType: raw.EndpointType,
		Date:         raw.BusinessDate,
		LocationRef:  raw.LocationRef,
		WorkerId:     nonEmptyPtr(payload.EmployeeId, payload.UserId),
		TeamRef:      teamRefPtr(payload.AbsenceType, ""),
		HoursWorked:  hours,
		RecordKind:   models.RecordKindLeave,
	}
	return record, nil
}

// firstDecimal returns the first parseable, non-zero candidate; zero when
// none parses.
func firstDecimal(candidates ...json.Number) decimal.Decimal {
	for _, c := range candidates {
		s := strings.TrimSpace(c.String())
		if s == "" {
			continue
		}
		if d, err := decimal.NewFromString(s); err == nil && !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

// wageCostPtr: unknown or negative wages are stored as NULL, never as a
// negative cost.
func wageCostPtr(candidates ...json.Number) *decimal.Decimal {
	d := firstDecimal(candidates...)
	if d.IsZero() || d.IsNegative() {
		return nil
	}
	return &d
}

func nonEmptyPtr(candidates ...string) *string {
	for _, c := range candidates {
		if v := strings.TrimSpace(c); v != "" {
			return &v
		}
	}
	return nil
}

func teamRefPtr(candidates ...string) *string {
	for _, c := range candidates {
		if v := strings.TrimSpace(c); v != "" {
			ref := strings.ToLower(strings.ReplaceAll(v, " ", "-"))
			return &ref
		}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func parseTimestamp(candidates ...string) *time.Time {
	for _, c := range candidates {
		v := strings.TrimSpace(c)
		if v == "" {
			continue
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return &t
			}
		}
		if d, err := utils.ParseDate(v); err == nil {
			return &d
		}
	}
	return nil
}
