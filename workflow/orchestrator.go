package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/partnersync"
	"github.com/horecafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

// Orchestrator drives the full pipeline over a date range:
// sync -> dedup -> process -> aggregate -> hierarchy, location by location.
// Single-threaded by design; batches inside each stage bound memory and the
// inter-batch throttle bounds store pressure.
type Orchestrator struct {
	db        *gorm.DB
	resolver  *WorkingDayResolver
	processor *Processor
	engine    *AggregationEngine
	hierarchy *HierarchyBuilder
}

func NewOrchestrator(db *gorm.DB, resolver *WorkingDayResolver) *Orchestrator {
	return &Orchestrator{
		db:        db,
		resolver:  resolver,
		processor: NewProcessor(db, resolver),
		engine:    NewAggregationEngine(db, resolver),
		hierarchy: NewHierarchyBuilder(db),
	}
}

// RunResult reports what a run accomplished. Errors are per-item failures
// the run continued past; Warnings carry verification discrepancies and
// budget expiry, neither of which fails the run.
type RunResult struct {
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Partial   bool     `json:"partial"`
}

func (r *RunResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

var allEndpoints = []models.EndpointType{
	models.EndpointTypeShifts,
	models.EndpointTypeTimesheets,
	models.EndpointTypeAbsences,
	models.EndpointTypeRevenue,
	models.EndpointTypeRevenueGroup,
}

// Run executes the pipeline for [start, end] over the given locations (all
// active locations when empty). Per-item errors are collected and the run
// continues; only store-level failures that make continuing pointless abort
// early. A context deadline is the wall-clock budget: on expiry the result
// so far is returned with Partial set, never an error or a panic.
func (o *Orchestrator) Run(ctx context.Context, start, end time.Time, locationRefs []string) (RunResult, error) {
	result := RunResult{}

	start = utils.TruncateToDate(start)
	end = utils.TruncateToDate(end)
	if end.Before(start) {
		return result, fmt.Errorf("invalid range: end %s before start %s", end.Format(utils.DateLayout), start.Format(utils.DateLayout))
	}

	if len(locationRefs) == 0 {
		locations, err := models.ListActiveLocations(ctx)
		if err != nil {
			return result, err
		}
		for _, l := range locations {
			locationRefs = append(locationRefs, l.Ref)
		}
	}

	// Stage 1: sync every location's range into the raw store.
	for _, locationRef := range locationRefs {
		if o.expired(ctx, &result) {
			return result, nil
		}
		o.syncLocation(ctx, locationRef, start, end, &result)

		select {
		case <-ctx.Done():
			result.Partial = true
			result.Warnings = append(result.Warnings, "wall-clock budget expired during sync")
			return result, nil
		case <-time.After(interBatchDelay):
		}
	}

	// Stage 2: collapse duplicate raw rows before normalization.
	for _, endpointType := range allEndpoints {
		if o.expired(ctx, &result) {
			return result, nil
		}
		if _, err := DedupeRawRecords(ctx, o.db, endpointType); err != nil {
			result.addError("dedup %s: %v", endpointType, err)
		}
	}

	// Stage 3: normalize raw records into the processed store.
	if o.expired(ctx, &result) {
		return result, nil
	}
	processed, errs := o.processor.ProcessAll(ctx)
	result.Processed = processed
	for _, err := range errs {
		result.addError("process: %v", err)
	}

	// Stage 4: drain the aggregation backlog.
	if o.expired(ctx, &result) {
		return result, nil
	}
	aggResult, err := o.engine.Aggregate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			result.Partial = true
			result.Warnings = append(result.Warnings, "wall-clock budget expired during aggregation")
			return result, nil
		}
		return result, err
	}
	result.Errors = append(result.Errors, aggResult.Errors...)

	// Stage 5: rebuild hierarchies for every touched (location, day).
	for _, locationRef := range locationRefs {
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			if o.expired(ctx, &result) {
				return result, nil
			}
			if _, err := o.hierarchy.BuildHierarchy(ctx, locationRef, day); err != nil {
				result.addError("hierarchy %s %s: %v", locationRef, day.Format(utils.DateLayout), err)
			}
		}
	}

	o.verify(ctx, start, end, locationRefs, &result)
	return result, nil
}

// syncLocation runs one location's ingestion under a tracked sync run.
// Created/updated are derived from raw-store counts around the sync, since
// the idempotent upserts themselves do not distinguish the two in bulk.
func (o *Orchestrator) syncLocation(ctx context.Context, locationRef string, start, end time.Time, result *RunResult) {
	before, err := o.countRawInRange(ctx, start, end)
	if err != nil {
		result.addError("sync %s: %v", locationRef, err)
		return
	}

	jobType, ok := utils.GetJobTypeFromContext(ctx)
	if !ok {
		jobType = "daily-sync"
	}

	now := time.Now()
	run := models.SyncRun{
		JobType:     jobType,
		LocationRef: locationRef,
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: models.SyncTriggeredSystem,
		RangeStart:  &start,
		RangeEnd:    &end,
		StartedAt:   &now,
	}
	if err := models.CreateSyncRun(ctx, o.db, &run); err != nil {
		result.addError("sync %s: %v", locationRef, err)
		return
	}

	stats, syncErrors := partnersync.SyncLocationRange(ctx, o.db, run.ID, locationRef, start, end, partnersync.DefaultModules())
	for _, err := range syncErrors {
		result.addError("sync %s: %v", locationRef, err)
	}

	after, err := o.countRawInRange(ctx, start, end)
	if err == nil {
		created := int(after - before)
		if created < 0 {
			created = 0
		}
		updated := stats.Total() - created
		if updated < 0 {
			updated = 0
		}
		result.Created += created
		result.Updated += updated
	}

	finishedAt := time.Now()
	status := models.SyncRunStatusSuccess
	if len(syncErrors) > 0 && stats.Total() == 0 {
		status = models.SyncRunStatusFailed
	} else if len(syncErrors) > 0 {
		status = models.SyncRunStatusPartial
	}
	statsJSON, _ := json.Marshal(stats)
	if err := o.db.WithContext(ctx).Model(&run).Updates(map[string]interface{}{
		"status":         status,
		"finished_at":    finishedAt,
		"duration_ms":    finishedAt.Sub(now).Milliseconds(),
		"records_synced": stats.Total(),
		"error_count":    len(syncErrors),
		"stats_json":     statsJSON,
	}).Error; err != nil {
		result.addError("sync %s: %v", locationRef, err)
	}
}

func (o *Orchestrator) countRawInRange(ctx context.Context, start, end time.Time) (int64, error) {
	var total int64
	for _, endpointType := range allEndpoints {
		count, err := models.CountRawRecords(ctx, o.db, endpointType, start, end)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// verify issues a post-run count against the processed store. A non-empty
// unaggregated remainder means some batch failed and its records are still
// waiting; that is a warning, not a failure — the next run picks them up.
func (o *Orchestrator) verify(ctx context.Context, start, end time.Time, locationRefs []string, result *RunResult) {
	expected, err := models.CountProcessedRecords(ctx, o.db, start, end, locationRefs)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("verification count failed: %v", err))
		return
	}

	var remaining int64
	err = o.db.WithContext(ctx).
		Model(&models.ProcessedRecord{}).
		Where("aggregated_at IS NULL AND date >= ? AND date <= ?", start, end).
		Count(&remaining).Error
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("verification count failed: %v", err))
		return
	}

	if remaining > 0 {
		warning := fmt.Sprintf("verification: %d of %d processed records in range remain unaggregated", remaining, expected)
		result.Warnings = append(result.Warnings, warning)
		config.LogWarn(config.GetLogger(), "workflow", "verify",
			fmt.Sprintf("%s..%s", start.Format(utils.DateLayout), end.Format(utils.DateLayout)), warning)
	}
}

func (o *Orchestrator) expired(ctx context.Context, result *RunResult) bool {
	if ctx.Err() == nil {
		return false
	}
	result.Partial = true
	result.Warnings = append(result.Warnings, "wall-clock budget expired; returning partial result")
	return true
}
