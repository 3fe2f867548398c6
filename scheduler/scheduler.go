package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/partnersync"
	"github.com/horecafocus/backoffice_backend/utils"
	"github.com/horecafocus/backoffice_backend/workflow"
	"gorm.io/gorm"
)

type JobType string

const (
	JobDailySync          JobType = "daily-sync"
	JobHistoricalBackfill JobType = "historical-backfill"
	JobMasterDataRefresh  JobType = "master-data-refresh"
)

var (
	ErrUnknownJob     = errors.New("unknown job type")
	ErrAlreadyRunning = errors.New("job already running")
	ErrJobStopped     = errors.New("job is stopped")
)

const (
	// Wall-clock budget for one run. Well under the Cloud Run request
	// ceiling so a run always gets to return its partial result.
	defaultRunBudget = 25 * time.Minute

	lockTTL = 30 * time.Minute
)

// RunParams narrows what a run covers. Zero values fall back to the job's
// defaults (daily sync: yesterday and today; backfill requires a range).
type RunParams struct {
	Start        time.Time
	End          time.Time
	LocationRefs []string
}

type jobState struct {
	running  bool
	enabled  bool
	lastRun  *time.Time
	lastErr  string
	lastNote string
}

// JobStatus is the externally visible state of one job type.
type JobStatus struct {
	JobType  JobType    `json:"jobType"`
	Enabled  bool       `json:"enabled"`
	Running  bool       `json:"running"`
	LastRun  *time.Time `json:"lastRun,omitempty"`
	LastErr  string     `json:"lastError,omitempty"`
	LastNote string     `json:"lastNote,omitempty"`
}

// Scheduler is the pipeline's scheduling boundary. Constructed once in main
// and shared by reference; all state lives behind its mutex. Re-entrancy is
// guarded twice: the in-process running flag, and a redis lock per job type
// so two instances cannot run the same job concurrently. Even if both
// guards failed, the idempotent-upsert design keeps aggregates consistent —
// the guards exist to avoid wasted work, not to protect correctness.
type Scheduler struct {
	db           *gorm.DB
	orchestrator *workflow.Orchestrator

	mu   sync.Mutex
	jobs map[JobType]*jobState
}

func New(db *gorm.DB, orchestrator *workflow.Orchestrator) *Scheduler {
	return &Scheduler{
		db:           db,
		orchestrator: orchestrator,
		jobs: map[JobType]*jobState{
			JobDailySync:          {enabled: true},
			JobHistoricalBackfill: {enabled: true},
			JobMasterDataRefresh:  {enabled: true},
		},
	}
}

// Start enables a job type so RunNow calls for it are accepted.
func (s *Scheduler) Start(jobType JobType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[jobType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobType)
	}
	state.enabled = true
	return nil
}

// Stop disables a job type. A run already in flight finishes; new RunNow
// calls are rejected until Start.
func (s *Scheduler) Stop(jobType JobType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[jobType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobType)
	}
	state.enabled = false
	return nil
}

// Status reports every job's state.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, jobType := range []JobType{JobDailySync, JobHistoricalBackfill, JobMasterDataRefresh} {
		state := s.jobs[jobType]
		out = append(out, JobStatus{
			JobType:  jobType,
			Enabled:  state.enabled,
			Running:  state.running,
			LastRun:  state.lastRun,
			LastErr:  state.lastErr,
			LastNote: state.lastNote,
		})
	}
	return out
}

// RunNow executes one job synchronously. A second concurrent call for the
// same job type gets ErrAlreadyRunning instead of a second run.
func (s *Scheduler) RunNow(ctx context.Context, jobType JobType, params RunParams) (*workflow.RunResult, error) {
	if err := s.acquire(jobType); err != nil {
		return nil, err
	}
	defer s.release(jobType)

	lock, err := s.obtainLock(ctx, jobType)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(context.Background())
	}

	ctx, cancel := context.WithTimeout(ctx, runBudget())
	defer cancel()
	ctx = utils.SetJobTypeInContext(ctx, string(jobType))

	var result *workflow.RunResult
	switch jobType {
	case JobDailySync:
		result, err = s.runDailySync(ctx, params)
	case JobHistoricalBackfill:
		result, err = s.runBackfill(ctx, params)
	case JobMasterDataRefresh:
		result, err = s.runMasterDataRefresh(ctx, params)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownJob, jobType)
	}

	s.recordOutcome(jobType, result, err)
	return result, err
}

func (s *Scheduler) acquire(jobType JobType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.jobs[jobType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobType)
	}
	if !state.enabled {
		return fmt.Errorf("%w: %s", ErrJobStopped, jobType)
	}
	if state.running {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, jobType)
	}
	state.running = true
	return nil
}

func (s *Scheduler) release(jobType JobType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.jobs[jobType]; ok {
		state.running = false
	}
}

// obtainLock takes the cross-instance redis lock. Without redis (local
// dev) the in-process flag is the only guard, which is fine there.
func (s *Scheduler) obtainLock(ctx context.Context, jobType JobType) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, "scheduler:lock:"+string(jobType), lockTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %s (held elsewhere)", ErrAlreadyRunning, jobType)
		}
		return nil, err
	}
	return lock, nil
}

func (s *Scheduler) recordOutcome(jobType JobType, result *workflow.RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.jobs[jobType]
	if !ok {
		return
	}
	now := time.Now()
	state.lastRun = &now
	state.lastErr = ""
	state.lastNote = ""
	if err != nil {
		state.lastErr = err.Error()
		return
	}
	if result != nil {
		state.lastNote = fmt.Sprintf("processed=%d created=%d updated=%d errors=%d partial=%t",
			result.Processed, result.Created, result.Updated, len(result.Errors), result.Partial)
	}
}

// runDailySync covers yesterday and today: yesterday because late edits to
// closed days are routine, today for the running day.
func (s *Scheduler) runDailySync(ctx context.Context, params RunParams) (*workflow.RunResult, error) {
	start, end := params.Start, params.End
	if start.IsZero() || end.IsZero() {
		now := time.Now()
		end = utils.TruncateToDate(now)
		start = end.AddDate(0, 0, -1)
	}
	result, err := s.orchestrator.Run(ctx, start, end, params.LocationRefs)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Scheduler) runBackfill(ctx context.Context, params RunParams) (*workflow.RunResult, error) {
	if params.Start.IsZero() || params.End.IsZero() {
		return nil, errors.New("historical backfill requires an explicit start and end date")
	}
	result, err := s.orchestrator.Run(ctx, params.Start, params.End, params.LocationRefs)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// runMasterDataRefresh pulls location and team master data for every
// location in scope. Reuses the sync-run bookkeeping so refresh failures
// land in the same error table as ingestion failures.
func (s *Scheduler) runMasterDataRefresh(ctx context.Context, params RunParams) (*workflow.RunResult, error) {
	result := workflow.RunResult{}

	locationRefs := params.LocationRefs
	if len(locationRefs) == 0 {
		locations, err := models.ListActiveLocations(ctx)
		if err != nil {
			return nil, err
		}
		for _, l := range locations {
			locationRefs = append(locationRefs, l.Ref)
		}
	}

	for _, locationRef := range locationRefs {
		if ctx.Err() != nil {
			result.Partial = true
			result.Warnings = append(result.Warnings, "wall-clock budget expired; returning partial result")
			break
		}

		now := time.Now()
		run := models.SyncRun{
			JobType:     string(JobMasterDataRefresh),
			LocationRef: locationRef,
			Status:      models.SyncRunStatusRunning,
			TriggeredBy: models.SyncTriggeredScheduler,
			StartedAt:   &now,
		}
		if err := models.CreateSyncRun(ctx, s.db, &run); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", locationRef, err))
			continue
		}

		count, err := partnersync.RefreshMasterData(ctx, s.db, run.ID, locationRef)
		result.Processed += count

		finishedAt := time.Now()
		status := models.SyncRunStatusSuccess
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", locationRef, err))
			status = models.SyncRunStatusFailed
			if count > 0 {
				status = models.SyncRunStatusPartial
			}
		}
		if uerr := s.db.WithContext(ctx).Model(&run).Updates(map[string]interface{}{
			"status":         status,
			"finished_at":    finishedAt,
			"duration_ms":    finishedAt.Sub(now).Milliseconds(),
			"records_synced": count,
		}).Error; uerr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", locationRef, uerr))
		}
	}

	return &result, nil
}

func runBudget() time.Duration {
	if minutes := utils.IntFromEnv("SCHEDULER_RUN_BUDGET_MINUTES", 0); minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return defaultRunBudget
}
