package partnersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/utils"
	"gorm.io/gorm"
)

var (
	ErrNotConnected       = errors.New("partner not connected for location")
	ErrCredentialsMissing = errors.New("partner credentials missing for location")
)

// rawEnvelope is the minimal shape needed to key a raw record. Everything
// else in the payload stays opaque until the normalizer runs.
type rawEnvelope struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	StartDate string `json:"startdate"`
}

var workforceEndpoints = []models.EndpointType{
	models.EndpointTypeShifts,
	models.EndpointTypeTimesheets,
	models.EndpointTypeAbsences,
}

var posEndpoints = []models.EndpointType{
	models.EndpointTypeRevenue,
	models.EndpointTypeRevenueGroup,
}

func providerFor(endpointType models.EndpointType) string {
	for _, t := range posEndpoints {
		if t == endpointType {
			return models.PartnerProviderPOS
		}
	}
	return models.PartnerProviderWorkforce
}

func endpointEnabled(modules SyncModules, t models.EndpointType) bool {
	switch t {
	case models.EndpointTypeShifts:
		return modules.Shifts
	case models.EndpointTypeTimesheets:
		return modules.Timesheets
	case models.EndpointTypeAbsences:
		return modules.Absences
	case models.EndpointTypeRevenue, models.EndpointTypeRevenueGroup:
		return modules.Revenue
	}
	return false
}

// SyncLocationRange ingests every enabled endpoint for one location over
// [start, end]. Ranges wider than an endpoint's window limit are split
// before fetching. One endpoint failing does not stop the others; the
// caller decides partial-vs-failed from stats and the returned error list.
func SyncLocationRange(ctx context.Context, db *gorm.DB, runId uint, locationRef string, start, end time.Time, modules SyncModules) (SyncStats, []error) {
	stats := NewSyncStats()
	var runErrors []error

	clients := map[string]*partnerClient{}
	for _, provider := range []string{models.PartnerProviderWorkforce, models.PartnerProviderPOS} {
		conn, err := models.GetPartnerConnection(ctx, db, locationRef, provider)
		if err != nil {
			runErrors = append(runErrors, err)
			continue
		}
		if conn == nil || conn.Status != models.PartnerStatusConnected {
			// Terminal for this provider's endpoints; recorded once, not retried.
			runErrors = append(runErrors, fmt.Errorf("%w: %s/%s", ErrNotConnected, locationRef, provider))
			continue
		}
		client, err := newPartnerClient(conn)
		if err != nil {
			runErrors = append(runErrors, fmt.Errorf("%w: %s/%s", ErrCredentialsMissing, locationRef, provider))
			continue
		}
		clients[provider] = client
	}

	all := append(append([]models.EndpointType{}, workforceEndpoints...), posEndpoints...)
	for _, endpointType := range all {
		if !endpointEnabled(modules, endpointType) {
			continue
		}
		client := clients[providerFor(endpointType)]
		if client == nil {
			continue
		}

		count, err := syncEndpoint(ctx, db, runId, client, locationRef, endpointType, start, end)
		stats.Counts[string(endpointType)] = count
		if err != nil {
			stats.APIFailures++
			runErrors = append(runErrors, fmt.Errorf("%s: %w", endpointType, err))
			_ = recordSyncError(ctx, db, runId, locationRef, string(endpointType), "", "sync_failed", err.Error(), nil, IsRetryable(err))
		}
	}

	now := time.Now()
	success := len(runErrors) == 0
	for provider := range clients {
		update := connectionSyncUpdate(now, end, stats, success)
		if err := models.TouchPartnerConnection(ctx, db, locationRef, provider, update); err != nil {
			runErrors = append(runErrors, fmt.Errorf("connection update %s/%s: %w", locationRef, provider, err))
		}
	}

	return stats, runErrors
}

// connCursorState is what a connection remembers between runs: the last
// date fully ingested and the per-endpoint counts of the run that got there.
type connCursorState struct {
	SyncedThrough string         `json:"synced_through"`
	Counts        map[string]int `json:"counts,omitempty"`
}

// connectionSyncUpdate builds the column updates stamped on a partner
// connection after a run. Every attempt records last_sync_at; only a clean
// run advances last_success_sync_at and the cursor state.
func connectionSyncUpdate(now, syncedThrough time.Time, stats SyncStats, success bool) map[string]interface{} {
	update := map[string]interface{}{"last_sync_at": now}
	if !success {
		return update
	}

	cursor, _ := json.Marshal(connCursorState{
		SyncedThrough: syncedThrough.Format(utils.DateLayout),
		Counts:        stats.Counts,
	})
	update["last_success_sync_at"] = now
	update["cursor_state_json"] = cursor
	return update
}

// syncEndpoint walks every window x page of one endpoint and upserts the
// fetched records into the raw store. Upserts make re-fetching the same
// window idempotent: the second pass rewrites payloads, it never adds rows.
func syncEndpoint(ctx context.Context, db *gorm.DB, runId uint, client *partnerClient, locationRef string, endpointType models.EndpointType, start, end time.Time) (int, error) {
	endpoint, err := EndpointFor(endpointType)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, window := range SplitWindows(start, end, endpoint.EffectiveWindowDays()) {
		pageToken := ""
		for {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}

			records, nextToken, err := client.FetchPage(ctx, endpoint, window, pageToken)
			if err != nil {
				return total, err
			}

			for _, raw := range records {
				var envelope rawEnvelope
				if err := json.Unmarshal(raw, &envelope); err != nil {
					_ = recordSyncError(ctx, db, runId, locationRef, string(endpointType), "", "invalid_payload", err.Error(), raw, false)
					continue
				}
				sourceId := strings.TrimSpace(envelope.ID)
				if sourceId == "" {
					_ = recordSyncError(ctx, db, runId, locationRef, string(endpointType), "", "missing_id", "record id missing", raw, false)
					continue
				}

				businessDate, err := parseRecordDate(envelope, window)
				if err != nil {
					_ = recordSyncError(ctx, db, runId, locationRef, string(endpointType), sourceId, "invalid_date", err.Error(), raw, false)
					continue
				}

				record := models.RawRecord{
					SourceId:     sourceId,
					BusinessDate: businessDate,
					LocationRef:  locationRef,
					EndpointType: endpointType,
					PayloadJSON:  raw,
				}
				if _, err := models.UpsertRawRecord(ctx, db, &record); err != nil {
					_ = recordSyncError(ctx, db, runId, locationRef, string(endpointType), sourceId, "store_failed", err.Error(), raw, true)
					continue
				}
				total++
			}

			if nextToken == "" {
				break
			}
			pageToken = nextToken
		}
	}
	return total, nil
}

func parseRecordDate(envelope rawEnvelope, window DateRange) (time.Time, error) {
	value := strings.TrimSpace(envelope.Date)
	if value == "" {
		value = strings.TrimSpace(envelope.StartDate)
	}
	if value == "" {
		// Undated records belong to the window start; the working-day
		// resolver corrects attribution at processing time.
		return window.From, nil
	}
	d, err := utils.ParseDate(value)
	if err != nil {
		return time.Time{}, err
	}
	return utils.TruncateToDate(d), nil
}

// RefreshMasterData pulls locations and teams from the workforce partner
// and upserts them by external id.
func RefreshMasterData(ctx context.Context, db *gorm.DB, runId uint, locationRef string) (int, error) {
	conn, err := models.GetPartnerConnection(ctx, db, locationRef, models.PartnerProviderWorkforce)
	if err != nil {
		return 0, err
	}
	if conn == nil || conn.Status != models.PartnerStatusConnected {
		return 0, fmt.Errorf("%w: %s/%s", ErrNotConnected, locationRef, models.PartnerProviderWorkforce)
	}
	client, err := newPartnerClient(conn)
	if err != nil {
		return 0, err
	}

	total := 0

	locations, err := client.fetchAll(ctx, "/api/v1/locations")
	if err != nil {
		return total, err
	}
	for _, raw := range locations {
		var payload MasterLocationPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			_ = recordSyncError(ctx, db, runId, locationRef, "location", "", "invalid_payload", err.Error(), raw, false)
			continue
		}
		input := models.Location{
			Ref:        locationRef,
			ExternalId: strings.TrimSpace(payload.ID),
			Name:       strings.TrimSpace(payload.Name),
			Timezone:   strings.TrimSpace(payload.Timezone),
			Active:     utils.DereferencePtr(payload.Active, true),
		}
		if _, err := models.UpsertLocationByExternalId(ctx, db, &input); err != nil {
			_ = recordSyncError(ctx, db, runId, locationRef, "location", payload.ID, "store_failed", err.Error(), raw, true)
			continue
		}
		total++
	}

	teams, err := client.fetchAll(ctx, "/api/v1/teams")
	if err != nil {
		return total, err
	}
	for _, raw := range teams {
		var payload MasterTeamPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			_ = recordSyncError(ctx, db, runId, locationRef, "team", "", "invalid_payload", err.Error(), raw, false)
			continue
		}
		name := strings.TrimSpace(payload.Name)
		if name == "" {
			_ = recordSyncError(ctx, db, runId, locationRef, "team", payload.ID, "missing_name", "team name missing", raw, false)
			continue
		}
		input := models.Team{
			Ref:         teamRefFromName(name),
			LocationRef: locationRef,
			ExternalId:  strings.TrimSpace(payload.ID),
			Name:        name,
			Division:    strings.TrimSpace(payload.Department),
			Active:      utils.DereferencePtr(payload.Active, true),
		}
		if _, err := models.UpsertTeamByExternalId(ctx, db, &input); err != nil {
			_ = recordSyncError(ctx, db, runId, locationRef, "team", payload.ID, "store_failed", err.Error(), raw, true)
			continue
		}
		total++
	}

	return total, nil
}

func teamRefFromName(name string) string {
	ref := strings.ToLower(strings.TrimSpace(name))
	ref = strings.ReplaceAll(ref, " ", "-")
	return ref
}

// fetchAll pages through an unwindowed master-data endpoint.
func (c *partnerClient) fetchAll(ctx context.Context, path string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	pageToken := ""
	for {
		params := make(map[string][]string)
		if pageToken != "" {
			params["cursor"] = []string{pageToken}
		}
		params["limit"] = []string{"200"}

		resp, err := c.getList(ctx, path, params)
		if err != nil {
			return out, err
		}
		out = append(out, resp.Records()...)
		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			return out, nil
		}
		pageToken = resp.NextCursor
	}
}

// ProcessSyncRun executes one queued sync run end to end: ingestion of all
// enabled endpoints over the run's range, then run-state bookkeeping.
// Finished runs are skipped so duplicate Pub/Sub deliveries are harmless.
func ProcessSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 || payload.LocationRef == "" {
		return errors.New("invalid payload")
	}

	ctx = utils.SetLocationRefInContext(ctx, payload.LocationRef)
	db := config.GetDB().WithContext(ctx)

	var run models.SyncRun
	if err := db.Where("id = ?", payload.RunId).Take(&run).Error; err != nil {
		return err
	}

	if run.Status == models.SyncRunStatusSuccess || run.Status == models.SyncRunStatusFailed || run.Status == models.SyncRunStatusPartial {
		return nil
	}

	start, err := utils.ParseDate(payload.RangeStart)
	if err != nil {
		return fmt.Errorf("invalid range start: %w", err)
	}
	end, err := utils.ParseDate(payload.RangeEnd)
	if err != nil {
		return fmt.Errorf("invalid range end: %w", err)
	}
	if end.Before(start) {
		return ErrInvalidRange
	}

	now := time.Now()
	startedAt := run.StartedAt
	if startedAt == nil {
		startedAt = &now
	}
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return err
	}

	modules := DefaultModules()
	stats, runErrors := SyncLocationRange(ctx, db, run.ID, payload.LocationRef, start, end, modules)

	finishedAt := time.Now()
	durationMs := finishedAt.Sub(*startedAt).Milliseconds()
	status := models.SyncRunStatusSuccess
	if len(runErrors) > 0 && stats.Total() == 0 {
		status = models.SyncRunStatusFailed
	} else if len(runErrors) > 0 {
		status = models.SyncRunStatusPartial
	}

	statsJSON, _ := json.Marshal(stats)
	return db.Model(&run).Updates(map[string]interface{}{
		"status":         status,
		"finished_at":    finishedAt,
		"duration_ms":    durationMs,
		"records_synced": stats.Total(),
		"error_count":    len(runErrors),
		"stats_json":     statsJSON,
	}).Error
}

func recordSyncError(ctx context.Context, db *gorm.DB, runId uint, locationRef string, entityType string, externalId string, code string, message string, payload []byte, retryable bool) error {
	errRec := models.SyncRunError{
		SyncRunId:   runId,
		LocationRef: locationRef,
		EntityType:  entityType,
		ExternalId:  externalId,
		ErrorCode:   code,
		Message:     message,
		PayloadJSON: payload,
		Retryable:   retryable,
	}
	return models.CreateSyncRunError(ctx, db, &errRec)
}
