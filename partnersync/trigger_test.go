package partnersync

import (
	"testing"
	"time"

	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/utils"
)

func TestNewQueuedSyncRun(t *testing.T) {
	start := time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	end := time.Date(2025, 3, 5, 9, 15, 0, 0, time.UTC)

	run := newQueuedSyncRun("loc-1", start, end)

	if run.Status != models.SyncRunStatusQueued {
		t.Fatalf("status: got %q, want queued", run.Status)
	}
	if run.TriggeredBy != models.SyncTriggeredManual {
		t.Fatalf("triggered_by: got %q, want manual", run.TriggeredBy)
	}
	if run.JobType != "partner-sync" {
		t.Fatalf("job_type: got %q", run.JobType)
	}
	// Times of day must not leak into the run range.
	if !run.RangeStart.Equal(date(2025, 3, 1)) {
		t.Fatalf("range start: got %s, want 2025-03-01", run.RangeStart)
	}
	if !run.RangeEnd.Equal(date(2025, 3, 5)) {
		t.Fatalf("range end: got %s, want 2025-03-05", run.RangeEnd)
	}
}

func TestSyncRunPayload_RoundTripsThroughProcessing(t *testing.T) {
	run := newQueuedSyncRun("loc-1", date(2025, 3, 1), date(2025, 3, 5))
	run.ID = 42

	payload := syncRunPayload(&run)

	if payload.RunId != 42 {
		t.Fatalf("run id: got %d, want 42", payload.RunId)
	}
	if payload.LocationRef != "loc-1" {
		t.Fatalf("location ref: got %q", payload.LocationRef)
	}

	// The push handler parses these dates back before running; the payload
	// must survive that round trip unchanged.
	start, err := utils.ParseDate(payload.RangeStart)
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(*run.RangeStart) {
		t.Fatalf("range start round trip: got %s, want %s", start, run.RangeStart)
	}
	end, err := utils.ParseDate(payload.RangeEnd)
	if err != nil {
		t.Fatal(err)
	}
	if !end.Equal(*run.RangeEnd) {
		t.Fatalf("range end round trip: got %s, want %s", end, run.RangeEnd)
	}
}
