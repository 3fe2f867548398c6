package partnersync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/horecafocus/backoffice_backend/models"
)

func TestParseRecordDate(t *testing.T) {
	window := DateRange{From: date(2025, 1, 6), To: date(2025, 1, 12)}

	got, err := parseRecordDate(rawEnvelope{Date: "2025-01-08"}, window)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(date(2025, 1, 8)) {
		t.Fatalf("got %s, want 2025-01-08", got)
	}

	// startdate is the fallback key on older endpoints.
	got, err = parseRecordDate(rawEnvelope{StartDate: "2025-01-09"}, window)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(date(2025, 1, 9)) {
		t.Fatalf("got %s, want 2025-01-09", got)
	}

	// Undated records attach to the window start.
	got, err = parseRecordDate(rawEnvelope{}, window)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(window.From) {
		t.Fatalf("got %s, want window start", got)
	}

	if _, err := parseRecordDate(rawEnvelope{Date: "08/01/2025"}, window); err == nil {
		t.Fatal("unparseable date must error")
	}
}

func TestProviderFor(t *testing.T) {
	if providerFor(models.EndpointTypeShifts) != models.PartnerProviderWorkforce {
		t.Fatal("shifts belong to the workforce provider")
	}
	if providerFor(models.EndpointTypeRevenue) != models.PartnerProviderPOS {
		t.Fatal("revenue belongs to the POS provider")
	}
}

func TestEndpointEnabled(t *testing.T) {
	modules := SyncModules{Shifts: true, Revenue: true}

	if !endpointEnabled(modules, models.EndpointTypeShifts) {
		t.Fatal("shifts should be enabled")
	}
	if endpointEnabled(modules, models.EndpointTypeAbsences) {
		t.Fatal("absences should be disabled")
	}
	// Revenue groups ride the revenue module flag.
	if !endpointEnabled(modules, models.EndpointTypeRevenueGroup) {
		t.Fatal("revenue groups should follow the revenue flag")
	}
}

func TestDecodeModules_FallsBackToDefaults(t *testing.T) {
	if got := DecodeModules(nil); got != DefaultModules() {
		t.Fatalf("nil settings: got %+v", got)
	}
	if got := DecodeModules([]byte("{not json")); got != DefaultModules() {
		t.Fatalf("corrupt settings: got %+v", got)
	}
	if got := DecodeModules([]byte(`{"shifts":false,"revenue":true}`)); got.Shifts {
		t.Fatalf("explicit settings ignored: %+v", got)
	}
}

func TestTeamRefFromName(t *testing.T) {
	if got := teamRefFromName("  Cold Kitchen "); got != "cold-kitchen" {
		t.Fatalf("got %q, want cold-kitchen", got)
	}
}

func TestConnectionSyncUpdate_SuccessAdvancesCursor(t *testing.T) {
	now := time.Date(2025, 1, 13, 4, 30, 0, 0, time.UTC)
	stats := NewSyncStats()
	stats.Counts["shifts"] = 12
	stats.Counts["revenue"] = 3

	update := connectionSyncUpdate(now, date(2025, 1, 12), stats, true)

	if got := update["last_sync_at"]; got != now {
		t.Fatalf("last_sync_at: got %v", got)
	}
	if got := update["last_success_sync_at"]; got != now {
		t.Fatalf("last_success_sync_at: got %v", got)
	}

	var cursor connCursorState
	if err := json.Unmarshal(update["cursor_state_json"].([]byte), &cursor); err != nil {
		t.Fatal(err)
	}
	if cursor.SyncedThrough != "2025-01-12" {
		t.Fatalf("synced_through: got %q, want 2025-01-12", cursor.SyncedThrough)
	}
	if cursor.Counts["shifts"] != 12 || cursor.Counts["revenue"] != 3 {
		t.Fatalf("counts: got %+v", cursor.Counts)
	}
}

func TestConnectionSyncUpdate_FailureOnlyStampsAttempt(t *testing.T) {
	now := time.Date(2025, 1, 13, 4, 30, 0, 0, time.UTC)

	update := connectionSyncUpdate(now, date(2025, 1, 12), NewSyncStats(), false)

	if got := update["last_sync_at"]; got != now {
		t.Fatalf("last_sync_at: got %v", got)
	}
	// A failed run must not advance the success marker or the cursor.
	if _, ok := update["last_success_sync_at"]; ok {
		t.Fatal("failed run advanced last_success_sync_at")
	}
	if _, ok := update["cursor_state_json"]; ok {
		t.Fatal("failed run advanced cursor state")
	}
}
