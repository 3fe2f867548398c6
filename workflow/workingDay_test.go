package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/horecafocus/backoffice_backend/utils"
)

// NOTE: DB-free. The attribution rule is pure; the cached resolver around it
// only adds the TTL read-through, which needs MySQL/redis to test fully.

func TestWorkingDayFor_EarlyMorningBelongsToPreviousDay(t *testing.T) {
	ts := time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC)

	got := WorkingDayFor(ts, 6)
	want := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("02:00 with dayStartHour=6: got %s, want %s", got, want)
	}
}

func TestWorkingDayFor_AfterDayStartBelongsToSameDay(t *testing.T) {
	ts := time.Date(2025, 1, 10, 7, 0, 0, 0, time.UTC)

	got := WorkingDayFor(ts, 6)
	want := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("07:00 with dayStartHour=6: got %s, want %s", got, want)
	}
}

func TestWorkingDayFor_ExactDayStartBoundary(t *testing.T) {
	// 06:00:00 is the first moment of the new working day.
	ts := time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC)
	got := WorkingDayFor(ts, 6)
	want := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("06:00 with dayStartHour=6: got %s, want %s", got, want)
	}

	// One second earlier still belongs to the previous day.
	got = WorkingDayFor(ts.Add(-time.Second), 6)
	want = time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("05:59:59 with dayStartHour=6: got %s, want %s", got, want)
	}
}

func TestWorkingDayFor_MidnightStartIsIdentity(t *testing.T) {
	ts := time.Date(2025, 3, 15, 23, 45, 0, 0, time.UTC)
	got := WorkingDayFor(ts, 0)
	want := utils.TruncateToDate(ts)
	if !got.Equal(want) {
		t.Fatalf("dayStartHour=0 should truncate only: got %s, want %s", got, want)
	}
}

func TestToWorkingDayRange_ClampsEndToEndOfDay(t *testing.T) {
	// Priming the in-process cache keeps the resolver off redis and MySQL.
	r := NewWorkingDayResolver(nil)
	r.store(6)

	start := time.Date(2025, 1, 5, 2, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC)

	from, to, err := r.ToWorkingDayRange(context.Background(), start, end)
	if err != nil {
		t.Fatal(err)
	}

	// 02:00 shifts back across midnight on both ends.
	wantFrom := time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)
	if !from.Equal(wantFrom) {
		t.Fatalf("from: got %s, want %s", from, wantFrom)
	}

	// The end is clamped to the last millisecond of its working day so a
	// range query never leaks into the next business day.
	wantTo := time.Date(2025, 1, 9, 23, 59, 59, 999000000, time.UTC)
	if !to.Equal(wantTo) {
		t.Fatalf("to: got %s, want %s", to, wantTo)
	}
	if !to.Equal(utils.EndOfDay(to)) {
		t.Fatalf("to is not an end-of-day instant: %s", to)
	}
}
