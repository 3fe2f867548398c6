package workflow

import (
	"testing"
	"time"
)

func dedupFixture() []dedupCandidate {
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	return []dedupCandidate{
		{ID: 1, Key: "a", CreatedAt: base},
		{ID: 2, Key: "a", CreatedAt: base.Add(time.Hour)},
		{ID: 3, Key: "a", CreatedAt: base.Add(2 * time.Hour)},
		{ID: 4, Key: "b", CreatedAt: base},
		{ID: 5, Key: "c", CreatedAt: base},
		{ID: 6, Key: "c", CreatedAt: base}, // exact timestamp tie with 5
	}
}

func TestSelectLosers_KeepNewest(t *testing.T) {
	losers := selectLosers(dedupFixture(), KeepNewest)

	// Key "a": newest is id 3, lose 1 and 2. Key "b": singleton, kept.
	// Key "c": timestamp tie, higher id wins under keep-newest, lose 5.
	want := []uint{1, 2, 5}
	if len(losers) != len(want) {
		t.Fatalf("expected %v, got %v", want, losers)
	}
	for i, id := range want {
		if losers[i] != id {
			t.Fatalf("expected %v, got %v", want, losers)
		}
	}
}

func TestSelectLosers_KeepOldest(t *testing.T) {
	losers := selectLosers(dedupFixture(), KeepOldest)

	// Key "a": oldest is id 1, lose 2 and 3. Key "c": tie, lower id wins
	// under keep-oldest, lose 6.
	want := []uint{2, 3, 6}
	if len(losers) != len(want) {
		t.Fatalf("expected %v, got %v", want, losers)
	}
	for i, id := range want {
		if losers[i] != id {
			t.Fatalf("expected %v, got %v", want, losers)
		}
	}
}

// Removing the losers and re-running must find nothing: dedup is idempotent.
func TestSelectLosers_SecondPassRemovesNothing(t *testing.T) {
	candidates := dedupFixture()
	losers := selectLosers(candidates, KeepNewest)

	removed := map[uint]bool{}
	for _, id := range losers {
		removed[id] = true
	}
	var survivors []dedupCandidate
	for _, c := range candidates {
		if !removed[c.ID] {
			survivors = append(survivors, c)
		}
	}

	if second := selectLosers(survivors, KeepNewest); len(second) != 0 {
		t.Fatalf("second pass should remove nothing, got %v", second)
	}
}

// The winner must not depend on input order: repeated runs over the same
// rows pick the same canonical record.
func TestSelectLosers_OrderIndependent(t *testing.T) {
	forward := dedupFixture()
	reversed := make([]dedupCandidate, len(forward))
	for i, c := range forward {
		reversed[len(forward)-1-i] = c
	}

	a := selectLosers(forward, KeepOldest)
	b := selectLosers(reversed, KeepOldest)
	if len(a) != len(b) {
		t.Fatalf("loser sets differ: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("loser sets differ: %v vs %v", a, b)
		}
	}
}

func TestDedupWarning_HighDuplicateVolume(t *testing.T) {
	if w := dedupWarning("raw_records", 80, 20); w == "" {
		t.Fatal("20% removed should produce a warning")
	}
	if w := dedupWarning("raw_records", 99, 1); w != "" {
		t.Fatalf("1%% removed should not warn, got %q", w)
	}
	if w := dedupWarning("raw_records", 0, 0); w != "" {
		t.Fatalf("empty table should not warn, got %q", w)
	}
}
