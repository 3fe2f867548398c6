package scheduler

import (
	"errors"
	"testing"
)

// NOTE: DB-free. RunNow's job bodies need MySQL; the re-entrancy guard and
// job-state bookkeeping they sit behind do not.

func TestAcquire_SecondCallerIsRejected(t *testing.T) {
	s := New(nil, nil)

	if err := s.acquire(JobDailySync); err != nil {
		t.Fatal(err)
	}
	if err := s.acquire(JobDailySync); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second acquire: got %v, want ErrAlreadyRunning", err)
	}

	// Independent job types are not blocked by each other.
	if err := s.acquire(JobMasterDataRefresh); err != nil {
		t.Fatalf("other job type blocked: %v", err)
	}

	s.release(JobDailySync)
	if err := s.acquire(JobDailySync); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquire_StoppedJobIsRejected(t *testing.T) {
	s := New(nil, nil)

	if err := s.Stop(JobHistoricalBackfill); err != nil {
		t.Fatal(err)
	}
	if err := s.acquire(JobHistoricalBackfill); !errors.Is(err, ErrJobStopped) {
		t.Fatalf("stopped job: got %v, want ErrJobStopped", err)
	}

	if err := s.Start(JobHistoricalBackfill); err != nil {
		t.Fatal(err)
	}
	if err := s.acquire(JobHistoricalBackfill); err != nil {
		t.Fatalf("restarted job: %v", err)
	}
}

func TestUnknownJobType(t *testing.T) {
	s := New(nil, nil)

	if err := s.acquire(JobType("mystery")); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("got %v, want ErrUnknownJob", err)
	}
	if err := s.Start(JobType("mystery")); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("got %v, want ErrUnknownJob", err)
	}
	if err := s.Stop(JobType("mystery")); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("got %v, want ErrUnknownJob", err)
	}
}

func TestStatus_ReflectsState(t *testing.T) {
	s := New(nil, nil)
	if err := s.acquire(JobDailySync); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(JobMasterDataRefresh); err != nil {
		t.Fatal(err)
	}

	statuses := s.Status()
	if len(statuses) != 3 {
		t.Fatalf("got %d job statuses, want 3", len(statuses))
	}

	byType := map[JobType]JobStatus{}
	for _, st := range statuses {
		byType[st.JobType] = st
	}
	if !byType[JobDailySync].Running {
		t.Fatal("daily-sync should report running")
	}
	if byType[JobMasterDataRefresh].Enabled {
		t.Fatal("master-data-refresh should report disabled")
	}
	if !byType[JobHistoricalBackfill].Enabled || byType[JobHistoricalBackfill].Running {
		t.Fatal("historical-backfill should be enabled and idle")
	}
}
