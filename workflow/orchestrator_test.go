package workflow

import (
	"context"
	"testing"
	"time"
)

func TestOrchestratorRun_InvalidRange(t *testing.T) {
	o := NewOrchestrator(nil, NewWorkingDayResolver(nil))

	_, err := o.Run(context.Background(),
		time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		[]string{"amsterdam-centrum"})
	if err == nil {
		t.Fatal("end before start must be a terminal error")
	}
}

// An expired budget yields a partial result, never an error or a panic.
func TestOrchestratorRun_BudgetExpiryReturnsPartial(t *testing.T) {
	o := NewOrchestrator(nil, NewWorkingDayResolver(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Run(ctx,
		time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		[]string{"amsterdam-centrum"})
	if err != nil {
		t.Fatalf("budget expiry must not be an error: %v", err)
	}
	if !result.Partial {
		t.Fatal("result must be marked partial")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("budget expiry must surface a warning")
	}
}
