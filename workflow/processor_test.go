package workflow

import (
	"testing"
	"time"

	"github.com/horecafocus/backoffice_backend/models"
	"github.com/shopspring/decimal"
)

func rawShift(payload string) models.RawRecord {
	return models.RawRecord{
		ID:           1,
		SourceId:     "shift-1",
		BusinessDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		LocationRef:  "amsterdam-centrum",
		EndpointType: models.EndpointTypeShifts,
		PayloadJSON:  []byte(payload),
	}
}

func TestNormalizeRawRecord_Shift(t *testing.T) {
	raw := rawShift(`{
		"id": "shift-1",
		"employee_id": "w1",
		"team_id": "Kitchen",
		"starttime": "2025-01-10T18:00:00Z",
		"endtime": "2025-01-10T23:30:00Z",
		"hours": 5.5,
		"wage_cost": 82.5,
		"status": "approved"
	}`)

	record, err := NormalizeRawRecord(raw, 6)
	if err != nil {
		t.Fatal(err)
	}
	if record == nil {
		t.Fatal("expected a processed record")
	}
	if record.RecordKind != models.RecordKindWorked {
		t.Fatalf("kind: got %s", record.RecordKind)
	}
	if !record.HoursWorked.Equal(decimal.RequireFromString("5.5")) {
		t.Fatalf("hours: got %s, want 5.5", record.HoursWorked)
	}
	if record.WageCost == nil || !record.WageCost.Equal(decimal.RequireFromString("82.5")) {
		t.Fatalf("wage: got %v, want 82.5", record.WageCost)
	}
	if record.TeamRef == nil || *record.TeamRef != "kitchen" {
		t.Fatalf("team ref: got %v, want kitchen", record.TeamRef)
	}
	if record.WorkerId == nil || *record.WorkerId != "w1" {
		t.Fatalf("worker: got %v", record.WorkerId)
	}
	// 18:00 is well past the day start: same calendar day.
	if !record.Date.Equal(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date: got %s", record.Date)
	}
}

// A shift starting at 01:30 belongs to the previous working day.
func TestNormalizeRawRecord_LateNightShiftAttribution(t *testing.T) {
	raw := rawShift(`{
		"id": "shift-1",
		"employee_id": "w1",
		"starttime": "2025-01-10T01:30:00Z",
		"endtime": "2025-01-10T04:00:00Z",
		"hours": 2.5
	}`)

	record, err := NormalizeRawRecord(raw, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !record.Date.Equal(time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("01:30 shift date: got %s, want 2025-01-09", record.Date)
	}
}

func TestNormalizeRawRecord_CancelledShiftSkipped(t *testing.T) {
	for _, status := range []string{"canceled", "Cancelled"} {
		raw := rawShift(`{"id": "shift-1", "hours": 4, "status": "` + status + `"}`)
		record, err := NormalizeRawRecord(raw, 6)
		if err != nil {
			t.Fatal(err)
		}
		if record != nil {
			t.Fatalf("status %q must be skipped", status)
		}
	}
}

func TestNormalizeRawRecord_DerivesHoursFromTimes(t *testing.T) {
	raw := rawShift(`{
		"id": "shift-1",
		"starttime": "2025-01-10T18:00:00Z",
		"endtime": "2025-01-10T22:15:00Z"
	}`)

	record, err := NormalizeRawRecord(raw, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !record.HoursWorked.Equal(decimal.RequireFromString("4.25")) {
		t.Fatalf("derived hours: got %s, want 4.25", record.HoursWorked)
	}
}

func TestNormalizeRawRecord_NegativeHoursRejected(t *testing.T) {
	raw := rawShift(`{"id": "shift-1", "hours": -2}`)
	if _, err := NormalizeRawRecord(raw, 6); err == nil {
		t.Fatal("negative hours must be a terminal validation error")
	}
}

func TestNormalizeRawRecord_NegativeWageStoredAsNull(t *testing.T) {
	raw := rawShift(`{"id": "shift-1", "hours": 4, "wage_cost": -10}`)
	record, err := NormalizeRawRecord(raw, 6)
	if err != nil {
		t.Fatal(err)
	}
	if record.WageCost != nil {
		t.Fatalf("negative wage must become NULL, got %s", record.WageCost)
	}
}

func TestNormalizeRawRecord_AbsenceBecomesLeave(t *testing.T) {
	raw := models.RawRecord{
		ID:           2,
		SourceId:     "abs-1",
		BusinessDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		LocationRef:  "amsterdam-centrum",
		EndpointType: models.EndpointTypeAbsences,
		PayloadJSON:  []byte(`{"id": "abs-1", "user_id": "w2", "hours": 8, "absence_type": "Sick Leave"}`),
	}

	record, err := NormalizeRawRecord(raw, 6)
	if err != nil {
		t.Fatal(err)
	}
	if record.RecordKind != models.RecordKindLeave {
		t.Fatalf("kind: got %s, want leave", record.RecordKind)
	}
	if record.TeamRef == nil || *record.TeamRef != "sick-leave" {
		t.Fatalf("team ref: got %v, want sick-leave", record.TeamRef)
	}
	if record.WorkerId == nil || *record.WorkerId != "w2" {
		t.Fatalf("worker from user_id alias: got %v", record.WorkerId)
	}
}

// Revenue stays raw: the aggregation engine sums it directly.
func TestNormalizeRawRecord_RevenueIsNotProcessed(t *testing.T) {
	raw := models.RawRecord{
		SourceId:     "rev-1",
		EndpointType: models.EndpointTypeRevenue,
		PayloadJSON:  []byte(`{"id": "rev-1", "amount_excl_vat": 1234.5}`),
	}
	record, err := NormalizeRawRecord(raw, 6)
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Fatal("revenue records must not produce processed records")
	}
}
