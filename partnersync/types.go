package partnersync

import "encoding/json"

// SyncModules selects which endpoint groups a run ingests.
type SyncModules struct {
	Shifts     bool `json:"shifts"`
	Timesheets bool `json:"timesheets"`
	Absences   bool `json:"absences"`
	Revenue    bool `json:"revenue"`
	MasterData bool `json:"masterData"`
}

func DefaultModules() SyncModules {
	return SyncModules{
		Shifts:     true,
		Timesheets: true,
		Absences:   true,
		Revenue:    true,
		MasterData: false,
	}
}

func DecodeModules(raw []byte) SyncModules {
	if len(raw) == 0 {
		return DefaultModules()
	}
	var mod SyncModules
	if err := json.Unmarshal(raw, &mod); err != nil {
		return DefaultModules()
	}
	return mod
}

func EncodeModules(mod SyncModules) []byte {
	b, _ := json.Marshal(mod)
	return b
}

// Source-shaped payloads. Partner versions disagree on field names and
// casing, so every field that has been observed under more than one name
// carries an alias; the normalizer in workflow picks whichever is set.

// ShiftPayload covers both shift and timesheet endpoints.
type ShiftPayload struct {
	ID         string      `json:"id"`
	EmployeeId string      `json:"employee_id"`
	UserId     string      `json:"user_id"` // older partner versions
	TeamId     string      `json:"team_id"`
	Department string      `json:"department"` // alias for team on v1 endpoints
	Date       string      `json:"date"`
	StartTime  string      `json:"starttime"`
	StartsAt   string      `json:"starts_at"`
	EndTime    string      `json:"endtime"`
	EndsAt     string      `json:"ends_at"`
	Hours      json.Number `json:"hours"`
	Total      json.Number `json:"total"` // timesheet total hours
	Wage       json.Number `json:"wage"`
	WageCost   json.Number `json:"wage_cost"`
	Absence    bool        `json:"absence"`
	Status     string      `json:"status"`
}

// AbsencePayload is a leave/sickness registration.
type AbsencePayload struct {
	ID          string      `json:"id"`
	EmployeeId  string      `json:"employee_id"`
	UserId      string      `json:"user_id"`
	Date        string      `json:"date"`
	StartDate   string      `json:"startdate"`
	Hours       json.Number `json:"hours"`
	AbsenceType string      `json:"absence_type"`
	Status      string      `json:"status"`
}

// RevenuePayload is one POS revenue line for a business day.
type RevenuePayload struct {
	ID            string      `json:"id"`
	Date          string      `json:"date"`
	Amount        json.Number `json:"amount"`
	AmountExclVat json.Number `json:"amount_excl_vat"`
	Turnover      json.Number `json:"turnover"` // alias on older POS versions
	GroupId       string      `json:"group_id"`
	GroupName     string      `json:"group_name"`
}

// MasterLocationPayload / MasterTeamPayload feed the master-data refresh.
type MasterLocationPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Active   *bool  `json:"active"`
}

type MasterTeamPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	LocationId string `json:"location_id"`
	Active     *bool  `json:"active"`
}

// SyncStats counts ingested records per endpoint plus transient API
// failures survived during the run.
type SyncStats struct {
	Counts      map[string]int `json:"counts"`
	APIFailures int            `json:"apiFailures"`
}

func NewSyncStats() SyncStats {
	return SyncStats{Counts: map[string]int{}}
}

func (s SyncStats) Total() int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// HTTP request/response shapes for the connection endpoints.

type ConnectRequest struct {
	LocationRef string `json:"locationRef" binding:"required"`
	Provider    string `json:"provider" binding:"required,oneof=pos workforce"`
	BaseURL     string `json:"baseUrl" binding:"required,url"`
	APIKey      string `json:"apiKey" binding:"required"`
}

type TriggerSyncRequest struct {
	LocationRef string `json:"locationRef" binding:"required"`
	Start       string `json:"start" binding:"required"`
	End         string `json:"end" binding:"required"`
}

type StatusResponse struct {
	LocationRef       string      `json:"locationRef"`
	Provider          string      `json:"provider"`
	Status            string      `json:"status"`
	LastSyncAt        *string     `json:"lastSyncAt"`
	LastSuccessSyncAt *string     `json:"lastSuccessSyncAt"`
	Modules           SyncModules `json:"modules"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId       uint   `json:"run_id"`
	LocationRef string `json:"location_ref"`
	RangeStart  string `json:"range_start"`
	RangeEnd    string `json:"range_end"`
}
