package models

import "time"

// Trigger describes what started a synchronization cycle.
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Cycle is one synchronization run. StartedAt is the nominal time used for
// stale-write rejection and is shared by every retry of the cycle.
type Cycle struct {
	ID        string
	Trigger   Trigger
	StartedAt time.Time
}

// Pipeline outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeNoData     = "no_data"
	OutcomeFailed     = "failed"
	OutcomeStale      = "stale"
	OutcomeSuperseded = "superseded"
)

// SyncAttempt is an audit row for one pipeline attempt.
type SyncAttempt struct {
	CycleID       string
	Dataset       DatasetKey
	Trigger       Trigger
	Attempt       int
	StartedAt     time.Time
	Duration      time.Duration
	Outcome       string
	Records       int
	Notifications int
	Error         string
}

// RefreshResult reports the first attempt of a forced refresh.
type RefreshResult struct {
	Dataset DatasetKey `json:"dataset"`
	Outcome string     `json:"outcome"`
	Records int        `json:"records"`
	Error   string     `json:"error,omitempty"`
}

// Status is the operational view of the sync engine.
type Status struct {
	Enabled             bool                      `json:"enabled"`
	Strategy            string                    `json:"strategy"`
	LastUpdates         map[DatasetKey]*time.Time `json:"lastUpdates"`
	ConsecutiveFailures int64                     `json:"consecutiveFailures"`
	LeaseValid          bool                      `json:"leaseValid"`
	LeaseExpiry         *time.Time                `json:"leaseExpiry"`
	LicenseID           string                    `json:"licenseId,omitempty"`
	CacheStatus         map[DatasetKey]bool       `json:"cacheStatus"`
	Versions            map[DatasetKey]uint64     `json:"versions"`
}
