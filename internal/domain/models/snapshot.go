package models

import "time"

// Snapshot is an immutable view of one dataset. A never-populated dataset
// has no records and a nil LastUpdated.
type Snapshot struct {
	Dataset        DatasetKey     `json:"dataset"`
	Records        []Record       `json:"records"`
	LastUpdated    *time.Time     `json:"lastUpdated"`
	Notifications  []Notification `json:"notifications"`
	Version        uint64         `json:"version"`
	CycleStartedAt time.Time      `json:"cycleStartedAt"`
}

// HasData reports whether a synchronization has ever completed for the dataset.
func (s *Snapshot) HasData() bool {
	return s != nil && s.LastUpdated != nil
}

// CachedData is the read model handed to API callers.
type CachedData struct {
	Data          []Record       `json:"data"`
	LastUpdate    *time.Time     `json:"lastUpdate"`
	Notifications []Notification `json:"notifications"`
}
