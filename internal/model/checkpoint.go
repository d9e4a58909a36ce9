package model

import "time"

// IngestionCheckpoint is the durable progress marker for a bulk load.
// Owned and mutated only by the pipeline driver; persisted after every
// source unit commits to both stores.
type IngestionCheckpoint struct {
	// CompletedUnits maps a source unit ID to the number of records
	// committed for it.
	CompletedUnits map[string]int `json:"completed_units"`

	// FailedUnits maps a source unit ID to its last failure message, so
	// the same unit failing across several resumed runs counts once.
	FailedUnits map[string]string `json:"failed_units,omitempty"`

	TotalCommittedRecords int       `json:"total_committed_records"`
	TotalFailedUnits      int       `json:"total_failed_units"`
	LastError             string    `json:"last_error,omitempty"`
	StartedAt             time.Time `json:"started_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// NewCheckpoint returns an empty checkpoint for a fresh run
func NewCheckpoint() *IngestionCheckpoint {
	return &IngestionCheckpoint{
		CompletedUnits: make(map[string]int),
		FailedUnits:    make(map[string]string),
		StartedAt:      time.Now().UTC(),
	}
}

// IsCompleted reports whether a unit was fully committed in a prior run
func (c *IngestionCheckpoint) IsCompleted(unitID string) bool {
	_, ok := c.CompletedUnits[unitID]
	return ok
}
