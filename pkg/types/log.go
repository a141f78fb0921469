package types

import "time"

// Integrity log actions.
const (
	ActionLink     = "link"
	ActionUnlink   = "unlink"
	ActionBackfill = "backfill"
)

// SyncLogEntry records one sync attempt. Entries are append-only and never
// modified once written.
type SyncLogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source_store"`
	Target    string    `json:"target_store"`
	Kind      Kind      `json:"entity_kind"`
	RecordID  string    `json:"record_id,omitempty"`
	Success   bool      `json:"success"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// IntegrityLogEntry records one link, unlink or backfill of a
// ClientCarLink together with the integrity flags computed at that time.
type IntegrityLogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	CarID       string    `json:"car_id"`
	VIN         string    `json:"vin,omitempty"`
	Status      string    `json:"status,omitempty"`
	ClientName  string    `json:"client_name,omitempty"`
	ClientPhone string    `json:"client_phone,omitempty"`
	RecordedBy  string    `json:"recorded_by,omitempty"`
	Integrity   Integrity `json:"integrity"`
}
