package model

import "time"

// AuditEvent is one immutable record of a state-changing action. Field is
// empty for job-level events (stage runs, saves, exports).
type AuditEvent struct {
	TS       time.Time `json:"ts"`
	JobID    string    `json:"job_id"`
	Field    string    `json:"field,omitempty"`
	Action   string    `json:"action"`
	OldValue any       `json:"old_value,omitempty"`
	NewValue any       `json:"new_value,omitempty"`
	Source   Source    `json:"source,omitempty"`
	Actor    string    `json:"actor,omitempty"`
}
