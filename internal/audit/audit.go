// Package audit maintains the append-only per-job event log. Events are
// written as JSON lines and never rewritten or deleted.
package audit

import (
	"time"

	"github.com/sells-group/lease-review/internal/jobfs"
	"github.com/sells-group/lease-review/internal/model"
)

// Log appends and reads the audit trail of one jobs root.
type Log struct {
	jobsRoot string
}

// NewLog creates an audit log over the given jobs root.
func NewLog(jobsRoot string) *Log {
	return &Log{jobsRoot: jobsRoot}
}

// Append writes one event. A zero timestamp is stamped with the current time.
func (l *Log) Append(jobID string, ev model.AuditEvent) error {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	ev.JobID = jobID
	return jobfs.AppendJSONL(jobfs.For(l.jobsRoot, jobID).AuditLog(), ev)
}

// Read returns every event recorded for the job, oldest first. A job with no
// events yields an empty slice.
func (l *Log) Read(jobID string) ([]model.AuditEvent, error) {
	return jobfs.ReadJSONL[model.AuditEvent](jobfs.For(l.jobsRoot, jobID).AuditLog())
}
