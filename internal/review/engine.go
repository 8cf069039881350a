// Package review implements the field action state machine and the
// completion gate that blocks export until every field is reviewed.
package review

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lease-review/internal/audit"
	"github.com/sells-group/lease-review/internal/joblock"
	"github.com/sells-group/lease-review/internal/model"
	"github.com/sells-group/lease-review/internal/state"
)

// Engine applies field-level review actions. Every successful action
// persists the working state and appends exactly one audit event.
type Engine struct {
	states *state.Store
	log    *audit.Log
	locks  *joblock.Registry
}

// NewEngine creates a field action engine.
func NewEngine(states *state.Store, log *audit.Log, locks *joblock.Registry) *Engine {
	return &Engine{states: states, log: log, locks: locks}
}

// Action is one field-level review request.
type Action struct {
	Field  string
	Action string
	Value  any
	Source model.Source
	Actor  string
}

// Apply validates and applies one action to the job's working state.
// Re-applying an identical action yields the same field state and appends a
// fresh audit event; the log is a history, not a snapshot.
func (e *Engine) Apply(jobID string, a Action) (*model.FieldState, error) {
	schema := e.states.Schema()
	if !schema.Has(a.Field) {
		return nil, eris.Wrapf(ErrUnknownField, "%q", a.Field)
	}
	switch a.Action {
	case model.ActionAccept, model.ActionEdit, model.ActionClear:
	default:
		return nil, eris.Wrapf(ErrInvalidAction, "%q", a.Action)
	}

	unlock := e.locks.Lock(jobID)
	defer unlock()

	ws, err := e.states.LoadOrInit(jobID)
	if err != nil {
		return nil, err
	}
	entry := ws.Fields[a.Field]
	oldValue := entry.Value

	var newValue any
	var source model.Source
	switch a.Action {
	case model.ActionClear:
		newValue = nil
		source = model.SourceCleared
	case model.ActionEdit:
		// Edits always record a manual override, whatever the client sent.
		newValue = coalesce(schema.Coerce(a.Field, a.Value), oldValue, a.Value)
		source = model.SourceEdited
	default: // accept
		newValue = coalesce(schema.Coerce(a.Field, a.Value), oldValue, a.Value)
		source = a.Source
		if source == "" || source == model.SourceNone {
			source = model.SourceCurrent
		}
	}

	now := time.Now().UTC()
	entry.Value = newValue
	entry.Source = source
	entry.Review = model.Review{
		Status:     model.ReviewReviewed,
		Action:     a.Action,
		Source:     source,
		ReviewedAt: &now,
	}

	if err := e.states.Save(jobID, ws); err != nil {
		return nil, err
	}
	if err := e.log.Append(jobID, model.AuditEvent{
		Field:    a.Field,
		Action:   a.Action,
		OldValue: oldValue,
		NewValue: newValue,
		Source:   source,
		Actor:    a.Actor,
	}); err != nil {
		return nil, err
	}

	zap.L().Info("review: field action applied",
		zap.String("job_id", jobID),
		zap.String("field", a.Field),
		zap.String("action", a.Action),
		zap.String("source", string(source)),
	)
	return entry, nil
}

// coalesce keeps the displayed value when the client sent none: a nil
// payload on accept means "keep what is shown".
func coalesce(coerced, old, raw any) any {
	if raw == nil {
		return old
	}
	return coerced
}

// SaveValues flushes a batch of client edits into the working state. Values
// are coerced and written; review status and provenance are untouched, so a
// save never counts toward the completion gate. Unknown fields are skipped.
// One job-level audit event records the batch.
func (e *Engine) SaveValues(jobID string, values map[string]any, actor string) ([]string, *model.WorkingState, error) {
	unlock := e.locks.Lock(jobID)
	defer unlock()

	ws, err := e.states.LoadOrInit(jobID)
	if err != nil {
		return nil, nil, err
	}

	schema := e.states.Schema()
	var updated []string
	for field, raw := range values {
		if !schema.Has(field) {
			continue
		}
		ws.Fields[field].Value = schema.Coerce(field, raw)
		updated = append(updated, field)
	}

	if err := e.states.Save(jobID, ws); err != nil {
		return nil, nil, err
	}
	if err := e.log.Append(jobID, model.AuditEvent{
		Action:   "save",
		NewValue: strings.Join(updated, ","),
		Actor:    actor,
	}); err != nil {
		return nil, nil, err
	}
	return updated, ws, nil
}
