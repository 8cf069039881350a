package model

import "time"

// Source tags the provenance of a field's current value.
type Source string

const (
	SourceNone    Source = "none"    // never touched by pipeline or human
	SourceCurrent Source = "current" // human kept the displayed value as-is
	SourceEdited  Source = "edited"  // human typed an override
	SourceDerived Source = "derived" // seeded from a stage-2 suggestion
	SourceLLM     Source = "llm"     // seeded from a stage-3 suggestion
	SourceCleared Source = "cleared" // human confirmed the value is absent
)

// HumanSources are provenance tags set only by an explicit human action.
// Pipeline merges never overwrite a value carrying one of these.
var HumanSources = map[Source]struct{}{
	SourceCurrent: {},
	SourceEdited:  {},
	SourceCleared: {},
}

// ReviewStatus is the two-state per-field review machine.
type ReviewStatus string

const (
	ReviewUnreviewed ReviewStatus = "unreviewed"
	ReviewReviewed   ReviewStatus = "reviewed"
)

// Review actions accepted by the field action engine.
const (
	ActionAccept = "accept"
	ActionEdit   = "edit"
	ActionClear  = "clear"
)

// Suggestion is an immutable candidate value produced by a pipeline stage.
type Suggestion struct {
	Field  string   `json:"field,omitempty"`
	Value  any      `json:"value"`
	Quote  string   `json:"quote,omitempty"`
	Page   *int     `json:"page,omitempty"`
	LineNo *int     `json:"line_no,omitempty"`
	Score  *float64 `json:"score,omitempty"`
}

// Suggestions groups the machine candidates attached to a field.
type Suggestions struct {
	Derived []Suggestion `json:"derived"`
	LLM     *Suggestion  `json:"llm,omitempty"`
}

// Review records the review state of a field and the action that set it.
type Review struct {
	Status     ReviewStatus `json:"status"`
	Action     string       `json:"action,omitempty"`
	Source     Source       `json:"source,omitempty"`
	ReviewedAt *time.Time   `json:"reviewed_at,omitempty"`
}

// FieldState is the mutable per-job record for one schema field.
type FieldState struct {
	Value      any         `json:"value"`
	Source     Source      `json:"source"`
	Confidence *float64    `json:"confidence,omitempty"`
	Review     Review      `json:"review"`
	Suggestion Suggestions `json:"suggestions"`
}

// Reviewed reports whether the field has been through an explicit review action.
func (f *FieldState) Reviewed() bool {
	return f.Review.Status == ReviewReviewed
}

// HumanTouched reports whether the current value was set by a human action.
func (f *FieldState) HumanTouched() bool {
	_, ok := HumanSources[f.Source]
	return ok
}

// WorkingState is the durable aggregate of all field states for a job.
type WorkingState struct {
	SchemaVersion int                    `json:"schema_version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	LLMStatus     string                 `json:"llm_status,omitempty"`
	Fields        map[string]*FieldState `json:"fields"`
}

// NewWorkingState returns a working state with an untouched, unreviewed
// entry for every schema field.
func NewWorkingState(schema *Schema) *WorkingState {
	now := time.Now().UTC()
	ws := &WorkingState{
		SchemaVersion: SchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
		Fields:        make(map[string]*FieldState, schema.Len()),
	}
	for _, field := range schema.Fields() {
		ws.Fields[field] = &FieldState{
			Source:     SourceNone,
			Review:     Review{Status: ReviewUnreviewed},
			Suggestion: Suggestions{Derived: []Suggestion{}},
		}
	}
	return ws
}

// Progress summarizes job review completion.
type Progress struct {
	Reviewed int `json:"reviewed"`
	Total    int `json:"total"`
}

// Complete reports whether every schema field has been reviewed.
func (p Progress) Complete() bool {
	return p.Reviewed == p.Total
}

// StageOutput carries the structured suggestions a pipeline stage produced,
// in the shape the working state merge consumes. Stage 2 populates Row,
// Confidence and Derived; stage 3 populates LLM and LLMStatus.
type StageOutput struct {
	Row        map[string]any        `json:"row,omitempty"`
	Confidence map[string]float64    `json:"confidence,omitempty"`
	Derived    []Suggestion          `json:"derived_suggestions,omitempty"`
	LLM        map[string]Suggestion `json:"llm_suggestions,omitempty"`
	LLMStatus  string                `json:"llm_status,omitempty"`
}

// DerivedByField indexes the derived suggestions by field name, preserving order.
func (o *StageOutput) DerivedByField() map[string][]Suggestion {
	indexed := make(map[string][]Suggestion)
	for _, s := range o.Derived {
		if s.Field == "" {
			continue
		}
		indexed[s.Field] = append(indexed[s.Field], s)
	}
	return indexed
}
