// Package state owns the durable per-job working state: the accepted value,
// provenance and review status of every schema field.
package state

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lease-review/internal/jobfs"
	"github.com/sells-group/lease-review/internal/model"
)

// ErrNotFound is returned when a job has no working state document yet.
var ErrNotFound = eris.New("state: working state not found")

// Store loads, mutates and atomically persists working state documents.
type Store struct {
	jobsRoot string
	schema   *model.Schema
}

// NewStore creates a working state store over the given jobs root.
func NewStore(jobsRoot string, schema *model.Schema) *Store {
	return &Store{jobsRoot: jobsRoot, schema: schema}
}

// Schema returns the schema the store validates fields against.
func (s *Store) Schema() *model.Schema {
	return s.schema
}

func (s *Store) paths(jobID string) jobfs.Paths {
	return jobfs.For(s.jobsRoot, jobID)
}

// Init writes a fresh working state for the job, with every field untouched.
func (s *Store) Init(jobID string) (*model.WorkingState, error) {
	ws := model.NewWorkingState(s.schema)
	if err := s.Save(jobID, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Load reads the durable working state, failing with ErrNotFound if the job
// has never been initialized.
func (s *Store) Load(jobID string) (*model.WorkingState, error) {
	var ws model.WorkingState
	if err := jobfs.ReadJSON(s.paths(jobID).WorkingState(), &ws); err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "job %s", jobID)
		}
		return nil, err
	}
	if ws.Fields == nil {
		ws.Fields = map[string]*model.FieldState{}
	}
	// Backfill entries for fields added to the schema after this state was
	// written.
	for _, field := range s.schema.Fields() {
		if _, ok := ws.Fields[field]; !ok {
			ws.Fields[field] = &model.FieldState{
				Source:     model.SourceNone,
				Review:     model.Review{Status: model.ReviewUnreviewed},
				Suggestion: model.Suggestions{Derived: []model.Suggestion{}},
			}
		}
	}
	return &ws, nil
}

// LoadOrInit loads the working state, creating a fresh one if absent.
func (s *Store) LoadOrInit(jobID string) (*model.WorkingState, error) {
	ws, err := s.Load(jobID)
	if eris.Is(err, ErrNotFound) {
		return s.Init(jobID)
	}
	return ws, err
}

// Save atomically persists the working state and bumps updated_at.
func (s *Store) Save(jobID string, ws *model.WorkingState) error {
	ws.UpdatedAt = time.Now().UTC()
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = ws.UpdatedAt
	}
	if ws.SchemaVersion == 0 {
		ws.SchemaVersion = model.SchemaVersion
	}
	return jobfs.WriteJSON(s.paths(jobID).WorkingState(), ws)
}

// MergePipelineOutput folds freshly produced stage output into the working
// state. Suggestions and confidence always refresh; a field's value, source
// and review status survive untouched once the field was reviewed or its
// value came from a human action. Only fields never touched by anyone
// (source none) are seeded, preferring a derived suggestion over an llm one,
// and remain unreviewed.
func (s *Store) MergePipelineOutput(jobID string, out model.StageOutput) (*model.WorkingState, error) {
	ws, err := s.LoadOrInit(jobID)
	if err != nil {
		return nil, err
	}

	derivedByField := out.DerivedByField()
	seeded := 0
	for _, field := range s.schema.Fields() {
		entry := ws.Fields[field]

		if out.Row != nil || out.Derived != nil {
			entry.Suggestion.Derived = derivedByField[field]
			if entry.Suggestion.Derived == nil {
				entry.Suggestion.Derived = []model.Suggestion{}
			}
		}
		if out.LLM != nil {
			if sug, ok := out.LLM[field]; ok {
				llmSug := sug
				entry.Suggestion.LLM = &llmSug
			}
		}
		if conf, ok := out.Confidence[field]; ok {
			c := conf
			entry.Confidence = &c
		}

		if entry.Source != model.SourceNone && entry.Source != "" {
			continue
		}

		value, source, ok := seedValue(out, derivedByField, field)
		if !ok {
			continue
		}
		entry.Value = s.schema.Coerce(field, value)
		entry.Source = source
		seeded++
	}

	if out.LLMStatus != "" {
		ws.LLMStatus = out.LLMStatus
	}
	if err := s.Save(jobID, ws); err != nil {
		return nil, err
	}

	zap.L().Debug("state: merged pipeline output",
		zap.String("job_id", jobID),
		zap.Int("derived_suggestions", len(out.Derived)),
		zap.Int("llm_suggestions", len(out.LLM)),
		zap.Int("seeded_fields", seeded),
	)
	return ws, nil
}

// seedValue picks the value and provenance for an untouched field: the
// validated row value or a derived suggestion ranks above an llm suggestion.
func seedValue(out model.StageOutput, derived map[string][]model.Suggestion, field string) (any, model.Source, bool) {
	if v, ok := out.Row[field]; ok && v != nil {
		return v, model.SourceDerived, true
	}
	if sugs := derived[field]; len(sugs) > 0 && sugs[0].Value != nil {
		return sugs[0].Value, model.SourceDerived, true
	}
	if sug, ok := out.LLM[field]; ok && sug.Value != nil {
		return sug.Value, model.SourceLLM, true
	}
	return nil, model.SourceNone, false
}

// SetLLMStatus updates the aggregate llm status and persists.
func (s *Store) SetLLMStatus(jobID, status string) error {
	ws, err := s.LoadOrInit(jobID)
	if err != nil {
		return err
	}
	ws.LLMStatus = status
	return s.Save(jobID, ws)
}
