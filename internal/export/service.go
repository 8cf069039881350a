package export

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lease-review/internal/audit"
	"github.com/sells-group/lease-review/internal/jobfs"
	"github.com/sells-group/lease-review/internal/joblock"
	"github.com/sells-group/lease-review/internal/model"
	"github.com/sells-group/lease-review/internal/review"
	"github.com/sells-group/lease-review/internal/state"
	"github.com/sells-group/lease-review/internal/store"
)

// FinalDocument is the finalized artifact written alongside the workbook
// row. It carries the reviewed values plus the full audit trail so the
// job directory stands alone.
type FinalDocument struct {
	JobID      string             `json:"job_id"`
	JobName    string             `json:"job_name,omitempty"`
	ExportedAt time.Time          `json:"exported_at"`
	Row        map[string]any     `json:"row"`
	AuditLog   []model.AuditEvent `json:"audit_log"`
	Sources    FinalSources       `json:"sources"`
}

// FinalSources records where the finalized values came from.
type FinalSources struct {
	WorkingState string `json:"working_state"`
	InputPDF     string `json:"input_pdf,omitempty"`
}

// Result reports where an export landed.
type Result struct {
	Row       int    `json:"excel_row"`
	Workbook  string `json:"workbook"`
	FinalJSON string `json:"final_json"`
}

// Service finalizes reviewed jobs: it checks the review gate, writes the
// final JSON artifact, and upserts the workbook row.
type Service struct {
	store    store.Store
	states   *state.Store
	gate     *review.Gate
	log      *audit.Log
	locks    *joblock.Registry
	workbook *Workbook
	jobsRoot string
}

// NewService wires the export flow.
func NewService(
	st store.Store,
	states *state.Store,
	gate *review.Gate,
	log *audit.Log,
	locks *joblock.Registry,
	workbook *Workbook,
	jobsRoot string,
) *Service {
	return &Service{
		store:    st,
		states:   states,
		gate:     gate,
		locks:    locks,
		log:      log,
		workbook: workbook,
		jobsRoot: jobsRoot,
	}
}

// Export finalizes the job and writes its workbook row. snapshot, when
// non-nil, is the caller's view of the field values and is compared
// against the saved state to reject exports over unsaved edits. The
// review gate rejects exports while any field is unreviewed.
func (s *Service) Export(ctx context.Context, jobID string, snapshot map[string]any, actor string) (*Result, error) {
	unlock := s.locks.Lock(jobID)
	defer unlock()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CheckExport(jobID, snapshot); err != nil {
		return nil, err
	}

	ws, err := s.states.Load(jobID)
	if err != nil {
		return nil, err
	}
	events, err := s.log.Read(jobID)
	if err != nil {
		return nil, err
	}

	row := make(map[string]any, s.states.Schema().Len())
	for _, field := range s.states.Schema().Fields() {
		if entry := ws.Fields[field]; entry != nil {
			row[field] = entry.Value
		}
	}

	now := time.Now().UTC()
	paths := jobfs.For(s.jobsRoot, jobID)
	doc := FinalDocument{
		JobID:      jobID,
		JobName:    job.Name,
		ExportedAt: now,
		Row:        row,
		AuditLog:   events,
		Sources: FinalSources{
			WorkingState: paths.WorkingState(),
			InputPDF:     paths.InputPDF(),
		},
	}
	if err := jobfs.WriteJSON(paths.FinalJSON(), doc); err != nil {
		return nil, eris.Wrap(err, "export: write final json")
	}

	rowNum, err := s.workbook.Upsert(job, row, now)
	if err != nil {
		return nil, err
	}

	job.ExcelRow = rowNum
	job.ExportedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	if err := s.log.Append(jobID, model.AuditEvent{
		Action:   "export_excel",
		NewValue: s.workbook.Path(),
		Actor:    actor,
	}); err != nil {
		zap.L().Warn("export: audit append failed", zap.String("job_id", jobID), zap.Error(err))
	}

	zap.L().Info("export: job exported",
		zap.String("job_id", jobID),
		zap.Int("excel_row", rowNum),
		zap.String("workbook", s.workbook.Path()),
	)
	return &Result{Row: rowNum, Workbook: s.workbook.Path(), FinalJSON: paths.FinalJSON()}, nil
}
