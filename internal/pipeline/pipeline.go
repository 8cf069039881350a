// Package pipeline runs the three-stage extraction pipeline for a job and
// folds each stage's output into the working state without disturbing
// human review decisions.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lease-review/internal/audit"
	"github.com/sells-group/lease-review/internal/config"
	"github.com/sells-group/lease-review/internal/evidence"
	"github.com/sells-group/lease-review/internal/jobfs"
	"github.com/sells-group/lease-review/internal/joblock"
	"github.com/sells-group/lease-review/internal/llm"
	"github.com/sells-group/lease-review/internal/model"
	"github.com/sells-group/lease-review/internal/state"
	"github.com/sells-group/lease-review/internal/store"
)

// Runner executes pipeline stages for jobs, serializing all work per job id.
type Runner struct {
	cfg    *config.Config
	store  store.Store
	states *state.Store
	log    *audit.Log
	locks  *joblock.Registry
	pre    Preprocessor
	ext    Extractor
	llm    llm.Suggester
}

// NewRunner creates a stage runner with all collaborators.
func NewRunner(
	cfg *config.Config,
	st store.Store,
	states *state.Store,
	log *audit.Log,
	locks *joblock.Registry,
	pre Preprocessor,
	ext Extractor,
	suggester llm.Suggester,
) *Runner {
	return &Runner{
		cfg:    cfg,
		store:  st,
		states: states,
		log:    log,
		locks:  locks,
		pre:    pre,
		ext:    ext,
		llm:    suggester,
	}
}

func (r *Runner) paths(jobID string) jobfs.Paths {
	return jobfs.For(r.cfg.Jobs.Root, jobID)
}

// RunStage runs one named stage. Stage failures are captured on the job
// record, not returned; the error return covers infrastructure problems
// only (unknown job, unreadable storage).
func (r *Runner) RunStage(ctx context.Context, jobID, stage, modelOverride string) (*model.Job, error) {
	switch stage {
	case model.Stage1, model.Stage2, model.Stage3:
	default:
		return nil, eris.Errorf("pipeline: unknown stage %q", stage)
	}

	unlock := r.locks.Lock(jobID)
	defer unlock()

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := r.beginRun(ctx, job, stage, modelOverride); err != nil {
		return nil, err
	}
	if failErr := r.runStageLocked(ctx, job, stage); failErr != nil {
		r.failStage(ctx, job, stage, failErr)
		return job, nil
	}

	job.Status = model.JobStatusCompleted
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	r.auditStage(jobID, stage, job.Stage(stage).Status)
	return job, nil
}

// RunPipeline runs stages 1-3 in order, stopping at the first failure.
// Stage-3 LLM unavailability is a degraded success and does not stop the run.
func (r *Runner) RunPipeline(ctx context.Context, jobID string) (*model.Job, error) {
	unlock := r.locks.Lock(jobID)
	defer unlock()

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := r.beginRun(ctx, job, model.Stage1, ""); err != nil {
		return nil, err
	}
	for _, stage := range model.Stages {
		if failErr := r.runStageLocked(ctx, job, stage); failErr != nil {
			r.failStage(ctx, job, stage, failErr)
			return job, nil
		}
		r.auditStage(jobID, stage, job.Stage(stage).Status)
	}

	job.Status = model.JobStatusCompleted
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RunBatch runs the full pipeline for many jobs with bounded concurrency.
// Per-job failures are captured on the job records; the returned error
// covers infrastructure problems only.
func (r *Runner) RunBatch(ctx context.Context, jobIDs []string) error {
	g, gCtx := errgroup.WithContext(ctx)
	limit := r.cfg.Pipeline.MaxConcurrentJobs
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, jobID := range jobIDs {
		g.Go(func() error {
			_, err := r.RunPipeline(gCtx, jobID)
			return err
		})
	}
	return eris.Wrap(g.Wait(), "pipeline: batch run")
}

// beginRun transitions the job to running and resets the stage being run
// plus everything downstream of it. The audit log and working state are
// never reset; stale final output is.
func (r *Runner) beginRun(ctx context.Context, job *model.Job, fromStage, modelOverride string) error {
	paths := r.paths(job.ID)
	if !paths.Exists() {
		return eris.Wrapf(store.ErrNotFound, "pipeline: job dir %s", job.ID)
	}

	job.Status = model.JobStatusRunning
	job.LastError = ""
	if modelOverride != "" {
		job.LLMModel = modelOverride
	}

	var reset []string
	from := false
	for _, stage := range model.Stages {
		if stage == fromStage {
			from = true
		}
		if from {
			reset = append(reset, stage)
			job.SetStage(stage, model.StageStatusPending, "")
		}
	}
	if err := paths.ResetStageDirs(reset...); err != nil {
		return err
	}
	if err := paths.ResetFinal(); err != nil {
		return err
	}
	return r.store.UpdateJob(ctx, job)
}

func (r *Runner) runStageLocked(ctx context.Context, job *model.Job, stage string) error {
	job.SetStage(stage, model.StageStatusRunning, "")
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	log := zap.L().With(zap.String("job_id", job.ID), zap.String("stage", stage))
	log.Info("pipeline: stage starting")

	var err error
	switch stage {
	case model.Stage1:
		err = r.runStage1(ctx, job)
	case model.Stage2:
		err = r.runStage2(ctx, job)
	case model.Stage3:
		err = r.runStage3(ctx, job)
	}
	if err != nil {
		return err
	}

	job.SetStage(stage, model.StageStatusSucceeded, "")
	log.Info("pipeline: stage succeeded")
	return r.store.UpdateJob(ctx, job)
}

func (r *Runner) runStage1(ctx context.Context, job *model.Job) error {
	paths := r.paths(job.ID)
	if _, err := os.Stat(paths.InputPDF()); err != nil {
		return eris.New("input document missing")
	}
	return r.pre.Preprocess(ctx, paths.InputPDF(), paths.Stage1Dir)
}

func (r *Runner) runStage2(ctx context.Context, job *model.Job) error {
	paths := r.paths(job.ID)
	entries, err := os.ReadDir(paths.Stage1Dir)
	if err != nil || len(entries) == 0 {
		return eris.New("missing stage 1 output")
	}

	if err := r.ext.Extract(ctx, paths.Stage1Dir, paths.Stage2Dir); err != nil {
		return err
	}

	out, err := loadStage2Output(paths)
	if err != nil {
		return err
	}
	_, err = r.states.MergePipelineOutput(job.ID, out)
	return err
}

func (r *Runner) runStage3(ctx context.Context, job *model.Job) error {
	paths := r.paths(job.ID)

	modelName := job.LLMModel
	if modelName == "" {
		modelName = r.cfg.LLM.Model
		job.LLMModel = modelName
	}

	fields, evidenceText, err := r.fallbackTargets(job.ID, paths)
	if err != nil {
		return err
	}

	result, err := r.llm.Suggest(ctx, llm.Request{
		Model:    modelName,
		Fields:   fields,
		Evidence: evidenceText,
	})
	if err != nil {
		return err
	}

	if result.Unavailable {
		job.LLMStatus = model.LLMStatusUnavailable
		job.SetStage(model.Stage3, model.StageStatusSucceeded, result.Reason)
		if err := r.states.SetLLMStatus(job.ID, model.LLMStatusUnavailable); err != nil {
			return err
		}
		zap.L().Info("pipeline: llm unavailable, continuing without fallback",
			zap.String("job_id", job.ID), zap.String("reason", result.Reason))
		return nil
	}

	// Persist the collaborator output unchanged before merging.
	suggestionsPath := filepath.Join(paths.Stage3Dir, jobfs.LLMSuggestionsName)
	if err := jobfs.WriteJSON(suggestionsPath, result.Suggestions); err != nil {
		return err
	}

	job.LLMStatus = model.LLMStatusOK
	_, err = r.states.MergePipelineOutput(job.ID, model.StageOutput{
		LLM:       result.Suggestions,
		LLMStatus: model.LLMStatusOK,
	})
	return err
}

// fallbackTargets selects the fields worth an LLM pass: unreviewed fields
// whose value is missing or whose confidence is below the threshold.
func (r *Runner) fallbackTargets(jobID string, paths jobfs.Paths) ([]string, map[string]string, error) {
	ws, err := r.states.LoadOrInit(jobID)
	if err != nil {
		return nil, nil, err
	}

	index, err := evidence.BuildIndex(paths, r.states.Schema())
	if err != nil {
		return nil, nil, err
	}

	threshold := r.cfg.Pipeline.LowConfidenceThreshold
	var fields []string
	evidenceText := make(map[string]string)
	for _, field := range r.states.Schema().Fields() {
		entry := ws.Fields[field]
		if entry == nil {
			fields = append(fields, field)
			continue
		}
		if entry.Reviewed() {
			continue
		}
		lowConfidence := entry.Confidence != nil && *entry.Confidence < threshold
		if entry.Value != nil && !lowConfidence {
			continue
		}
		fields = append(fields, field)

		var texts []string
		for i, snippet := range index[field] {
			if i == 3 {
				break
			}
			texts = append(texts, snippet.Text)
		}
		if len(texts) > 0 {
			evidenceText[field] = strings.Join(texts, "\n")
		}
	}
	return fields, evidenceText, nil
}

func (r *Runner) failStage(ctx context.Context, job *model.Job, stage string, cause error) {
	msg := eris.ToString(cause, false)
	job.SetStage(stage, model.StageStatusFailed, msg)
	job.Status = model.JobStatusFailed
	job.LastError = stage + " failed: " + msg

	if err := r.store.UpdateJob(ctx, job); err != nil {
		zap.L().Error("pipeline: failed to persist stage failure",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	r.auditStage(job.ID, stage, model.StageStatusFailed)
	zap.L().Error("pipeline: stage failed",
		zap.String("job_id", job.ID),
		zap.String("stage", stage),
		zap.Error(cause),
	)
}

func (r *Runner) auditStage(jobID, stage string, status model.StageStatus) {
	if err := r.log.Append(jobID, model.AuditEvent{
		Action:   "run_" + stage,
		NewValue: string(status),
		Actor:    "pipeline",
	}); err != nil {
		zap.L().Warn("pipeline: audit append failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

// loadStage2Output decodes the validated extraction artifact into the merge
// shape. A missing confidence or suggestion section is tolerated.
func loadStage2Output(paths jobfs.Paths) (model.StageOutput, error) {
	var out model.StageOutput
	validated := filepath.Join(paths.Stage2Dir, jobfs.ValidatedName)
	if err := jobfs.ReadJSON(validated, &out); err != nil {
		return model.StageOutput{}, eris.Wrap(err, "pipeline: stage 2 produced no validated output")
	}
	return out, nil
}
