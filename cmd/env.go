package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lease-review/internal/audit"
	"github.com/sells-group/lease-review/internal/export"
	"github.com/sells-group/lease-review/internal/joblock"
	"github.com/sells-group/lease-review/internal/llm"
	"github.com/sells-group/lease-review/internal/model"
	"github.com/sells-group/lease-review/internal/pipeline"
	"github.com/sells-group/lease-review/internal/review"
	"github.com/sells-group/lease-review/internal/state"
	"github.com/sells-group/lease-review/internal/store"
)

// appEnv holds the initialized store, review machinery, pipeline runner,
// and export sink shared by the serve/jobs/run/export commands.
type appEnv struct {
	Store    store.Store
	States   *state.Store
	Audit    *audit.Log
	Locks    *joblock.Registry
	Engine   *review.Engine
	Gate     *review.Gate
	Runner   *pipeline.Runner
	Workbook *export.Workbook
	Exporter *export.Service
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up storage and wires every service. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	schema := model.DefaultSchema()
	states := state.NewStore(cfg.Jobs.Root, schema)
	auditLog := audit.NewLog(cfg.Jobs.Root)
	locks := joblock.New()

	suggester, err := llm.NewSuggester(cfg.LLM)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	runner := pipeline.NewRunner(
		cfg,
		st,
		states,
		auditLog,
		locks,
		pipeline.NewCommandPreprocessor(cfg.Stages.Preprocess),
		pipeline.NewCommandExtractor(cfg.Stages.Extract),
		suggester,
	)

	workbook := export.NewWorkbook(cfg.Export.WorkbookPath, cfg.Export.SheetName, schema)
	gate := review.NewGate(states)
	exporter := export.NewService(st, states, gate, auditLog, locks, workbook, cfg.Jobs.Root)

	return &appEnv{
		Store:    st,
		States:   states,
		Audit:    auditLog,
		Locks:    locks,
		Engine:   review.NewEngine(states, auditLog, locks),
		Gate:     gate,
		Runner:   runner,
		Workbook: workbook,
		Exporter: exporter,
	}, nil
}
