package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lease-review/internal/config"
	"github.com/sells-group/lease-review/internal/model"
)

// ErrNotFound is returned when a job id has no record.
var ErrNotFound = eris.New("store: job not found")

// Store defines the persistence interface for the job registry. Review
// artifacts (working state, audit log, stage outputs) live on disk under the
// jobs root; the registry holds only job records.
type Store interface {
	CreateJob(ctx context.Context, name string) (*model.Job, error)
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context) ([]model.Job, error)

	// UpdateJob persists the job's mutable columns (status, stage states,
	// llm fields, last error, export linkage) and bumps updated_at. Callers
	// hold the per-job lock, so read-modify-write is safe.
	UpdateJob(ctx context.Context, job *model.Job) error

	DeleteJob(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New creates a Store from config, choosing the backend by driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
