package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lease-review/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'created',
	stages      JSONB NOT NULL DEFAULT '{}',
	llm_model   TEXT NOT NULL DEFAULT '',
	llm_status  TEXT NOT NULL DEFAULT '',
	last_error  TEXT NOT NULL DEFAULT '',
	excel_row   INTEGER NOT NULL DEFAULT 0,
	exported_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, name string) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    model.JobStatusCreated,
		Stages:    model.NewStages(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	stagesJSON, err := json.Marshal(job.Stages)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal stages")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, name, status, stages, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.Name, string(job.Status), stagesJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return job, nil
}

const pgSelectJob = `SELECT id, name, status, stages, llm_model, llm_status, last_error, excel_row, exported_at, created_at, updated_at FROM jobs`

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, pgSelectJob+` WHERE id = $1`, id)
	job, err := scanPgJob(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get job")
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx, pgSelectJob+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanPgJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.Job) error {
	stagesJSON, err := json.Marshal(job.Stages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stages")
	}

	job.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET name = $1, status = $2, stages = $3, llm_model = $4, llm_status = $5, last_error = $6, excel_row = $7, exported_at = $8, updated_at = $9
		 WHERE id = $10`,
		job.Name, string(job.Status), stagesJSON, job.LLMModel, job.LLMStatus,
		job.LastError, job.ExcelRow, job.ExportedAt, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update job")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete job")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	return nil
}

func scanPgJob(r pgx.Row) (*model.Job, error) {
	var (
		job        model.Job
		status     string
		stagesJSON []byte
		exportedAt *time.Time
	)
	err := r.Scan(&job.ID, &job.Name, &status, &stagesJSON, &job.LLMModel, &job.LLMStatus,
		&job.LastError, &job.ExcelRow, &exportedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	job.ExportedAt = exportedAt
	if err := json.Unmarshal(stagesJSON, &job.Stages); err != nil {
		return nil, eris.Wrap(err, "unmarshal stages")
	}
	if job.Stages == nil {
		job.Stages = model.NewStages()
	}
	return &job, nil
}
