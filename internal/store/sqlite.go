package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lease-review/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'created',
	stages      TEXT NOT NULL DEFAULT '{}',
	llm_model   TEXT NOT NULL DEFAULT '',
	llm_status  TEXT NOT NULL DEFAULT '',
	last_error  TEXT NOT NULL DEFAULT '',
	excel_row   INTEGER NOT NULL DEFAULT 0,
	exported_at DATETIME,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, name string) (*model.Job, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal stages")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, name, status, stages, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, string(job.Status), string(stagesJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, stages, llm_model, llm_status, last_error, excel_row, exported_at, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get job")
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, stages, llm_model, llm_status, last_error, excel_row, exported_at, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job) error {
	stagesJSON, err := json.Marshal(job.Stages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stages")
	}

	job.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET name = ?, status = ?, stages = ?, llm_model = ?, llm_status = ?, last_error = ?, excel_row = ?, exported_at = ?, updated_at = ?
		 WHERE id = ?`,
		job.Name, string(job.Status), string(stagesJSON), job.LLMModel, job.LLMStatus,
		job.LastError, job.ExcelRow, job.ExportedAt, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: job %s", job.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return eris.Wrap(err, "sqlite: delete job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: job %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*model.Job, error) {
	var (
		job        model.Job
		status     string
		stagesJSON string
		exportedAt sql.NullTime
	)
	err := r.Scan(&job.ID, &job.Name, &status, &stagesJSON, &job.LLMModel, &job.LLMStatus,
		&job.LastError, &job.ExcelRow, &exportedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	if exportedAt.Valid {
		t := exportedAt.Time.UTC()
		job.ExportedAt = &t
	}
	if err := json.Unmarshal([]byte(stagesJSON), &job.Stages); err != nil {
		return nil, eris.Wrap(err, "unmarshal stages")
	}
	if job.Stages == nil {
		job.Stages = model.NewStages()
	}
	return &job, nil
}
