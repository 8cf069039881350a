package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lease-review/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresFromPool(mock), mock
}

func stagesJSON(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(model.NewStages())
	require.NoError(t, err)
	return b
}

func TestPostgres_CreateJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(pgxmock.AnyArg(), "lease.pdf", "created", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(), "lease.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusCreated, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "name", "status", "stages", "llm_model", "llm_status",
		"last_error", "excel_row", "exported_at", "created_at", "updated_at",
	}).AddRow("job1", "lease.pdf", "completed", stagesJSON(t), "qwen2.5", "ok", "", 3, (*time.Time)(nil), now, now)

	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id = \$1`).
		WithArgs("job1").
		WillReturnRows(rows)

	job, err := s.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	assert.Equal(t, "job1", job.ID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ExcelRow)
	assert.Nil(t, job.ExportedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateJob(context.Background(), &model.Job{ID: "missing", Stages: model.NewStages()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM jobs WHERE id = \$1`).
		WithArgs("job1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.DeleteJob(context.Background(), "job1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "name", "status", "stages", "llm_model", "llm_status",
		"last_error", "excel_row", "exported_at", "created_at", "updated_at",
	}).
		AddRow("job2", "b.pdf", "created", stagesJSON(t), "", "", "", 0, (*time.Time)(nil), now, now).
		AddRow("job1", "a.pdf", "failed", stagesJSON(t), "", "", "stage1 failed: x", 0, (*time.Time)(nil), now.Add(-time.Hour), now)

	mock.ExpectQuery(`SELECT .+ FROM jobs ORDER BY created_at DESC`).
		WillReturnRows(rows)

	jobs, err := s.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job2", jobs[0].ID)
	assert.Equal(t, "stage1 failed: x", jobs[1].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
