package export

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lease-review/internal/model"
)

func newTestWorkbook(t *testing.T) *Workbook {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export", "lease_jobs.xlsx")
	return NewWorkbook(path, "Lease Jobs", model.DefaultSchema())
}

func sampleRow() map[string]any {
	return map[string]any{
		"city":                "Pune",
		"monthly_rent_rs":     150000.0,
		"lease_tenure_months": int64(60),
	}
}

func TestUpsert_CreatesWorkbookWithHeader(t *testing.T) {
	wb := newTestWorkbook(t)
	job := &model.Job{ID: "job1", Name: "lease.pdf", Status: model.JobStatusCompleted}

	rowNum, err := wb.Upsert(job, sampleRow(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, rowNum) // first data row, after the header

	rows, err := wb.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "job1", rows[0]["job_id"])
	assert.Equal(t, "lease.pdf", rows[0]["job_name"])
	assert.Equal(t, "completed", rows[0]["job_status"])
	assert.Equal(t, "Pune", rows[0]["city"])
}

func TestUpsert_SameJobOverwritesRow(t *testing.T) {
	wb := newTestWorkbook(t)
	job := &model.Job{ID: "job1", Name: "lease.pdf", Status: model.JobStatusCompleted}

	first, err := wb.Upsert(job, sampleRow(), time.Now())
	require.NoError(t, err)

	updated := sampleRow()
	updated["city"] = "Mumbai"
	second, err := wb.Upsert(job, updated, time.Now())
	require.NoError(t, err)

	assert.Equal(t, first, second)

	rows, err := wb.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1) // re-export never duplicates the row
	assert.Equal(t, "Mumbai", rows[0]["city"])
}

func TestUpsert_DistinctJobsAppend(t *testing.T) {
	wb := newTestWorkbook(t)

	r1, err := wb.Upsert(&model.Job{ID: "job1", Status: model.JobStatusCompleted}, sampleRow(), time.Now())
	require.NoError(t, err)
	r2, err := wb.Upsert(&model.Job{ID: "job2", Status: model.JobStatusCompleted}, sampleRow(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, r1)
	assert.Equal(t, 3, r2)

	rows, err := wb.Rows()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRows_MissingWorkbook(t *testing.T) {
	wb := newTestWorkbook(t)
	rows, err := wb.Rows()
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestCellValue_Sanitization(t *testing.T) {
	assert.Equal(t, "", cellValue(nil))
	assert.Equal(t, "", cellValue(math.NaN()))
	assert.Equal(t, "", cellValue(math.Inf(1)))
	assert.Equal(t, 1.5, cellValue(1.5))
	assert.Equal(t, "text", cellValue("text"))
	assert.Equal(t, int64(60), cellValue(int64(60)))
	assert.Equal(t, `["a","b"]`, cellValue([]any{"a", "b"}))
	assert.Equal(t, `{"k":1}`, cellValue(map[string]any{"k": 1}))
}
