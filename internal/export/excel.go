// Package export writes finalized jobs to the shared review workbook and
// produces the final JSON artifact.
package export

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/lease-review/internal/model"
)

// Workbook metadata columns, written before the schema fields.
var metaHeaders = []string{"job_id", "job_name", "job_status", "exported_at"}

// Workbook is the single shared XLSX sink. One row per job, keyed on the
// job id in column A; re-exports overwrite the job's existing row. All
// access is serialized through a process-wide mutex because excelize
// rewrites the whole file on save.
type Workbook struct {
	mu     sync.Mutex
	path   string
	sheet  string
	schema *model.Schema
}

// NewWorkbook creates a sink over the workbook at path. The file is
// created on first upsert.
func NewWorkbook(path, sheet string, schema *model.Schema) *Workbook {
	return &Workbook{path: path, sheet: sheet, schema: schema}
}

// Path returns the workbook location on disk.
func (w *Workbook) Path() string { return w.path }

func (w *Workbook) headers() []string {
	return append(append([]string{}, metaHeaders...), w.schema.Fields()...)
}

// Upsert writes the job's row, overwriting the row already keyed by the
// job id or appending a new one. It returns the 1-based row number.
func (w *Workbook) Upsert(job *model.Job, row map[string]any, exportedAt time.Time) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rowNum, err := w.findRow(f, job.ID)
	if err != nil {
		return 0, err
	}

	write := func(col int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, rowNum)
		if err != nil {
			return eris.Wrap(err, "export: cell name")
		}
		return eris.Wrap(f.SetCellValue(w.sheet, cell, cellValue(v)), "export: set cell")
	}

	meta := []any{job.ID, job.Name, string(job.Status), exportedAt.UTC().Format(time.RFC3339)}
	for i, v := range meta {
		if err := write(i+1, v); err != nil {
			return 0, err
		}
	}
	for i, field := range w.schema.Fields() {
		if err := write(len(meta)+i+1, row[field]); err != nil {
			return 0, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return 0, eris.Wrap(err, "export: workbook dir")
	}
	if err := f.SaveAs(w.path); err != nil {
		return 0, eris.Wrap(err, "export: save workbook")
	}
	return rowNum, nil
}

// Rows returns every data row as header-keyed maps, in sheet order.
func (w *Workbook) Rows() ([]map[string]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := xlsx.OpenFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "export: open workbook")
	}

	sheet, ok := f.Sheet[w.sheet]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", w.sheet)
	}

	var header []string
	var out []map[string]string
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		if i == 0 {
			header = cells
			continue
		}
		if len(cells) == 0 || cells[0] == "" {
			continue
		}
		m := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(cells) {
				m[h] = cells[j]
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// open loads the workbook, creating it with a header row when missing.
func (w *Workbook) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		if idx, _ := f.GetSheetIndex(w.sheet); idx == -1 {
			if _, err := f.NewSheet(w.sheet); err != nil {
				return nil, eris.Wrap(err, "export: new sheet")
			}
			if err := w.writeHeader(f); err != nil {
				return nil, err
			}
		}
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "export: open workbook")
	}

	f = excelize.NewFile()
	if w.sheet != "Sheet1" {
		if _, err := f.NewSheet(w.sheet); err != nil {
			return nil, eris.Wrap(err, "export: new sheet")
		}
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, eris.Wrap(err, "export: drop default sheet")
		}
	}
	if err := w.writeHeader(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (w *Workbook) writeHeader(f *excelize.File) error {
	for i, h := range w.headers() {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return eris.Wrap(err, "export: cell name")
		}
		if err := f.SetCellValue(w.sheet, cell, h); err != nil {
			return eris.Wrap(err, "export: write header")
		}
	}
	return nil
}

// findRow locates the row keyed by jobID in column A, or the first free
// row after the data when the job has not been exported before.
func (w *Workbook) findRow(f *excelize.File, jobID string) (int, error) {
	cols, err := f.GetCols(w.sheet)
	if err != nil {
		return 0, eris.Wrap(err, "export: read key column")
	}
	if len(cols) == 0 {
		return 2, nil
	}
	last := 1
	for i, v := range cols[0] {
		if i == 0 {
			continue
		}
		if v == jobID {
			return i + 1, nil
		}
		if v != "" {
			last = i + 1
		}
	}
	return last + 1, nil
}

// cellValue flattens a working-state value into something Excel can hold.
// Nil and non-finite floats become empty cells; structured values are
// stored as their JSON text.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return x
	case float32:
		return cellValue(float64(x))
	case string, bool, int, int32, int64:
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", x)
	}
}
