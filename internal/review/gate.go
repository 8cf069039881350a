package review

import (
	"reflect"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lease-review/internal/model"
)

// StateLoader is the view of the working state store the gate needs.
type StateLoader interface {
	LoadOrInit(jobID string) (*model.WorkingState, error)
	Schema() *model.Schema
}

// Gate evaluates review completion for export decisions.
type Gate struct {
	states StateLoader
}

// NewGate creates a review gate over the working state store.
func NewGate(states StateLoader) *Gate {
	return &Gate{states: states}
}

// Progress counts reviewed fields against the schema length.
func (g *Gate) Progress(jobID string) (model.Progress, error) {
	ws, err := g.states.LoadOrInit(jobID)
	if err != nil {
		return model.Progress{}, err
	}
	schema := g.states.Schema()
	p := model.Progress{Total: schema.Len()}
	for _, field := range schema.Fields() {
		if entry, ok := ws.Fields[field]; ok && entry.Reviewed() {
			p.Reviewed++
		}
	}
	return p, nil
}

// Unreviewed returns the schema-ordered names of fields still unreviewed.
func (g *Gate) Unreviewed(jobID string) ([]string, error) {
	ws, err := g.states.LoadOrInit(jobID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, field := range g.states.Schema().Fields() {
		if entry, ok := ws.Fields[field]; !ok || !entry.Reviewed() {
			out = append(out, field)
		}
	}
	return out, nil
}

// CheckExport reports whether export may proceed. It fails with
// ErrReviewIncomplete while any field is unreviewed, and with
// ErrUnsavedChanges when the caller's snapshot of field values diverges from
// the durable working state. A nil snapshot means the client saved first.
func (g *Gate) CheckExport(jobID string, snapshot map[string]any) error {
	unreviewed, err := g.Unreviewed(jobID)
	if err != nil {
		return err
	}
	if len(unreviewed) > 0 {
		return eris.Wrapf(ErrReviewIncomplete, "unreviewed: %v", unreviewed)
	}
	if snapshot == nil {
		return nil
	}

	ws, err := g.states.LoadOrInit(jobID)
	if err != nil {
		return err
	}
	schema := g.states.Schema()
	var dirty []string
	for field, raw := range snapshot {
		if !schema.Has(field) {
			continue
		}
		want := schema.Coerce(field, raw)
		if !valuesEqual(ws.Fields[field].Value, want) {
			dirty = append(dirty, field)
		}
	}
	if len(dirty) > 0 {
		sort.Strings(dirty)
		return eris.Wrapf(ErrUnsavedChanges, "dirty: %v", dirty)
	}
	return nil
}

// valuesEqual compares a durable value against a freshly coerced one.
// JSON round-trips turn integers into float64, so numerics compare by
// magnitude rather than by type.
func valuesEqual(a, b any) bool {
	fa, aNum := asFloat(a)
	fb, bNum := asFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
