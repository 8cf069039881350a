package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lease-review/internal/audit"
	"github.com/sells-group/lease-review/internal/joblock"
	"github.com/sells-group/lease-review/internal/model"
	"github.com/sells-group/lease-review/internal/state"
)

type reviewFixture struct {
	engine *Engine
	gate   *Gate
	states *state.Store
	log    *audit.Log
}

func newFixture(t *testing.T) *reviewFixture {
	t.Helper()
	root := t.TempDir()
	states := state.NewStore(root, model.DefaultSchema())
	log := audit.NewLog(root)
	return &reviewFixture{
		engine: NewEngine(states, log, joblock.New()),
		gate:   NewGate(states),
		states: states,
		log:    log,
	}
}

func TestApply_UnknownField(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Apply("job1", Action{Field: "nope", Action: model.ActionAccept})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestApply_InvalidAction(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Apply("job1", Action{Field: "city", Action: "approve"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestApply_AcceptKeepsDisplayedValue(t *testing.T) {
	f := newFixture(t)

	ws, err := f.states.LoadOrInit("job1")
	require.NoError(t, err)
	ws.Fields["city"].Value = "Pune"
	ws.Fields["city"].Source = model.SourceDerived
	require.NoError(t, f.states.Save("job1", ws))

	fs, err := f.engine.Apply("job1", Action{Field: "city", Action: model.ActionAccept, Actor: "reviewer"})
	require.NoError(t, err)

	assert.Equal(t, "Pune", fs.Value)
	assert.Equal(t, model.SourceCurrent, fs.Source)
	assert.Equal(t, model.ReviewReviewed, fs.Review.Status)
	assert.Equal(t, model.ActionAccept, fs.Review.Action)
	require.NotNil(t, fs.Review.ReviewedAt)
}

func TestApply_EditCoercesAndOverrides(t *testing.T) {
	f := newFixture(t)

	fs, err := f.engine.Apply("job1", Action{
		Field:  "monthly_rent_rs",
		Action: model.ActionEdit,
		Value:  "1,75,000",
		Actor:  "reviewer",
	})
	require.NoError(t, err)

	assert.Equal(t, 175000.0, fs.Value)
	assert.Equal(t, model.SourceEdited, fs.Source)
	assert.Equal(t, model.ReviewReviewed, fs.Review.Status)
}

func TestApply_ClearConfirmsAbsent(t *testing.T) {
	f := newFixture(t)

	ws, err := f.states.LoadOrInit("job1")
	require.NoError(t, err)
	ws.Fields["handover_date"].Value = "2024-05-15"
	ws.Fields["handover_date"].Source = model.SourceDerived
	require.NoError(t, f.states.Save("job1", ws))

	fs, err := f.engine.Apply("job1", Action{Field: "handover_date", Action: model.ActionClear, Actor: "reviewer"})
	require.NoError(t, err)

	// A cleared field is absent AND reviewed: confirming absence counts.
	assert.Nil(t, fs.Value)
	assert.Equal(t, model.SourceCleared, fs.Source)
	assert.Equal(t, model.ReviewReviewed, fs.Review.Status)

	progress, err := f.gate.Progress("job1")
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Reviewed)
}

func TestApply_AppendsOneAuditEventPerAction(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Apply("job1", Action{Field: "city", Action: model.ActionAccept, Actor: "reviewer"})
		require.NoError(t, err)
	}

	events, err := f.log.Read("job1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, "city", ev.Field)
		assert.Equal(t, model.ActionAccept, ev.Action)
		assert.Equal(t, "reviewer", ev.Actor)
	}
}

func TestApply_Idempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.engine.Apply("job1", Action{Field: "city", Action: model.ActionEdit, Value: "Pune"})
	require.NoError(t, err)
	second, err := f.engine.Apply("job1", Action{Field: "city", Action: model.ActionEdit, Value: "Pune"})
	require.NoError(t, err)

	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, first.Source, second.Source)
	assert.Equal(t, first.Review.Status, second.Review.Status)
}

func TestSaveValues_DoesNotFlipReview(t *testing.T) {
	f := newFixture(t)

	saved, ws, err := f.engine.SaveValues("job1", map[string]any{
		"city":                "Pune",
		"lease_tenure_months": "60",
		"bogus_field":         "ignored",
	}, "reviewer")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"city", "lease_tenure_months"}, saved)
	assert.Equal(t, "Pune", ws.Fields["city"].Value)
	assert.Equal(t, int64(60), ws.Fields["lease_tenure_months"].Value)
	assert.Equal(t, model.ReviewUnreviewed, ws.Fields["city"].Review.Status)
	assert.Equal(t, model.SourceNone, ws.Fields["city"].Source)

	events, err := f.log.Read("job1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "save", events[0].Action)
}
