package trace_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhfrantz/travopt/internal/engine"
	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
	"github.com/mhfrantz/travopt/internal/strategy"
	"github.com/mhfrantz/travopt/internal/trace"
	"github.com/mhfrantz/travopt/internal/value"
)

func openStore(t *testing.T) *trace.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := trace.Open(filepath.Join(dir, "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndQueryEvents(t *testing.T) {
	s := openStore(t)
	rec := trace.NewRecorder(s)

	require.NoError(t, s.RecordEvent(&trace.Event{
		TraceID:    rec.TraceID(),
		StrategyID: "RangeByIsCount",
		Kind:       trace.EventFired,
		EngineTag:  "STANDARD",
		StepID:     3,
		Reason:     "inserted range(0,1)",
	}))
	require.NoError(t, s.RecordEvent(&trace.Event{
		TraceID:    rec.TraceID(),
		StrategyID: "IdentityRemoval",
		Kind:       trace.EventSkipped,
		EngineTag:  "STANDARD",
		StepID:     -1,
	}))

	events, err := s.EventsForTrace(rec.TraceID())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, trace.EventFired, events[0].Kind)
	assert.Equal(t, trace.EventSkipped, events[1].Kind)
}

func TestEventsForUnknownTraceIsEmpty(t *testing.T) {
	s := openStore(t)
	events, err := s.EventsForTrace("nonexistent")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestInstrumentRecordsFiredAndSkipped(t *testing.T) {
	s := openStore(t)
	rec := trace.NewRecorder(s)

	set, err := engine.DefaultSet()
	require.NoError(t, err)
	traced, err := rec.Instrument(set)
	require.NoError(t, err)

	p := pipeline.New()
	p.AppendStep(step.KindOut)
	count, _ := p.AppendStep(step.KindCount)
	is, _ := p.AppendStep(step.KindIs)
	is.IsPredicate = value.Eq(value.Int(0))
	_ = count

	require.NoError(t, strategy.Apply(p, pipeline.StandardEngine, traced))

	events, err := s.EventsForTrace(rec.TraceID())
	require.NoError(t, err)
	require.NotEmpty(t, events)

	var sawFired, sawSkipped bool
	for _, ev := range events {
		if ev.StrategyID == "RangeByIsCount" && ev.Kind == trace.EventFired {
			sawFired = true
		}
		if ev.StrategyID == "VerticesByIdFolding" && ev.Kind == trace.EventSkipped {
			sawSkipped = true
		}
	}
	assert.True(t, sawFired, "expected RangeByIsCount to fire")
	assert.True(t, sawSkipped, "expected VerticesByIdFolding to report skipped")
}
