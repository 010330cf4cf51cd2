package trace

import (
	"github.com/google/uuid"

	"github.com/mhfrantz/travopt/internal/codec"
	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/strategy"
)

// Recorder binds a Store to one apply run's trace ID.
type Recorder struct {
	store   *Store
	traceID string
}

// NewRecorder starts a fresh trace ID for one apply run.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store, traceID: uuid.NewString()}
}

// TraceID returns the ID this recorder's events are filed under, for
// the explain CLI surface to look them back up.
func (r *Recorder) TraceID() string {
	return r.traceID
}

// instrumented wraps a strategy.Strategy so Apply records a fired or
// skipped event around the wrapped call: fired when the pipeline's
// serialized snapshot changed, skipped when the rule declined to match
// (the Unsupported case: not an error, merely not observed). When the
// wrapped Apply returns an error, an EventConfigurationError event
// carrying the error text is recorded instead.
type instrumented struct {
	strategy.Strategy
	rec *Recorder
}

func (i instrumented) Apply(p *pipeline.Pipeline, tag pipeline.EngineTag) error {
	before, _ := codec.MarshalJSON(p)

	if err := i.Strategy.Apply(p, tag); err != nil {
		if recErr := i.rec.store.RecordEvent(&Event{
			TraceID:    i.rec.traceID,
			StrategyID: i.ID(),
			Kind:       EventConfigurationError,
			EngineTag:  tag.String(),
			StepID:     -1,
			Reason:     err.Error(),
		}); recErr != nil {
			return recErr
		}
		return err
	}

	after, _ := codec.MarshalJSON(p)
	kind := EventSkipped
	if string(before) != string(after) {
		kind = EventFired
	}
	return i.rec.store.RecordEvent(&Event{
		TraceID:    i.rec.traceID,
		StrategyID: i.ID(),
		Kind:       kind,
		EngineTag:  tag.String(),
		StepID:     -1,
	})
}

// Instrument wraps every strategy in set so that running it through
// strategy.Apply records fired/skipped events under this recorder's
// trace ID. The returned Set is otherwise equivalent: same IDs,
// ordering edges, and engine restrictions.
func (r *Recorder) Instrument(set *strategy.Set) (*strategy.Set, error) {
	members := set.Strategies()
	wrapped := make([]strategy.Strategy, len(members))
	for i, st := range members {
		wrapped[i] = instrumented{Strategy: st, rec: r}
	}
	return strategy.NewSet(wrapped...)
}
