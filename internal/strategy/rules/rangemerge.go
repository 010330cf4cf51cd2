package rules

import (
	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
)

// RangeMerge collapses adjacent range(a,b) range(c,d) steps into
// range(a+c, min(b, a+d)), clamped at infinity. Runs
// after RangeByIsCount so it can absorb the range that rule inserts.
type RangeMerge struct{}

func (RangeMerge) ID() string                    { return "RangeMerge" }
func (RangeMerge) Before() []string              { return nil }
func (RangeMerge) After() []string               { return []string{"RangeByIsCount", "IdentityRemoval"} }
func (RangeMerge) Engines() []pipeline.EngineTag { return nil }

func (RangeMerge) Apply(p *pipeline.Pipeline, tag pipeline.EngineTag) error {
	for {
		merged := false
		ranges := p.StepsOfKind(step.KindRange)
		for _, first := range ranges {
			second := p.Successor(first)
			if second == nil || second.Kind != step.KindRange {
				continue
			}
			a, b := first.RangeLo, first.RangeHi
			c, d := second.RangeLo, second.RangeHi
			newLo := a + c
			newHi := clampMin(b, addUnbounded(a, d))
			if _, err := p.Replace(first, step.Step{Kind: step.KindRange, RangeLo: newLo, RangeHi: newHi}); err != nil {
				return err
			}
			if err := p.Remove(second); err != nil {
				return err
			}
			merged = true
			break
		}
		if !merged {
			return nil
		}
	}
}

// addUnbounded adds a to d, treating -1 (unbounded) as absorbing.
func addUnbounded(a, d int64) int64 {
	if d == -1 {
		return -1
	}
	return a + d
}

// clampMin returns the smaller of b and d, treating -1 as +infinity.
func clampMin(b, d int64) int64 {
	if b == -1 {
		return d
	}
	if d == -1 {
		return b
	}
	if b < d {
		return b
	}
	return d
}
