// Package rules implements the catalog of concrete rewrite rules.
package rules

import (
	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
	"github.com/mhfrantz/travopt/internal/value"
)

// RangeByIsCount recognizes "... count is(P, V)" and truncates the
// upstream with a range(0, highRange) step.
type RangeByIsCount struct{}

func (RangeByIsCount) ID() string                        { return "RangeByIsCount" }
func (RangeByIsCount) Before() []string                  { return []string{"RangeMerge"} }
func (RangeByIsCount) After() []string                   { return nil }
func (RangeByIsCount) Engines() []pipeline.EngineTag      { return nil }

// Apply rewrites every "count is(...)" (or "count is(...) is(...) ...",
// the conjunction case) occurrence in p.
func (r RangeByIsCount) Apply(p *pipeline.Pipeline, tag pipeline.EngineTag) error {
	for _, count := range p.StepsOfKind(step.KindCount) {
		if err := r.tryRewrite(p, count, tag); err != nil {
			return err
		}
	}
	return nil
}

func (r RangeByIsCount) tryRewrite(p *pipeline.Pipeline, count *step.Step, tag pipeline.EngineTag) error {
	isSteps := consecutiveIsSteps(p, count)
	if len(isSteps) == 0 {
		return nil // Unsupported: no is() immediately after count; not an error
	}

	highRange := -1
	for _, is := range isSteps {
		k, ok := highRangeFor(is.IsPredicate)
		if !ok {
			return nil // any non-derivable predicate disqualifies the whole rewrite
		}
		if k > highRange {
			highRange = k
		}
	}
	if highRange <= 0 {
		return nil // highRange == 0 (or no predicate fired): rule does not fire
	}

	if tag == pipeline.ComputerEngine && !computerSafe(p, count) {
		return nil // Unsupported on COMPUTER: unsafe to truncate before a barrier
	}

	pred := p.Predecessor(count)
	if pred != nil && pred.Kind == step.KindRange && pred.RangeLo == 0 {
		merged := highRange
		if pred.RangeHi != -1 && int(pred.RangeHi) < merged {
			merged = int(pred.RangeHi)
		}
		if pred.RangeHi == int64(merged) {
			return nil // already converged: idempotent no-op
		}
		pred.RangeHi = int64(merged)
		return nil
	}

	_, err := p.InsertBefore(step.Step{Kind: step.KindRange, RangeLo: 0, RangeHi: int64(highRange)}, count)
	return err
}

// consecutiveIsSteps returns the run of is() steps immediately following
// count, supporting the conjunction case ("count is(...) is(...)").
func consecutiveIsSteps(p *pipeline.Pipeline, count *step.Step) []*step.Step {
	var out []*step.Step
	cur := p.Successor(count)
	for cur != nil && cur.Kind == step.KindIs {
		out = append(out, cur)
		cur = p.Successor(cur)
	}
	return out
}

// highRangeFor derives highRange for a terminating predicate. ok is
// false when the rule does not apply to this predicate (opaque
// predicate, non-numeric value, negative n, or empty set).
func highRangeFor(pred value.Predicate) (int, bool) {
	switch pred.Op {
	case value.OpEq, value.OpNeq, value.OpLte, value.OpGt:
		n, ok := nonNegativeInt(pred.Value)
		if !ok {
			return 0, false
		}
		return n + 1, true
	case value.OpLt, value.OpGte:
		n, ok := nonNegativeInt(pred.Value)
		if !ok {
			return 0, false
		}
		return n, true
	case value.OpInside:
		_, ok1 := nonNegativeInt(pred.Lo)
		b, ok2 := nonNegativeInt(pred.Hi)
		if !ok1 || !ok2 {
			return 0, false
		}
		return b, true
	case value.OpOutside:
		_, ok1 := nonNegativeInt(pred.Lo)
		b, ok2 := nonNegativeInt(pred.Hi)
		if !ok1 || !ok2 {
			return 0, false
		}
		return b + 1, true
	case value.OpWithin:
		if len(pred.Set) == 0 {
			return 0, false
		}
		max, ok := value.MaxOf(pred.Set)
		if !ok {
			return 0, false
		}
		n, ok := nonNegativeInt(max)
		if !ok {
			return 0, false
		}
		return n + 1, true
	case value.OpWithout:
		if len(pred.Set) == 0 {
			return 0, false
		}
		max, ok := value.MaxOf(pred.Set)
		if !ok {
			return 0, false
		}
		n, ok := nonNegativeInt(max)
		if !ok {
			return 0, false
		}
		return n, true
	default:
		return 0, false // opaque or unrecognized predicate: rule never fires
	}
}

func nonNegativeInt(v value.Value) (int, bool) {
	n, ok := v.AsInt()
	if !ok || n < 0 {
		return 0, false
	}
	return int(n), true
}

// computerSafe implements the COMPUTER engine-interaction condition:
// the upstream run between the last barrier and count must carry no
// label consumed downstream from count, and no side-effecting step.
func computerSafe(p *pipeline.Pipeline, count *step.Step) bool {
	i := p.PositionOf(count)
	upstreamLabels := make(map[string]bool)
	for j := i - 1; j >= 0; j-- {
		s := p.StepAt(j)
		if s.Kind.IsBarrier() {
			break
		}
		if s.Kind == step.KindSideEffectStar {
			return false
		}
		for _, l := range s.Labels {
			upstreamLabels[l] = true
		}
	}
	if len(upstreamLabels) == 0 {
		return true
	}
	for j := i + 1; j < p.Len(); j++ {
		s := p.StepAt(j)
		for _, l := range s.Labels {
			if upstreamLabels[l] {
				return false
			}
		}
	}
	return true
}
