package rules

import (
	"sort"

	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
)

// FilterReordering reorders a contiguous run of pure filter steps (no
// labels, no side effects, no nested traversals with side effects) by
// declared selectivity hint ascending, preserving original order on
// ties.
type FilterReordering struct{}

func (FilterReordering) ID() string                       { return "FilterReordering" }
func (FilterReordering) Before() []string                 { return nil }
func (FilterReordering) After() []string                  { return []string{"IdentityRemoval"} }
func (FilterReordering) Engines() []pipeline.EngineTag     { return nil }

func (FilterReordering) Apply(p *pipeline.Pipeline, tag pipeline.EngineTag) error {
	runs := contiguousFilterRuns(p)
	for _, run := range runs {
		if len(run) < 2 {
			continue
		}
		sorted := make([]*step.Step, len(run))
		copy(sorted, run)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].SelectivityHint < sorted[j].SelectivityHint
		})
		if sameOrder(run, sorted) {
			continue
		}
		if err := reorderRun(p, run, sorted); err != nil {
			return err
		}
	}
	return nil
}

func contiguousFilterRuns(p *pipeline.Pipeline) [][]*step.Step {
	var runs [][]*step.Step
	var cur []*step.Step
	for _, s := range p.Steps() {
		if isPureFilter(p, s) {
			cur = append(cur, s)
		} else {
			if len(cur) > 0 {
				runs = append(runs, cur)
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

func isPureFilter(p *pipeline.Pipeline, s *step.Step) bool {
	if !s.Kind.IsFilter() {
		return false
	}
	if len(s.Labels) > 0 {
		return false
	}
	if s.Requirements.Has(step.ReqSideEffects) {
		return false
	}
	for _, cidx := range s.ChildPipelines {
		child := p.ChildPipeline(cidx)
		if child != nil && child.AggregateRequirements().Has(step.ReqSideEffects) {
			return false
		}
	}
	return true
}

func sameOrder(a, b []*step.Step) bool {
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// reorderRun rewrites the run's positions to match sorted: every slot of
// the run, changed or not, is replaced through Replace by a step with a
// fresh ID that carries the content (kind, payload, hint, children,
// requirements) of the step ranked for that slot.
func reorderRun(p *pipeline.Pipeline, run, sorted []*step.Step) error {
	contents := make([]step.Step, len(sorted))
	for i, s := range sorted {
		contents[i] = s.Clone()
	}
	// Detach child-pipeline ownership from the original steps first, so
	// Replace's old-step cleanup (which frees a replaced step's own
	// children) does not delete indices that `contents` is about to
	// carry over to a different position.
	for _, target := range run {
		target.ChildPipelines = nil
	}
	for i, target := range run {
		c := contents[i]
		newStep, err := p.Replace(target, step.Step{
			Kind:            c.Kind,
			Labels:          c.Labels,
			Has:             c.Has,
			RangeLo:         c.RangeLo,
			RangeHi:         c.RangeHi,
			IsPredicate:     c.IsPredicate,
			SelectivityHint: c.SelectivityHint,
			Negate:          c.Negate,
			ChildPipelines:  c.ChildPipelines,
			Requirements:    c.Requirements,
		})
		if err != nil {
			return err
		}
		run[i] = newStep
	}
	return nil
}
