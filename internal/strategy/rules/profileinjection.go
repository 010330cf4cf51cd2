package rules

import (
	"fmt"
	"strings"

	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
)

// ProfileInjection ensures that, whenever a profile step is present
// anywhere in the pipeline, every other top-level step is preceded by
// an internal profile-probe step. Idempotent: a probe is never inserted
// twice for the same step.
type ProfileInjection struct{}

func (ProfileInjection) ID() string                   { return "ProfileInjection" }
func (ProfileInjection) Before() []string             { return nil }
func (ProfileInjection) After() []string              { return []string{"RangeMerge", "FilterReordering"} }
func (ProfileInjection) Engines() []pipeline.EngineTag { return nil }

// probeLabel prefixes every injected probe's label so re-application
// recognizes steps that already carry one.
const probeLabel = "__profile_probe__"

func (ProfileInjection) Apply(p *pipeline.Pipeline, tag pipeline.EngineTag) error {
	if len(p.StepsOfKind(step.KindProfile)) == 0 {
		return nil
	}
	for _, s := range p.Steps() {
		if s.Kind == step.KindProfile || isProbe(s) {
			continue
		}
		if pred := p.Predecessor(s); pred != nil && isProbe(pred) {
			continue
		}
		probe := step.Step{
			Kind:         step.KindSideEffectStar,
			Labels:       []string{fmt.Sprintf("%s%d", probeLabel, s.ID)},
			Requirements: step.NewRequirementSet(step.ReqBulk),
		}
		if _, err := p.InsertBefore(probe, s); err != nil {
			return err
		}
	}
	return nil
}

func isProbe(s *step.Step) bool {
	for _, l := range s.Labels {
		if strings.HasPrefix(l, probeLabel) {
			return true
		}
	}
	return false
}
