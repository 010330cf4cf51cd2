package rules

import (
	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
)

// IdentityRemoval removes identity steps that are neither labeled nor
// the sole step of their pipeline.
type IdentityRemoval struct{}

func (IdentityRemoval) ID() string                       { return "IdentityRemoval" }
func (IdentityRemoval) Before() []string                 { return []string{"RangeMerge"} }
func (IdentityRemoval) After() []string                  { return nil }
func (IdentityRemoval) Engines() []pipeline.EngineTag     { return nil }

func (IdentityRemoval) Apply(p *pipeline.Pipeline, tag pipeline.EngineTag) error {
	for _, s := range p.StepsOfKind(step.KindIdentity) {
		if len(s.Labels) > 0 {
			continue
		}
		if p.Len() == 1 {
			continue
		}
		if err := p.Remove(s); err != nil {
			return err
		}
	}
	return nil
}
