package rules

import (
	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
	"github.com/mhfrantz/travopt/internal/value"
)

// VerticesByIdFolding folds "vertex-source has(id, eq|within, ...)"
// into a direct id-lookup on the source step, dropping the has step.
type VerticesByIdFolding struct{}

func (VerticesByIdFolding) ID() string                       { return "VerticesByIdFolding" }
func (VerticesByIdFolding) Before() []string                 { return nil }
func (VerticesByIdFolding) After() []string                  { return nil }
func (VerticesByIdFolding) Engines() []pipeline.EngineTag     { return nil }

const idFoldKey = "id"

func (VerticesByIdFolding) Apply(p *pipeline.Pipeline, tag pipeline.EngineTag) error {
	for _, src := range p.StepsOfKind(step.KindVertexSource) {
		has := p.Successor(src)
		if has == nil || has.Kind != step.KindHas {
			continue
		}
		if has.Has.Key != idFoldKey {
			continue
		}
		op := has.Has.Predicate.Op
		if op != value.OpEq && op != value.OpWithin {
			continue
		}
		if len(has.Labels) > 0 {
			continue // has carries a user label: folding would silently drop it
		}
		src.Has = has.Has
		if err := p.Remove(has); err != nil {
			return err
		}
	}
	return nil
}
