// Package engine implements how the target execution backend selects
// and parameterizes strategies.
package engine

import (
	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/strategy"
	"github.com/mhfrantz/travopt/internal/strategy/rules"
)

// DefaultSet builds the closed catalog of strategies assembled at
// process init. It is the strategy set an Engine binds by default for
// both STANDARD and COMPUTER pipelines; engine-restricted rules
// self-exclude via Strategy.Engines.
func DefaultSet() (*strategy.Set, error) {
	return strategy.NewSet(
		rules.RangeByIsCount{},
		rules.IdentityRemoval{},
		rules.RangeMerge{},
		rules.FilterReordering{},
		rules.ProfileInjection{},
		rules.VerticesByIdFolding{},
	)
}

// Binding couples a pipeline's engine tag with the strategy set it
// should run under that tag. No rewrite may observe engine-provider
// internals beyond the tag: Binding exposes nothing but the
// tag and the resolved set.
type Binding struct {
	Tag pipeline.EngineTag
	Set *strategy.Set
}

// NewBinding resolves a Binding for the given tag using the default
// strategy catalog.
func NewBinding(tag pipeline.EngineTag) (*Binding, error) {
	set, err := DefaultSet()
	if err != nil {
		return nil, err
	}
	return &Binding{Tag: tag, Set: set}, nil
}

// Apply runs this binding's strategy set over p under its tag, per the
// optimizer entry point of 
func (b *Binding) Apply(p *pipeline.Pipeline) error {
	return strategy.Apply(p, b.Tag, b.Set)
}
