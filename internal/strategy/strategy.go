// Package strategy implements the strategy framework: registry,
// dependency ordering, and one-shot application of a strategy set
// over a pipeline.
package strategy

import (
	"fmt"
	"sort"

	"github.com/mhfrantz/travopt/internal/errs"
	"github.com/mhfrantz/travopt/internal/pipeline"
)

// Strategy is a pure, in-place rewrite function over a pipeline,
// parameterized by the engine tag the pipeline carries. Implementations
// live in internal/strategy/rules.
type Strategy interface {
	// ID is the stable identifier used for ordering and diagnostics.
	ID() string
	// Before names strategy IDs this strategy must run before.
	Before() []string
	// After names strategy IDs this strategy must run after.
	After() []string
	// Engines restricts the strategy to a subset of engine tags; nil or
	// empty means unrestricted.
	Engines() []pipeline.EngineTag
	// Apply rewrites p in place for the given engine tag. It must be
	// idempotent: re-applying to an already-optimized pipeline is a
	// no-op.
	Apply(p *pipeline.Pipeline, tag pipeline.EngineTag) error
}

// Set is a named collection of strategies to run together.
type Set struct {
	byID []Strategy
}

// NewSet builds a strategy Set, rejecting duplicate IDs.
func NewSet(strategies ...Strategy) (*Set, error) {
	seen := make(map[string]bool)
	for _, s := range strategies {
		if seen[s.ID()] {
			return nil, errs.Configuration("duplicate strategy id: " + s.ID())
		}
		seen[s.ID()] = true
	}
	return &Set{byID: strategies}, nil
}

// Strategies returns the set's members in registration order, e.g. for
// a caller that wants to wrap each one (diagnostic instrumentation)
// before rebuilding a Set via NewSet.
func (s *Set) Strategies() []Strategy {
	return append([]Strategy(nil), s.byID...)
}

func (s *Set) lookup() map[string]Strategy {
	m := make(map[string]Strategy, len(s.byID))
	for _, st := range s.byID {
		m[st.ID()] = st
	}
	return m
}

// Order computes the topological order over the declared before/after
// edges, breaking ties by strategy identifier for determinism.
// Fails with ConfigurationError on a cycle or an edge naming an unknown
// strategy ID.
func (s *Set) Order() ([]Strategy, error) {
	byID := s.lookup()

	// adjacency: edge u -> v means u must run before v.
	adj := make(map[string][]string)
	indeg := make(map[string]int)
	for _, st := range s.byID {
		if _, ok := adj[st.ID()]; !ok {
			adj[st.ID()] = nil
		}
		indeg[st.ID()] = indeg[st.ID()]
		for _, before := range st.Before() {
			if _, ok := byID[before]; !ok {
				return nil, errs.Configuration("strategy " + st.ID() + " declares before-edge to unknown strategy " + before)
			}
			adj[st.ID()] = append(adj[st.ID()], before)
			indeg[before]++
		}
		for _, after := range st.After() {
			if _, ok := byID[after]; !ok {
				return nil, errs.Configuration("strategy " + st.ID() + " declares after-edge to unknown strategy " + after)
			}
			adj[after] = append(adj[after], st.ID())
			indeg[st.ID()]++
		}
	}

	var ready []string
	for id := range indeg {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []Strategy
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, byID[next])
		for _, v := range adj[next] {
			indeg[v]--
			if indeg[v] == 0 {
				ready = append(ready, v)
			}
		}
	}

	if len(order) != len(s.byID) {
		return nil, errs.Configuration("cyclic strategy ordering")
	}
	return order, nil
}

// Apply runs the strategy set over p: computes the order once, applies
// each strategy at the top level, recurses into nested child pipelines
// with the same order, and finally freezes the tree.
func Apply(p *pipeline.Pipeline, tag pipeline.EngineTag, set *Set) error {
	if p.IsFrozen() {
		return errs.FrozenErr("apply called on an already-applied pipeline")
	}
	if err := p.SetEngineTag(tag); err != nil {
		return err
	}

	order, err := set.Order()
	if err != nil {
		return err
	}

	if err := applyOrdered(p, tag, order); err != nil {
		return err
	}

	p.Freeze()
	return nil
}

func applyOrdered(p *pipeline.Pipeline, tag pipeline.EngineTag, order []Strategy) error {
	for _, st := range order {
		if !engineApplies(st, tag) {
			continue
		}
		if err := st.Apply(p, tag); err != nil {
			return fmt.Errorf("strategy %s: %w", st.ID(), err)
		}
	}
	for _, s := range p.Steps() {
		for _, cidx := range s.ChildPipelines {
			child := p.ChildPipeline(cidx)
			if child == nil {
				continue
			}
			if err := applyOrdered(child, tag, order); err != nil {
				return err
			}
		}
	}
	return nil
}

func engineApplies(st Strategy, tag pipeline.EngineTag) bool {
	restrict := st.Engines()
	if len(restrict) == 0 {
		return true
	}
	for _, t := range restrict {
		if t == tag {
			return true
		}
	}
	return false
}
