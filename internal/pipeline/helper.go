package pipeline

import (
	"github.com/mhfrantz/travopt/internal/errs"
	"github.com/mhfrantz/travopt/internal/step"
)

// PositionOf returns the zero-based index of s within this pipeline, or
// -1 if s does not belong to it.
func (p *Pipeline) PositionOf(s *step.Step) int {
	for i, id := range p.order {
		if id == s.ID {
			return i
		}
	}
	return -1
}

// StepsOfKind returns every top-level step of the given kind, in
// pipeline order. It does not recurse into nested child pipelines; use
// StepsOfKindDeep for that.
func (p *Pipeline) StepsOfKind(k step.Kind) []*step.Step {
	var out []*step.Step
	for _, id := range p.order {
		if s := p.steps[id]; s.Kind == k {
			out = append(out, s)
		}
	}
	return out
}

// StepsOfKindDeep returns every step of the given kind in this pipeline
// and all of its nested children, pre-order.
func (p *Pipeline) StepsOfKindDeep(k step.Kind) []*step.Step {
	var out []*step.Step
	p.Walk(func(pl *Pipeline, s *step.Step) {
		if s.Kind == k {
			out = append(out, s)
		}
	})
	return out
}

// Predecessor returns the step immediately before s in this pipeline,
// or nil at the left boundary.
func (p *Pipeline) Predecessor(s *step.Step) *step.Step {
	i := p.PositionOf(s)
	if i <= 0 {
		return nil
	}
	return p.steps[p.order[i-1]]
}

// Successor returns the step immediately after s in this pipeline, or
// nil at the right boundary.
func (p *Pipeline) Successor(s *step.Step) *step.Step {
	i := p.PositionOf(s)
	if i < 0 || i == len(p.order)-1 {
		return nil
	}
	return p.steps[p.order[i+1]]
}

// InsertBefore splices newStep into the pipeline immediately before
// existing, assigning it a fresh ID. Returns the inserted step (with
// its final ID).
func (p *Pipeline) InsertBefore(newStep step.Step, existing *step.Step) (*step.Step, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	i := p.PositionOf(existing)
	if i < 0 {
		return nil, errs.Invariant("insertBefore: existing step not in this pipeline", existing.ID)
	}
	return p.insertAt(newStep, i)
}

// InsertAfter splices newStep into the pipeline immediately after
// existing, assigning it a fresh ID.
func (p *Pipeline) InsertAfter(newStep step.Step, existing *step.Step) (*step.Step, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	i := p.PositionOf(existing)
	if i < 0 {
		return nil, errs.Invariant("insertAfter: existing step not in this pipeline", existing.ID)
	}
	return p.insertAt(newStep, i+1)
}

func (p *Pipeline) insertAt(newStep step.Step, pos int) (*step.Step, error) {
	id := p.reg.nextStepID
	p.reg.nextStepID++
	cp := newStep
	cp.ID = id
	for _, l := range cp.Labels {
		if owner, exists := p.reg.labels[l]; exists && owner != id {
			return nil, errs.Invariant("insert: label collision "+l, id)
		}
		p.reg.labels[l] = id
	}
	p.steps[id] = &cp
	p.order = append(p.order, 0)
	copy(p.order[pos+1:], p.order[pos:])
	p.order[pos] = id
	return p.steps[id], nil
}

// Replace substitutes old with newStep in place, preserving position
// and rewiring old's labels onto the replacement unless newStep already
// carries its own labels. old's nested child pipelines are discarded
// (the caller must explicitly Lift anything it wants to keep).
func (p *Pipeline) Replace(old *step.Step, newStep step.Step) (*step.Step, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	i := p.PositionOf(old)
	if i < 0 {
		return nil, errs.Invariant("replace: old step not in this pipeline", old.ID)
	}
	id := p.reg.nextStepID
	p.reg.nextStepID++
	cp := newStep
	cp.ID = id
	if len(cp.Labels) == 0 {
		cp.Labels = append([]string(nil), old.Labels...)
		for _, l := range cp.Labels {
			p.reg.labels[l] = id
		}
	} else {
		for _, l := range cp.Labels {
			if owner, exists := p.reg.labels[l]; exists && owner != id {
				return nil, errs.Invariant("replace: label collision "+l, id)
			}
			p.reg.labels[l] = id
		}
		for _, l := range old.Labels {
			if p.reg.labels[l] == old.ID {
				delete(p.reg.labels, l)
			}
		}
	}
	for _, cidx := range old.ChildPipelines {
		delete(p.kids, cidx)
	}
	delete(p.steps, old.ID)
	p.steps[id] = &cp
	p.order[i] = id
	return p.steps[id], nil
}

// Remove deletes s from the pipeline, freeing its labels and dropping
// any nested child pipelines it owned. Fails with Invariant only when s
// is not in this pipeline; it does not look for other steps referring
// to s (no step kind in the catalog holds such a reference).
func (p *Pipeline) Remove(s *step.Step) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	i := p.PositionOf(s)
	if i < 0 {
		return errs.Invariant("remove: step not in this pipeline", s.ID)
	}
	for _, l := range s.Labels {
		if p.reg.labels[l] == s.ID {
			delete(p.reg.labels, l)
		}
	}
	for _, cidx := range s.ChildPipelines {
		delete(p.kids, cidx)
	}
	delete(p.steps, s.ID)
	p.order = append(p.order[:i], p.order[i+1:]...)
	return nil
}

// Lift splices a nested child pipeline's steps into this (parent)
// pipeline starting at atPosition, removing the child pipeline from its
// owning step's ChildPipelines list. IDs, labels, and nested
// grandchildren are carried over unchanged (they already satisfy the
// tree-wide uniqueness invariants).
func (p *Pipeline) Lift(owner *step.Step, childIdx int, atPosition int) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	child := p.kids[childIdx]
	if child == nil {
		return errs.Invariant("lift: no such child pipeline", owner.ID)
	}
	if atPosition < 0 || atPosition > len(p.order) {
		return errs.Invariant("lift: position out of range", owner.ID)
	}
	lifted := child.order
	for _, id := range lifted {
		p.steps[id] = child.steps[id]
	}
	for idx, kp := range child.kids {
		p.kids[idx] = kp
	}
	newOrder := make([]int, 0, len(p.order)+len(lifted))
	newOrder = append(newOrder, p.order[:atPosition]...)
	newOrder = append(newOrder, lifted...)
	newOrder = append(newOrder, p.order[atPosition:]...)
	p.order = newOrder

	for i, cidx := range owner.ChildPipelines {
		if cidx == childIdx {
			owner.ChildPipelines = append(owner.ChildPipelines[:i], owner.ChildPipelines[i+1:]...)
			break
		}
	}
	delete(p.kids, childIdx)
	return nil
}

// Visitor is invoked by Walk for every (pipeline, step) pair.
type Visitor func(p *Pipeline, s *step.Step)

// Walk performs a pre-order traversal of this pipeline and every nested
// child pipeline, invoking visit for each step.
func (p *Pipeline) Walk(visit Visitor) {
	for _, id := range p.order {
		s := p.steps[id]
		visit(p, s)
		for _, cidx := range s.ChildPipelines {
			if child := p.kids[cidx]; child != nil {
				child.Walk(visit)
			}
		}
	}
}
