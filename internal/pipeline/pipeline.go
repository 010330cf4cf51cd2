// Package pipeline implements the mutable, arena-backed Pipeline: an
// ordered sequence of Steps with stable identities and nested child
// pipelines. Steps are stored in an arena and referenced by dense
// integer ID; predecessor/successor are computed from position rather
// than stored.
package pipeline

import (
	"github.com/mhfrantz/travopt/internal/errs"
	"github.com/mhfrantz/travopt/internal/step"
)

// EngineTag selects the execution backend class a Pipeline is being
// optimized for.
type EngineTag int

const (
	// StandardEngine is the single-machine, in-process iteration
	// backend.
	StandardEngine EngineTag = iota
	// ComputerEngine is the bulk/partitioned/distributed vertex-program
	// backend.
	ComputerEngine
)

func (t EngineTag) String() string {
	if t == ComputerEngine {
		return "COMPUTER"
	}
	return "STANDARD"
}

// lifecycle is shared by a Pipeline and every pipeline nested under it
// (the whole tree transitions together, per 's Lifecycle and 's
// application discipline).
type lifecycle int

const (
	lifecycleMutable lifecycle = iota
	lifecycleApplied
)

// registry is the tree-wide shared state: the monotonic step-ID and
// child-pipeline-ID counters (invariant (i): unique within the pipeline
// AND any nested pipeline) and the tree-wide label index (invariant
// (iii)). Every Pipeline in a tree holds a pointer to the same
// registry. There is no locking: optimization is single-threaded and
// cooperative per pipeline.
type registry struct {
	nextStepID  int
	nextChildID int
	labels      map[string]int // label -> owning step ID, tree-wide
	state       lifecycle
	engineTag   EngineTag
	tagSet      bool
}

// Pipeline is an ordered, mutable sequence of Steps. The zero value is
// not usable; construct with New.
type Pipeline struct {
	reg *registry

	order []int               // ordered sequence of step IDs
	steps map[int]*step.Step   // step ID -> step
	kids  map[int]*Pipeline    // child-pipeline ID -> nested pipeline (owned by a step in this pipeline)
}

// New creates a fresh, mutable, top-level Pipeline.
func New() *Pipeline {
	return &Pipeline{
		reg:   &registry{labels: make(map[string]int)},
		steps: make(map[int]*step.Step),
		kids:  make(map[int]*Pipeline),
	}
}

// newChild creates a pipeline sharing the parent's registry, used for
// nested child pipelines (step.ChildPipelines).
func (p *Pipeline) newChild() *Pipeline {
	return &Pipeline{
		reg:   p.reg,
		steps: make(map[int]*step.Step),
		kids:  make(map[int]*Pipeline),
	}
}

// IsFrozen reports whether the tree has completed apply and is
// read-only.
func (p *Pipeline) IsFrozen() bool {
	return p.reg.state == lifecycleApplied
}

// EngineTag returns the tag locked in at apply time, or StandardEngine
// before a tag has been set.
func (p *Pipeline) EngineTag() EngineTag {
	return p.reg.engineTag
}

// SetEngineTag sets the tag a pipeline will be optimized under. Only
// legal before apply; freezing locks it.
func (p *Pipeline) SetEngineTag(t EngineTag) error {
	if p.IsFrozen() {
		return errs.FrozenErr("cannot set engine tag on an applied pipeline")
	}
	p.reg.engineTag = t
	p.reg.tagSet = true
	return nil
}

// EngineTagSet reports whether SetEngineTag has been called anywhere in
// the tree.
func (p *Pipeline) EngineTagSet() bool {
	return p.reg.tagSet
}

// Freeze transitions the whole tree to the applied, read-only state.
// Called exactly once by the strategy framework after apply completes.
func (p *Pipeline) Freeze() {
	p.reg.state = lifecycleApplied
}

func (p *Pipeline) checkMutable() error {
	if p.IsFrozen() {
		return errs.FrozenErr("pipeline is frozen")
	}
	return nil
}

// Len returns the number of top-level steps.
func (p *Pipeline) Len() int { return len(p.order) }

// Steps returns the ordered sequence of steps (shallow references; do
// not retain across mutations).
func (p *Pipeline) Steps() []*step.Step {
	out := make([]*step.Step, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.steps[id])
	}
	return out
}

// StepAt returns the step at position i, or nil if out of range.
func (p *Pipeline) StepAt(i int) *step.Step {
	if i < 0 || i >= len(p.order) {
		return nil
	}
	return p.steps[p.order[i]]
}

// Get returns the step with the given ID, or nil.
func (p *Pipeline) Get(id int) *step.Step {
	return p.steps[id]
}

// ChildPipeline returns the nested pipeline owned by the given
// child-pipeline arena index, or nil.
func (p *Pipeline) ChildPipeline(idx int) *Pipeline {
	return p.kids[idx]
}

// AppendStep appends a new step of the given kind to the end of the
// pipeline and returns it. This is the construction-time API of 
// (appendStep).
func (p *Pipeline) AppendStep(kind step.Kind) (*step.Step, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	id := p.reg.nextStepID
	p.reg.nextStepID++
	s := &step.Step{ID: id, Kind: kind, RangeLo: 0, RangeHi: -1}
	p.steps[id] = s
	p.order = append(p.order, id)
	return s, nil
}

// RestoreStep appends a step carrying an explicit ID, bumping the
// registry's ID counter past it if needed. Used by internal/codec to
// reconstruct a pipeline from its serialized form with identifiers
// preserved exactly; ordinary construction should use AppendStep.
func (p *Pipeline) RestoreStep(id int, kind step.Kind) (*step.Step, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	if _, exists := p.steps[id]; exists {
		return nil, errs.Invariant("restoreStep: duplicate step id", id)
	}
	s := &step.Step{ID: id, Kind: kind, RangeLo: 0, RangeHi: -1}
	p.steps[id] = s
	p.order = append(p.order, id)
	if id >= p.reg.nextStepID {
		p.reg.nextStepID = id + 1
	}
	return s, nil
}

// AttachChildPipeline creates a fresh mutable child pipeline, registers
// it under parent, and returns it ( attachChildPipeline).
func (p *Pipeline) AttachChildPipeline(parent *step.Step) (*Pipeline, error) {
	if err := p.checkMutable(); err != nil {
		return nil, err
	}
	if p.steps[parent.ID] == nil {
		return nil, errs.Invariant("attachChildPipeline: step not owned by this pipeline", parent.ID)
	}
	idx := p.reg.nextChildID
	p.reg.nextChildID++
	child := p.newChild()
	p.kids[idx] = child
	parent.ChildPipelines = append(parent.ChildPipelines, idx)
	return child, nil
}

// LabelStep attaches a user label to a step, enforcing tree-wide label
// uniqueness (invariant iii). ( labelStep)
func (p *Pipeline) LabelStep(s *step.Step, name string) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	if owner, exists := p.reg.labels[name]; exists && owner != s.ID {
		return errs.Invariant("label already used on another step: "+name, s.ID)
	}
	p.reg.labels[name] = s.ID
	s.Labels = append(s.Labels, name)
	return nil
}

// RemoveLabel detaches a label from a step and frees it tree-wide.
func (p *Pipeline) RemoveLabel(s *step.Step, name string) {
	for i, l := range s.Labels {
		if l == name {
			s.Labels = append(s.Labels[:i], s.Labels[i+1:]...)
			break
		}
	}
	delete(p.reg.labels, name)
}

// AggregateRequirements returns the union of every step's requirement
// set across this pipeline and all of its nested children, per the
// "Executor-facing surface" of 
func (p *Pipeline) AggregateRequirements() step.RequirementSet {
	var agg step.RequirementSet
	for _, id := range p.order {
		s := p.steps[id]
		agg = agg.Union(s.Requirements)
		for _, cidx := range s.ChildPipelines {
			if child := p.kids[cidx]; child != nil {
				agg = agg.Union(child.AggregateRequirements())
			}
		}
	}
	return agg
}

// CheckInvariants verifies, for this pipeline and all nested children,
// that step IDs are unique across the tree, that every ordered ID maps
// to a step carrying that ID, that every referenced child pipeline
// exists, and that each child's aggregate requirements are a subset of
// its owning step's. Label uniqueness is enforced by the editing methods
// and is not re-checked here. Intended for tests and for defensive
// checks after a batch of Helper edits.
func (p *Pipeline) CheckInvariants() error {
	seen := make(map[int]bool)
	return p.checkInvariants(seen)
}

func (p *Pipeline) checkInvariants(seen map[int]bool) error {
	for _, id := range p.order {
		if seen[id] {
			return errs.Invariant("duplicate step id in tree", id)
		}
		seen[id] = true
		s := p.steps[id]
		if s == nil {
			return errs.Invariant("order references missing step", id)
		}
		if s.ID != id {
			return errs.Invariant("step id mismatch with arena key", id)
		}
		for _, cidx := range s.ChildPipelines {
			child := p.kids[cidx]
			if child == nil {
				return errs.Invariant("step references missing child pipeline", id)
			}
			// invariant (iv): a child pipeline's aggregate requirement
			// set is a subset of the owning step's computed requirement
			// set.
			if !child.AggregateRequirements().IsSubsetOf(s.Requirements) {
				return errs.Invariant("child requirement set exceeds owning step's", id)
			}
			if err := child.checkInvariants(seen); err != nil {
				return err
			}
		}
	}
	return nil
}
