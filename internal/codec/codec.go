// Package codec implements the serialized form of a tagged
// record per step, with round-trip fidelity for identifiers, ordering,
// and requirement sets.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
	"github.com/mhfrantz/travopt/internal/value"
)

// ValueRecord is the self-describing encoding of a value.Value.
type ValueRecord struct {
	Kind string         `json:"kind"`
	Int  *int64         `json:"int,omitempty"`
	Flt  *float64       `json:"flt,omitempty"`
	Bool *bool          `json:"bool,omitempty"`
	Str  *string        `json:"str,omitempty"`
	Elem *string        `json:"elem,omitempty"`
	List []ValueRecord  `json:"list,omitempty"`
}

func encodeValue(v value.Value) ValueRecord {
	switch v.Kind() {
	case value.KindInt:
		n, _ := v.AsInt()
		return ValueRecord{Kind: "int", Int: &n}
	case value.KindFloat:
		f, _ := v.AsFloat()
		return ValueRecord{Kind: "float", Flt: &f}
	case value.KindBool:
		b, _ := v.AsBool()
		return ValueRecord{Kind: "bool", Bool: &b}
	case value.KindString:
		s, _ := v.AsString()
		return ValueRecord{Kind: "string", Str: &s}
	case value.KindElement:
		e, _ := v.AsElement()
		return ValueRecord{Kind: "element", Elem: &e}
	case value.KindList:
		list, _ := v.AsList()
		out := make([]ValueRecord, len(list))
		for i, item := range list {
			out[i] = encodeValue(item)
		}
		return ValueRecord{Kind: "list", List: out}
	default:
		return ValueRecord{Kind: "unknown"}
	}
}

func decodeValue(r ValueRecord) (value.Value, error) {
	switch r.Kind {
	case "int":
		if r.Int == nil {
			return value.Value{}, fmt.Errorf("codec: int value missing payload")
		}
		return value.Int(*r.Int), nil
	case "float":
		if r.Flt == nil {
			return value.Value{}, fmt.Errorf("codec: float value missing payload")
		}
		return value.Float(*r.Flt), nil
	case "bool":
		if r.Bool == nil {
			return value.Value{}, fmt.Errorf("codec: bool value missing payload")
		}
		return value.Bool(*r.Bool), nil
	case "string":
		if r.Str == nil {
			return value.Value{}, fmt.Errorf("codec: string value missing payload")
		}
		return value.String(*r.Str), nil
	case "element":
		if r.Elem == nil {
			return value.Value{}, fmt.Errorf("codec: element value missing payload")
		}
		return value.Element(*r.Elem), nil
	case "list":
		items := make([]value.Value, len(r.List))
		for i, ir := range r.List {
			v, err := decodeValue(ir)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v
		}
		return value.List(items...), nil
	default:
		return value.Value{}, fmt.Errorf("codec: unknown value kind %q", r.Kind)
	}
}

// PredicateRecord is the tagged encoding of a value.Predicate.
type PredicateRecord struct {
	Op       string        `json:"op"`
	Value    *ValueRecord  `json:"value,omitempty"`
	Lo       *ValueRecord  `json:"lo,omitempty"`
	Hi       *ValueRecord  `json:"hi,omitempty"`
	Set      []ValueRecord `json:"set,omitempty"`
	OpaqueID string        `json:"opaque_id,omitempty"`
}

func encodePredicate(p value.Predicate) PredicateRecord {
	r := PredicateRecord{Op: p.Op.String()}
	switch p.Op {
	case value.OpEq, value.OpNeq, value.OpLt, value.OpLte, value.OpGt, value.OpGte:
		v := encodeValue(p.Value)
		r.Value = &v
	case value.OpInside, value.OpOutside:
		lo, hi := encodeValue(p.Lo), encodeValue(p.Hi)
		r.Lo, r.Hi = &lo, &hi
	case value.OpWithin, value.OpWithout:
		r.Set = make([]ValueRecord, len(p.Set))
		for i, v := range p.Set {
			r.Set[i] = encodeValue(v)
		}
	case value.OpOpaque:
		r.OpaqueID = p.OpaqueID
	}
	return r
}

var predicateOps = map[string]value.PredicateOp{
	"eq": value.OpEq, "neq": value.OpNeq, "lt": value.OpLt, "lte": value.OpLte,
	"gt": value.OpGt, "gte": value.OpGte, "inside": value.OpInside, "outside": value.OpOutside,
	"within": value.OpWithin, "without": value.OpWithout, "opaque": value.OpOpaque,
}

func decodePredicate(r PredicateRecord) (value.Predicate, error) {
	op, ok := predicateOps[r.Op]
	if !ok {
		return value.Predicate{}, fmt.Errorf("codec: unknown predicate op %q", r.Op)
	}
	p := value.Predicate{Op: op}
	switch op {
	case value.OpEq, value.OpNeq, value.OpLt, value.OpLte, value.OpGt, value.OpGte:
		if r.Value == nil {
			return value.Predicate{}, fmt.Errorf("codec: predicate %q missing value", r.Op)
		}
		v, err := decodeValue(*r.Value)
		if err != nil {
			return value.Predicate{}, err
		}
		p.Value = v
	case value.OpInside, value.OpOutside:
		if r.Lo == nil || r.Hi == nil {
			return value.Predicate{}, fmt.Errorf("codec: predicate %q missing lo/hi", r.Op)
		}
		lo, err := decodeValue(*r.Lo)
		if err != nil {
			return value.Predicate{}, err
		}
		hi, err := decodeValue(*r.Hi)
		if err != nil {
			return value.Predicate{}, err
		}
		p.Lo, p.Hi = lo, hi
	case value.OpWithin, value.OpWithout:
		p.Set = make([]value.Value, len(r.Set))
		for i, vr := range r.Set {
			v, err := decodeValue(vr)
			if err != nil {
				return value.Predicate{}, err
			}
			p.Set[i] = v
		}
	case value.OpOpaque:
		p.OpaqueID = r.OpaqueID
	}
	return p, nil
}

// StepRecord is a tagged record: {id, kind, args, labels,
// children[]}. Rather than a single untyped args blob, the kind-specific
// payload is split into named, typed fields (HasKey/HasPredicate/
// RangeLo/RangeHi/IsPredicate/...); only the fields relevant to a given
// kind are populated. Range carries two signed 64-bit integers with -1
// denoting unbounded; Is carries a predicate tag plus its value(s).
type StepRecord struct {
	ID              int              `json:"id"`
	Kind            string           `json:"kind"`
	Labels          []string         `json:"labels,omitempty"`
	HasKey          string           `json:"has_key,omitempty"`
	HasPredicate    *PredicateRecord `json:"has_predicate,omitempty"`
	RangeLo         *int64           `json:"range_lo,omitempty"`
	RangeHi         *int64           `json:"range_hi,omitempty"`
	IsPredicate     *PredicateRecord `json:"is_predicate,omitempty"`
	SelectivityHint int              `json:"selectivity_hint,omitempty"`
	Negate          bool             `json:"negate,omitempty"`
	Requirements    []string         `json:"requirements,omitempty"`
	Children        []PipelineRecord `json:"children,omitempty"`
}

// PipelineRecord is the serialized form of a Pipeline: an ordered list
// of StepRecords.
type PipelineRecord struct {
	EngineTag string       `json:"engine_tag,omitempty"`
	Steps     []StepRecord `json:"steps"`
}

var kindNames = map[step.Kind]string{
	step.KindVertexSource: "vertex-source", step.KindEdgeSource: "edge-source",
	step.KindOut: "out", step.KindIn: "in", step.KindBoth: "both",
	step.KindOutEdges: "out-edges", step.KindInEdges: "in-edges", step.KindHas: "has",
	step.KindHasTraversal: "has-traversal", step.KindCount: "count", step.KindIs: "is",
	step.KindRange: "range", step.KindIdentity: "identity", step.KindFilterStar: "filter-*",
	step.KindGroupCount: "group-count", step.KindFold: "fold", step.KindOrder: "order",
	step.KindProfile: "profile", step.KindSideEffectStar: "side-effect-*",
}

var namesToKind = func() map[string]step.Kind {
	m := make(map[string]step.Kind, len(kindNames))
	for k, v := range kindNames {
		m[v] = k
	}
	return m
}()

var reqNames = map[step.Requirement]string{
	step.ReqObject: "OBJECT", step.ReqBulk: "BULK", step.ReqSideEffects: "SIDE_EFFECTS",
	step.ReqPath: "PATH", step.ReqSack: "SACK", step.ReqLabeledPath: "LABELED_PATH",
	step.ReqSingleLoop: "SINGLE_LOOP", step.ReqNestedLoop: "NESTED_LOOP",
}

var namesToReq = func() map[string]step.Requirement {
	m := make(map[string]step.Requirement, len(reqNames))
	for k, v := range reqNames {
		m[v] = k
	}
	return m
}()

// EncodePipeline serializes p into its tagged-record form. The engine
// tag is recorded only at the top level (empty for nested children).
func EncodePipeline(p *pipeline.Pipeline, topLevel bool) PipelineRecord {
	rec := PipelineRecord{}
	if topLevel {
		rec.EngineTag = p.EngineTag().String()
	}
	for _, s := range p.Steps() {
		rec.Steps = append(rec.Steps, encodeStep(p, s))
	}
	return rec
}

func encodeStep(p *pipeline.Pipeline, s *step.Step) StepRecord {
	r := StepRecord{
		ID:              s.ID,
		Kind:            kindNames[s.Kind],
		Labels:          append([]string(nil), s.Labels...),
		SelectivityHint: s.SelectivityHint,
		Negate:          s.Negate,
	}
	if s.Kind == step.KindHas {
		r.HasKey = s.Has.Key
		pr := encodePredicate(s.Has.Predicate)
		r.HasPredicate = &pr
	}
	if s.Kind == step.KindRange {
		lo, hi := s.RangeLo, s.RangeHi
		r.RangeLo, r.RangeHi = &lo, &hi
	}
	if s.Kind == step.KindIs {
		pr := encodePredicate(s.IsPredicate)
		r.IsPredicate = &pr
	}
	for _, req := range s.Requirements.List() {
		r.Requirements = append(r.Requirements, reqNames[req])
	}
	for _, cidx := range s.ChildPipelines {
		if child := p.ChildPipeline(cidx); child != nil {
			r.Children = append(r.Children, EncodePipeline(child, false))
		}
	}
	return r
}

// DecodePipeline reconstructs a Pipeline from its tagged-record form,
// preserving step identifiers exactly (it drives the pipeline's ID
// counters past the highest ID seen so future AppendStep calls never
// collide).
func DecodePipeline(rec PipelineRecord) (*pipeline.Pipeline, error) {
	p := pipeline.New()
	if err := decodeStepsInto(p, rec.Steps); err != nil {
		return nil, err
	}
	if rec.EngineTag != "" {
		tag, ok := namesToEngineTag[rec.EngineTag]
		if !ok {
			return nil, fmt.Errorf("codec: unknown engine tag %q", rec.EngineTag)
		}
		if err := p.SetEngineTag(tag); err != nil {
			return nil, err
		}
	}
	return p, nil
}

var namesToEngineTag = map[string]pipeline.EngineTag{
	"STANDARD": pipeline.StandardEngine,
	"COMPUTER": pipeline.ComputerEngine,
}

func decodeStepsInto(p *pipeline.Pipeline, recs []StepRecord) error {
	for _, r := range recs {
		kind, ok := namesToKind[r.Kind]
		if !ok {
			return fmt.Errorf("codec: unknown step kind %q", r.Kind)
		}
		s, err := p.RestoreStep(r.ID, kind)
		if err != nil {
			return err
		}
		for _, l := range r.Labels {
			if err := p.LabelStep(s, l); err != nil {
				return err
			}
		}
		s.SelectivityHint = r.SelectivityHint
		s.Negate = r.Negate
		if r.HasPredicate != nil {
			pred, err := decodePredicate(*r.HasPredicate)
			if err != nil {
				return err
			}
			s.Has = step.HasContainer{Key: r.HasKey, Predicate: pred}
		}
		if r.RangeLo != nil && r.RangeHi != nil {
			s.RangeLo, s.RangeHi = *r.RangeLo, *r.RangeHi
		}
		if r.IsPredicate != nil {
			pred, err := decodePredicate(*r.IsPredicate)
			if err != nil {
				return err
			}
			s.IsPredicate = pred
		}
		for _, reqName := range r.Requirements {
			req, ok := namesToReq[reqName]
			if !ok {
				return fmt.Errorf("codec: unknown requirement %q", reqName)
			}
			s.Requirements = s.Requirements.Add(req)
		}
		for _, childRec := range r.Children {
			child, err := p.AttachChildPipeline(s)
			if err != nil {
				return err
			}
			if err := decodeStepsInto(child, childRec.Steps); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarshalJSON serializes the top-level pipeline to JSON.
func MarshalJSON(p *pipeline.Pipeline) ([]byte, error) {
	return json.Marshal(EncodePipeline(p, true))
}

// UnmarshalJSON deserializes a top-level pipeline from JSON.
func UnmarshalJSON(data []byte) (*pipeline.Pipeline, error) {
	var rec PipelineRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return DecodePipeline(rec)
}
