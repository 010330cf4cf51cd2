package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
	"github.com/mhfrantz/travopt/internal/value"
)

func buildSample(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New()
	out, err := p.AppendStep(step.KindOut)
	require.NoError(t, err)
	require.NoError(t, p.LabelStep(out, "a"))

	has, err := p.AppendStep(step.KindHas)
	require.NoError(t, err)
	has.Has = step.HasContainer{Key: "age", Predicate: value.Within(value.Int(1), value.Int(2), value.Int(3))}

	hasTraversal, err := p.AppendStep(step.KindHasTraversal)
	require.NoError(t, err)
	hasTraversal.Negate = true
	child, err := p.AttachChildPipeline(hasTraversal)
	require.NoError(t, err)
	child.AppendStep(step.KindOutEdges)
	count, err := child.AppendStep(step.KindCount)
	require.NoError(t, err)
	count.Requirements = step.NewRequirementSet(step.ReqBulk)

	rng, err := p.AppendStep(step.KindRange)
	require.NoError(t, err)
	rng.RangeLo, rng.RangeHi = 0, -1

	is, err := p.AppendStep(step.KindIs)
	require.NoError(t, err)
	is.IsPredicate = value.Inside(value.Float(1.5), value.Float(9.5))

	hasTraversal.Requirements = step.NewRequirementSet(step.ReqBulk, step.ReqObject)

	return p
}

func TestRoundTripPreservesStructure(t *testing.T) {
	p := buildSample(t)
	data, err := MarshalJSON(p)
	require.NoError(t, err)

	got, err := UnmarshalJSON(data)
	require.NoError(t, err)

	assert.Equal(t, p.Len(), got.Len())
	for i := 0; i < p.Len(); i++ {
		want, have := p.StepAt(i), got.StepAt(i)
		assert.Equal(t, want.ID, have.ID, "id at %d", i)
		assert.Equal(t, want.Kind, have.Kind, "kind at %d", i)
		assert.Equal(t, want.Labels, have.Labels, "labels at %d", i)
		assert.Equal(t, want.RangeLo, have.RangeLo, "rangeLo at %d", i)
		assert.Equal(t, want.RangeHi, have.RangeHi, "rangeHi at %d", i)
		assert.Equal(t, want.Negate, have.Negate, "negate at %d", i)
		assert.Equal(t, want.Requirements, have.Requirements, "requirements at %d", i)
	}
}

func TestRoundTripPreservesEngineTag(t *testing.T) {
	p := pipeline.New()
	p.AppendStep(step.KindOut)
	require.NoError(t, p.SetEngineTag(pipeline.ComputerEngine))

	data, err := MarshalJSON(p)
	require.NoError(t, err)
	got, err := UnmarshalJSON(data)
	require.NoError(t, err)
	assert.Equal(t, pipeline.ComputerEngine, got.EngineTag())
}

func TestRoundTripPreservesHasPredicate(t *testing.T) {
	p := pipeline.New()
	has, err := p.AppendStep(step.KindHas)
	require.NoError(t, err)
	has.Has = step.HasContainer{Key: "name", Predicate: value.Eq(value.String("alice"))}

	data, err := MarshalJSON(p)
	require.NoError(t, err)
	got, err := UnmarshalJSON(data)
	require.NoError(t, err)

	gotHas := got.StepAt(0)
	assert.Equal(t, "name", gotHas.Has.Key)
	assert.Equal(t, value.OpEq, gotHas.Has.Predicate.Op)
	assert.True(t, value.String("alice").Equal(gotHas.Has.Predicate.Value))
}

func TestRoundTripPreservesNestedChildPipeline(t *testing.T) {
	p := pipeline.New()
	ht, err := p.AppendStep(step.KindHasTraversal)
	require.NoError(t, err)
	child, err := p.AttachChildPipeline(ht)
	require.NoError(t, err)
	child.AppendStep(step.KindOut)
	innerCount, err := child.AppendStep(step.KindCount)
	require.NoError(t, err)
	innerIs, err := child.AppendStep(step.KindIs)
	require.NoError(t, err)
	innerIs.IsPredicate = value.Gte(value.Int(2))
	_ = innerCount

	data, err := MarshalJSON(p)
	require.NoError(t, err)
	got, err := UnmarshalJSON(data)
	require.NoError(t, err)

	gotHT := got.StepAt(0)
	require.Len(t, gotHT.ChildPipelines, 1)
	gotChild := got.ChildPipeline(gotHT.ChildPipelines[0])
	require.NotNil(t, gotChild)
	require.Equal(t, 3, gotChild.Len())
	assert.Equal(t, step.KindIs, gotChild.StepAt(2).Kind)
	assert.Equal(t, value.OpGte, gotChild.StepAt(2).IsPredicate.Op)
}

func TestRoundTripPreservesListValue(t *testing.T) {
	p := pipeline.New()
	is, err := p.AppendStep(step.KindIs)
	require.NoError(t, err)
	is.IsPredicate = value.Eq(value.List(value.Int(1), value.String("x"), value.Bool(true)))

	data, err := MarshalJSON(p)
	require.NoError(t, err)
	got, err := UnmarshalJSON(data)
	require.NoError(t, err)

	list, ok := got.StepAt(0).IsPredicate.Value.AsList()
	require.True(t, ok)
	require.Len(t, list, 3)
	assert.True(t, value.Int(1).Equal(list[0]))
	assert.True(t, value.String("x").Equal(list[1]))
	assert.True(t, value.Bool(true).Equal(list[2]))
}

func TestRoundTripPreservesOpaquePredicate(t *testing.T) {
	p := pipeline.New()
	is, err := p.AppendStep(step.KindIs)
	require.NoError(t, err)
	is.IsPredicate = value.Opaque("script-42")

	data, err := MarshalJSON(p)
	require.NoError(t, err)
	got, err := UnmarshalJSON(data)
	require.NoError(t, err)

	assert.Equal(t, value.OpOpaque, got.StepAt(0).IsPredicate.Op)
	assert.Equal(t, "script-42", got.StepAt(0).IsPredicate.OpaqueID)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalJSON([]byte(`{"steps":[{"id":0,"kind":"not-a-kind"}]}`))
	assert.Error(t, err)
}

func TestDecodeRejectsUnknownPredicateOp(t *testing.T) {
	_, err := UnmarshalJSON([]byte(`{"steps":[{"id":0,"kind":"is","is_predicate":{"op":"not-an-op"}}]}`))
	assert.Error(t, err)
}

func TestDecodedPipelineAppendContinuesAfterMaxID(t *testing.T) {
	p := buildSample(t)
	data, err := MarshalJSON(p)
	require.NoError(t, err)
	got, err := UnmarshalJSON(data)
	require.NoError(t, err)

	added, err := got.AppendStep(step.KindIdentity)
	require.NoError(t, err)
	for i := 0; i < got.Len()-1; i++ {
		assert.NotEqual(t, added.ID, got.StepAt(i).ID)
	}
}
