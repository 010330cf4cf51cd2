package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mhfrantz/travopt/internal/pipeline"
	"github.com/mhfrantz/travopt/internal/step"
	"github.com/mhfrantz/travopt/internal/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func buildOutCountIs(t *testing.T, pred value.Predicate) (*pipeline.Pipeline, *step.Step) {
	t.Helper()
	p := pipeline.New()
	_, err := p.AppendStep(step.KindOut)
	require.NoError(t, err)
	count, err := p.AppendStep(step.KindCount)
	require.NoError(t, err)
	is, err := p.AppendStep(step.KindIs)
	require.NoError(t, err)
	is.IsPredicate = pred
	return p, count
}

func applyRangeByIsCount(t *testing.T, p *pipeline.Pipeline, tag pipeline.EngineTag) {
	t.Helper()
	require.NoError(t, RangeByIsCount{}.Apply(p, tag))
}

func TestRangeByIsCountScenarios(t *testing.T) {
	cases := []struct {
		name string
		pred value.Predicate
		k    int64
	}{
		{"eq0", value.Eq(value.Int(0)), 1},
		{"neq4", value.Neq(value.Int(4)), 5},
		{"lte3", value.Lte(value.Int(3)), 4},
		{"lt3", value.Lt(value.Int(3)), 3},
		{"gt2", value.Gt(value.Int(2)), 3},
		{"gte2", value.Gte(value.Int(2)), 2},
		{"inside2_4", value.Inside(value.Int(2), value.Int(4)), 4},
		{"outside2_4", value.Outside(value.Int(2), value.Int(4)), 5},
		{"within2_6_4", value.Within(value.Int(2), value.Int(6), value.Int(4)), 7},
		{"without2_6_4", value.Without(value.Int(2), value.Int(6), value.Int(4)), 6},
	}
	for _, c := range cases {
		for _, tag := range []pipeline.EngineTag{pipeline.StandardEngine, pipeline.ComputerEngine} {
			t.Run(c.name, func(t *testing.T) {
				p, count := buildOutCountIs(t, c.pred)
				applyRangeByIsCount(t, p, tag)

				ranges := p.StepsOfKind(step.KindRange)
				require.Len(t, ranges, 1)
				assert.Equal(t, int64(0), ranges[0].RangeLo)
				assert.Equal(t, c.k, ranges[0].RangeHi)
				assert.Equal(t, count.ID, p.Successor(ranges[0]).ID)
			})
		}
	}
}

func TestRangeByIsCountNestedInHasTraversal(t *testing.T) {
	p := pipeline.New()
	out, _ := p.AppendStep(step.KindOut)
	_ = out
	hasTraversal, err := p.AppendStep(step.KindHasTraversal)
	require.NoError(t, err)
	child, err := p.AttachChildPipeline(hasTraversal)
	require.NoError(t, err)
	child.AppendStep(step.KindOutEdges)
	count, err := child.AppendStep(step.KindCount)
	require.NoError(t, err)
	is, err := child.AppendStep(step.KindIs)
	require.NoError(t, err)
	is.IsPredicate = value.Eq(value.Int(0))

	// The rule rewrites the pipeline it is handed; strategy.Apply is what
	// hands it each nested child pipeline in turn.
	applyRangeByIsCount(t, child, pipeline.StandardEngine)

	ranges := child.StepsOfKind(step.KindRange)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(1), ranges[0].RangeHi)
	assert.Equal(t, count.ID, child.Successor(ranges[0]).ID)
}

func TestRangeByIsCountIdempotent(t *testing.T) {
	p, _ := buildOutCountIs(t, value.Eq(value.Int(0)))
	applyRangeByIsCount(t, p, pipeline.StandardEngine)
	before := p.StepsOfKind(step.KindRange)[0].RangeHi

	applyRangeByIsCount(t, p, pipeline.StandardEngine)
	after := p.StepsOfKind(step.KindRange)[0]
	assert.Equal(t, before, after.RangeHi)
	assert.Len(t, p.StepsOfKind(step.KindRange), 1)
}

func TestRangeByIsCountMergesExistingRange(t *testing.T) {
	p := pipeline.New()
	p.AppendStep(step.KindOut)
	_, err := p.AppendStep(step.KindRange)
	require.NoError(t, err)
	rng := p.StepsOfKind(step.KindRange)[0]
	rng.RangeLo, rng.RangeHi = 0, 10
	count, _ := p.AppendStep(step.KindCount)
	is, _ := p.AppendStep(step.KindIs)
	is.IsPredicate = value.Eq(value.Int(3)) // highRange = 4

	applyRangeByIsCount(t, p, pipeline.StandardEngine)

	ranges := p.StepsOfKind(step.KindRange)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(4), ranges[0].RangeHi)
	assert.Equal(t, count.ID, p.Successor(ranges[0]).ID)
}

func TestRangeByIsCountConjunctionTakesMax(t *testing.T) {
	p := pipeline.New()
	p.AppendStep(step.KindOut)
	count, _ := p.AppendStep(step.KindCount)
	is1, _ := p.AppendStep(step.KindIs)
	is1.IsPredicate = value.Gte(value.Int(2)) // highRange 2
	is2, _ := p.AppendStep(step.KindIs)
	is2.IsPredicate = value.Eq(value.Int(5)) // highRange 6

	applyRangeByIsCount(t, p, pipeline.StandardEngine)

	ranges := p.StepsOfKind(step.KindRange)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(6), ranges[0].RangeHi)
	assert.Equal(t, count.ID, p.Successor(ranges[0]).ID)
}

func TestRangeByIsCountNegativeScenarios(t *testing.T) {
	t.Run("negative value", func(t *testing.T) {
		p, _ := buildOutCountIs(t, value.Eq(value.Int(-1)))
		applyRangeByIsCount(t, p, pipeline.StandardEngine)
		assert.Empty(t, p.StepsOfKind(step.KindRange))
	})

	t.Run("opaque predicate", func(t *testing.T) {
		p, _ := buildOutCountIs(t, value.Opaque("custom"))
		applyRangeByIsCount(t, p, pipeline.StandardEngine)
		assert.Empty(t, p.StepsOfKind(step.KindRange))
	})

	t.Run("is not immediately after count", func(t *testing.T) {
		p := pipeline.New()
		p.AppendStep(step.KindOut)
		p.AppendStep(step.KindCount)
		p.AppendStep(step.KindIdentity)
		is, _ := p.AppendStep(step.KindIs)
		is.IsPredicate = value.Eq(value.Int(0))
		applyRangeByIsCount(t, p, pipeline.StandardEngine)
		assert.Empty(t, p.StepsOfKind(step.KindRange))
	})

	t.Run("non-numeric is value", func(t *testing.T) {
		p, _ := buildOutCountIs(t, value.Eq(value.String("nope")))
		applyRangeByIsCount(t, p, pipeline.StandardEngine)
		assert.Empty(t, p.StepsOfKind(step.KindRange))
	})

	t.Run("no upstream count", func(t *testing.T) {
		p := pipeline.New()
		is, _ := p.AppendStep(step.KindIs)
		is.IsPredicate = value.Eq(value.Int(0))
		applyRangeByIsCount(t, p, pipeline.StandardEngine)
		assert.Empty(t, p.StepsOfKind(step.KindRange))
	})
}

func TestRangeByIsCountComputerUnsafeWhenLabelCrossesBoundary(t *testing.T) {
	build := func(t *testing.T) (*pipeline.Pipeline, *step.Step) {
		p := pipeline.New()
		out, _ := p.AppendStep(step.KindOut)
		require.NoError(t, p.LabelStep(out, "a"))
		count, _ := p.AppendStep(step.KindCount)
		is, _ := p.AppendStep(step.KindIs)
		is.IsPredicate = value.Eq(value.Int(0))
		return p, count
	}

	t.Run("label consumed downstream of count blocks COMPUTER", func(t *testing.T) {
		p, _ := build(t)
		consumer, _ := p.AppendStep(step.KindFilterStar)
		consumer.Labels = []string{"a"}

		applyRangeByIsCount(t, p, pipeline.ComputerEngine)
		assert.Empty(t, p.StepsOfKind(step.KindRange))
	})

	t.Run("no downstream consumer still fires under COMPUTER", func(t *testing.T) {
		p, _ := build(t)
		applyRangeByIsCount(t, p, pipeline.ComputerEngine)
		assert.NotEmpty(t, p.StepsOfKind(step.KindRange))
	})

	t.Run("STANDARD always fires regardless of labels", func(t *testing.T) {
		p, _ := build(t)
		consumer, _ := p.AppendStep(step.KindFilterStar)
		consumer.Labels = []string{"a"}

		applyRangeByIsCount(t, p, pipeline.StandardEngine)
		assert.NotEmpty(t, p.StepsOfKind(step.KindRange))
	})
}

func TestRangeByIsCountComputerUnsafeWithSideEffect(t *testing.T) {
	p := pipeline.New()
	p.AppendStep(step.KindOut)
	p.AppendStep(step.KindSideEffectStar)
	count, _ := p.AppendStep(step.KindCount)
	is, _ := p.AppendStep(step.KindIs)
	is.IsPredicate = value.Eq(value.Int(0))
	_ = count

	applyRangeByIsCount(t, p, pipeline.ComputerEngine)
	assert.Empty(t, p.StepsOfKind(step.KindRange))

	applyRangeByIsCount(t, p, pipeline.StandardEngine)
	assert.NotEmpty(t, p.StepsOfKind(step.KindRange))
}
