package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand is a deterministic Rand for reproducible assertions.
type fixedRand struct {
	f64s  []float64
	norms []float64
	exps  []float64
	i, j, k int
}

func (r *fixedRand) Float64() float64 {
	v := r.f64s[r.i%len(r.f64s)]
	r.i++
	return v
}
func (r *fixedRand) NormFloat64() float64 {
	v := r.norms[r.j%len(r.norms)]
	r.j++
	return v
}
func (r *fixedRand) ExpFloat64() float64 {
	v := r.exps[r.k%len(r.exps)]
	r.k++
	return v
}

func allPolicies() []Policy {
	return []Policy{
		BetaTS{}, GaussianTS{}, UCB1Tuned{}, KLUCB{}, KLUCBPlus{},
		EpsilonGreedy{}, MOSS{}, MOSSAnytime{}, LinUCB{}, LinTS{}, EXP3{}, FPL{},
	}
}

func TestRegistryHasAllPolicies(t *testing.T) {
	r := NewRegistry()
	for _, p := range allPolicies() {
		assert.True(t, r.Registered(p.Name()), "expected %s registered", p.Name())
	}
	_, err := r.Lookup("DoesNotExist")
	assert.Error(t, err)
}

func TestSelectAlwaysInRange(t *testing.T) {
	rng := &fixedRand{f64s: []float64{0.1, 0.4, 0.9}, norms: []float64{0.2, -0.3, 0.5}, exps: []float64{0.3, 1.2}}
	ctx := Context{ID: "c1", Vector: []float64{1, 2}}
	for _, p := range allPolicies() {
		ov := Overrides{"dim": 2}
		ps := p.InitParams(3, ov)
		arm, err := p.Select(ps, ctx, rng)
		require.NoError(t, err, p.Name())
		assert.GreaterOrEqual(t, arm, 0, p.Name())
		assert.Less(t, arm, ps.NumArms, p.Name())
	}
}

func TestTrainNeverShrinksAndIsMonotone(t *testing.T) {
	rng := &fixedRand{f64s: []float64{0.5}, norms: []float64{0.1}, exps: []float64{0.4}}
	ctx := Context{ID: "c1", Vector: []float64{1, 1}}
	for _, p := range allPolicies() {
		ps := p.InitParams(2, Overrides{"dim": 2})
		next, err := p.Train(ps, ctx, 0, 1.0)
		require.NoError(t, err, p.Name())
		assert.Equal(t, ps.NumArms, next.NumArms, p.Name())
		for _, pair := range [][2][]float64{
			{ps.Alpha, next.Alpha}, {ps.Beta, next.Beta}, {ps.Mu, next.Mu},
			{ps.Pulls, next.Pulls}, {ps.Weights, next.Weights}, {ps.Reward, next.Reward},
		} {
			assert.Len(t, pair[1], len(pair[0]), p.Name())
		}
		for i := range ps.Pulls {
			assert.GreaterOrEqual(t, next.Pulls[i], ps.Pulls[i], p.Name())
		}
	}
	_ = rng
}

func TestBetaTSTrainUpdatesAlpha(t *testing.T) {
	p := BetaTS{}
	ps := p.InitParams(2, nil)
	next, err := p.Train(ps, Context{}, 0, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, next.Alpha[0])
	assert.Equal(t, 1.0, next.Beta[0])
	assert.Equal(t, 1.0, ps.Alpha[0], "original state must not be mutated")
}

func TestLinUCBContextDimMismatchFails(t *testing.T) {
	p := LinUCB{}
	ps := p.InitParams(2, Overrides{"dim": 3})
	_, err := p.Select(ps, Context{Vector: []float64{1, 2}}, &fixedRand{f64s: []float64{0.5}})
	assert.Error(t, err)
}

func TestParamStateJSONRoundTrip(t *testing.T) {
	for _, p := range allPolicies() {
		ps := p.InitParams(3, Overrides{"dim": 2})
		data, err := Marshal(ps)
		require.NoError(t, err, p.Name())
		back, err := Unmarshal(data)
		require.NoError(t, err, p.Name())
		assert.Equal(t, ps.Name, back.Name, p.Name())
		assert.Equal(t, ps.NumArms, back.NumArms, p.Name())
	}
}

func TestEpsilonDecay(t *testing.T) {
	p := EpsilonGreedy{}
	ps := p.InitParams(2, Overrides{"eps": 0.5, "gamma": 0.1})
	next, err := p.Train(ps, Context{}, 0, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, next.Epsilon, 1e-9)
}

func TestEXP3WeightsNormalizeToOne(t *testing.T) {
	p := EXP3{}
	ps := p.InitParams(3, nil)
	next, err := p.Train(ps, Context{}, 1, 1.0)
	require.NoError(t, err)
	sum := 0.0
	for _, w := range next.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}
