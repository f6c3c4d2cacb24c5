package policy

import "math"

// LinUCB is contextual ridge-regression UCB. Ported from
// protoc/contextual/ucb.py LinUCBProtocol. ParamState.A holds, per arm,
// the flattened Dim x Dim design matrix; ParamState.B holds the
// reward-weighted context sum.
type LinUCB struct{}

func (LinUCB) Name() string { return "LinUCB" }

func (LinUCB) InitParams(numArms int, ov Overrides) ParamState {
	dim := ov.Int("dim", 1)
	a := make([][]float64, numArms)
	b := make([][]float64, numArms)
	for i := range a {
		a[i] = identity(dim)
		b[i] = make([]float64, dim)
	}
	return ParamState{
		Name:    "LinUCB",
		NumArms: numArms,
		Dim:     dim,
		Alpha2:  ov.Float("alpha", 1.5),
		A:       a,
		B:       b,
	}
}

func (LinUCB) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	if err := validateContext(ps, ctx); err != nil {
		return 0, err
	}
	bounds := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		inv, ok := invertOrPseudo(ps.A[i], ps.Dim)
		if !ok {
			bounds[i] = math.Inf(1)
			continue
		}
		theta := matVec(inv, ps.Dim, ps.B[i])
		mean := dot(theta, ctx.Vector)
		invX := matVec(inv, ps.Dim, ctx.Vector)
		conf := ps.Alpha2 * sqrtSafe(dot(ctx.Vector, invX))
		bounds[i] = mean + conf
	}
	return argmax(bounds), nil
}

func (LinUCB) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	if err := validateContext(ps, ctx); err != nil {
		return ps, err
	}
	out := ps.Clone()
	outerAdd(out.A[arm], ps.Dim, ctx.Vector)
	vecAddScaled(out.B[arm], ctx.Vector, reward)
	return out, nil
}

// LinTS is contextual Bayesian linear Thompson sampling. Ported from
// protoc/contextual/ts.py LinTSProtocol.
type LinTS struct{}

func (LinTS) Name() string { return "LinTS" }

func (LinTS) InitParams(numArms int, ov Overrides) ParamState {
	dim := ov.Int("dim", 1)
	a := make([][]float64, numArms)
	b := make([][]float64, numArms)
	for i := range a {
		a[i] = identity(dim)
		b[i] = make([]float64, dim)
	}
	return ParamState{
		Name:    "LinTS",
		NumArms: numArms,
		Dim:     dim,
		Alpha2:  ov.Float("v", 1.0),
		A:       a,
		B:       b,
	}
}

func (p LinTS) sampleTheta(ps ParamState, arm int, rng Rand) []float64 {
	inv, ok := invertOrPseudo(ps.A[arm], ps.Dim)
	if !ok {
		return make([]float64, ps.Dim)
	}
	mu := matVec(inv, ps.Dim, ps.B[arm])
	cov := make([]float64, len(inv))
	v2 := ps.Alpha2 * ps.Alpha2
	for i := range inv {
		cov[i] = inv[i] * v2
	}
	// symmetrize
	for r := 0; r < ps.Dim; r++ {
		for c := r + 1; c < ps.Dim; c++ {
			avg := (cov[r*ps.Dim+c] + cov[c*ps.Dim+r]) / 2
			cov[r*ps.Dim+c], cov[c*ps.Dim+r] = avg, avg
		}
	}
	l, ok := cholesky(cov, ps.Dim)
	if !ok {
		return mu
	}
	z := make([]float64, ps.Dim)
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	theta := matVec(l, ps.Dim, z)
	for i := range theta {
		theta[i] += mu[i]
	}
	return theta
}

func (p LinTS) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	if err := validateContext(ps, ctx); err != nil {
		return 0, err
	}
	pred := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		theta := p.sampleTheta(ps, i, rng)
		pred[i] = dot(theta, ctx.Vector)
	}
	return argmax(pred), nil
}

func (LinTS) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	return LinUCB{}.Train(ps, ctx, arm, reward)
}
