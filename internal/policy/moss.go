package policy

import "math"

// MOSS is the Audibert-Bubeck Minimax Optimal Strategy in the Stochastic
// case, using a fixed horizon. MOSSAnytime substitutes the current round
// for the horizon. Ported from protoc/stochastic/moss.py.
type MOSS struct{}

func (MOSS) Name() string { return "MOSS" }

func (MOSS) InitParams(numArms int, ov Overrides) ParamState {
	return ParamState{
		Name:    "MOSS",
		NumArms: numArms,
		Horizon: ov.Float("horizon", float64(numArms)*1000),
		Mu:      make([]float64, numArms),
		Pulls:   make([]float64, numArms),
	}
}

func mossIndex(mu, pulls, horizon float64, k int) float64 {
	if pulls == 0 {
		return math.Inf(1)
	}
	logTerm := 0.0
	if horizon > float64(k)*pulls {
		logTerm = logSafe(horizon / (float64(k) * pulls))
	}
	if logTerm < 0 {
		logTerm = 0
	}
	return mu + sqrtSafe(logTerm/pulls)
}

func (MOSS) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	idx := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		idx[i] = mossIndex(ps.Mu[i], ps.Pulls[i], ps.Horizon, ps.NumArms)
	}
	return argmax(idx), nil
}

func (MOSS) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	out := ps.Clone()
	out.Pulls[arm]++
	out.Mu[arm] += (reward - ps.Mu[arm]) / out.Pulls[arm]
	out.Round = ps.Round + 1
	return out, nil
}

// MOSSAnytime uses max(round,1) in place of a fixed horizon.
type MOSSAnytime struct{}

func (MOSSAnytime) Name() string { return "MOSSAnytime" }

func (MOSSAnytime) InitParams(numArms int, ov Overrides) ParamState {
	return ParamState{
		Name:    "MOSSAnytime",
		NumArms: numArms,
		Mu:      make([]float64, numArms),
		Pulls:   make([]float64, numArms),
	}
}

func (MOSSAnytime) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	t := ps.Round
	if t < 1 {
		t = 1
	}
	idx := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		idx[i] = mossIndex(ps.Mu[i], ps.Pulls[i], t, ps.NumArms)
	}
	return argmax(idx), nil
}

func (MOSSAnytime) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	return MOSS{}.Train(ps, ctx, arm, reward)
}
