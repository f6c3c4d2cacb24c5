package policy

import "math"

// UCB1Tuned tightens UCB1's confidence bound with a per-arm variance
// estimate. Ported from protoc/stochastic/ucb.py UCB1TunedProtocol.
type UCB1Tuned struct{}

func (UCB1Tuned) Name() string { return "UCB1Tuned" }

func (UCB1Tuned) InitParams(numArms int, ov Overrides) ParamState {
	return ParamState{
		Name:    "UCB1Tuned",
		NumArms: numArms,
		Alpha2:  ov.Float("alpha", 2.0),
		Mu:      make([]float64, numArms),
		Pulls:   make([]float64, numArms),
		SumSq:   make([]float64, numArms),
		Round:   0,
	}
}

func ucb1TunedBound(ps ParamState, arm int) float64 {
	if ps.Pulls[arm] == 0 {
		return math.Inf(1)
	}
	sigma := ps.SumSq[arm]/ps.Pulls[arm] - ps.Mu[arm]*ps.Mu[arm]
	delta := sqrtSafe(ps.Alpha2 * logSafe(ps.Round+1) / ps.Pulls[arm])
	varBound := sigma + delta
	if varBound > 0.25 {
		varBound = 0.25
	}
	return ps.Mu[arm] + sqrtSafe(varBound*logSafe(ps.Round+1)/ps.Pulls[arm])
}

func (UCB1Tuned) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	bounds := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		bounds[i] = ucb1TunedBound(ps, i)
	}
	return argmax(bounds), nil
}

func (UCB1Tuned) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	out := ps.Clone()
	out.Pulls[arm]++
	out.SumSq[arm] += reward * reward
	prevMu := ps.Mu[arm]
	out.Mu[arm] = prevMu + (reward-prevMu)/out.Pulls[arm]
	out.Round = ps.Round + 1
	return out, nil
}
