package policy

// EpsilonGreedy explores uniformly with probability eps, exploits the
// empirical-mean argmax otherwise, and decays eps each train() call.
// Ported from protoc/stochastic/eps.py EpsilonProtocol.
type EpsilonGreedy struct{}

func (EpsilonGreedy) Name() string { return "EpsilonGreedy" }

func (EpsilonGreedy) InitParams(numArms int, ov Overrides) ParamState {
	return ParamState{
		Name:    "EpsilonGreedy",
		NumArms: numArms,
		Epsilon: ov.Float("eps", 0.1),
		EpsDecay: ov.Float("gamma", 0.0),
		Mu:      make([]float64, numArms),
		Pulls:   make([]float64, numArms),
	}
}

func (EpsilonGreedy) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	if rng.Float64() > ps.Epsilon {
		return argmax(ps.Mu), nil
	}
	return int(rng.Float64() * float64(ps.NumArms)), nil
}

func (EpsilonGreedy) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	out := ps.Clone()
	out.Pulls[arm]++
	out.Mu[arm] += (reward - ps.Mu[arm]) / out.Pulls[arm]
	out.Epsilon = ps.Epsilon * (1 - ps.EpsDecay)
	return out, nil
}
