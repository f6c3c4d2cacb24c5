package policy

// FPL is Follow-the-Perturbed-Leader: an exponential perturbation is
// added to cumulative rewards at selection time only; updates accumulate
// the unperturbed reward. Ported from protoc/adversarial/fpl.py.
type FPL struct{}

func (FPL) Name() string { return "FPL" }

func (FPL) InitParams(numArms int, ov Overrides) ParamState {
	return ParamState{
		Name:    "FPL",
		NumArms: numArms,
		Eta:     ov.Float("eta", 5.0),
		Reward:  make([]float64, numArms),
	}
}

func (FPL) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	perturbed := make([]float64, ps.NumArms)
	for i := range perturbed {
		perturbed[i] = ps.Reward[i] + ps.Eta*rng.ExpFloat64()
	}
	return argmax(perturbed), nil
}

func (FPL) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	out := ps.Clone()
	out.Reward[arm] += reward
	return out, nil
}
