package policy

// EXP3 is the Exponential-weight algorithm for Exploration and
// Exploitation, adopting the normalized weight-update variant (spec's
// documented open-question decision: Σw=1 every step rather than the
// classical unnormalized form). Ported from protoc/adversarial/exp.py.
type EXP3 struct{}

func (EXP3) Name() string { return "EXP3" }

func (EXP3) InitParams(numArms int, ov Overrides) ParamState {
	w := make([]float64, numArms)
	for i := range w {
		w[i] = 1.0
	}
	return ParamState{
		Name:    "EXP3",
		NumArms: numArms,
		Gamma:   ov.Float("gamma", 0.1),
		Weights: w,
	}
}

func exp3Proba(ps ParamState) []float64 {
	sum := 0.0
	for _, w := range ps.Weights {
		sum += w
	}
	p := make([]float64, ps.NumArms)
	for i, w := range ps.Weights {
		p[i] = (1-ps.Gamma)*(w/sum) + ps.Gamma/float64(ps.NumArms)
	}
	return p
}

func (EXP3) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	p := exp3Proba(ps)
	u := rng.Float64()
	cum := 0.0
	for i, pi := range p {
		cum += pi
		if u < cum {
			return i, nil
		}
	}
	return ps.NumArms - 1, nil
}

func (EXP3) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	p := exp3Proba(ps)
	out := ps.Clone()
	estimate := reward / p[arm]
	out.Weights[arm] *= expSafe(estimate * ps.Gamma / float64(ps.NumArms))
	sum := 0.0
	for _, w := range out.Weights {
		sum += w
	}
	for i := range out.Weights {
		out.Weights[i] /= sum
	}
	return out, nil
}
