package policy

// BetaTS is Beta-Bernoulli Thompson Sampling: binary rewards, conjugate
// Beta priors. Ported from protoc/stochastic/ts.py BetaTSProtocol.
type BetaTS struct{}

func (BetaTS) Name() string { return "BetaTS" }

func (BetaTS) InitParams(numArms int, ov Overrides) ParamState {
	alphaPrior := ov.Float("alpha_prior", 1.0)
	betaPrior := ov.Float("beta_prior", 1.0)
	alpha := make([]float64, numArms)
	beta := make([]float64, numArms)
	for i := range alpha {
		alpha[i] = alphaPrior
		beta[i] = betaPrior
	}
	return ParamState{
		Name:    "BetaTS",
		NumArms: numArms,
		Alpha:   alpha,
		Beta:    beta,
		Pulls:   make([]float64, numArms),
	}
}

func (BetaTS) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	samples := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		samples[i] = sampleBeta(ps.Alpha[i], ps.Beta[i], rng)
	}
	return argmax(samples), nil
}

func (BetaTS) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	out := ps.Clone()
	binary := 0.0
	if reward == 0 || reward == 1 {
		binary = reward
	} else if reward > 0.5 {
		binary = 1
	}
	out.Pulls[arm]++
	if binary == 1 {
		out.Alpha[arm]++
	} else {
		out.Beta[arm]++
	}
	return out, nil
}

// sampleBeta draws from Beta(a,b) via two Gamma draws; uses the
// Marsaglia-Tsang method so a single Rand.ExpFloat64/Float64 source
// suffices without pulling in a stats library (none present in the pack).
func sampleBeta(a, b float64, rng Rand) float64 {
	x := sampleGamma(a, rng)
	y := sampleGamma(b, rng)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

func sampleGamma(shape float64, rng Rand) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(shape+1, rng) * powSafe(u, 1.0/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / sqrtSafe(9.0*d)
	for {
		x := rng.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*(x*x)*(x*x) {
			return d * v
		}
		if logSafe(u) < 0.5*x*x+d*(1-v+logSafe(v)) {
			return d * v
		}
	}
}

func powSafe(x, y float64) float64 {
	if x <= 0 {
		return 0
	}
	return expSafe(y * logSafe(x))
}
