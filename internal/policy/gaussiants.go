package policy

// GaussianTS is Gaussian Thompson Sampling for continuous rewards, with
// conjugate Gaussian-Gaussian updates. Ported from
// protoc/stochastic/ts.py GaussianTSProtocol.
type GaussianTS struct{}

func (GaussianTS) Name() string { return "GaussianTS" }

func (GaussianTS) InitParams(numArms int, ov Overrides) ParamState {
	priorMean := ov.Float("prior_mean", 0.0)
	priorPrecision := ov.Float("prior_precision", 1.0)
	noisePrecision := ov.Float("noise_precision", 1.0)
	mu := make([]float64, numArms)
	tau := make([]float64, numArms)
	for i := range mu {
		mu[i] = priorMean
		tau[i] = priorPrecision
	}
	return ParamState{
		Name:    "GaussianTS",
		NumArms: numArms,
		Mu:      mu,
		Tau:     tau,
		TauN:    noisePrecision,
		Pulls:   make([]float64, numArms),
	}
}

func (GaussianTS) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	samples := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		samples[i] = ps.Mu[i] + rng.NormFloat64()/sqrtSafe(ps.Tau[i])
	}
	return argmax(samples), nil
}

func (GaussianTS) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	out := ps.Clone()
	out.Pulls[arm]++
	prevTau, prevMu := ps.Tau[arm], ps.Mu[arm]
	newTau := prevTau + ps.TauN
	out.Tau[arm] = newTau
	out.Mu[arm] = (prevTau*prevMu + ps.TauN*reward) / newTau
	return out, nil
}
