package policy

import "math"

const (
	klucbTolerance    = 1e-6
	klucbMaxIter      = 50
)

// klBernoulli is the KL divergence between Bernoulli(p) and Bernoulli(q).
func klBernoulli(p, q float64) float64 {
	p = clamp01(p)
	q = clamp01(q)
	switch {
	case p == 0:
		if q == 1 {
			return math.Inf(1)
		}
		return -logSafe(1 - q)
	case p == 1:
		if q == 0 {
			return math.Inf(1)
		}
		return -logSafe(q)
	case q == 0 || q == 1:
		return math.Inf(1)
	default:
		return p*logSafe(p/q) + (1-p)*logSafe((1-p)/(1-q))
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// bisectKLUCB finds the largest q in [pHat,1] with N*kl(pHat,q) <= threshold*N
// i.e. kl(pHat,q) <= threshold/N passed in pre-divided, matching the
// original's bisection in protoc/stochastic/ucb.py.
func bisectKLUCB(pHat, threshold float64) float64 {
	if threshold < 1e-10 {
		return pHat
	}
	left, right := pHat, 1.0
	if klBernoulli(pHat, right) <= threshold {
		return right
	}
	for i := 0; i < klucbMaxIter; i++ {
		mid := (left + right) / 2.0
		kl := klBernoulli(pHat, mid)
		if math.Abs(kl-threshold) < klucbTolerance {
			return mid
		}
		if kl < threshold {
			left = mid
		} else {
			right = mid
		}
		if math.Abs(right-left) < klucbTolerance {
			break
		}
	}
	return (left + right) / 2.0
}

// KLUCB implements the Garivier & Cappe KL-UCB algorithm. Ported from
// protoc/stochastic/ucb.py KLUCBProtocol.
type KLUCB struct{}

func (KLUCB) Name() string { return "KLUCB" }

func (KLUCB) InitParams(numArms int, ov Overrides) ParamState {
	return ParamState{
		Name:      "KLUCB",
		NumArms:   numArms,
		Alpha2:    ov.Float("c", 0.0),
		Successes: make([]float64, numArms),
		Pulls:     make([]float64, numArms),
		Round:     0,
	}
}

func (k KLUCB) bound(ps ParamState, arm int, t float64) float64 {
	if ps.Pulls[arm] == 0 {
		return math.Inf(1)
	}
	pHat := ps.Successes[arm] / ps.Pulls[arm]
	n := ps.Pulls[arm]
	var threshold float64
	if t <= 1 {
		threshold = 0
	} else {
		logT := logSafe(t)
		logLogT := 0.0
		if logT > 1.0 {
			logLogT = logSafe(logT)
		}
		threshold = (logT + ps.Alpha2*logLogT) / n
	}
	return bisectKLUCB(pHat, threshold)
}

func (k KLUCB) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	t := ps.Round + 1
	bounds := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		bounds[i] = k.bound(ps, i, t)
	}
	return argmax(bounds), nil
}

func (KLUCB) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	if err := checkArmRange(ps, arm); err != nil {
		return ps, err
	}
	out := ps.Clone()
	out.Pulls[arm]++
	out.Successes[arm] += clamp01(reward)
	out.Round = ps.Round + 1
	return out, nil
}

// KLUCBPlus is KL-UCB with a log(t/N[arm]) exploration threshold instead
// of log(t). Ported from protoc/stochastic/ucb.py KLUCBPlusProtocol.
type KLUCBPlus struct{}

func (KLUCBPlus) Name() string { return "KLUCBPlus" }

func (KLUCBPlus) InitParams(numArms int, ov Overrides) ParamState {
	ps := KLUCB{}.InitParams(numArms, ov)
	ps.Name = "KLUCBPlus"
	return ps
}

func (p KLUCBPlus) bound(ps ParamState, arm int, t float64) float64 {
	if ps.Pulls[arm] == 0 {
		return math.Inf(1)
	}
	pHat := ps.Successes[arm] / ps.Pulls[arm]
	n := ps.Pulls[arm]
	ratio := t / n
	if ratio < 1.0 {
		ratio = 1.0
	}
	logRatio := logSafe(ratio)
	if logRatio <= 0 {
		return pHat
	}
	logLogRatio := 0.0
	if logRatio > 1.0 {
		logLogRatio = logSafe(logRatio)
	}
	threshold := (logRatio + ps.Alpha2*logLogRatio) / n
	return bisectKLUCB(pHat, threshold)
}

func (p KLUCBPlus) Select(ps ParamState, ctx Context, rng Rand) (int, error) {
	t := ps.Round + 1
	bounds := make([]float64, ps.NumArms)
	for i := 0; i < ps.NumArms; i++ {
		bounds[i] = p.bound(ps, i, t)
	}
	return argmax(bounds), nil
}

func (KLUCBPlus) Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error) {
	return KLUCB{}.Train(ps, ctx, arm, reward)
}
