// Package policy implements the bandit policy family (C1). Each policy is
// a pure set of {init_params, select, train} functions over its own
// ParamState variant, registered by name in an explicit static table —
// replacing the previous implementation's reflection-based
// subclass-discovery registry.
package policy

import (
	"math"

	"github.com/optiq-io/qbrix/internal/qerrors"
)

// Context carries the selection/training context for one request.
type Context struct {
	ID       string
	Vector   []float64
	Metadata map[string]string
}

// ParamState is the policy-specific learned state. Every array-valued
// field has length NumArms; Name identifies which policy variant the
// remaining fields belong to, for JSON (de)serialization dispatch.
type ParamState struct {
	Name    string  `json:"name"`
	NumArms int     `json:"num_arms"`

	// Stochastic, counter-based policies (BetaTS, GaussianTS, UCB1-Tuned,
	// KL-UCB(+), epsilon-greedy, MOSS(-anytime)).
	Alpha      []float64 `json:"alpha,omitempty"`
	Beta       []float64 `json:"beta,omitempty"`
	Mu         []float64 `json:"mu,omitempty"`
	Tau        []float64 `json:"tau,omitempty"`
	TauN       float64   `json:"tau_n,omitempty"`
	Pulls      []float64 `json:"pulls,omitempty"`
	SumSq      []float64 `json:"sum_sq,omitempty"`
	Successes  []float64 `json:"successes,omitempty"`
	T          float64   `json:"t,omitempty"`
	Round      float64   `json:"round,omitempty"`
	Horizon    float64   `json:"horizon,omitempty"`
	Epsilon    float64   `json:"epsilon,omitempty"`
	EpsDecay   float64   `json:"eps_decay,omitempty"`

	// Contextual policies (LinUCB, LinTS): one Dim x Dim matrix and one
	// Dim vector per arm, flattened row-major.
	Dim    int         `json:"dim,omitempty"`
	Alpha2 float64     `json:"alpha2,omitempty"` // LinUCB exploration coefficient / LinTS variance scale
	A      [][]float64 `json:"a,omitempty"`      // per-arm Dim x Dim, flattened
	B      [][]float64 `json:"b,omitempty"`      // per-arm Dim

	// Adversarial policies (EXP3, FPL).
	Weights []float64 `json:"weights,omitempty"`
	Gamma   float64   `json:"gamma,omitempty"`
	Eta     float64   `json:"eta,omitempty"`
	Reward  []float64 `json:"reward,omitempty"`
}

// Clone returns a deep copy so train() can return a fresh state without
// mutating the caller's.
func (ps ParamState) Clone() ParamState {
	out := ps
	out.Alpha = cloneF(ps.Alpha)
	out.Beta = cloneF(ps.Beta)
	out.Mu = cloneF(ps.Mu)
	out.Tau = cloneF(ps.Tau)
	out.Pulls = cloneF(ps.Pulls)
	out.SumSq = cloneF(ps.SumSq)
	out.Successes = cloneF(ps.Successes)
	out.Weights = cloneF(ps.Weights)
	out.Reward = cloneF(ps.Reward)
	out.A = cloneMat(ps.A)
	out.B = cloneMat(ps.B)
	return out
}

func cloneF(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

func cloneMat(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = cloneF(row)
	}
	return out
}

// Policy is the explicit, reflection-free interface every variant
// implements. Overrides is a loose bag of policy-specific init overrides
// (e.g. {"alpha": 2.0, "dim": 8}), read via the Overrides helper type.
type Policy interface {
	Name() string
	InitParams(numArms int, overrides Overrides) ParamState
	Select(ps ParamState, ctx Context, rng Rand) (int, error)
	Train(ps ParamState, ctx Context, arm int, reward float64) (ParamState, error)
}

// Overrides is a policy_params bag as stored on Experiment.
type Overrides map[string]float64

func (o Overrides) Float(key string, def float64) float64 {
	if o == nil {
		return def
	}
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

func (o Overrides) Int(key string, def int) int {
	return int(o.Float(key, float64(def)))
}

// Rand abstracts the RNG dependency select() needs, so tests can inject
// a deterministic source without reaching into math/rand globals.
type Rand interface {
	Float64() float64
	NormFloat64() float64
	ExpFloat64() float64
}

func argmax(xs []float64) int {
	best, bi := math.Inf(-1), 0
	for i, x := range xs {
		if x > best {
			best, bi = x, i
		}
	}
	return bi
}

func validateContext(ps ParamState, ctx Context) error {
	if ps.Dim > 0 && len(ctx.Vector) != ps.Dim {
		return qerrors.InvalidArgument("context vector length does not match policy dimension")
	}
	return nil
}

func checkArmRange(ps ParamState, arm int) error {
	if arm < 0 || arm >= ps.NumArms {
		return qerrors.Internal("train: arm index out of range")
	}
	return nil
}
