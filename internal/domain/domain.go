// Package domain holds the data model shared by the catalog, cache,
// gate, and service layers: Pool/Arm/Experiment/FeatureGate as
// catalog-owned truth, ExperimentSnapshot as the runtime-visible
// denormalized copy, and FeedbackEvent as the immutable stream payload.
package domain

import "time"

// Arm is one addressable choice within a Pool. Index is dense,
// contiguous and immutable for the life of the pool.
type Arm struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Index    int               `json:"index"`
	IsActive bool              `json:"is_active"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Pool is an ordered collection of arms.
type Pool struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Arms      []Arm     `json:"arms"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Experiment binds a policy to a pool.
type Experiment struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	PoolID       string             `json:"pool_id"`
	Policy       string             `json:"policy"`
	PolicyParams map[string]float64 `json:"policy_params,omitempty"`
	Enabled      bool               `json:"enabled"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// RuleOperator is the fixed set of comparison operators a gate rule may
// use. Unknown operators are rejected at config write time, not at
// evaluation time.
type RuleOperator string

const (
	OpEq          RuleOperator = "eq"
	OpNe          RuleOperator = "ne"
	OpGt          RuleOperator = "gt"
	OpLt          RuleOperator = "lt"
	OpGe          RuleOperator = "ge"
	OpLe          RuleOperator = "le"
	OpContains    RuleOperator = "contains"
	OpNotContains RuleOperator = "not_contains"
	OpIn          RuleOperator = "in"
	OpNotIn       RuleOperator = "not_in"
)

func ValidOperator(op RuleOperator) bool {
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGe, OpLe, OpContains, OpNotContains, OpIn, OpNotIn:
		return true
	}
	return false
}

// Rule is a single metadata-matching rule; the first match in an
// ordered rule list wins. Value/In-list membership is string-based since
// context metadata is map<string,string>; In/NotIn treat Value as a
// comma-separated membership list.
type Rule struct {
	Key             string       `json:"key"`
	Operator        RuleOperator `json:"operator"`
	Value           string       `json:"value"`
	CommittedArmRef string       `json:"committed_arm_ref,omitempty"`
}

// Schedule bounds a gate's active period; nil endpoints are unbounded.
type Schedule struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// ActiveHours is a daily recurring window in Timezone; wraps past
// midnight when Start > End. Durations are offsets since local midnight.
type ActiveHours struct {
	Start    *time.Duration `json:"start,omitempty"`
	End      *time.Duration `json:"end,omitempty"`
	Timezone string         `json:"timezone,omitempty"`
}

// FeatureGate is the per-experiment gate configuration.
type FeatureGate struct {
	ExperimentID      string      `json:"experiment_id"`
	Enabled           bool        `json:"enabled"`
	RolloutPercentage int         `json:"rollout_percentage"`
	DefaultArmRef     string      `json:"default_arm_ref,omitempty"`
	Schedule          Schedule    `json:"schedule"`
	ActiveHours       ActiveHours `json:"active_hours"`
	Rules             []Rule      `json:"rules"`
	Version           int         `json:"version"`
}

// ExperimentSnapshot is the catalog's denormalized, read-optimized copy
// published to the key-value store; the selector and trainer read only
// this, never the relational catalog.
type ExperimentSnapshot struct {
	ExperimentID string             `json:"experiment_id"`
	Name         string             `json:"name"`
	PoolID       string             `json:"pool_id"`
	Policy       string             `json:"policy"`
	PolicyParams map[string]float64 `json:"policy_params,omitempty"`
	NumArms      int                `json:"num_arms"`
	Arms         []Arm              `json:"arms"`
	Enabled      bool               `json:"enabled"`
}

// FeedbackEvent is immutable once published to the stream.
type FeedbackEvent struct {
	ExperimentID    string            `json:"experiment_id"`
	RequestID       string            `json:"request_id"`
	ArmIndex        int               `json:"arm_index"`
	Reward          float64           `json:"reward"`
	ContextID       string            `json:"context_id"`
	ContextVector   []float64         `json:"context_vector,omitempty"`
	ContextMetadata map[string]string `json:"context_metadata,omitempty"`
	TimestampMS     int64             `json:"timestamp_ms"`
}
