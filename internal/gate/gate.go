// Package gate evaluates the feature gate (C6): enabled/schedule/rollout
// short-circuiting ahead of bandit selection, with a mandatory fail-open
// contract. Rewritten off the previous proxy's gate controller and rule
// model.
package gate

import (
	"strconv"
	"strings"
	"time"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/rollout"
)

// flagState is a bitset over enabled/schedule/rollout outcomes, kept as
// the internal representation so negset's short-circuit check is a
// single mask test instead of three separate booleans.
type flagState uint8

const (
	flagEnabled flagState = 1 << iota
	flagDisabled
	flagActive
	flagBlackout
	flagRpos
	flagRneg
)

// negset is the set of flags that forces the committed (default) arm.
const negset = flagDisabled | flagBlackout | flagRneg

// Decision is the gate's verdict for one Select call.
type Decision struct {
	// CommittedArmRef is non-empty when the gate short-circuits to a
	// specific arm; empty CommittedArmRef with Proceed=true means "run
	// the bandit".
	CommittedArmRef string
	Proceed         bool
}

func proceed() Decision             { return Decision{Proceed: true} }
func commit(armRef string) Decision { return Decision{CommittedArmRef: armRef} }

// Evaluate computes the gate decision for (config, contextID, metadata)
// at time now. It never panics outward: any internal failure is caught
// and mapped to Proceed (fail-open) so a bad gate config never blocks
// selection.
func Evaluate(config domain.FeatureGate, contextID string, metadata map[string]string, now time.Time) (decision Decision) {
	defer func() {
		if recover() != nil {
			decision = proceed()
		}
	}()

	state := renderFlags(config, contextID, now)
	if state&negset != 0 {
		if config.DefaultArmRef == "" {
			return proceed()
		}
		return commit(config.DefaultArmRef)
	}

	if rule := matchRule(config.Rules, metadata); rule != nil {
		return commit(rule.CommittedArmRef)
	}
	return proceed()
}

func renderFlags(config domain.FeatureGate, contextID string, now time.Time) flagState {
	var state flagState
	if config.Enabled {
		state |= flagEnabled
	} else {
		state |= flagDisabled
	}
	if inActiveSchedule(config, now) {
		state |= flagActive
	} else {
		state |= flagBlackout
	}
	if rollout.InRollout(contextID, config.RolloutPercentage) {
		state |= flagRpos
	} else {
		state |= flagRneg
	}
	return state
}

func inActiveSchedule(config domain.FeatureGate, now time.Time) bool {
	return inActivePeriod(config.Schedule, now) && inActiveHours(config.ActiveHours, now)
}

func inActivePeriod(s domain.Schedule, now time.Time) bool {
	if s.Start != nil && now.Before(*s.Start) {
		return false
	}
	if s.End != nil && now.After(*s.End) {
		return false
	}
	return true
}

func inActiveHours(h domain.ActiveHours, now time.Time) bool {
	if h.Start == nil || h.End == nil {
		return true
	}
	loc := time.UTC
	if h.Timezone != "" {
		if l, err := time.LoadLocation(h.Timezone); err == nil {
			loc = l
		}
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := local.Sub(midnight)

	start, end := *h.Start, *h.End
	if start <= end {
		return offset >= start && offset <= end
	}
	// wraps past midnight
	return offset >= start || offset <= end
}

func matchRule(rules []domain.Rule, metadata map[string]string) *domain.Rule {
	for i := range rules {
		if evalRule(rules[i], metadata) {
			return &rules[i]
		}
	}
	return nil
}

func evalRule(rule domain.Rule, metadata map[string]string) bool {
	if metadata == nil {
		return false
	}
	actual, ok := metadata[rule.Key]
	if !ok {
		return false
	}
	switch rule.Operator {
	case domain.OpEq:
		return actual == rule.Value
	case domain.OpNe:
		return actual != rule.Value
	case domain.OpGt, domain.OpLt, domain.OpGe, domain.OpLe:
		return evalNumeric(rule.Operator, actual, rule.Value)
	case domain.OpContains:
		return strings.Contains(actual, rule.Value)
	case domain.OpNotContains:
		return !strings.Contains(actual, rule.Value)
	case domain.OpIn:
		return containsMember(rule.Value, actual)
	case domain.OpNotIn:
		return !containsMember(rule.Value, actual)
	default:
		return false
	}
}

// evalNumeric returns false (rule fails, never raises) if either side
// fails to parse as a float.
func evalNumeric(op domain.RuleOperator, actual, expected string) bool {
	a, err1 := strconv.ParseFloat(actual, 64)
	b, err2 := strconv.ParseFloat(expected, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	switch op {
	case domain.OpGt:
		return a > b
	case domain.OpLt:
		return a < b
	case domain.OpGe:
		return a >= b
	case domain.OpLe:
		return a <= b
	}
	return false
}

func containsMember(list, value string) bool {
	for _, m := range strings.Split(list, ",") {
		if strings.TrimSpace(m) == value {
			return true
		}
	}
	return false
}
