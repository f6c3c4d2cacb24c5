// Package motorsvc implements the selector (C8): given an experiment and
// a request context, it resolves the cached agent, runs the bandit
// policy's Select, and returns the chosen arm.
package motorsvc

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/optiq-io/qbrix/internal/cache"
	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/metrics"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/qerrors"
	"github.com/optiq-io/qbrix/internal/qlog"
)

// Request is one selection call's input.
type Request struct {
	ExperimentID    string
	ContextID       string
	ContextVector   []float64
	ContextMetadata map[string]string
}

// Result is the selector's response: the chosen arm plus a fresh
// placeholder request id (a random uuid) that the proxy replaces with a
// signed selection token.
type Result struct {
	Arm       domain.Arm
	RequestID string
	Score     float64
}

// Pinger is satisfied by paramstore.Store, which pings its redis client
// for health checks; kept narrow so the service doesn't depend on a
// concrete client package.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service is the motor (selector) service.
type Service struct {
	cache *cache.AgentCache
	rng   policy.Rand
	ping  Pinger
}

func New(agentCache *cache.AgentCache, rng policy.Rand, ping Pinger) *Service {
	return &Service{cache: agentCache, rng: rng, ping: ping}
}

// Select resolves the cached agent (rebuilding from the snapshot store
// on miss), runs the policy, and maps the chosen arm index back to its
// catalog identity.
func (s *Service) Select(ctx context.Context, req Request) (*Result, error) {
	if req.ExperimentID == "" {
		return nil, qerrors.InvalidArgument("experiment_id is required")
	}
	timer := prometheus.NewTimer(metrics.SelectDuration.WithLabelValues(req.ExperimentID))
	defer timer.ObserveDuration()

	agent, pol, err := s.cache.GetOrCreate(ctx, req.ExperimentID)
	if err != nil {
		return nil, err
	}

	ps, ok := s.cache.Params(req.ExperimentID)
	if !ok {
		return nil, qerrors.Internal("param state missing after get_or_create: " + req.ExperimentID)
	}

	pctx := policy.Context{
		ID:       req.ContextID,
		Vector:   req.ContextVector,
		Metadata: req.ContextMetadata,
	}
	choice, err := pol.Select(*ps, pctx, s.rng)
	if err != nil {
		return nil, err
	}
	if choice < 0 || choice >= len(agent.Snapshot.Arms) {
		return nil, qerrors.Internal("policy selected out-of-range arm index")
	}

	metrics.SelectTotal.WithLabelValues(req.ExperimentID, pol.Name()).Inc()
	qlog.Infoln("motor: selected arm", qlog.Fields{"experiment_id": req.ExperimentID, "arm_index": choice})
	return &Result{
		Arm:       agent.Snapshot.Arms[choice],
		RequestID: uuid.NewString(),
		Score:     0.0,
	}, nil
}

// Health pings the backing redis client; returns an error on failure so
// callers can surface it as an unready probe.
func (s *Service) Health(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping.Ping(ctx)
}
