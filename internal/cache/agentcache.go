package cache

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Agent is the pool+policy reference the selector caches per experiment.
type Agent struct {
	ExperimentID string                   `json:"experiment_id"`
	Snapshot     domain.ExperimentSnapshot `json:"snapshot"`
}

// SnapshotSource reads the catalog-published ExperimentSnapshot (C4's
// denormalized copy) on an agent cache miss.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, experimentID string) (*domain.ExperimentSnapshot, error)
}

// ParamBackend reads/writes ParamState for the params side of the
// cache; the selector only ever initializes params, it never performs
// the fold itself (that belongs to the trainer).
type ParamBackend interface {
	Get(ctx context.Context, experimentID string) (*policy.ParamState, error)
	Set(ctx context.Context, experimentID string, ps policy.ParamState) error
}

// AgentCache is the selector's two-level TTL cache (C7): agent objects
// and parameter state, independently expiring, reconstructed from the
// catalog's snapshot and the param store on miss.
type AgentCache struct {
	agents   *TTLStore
	params   *TTLStore
	agentTTL time.Duration
	paramTTL time.Duration

	registry  *policy.Registry
	snapshots SnapshotSource
	backend   ParamBackend
}

func NewAgentCache(registry *policy.Registry, snapshots SnapshotSource, backend ParamBackend, agentTTL, paramTTL time.Duration) (*AgentCache, error) {
	agents, err := NewTTLStore()
	if err != nil {
		return nil, err
	}
	params, err := NewTTLStore()
	if err != nil {
		return nil, err
	}
	return &AgentCache{
		agents: agents, params: params,
		agentTTL: agentTTL, paramTTL: paramTTL,
		registry: registry, snapshots: snapshots, backend: backend,
	}, nil
}

// GetOrCreate resolves the cached agent for an experiment: a hit still
// ensures params are present (self-healing if they expired
// independently), a miss rebuilds from the snapshot store. The race on
// concurrent misses is intentional and benign (deterministic rebuild,
// last-writer-wins params set).
func (c *AgentCache) GetOrCreate(ctx context.Context, experimentID string) (*Agent, policy.Policy, error) {
	if raw, ok, err := c.agents.Get(experimentID); err == nil && ok {
		var agent Agent
		if jsonErr := json.Unmarshal([]byte(raw), &agent); jsonErr == nil {
			pol, err := c.registry.Lookup(agent.Snapshot.Policy)
			if err != nil {
				return nil, nil, err
			}
			if err := c.ensureParams(ctx, agent.Snapshot, pol); err != nil {
				return nil, nil, err
			}
			return &agent, pol, nil
		}
	}

	snap, err := c.snapshots.GetSnapshot(ctx, experimentID)
	if err != nil {
		return nil, nil, err
	}
	if snap == nil {
		return nil, nil, qerrors.NotFound("experiment snapshot not found: " + experimentID)
	}

	pol, err := c.registry.Lookup(snap.Policy)
	if err != nil {
		return nil, nil, err
	}
	if err := c.ensureParams(ctx, *snap, pol); err != nil {
		return nil, nil, err
	}

	agent := Agent{ExperimentID: experimentID, Snapshot: *snap}
	if data, err := json.Marshal(agent); err == nil {
		_ = c.agents.Set(experimentID, string(data), c.agentTTL)
	}
	return &agent, pol, nil
}

func (c *AgentCache) ensureParams(ctx context.Context, snap domain.ExperimentSnapshot, pol policy.Policy) error {
	if _, ok, err := c.params.Get(snap.ExperimentID); err == nil && ok {
		return nil
	}
	ps, err := c.backend.Get(ctx, snap.ExperimentID)
	if err != nil {
		return err
	}
	if ps == nil {
		init := pol.InitParams(snap.NumArms, snap.PolicyParams)
		ps = &init
		if err := c.backend.Set(ctx, snap.ExperimentID, *ps); err != nil {
			return err
		}
	}
	data, err := policy.Marshal(*ps)
	if err != nil {
		return qerrors.Internal("marshal param state: " + err.Error())
	}
	return c.params.Set(snap.ExperimentID, string(data), c.paramTTL)
}

// Params returns the cached ParamState for an experiment, if present.
func (c *AgentCache) Params(experimentID string) (*policy.ParamState, bool) {
	raw, ok, err := c.params.Get(experimentID)
	if err != nil || !ok {
		return nil, false
	}
	ps, err := policy.Unmarshal([]byte(raw))
	if err != nil {
		return nil, false
	}
	return &ps, true
}

// Invalidate evicts both sides of the cache for an experiment; called on
// catalog update/delete.
func (c *AgentCache) Invalidate(experimentID string) {
	_ = c.agents.Delete(experimentID)
	_ = c.params.Delete(experimentID)
}

func (c *AgentCache) Close() {
	_ = c.agents.Close()
	_ = c.params.Close()
}
