// Package proxysvc implements the public-facing proxy (C10): catalog
// CRUD passthrough, gate-then-bandit selection, and feedback intake.
// Rewritten off the previous proxy service, with one deliberate fix:
// that service's select() never called the gate before delegating to
// the selector (it carried its own "TODO: add feature gate check
// here"); this version evaluates the gate first.
package proxysvc

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/optiq-io/qbrix/internal/catalog"
	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/gate"
	"github.com/optiq-io/qbrix/internal/metrics"
	"github.com/optiq-io/qbrix/internal/motorsvc"
	"github.com/optiq-io/qbrix/internal/qerrors"
	"github.com/optiq-io/qbrix/internal/qlog"
	"github.com/optiq-io/qbrix/internal/token"
)

// Selector is the narrow RPC surface the proxy needs from the selector
// tier; satisfied directly by *motorsvc.Service in-process, or by a
// thin gRPC client in a split deployment.
type Selector interface {
	Select(ctx context.Context, req motorsvc.Request) (*motorsvc.Result, error)
}

// Publisher is the narrow feedback-stream surface the proxy needs.
type Publisher interface {
	Publish(ctx context.Context, event domain.FeedbackEvent) (string, error)
}

// SnapshotSource resolves a committed arm's catalog identity on a gate
// short-circuit, without round-tripping through the selector.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, experimentID string) (*domain.ExperimentSnapshot, error)
}

// SelectRequest is one selection call's input.
type SelectRequest struct {
	ExperimentID    string
	ContextID       string
	ContextVector   []float64
	ContextMetadata map[string]string
}

// SelectResponse is the proxy's public selection result.
type SelectResponse struct {
	Arm       domain.Arm
	RequestID string
	IsDefault bool
}

// Service is the proxy (C10).
type Service struct {
	catalog     *catalog.Catalog
	gates       *gate.ConfigCache
	snapshots   SnapshotSource
	selector    Selector
	publisher   Publisher
	tokenSecret []byte
	tokenMaxAge time.Duration
}

func New(cat *catalog.Catalog, gates *gate.ConfigCache, snapshots SnapshotSource, selector Selector, publisher Publisher, tokenSecret []byte, tokenMaxAge time.Duration) *Service {
	return &Service{
		catalog: cat, gates: gates, snapshots: snapshots,
		selector: selector, publisher: publisher,
		tokenSecret: tokenSecret, tokenMaxAge: tokenMaxAge,
	}
}

// CreatePool, GetPool, ListPools, DeletePool, AddArm, CreateExperiment,
// GetExperiment, ListExperiments, UpdateExperiment, SetExperimentEnabled,
// DeleteExperiment pass straight through to the catalog, which already
// handles snapshot republish.

func (s *Service) CreatePool(ctx context.Context, name string, arms []catalog.ArmSpec) (*domain.Pool, error) {
	return s.catalog.CreatePool(ctx, name, arms)
}

func (s *Service) AddArm(ctx context.Context, poolID, name string, metadata map[string]string) (*domain.Arm, error) {
	return s.catalog.AddArm(ctx, poolID, name, metadata)
}

func (s *Service) GetPool(ctx context.Context, poolID string) (*domain.Pool, error) {
	return s.catalog.GetPool(ctx, poolID)
}

func (s *Service) ListPools(ctx context.Context, limit, offset int) ([]domain.Pool, error) {
	return s.catalog.ListPools(ctx, limit, offset)
}

func (s *Service) DeletePool(ctx context.Context, poolID string) error {
	return s.catalog.DeletePool(ctx, poolID)
}

func (s *Service) CreateExperiment(ctx context.Context, name, poolID, policyName string, policyParams map[string]float64) (*domain.Experiment, error) {
	return s.catalog.CreateExperiment(ctx, name, poolID, policyName, policyParams)
}

func (s *Service) GetExperiment(ctx context.Context, experimentID string) (*domain.Experiment, error) {
	return s.catalog.GetExperiment(ctx, experimentID)
}

func (s *Service) ListExperiments(ctx context.Context, limit, offset int) ([]domain.Experiment, error) {
	return s.catalog.ListExperiments(ctx, limit, offset)
}

// UpdateExperiment applies the given field changes and invalidates the
// gate cache, since a policy or name change still republishes the
// snapshot the gate's short-circuit path reads arms from.
func (s *Service) UpdateExperiment(ctx context.Context, experimentID string, upd catalog.ExperimentUpdate) (*domain.Experiment, error) {
	out, err := s.catalog.UpdateExperiment(ctx, experimentID, upd)
	if err != nil {
		return nil, err
	}
	s.gates.Invalidate(experimentID)
	return out, nil
}

func (s *Service) SetExperimentEnabled(ctx context.Context, experimentID string, enabled bool) error {
	return s.catalog.SetExperimentEnabled(ctx, experimentID, enabled)
}

func (s *Service) DeleteExperiment(ctx context.Context, experimentID string) error {
	if err := s.catalog.DeleteExperiment(ctx, experimentID); err != nil {
		return err
	}
	s.gates.Invalidate(experimentID)
	return nil
}

// UpsertGateConfig writes a gate config and invalidates the L1 cache so
// the new config takes effect immediately rather than after its TTL.
func (s *Service) UpsertGateConfig(ctx context.Context, cfg domain.FeatureGate) (*domain.FeatureGate, error) {
	out, err := s.catalog.UpsertFeatureGate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.gates.Invalidate(cfg.ExperimentID)
	return out, nil
}

func (s *Service) GetGateConfig(ctx context.Context, experimentID string) (*domain.FeatureGate, error) {
	return s.catalog.GetFeatureGate(ctx, experimentID)
}

// DeleteGateConfig removes an experiment's gate config and invalidates
// the L1 cache so the experiment unconditionally falls through to the
// bandit on the next selection.
func (s *Service) DeleteGateConfig(ctx context.Context, experimentID string) error {
	if err := s.catalog.DeleteFeatureGate(ctx, experimentID); err != nil {
		return err
	}
	s.gates.Invalidate(experimentID)
	return nil
}

// Select resolves one selection for an experiment and context: the
// gate is evaluated first, the bandit only runs if the gate doesn't
// short-circuit, and a selection token is always minted.
func (s *Service) Select(ctx context.Context, req SelectRequest) (*SelectResponse, error) {
	if req.ExperimentID == "" {
		return nil, qerrors.InvalidArgument("experiment_id is required")
	}

	var (
		arm       domain.Arm
		isDefault bool
	)

	cfg, err := s.gates.Get(ctx, req.ExperimentID)
	if err != nil && !qerrors.Is(err, codes.NotFound) {
		return nil, err
	}
	if cfg != nil {
		decision := gate.Evaluate(*cfg, req.ContextID, req.ContextMetadata, time.Now())
		if !decision.Proceed {
			snap, err := s.snapshots.GetSnapshot(ctx, req.ExperimentID)
			if err != nil {
				return nil, err
			}
			if snap == nil {
				return nil, qerrors.NotFound("experiment snapshot not found: " + req.ExperimentID)
			}
			found := false
			for _, a := range snap.Arms {
				if a.ID == decision.CommittedArmRef {
					arm, found = a, true
					break
				}
			}
			if !found {
				return nil, qerrors.Internal("committed arm not found in pool: " + decision.CommittedArmRef)
			}
			isDefault = true
			metrics.GateShortCircuitTotal.WithLabelValues(req.ExperimentID).Inc()
		}
	}

	if !isDefault {
		res, err := s.selector.Select(ctx, motorsvc.Request{
			ExperimentID:    req.ExperimentID,
			ContextID:       req.ContextID,
			ContextVector:   req.ContextVector,
			ContextMetadata: req.ContextMetadata,
		})
		if err != nil {
			return nil, err
		}
		arm = res.Arm
	}

	requestID, err := token.Encode(s.tokenSecret, req.ExperimentID, arm.Index, req.ContextID, req.ContextVector, req.ContextMetadata)
	if err != nil {
		return nil, qerrors.Internal("encode selection token: " + err.Error())
	}

	return &SelectResponse{Arm: arm, RequestID: requestID, IsDefault: isDefault}, nil
}

// Feedback decodes the selection token and publishes a feedback event;
// it never touches the catalog or the selector directly.
func (s *Service) Feedback(ctx context.Context, requestID string, reward float64) (bool, error) {
	entry, err := token.Decode(s.tokenSecret, requestID, s.tokenMaxAge)
	if err != nil {
		metrics.FeedbackRejected.WithLabelValues(rejectReason(err)).Inc()
		return false, err
	}

	event := domain.FeedbackEvent{
		ExperimentID:    entry.ExperimentID,
		RequestID:       requestID,
		ArmIndex:        entry.ArmIndex,
		Reward:          reward,
		ContextID:       entry.ContextID,
		ContextVector:   entry.ContextVector,
		ContextMetadata: entry.ContextMetadata,
		TimestampMS:     time.Now().UnixMilli(),
	}
	if _, err := s.publisher.Publish(ctx, event); err != nil {
		return false, err
	}
	metrics.FeedbackAccepted.Inc()
	return true, nil
}

func rejectReason(err error) string {
	if qerrors.Is(err, codes.DeadlineExceeded) {
		return "expired_token"
	}
	return "invalid_token"
}

// Health reports whether the selector is reachable, when it exposes a
// Health check; the catalog is not probed.
func (s *Service) Health(ctx context.Context) error {
	type healthChecker interface{ Health(ctx context.Context) error }
	if hc, ok := s.selector.(healthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			qlog.Warningln("proxy: selector health check failed", err)
			return err
		}
	}
	return nil
}
