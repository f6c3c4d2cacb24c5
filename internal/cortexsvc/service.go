// Package cortexsvc implements the trainer (C9): a single long-lived
// consumer of the feedback stream that folds events into each
// experiment's ParamState in fixed-size or time-boxed batches, with a
// pending-entry recovery phase at startup and a real FlushBatch (the
// previous trainer never drained pre-crash pending entries and its
// flush_batch was a stub that always returned 0).
package cortexsvc

import (
	"context"
	"sync"
	"time"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/metrics"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/qlog"
	"github.com/optiq-io/qbrix/internal/stream"
)

// SnapshotSource reads the catalog-published experiment snapshot.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, experimentID string) (*domain.ExperimentSnapshot, error)
}

// ParamBackend reads/writes the durable ParamState.
type ParamBackend interface {
	Get(ctx context.Context, experimentID string) (*policy.ParamState, error)
	Set(ctx context.Context, experimentID string, ps policy.ParamState) error
}

// StreamConsumer is the subset of stream.Consumer the trainer drives.
type StreamConsumer interface {
	Consume(ctx context.Context, batchSize int64, blockMS time.Duration) ([]stream.Message, error)
	RecoverPending(ctx context.Context, minIdle time.Duration, batchSize int64) ([]stream.Message, error)
	Ack(ctx context.Context, ids []string) error
	EnsureGroup(ctx context.Context) error
}

// Stats is one experiment's running training counters.
type Stats struct {
	ExperimentID   string
	TotalEvents    int64
	Pending        int
	LastTrainMS    int64
	UnknownDropped int64
}

// Config bounds the trainer's batching behavior.
type Config struct {
	BatchSize     int64
	BatchBlock    time.Duration
	FlushInterval time.Duration
	MinIdle       time.Duration
	ErrorBackoff  time.Duration
}

// Service is the trainer (C9).
type Service struct {
	cfg       Config
	consumer  StreamConsumer
	snapshots SnapshotSource
	backend   ParamBackend
	registry  *policy.Registry

	mu    sync.Mutex
	stats map[string]*Stats

	pendingMsgs []stream.Message
	lastFlush   time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, consumer StreamConsumer, snapshots SnapshotSource, backend ParamBackend, registry *policy.Registry) *Service {
	return &Service{
		cfg: cfg, consumer: consumer, snapshots: snapshots, backend: backend, registry: registry,
		stats: map[string]*Stats{},
	}
}

// Start runs the recovery phase once, then launches the steady-state
// consumer loop in a background goroutine.
func (s *Service) Start(ctx context.Context) error {
	if err := s.consumer.EnsureGroup(ctx); err != nil {
		return err
	}
	if err := s.recover(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastFlush = time.Now()
	go s.runLoop(loopCtx)
	return nil
}

// Stop cancels the consumer loop and flushes whatever remains buffered.
func (s *Service) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.mu.Lock()
	buffer := s.pendingMsgs
	s.pendingMsgs = nil
	s.mu.Unlock()
	if len(buffer) > 0 {
		if err := s.flush(ctx, buffer); err != nil {
			qlog.Errorln("cortex: final flush failed on stop", err)
		}
	}
}

// recover drains messages delivered to this consumer identity before a
// prior crash but never acked.
func (s *Service) recover(ctx context.Context) error {
	for {
		msgs, err := s.consumer.RecoverPending(ctx, 0, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		if err := s.flush(ctx, msgs); err != nil {
			return err
		}
	}
}

func (s *Service) runLoop(ctx context.Context) {
	defer close(s.done)
	qlog.Infoln("cortex: consumer loop started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		capacity := s.cfg.BatchSize - int64(len(s.pendingMsgs))
		s.mu.Unlock()
		if capacity <= 0 {
			capacity = s.cfg.BatchSize
		}

		msgs, err := s.consumer.Consume(ctx, capacity, s.cfg.BatchBlock)
		if err != nil {
			qlog.Errorln("cortex: consume failed", err)
			sleepOrDone(ctx, s.cfg.ErrorBackoff)
			continue
		}

		s.mu.Lock()
		s.pendingMsgs = append(s.pendingMsgs, msgs...)
		shouldFlush := int64(len(s.pendingMsgs)) >= s.cfg.BatchSize || time.Since(s.lastFlush) >= s.cfg.FlushInterval
		buffer := s.pendingMsgs
		s.mu.Unlock()

		if !shouldFlush || len(buffer) == 0 {
			continue
		}

		if err := s.flush(ctx, buffer); err != nil {
			qlog.Errorln("cortex: flush failed", err)
			sleepOrDone(ctx, s.cfg.ErrorBackoff)
			continue
		}

		s.mu.Lock()
		s.pendingMsgs = nil
		s.lastFlush = time.Now()
		s.mu.Unlock()
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// flush groups msgs by experiment, folds each group into its
// ParamState, and acks only after a successful params write.
func (s *Service) flush(ctx context.Context, msgs []stream.Message) error {
	byExperiment := map[string][]stream.Message{}
	order := []string{}
	for _, m := range msgs {
		if _, ok := byExperiment[m.Event.ExperimentID]; !ok {
			order = append(order, m.Event.ExperimentID)
		}
		byExperiment[m.Event.ExperimentID] = append(byExperiment[m.Event.ExperimentID], m)
	}

	var ackIDs []string
	for _, expID := range order {
		group := byExperiment[expID]
		trained, err := s.trainExperiment(ctx, expID, group)
		if err != nil {
			return err
		}
		if trained {
			for _, m := range group {
				ackIDs = append(ackIDs, m.ID)
			}
		} else {
			// unknown experiment: events are dropped, still acked so
			// they don't redeliver forever.
			s.recordUnknown(expID, len(group))
			for _, m := range group {
				ackIDs = append(ackIDs, m.ID)
			}
		}
	}

	if err := s.consumer.Ack(ctx, ackIDs); err != nil {
		return err
	}
	qlog.Infoln("cortex: trained batch", qlog.Fields{"events": len(msgs), "experiments": len(order)})
	return nil
}

// trainExperiment folds one experiment's group of events into its
// ParamState. Returns false (no write attempted) if the snapshot is
// missing.
func (s *Service) trainExperiment(ctx context.Context, experimentID string, group []stream.Message) (bool, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, experimentID)
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}

	pol, err := s.registry.Lookup(snap.Policy)
	if err != nil {
		return false, nil
	}

	ps, err := s.backend.Get(ctx, experimentID)
	if err != nil {
		return false, err
	}
	if ps == nil {
		init := pol.InitParams(snap.NumArms, snap.PolicyParams)
		ps = &init
	}

	for _, m := range group {
		ctxIn := policy.Context{
			ID:       m.Event.ContextID,
			Vector:   m.Event.ContextVector,
			Metadata: m.Event.ContextMetadata,
		}
		next, err := pol.Train(*ps, ctxIn, m.Event.ArmIndex, m.Event.Reward)
		if err != nil {
			return false, err
		}
		ps = &next
	}

	if err := s.backend.Set(ctx, experimentID, *ps); err != nil {
		return false, err
	}

	s.recordTrained(experimentID, len(group))
	return true, nil
}

func (s *Service) recordTrained(experimentID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statFor(experimentID)
	st.TotalEvents += int64(n)
	st.LastTrainMS = time.Now().UnixMilli()
	metrics.TrainBatchEvents.WithLabelValues(experimentID).Add(float64(n))
}

func (s *Service) recordUnknown(experimentID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statFor(experimentID)
	st.UnknownDropped += int64(n)
	metrics.TrainUnknownExperiment.WithLabelValues(experimentID).Add(float64(n))
}

func (s *Service) statFor(experimentID string) *Stats {
	st, ok := s.stats[experimentID]
	if !ok {
		st = &Stats{ExperimentID: experimentID}
		s.stats[experimentID] = st
	}
	return st
}

// FlushBatch forces an immediate flush of the current pending buffer,
// optionally scoped to one experiment. A real implementation, unlike
// the original's stub that always returns 0.
func (s *Service) FlushBatch(ctx context.Context, experimentID string) (int, error) {
	s.mu.Lock()
	var toFlush, keep []stream.Message
	for _, m := range s.pendingMsgs {
		if experimentID == "" || m.Event.ExperimentID == experimentID {
			toFlush = append(toFlush, m)
		} else {
			keep = append(keep, m)
		}
	}
	s.pendingMsgs = keep
	s.mu.Unlock()

	if len(toFlush) == 0 {
		return 0, nil
	}
	if err := s.flush(ctx, toFlush); err != nil {
		return 0, err
	}
	return len(toFlush), nil
}

// GetStats returns training counters, optionally scoped to one
// experiment.
func (s *Service) GetStats(experimentID string) []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := map[string]int{}
	for _, m := range s.pendingMsgs {
		pending[m.Event.ExperimentID]++
	}
	if experimentID != "" {
		if st, ok := s.stats[experimentID]; ok {
			cp := *st
			cp.Pending = pending[experimentID]
			return []Stats{cp}
		}
		return nil
	}
	out := make([]Stats, 0, len(s.stats))
	for _, st := range s.stats {
		cp := *st
		cp.Pending = pending[st.ExperimentID]
		out = append(out, cp)
	}
	return out
}

// Health reports whether the trainer can still reach its params
// backend.
func (s *Service) Health(ctx context.Context) error {
	type pinger interface{ Ping(ctx context.Context) error }
	if p, ok := s.backend.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
