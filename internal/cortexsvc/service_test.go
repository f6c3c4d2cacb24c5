package cortexsvc

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/stream"
)

func TestCortexService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cortex Service Suite")
}

type fakeSnapshots struct {
	byID map[string]*domain.ExperimentSnapshot
}

func (f *fakeSnapshots) GetSnapshot(ctx context.Context, experimentID string) (*domain.ExperimentSnapshot, error) {
	return f.byID[experimentID], nil
}

type fakeBackend struct {
	byID map[string]policy.ParamState
}

func (f *fakeBackend) Get(ctx context.Context, experimentID string) (*policy.ParamState, error) {
	if ps, ok := f.byID[experimentID]; ok {
		return &ps, nil
	}
	return nil, nil
}

func (f *fakeBackend) Set(ctx context.Context, experimentID string, ps policy.ParamState) error {
	if f.byID == nil {
		f.byID = map[string]policy.ParamState{}
	}
	f.byID[experimentID] = ps
	return nil
}

type fakeConsumer struct {
	acked [][]string
}

func (f *fakeConsumer) Consume(ctx context.Context, batchSize int64, blockMS time.Duration) ([]stream.Message, error) {
	return nil, nil
}
func (f *fakeConsumer) RecoverPending(ctx context.Context, minIdle time.Duration, batchSize int64) ([]stream.Message, error) {
	return nil, nil
}
func (f *fakeConsumer) Ack(ctx context.Context, ids []string) error {
	f.acked = append(f.acked, ids)
	return nil
}
func (f *fakeConsumer) EnsureGroup(ctx context.Context) error { return nil }

func makeEvent(expID string, armIdx int, reward float64) domain.FeedbackEvent {
	return domain.FeedbackEvent{ExperimentID: expID, RequestID: "r", ArmIndex: armIdx, Reward: reward, ContextID: "c"}
}

var _ = Describe("Service.flush", func() {
	var (
		svc       *Service
		snapshots *fakeSnapshots
		backend   *fakeBackend
		consumer  *fakeConsumer
		ctx       = context.Background()
	)

	BeforeEach(func() {
		snapshots = &fakeSnapshots{byID: map[string]*domain.ExperimentSnapshot{
			"exp-1": {ExperimentID: "exp-1", Policy: "EpsilonGreedy", NumArms: 2},
		}}
		backend = &fakeBackend{}
		consumer = &fakeConsumer{}
		svc = New(Config{BatchSize: 10, BatchBlock: time.Millisecond, FlushInterval: time.Second, ErrorBackoff: time.Millisecond},
			consumer, snapshots, backend, policy.NewRegistry())
	})

	It("folds events into params and acks on success", func() {
		msgs := []stream.Message{
			{ID: "1-0", Event: makeEvent("exp-1", 0, 1.0)},
			{ID: "2-0", Event: makeEvent("exp-1", 1, 0.0)},
		}
		Expect(svc.flush(ctx, msgs)).To(Succeed())
		Expect(consumer.acked).To(HaveLen(1))
		Expect(consumer.acked[0]).To(ConsistOf("1-0", "2-0"))

		ps, ok := backend.byID["exp-1"]
		Expect(ok).To(BeTrue())
		Expect(ps.Mu).To(HaveLen(2))
	})

	It("drops and acks events for an unknown experiment", func() {
		msgs := []stream.Message{{ID: "1-0", Event: makeEvent("missing", 0, 1.0)}}
		Expect(svc.flush(ctx, msgs)).To(Succeed())
		Expect(consumer.acked).To(HaveLen(1))
		Expect(consumer.acked[0]).To(ConsistOf("1-0"))
		stats := svc.GetStats("missing")
		Expect(stats).To(HaveLen(1))
		Expect(stats[0].UnknownDropped).To(Equal(int64(1)))
	})

	It("reports per-experiment stats after training", func() {
		msgs := []stream.Message{{ID: "1-0", Event: makeEvent("exp-1", 0, 1.0)}}
		Expect(svc.flush(ctx, msgs)).To(Succeed())
		stats := svc.GetStats("exp-1")
		Expect(stats).To(HaveLen(1))
		Expect(stats[0].TotalEvents).To(Equal(int64(1)))
		Expect(stats[0].LastTrainMS).NotTo(BeZero())
	})

	It("FlushBatch flushes only the buffered events for the requested experiment", func() {
		svc.pendingMsgs = []stream.Message{
			{ID: "1-0", Event: makeEvent("exp-1", 0, 1.0)},
			{ID: "2-0", Event: makeEvent("exp-2", 0, 1.0)},
		}
		snapshots.byID["exp-2"] = &domain.ExperimentSnapshot{ExperimentID: "exp-2", Policy: "EpsilonGreedy", NumArms: 2}

		n, err := svc.FlushBatch(ctx, "exp-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(svc.pendingMsgs).To(HaveLen(1))
		Expect(svc.pendingMsgs[0].Event.ExperimentID).To(Equal("exp-2"))
	})
})
