package proxysvc

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/gate"
	"github.com/optiq-io/qbrix/internal/motorsvc"
)

func TestProxyService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Proxy Service Suite")
}

type fakeSnapshots struct {
	byID map[string]*domain.ExperimentSnapshot
}

func (f *fakeSnapshots) GetSnapshot(ctx context.Context, experimentID string) (*domain.ExperimentSnapshot, error) {
	return f.byID[experimentID], nil
}

type fakeSelector struct {
	called bool
	result *motorsvc.Result
}

func (f *fakeSelector) Select(ctx context.Context, req motorsvc.Request) (*motorsvc.Result, error) {
	f.called = true
	return f.result, nil
}

type fakePublisher struct {
	events []domain.FeedbackEvent
}

func (f *fakePublisher) Publish(ctx context.Context, event domain.FeedbackEvent) (string, error) {
	f.events = append(f.events, event)
	return "msg-1", nil
}

var _ = Describe("Service.Select", func() {
	var (
		snapshots *fakeSnapshots
		selector  *fakeSelector
		publisher *fakePublisher
		gates     *gate.ConfigCache
		secret    = []byte("test-secret")
		ctx       = context.Background()
	)

	BeforeEach(func() {
		snapshots = &fakeSnapshots{byID: map[string]*domain.ExperimentSnapshot{
			"exp-1": {
				ExperimentID: "exp-1",
				Arms: []domain.Arm{
					{ID: "a0", Name: "control", Index: 0},
					{ID: "a1", Name: "variant", Index: 1},
				},
			},
		}}
		selector = &fakeSelector{result: &motorsvc.Result{Arm: domain.Arm{ID: "a1", Name: "variant", Index: 1}, RequestID: "ignored"}}
		publisher = &fakePublisher{}

		var err error
		gates, err = gate.NewConfigCache(time.Minute, func(ctx context.Context, experimentID string) (*domain.FeatureGate, error) {
			return nil, nil
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("calls the selector when no gate config short-circuits", func() {
		svc := New(nil, gates, snapshots, selector, publisher, secret, time.Hour)
		res, err := svc.Select(ctx, SelectRequest{ExperimentID: "exp-1", ContextID: "ctx-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(selector.called).To(BeTrue())
		Expect(res.Arm.ID).To(Equal("a1"))
		Expect(res.IsDefault).To(BeFalse())
		Expect(res.RequestID).NotTo(BeEmpty())
	})

	It("short-circuits to the committed arm without calling the selector", func() {
		disabledGates, err := gate.NewConfigCache(time.Minute, func(ctx context.Context, experimentID string) (*domain.FeatureGate, error) {
			return &domain.FeatureGate{Enabled: false, DefaultArmRef: "a0"}, nil
		})
		Expect(err).NotTo(HaveOccurred())

		svc := New(nil, disabledGates, snapshots, selector, publisher, secret, time.Hour)
		res, err := svc.Select(ctx, SelectRequest{ExperimentID: "exp-1", ContextID: "ctx-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(selector.called).To(BeFalse())
		Expect(res.Arm.ID).To(Equal("a0"))
		Expect(res.IsDefault).To(BeTrue())
	})

	It("round-trips a selection through feedback", func() {
		svc := New(nil, gates, snapshots, selector, publisher, secret, time.Hour)
		res, err := svc.Select(ctx, SelectRequest{ExperimentID: "exp-1", ContextID: "ctx-1"})
		Expect(err).NotTo(HaveOccurred())

		accepted, err := svc.Feedback(ctx, res.RequestID, 1.0)
		Expect(err).NotTo(HaveOccurred())
		Expect(accepted).To(BeTrue())
		Expect(publisher.events).To(HaveLen(1))
		Expect(publisher.events[0].ArmIndex).To(Equal(1))
		Expect(publisher.events[0].ExperimentID).To(Equal("exp-1"))
	})

	It("rejects feedback with a tampered token", func() {
		svc := New(nil, gates, snapshots, selector, publisher, secret, time.Hour)
		res, err := svc.Select(ctx, SelectRequest{ExperimentID: "exp-1", ContextID: "ctx-1"})
		Expect(err).NotTo(HaveOccurred())

		_, err = svc.Feedback(ctx, res.RequestID+"x", 1.0)
		Expect(err).To(HaveOccurred())
	})
})
