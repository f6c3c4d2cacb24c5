package motorsvc

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/optiq-io/qbrix/internal/cache"
	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/policy"
)

func TestMotorService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Motor Service Suite")
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

type fixedRand struct{ v float64 }

func (r fixedRand) Float64() float64     { return r.v }
func (r fixedRand) NormFloat64() float64 { return 0 }
func (r fixedRand) ExpFloat64() float64  { return 1 }

type fakePing struct{ err error }

func (f fakePing) Ping(ctx context.Context) error { return f.err }

var _ = Describe("Service.Select", func() {
	var (
		svc *Service
		ctx = context.Background()
	)

	BeforeEach(func() {
		snapshots := &fakeSnapshots{byID: map[string]*domain.ExperimentSnapshot{
			"exp-1": {
				ExperimentID: "exp-1",
				Policy:       "EpsilonGreedy",
				NumArms:      2,
				Arms: []domain.Arm{
					{ID: "a0", Name: "control", Index: 0},
					{ID: "a1", Name: "variant", Index: 1},
				},
				Enabled: true,
			},
		}}
		agentCache, err := cache.NewAgentCache(policy.NewRegistry(), snapshots, &fakeBackend{}, time.Minute, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		svc = New(agentCache, fixedRand{v: 0.99}, fakePing{})
	})

	It("resolves the chosen arm's catalog identity", func() {
		res, err := svc.Select(ctx, Request{ExperimentID: "exp-1", ContextID: "ctx-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Arm.ID).To(BeElementOf("a0", "a1"))
		Expect(res.RequestID).NotTo(BeEmpty())
	})

	It("rejects a missing experiment id", func() {
		_, err := svc.Select(ctx, Request{ExperimentID: ""})
		Expect(err).To(HaveOccurred())
	})

	It("fails for an unknown experiment", func() {
		_, err := svc.Select(ctx, Request{ExperimentID: "missing"})
		Expect(err).To(HaveOccurred())
	})

	It("reports health via the ping dependency", func() {
		Expect(svc.Health(ctx)).To(Succeed())
	})
})
