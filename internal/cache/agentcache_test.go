package cache

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

func TestAgentCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AgentCache Suite")
}

type fakeSnapshots struct {
	byID  map[string]*domain.ExperimentSnapshot
	calls int
}

func (f *fakeSnapshots) GetSnapshot(ctx context.Context, experimentID string) (*domain.ExperimentSnapshot, error) {
	f.calls++
	return f.byID[experimentID], nil
}

type fakeBackend struct {
	byID  map[string]policy.ParamState
	calls int
}

func (f *fakeBackend) Get(ctx context.Context, experimentID string) (*policy.ParamState, error) {
	f.calls++
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

var _ = Describe("AgentCache.GetOrCreate", func() {
	var (
		snapshots *fakeSnapshots
		backend   *fakeBackend
		ac        *AgentCache
		ctx       = context.Background()
	)

	BeforeEach(func() {
		snapshots = &fakeSnapshots{byID: map[string]*domain.ExperimentSnapshot{
			"exp-1": {
				ExperimentID: "exp-1",
				Policy:       "EpsilonGreedy",
				NumArms:      3,
				Arms: []domain.Arm{
					{ID: "a0", Name: "control", Index: 0},
					{ID: "a1", Name: "variant", Index: 1},
					{ID: "a2", Name: "variant2", Index: 2},
				},
				Enabled: true,
			},
		}}
		backend = &fakeBackend{}
		var err error
		ac, err = NewAgentCache(policy.NewRegistry(), snapshots, backend, time.Minute, time.Minute)
		Expect(err).NotTo(HaveOccurred())
	})

	It("builds an agent and initializes params on first miss", func() {
		agent, pol, err := ac.GetOrCreate(ctx, "exp-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(agent.ExperimentID).To(Equal("exp-1"))
		Expect(pol.Name()).To(Equal("EpsilonGreedy"))
		Expect(snapshots.calls).To(Equal(1))

		ps, ok := ac.Params("exp-1")
		Expect(ok).To(BeTrue())
		Expect(ps.NumArms).To(Equal(3))
	})

	It("serves subsequent calls from cache without re-reading the snapshot", func() {
		_, _, err := ac.GetOrCreate(ctx, "exp-1")
		Expect(err).NotTo(HaveOccurred())
		_, _, err = ac.GetOrCreate(ctx, "exp-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(snapshots.calls).To(Equal(1))
	})

	It("fails with NotFound when the snapshot does not exist", func() {
		_, _, err := ac.GetOrCreate(ctx, "missing")
		Expect(err).To(HaveOccurred())
		Expect(qerrors.Code(err)).To(Equal(codes.NotFound))
	})

	It("does not re-initialize params that already exist in the backend", func() {
		pol, err := policy.NewRegistry().Lookup("EpsilonGreedy")
		Expect(err).NotTo(HaveOccurred())
		backend.byID = map[string]policy.ParamState{
			"exp-1": pol.InitParams(3, nil),
		}
		_, _, err = ac.GetOrCreate(ctx, "exp-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(backend.calls).To(Equal(1))
	})

	It("invalidates both agent and params entries", func() {
		_, _, err := ac.GetOrCreate(ctx, "exp-1")
		Expect(err).NotTo(HaveOccurred())
		ac.Invalidate("exp-1")
		_, ok := ac.Params("exp-1")
		Expect(ok).To(BeFalse())

		_, _, err = ac.GetOrCreate(ctx, "exp-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(snapshots.calls).To(Equal(2))
	})
})
