package gate

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/optiq-io/qbrix/internal/domain"
)

func TestGate(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gate Suite")
}

var _ = Describe("Evaluate", func() {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	Describe("disabled experiment", func() {
		It("returns the default arm", func() {
			cfg := domain.FeatureGate{
				Enabled:           false,
				RolloutPercentage: 100,
				DefaultArmRef:     "arm-a",
			}
			d := Evaluate(cfg, "ctx-1", nil, now)
			Expect(d.Proceed).To(BeFalse())
			Expect(d.CommittedArmRef).To(Equal("arm-a"))
		})

		It("proceeds to bandit when no default arm is configured", func() {
			cfg := domain.FeatureGate{Enabled: false, RolloutPercentage: 100}
			d := Evaluate(cfg, "ctx-1", nil, now)
			Expect(d.Proceed).To(BeTrue())
		})
	})

	Describe("rollout", func() {
		It("is stable across repeated evaluations for the same context", func() {
			cfg := domain.FeatureGate{Enabled: true, RolloutPercentage: 50, DefaultArmRef: "arm-a"}
			first := Evaluate(cfg, "user-42", nil, now)
			second := Evaluate(cfg, "user-42", nil, now)
			Expect(first).To(Equal(second))
		})
	})

	Describe("rules", func() {
		It("commits the first matching rule's arm", func() {
			cfg := domain.FeatureGate{
				Enabled:           true,
				RolloutPercentage: 100,
				Rules: []domain.Rule{
					{Key: "tier", Operator: domain.OpEq, Value: "gold", CommittedArmRef: "arm-gold"},
					{Key: "tier", Operator: domain.OpEq, Value: "silver", CommittedArmRef: "arm-silver"},
				},
			}
			d := Evaluate(cfg, "ctx-1", map[string]string{"tier": "silver"}, now)
			Expect(d.Proceed).To(BeFalse())
			Expect(d.CommittedArmRef).To(Equal("arm-silver"))
		})

		It("proceeds when no rule matches", func() {
			cfg := domain.FeatureGate{
				Enabled:           true,
				RolloutPercentage: 100,
				Rules: []domain.Rule{
					{Key: "tier", Operator: domain.OpEq, Value: "gold", CommittedArmRef: "arm-gold"},
				},
			}
			d := Evaluate(cfg, "ctx-1", map[string]string{"tier": "bronze"}, now)
			Expect(d.Proceed).To(BeTrue())
		})

		It("fails a rule on a missing key rather than raising", func() {
			cfg := domain.FeatureGate{
				Enabled:           true,
				RolloutPercentage: 100,
				Rules: []domain.Rule{
					{Key: "tier", Operator: domain.OpEq, Value: "gold", CommittedArmRef: "arm-gold"},
				},
			}
			d := Evaluate(cfg, "ctx-1", map[string]string{}, now)
			Expect(d.Proceed).To(BeTrue())
		})

		It("fails a numeric comparison on non-numeric input rather than raising", func() {
			cfg := domain.FeatureGate{
				Enabled:           true,
				RolloutPercentage: 100,
				Rules: []domain.Rule{
					{Key: "score", Operator: domain.OpGt, Value: "10", CommittedArmRef: "arm-a"},
				},
			}
			d := Evaluate(cfg, "ctx-1", map[string]string{"score": "not-a-number"}, now)
			Expect(d.Proceed).To(BeTrue())
		})
	})

	Describe("active hours wraparound", func() {
		It("treats a start>end window as spanning midnight", func() {
			start := 22 * time.Hour
			end := 2 * time.Hour
			cfg := domain.FeatureGate{
				Enabled:           true,
				RolloutPercentage: 100,
				DefaultArmRef:     "arm-a",
				ActiveHours:       domain.ActiveHours{Start: &start, End: &end, Timezone: "UTC"},
			}
			midnight := time.Date(2026, 7, 30, 23, 30, 0, 0, time.UTC)
			d := Evaluate(cfg, "ctx-1", nil, midnight)
			Expect(d.Proceed).To(BeTrue())

			noon := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
			d2 := Evaluate(cfg, "ctx-1", nil, noon)
			Expect(d2.Proceed).To(BeFalse())
		})
	})
})
