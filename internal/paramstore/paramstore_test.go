package paramstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optiq-io/qbrix/internal/domain"
)

func TestParamKey(t *testing.T) {
	assert.Equal(t, "qbrix:params:exp-1", paramKey("exp-1"))
}

func TestExperimentKey(t *testing.T) {
	assert.Equal(t, "qbrix:experiment:exp-1", experimentKey("exp-1"))
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	snap := domain.ExperimentSnapshot{
		ExperimentID: "exp-1",
		Name:         "homepage-cta",
		Policy:       "EpsilonGreedy",
		NumArms:      2,
		Arms: []domain.Arm{
			{ID: "a0", Name: "control", Index: 0},
			{ID: "a1", Name: "variant", Index: 1},
		},
		Enabled: true,
	}
	data, err := json.Marshal(snap)
	assert.NoError(t, err)

	var decoded domain.ExperimentSnapshot
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap, decoded)
}
