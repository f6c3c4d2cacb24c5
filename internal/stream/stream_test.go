package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiq-io/qbrix/internal/domain"
)

func TestFieldsRoundTrip(t *testing.T) {
	event := domain.FeedbackEvent{
		ExperimentID:    "exp-1",
		RequestID:       "req-1",
		ArmIndex:        2,
		Reward:          0.75,
		ContextID:       "ctx-1",
		ContextVector:   []float64{1, 2, 3},
		ContextMetadata: map[string]string{"tier": "gold"},
		TimestampMS:     1700000000000,
	}

	fields := toFields(event)
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	decoded, err := fromFields(values)
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
}

func TestFromFieldsRejectsBadArmIndex(t *testing.T) {
	_, err := fromFields(map[string]interface{}{
		"arm_index": "not-a-number",
		"reward":    "1.0",
	})
	assert.Error(t, err)
}

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(assertErr("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(assertErr("some other error")))
}

type stringErr string

func (e stringErr) Error() string { return string(e) }

func assertErr(s string) error { return stringErr(s) }
