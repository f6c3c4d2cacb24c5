package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiq-io/qbrix/internal/qerrors"
)

func TestRoundTrip(t *testing.T) {
	secret := []byte("s3cr3t")
	tok, err := Encode(secret, "exp-1", 2, "ctx-1", []float64{1, 2}, map[string]string{"k": "v"})
	require.NoError(t, err)

	entry, err := Decode(secret, tok, 0)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", entry.ExperimentID)
	assert.Equal(t, 2, entry.ArmIndex)
	assert.Equal(t, "ctx-1", entry.ContextID)
	assert.Equal(t, []float64{1, 2}, entry.ContextVector)
	assert.Equal(t, "v", entry.ContextMetadata["k"])
}

func TestTamperIsRejected(t *testing.T) {
	secret := []byte("s3cr3t")
	tok, err := Encode(secret, "exp-1", 0, "c1", nil, nil)
	require.NoError(t, err)

	tampered := []byte(tok)
	last := len(tampered) - 1
	if tampered[last] == 'a' {
		tampered[last] = 'b'
	} else {
		tampered[last] = 'a'
	}

	_, err = Decode(secret, string(tampered), 0)
	require.Error(t, err)
	assert.Equal(t, qerrors.Code(err).String(), "InvalidArgument")
}

func TestWrongSecretIsRejected(t *testing.T) {
	tok, err := Encode([]byte("secret-a"), "exp-1", 0, "c1", nil, nil)
	require.NoError(t, err)
	_, err = Decode([]byte("secret-b"), tok, 0)
	require.Error(t, err)
}

func TestExpiry(t *testing.T) {
	secret := []byte("s3cr3t")
	fixedNow := int64(1_700_000_000_000)
	old := nowMS
	nowMS = func() int64 { return fixedNow }
	tok, err := Encode(secret, "exp-1", 0, "c1", nil, nil)
	require.NoError(t, err)

	nowMS = func() int64 { return fixedNow + 2000 }
	defer func() { nowMS = old }()

	_, err = Decode(secret, tok, 1*time.Second)
	require.Error(t, err)
	assert.Equal(t, "DeadlineExceeded", qerrors.Code(err).String())
}

func TestTooShortIsInvalid(t *testing.T) {
	_, err := Decode([]byte("s"), "YQ", 0)
	require.Error(t, err)
}
