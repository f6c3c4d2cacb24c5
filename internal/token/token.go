// Package token implements the selection token (C5): an HMAC-SHA256
// signed, self-contained carrier of the selection context, letting
// feedback reach the trainer without a lookup table keyed by request id.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/optiq-io/qbrix/internal/qerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const sigLen = 16

// payload mirrors the original's fixed short key names so tokens stay
// compact on the wire.
type payload struct {
	ExpID    string            `json:"exp_id"`
	ArmIdx   int               `json:"arm_idx"`
	CtxID    string            `json:"ctx_id"`
	CtxVec   []float64         `json:"ctx_vec"`
	CtxMeta  map[string]string `json:"ctx_meta"`
	TS       int64             `json:"ts"`
}

// Entry is the decoded selection context returned by Decode.
type Entry struct {
	ExperimentID     string
	ArmIndex         int
	ContextID        string
	ContextVector    []float64
	ContextMetadata  map[string]string
	TimestampMS      int64
}

// nowMS is overridable in tests; production uses wall-clock time.
var nowMS = func() int64 { return time.Now().UnixMilli() }

// Encode signs and serializes a selection token. The secret never
// appears in the payload itself.
func Encode(secret []byte, expID string, armIdx int, ctxID string, ctxVec []float64, ctxMeta map[string]string) (string, error) {
	p := payload{
		ExpID:   expID,
		ArmIdx:  armIdx,
		CtxID:   ctxID,
		CtxVec:  ctxVec,
		CtxMeta: ctxMeta,
		TS:      nowMS(),
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", qerrors.Internal("token encode: marshal payload")
	}
	sig := signature(secret, data)
	return base64.URLEncoding.EncodeToString(append(data, sig...)), nil
}

func signature(secret, data []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	full := mac.Sum(nil)
	return full[:sigLen]
}

// Decode verifies and parses a token. maxAge of zero disables the
// expiry check. Failures are qerrors.InvalidArgument (invalid
// signature/encoding) or qerrors.DeadlineExceeded (expired).
func Decode(secret []byte, tok string, maxAge time.Duration) (Entry, error) {
	raw, err := base64.URLEncoding.DecodeString(tok)
	if err != nil {
		return Entry{}, qerrors.InvalidArgument("invalid token encoding")
	}
	if len(raw) < sigLen+1 {
		return Entry{}, qerrors.InvalidArgument("token too short")
	}
	data, sig := raw[:len(raw)-sigLen], raw[len(raw)-sigLen:]
	expected := signature(secret, data)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return Entry{}, qerrors.InvalidArgument("invalid token signature")
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Entry{}, qerrors.InvalidArgument("invalid token payload")
	}
	if maxAge > 0 {
		age := time.Duration(nowMS()-p.TS) * time.Millisecond
		if age > maxAge {
			return Entry{}, qerrors.DeadlineExceeded("token expired")
		}
	}
	return Entry{
		ExperimentID:    p.ExpID,
		ArmIndex:        p.ArmIdx,
		ContextID:       p.CtxID,
		ContextVector:   p.CtxVec,
		ContextMetadata: p.CtxMeta,
		TimestampMS:     p.TS,
	}, nil
}
