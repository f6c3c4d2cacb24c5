// Package paramstore is the durable, redis-backed parameter state store
// (C2): last-writer-wins get/set of a policy's ParamState, keyed by
// experiment.
package paramstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/optiq-io/qbrix/internal/policy"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

func paramKey(experimentID string) string { return "qbrix:params:" + experimentID }

// Store is the C2 redis-backed parameter store. It satisfies
// cache.ParamBackend.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Get returns nil, nil on a cache miss (no experiment params yet).
func (s *Store) Get(ctx context.Context, experimentID string) (*policy.ParamState, error) {
	data, err := s.client.Get(ctx, paramKey(experimentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, qerrors.Unavailable("paramstore get: " + err.Error())
	}
	ps, err := policy.Unmarshal(data)
	if err != nil {
		return nil, qerrors.Internal("paramstore decode: " + err.Error())
	}
	return &ps, nil
}

// Set overwrites the stored state unconditionally; callers serialize
// writes to a given experiment via the trainer's single-consumer
// guarantee, enforced by internal/leaderelect.
func (s *Store) Set(ctx context.Context, experimentID string, ps policy.ParamState) error {
	data, err := policy.Marshal(ps)
	if err != nil {
		return qerrors.Internal("paramstore encode: " + err.Error())
	}
	if err := s.client.Set(ctx, paramKey(experimentID), data, s.ttl).Err(); err != nil {
		return qerrors.Unavailable("paramstore set: " + err.Error())
	}
	return nil
}

// Delete removes a stored parameter state, e.g. on experiment deletion.
func (s *Store) Delete(ctx context.Context, experimentID string) error {
	if err := s.client.Del(ctx, paramKey(experimentID)).Err(); err != nil {
		return qerrors.Unavailable("paramstore delete: " + err.Error())
	}
	return nil
}

// Ping satisfies motorsvc/cortexsvc's health-check Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
