package paramstore

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/optiq-io/qbrix/internal/domain"
	"github.com/optiq-io/qbrix/internal/qerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func experimentKey(experimentID string) string { return "qbrix:experiment:" + experimentID }

// SnapshotStore is the redis side of the catalog's denormalized
// ExperimentSnapshot copy (the catalog writes it, the selector and
// trainer read it). Split into its own file since the snapshot and the
// params live on different read paths even though they share a client.
type SnapshotStore struct {
	client *redis.Client
}

func NewSnapshotStore(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

// GetSnapshot satisfies cache.SnapshotSource.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, experimentID string) (*domain.ExperimentSnapshot, error) {
	data, err := s.client.Get(ctx, experimentKey(experimentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, qerrors.Unavailable("snapshotstore get: " + err.Error())
	}
	var snap domain.ExperimentSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, qerrors.Internal("snapshotstore decode: " + err.Error())
	}
	return &snap, nil
}

// SetSnapshot publishes the catalog's current view of an experiment;
// called after every catalog write that changes runtime behavior.
func (s *SnapshotStore) SetSnapshot(ctx context.Context, snap domain.ExperimentSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return qerrors.Internal("snapshotstore encode: " + err.Error())
	}
	if err := s.client.Set(ctx, experimentKey(snap.ExperimentID), data, 0).Err(); err != nil {
		return qerrors.Unavailable("snapshotstore set: " + err.Error())
	}
	return nil
}

func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, experimentID string) error {
	if err := s.client.Del(ctx, experimentKey(experimentID), paramKey(experimentID)).Err(); err != nil {
		return qerrors.Unavailable("snapshotstore delete: " + err.Error())
	}
	return nil
}
