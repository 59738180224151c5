package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"clientpulse/api/models"
)

// redisSnapshotKeep bounds how many snapshots are retained per key.
const redisSnapshotKeep = 20

// RedisSnapshotStore keeps snapshots in one sorted set per (client, source), scored by
// creation time in milliseconds, so the latest snapshot is the highest score.
type RedisSnapshotStore struct {
	client *redis.Client
}

func NewRedisSnapshotStore(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client}
}

func snapshotKey(clientID, source string) string {
	return fmt.Sprintf("snapshots:%s:%s", clientID, source)
}

func (s *RedisSnapshotStore) LatestSnapshot(ctx context.Context, clientID, source string) (models.MetricsSnapshot, bool, error) {
	members, err := s.client.ZRevRange(ctx, snapshotKey(clientID, source), 0, 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.MetricsSnapshot{}, false, nil
		}
		return models.MetricsSnapshot{}, false, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	if len(members) == 0 {
		return models.MetricsSnapshot{}, false, nil
	}

	var snap models.MetricsSnapshot
	if err := json.Unmarshal([]byte(members[0]), &snap); err != nil {
		return models.MetricsSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *RedisSnapshotStore) InsertSnapshot(ctx context.Context, snap models.MetricsSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := snapshotKey(snap.ClientID, snap.Source)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(snap.CreatedAt.UnixMilli()), Member: data})
	pipe.ZRemRangeByRank(ctx, key, 0, -redisSnapshotKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}
