package store

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientpulse/api/models"
)

func newRedisStore(t *testing.T) (*RedisSnapshotStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisSnapshotStore(client), mr
}

func TestRedisSnapshotStoreLatestWins(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Inserted out of order: the read must go by created-at, not insertion order.
	for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		snap := models.MetricsSnapshot{
			ID:        base.Add(offset).Format(time.RFC3339),
			ClientID:  "client-1",
			Source:    "crm:30d",
			CreatedAt: base.Add(offset),
		}
		snap.Bundle.ConversionFunnel.TotalLeads = int(offset / time.Hour)
		require.NoError(t, s.InsertSnapshot(ctx, snap))
	}

	latest, found, err := s.LatestSnapshot(ctx, "client-1", "crm:30d")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, latest.Bundle.ConversionFunnel.TotalLeads)
	assert.True(t, latest.CreatedAt.Equal(base.Add(2*time.Hour)))
}

func TestRedisSnapshotStoreMissing(t *testing.T) {
	s, _ := newRedisStore(t)

	_, found, err := s.LatestSnapshot(context.Background(), "client-1", "crm:30d")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisSnapshotStoreKeysAreIsolated(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSnapshot(ctx, models.MetricsSnapshot{ID: "a", ClientID: "client-1", Source: "crm:30d", CreatedAt: time.Now()}))

	_, found, err := s.LatestSnapshot(ctx, "client-2", "crm:30d")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.LatestSnapshot(ctx, "client-1", "crm:7d")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisSnapshotStoreTrimsOldEntries(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < redisSnapshotKeep+5; i++ {
		require.NoError(t, s.InsertSnapshot(ctx, models.MetricsSnapshot{
			ID:        "snap-" + strconv.Itoa(i),
			ClientID:  "client-1",
			Source:    "crm:30d",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	members, err := mr.ZMembers(snapshotKey("client-1", "crm:30d"))
	require.NoError(t, err)
	assert.Len(t, members, redisSnapshotKeep)
}

func TestRedisSnapshotStoreReadError(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, found, err := s.LatestSnapshot(context.Background(), "client-1", "crm:30d")
	assert.Error(t, err)
	assert.False(t, found)
}
