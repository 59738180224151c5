// Package cache serves the newest metrics snapshot per (client, source) while it is younger
// than a TTL, recomputes it when it is not, and falls back to older data when recomputation fails.
package cache

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clientpulse/api/models"
	"clientpulse/api/observability"
)

// SnapshotStore is the append-only snapshot log. Both the Postgres and Redis stores implement it.
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context, clientID, source string) (models.MetricsSnapshot, bool, error)
	InsertSnapshot(ctx context.Context, snap models.MetricsSnapshot) error
}

type Status string

const (
	StatusFresh    Status = observability.CacheFresh
	StatusComputed Status = observability.CacheComputed
	StatusStale    Status = observability.CacheStale
	StatusEmpty    Status = observability.CacheEmpty
)

// Result is what GetOrCompute hands back. SnapshotAt is the creation time of the
// snapshot that produced Bundle and is nil for the empty fallback.
type Result struct {
	Bundle     models.MetricsBundle `json:"bundle"`
	Status     Status               `json:"status"`
	SnapshotAt *time.Time           `json:"snapshotAt,omitempty"`
}

type ComputeFunc func(ctx context.Context) (models.MetricsBundle, error)

// Request identifies the cache entry and the period a freshly computed bundle covers.
type Request struct {
	ClientID    string
	Source      string
	TTL         time.Duration
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type SnapshotCache struct {
	store   SnapshotStore
	clock   quartz.Clock
	empty   func() models.MetricsBundle
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewSnapshotCache wires a cache over store. empty produces the bundle returned when there is
// neither fresh nor stale data.
func NewSnapshotCache(store SnapshotStore, clock quartz.Clock, empty func() models.MetricsBundle, logger *zap.Logger, metrics *observability.Metrics) *SnapshotCache {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotCache{store: store, clock: clock, empty: empty, logger: logger, metrics: metrics}
}

// GetOrCompute never fails. Read errors are treated as a missing snapshot and write errors
// are logged; compute errors degrade to the stale snapshot or the empty bundle.
//
// Lookup and insert are not atomic: concurrent callers that both see an expired entry
// will both compute and both insert.
func (c *SnapshotCache) GetOrCompute(ctx context.Context, req Request, compute ComputeFunc) Result {
	log := c.logger.With(zap.String("client_id", req.ClientID), zap.String("source", req.Source))

	prev, found, err := c.store.LatestSnapshot(ctx, req.ClientID, req.Source)
	if err != nil {
		log.Warn("Snapshot lookup failed, treating as miss", zap.Error(err))
		found = false
	}

	if found && c.clock.Now().Sub(prev.CreatedAt) < req.TTL {
		return c.result(req.Source, prev.Bundle, StatusFresh, &prev.CreatedAt)
	}

	bundle, err := compute(ctx)
	if err != nil {
		if found {
			log.Warn("Metrics computation failed, serving stale snapshot",
				zap.Time("snapshot_at", prev.CreatedAt),
				zap.Error(err))
			return c.result(req.Source, prev.Bundle, StatusStale, &prev.CreatedAt)
		}
		log.Warn("Metrics computation failed, no snapshot to fall back to", zap.Error(err))
		return c.result(req.Source, c.empty(), StatusEmpty, nil)
	}

	snap := models.MetricsSnapshot{
		ID:          uuid.New().String(),
		ClientID:    req.ClientID,
		Source:      req.Source,
		Bundle:      bundle,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		CreatedAt:   c.clock.Now().UTC(),
	}
	if err := c.store.InsertSnapshot(ctx, snap); err != nil {
		log.Error("Failed to persist metrics snapshot", zap.Error(err))
	}
	return c.result(req.Source, bundle, StatusComputed, &snap.CreatedAt)
}

func (c *SnapshotCache) result(source string, bundle models.MetricsBundle, status Status, at *time.Time) Result {
	c.metrics.CacheOutcome(source, string(status))
	return Result{Bundle: bundle, Status: status, SnapshotAt: at}
}
