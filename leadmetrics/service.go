package leadmetrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"clientpulse/api/cache"
	"clientpulse/api/models"
	"clientpulse/api/store"
)

// Source is the snapshot source prefix for CRM bundles; the period is appended per query.
const Source = "crm"

var ErrClientNotFound = errors.New("client not found")

type ClientDirectory interface {
	GetClient(ctx context.Context, id string) (*models.Client, error)
}

type Computer interface {
	ComputeMetrics(ctx context.Context, locationID string, start, end time.Time) (models.MetricsBundle, error)
}

type MetricsCache interface {
	GetOrCompute(ctx context.Context, req cache.Request, compute cache.ComputeFunc) cache.Result
}

type Service struct {
	clients ClientDirectory
	engine  Computer
	cache   MetricsCache
	clock   quartz.Clock
	ttl     time.Duration
	logger  *zap.Logger
}

func NewService(clients ClientDirectory, engine Computer, c MetricsCache, clock quartz.Clock, ttl time.Duration, logger *zap.Logger) *Service {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{clients: clients, engine: engine, cache: c, clock: clock, ttl: ttl, logger: logger}
}

// Query returns the client's CRM bundle for the trailing period. CRM failures never surface
// here: they degrade to a stale snapshot or the empty bundle inside the cache.
func (s *Service) Query(ctx context.Context, clientID string, period models.Period) (cache.Result, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cache.Result{}, ErrClientNotFound
		}
		return cache.Result{}, fmt.Errorf("load client %s: %w", clientID, err)
	}

	if !client.HasCRM() {
		s.logger.Debug("Client has no CRM link", zap.String("client_id", clientID))
		return cache.Result{Bundle: EmptyBundle(), Status: cache.StatusEmpty}, nil
	}

	locationID := *client.CRMLocationID
	start, end := period.Bounds(s.clock.Now().UTC())
	req := cache.Request{
		ClientID:    clientID,
		Source:      period.SourceTag(Source),
		TTL:         s.ttl,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	return s.cache.GetOrCompute(ctx, req, func(ctx context.Context) (models.MetricsBundle, error) {
		return s.engine.ComputeMetrics(ctx, locationID, start, end)
	}), nil
}
