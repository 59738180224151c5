// Package rollup folds a day of raw visit events into one DailyAggregate per client.
package rollup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clientpulse/api/models"
	"clientpulse/api/observability"
	"clientpulse/api/utils"
)

// EventSource reads raw events from the event store.
type EventSource interface {
	ActiveClients(ctx context.Context, start, end time.Time) ([]string, error)
	ClientEvents(ctx context.Context, clientID string, start, end time.Time) ([]models.RawEvent, error)
}

// ClientDirectory tells which client ids are registered. Events for any other id are
// never rolled up.
type ClientDirectory interface {
	KnownClientIDs(ctx context.Context, ids []string) (map[string]bool, error)
}

// AggregateWriter persists daily aggregates keyed by (client, date).
type AggregateWriter interface {
	UpsertDailyAggregate(ctx context.Context, agg models.DailyAggregate) error
}

type Options struct {
	Concurrency     int
	MaxRetries      int
	InitialInterval time.Duration
}

const defaultInitialInterval = 500 * time.Millisecond

type Aggregator struct {
	events  EventSource
	clients ClientDirectory
	writer  AggregateWriter
	opts    Options
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewAggregator(events EventSource, clients ClientDirectory, writer AggregateWriter, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Aggregator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = defaultInitialInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{events: events, clients: clients, writer: writer, opts: opts, logger: logger, metrics: metrics}
}

type TenantFailure struct {
	ClientID string `json:"clientId"`
	Error    string `json:"error"`
}

// Report summarises one rollup run. Processed and Skipped are sorted by client ID.
// Skipped lists ids that have events but are not in the client directory.
type Report struct {
	Date      time.Time       `json:"date"`
	Processed []string        `json:"processed"`
	Skipped   []string        `json:"skipped"`
	Failed    []TenantFailure `json:"failed"`
}

// Aggregate rolls up every client that has events on the UTC day containing date.
// A failing client is recorded in Report.Failed and does not stop the others;
// the returned error is non-nil only when the set of clients cannot be read.
// Events carrying an unregistered client id are logged and skipped, not failed.
func (a *Aggregator) Aggregate(ctx context.Context, date time.Time) (Report, error) {
	start, end := utils.DayBounds(date)
	report := Report{Date: start, Processed: []string{}, Skipped: []string{}, Failed: []TenantFailure{}}
	began := time.Now()
	defer func() { a.metrics.ObserveRollup(time.Since(began).Seconds()) }()

	clients, err := a.events.ActiveClients(ctx, start, end)
	if err != nil {
		return report, fmt.Errorf("list active clients for %s: %w", start.Format(utils.DateLayout), err)
	}
	clients, report.Skipped, err = a.registered(ctx, clients)
	if err != nil {
		return report, fmt.Errorf("check clients for %s: %w", start.Format(utils.DateLayout), err)
	}
	if len(report.Skipped) > 0 {
		a.logger.Warn("Skipping events of unknown clients",
			zap.String("date", start.Format(utils.DateLayout)),
			zap.Strings("client_ids", report.Skipped))
	}
	if len(clients) == 0 {
		a.logger.Info("No active clients for rollup", zap.String("date", start.Format(utils.DateLayout)))
		return report, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(a.opts.Concurrency)

	for _, clientID := range clients {
		g.Go(func() error {
			err := a.retry(ctx, func() error {
				return a.rollupClient(ctx, clientID, start, end)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Error("Client rollup failed",
					zap.String("client_id", clientID),
					zap.String("date", start.Format(utils.DateLayout)),
					zap.Error(err))
				report.Failed = append(report.Failed, TenantFailure{ClientID: clientID, Error: err.Error()})
				a.metrics.TenantRolledUp(false)
				return nil
			}
			report.Processed = append(report.Processed, clientID)
			a.metrics.TenantRolledUp(true)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Processed)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].ClientID < report.Failed[j].ClientID })

	a.logger.Info("Rollup finished",
		zap.String("date", start.Format(utils.DateLayout)),
		zap.Int("processed", len(report.Processed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// AggregateWithBackfill rolls up the day before date and then date itself,
// so late-arriving events for yesterday are folded in on the next run.
func (a *Aggregator) AggregateWithBackfill(ctx context.Context, date time.Time) ([]Report, error) {
	day := utils.StartOfDay(date)
	reports := make([]Report, 0, 2)
	for _, d := range []time.Time{day.AddDate(0, 0, -1), day} {
		r, err := a.Aggregate(ctx, d)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// registered splits ids into those in the client directory and the rest, both sorted.
func (a *Aggregator) registered(ctx context.Context, ids []string) ([]string, []string, error) {
	known, err := a.clients.KnownClientIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	kept := make([]string, 0, len(ids))
	skipped := []string{}
	for _, id := range ids {
		if known[id] {
			kept = append(kept, id)
		} else {
			skipped = append(skipped, id)
		}
	}
	sort.Strings(skipped)
	return kept, skipped, nil
}

func (a *Aggregator) retry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = a.opts.InitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(a.opts.MaxRetries)), ctx)
	return backoff.Retry(op, b)
}

func (a *Aggregator) rollupClient(ctx context.Context, clientID string, start, end time.Time) error {
	events, err := a.events.ClientEvents(ctx, clientID, start, end)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	agg := BuildDailyAggregate(clientID, start, events)
	if err := a.writer.UpsertDailyAggregate(ctx, agg); err != nil {
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

// BuildDailyAggregate computes the aggregate for one client and day.
// events must be ordered by (created_at, event_id) for tie-breaking to be stable.
func BuildDailyAggregate(clientID string, date time.Time, events []models.RawEvent) models.DailyAggregate {
	sessions := make(map[string]struct{}, len(events))
	pages := NewCounter()
	referrers := NewCounter()
	var devices models.DeviceBreakdown

	for _, e := range events {
		sessions[e.SessionID] = struct{}{}
		pages.Add(e.PageURL, 1)
		if e.Referrer != nil {
			referrers.Add(*e.Referrer, 1)
		}
		device := e.Device
		if device == "" {
			device = models.ClassifyDevice(e.UserAgent)
		}
		devices.Add(device, 1)
	}

	return models.DailyAggregate{
		ClientID:       clientID,
		Date:           utils.StartOfDay(date),
		PageViews:      int64(len(events)),
		UniqueVisitors: int64(len(sessions)),
		TopPages:       pages.Top(models.TopKLimit),
		TopReferrers:   referrers.Top(models.TopKLimit),
		Devices:        devices,
	}
}
