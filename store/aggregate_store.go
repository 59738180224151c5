package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"clientpulse/api/models"
	"clientpulse/api/utils"
)

// AggregateStore persists daily rollups. The (client_id, date) primary key makes
// UpsertDailyAggregate a true conditional upsert.
type AggregateStore struct {
	db *sql.DB
}

func NewAggregateStore(db *sql.DB) *AggregateStore {
	return &AggregateStore{db: db}
}

func (s *AggregateStore) UpsertDailyAggregate(ctx context.Context, agg models.DailyAggregate) error {
	topPages, err := json.Marshal(agg.TopPages)
	if err != nil {
		return fmt.Errorf("marshal top pages: %w", err)
	}
	topReferrers, err := json.Marshal(agg.TopReferrers)
	if err != nil {
		return fmt.Errorf("marshal top referrers: %w", err)
	}
	devices, err := json.Marshal(agg.Devices)
	if err != nil {
		return fmt.Errorf("marshal devices: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_aggregates (
			client_id, date, page_views, unique_visitors, top_pages, top_referrers, devices, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (client_id, date) DO UPDATE SET
			page_views = EXCLUDED.page_views,
			unique_visitors = EXCLUDED.unique_visitors,
			top_pages = EXCLUDED.top_pages,
			top_referrers = EXCLUDED.top_referrers,
			devices = EXCLUDED.devices,
			updated_at = now()
	`, agg.ClientID, agg.Date.Format(utils.DateLayout), agg.PageViews, agg.UniqueVisitors, topPages, topReferrers, devices)
	if err != nil {
		return fmt.Errorf("failed to upsert daily aggregate for %s on %s: %w", agg.ClientID, agg.Date.Format(utils.DateLayout), err)
	}
	return nil
}

// ListDailyAggregates returns the client's rows with from <= date <= to, oldest first.
func (s *AggregateStore) ListDailyAggregates(ctx context.Context, clientID string, from, to time.Time) ([]models.DailyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id, date, page_views, unique_visitors, top_pages, top_referrers, devices
		FROM daily_aggregates
		WHERE client_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`, clientID, from.Format(utils.DateLayout), to.Format(utils.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily aggregates: %w", err)
	}
	defer rows.Close()

	results := []models.DailyAggregate{}
	for rows.Next() {
		var (
			agg                             models.DailyAggregate
			topPages, topReferrers, devices []byte
		)
		if err := rows.Scan(&agg.ClientID, &agg.Date, &agg.PageViews, &agg.UniqueVisitors, &topPages, &topReferrers, &devices); err != nil {
			return nil, fmt.Errorf("failed to scan daily aggregate: %w", err)
		}
		if err := json.Unmarshal(topPages, &agg.TopPages); err != nil {
			return nil, fmt.Errorf("decode top pages: %w", err)
		}
		if err := json.Unmarshal(topReferrers, &agg.TopReferrers); err != nil {
			return nil, fmt.Errorf("decode top referrers: %w", err)
		}
		if err := json.Unmarshal(devices, &agg.Devices); err != nil {
			return nil, fmt.Errorf("decode devices: %w", err)
		}
		agg.Date = agg.Date.UTC()
		results = append(results, agg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily aggregates: %w", err)
	}
	return results, nil
}
