// api/store/event_store.go
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clientpulse/api/database"
	"clientpulse/api/models"
)

// EventStore reads and writes raw visit events in ClickHouse.
type EventStore struct {
	DB     *database.ClickHouseClient
	logger *zap.Logger
}

func NewEventStore(chClient *database.ClickHouseClient, logger *zap.Logger) *EventStore {
	return &EventStore{
		DB:     chClient,
		logger: logger.With(zap.String("component", "event_store")),
	}
}

func (s *EventStore) InsertEvents(ctx context.Context, events []models.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO visit_events (
			event_id, client_id, page_url, referrer, user_agent, session_id, device, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.ClientID,
			event.PageURL,
			event.Referrer,
			event.UserAgent,
			event.SessionID,
			string(event.Device),
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s to batch: %w", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.logger.Debug("inserted visit events", zap.Int("count", len(events)))
	return nil
}

// ActiveClients returns the ids of clients with at least one event in [start, end).
func (s *EventStore) ActiveClients(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT DISTINCT client_id
		FROM visit_events
		WHERE created_at >= ? AND created_at < ?
		ORDER BY client_id
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query active clients: %w", err)
	}
	defer rows.Close()

	var clients []string
	for rows.Next() {
		var clientID string
		if err := rows.Scan(&clientID); err != nil {
			return nil, fmt.Errorf("failed to scan active client: %w", err)
		}
		clients = append(clients, clientID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active clients: %w", err)
	}
	return clients, nil
}

// ClientEvents returns a client's events in [start, end) in arrival order.
func (s *EventStore) ClientEvents(ctx context.Context, clientID string, start, end time.Time) ([]models.RawEvent, error) {
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT event_id, client_id, page_url, referrer, user_agent, session_id, device, created_at
		FROM visit_events
		WHERE client_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, event_id ASC
	`, clientID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for client %s: %w", clientID, err)
	}
	defer rows.Close()

	var events []models.RawEvent
	for rows.Next() {
		var (
			event  models.RawEvent
			device string
		)
		if err := rows.Scan(
			&event.EventID,
			&event.ClientID,
			&event.PageURL,
			&event.Referrer,
			&event.UserAgent,
			&event.SessionID,
			&device,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event for client %s: %w", clientID, err)
		}
		event.Device = models.DeviceClass(device)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events for client %s: %w", clientID, err)
	}
	return events, nil
}
