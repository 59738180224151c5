package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"clientpulse/api/models"
)

// SnapshotStore is the Postgres-backed append-only log of metrics snapshots.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// LatestSnapshot returns the snapshot with the greatest created_at for the key.
// found is false when the key has no snapshot yet.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, clientID, source string) (snap models.MetricsSnapshot, found bool, err error) {
	var bundle []byte
	err = s.db.QueryRowContext(ctx, `
		SELECT id, client_id, source, bundle, period_start, period_end, created_at
		FROM metrics_snapshots
		WHERE client_id = $1 AND source = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, clientID, source).Scan(&snap.ID, &snap.ClientID, &snap.Source, &bundle, &snap.PeriodStart, &snap.PeriodEnd, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MetricsSnapshot{}, false, nil
		}
		return models.MetricsSnapshot{}, false, fmt.Errorf("failed to read latest snapshot: %w", err)
	}

	if err := json.Unmarshal(bundle, &snap.Bundle); err != nil {
		return models.MetricsSnapshot{}, false, fmt.Errorf("decode snapshot bundle: %w", err)
	}
	return snap, true, nil
}

func (s *SnapshotStore) InsertSnapshot(ctx context.Context, snap models.MetricsSnapshot) error {
	bundle, err := json.Marshal(snap.Bundle)
	if err != nil {
		return fmt.Errorf("marshal snapshot bundle: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics_snapshots (id, client_id, source, bundle, period_start, period_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, snap.ID, snap.ClientID, snap.Source, bundle, snap.PeriodStart, snap.PeriodEnd, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}
