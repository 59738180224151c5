package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"clientpulse/api/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type ClientStore struct {
	db *sql.DB
}

func NewClientStore(db *sql.DB) *ClientStore {
	return &ClientStore{db: db}
}

func (s *ClientStore) GetClient(ctx context.Context, id string) (*models.Client, error) {
	var (
		client     models.Client
		locationID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, crm_location_id, created_at
		FROM clients
		WHERE id = $1
	`, id).Scan(&client.ID, &client.Name, &locationID, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("client %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if locationID.Valid {
		client.CRMLocationID = &locationID.String
	}
	return &client, nil
}

// KnownClientIDs returns the subset of ids that exist in the client directory.
func (s *ClientStore) KnownClientIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM clients WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to look up clients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan client id: %w", err)
		}
		known[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clients: %w", err)
	}
	return known, nil
}
