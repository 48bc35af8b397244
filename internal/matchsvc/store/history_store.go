package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cinewave/match-services/internal/matchsvc/models"
)

type HistoryStore struct {
	db *pgxpool.Pool
}

func NewHistoryStore(db *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{db: db}
}

// Create appends one result snapshot to the user's history log.
func (s *HistoryStore) Create(ctx context.Context, entry *models.HistoryEntry) (*models.HistoryEntry, error) {
	if entry.UserID == "" {
		return nil, fmt.Errorf("history entry requires a user id")
	}

	query := `
		INSERT INTO match_history (user_id, items, game_mode)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query, entry.UserID, entry.Items, entry.GameMode).Scan(
		&entry.ID,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create history entry: %w", err)
	}

	return entry, nil
}

// ListByUser returns the owner's saved results, newest first. There is no
// cross-user read path; access is owner scoped by construction.
func (s *HistoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, user_id, items, game_mode, created_at
		FROM match_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		e := &models.HistoryEntry{}
		err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Items,
			&e.GameMode,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}
