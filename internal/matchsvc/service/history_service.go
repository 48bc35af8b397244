package service

import (
	"context"
	"fmt"

	"github.com/cinewave/match-services/internal/matchsvc/models"
)

type HistoryStore interface {
	Create(ctx context.Context, entry *models.HistoryEntry) (*models.HistoryEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error)
}

type HistoryService struct {
	store HistoryStore
}

func NewHistoryService(store HistoryStore) *HistoryService {
	return &HistoryService{store: store}
}

// SaveToHistory snapshots a finished session's results into the caller's
// log. The store has no dedup key for "this session, this user"; callers
// guard against double saves with their own already-saved flag.
func (s *HistoryService) SaveToHistory(ctx context.Context, userID string, items []models.MediaItem, gameMode string) (*models.HistoryEntry, error) {
	encoded, err := models.EncodeMediaItems(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history items: %w", err)
	}

	return s.store.Create(ctx, &models.HistoryEntry{
		UserID:   userID,
		Items:    encoded,
		GameMode: gameMode,
	})
}

func (s *HistoryService) GetHistory(ctx context.Context, userID string, limit int) ([]*models.HistoryEntry, error) {
	return s.store.ListByUser(ctx, userID, limit)
}
