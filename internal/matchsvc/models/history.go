package models

import "time"

// HistoryEntry is a write-once snapshot of a finished session's results,
// kept in the relational history log per user.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Items     string    `json:"items"` // serialized []MediaItem
	GameMode  string    `json:"game_mode"`
	CreatedAt time.Time `json:"created_at"`
}
