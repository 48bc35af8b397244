package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MediaItem is the normalized card shape shared by the pool, the vote
// payloads and the final results. Serialized as JSON inside the session
// document, same trick as a card's data blob.
type MediaItem struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	PosterPath  string          `json:"poster_path"`
	VoteAverage decimal.Decimal `json:"vote_average"`
	ReleaseDate string          `json:"release_date"`
	MediaType   string          `json:"media_type"`
}

func EncodeMediaItems(items []MediaItem) (string, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func DecodeMediaItems(raw string) ([]MediaItem, error) {
	if raw == "" {
		return nil, nil
	}
	var items []MediaItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}
