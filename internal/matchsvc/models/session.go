package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session status values. Transitions are strictly
// lobby -> in_progress -> finished, never backwards.
const (
	StatusLobby      = "lobby"
	StatusInProgress = "in_progress"
	StatusFinished   = "finished"
)

const (
	ContentMovie = "movie"
	ContentTV    = "tv"
)

// CardsPerPlayer is the size of each player's round-1 slice of the pool.
const CardsPerPlayer = 10

type GameSession struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HostID         string             `bson:"host_id" json:"host_id"`
	Status         string             `bson:"status" json:"status"`
	GameCode       string             `bson:"game_code" json:"game_code"` // 6 digit join token
	GenresRequired int                `bson:"genres_required" json:"genres_required"`
	RoundCurrent   int                `bson:"round_current" json:"round_current"`
	RoundTotal     int                `bson:"round_total" json:"round_total"`
	MoviesPool     string             `bson:"movies_pool" json:"movies_pool"`     // serialized []MediaItem
	MergedGenres   string             `bson:"merged_genres" json:"merged_genres"` // serialized []int
	ContentType    string             `bson:"content_type" json:"content_type"`   // 'movie' or 'tv'
	Providers      string             `bson:"providers" json:"providers"`         // serialized []int
	MinYear        int                `bson:"min_year,omitempty" json:"min_year,omitempty"`
	MaxYear        int                `bson:"max_year,omitempty" json:"max_year,omitempty"`
	MinRating      string             `bson:"min_rating,omitempty" json:"min_rating,omitempty"`
	Owners         []string           `bson:"owners" json:"-"`                    // identities allowed to write
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

func (s *GameSession) Pool() ([]MediaItem, error) {
	return DecodeMediaItems(s.MoviesPool)
}

func EncodeIntSet(ids []int) (string, error) {
	data, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func DecodeIntSet(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
