package models

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type GameParticipant struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GameID         string             `bson:"game_id" json:"game_id"`
	UserID         string             `bson:"user_id" json:"user_id"`
	Nickname       string             `bson:"nickname" json:"nickname"`
	AvatarURL      string             `bson:"avatar_url" json:"avatar_url,omitempty"`
	GenresReady    bool               `bson:"genres_ready" json:"genres_ready"` // lobby: genres submitted
	RoundReady     bool               `bson:"round_ready" json:"round_ready"`   // play: votes submitted this round
	SelectedGenres string             `bson:"selected_genres" json:"selected_genres"` // serialized []int
	Votes          string             `bson:"votes" json:"votes"`                     // serialized map round label -> []media id
	Owners         []string           `bson:"owners" json:"-"`                        // participant user plus session host
	JoinedAt       time.Time          `bson:"joined_at" json:"joined_at"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// RoundLabel is the key under which a round's liked ids live in the votes map.
func RoundLabel(round int) string {
	return fmt.Sprintf("round_%d", round)
}

func (p *GameParticipant) VoteMap() (map[string][]int64, error) {
	if p.Votes == "" {
		return map[string][]int64{}, nil
	}
	votes := map[string][]int64{}
	if err := json.Unmarshal([]byte(p.Votes), &votes); err != nil {
		return nil, err
	}
	return votes, nil
}

func EncodeVoteMap(votes map[string][]int64) (string, error) {
	data, err := json.Marshal(votes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
