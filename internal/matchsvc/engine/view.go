package engine

import (
	"sort"

	"github.com/cinewave/match-services/internal/matchsvc/models"
	"github.com/cinewave/match-services/internal/shuffle"
)

// SortByJoin orders participants by join time, oldest first, with the
// document id as tiebreak. Every client must derive identical ranks, so
// the ordering has to be total and stable.
func SortByJoin(participants []*models.GameParticipant) {
	sort.SliceStable(participants, func(i, j int) bool {
		if participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].ID.Hex() < participants[j].ID.Hex()
		}
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
}

// Rank returns the player's position in join order, or -1 when absent.
// Callers must pass a SortByJoin ordered list.
func Rank(participants []*models.GameParticipant, userID string) int {
	for i, p := range participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// PoolView derives the slice of the pool this player swipes through.
// Round 1 partitions the pool into disjoint cardsPerPlayer slices by join
// rank so no two players vote on the same card; later rounds share the
// whole surviving pool.
func PoolView(pool []models.MediaItem, participants []*models.GameParticipant, userID string, roundCurrent int) []models.MediaItem {
	if roundCurrent > 1 {
		return pool
	}

	rank := Rank(participants, userID)
	if rank < 0 {
		return nil
	}
	return shuffle.Slice(pool, rank*models.CardsPerPlayer, models.CardsPerPlayer)
}
