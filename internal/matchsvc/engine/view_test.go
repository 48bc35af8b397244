package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/cinewave/match-services/internal/matchsvc/models"
)

func makePool(n int) []models.MediaItem {
	pool := make([]models.MediaItem, 0, n)
	for i := 1; i <= n; i++ {
		pool = append(pool, models.MediaItem{ID: int64(i), Title: fmt.Sprintf("m%d", i)})
	}
	return pool
}

func participantAt(userID string, joined time.Time) *models.GameParticipant {
	return &models.GameParticipant{
		ID:       primitive.NewObjectID(),
		UserID:   userID,
		JoinedAt: joined,
	}
}

func TestSortByJoinOrdersByJoinTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p1 := participantAt("late", base.Add(2*time.Minute))
	p2 := participantAt("first", base)
	p3 := participantAt("middle", base.Add(time.Minute))

	participants := []*models.GameParticipant{p1, p2, p3}
	SortByJoin(participants)

	require.Equal(t, "first", participants[0].UserID)
	require.Equal(t, "middle", participants[1].UserID)
	require.Equal(t, "late", participants[2].UserID)
}

func TestSortByJoinTiebreaksOnID(t *testing.T) {
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	idA, err := primitive.ObjectIDFromHex("aaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	idB, err := primitive.ObjectIDFromHex("bbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, err)

	p1 := &models.GameParticipant{ID: idB, UserID: "u-b", JoinedAt: joined}
	p2 := &models.GameParticipant{ID: idA, UserID: "u-a", JoinedAt: joined}

	participants := []*models.GameParticipant{p1, p2}
	SortByJoin(participants)

	require.Equal(t, "u-a", participants[0].UserID)
	require.Equal(t, "u-b", participants[1].UserID)
}

func TestPoolViewRoundOnePartitionsDisjoint(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	host := participantAt("host", base)
	guest := participantAt("guest", base.Add(time.Second))
	participants := []*models.GameParticipant{host, guest}
	SortByJoin(participants)

	pool := makePool(2 * models.CardsPerPlayer)

	hostView := PoolView(pool, participants, "host", 1)
	guestView := PoolView(pool, participants, "guest", 1)

	require.Len(t, hostView, models.CardsPerPlayer)
	require.Len(t, guestView, models.CardsPerPlayer)

	require.Equal(t, "m1", hostView[0].Title)
	require.Equal(t, "m10", hostView[models.CardsPerPlayer-1].Title)
	require.Equal(t, "m11", guestView[0].Title)
	require.Equal(t, "m20", guestView[models.CardsPerPlayer-1].Title)

	seen := map[int64]bool{}
	for _, item := range hostView {
		seen[item.ID] = true
	}
	for _, item := range guestView {
		require.False(t, seen[item.ID], "card %d dealt to both players", item.ID)
	}
}

func TestPoolViewLaterRoundsShareThePool(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	participants := []*models.GameParticipant{
		participantAt("host", base),
		participantAt("guest", base.Add(time.Second)),
	}
	pool := makePool(7)

	hostView := PoolView(pool, participants, "host", 2)
	guestView := PoolView(pool, participants, "guest", 2)

	require.Equal(t, pool, hostView)
	require.Equal(t, pool, guestView)
}

func TestPoolViewUnknownUser(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	participants := []*models.GameParticipant{participantAt("host", base)}
	pool := makePool(models.CardsPerPlayer)

	require.Nil(t, PoolView(pool, participants, "stranger", 1))
}

func TestPoolViewShortPoolClamps(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	participants := []*models.GameParticipant{
		participantAt("host", base),
		participantAt("guest", base.Add(time.Second)),
	}
	// second slice only has 5 cards left
	pool := makePool(models.CardsPerPlayer + 5)

	guestView := PoolView(pool, participants, "guest", 1)
	require.Len(t, guestView, 5)
}

func TestRank(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	participants := []*models.GameParticipant{
		participantAt("host", base),
		participantAt("guest", base.Add(time.Second)),
	}

	require.Equal(t, 0, Rank(participants, "host"))
	require.Equal(t, 1, Rank(participants, "guest"))
	require.Equal(t, -1, Rank(participants, "stranger"))
}
