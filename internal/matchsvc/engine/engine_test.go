package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/cinewave/match-services/internal/matchsvc/models"
	"github.com/cinewave/match-services/internal/matchsvc/store"
)

type fakeOps struct {
	mu           sync.Mutex
	session      *models.GameSession
	participants []*models.GameParticipant

	submitted  [][]int64
	advances   int
	advanceErr error // consumed by the next NextRoundOrFinish call
}

func (f *fakeOps) GetGame(ctx context.Context, gameID string) (*models.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.session
	return &copied, nil
}

func (f *fakeOps) GetParticipants(ctx context.Context, gameID string) ([]*models.GameParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := make([]*models.GameParticipant, 0, len(f.participants))
	for _, p := range f.participants {
		copied := *p
		list = append(list, &copied)
	}
	return list, nil
}

func (f *fakeOps) SubmitRoundVotes(ctx context.Context, gameID, userID string, likedIDs []int64) (*models.GameParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, likedIDs)
	return &models.GameParticipant{}, nil
}

func (f *fakeOps) NextRoundOrFinish(ctx context.Context, gameID, hostID string) (*models.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advances++
	if f.advanceErr != nil {
		err := f.advanceErr
		f.advanceErr = nil
		return nil, err
	}
	copied := *f.session
	return &copied, nil
}

type fakeFeed struct {
	mu             sync.Mutex
	sessionCb      func(store.ChangeEvent)
	participantsCb func(store.ChangeEvent)
}

func (f *fakeFeed) SubscribeSession(gameID string, cb func(store.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCb = cb
	return func() {}, nil
}

func (f *fakeFeed) SubscribeParticipants(gameID string, cb func(store.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participantsCb = cb
	return func() {}, nil
}

func (f *fakeFeed) fireSession(t *testing.T, event string, doc interface{}) {
	t.Helper()
	f.mu.Lock()
	cb := f.sessionCb
	f.mu.Unlock()
	require.NotNil(t, cb)
	cb(changeEvent(t, event, doc))
}

func (f *fakeFeed) fireParticipants(t *testing.T, event string, doc interface{}) {
	t.Helper()
	f.mu.Lock()
	cb := f.participantsCb
	f.mu.Unlock()
	require.NotNil(t, cb)
	cb(changeEvent(t, event, doc))
}

func changeEvent(t *testing.T, event string, doc interface{}) store.ChangeEvent {
	t.Helper()
	ev := store.ChangeEvent{Event: event}
	if doc != nil {
		data, err := json.Marshal(doc)
		require.NoError(t, err)
		ev.Doc = data
	}
	return ev
}

func testGame(t *testing.T) (*fakeOps, *models.GameParticipant, *models.GameParticipant) {
	t.Helper()

	pool := makePool(2 * models.CardsPerPlayer)
	encoded, err := models.EncodeMediaItems(pool)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	host := &models.GameParticipant{
		ID:       primitive.NewObjectID(),
		GameID:   "g1",
		UserID:   "host",
		JoinedAt: base,
	}
	guest := &models.GameParticipant{
		ID:       primitive.NewObjectID(),
		GameID:   "g1",
		UserID:   "guest",
		JoinedAt: base.Add(time.Second),
	}

	ops := &fakeOps{
		session: &models.GameSession{
			ID:           primitive.NewObjectID(),
			HostID:       "host",
			Status:       models.StatusInProgress,
			RoundCurrent: 1,
			RoundTotal:   4,
			MoviesPool:   encoded,
		},
		participants: []*models.GameParticipant{host, guest},
	}
	return ops, host, guest
}

func startEngine(t *testing.T, ops *fakeOps, feed *fakeFeed, userID string) *Engine {
	t.Helper()
	e := New(ops, feed, "g1", userID)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	return e
}

func TestEngineStartDealsRoundOneSlice(t *testing.T) {
	ops, _, _ := testGame(t)
	feed := &fakeFeed{}

	var snaps []Snapshot
	e := New(ops, feed, "g1", "guest")
	e.OnChange = func(s Snapshot) { snaps = append(snaps, s) }
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	require.NotEmpty(t, snaps)
	snap := snaps[len(snaps)-1]
	require.Equal(t, models.StatusInProgress, snap.Status)
	require.Equal(t, 1, snap.Round)
	require.Equal(t, 5, snap.Quota)
	require.Equal(t, models.CardsPerPlayer, snap.CardsLeft)
	require.NotNil(t, snap.Card)
	// guest joined second, so their slice starts after the host's
	require.Equal(t, "m11", snap.Card.Title)
}

func TestEngineSwipeEnforcesQuota(t *testing.T) {
	ops, _, _ := testGame(t)
	feed := &fakeFeed{}
	e := startEngine(t, ops, feed, "host")

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Swipe(ctx, true))
	}

	err := e.Swipe(ctx, true)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.Equal(t, 5, quotaErr.Limit)

	// passes still go through after the quota is spent
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Swipe(ctx, false))
	}

	ops.mu.Lock()
	defer ops.mu.Unlock()
	require.Len(t, ops.submitted, 1)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, ops.submitted[0])
}

func TestEngineEndOfViewSubmitsAndWaits(t *testing.T) {
	ops, _, _ := testGame(t)
	feed := &fakeFeed{}

	var last Snapshot
	e := New(ops, feed, "g1", "guest")
	e.OnChange = func(s Snapshot) { last = s }
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	ctx := context.Background()
	for i := 0; i < models.CardsPerPlayer; i++ {
		require.NoError(t, e.Swipe(ctx, false))
	}

	require.True(t, last.Waiting)
	require.ErrorIs(t, e.Swipe(ctx, true), ErrNoCard)

	ops.mu.Lock()
	defer ops.mu.Unlock()
	require.Len(t, ops.submitted, 1)
	require.Empty(t, ops.submitted[0])
}

func TestEngineRoundAdvanceResetsView(t *testing.T) {
	ops, _, _ := testGame(t)
	feed := &fakeFeed{}

	var last Snapshot
	e := New(ops, feed, "g1", "guest")
	e.OnChange = func(s Snapshot) { last = s }
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	ctx := context.Background()
	for i := 0; i < models.CardsPerPlayer; i++ {
		require.NoError(t, e.Swipe(ctx, false))
	}
	require.True(t, last.Waiting)

	survivors := makePool(6)
	encoded, err := models.EncodeMediaItems(survivors)
	require.NoError(t, err)

	next := *ops.session
	next.RoundCurrent = 2
	next.MoviesPool = encoded
	feed.fireSession(t, store.EventUpdate, &next)

	require.False(t, last.Waiting)
	require.Equal(t, 2, last.Round)
	require.Equal(t, 4, last.Quota)
	// later rounds share the whole surviving pool
	require.Equal(t, 6, last.CardsLeft)
	require.Equal(t, "m1", last.Card.Title)
}

func TestEngineHostAdvancesWhenAllReady(t *testing.T) {
	ops, host, guest := testGame(t)
	feed := &fakeFeed{}
	startEngine(t, ops, feed, "host")

	readyGuest := *guest
	readyGuest.RoundReady = true
	feed.fireParticipants(t, store.EventUpdate, &readyGuest)

	ops.mu.Lock()
	require.Equal(t, 0, ops.advances, "must wait for every participant")
	ops.mu.Unlock()

	readyHost := *host
	readyHost.RoundReady = true
	feed.fireParticipants(t, store.EventUpdate, &readyHost)

	ops.mu.Lock()
	defer ops.mu.Unlock()
	require.Equal(t, 1, ops.advances)
}

func TestEngineGuestNeverAdvances(t *testing.T) {
	ops, host, guest := testGame(t)
	feed := &fakeFeed{}
	startEngine(t, ops, feed, "guest")

	for _, p := range []*models.GameParticipant{host, guest} {
		ready := *p
		ready.RoundReady = true
		feed.fireParticipants(t, store.EventUpdate, &ready)
	}

	ops.mu.Lock()
	defer ops.mu.Unlock()
	require.Equal(t, 0, ops.advances)
}

func TestEngineSessionDeleteEnds(t *testing.T) {
	ops, _, _ := testGame(t)
	feed := &fakeFeed{}

	var last Snapshot
	e := New(ops, feed, "g1", "guest")
	e.OnChange = func(s Snapshot) { last = s }
	require.NoError(t, e.Start(context.Background()))

	feed.fireSession(t, store.EventDelete, nil)

	require.True(t, last.Ended)
	require.ErrorIs(t, e.Swipe(context.Background(), false), ErrNoCard)
}

func TestEngineFinishedExposesResults(t *testing.T) {
	ops, _, _ := testGame(t)
	feed := &fakeFeed{}
	e := startEngine(t, ops, feed, "guest")

	_, ok := e.Results()
	require.False(t, ok, "no results while in progress")

	winners := makePool(2)
	encoded, err := models.EncodeMediaItems(winners)
	require.NoError(t, err)

	finished := *ops.session
	finished.Status = models.StatusFinished
	finished.MoviesPool = encoded
	feed.fireSession(t, store.EventUpdate, &finished)

	results, ok := e.Results()
	require.True(t, ok)
	require.Len(t, results, 2)

	require.True(t, e.MarkSaved())
	require.False(t, e.MarkSaved(), "second save must be refused")
}

func TestEngineHostRetriesAfterFailedAdvance(t *testing.T) {
	ops, host, guest := testGame(t)
	ops.advanceErr = errors.New("store write timed out")
	feed := &fakeFeed{}
	startEngine(t, ops, feed, "host")

	for _, p := range []*models.GameParticipant{guest, host} {
		ready := *p
		ready.RoundReady = true
		feed.fireParticipants(t, store.EventUpdate, &ready)
	}

	ops.mu.Lock()
	require.Equal(t, 1, ops.advances)
	ops.mu.Unlock()

	// the first attempt failed, so the store still shows everyone ready;
	// the next notification must find the guard released and try again
	ready := *guest
	ready.RoundReady = true
	feed.fireParticipants(t, store.EventUpdate, &ready)

	ops.mu.Lock()
	defer ops.mu.Unlock()
	require.Equal(t, 2, ops.advances)
}

// eagerFeed delivers a session event from inside the subscription call,
// before Start has finished wiring the engine.
type eagerFeed struct {
	fakeFeed
	doc *models.GameSession
}

func (f *eagerFeed) SubscribeSession(gameID string, cb func(store.ChangeEvent)) (func(), error) {
	unsub, err := f.fakeFeed.SubscribeSession(gameID, cb)
	if err != nil {
		return nil, err
	}
	cb(changeEventRaw(f.doc))
	return unsub, nil
}

func changeEventRaw(doc interface{}) store.ChangeEvent {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return store.ChangeEvent{Event: store.EventUpdate, Doc: raw}
}

func TestEngineStartSurvivesImmediateSessionEvent(t *testing.T) {
	ops, host, guest := testGame(t)

	next := *ops.session
	next.RoundCurrent = 2
	feed := &eagerFeed{doc: &next}

	e := New(ops, feed, "g1", "host")
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)

	// host-ness comes from the session pinned during Start, so the host
	// still drives the advance after the early round bump
	for _, p := range []*models.GameParticipant{guest, host} {
		ready := *p
		ready.RoundReady = true
		feed.fireParticipants(t, store.EventUpdate, &ready)
	}

	ops.mu.Lock()
	defer ops.mu.Unlock()
	require.Equal(t, 1, ops.advances)
}

func TestEngineStopIsIdempotent(t *testing.T) {
	ops, _, _ := testGame(t)
	feed := &fakeFeed{}
	e := New(ops, feed, "g1", "guest")
	require.NoError(t, e.Start(context.Background()))

	// a session delete stops the engine through the event path; the
	// owning broker may still call Stop on its own afterwards
	feed.fireSession(t, store.EventDelete, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Stop()
		}()
	}
	wg.Wait()
}
