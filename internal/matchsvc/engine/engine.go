package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cinewave/match-services/internal/matchsvc/models"
	"github.com/cinewave/match-services/internal/matchsvc/store"
)

// Ops is the slice of the session service an engine drives.
type Ops interface {
	GetGame(ctx context.Context, gameID string) (*models.GameSession, error)
	GetParticipants(ctx context.Context, gameID string) ([]*models.GameParticipant, error)
	SubmitRoundVotes(ctx context.Context, gameID, userID string, likedIDs []int64) (*models.GameParticipant, error)
	NextRoundOrFinish(ctx context.Context, gameID, hostID string) (*models.GameSession, error)
}

// Feed delivers document change events for one session's scope.
type Feed interface {
	SubscribeSession(gameID string, cb func(store.ChangeEvent)) (func(), error)
	SubscribeParticipants(gameID string, cb func(store.ChangeEvent)) (func(), error)
}

// ErrNoCard is returned when a swipe arrives with nothing left to rate.
var ErrNoCard = errors.New("no card left to swipe")

const (
	defaultRecheck = 5 * time.Second
	opTimeout      = 30 * time.Second
)

// Snapshot is the engine's externally visible state, pushed to the device
// after every change.
type Snapshot struct {
	Status       string                    `json:"status"`
	Round        int                       `json:"round"`
	RoundTotal   int                       `json:"round_total"`
	Quota        int                       `json:"quota"`
	LikesUsed    int                       `json:"likes_used"`
	Card         *models.MediaItem         `json:"card,omitempty"`
	CardsLeft    int                       `json:"cards_left"`
	Waiting      bool                      `json:"waiting"`
	Ended        bool                      `json:"ended"` // session torn down by the host
	Results      []models.MediaItem        `json:"results,omitempty"`
	Participants []*models.GameParticipant `json:"participants"`
}

// Engine runs one player's side of the game. Every participant runs an
// identical engine; the host's additionally watches for round completion
// and drives the advance. All state here is local to this player: the
// shared truth lives in the store and arrives through the feed.
type Engine struct {
	ops     Ops
	feed    Feed
	gameID  string
	userID  string
	recheck time.Duration

	// OnChange, when set, receives a snapshot after every state change.
	OnChange func(Snapshot)

	mu           sync.Mutex
	session      *models.GameSession
	participants []*models.GameParticipant
	view         []models.MediaItem
	index        int
	likes        []int64
	waiting      bool
	prevRound    int
	processing   bool // host in-flight guard, advisory and in-memory only
	saved        bool
	unsubs       []func()

	stopOnce sync.Once
	done     chan struct{}
}

func New(ops Ops, feed Feed, gameID, userID string) *Engine {
	return &Engine{
		ops:     ops,
		feed:    feed,
		gameID:  gameID,
		userID:  userID,
		recheck: defaultRecheck,
		done:    make(chan struct{}),
	}
}

// Start loads the shared state, derives this player's view and subscribes
// to both feeds. The host also gets a periodic re-check so a dropped
// notification cannot leave the session stuck with everyone ready.
func (e *Engine) Start(ctx context.Context) error {
	session, err := e.ops.GetGame(ctx, e.gameID)
	if err != nil {
		return err
	}
	participants, err := e.ops.GetParticipants(ctx, e.gameID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.session = session
	e.participants = participants
	SortByJoin(e.participants)
	e.prevRound = session.RoundCurrent
	e.resetRoundLocked()
	// read host-ness while the session is pinned; feed events may
	// replace e.session the moment the subscriptions below are live
	host := e.isHost()
	e.mu.Unlock()

	unsubSession, err := e.feed.SubscribeSession(e.gameID, e.onSessionEvent)
	if err != nil {
		return err
	}
	e.addUnsub(unsubSession)

	unsubParticipants, err := e.feed.SubscribeParticipants(e.gameID, e.onParticipantsEvent)
	if err != nil {
		e.Stop()
		return err
	}
	e.addUnsub(unsubParticipants)

	if host {
		go e.hostLoop()
	}

	e.notify()
	return nil
}

// Stop unsubscribes both feeds. Safe to call from any goroutine, any
// number of times. In-flight operations are not cancelled; their results
// are simply ignored.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })

	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (e *Engine) addUnsub(unsub func()) {
	select {
	case <-e.done:
		// stopped between the two subscriptions; drop it right away
		unsub()
		return
	default:
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.unsubs = append(e.unsubs, unsub)
}

func (e *Engine) isHost() bool {
	return e.session != nil && e.session.HostID == e.userID
}

// Swipe consumes the current card. Likes are capped by the round quota and
// rejected locally when over it; passes always go through. Reaching the end
// of the view submits the round's likes and flips this player to waiting.
func (e *Engine) Swipe(ctx context.Context, like bool) error {
	e.mu.Lock()

	if e.session == nil || e.session.Status != models.StatusInProgress {
		e.mu.Unlock()
		return ErrNoCard
	}
	if e.waiting {
		e.mu.Unlock()
		return ErrNoCard
	}
	if e.index >= len(e.view) {
		// previous submission failed; retry it instead of swiping
		return e.submitLocked(ctx)
	}

	if like {
		quota := LikeQuota(e.session.RoundCurrent, e.session.RoundTotal)
		if len(e.likes) >= quota {
			e.mu.Unlock()
			e.notify()
			return &QuotaExceededError{Limit: quota}
		}
		e.likes = append(e.likes, e.view[e.index].ID)
	}
	e.index++

	if e.index >= len(e.view) {
		return e.submitLocked(ctx)
	}

	e.mu.Unlock()
	e.notify()
	return nil
}

// submitLocked writes the round votes. Called with the lock held; releases it.
func (e *Engine) submitLocked(ctx context.Context) error {
	likes := append([]int64(nil), e.likes...)
	e.mu.Unlock()

	_, err := e.ops.SubmitRoundVotes(ctx, e.gameID, e.userID, likes)

	e.mu.Lock()
	if err == nil {
		e.waiting = true
	}
	e.mu.Unlock()
	e.notify()

	return err
}

// Results returns the final pool once the session is finished.
func (e *Engine) Results() ([]models.MediaItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil || e.session.Status != models.StatusFinished {
		return nil, false
	}
	pool, err := e.session.Pool()
	if err != nil {
		log.Errorf("failed to decode final pool for game %s: %s", e.gameID, err)
		return nil, false
	}
	return pool, true
}

// MarkSaved flips the local already-saved flag; returns false when the
// results were saved before. The store has no dedup key, this flag is it.
func (e *Engine) MarkSaved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.saved {
		return false
	}
	e.saved = true
	return true
}

func (e *Engine) onSessionEvent(ev store.ChangeEvent) {
	if ev.Event == store.EventDelete {
		// host tore the game down
		e.mu.Lock()
		e.session = nil
		e.mu.Unlock()
		e.notifyEnded()
		e.Stop()
		return
	}

	session := &models.GameSession{}
	if err := json.Unmarshal(ev.Doc, session); err != nil {
		log.Errorf("invalid session event for game %s: %s", e.gameID, err)
		return
	}

	e.mu.Lock()
	e.session = session

	if session.RoundCurrent > e.prevRound {
		e.prevRound = session.RoundCurrent
		e.resetRoundLocked()
	}
	if session.Status == models.StatusFinished {
		e.waiting = false
	}
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) onParticipantsEvent(ev store.ChangeEvent) {
	e.mu.Lock()
	switch ev.Event {
	case store.EventDelete:
		kept := e.participants[:0]
		for _, p := range e.participants {
			if p.ID.Hex() != ev.ID {
				kept = append(kept, p)
			}
		}
		e.participants = kept
	default:
		p := &models.GameParticipant{}
		if err := json.Unmarshal(ev.Doc, p); err != nil {
			e.mu.Unlock()
			log.Errorf("invalid participant event for game %s: %s", e.gameID, err)
			return
		}
		replaced := false
		for i, existing := range e.participants {
			if existing.ID == p.ID {
				e.participants[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			e.participants = append(e.participants, p)
			SortByJoin(e.participants)
			if e.session != nil && e.session.RoundCurrent <= 1 {
				// join order shifts round-1 slices
				e.resetViewLocked()
			}
		}
	}
	host := e.isHost()
	e.mu.Unlock()
	e.notify()

	if host {
		e.maybeAdvance()
	}
}

// hostLoop periodically re-evaluates the completion condition. Participant
// change notifications can arrive in bursts or get lost to a reconnect;
// the ticker keeps an all-ready session from waiting forever.
func (e *Engine) hostLoop() {
	ticker := time.NewTicker(e.recheck)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.maybeAdvance()
		}
	}
}

// maybeAdvance runs the host-only completion watch: all participants
// round-ready, game still in progress, no advance already in flight. The
// guard is released only after the round-advance write returns, success or
// not, so a failed write leaves everyone ready and a later event retries.
func (e *Engine) maybeAdvance() {
	e.mu.Lock()
	if !e.isHost() || e.processing ||
		e.session.Status != models.StatusInProgress || len(e.participants) == 0 {
		e.mu.Unlock()
		return
	}
	for _, p := range e.participants {
		if !p.RoundReady {
			e.mu.Unlock()
			return
		}
	}
	e.processing = true
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := e.ops.NextRoundOrFinish(ctx, e.gameID, e.userID)

	e.mu.Lock()
	e.processing = false
	e.mu.Unlock()

	if err != nil {
		log.Errorf("round advance failed for game %s: %s", e.gameID, err)
	}
}

// resetRoundLocked clears this player's round-local state and re-derives
// the visible pool slice. Called with the lock held.
func (e *Engine) resetRoundLocked() {
	e.index = 0
	e.likes = nil
	e.waiting = false
	e.resetViewLocked()
}

func (e *Engine) resetViewLocked() {
	if e.session == nil || e.session.Status != models.StatusInProgress {
		e.view = nil
		return
	}
	pool, err := e.session.Pool()
	if err != nil {
		log.Errorf("failed to decode pool for game %s: %s", e.gameID, err)
		e.view = nil
		return
	}
	e.view = PoolView(pool, e.participants, e.userID, e.session.RoundCurrent)
}

func (e *Engine) notify() {
	if e.OnChange == nil {
		return
	}
	e.OnChange(e.snapshot())
}

func (e *Engine) notifyEnded() {
	if e.OnChange == nil {
		return
	}
	e.OnChange(Snapshot{Ended: true})
}

func (e *Engine) snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Waiting:      e.waiting,
		LikesUsed:    len(e.likes),
		Participants: append([]*models.GameParticipant(nil), e.participants...),
	}
	if e.session == nil {
		snap.Ended = true
		return snap
	}

	snap.Status = e.session.Status
	snap.Round = e.session.RoundCurrent
	snap.RoundTotal = e.session.RoundTotal

	switch e.session.Status {
	case models.StatusInProgress:
		snap.Quota = LikeQuota(e.session.RoundCurrent, e.session.RoundTotal)
		snap.CardsLeft = len(e.view) - e.index
		if e.index < len(e.view) {
			card := e.view[e.index]
			snap.Card = &card
		}
	case models.StatusFinished:
		if results, err := e.session.Pool(); err == nil {
			snap.Results = results
		}
	}

	return snap
}
