package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cinewave/match-services/internal/matchsvc/models"
	"github.com/cinewave/match-services/internal/matchsvc/store"
	"github.com/cinewave/match-services/internal/shuffle"
)

// SessionStore is the consumed slice of the session document store.
type SessionStore interface {
	Create(ctx context.Context, session *models.GameSession) (*models.GameSession, error)
	Get(ctx context.Context, id string) (*models.GameSession, error)
	GetByCode(ctx context.Context, code string) (*models.GameSession, error)
	Update(ctx context.Context, id, actorID string, set bson.M) (*models.GameSession, error)
	Delete(ctx context.Context, id, actorID string) error
}

// ParticipantStore is the consumed slice of the participant document store.
type ParticipantStore interface {
	Create(ctx context.Context, p *models.GameParticipant, hostID string) (*models.GameParticipant, error)
	ListByGame(ctx context.Context, gameID string) ([]*models.GameParticipant, error)
	GetByGameAndUser(ctx context.Context, gameID, userID string) (*models.GameParticipant, error)
	Update(ctx context.Context, id, actorID string, set bson.M) (*models.GameParticipant, error)
	Delete(ctx context.Context, id, actorID string) error
}

const (
	defaultRoundTotal     = 4
	defaultGenresRequired = 3
)

// SessionService owns the session lifecycle: lobby, genre collection,
// rounds, finish. All round computation happens here; the engine only
// decides when to call.
type SessionService struct {
	sessions     SessionStore
	participants ParticipantStore
	pool         *PoolService

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSessionService(sessions SessionStore, participants ParticipantStore, pool *PoolService, rnd *rand.Rand) *SessionService {
	return &SessionService{
		sessions:     sessions,
		participants: participants,
		pool:         pool,
		rnd:          rnd,
	}
}

type CreateGameInput struct {
	HostID         string
	Nickname       string
	AvatarURL      string
	ContentType    string
	ProviderIDs    []int
	RoundTotal     int
	GenresRequired int
	MinYear        int
	MaxYear        int
	MinRating      string
}

// CreateGame opens a lobby and joins the host as its first participant.
func (s *SessionService) CreateGame(ctx context.Context, in CreateGameInput) (*models.GameSession, *models.GameParticipant, error) {
	if in.HostID == "" {
		return nil, nil, stateConflict("a game needs a host identity")
	}
	if in.ContentType != models.ContentMovie && in.ContentType != models.ContentTV {
		return nil, nil, stateConflict("unknown content type %q", in.ContentType)
	}
	if in.RoundTotal <= 0 {
		in.RoundTotal = defaultRoundTotal
	}
	if in.GenresRequired <= 0 {
		in.GenresRequired = defaultGenresRequired
	}
	if in.MinRating != "" {
		if _, err := decimal.NewFromString(in.MinRating); err != nil {
			return nil, nil, stateConflict("invalid minimum rating %q", in.MinRating)
		}
	}

	providers, err := models.EncodeIntSet(in.ProviderIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode providers: %w", err)
	}

	session := &models.GameSession{
		HostID:         in.HostID,
		Status:         models.StatusLobby,
		GameCode:       s.newGameCode(),
		GenresRequired: in.GenresRequired,
		RoundTotal:     in.RoundTotal,
		ContentType:    in.ContentType,
		Providers:      providers,
		MinYear:        in.MinYear,
		MaxYear:        in.MaxYear,
		MinRating:      in.MinRating,
	}

	session, err = s.sessions.Create(ctx, session)
	if err != nil {
		return nil, nil, err
	}

	host, err := s.participants.Create(ctx, &models.GameParticipant{
		GameID:    session.ID.Hex(),
		UserID:    in.HostID,
		Nickname:  in.Nickname,
		AvatarURL: in.AvatarURL,
	}, in.HostID)
	if err != nil {
		return nil, nil, err
	}

	return session, host, nil
}

// JoinGameByCode adds the user to an open lobby. Joining twice is a no-op;
// joining a started or finished game is rejected.
func (s *SessionService) JoinGameByCode(ctx context.Context, code, userID, nickname, avatarURL string) (*models.GameSession, *models.GameParticipant, error) {
	session, err := s.sessions.GetByCode(ctx, code)
	if err != nil {
		return nil, nil, wrapNotFound(err, "game", code)
	}

	if session.Status != models.StatusLobby {
		return nil, nil, stateConflict("game %s already %s, no late joins", code, session.Status)
	}

	gameID := session.ID.Hex()

	existing, err := s.participants.GetByGameAndUser(ctx, gameID, userID)
	if err == nil {
		return session, existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}

	p, err := s.participants.Create(ctx, &models.GameParticipant{
		GameID:    gameID,
		UserID:    userID,
		Nickname:  nickname,
		AvatarURL: avatarURL,
	}, session.HostID)
	if err != nil {
		return nil, nil, err
	}
	return session, p, nil
}

func (s *SessionService) GetGame(ctx context.Context, gameID string) (*models.GameSession, error) {
	session, err := s.sessions.Get(ctx, gameID)
	if err != nil {
		return nil, wrapNotFound(err, "game", gameID)
	}
	return session, nil
}

func (s *SessionService) GetParticipants(ctx context.Context, gameID string) ([]*models.GameParticipant, error) {
	return s.participants.ListByGame(ctx, gameID)
}

// SubmitGenres records the participant's genre picks and marks them ready
// for the lobby phase. Requires the session's full pick count.
func (s *SessionService) SubmitGenres(ctx context.Context, gameID, userID string, genreIDs []int) (*models.GameParticipant, error) {
	session, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusLobby {
		return nil, stateConflict("genres can only be picked in the lobby")
	}
	if len(genreIDs) < session.GenresRequired {
		return nil, stateConflict("pick at least %d genres", session.GenresRequired)
	}

	p, err := s.participants.GetByGameAndUser(ctx, gameID, userID)
	if err != nil {
		return nil, wrapNotFound(err, "participant", userID)
	}

	selected, err := models.EncodeIntSet(genreIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode genres: %w", err)
	}

	return s.participants.Update(ctx, p.ID.Hex(), userID, bson.M{
		"selected_genres": selected,
		"genres_ready":    true,
	})
}

// StartGame is host-only. It merges everyone's genres, builds the pool and
// moves the session into round 1. Fails loudly when the catalog cannot
// supply cardsPerPlayer titles per participant.
func (s *SessionService) StartGame(ctx context.Context, gameID, hostID string) (*models.GameSession, error) {
	session, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if session.HostID != hostID {
		return nil, stateConflict("only the host can start the game")
	}
	if session.Status != models.StatusLobby {
		return nil, stateConflict("game already %s", session.Status)
	}

	participants, err := s.participants.ListByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, stateConflict("no participants in game")
	}
	for _, p := range participants {
		if !p.GenresReady {
			return nil, stateConflict("%s has not picked genres yet", p.Nickname)
		}
	}

	merged, err := mergeGenres(participants)
	if err != nil {
		return nil, err
	}

	providerIDs, err := models.DecodeIntSet(session.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to decode providers: %w", err)
	}

	filter := PoolFilter{
		ContentType: session.ContentType,
		GenreIDs:    merged,
		ProviderIDs: providerIDs,
		MinYear:     session.MinYear,
		MaxYear:     session.MaxYear,
	}
	if session.MinRating != "" {
		rating, err := decimal.NewFromString(session.MinRating)
		if err != nil {
			return nil, fmt.Errorf("invalid stored rating filter: %w", err)
		}
		filter.MinRating = rating
	}

	pool, err := s.pool.BuildPool(ctx, filter)
	if err != nil {
		return nil, err
	}

	required := len(participants) * models.CardsPerPlayer
	if len(pool) < required {
		return nil, stateConflict("not enough titles for %d players, broaden the filters", len(participants))
	}
	pool = pool[:required]

	encodedPool, err := models.EncodeMediaItems(pool)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pool: %w", err)
	}
	encodedGenres, err := models.EncodeIntSet(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged genres: %w", err)
	}

	// readiness now means "voted this round"
	for _, p := range participants {
		if _, err := s.participants.Update(ctx, p.ID.Hex(), hostID, bson.M{"round_ready": false}); err != nil {
			return nil, err
		}
	}

	return s.sessions.Update(ctx, gameID, hostID, bson.M{
		"status":        models.StatusInProgress,
		"movies_pool":   encodedPool,
		"merged_genres": encodedGenres,
		"round_current": 1,
	})
}

// SubmitRoundVotes stores the caller's liked ids for the current round and
// marks them round-ready in one update. Past rounds are never overwritten;
// resubmitting the current round keeps the first submission.
func (s *SessionService) SubmitRoundVotes(ctx context.Context, gameID, userID string, likedIDs []int64) (*models.GameParticipant, error) {
	session, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.StatusInProgress {
		return nil, stateConflict("votes are only accepted while the game is in progress")
	}

	p, err := s.participants.GetByGameAndUser(ctx, gameID, userID)
	if err != nil {
		return nil, wrapNotFound(err, "participant", userID)
	}

	votes, err := p.VoteMap()
	if err != nil {
		return nil, fmt.Errorf("failed to decode votes: %w", err)
	}

	label := models.RoundLabel(session.RoundCurrent)
	if _, exists := votes[label]; !exists {
		if likedIDs == nil {
			likedIDs = []int64{}
		}
		votes[label] = likedIDs
	}

	encoded, err := models.EncodeVoteMap(votes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode votes: %w", err)
	}

	return s.participants.Update(ctx, p.ID.Hex(), userID, bson.M{
		"votes":       encoded,
		"round_ready": true,
	})
}

// NextRoundOrFinish is host-only and only valid once every participant is
// round-ready. It keeps every title anyone liked this round (falling back
// to the whole pool when nobody liked anything), then either finishes the
// session or starts the next round with a reshuffled pool.
func (s *SessionService) NextRoundOrFinish(ctx context.Context, gameID, hostID string) (*models.GameSession, error) {
	session, err := s.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if session.HostID != hostID {
		return nil, stateConflict("only the host can advance rounds")
	}
	if session.Status != models.StatusInProgress {
		return nil, stateConflict("game is %s, nothing to advance", session.Status)
	}

	participants, err := s.participants.ListByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if !p.RoundReady {
			return nil, stateConflict("%s has not voted yet", p.Nickname)
		}
	}

	pool, err := session.Pool()
	if err != nil {
		return nil, fmt.Errorf("failed to decode pool: %w", err)
	}

	liked, err := likedUnion(participants, session.RoundCurrent)
	if err != nil {
		return nil, err
	}

	survivors := make([]models.MediaItem, 0, len(pool))
	for _, item := range pool {
		if liked[item.ID] {
			survivors = append(survivors, item)
		}
	}
	if len(survivors) == 0 {
		// nobody liked anything: carry the whole pool forward rather
		// than dead-ending the game
		survivors = pool
	}

	if session.RoundCurrent >= session.RoundTotal {
		encoded, err := models.EncodeMediaItems(survivors)
		if err != nil {
			return nil, fmt.Errorf("failed to encode results: %w", err)
		}
		return s.sessions.Update(ctx, gameID, hostID, bson.M{
			"status":      models.StatusFinished,
			"movies_pool": encoded,
		})
	}

	s.mu.Lock()
	shuffle.Shuffle(s.rnd, survivors)
	s.mu.Unlock()

	encoded, err := models.EncodeMediaItems(survivors)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pool: %w", err)
	}

	// session first: a failed advance must leave every participant still
	// marked ready so the host watch can re-fire on the next notification
	updated, err := s.sessions.Update(ctx, gameID, hostID, bson.M{
		"movies_pool":   encoded,
		"round_current": session.RoundCurrent + 1,
	})
	if err != nil {
		return nil, err
	}

	// clients reset locally on the round_current increase, so the brief
	// "new round but still ready" window never partitions the watch
	for _, p := range participants {
		if _, err := s.participants.Update(ctx, p.ID.Hex(), hostID, bson.M{"round_ready": false}); err != nil {
			return nil, err
		}
	}

	return updated, nil
}

// LeaveGame removes the caller from the session. A leaving host tears the
// whole game down: every participant record, then the session itself.
func (s *SessionService) LeaveGame(ctx context.Context, gameID, userID string) error {
	session, err := s.GetGame(ctx, gameID)
	if err != nil {
		return err
	}

	if session.HostID == userID {
		participants, err := s.participants.ListByGame(ctx, gameID)
		if err != nil {
			return err
		}
		for _, p := range participants {
			if err := s.participants.Delete(ctx, p.ID.Hex(), userID); err != nil {
				return err
			}
		}
		return s.sessions.Delete(ctx, gameID, userID)
	}

	p, err := s.participants.GetByGameAndUser(ctx, gameID, userID)
	if err != nil {
		return wrapNotFound(err, "participant", userID)
	}
	return s.participants.Delete(ctx, p.ID.Hex(), userID)
}

func (s *SessionService) newGameCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%06d", s.rnd.Intn(1000000))
}

// mergeGenres unions every participant's picks, keeping first-seen order.
func mergeGenres(participants []*models.GameParticipant) ([]int, error) {
	seen := map[int]bool{}
	var merged []int
	for _, p := range participants {
		ids, err := models.DecodeIntSet(p.SelectedGenres)
		if err != nil {
			return nil, fmt.Errorf("failed to decode genres for %s: %w", p.UserID, err)
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
	}
	return merged, nil
}

// likedUnion collects every media id any participant liked in the given
// round. Union, not intersection: each player's likes survive on their own.
func likedUnion(participants []*models.GameParticipant, round int) (map[int64]bool, error) {
	label := models.RoundLabel(round)
	liked := map[int64]bool{}
	for _, p := range participants {
		votes, err := p.VoteMap()
		if err != nil {
			return nil, fmt.Errorf("failed to decode votes for %s: %w", p.UserID, err)
		}
		for _, id := range votes[label] {
			liked[id] = true
		}
	}
	return liked, nil
}
