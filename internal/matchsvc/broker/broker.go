package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/cinewave/match-services/internal/comm"
	"github.com/cinewave/match-services/internal/matchsvc/engine"
	"github.com/cinewave/match-services/internal/matchsvc/service"
	"github.com/cinewave/match-services/internal/matchsvc/store"
)

const responseTopic = "match.service"

// Broker consumes typed messages from the socket gateway and dispatches
// them to the session service. Each connected player gets an engine bound
// to their socket; engine snapshots stream back as game-state messages.
type Broker struct {
	Conn           *nats.Conn
	SessionService *service.SessionService
	HistoryService *service.HistoryService
	Events         *store.Publisher

	engines sync.Map // socketId -> *engine.Engine
}

func NewBroker(nc *nats.Conn, sessionService *service.SessionService,
	historyService *service.HistoryService, events *store.Publisher) *Broker {
	return &Broker{
		Conn:           nc,
		SessionService: sessionService,
		HistoryService: historyService,
		Events:         events,
	}
}

// handles message coming from socket
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	err := json.Unmarshal(msgNat.Data, &msg)
	if err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	switch msg.Type {
	case "create-game":
		var request struct {
			UserId         string `json:"user_id"`
			Nickname       string `json:"nickname"`
			AvatarUrl      string `json:"avatar_url"`
			ContentType    string `json:"content_type"`
			Providers      []int  `json:"providers"`
			RoundTotal     int    `json:"round_total"`
			GenresRequired int    `json:"genres_required"`
			MinYear        int    `json:"min_year"`
			MaxYear        int    `json:"max_year"`
			MinRating      string `json:"min_rating"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling create-game: %s", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		session, _, err := b.SessionService.CreateGame(ctx, service.CreateGameInput{
			HostID:         request.UserId,
			Nickname:       request.Nickname,
			AvatarURL:      request.AvatarUrl,
			ContentType:    request.ContentType,
			ProviderIDs:    request.Providers,
			RoundTotal:     request.RoundTotal,
			GenresRequired: request.GenresRequired,
			MinYear:        request.MinYear,
			MaxYear:        request.MaxYear,
			MinRating:      request.MinRating,
		})
		if err != nil {
			b.PublishError(err, "create-game-response", msg.SocketId)
			return
		}

		if err := b.attachEngine(ctx, msg.SocketId, session.ID.Hex(), request.UserId); err != nil {
			b.PublishError(err, "create-game-response", msg.SocketId)
			return
		}

		b.publishGameData(ctx, "create-game-response", session.ID.Hex(), msg.SocketId)

	case "join-game":
		var request struct {
			UserId    string `json:"user_id"`
			GameCode  string `json:"game_code"`
			Nickname  string `json:"nickname"`
			AvatarUrl string `json:"avatar_url"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling join-game: %s", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		session, _, err := b.SessionService.JoinGameByCode(ctx,
			request.GameCode, request.UserId, request.Nickname, request.AvatarUrl)
		if err != nil {
			b.PublishError(err, "join-game-response", msg.SocketId)
			return
		}

		if err := b.attachEngine(ctx, msg.SocketId, session.ID.Hex(), request.UserId); err != nil {
			b.PublishError(err, "join-game-response", msg.SocketId)
			return
		}

		b.publishGameData(ctx, "join-game-response", session.ID.Hex(), msg.SocketId)

	case "get-game":
		var request struct {
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling get-game: %s", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		b.publishGameData(ctx, "get-game-response", request.GameId, msg.SocketId)

	case "submit-genres":
		var request struct {
			UserId   string `json:"user_id"`
			GameId   string `json:"game_id"`
			GenreIds []int  `json:"genre_ids"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling submit-genres: %s", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := b.SessionService.SubmitGenres(ctx, request.GameId, request.UserId, request.GenreIds)
		if err != nil {
			b.PublishError(err, "submit-genres-response", msg.SocketId)
			return
		}
		b.PublishRes(comm.Res{Status: true}, "submit-genres-response", msg.SocketId)

	case "start-game":
		var request struct {
			UserId string `json:"user_id"`
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling start-game: %s", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if _, err := b.SessionService.StartGame(ctx, request.GameId, request.UserId); err != nil {
			b.PublishError(err, "start-game-response", msg.SocketId)
			return
		}
		b.PublishRes(comm.Res{Status: true}, "start-game-response", msg.SocketId)

	case "swipe":
		var request struct {
			Like bool `json:"like"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling swipe: %s", err)
			return
		}

		eng, ok := b.engine(msg.SocketId)
		if !ok {
			log.Warnf("swipe from socket %s without an engine", msg.SocketId)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := eng.Swipe(ctx, request.Like); err != nil {
			b.PublishError(err, "swipe-response", msg.SocketId)
		}

	case "leave-game":
		var request struct {
			UserId string `json:"user_id"`
			GameId string `json:"game_id"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling leave-game: %s", err)
			return
		}

		b.detachEngine(msg.SocketId)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := b.SessionService.LeaveGame(ctx, request.GameId, request.UserId); err != nil {
			b.PublishError(err, "leave-game-response", msg.SocketId)
			return
		}
		b.PublishRes(comm.Res{Status: true}, "leave-game-response", msg.SocketId)

	case "save-history":
		var request struct {
			UserId   string `json:"user_id"`
			GameMode string `json:"game_mode"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling save-history: %s", err)
			return
		}

		eng, ok := b.engine(msg.SocketId)
		if !ok {
			log.Warnf("save-history from socket %s without an engine", msg.SocketId)
			return
		}

		results, finished := eng.Results()
		if !finished {
			b.PublishError(errors.New("game has no results yet"), "save-history-response", msg.SocketId)
			return
		}
		if !eng.MarkSaved() {
			// already saved once; treat as success
			b.PublishRes(comm.Res{Status: true}, "save-history-response", msg.SocketId)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := b.HistoryService.SaveToHistory(ctx, request.UserId, results, request.GameMode); err != nil {
			b.PublishError(err, "save-history-response", msg.SocketId)
			return
		}
		b.PublishRes(comm.Res{Status: true}, "save-history-response", msg.SocketId)

	case "get-history":
		var request struct {
			UserId string `json:"user_id"`
			Limit  int    `json:"limit"`
		}
		if err := json.Unmarshal(msg.Data, &request); err != nil {
			log.Errorf("Error unmarshalling get-history: %s", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		entries, err := b.HistoryService.GetHistory(ctx, request.UserId, request.Limit)
		if err != nil {
			b.PublishError(err, "get-history-response", msg.SocketId)
			return
		}
		b.PublishHistory(comm.HistoryData{Entries: entries}, msg.SocketId)

	case "client-disconnect":
		b.detachEngine(msg.SocketId)

	default:
		log.Error("Unknown message")
		return
	}
}

// attachEngine starts a per-player engine bound to the socket; its
// snapshots stream back to the device as game-state messages.
func (b *Broker) attachEngine(ctx context.Context, socketId, gameID, userID string) error {
	b.detachEngine(socketId)

	eng := engine.New(b.SessionService, b.Events, gameID, userID)
	eng.OnChange = func(snap engine.Snapshot) {
		b.PublishGameState(snap, socketId)
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	b.engines.Store(socketId, eng)
	return nil
}

func (b *Broker) detachEngine(socketId string) {
	if val, ok := b.engines.LoadAndDelete(socketId); ok {
		val.(*engine.Engine).Stop()
	}
}

// Shutdown stops every running engine, for graceful service stop.
func (b *Broker) Shutdown() {
	b.engines.Range(func(key, val any) bool {
		b.engines.Delete(key)
		val.(*engine.Engine).Stop()
		return true
	})
}

func (b *Broker) engine(socketId string) (*engine.Engine, bool) {
	val, ok := b.engines.Load(socketId)
	if !ok {
		return nil, false
	}
	return val.(*engine.Engine), true
}

func (b *Broker) publishGameData(ctx context.Context, msgType, gameID, socketId string) {
	session, err := b.SessionService.GetGame(ctx, gameID)
	if err != nil {
		b.PublishError(err, msgType, socketId)
		return
	}
	participants, err := b.SessionService.GetParticipants(ctx, gameID)
	if err != nil {
		b.PublishError(err, msgType, socketId)
		return
	}

	b.PublishGameData(comm.GameData{Session: session, Participants: participants}, msgType, socketId)
}

func (b *Broker) PublishGameData(gdata comm.GameData, msgType, socketId string) {
	data, err := json.Marshal(gdata)
	if err != nil {
		log.Errorf("error [PublishGameData] unable to marshal game data %s", socketId)
		return
	}

	b.publishEnvelope(msgType, data, socketId)
}

func (b *Broker) PublishGameState(snap engine.Snapshot, socketId string) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Errorf("error [PublishGameState] unable to marshal snapshot %s", socketId)
		return
	}

	b.publishEnvelope("game-state", data, socketId)
}

func (b *Broker) PublishRes(r comm.Res, msgType, socketId string) {
	data, err := json.Marshal(r)
	if err != nil {
		log.Errorf("error [PublishRes] unable to marshal res %s", socketId)
		return
	}

	b.publishEnvelope(msgType, data, socketId)
}

func (b *Broker) PublishHistory(h comm.HistoryData, socketId string) {
	data, err := json.Marshal(h)
	if err != nil {
		log.Errorf("error [PublishHistory] unable to marshal history %s", socketId)
		return
	}

	b.publishEnvelope("get-history-response", data, socketId)
}

// PublishError maps the error taxonomy onto the wire and sends it to the
// single affected client.
func (b *Broker) PublishError(err error, msgType, socketId string) {
	payload := comm.ErrorData{Kind: errorKind(err), Message: err.Error()}

	data, mErr := json.Marshal(payload)
	if mErr != nil {
		log.Errorf("error [PublishError] unable to marshal error %s", socketId)
		return
	}

	b.publishEnvelope(msgType+"-error", data, socketId)
}

func errorKind(err error) string {
	var notFound *service.NotFoundError
	var conflict *service.StateConflictError
	var quota *engine.QuotaExceededError

	switch {
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &conflict):
		return "state_conflict"
	case errors.As(err, &quota):
		return "quota_exceeded"
	default:
		return "store_error"
	}
}

func (b *Broker) publishEnvelope(msgType string, data []byte, socketId string) {
	msg := &comm.WSMessage{
		Type:     msgType,
		Data:     data,
		SocketId: socketId,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Error %s", err)
		return
	}

	b.Publish(responseTopic, payload)
}

// consume message from socket service
func (b *Broker) SubscribSocketService(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
