package comm

import (
	"encoding/json"

	"github.com/cinewave/match-services/internal/matchsvc/models"
)

// WSMessage is the envelope relayed between the socket gateway and the
// match service over NATS, and between the gateway and web clients.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "create-game", "swipe"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

// GameData carries a session plus its participants to the clients.
type GameData struct {
	Session      *models.GameSession       `json:"session"`
	Participants []*models.GameParticipant `json:"participants"`
}

// ErrorData is the typed error surface pushed to a single client.
type ErrorData struct {
	Kind    string `json:"kind"` // not_found | state_conflict | quota_exceeded | store_error
	Message string `json:"message"`
}

type Res struct {
	Status bool `json:"status"`
}

type HistoryData struct {
	Entries []*models.HistoryEntry `json:"entries"`
}
