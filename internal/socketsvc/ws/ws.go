package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/cinewave/match-services/internal/comm"
	"github.com/cinewave/match-services/internal/socketsvc/broker"
)

// allowed message types relayed from devices to the match service
var clientMessageTypes = map[string]bool{
	"create-game":   true,
	"join-game":     true,
	"get-game":      true,
	"submit-genres": true,
	"start-game":    true,
	"swipe":         true,
	"leave-game":    true,
	"save-history":  true,
	"get-history":   true,
}

type Ws struct {
	connMap sync.Map // to keep track of socket connection with socketId
	Broker  *broker.Broker
}

func NewWs() *Ws {
	return &Ws{}
}

// SocketMessage relays a device message to the match service with the
// socket id stamped, so the response finds its way back.
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	if !clientMessageTypes[message.Type] {
		log.Warnf("unknown event received: %s", message.Type)
		return
	}

	message.SocketId = socketId

	bytes, err := json.Marshal(message)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	topic := "socket.service"
	if err := s.Broker.Publish(topic, bytes); err != nil {
		log.Errorf("Failed to publish to NATS topic %s: %v", topic, err)
		return
	}

	log.Debugf("relayed %s message for socket %s", message.Type, socketId)
}

func (s *Ws) StoreConnection(socketId string, conn *websocket.Conn) {
	s.connMap.Store(socketId, conn)
}

func (s *Ws) GetConnection(socketId string) (*websocket.Conn, bool) {
	conn, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return conn.(*websocket.Conn), true
}

// HandleDisconnect drops the connection and tells the match service so it
// can detach the player's engine.
func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)

	msg := &comm.WSMessage{
		Type:     "client-disconnect",
		SocketId: socketId,
	}
	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal disconnect message: %v", err)
		return
	}

	if err := s.Broker.Publish("socket.service", bytes); err != nil {
		log.Errorf("Failed to publish disconnect for socket %s: %v", socketId, err)
	}
}
