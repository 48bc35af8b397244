package store

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	EventCreate = "create"
	EventUpdate = "update"
	EventDelete = "delete"
)

// ChangeEvent is delivered to subscribers on every document write. Creates
// and updates carry the full updated document; deletes carry a null Doc.
type ChangeEvent struct {
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Doc   json.RawMessage `json:"doc"`
}

// Publisher fans document change events out over NATS, one subject per
// session scope, so every subscribed client sees the same ordered feed.
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

func sessionSubject(gameID string) string {
	return fmt.Sprintf("match.session.%s", gameID)
}

func participantsSubject(gameID string) string {
	return fmt.Sprintf("match.participants.%s", gameID)
}

func (p *Publisher) publish(subject, event, id string, doc interface{}) {
	ev := ChangeEvent{Event: event, ID: id}

	if doc != nil {
		data, err := json.Marshal(doc)
		if err != nil {
			log.Errorf("unable to marshal change doc for %s: %s", subject, err)
			return
		}
		ev.Doc = data
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("unable to marshal change event for %s: %s", subject, err)
		return
	}

	if err := p.nc.Publish(subject, payload); err != nil {
		log.Errorf("Error publishing to subject %s: %s", subject, err)
	}
}

// SubscribeSession delivers change events for one session document.
// The returned func unsubscribes.
func (p *Publisher) SubscribeSession(gameID string, cb func(ChangeEvent)) (func(), error) {
	return p.subscribe(sessionSubject(gameID), cb)
}

// SubscribeParticipants delivers change events for every participant
// document of one session.
func (p *Publisher) SubscribeParticipants(gameID string, cb func(ChangeEvent)) (func(), error) {
	return p.subscribe(participantsSubject(gameID), cb)
}

func (p *Publisher) subscribe(subject string, cb func(ChangeEvent)) (func(), error) {
	sub, err := p.nc.Subscribe(subject, func(m *nats.Msg) {
		var ev ChangeEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Errorf("invalid change event on %s: %s", subject, err)
			return
		}
		cb(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("unsubscribe %s: %s", subject, err)
		}
	}, nil
}
