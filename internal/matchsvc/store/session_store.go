package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cinewave/match-services/internal/matchsvc/models"
)

const sessionCollection = "game_sessions"

type SessionStore struct {
	col    *mongo.Collection
	events *Publisher
}

func NewSessionStore(db *mongo.Database, events *Publisher) *SessionStore {
	return &SessionStore{col: db.Collection(sessionCollection), events: events}
}

func (s *SessionStore) Create(ctx context.Context, session *models.GameSession) (*models.GameSession, error) {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Owners = []string{session.HostID}

	res, err := s.col.InsertOne(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.ID = res.InsertedID.(primitive.ObjectID)

	s.events.publish(sessionSubject(session.ID.Hex()), EventCreate, session.ID.Hex(), session)
	return session, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*models.GameSession, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", id, ErrNotFound)
	}

	session := &models.GameSession{}
	err = s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	return session, nil
}

// GetByCode finds the newest session carrying the given join code. Codes
// are only unique-enough; the newest one wins.
func (s *SessionStore) GetByCode(ctx context.Context, code string) (*models.GameSession, error) {
	opts := options.FindOne().SetSort(bson.M{"created_at": -1})

	session := &models.GameSession{}
	err := s.col.FindOne(ctx, bson.M{"game_code": code}, opts).Decode(session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session by code: %w", err)
	}

	return session, nil
}

// Update applies the given fields and returns the updated document. The
// acting identity must be listed among the document owners.
func (s *SessionStore) Update(ctx context.Context, id, actorID string, set bson.M) (*models.GameSession, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ownerAllowed(current.Owners, actorID) {
		return nil, fmt.Errorf("session %s: %w", id, ErrPermissionDenied)
	}

	set["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	session := &models.GameSession{}
	err = s.col.FindOneAndUpdate(ctx, bson.M{"_id": current.ID}, bson.M{"$set": set}, opts).Decode(session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update session %s: %w", id, err)
	}

	s.events.publish(sessionSubject(id), EventUpdate, id, session)
	return session, nil
}

func (s *SessionStore) Delete(ctx context.Context, id, actorID string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ownerAllowed(current.Owners, actorID) {
		return fmt.Errorf("session %s: %w", id, ErrPermissionDenied)
	}

	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": current.ID}); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}

	s.events.publish(sessionSubject(id), EventDelete, id, nil)
	return nil
}
