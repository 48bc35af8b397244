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

const participantCollection = "game_participants"

type ParticipantStore struct {
	col    *mongo.Collection
	events *Publisher
}

func NewParticipantStore(db *mongo.Database, events *Publisher) *ParticipantStore {
	return &ParticipantStore{col: db.Collection(participantCollection), events: events}
}

// Create stamps ownership (the participant user plus the session host, so
// the host can tear the lobby down) and publishes the new document.
func (s *ParticipantStore) Create(ctx context.Context, p *models.GameParticipant, hostID string) (*models.GameParticipant, error) {
	now := time.Now().UTC()
	p.JoinedAt = now
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Owners = []string{p.UserID}
	if hostID != "" && hostID != p.UserID {
		p.Owners = append(p.Owners, hostID)
	}

	res, err := s.col.InsertOne(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	p.ID = res.InsertedID.(primitive.ObjectID)

	s.events.publish(participantsSubject(p.GameID), EventCreate, p.ID.Hex(), p)
	return p, nil
}

func (s *ParticipantStore) Get(ctx context.Context, id string) (*models.GameParticipant, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid participant id %q: %w", id, ErrNotFound)
	}

	p := &models.GameParticipant{}
	err = s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant %s: %w", id, err)
	}

	return p, nil
}

// ListByGame returns a session's participants ordered by join time. Every
// client derives round-1 ranks from this ordering, so it must be stable:
// ties on joined_at break on _id.
func (s *ParticipantStore) ListByGame(ctx context.Context, gameID string) ([]*models.GameParticipant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.col.Find(ctx, bson.M{"game_id": gameID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for game %s: %w", gameID, err)
	}
	defer cur.Close(ctx)

	var participants []*models.GameParticipant
	for cur.Next(ctx) {
		p := &models.GameParticipant{}
		if err := cur.Decode(p); err != nil {
			return nil, fmt.Errorf("failed to decode participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("participant cursor: %w", err)
	}

	return participants, nil
}

func (s *ParticipantStore) GetByGameAndUser(ctx context.Context, gameID, userID string) (*models.GameParticipant, error) {
	p := &models.GameParticipant{}
	err := s.col.FindOne(ctx, bson.M{"game_id": gameID, "user_id": userID}).Decode(p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get participant for game %s user %s: %w", gameID, userID, err)
	}

	return p, nil
}

func (s *ParticipantStore) Update(ctx context.Context, id, actorID string, set bson.M) (*models.GameParticipant, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ownerAllowed(current.Owners, actorID) {
		return nil, fmt.Errorf("participant %s: %w", id, ErrPermissionDenied)
	}

	set["updated_at"] = time.Now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	p := &models.GameParticipant{}
	err = s.col.FindOneAndUpdate(ctx, bson.M{"_id": current.ID}, bson.M{"$set": set}, opts).Decode(p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update participant %s: %w", id, err)
	}

	s.events.publish(participantsSubject(p.GameID), EventUpdate, id, p)
	return p, nil
}

func (s *ParticipantStore) Delete(ctx context.Context, id, actorID string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ownerAllowed(current.Owners, actorID) {
		return fmt.Errorf("participant %s: %w", id, ErrPermissionDenied)
	}

	if _, err := s.col.DeleteOne(ctx, bson.M{"_id": current.ID}); err != nil {
		return fmt.Errorf("failed to delete participant %s: %w", id, err)
	}

	s.events.publish(participantsSubject(current.GameID), EventDelete, id, nil)
	return nil
}
