package db

import (
	"context"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectToDB() (*mongo.Database, context.CancelFunc, error) {
	mongoURI := os.Getenv("MONGODB_URI")

	uri, err := url.Parse(mongoURI)
	if err != nil {
		log.Fatalf("Error parsing MongoDB URI: %v", err)
		return nil, nil, err
	}

	dbName := strings.TrimPrefix(uri.Path, "/")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Error connecting to MongoDB: %v", err)
		return nil, nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("Error pinging MongoDB: %v", err)
		return nil, nil, err
	}

	db := client.Database(dbName)

	return db, cancel, nil
}

// EnsureGameIndexes creates the lookup indexes the match engine relies on:
// sessions are found by their join code and participants are listed per game.
func EnsureGameIndexes(db *mongo.Database) {
	sessions := db.Collection("game_sessions")
	_, err := sessions.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.M{"game_code": 1},
	})
	if err != nil {
		log.Fatal(err)
	}

	participants := db.Collection("game_participants")
	_, err = participants.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.M{"game_id": 1}},
		{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "user_id", Value: 1}}},
	})
	if err != nil {
		log.Fatal(err)
	}
}
