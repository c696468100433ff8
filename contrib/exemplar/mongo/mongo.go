// Package mongo stores exemplars in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/lexdraft/similarity"
)

// Config holds MongoDB connection configuration
type Config struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// DefaultConfig returns default MongoDB configuration
func DefaultConfig() *Config {
	return &Config{
		URI:        "mongodb://localhost:27017",
		Database:   "lexdraft",
		Collection: "training_exemplars",
	}
}

// Store implements similarity.Store on a MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// New connects, pings and ensures the listing index.
func New(ctx context.Context, config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &Store{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if err := s.createIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Save implements similarity.Store.
func (s *Store) Save(ctx context.Context, ex similarity.Exemplar) error {
	if ex.AgentID == "" {
		return fmt.Errorf("exemplar agent id cannot be empty")
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": ex.ID}, ex, opts); err != nil {
		return fmt.Errorf("failed to save exemplar: %w", err)
	}
	return nil
}

// List implements similarity.Store.
func (s *Store) List(ctx context.Context, agentID string, limit int) ([]similarity.Exemplar, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{"agent_id": agentID, "processed": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list exemplars: %w", err)
	}
	defer cursor.Close(ctx)

	var out []similarity.Exemplar
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode exemplars: %w", err)
	}
	return out, nil
}

// Clear removes every exemplar of agentID.
func (s *Store) Clear(ctx context.Context, agentID string) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{"agent_id": agentID}); err != nil {
		return fmt.Errorf("failed to clear exemplars: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ similarity.Store = (*Store)(nil)
