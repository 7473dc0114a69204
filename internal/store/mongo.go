package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"mediagrab_bot/internal/domain"
)

// CollectionMedia holds saved media entries.
const CollectionMedia = "media"

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// createIndexes is overridable for tests.
var createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
	return coll.Indexes().CreateMany(ctx, models)
}

type mediaCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// mediaDocument adds the lowercase lookup key used for case-insensitive finds.
type mediaDocument struct {
	domain.SavedMedia `bson:",inline"`
	NameKey           string `bson:"name_key"`
}

// MongoIndex stores saved media entries in a MongoDB collection.
type MongoIndex struct {
	client mongoClient
	db     *mongo.Database
	media  mediaCollection
}

// OpenMongo connects, verifies connectivity with a ping and ensures indexes.
func OpenMongo(ctx context.Context, uri, database string) (*MongoIndex, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	idx := &MongoIndex{
		client: client,
		db:     db,
		media:  db.Collection(CollectionMedia),
	}

	if err := idx.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return idx, nil
}

// NewMongoIndex wraps an existing collection; used when the caller owns the client.
func NewMongoIndex(media mediaCollection) *MongoIndex {
	return &MongoIndex{media: media}
}

// Database returns the configured database handle.
func (m *MongoIndex) Database() *mongo.Database {
	return m.db
}

// EnsureIndexes creates the unique (user_id, name) index and the lookup index
// used by case-insensitive finds.
func (m *MongoIndex) EnsureIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("mongo index is not initialized")
	}

	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().
				SetName("user_name_unique").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "name_key", Value: 1}},
			Options: options.Index().SetName("user_name_key"),
		},
	}

	if _, err := createIndexes(ctx, m.db.Collection(CollectionMedia), models); err != nil {
		return fmt.Errorf("create media indexes: %w", err)
	}

	return nil
}

// Put upserts the entry keyed by user and name.
func (m *MongoIndex) Put(ctx context.Context, entry domain.SavedMedia) error {
	if err := m.ready(ctx); err != nil {
		return err
	}

	_, err := m.media.UpdateOne(ctx,
		bson.M{"user_id": entry.UserID, "name": entry.Name},
		bson.M{"$set": mediaDocument{SavedMedia: entry, NameKey: strings.ToLower(entry.Name)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert media: %w", err)
	}
	return nil
}

// Find looks up by exact name, then by lowercase key.
func (m *MongoIndex) Find(ctx context.Context, userID int64, name string) (domain.SavedMedia, error) {
	if err := m.ready(ctx); err != nil {
		return domain.SavedMedia{}, err
	}

	entry, err := m.findOne(ctx, bson.M{"user_id": userID, "name": name})
	if !errors.Is(err, ErrNotFound) {
		return entry, err
	}

	return m.findOne(ctx, bson.M{"user_id": userID, "name_key": strings.ToLower(name)})
}

// List returns every entry for the user.
func (m *MongoIndex) List(ctx context.Context, userID int64) ([]domain.SavedMedia, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}

	cursor, err := m.media.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "name_key", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find media: %w", err)
	}

	var docs []mediaDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}

	entries := make([]domain.SavedMedia, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.SavedMedia)
	}
	return entries, nil
}

// Remove deletes the entry with the exact name.
func (m *MongoIndex) Remove(ctx context.Context, userID int64, name string) error {
	if err := m.ready(ctx); err != nil {
		return err
	}

	result, err := m.media.DeleteOne(ctx, bson.M{"user_id": userID, "name": name})
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if result != nil && result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies connectivity against the primary.
func (m *MongoIndex) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("mongo client is not initialized")
	}
	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// Close disconnects the Mongo client.
func (m *MongoIndex) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}

func (m *MongoIndex) findOne(ctx context.Context, filter bson.M) (domain.SavedMedia, error) {
	result := m.media.FindOne(ctx, filter)
	if result == nil {
		return domain.SavedMedia{}, errors.New("find media returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.SavedMedia{}, ErrNotFound
		}
		return domain.SavedMedia{}, fmt.Errorf("find media: %w", err)
	}

	var doc mediaDocument
	if err := result.Decode(&doc); err != nil {
		return domain.SavedMedia{}, fmt.Errorf("decode media: %w", err)
	}
	return doc.SavedMedia, nil
}

func (m *MongoIndex) ready(ctx context.Context) error {
	if m == nil || m.media == nil {
		return errors.New("mongo index is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}
