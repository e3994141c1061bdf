package trending

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

// CountersCollection holds one document per normalized search term.
const CountersCollection = "search_counters"

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
	now    func() time.Time
}

// ConnectMongo connects with tracing enabled and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string, opts ...*options.ClientOptions) (*mongo.Client, error) {
	clientOpts := options.Client().ApplyURI(uri).SetMonitor(otelmongo.NewMonitor())
	client, err := mongo.Connect(ctx, append([]*options.ClientOptions{clientOpts}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// NewMongoStore uses the counters collection of dbName. Close disconnects client.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{
		client: client,
		col:    client.Database(dbName).Collection(CountersCollection),
		now:    time.Now,
	}
}

// EnsureIndexes creates the unique term index and the ranking index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "search_term", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "count", Value: -1}, {Key: "updated_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create counter indexes: %w", err)
	}
	return nil
}

// Increment upserts the counter document for term.
func (s *MongoStore) Increment(ctx context.Context, term string, movie Representative) error {
	key, err := normalizeTerm(term)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	_, err = s.col.UpdateOne(
		ctx,
		bson.M{"search_term": key},
		bson.M{
			"$inc": bson.M{"count": 1},
			"$set": bson.M{"updated_at": now},
			"$setOnInsert": bson.M{
				"movie_id":   movie.MovieID,
				"title":      movie.Title,
				"poster_url": movie.PosterURL,
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to increment counter %q: %w", key, err)
	}
	return nil
}

// Top returns the highest counters.
func (s *MongoStore) Top(ctx context.Context, limit int) ([]Counter, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "count", Value: -1}, {Key: "updated_at", Value: -1}, {Key: "search_term", Value: 1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cursor, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query top counters: %w", err)
	}
	defer cursor.Close(ctx)

	counters := []Counter{}
	if err := cursor.All(ctx, &counters); err != nil {
		return nil, fmt.Errorf("failed to decode counters: %w", err)
	}
	return counters, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
