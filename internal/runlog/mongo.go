package runlog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Inserter is satisfied by *mongo.Collection.
type Inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoRecorder writes one document per run. The entry ID is the _id.
type MongoRecorder struct {
	collection   Inserter
	writeTimeout time.Duration
}

// NewMongoRecorder wraps a collection.
func NewMongoRecorder(collection Inserter) *MongoRecorder {
	return &MongoRecorder{collection: collection, writeTimeout: 10 * time.Second}
}

// ConnectMongo dials uri, checks the server is reachable and returns the
// client along with a recorder for database.collection. The caller owns the
// client and must Disconnect it.
func ConnectMongo(ctx context.Context, uri, database, collection string) (*mongo.Client, *MongoRecorder, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("pinging MongoDB: %w", err)
	}
	return client, NewMongoRecorder(client.Database(database).Collection(collection)), nil
}

// Record inserts one entry.
func (r *MongoRecorder) Record(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	// stored as the canonical string form
	doc := mongoEntry{Entry: e, ID: e.ID.String()}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to record run %s: %w", e.ID, err)
	}
	return nil
}

type mongoEntry struct {
	ID    string `bson:"_id"`
	Entry `bson:",inline"`
}
