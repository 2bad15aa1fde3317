package storage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mongolog/ingest-server/internal/ingest"
)

// Mongo is the bulk loader backed by a MongoDB collection. It is constructed
// once in main and injected into the orchestrator; it owns the client
// lifecycle.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect establishes the client and verifies connectivity with a ping.
func Connect(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Printf("Connected to MongoDB (database %s, collection %s)", database, collection)
	return &Mongo{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// BulkInsert writes all records in one unordered InsertMany. Per-document
// rejections do not block the remaining documents: a BulkWriteException is
// absorbed into the returned counts. Anything else (connectivity loss,
// context timeout) is a hard failure.
func (m *Mongo) BulkInsert(ctx context.Context, records []ingest.Record) (*ingest.InsertResult, error) {
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = r
	}

	res, err := m.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 && bwe.WriteConcernError == nil {
			inserted := acceptedCount(len(docs), len(bwe.WriteErrors))
			log.Printf("Bulk insert: %d of %d documents accepted (%d rejected)",
				inserted, len(docs), len(bwe.WriteErrors))
			result := &ingest.InsertResult{InsertedCount: inserted}
			if res != nil {
				result.InsertedIDs = acceptedIDs(res.InsertedIDs, bwe.WriteErrors)
			}
			return result, nil
		}
		return nil, fmt.Errorf("insert many: %w", err)
	}

	return &ingest.InsertResult{
		InsertedCount: len(res.InsertedIDs),
		InsertedIDs:   res.InsertedIDs,
	}, nil
}

// acceptedCount derives how many documents an unordered bulk write accepted
// from the submitted total and the per-document rejection count.
func acceptedCount(submitted, rejected int) int {
	if rejected > submitted {
		return 0
	}
	return submitted - rejected
}

// acceptedIDs drops the ids of rejected documents. The driver generates an
// _id for every attempted document, so the raw InsertedIDs slice also covers
// documents a write error applies to.
func acceptedIDs(ids []interface{}, writeErrors []mongo.BulkWriteError) []interface{} {
	rejected := make(map[int]struct{}, len(writeErrors))
	for _, we := range writeErrors {
		rejected[we.Index] = struct{}{}
	}

	kept := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		if _, ok := rejected[i]; ok {
			continue
		}
		kept = append(kept, id)
	}
	return kept
}

// Ping verifies storage connectivity, used by the health endpoint.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
