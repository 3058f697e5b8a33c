// Package mongo is the cold-storage ArchiveSink backed by MongoDB. Each
// archive is one document keyed by tenant and execute-log id.
package mongo

import (
	"context"
	"time"

	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warriorguo/flowexec/types"
)

var (
	_ types.ArchiveSink = &ArchiveSink{}
)

type archiveDoc struct {
	ID        string    `bson:"_id"`
	Tenant    string    `bson:"tenant"`
	Key       string    `bson:"key"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type ArchiveSink struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

func NewArchiveSink(client *mongo.Client, dbName, collName string) *ArchiveSink {
	if dbName == "" {
		dbName = "flowexec"
	}
	if collName == "" {
		collName = "archives"
	}
	return &ArchiveSink{
		client: client,
		coll:   client.Database(dbName).Collection(collName),
	}
}

// Connect dials uri and pings it; Close disconnects the client.
func Connect(ctx context.Context, uri, dbName, collName string) (*ArchiveSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Annotatef(err, "mongo connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, errors.Annotatef(err, "mongo ping")
	}
	s := NewArchiveSink(client, dbName, collName)
	s.owned = true
	return s, nil
}

func docID(tenant, key string) string {
	return tenant + "/" + key
}

func (s *ArchiveSink) Put(ctx context.Context, tenant, key string, data []byte) error {
	doc := &archiveDoc{
		ID:        docID(tenant, key),
		Tenant:    tenant,
		Key:       key,
		Data:      data,
		UpdatedAt: time.Now(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return errors.Annotatef(err, "mongo archive %s", doc.ID)
}

// Get returns the archived bytes, nil when missing.
func (s *ArchiveSink) Get(ctx context.Context, tenant, key string) ([]byte, error) {
	doc := &archiveDoc{}
	err := s.coll.FindOne(ctx, bson.M{"_id": docID(tenant, key)}).Decode(doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return doc.Data, nil
}

func (s *ArchiveSink) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return errors.Trace(s.client.Disconnect(ctx))
}
