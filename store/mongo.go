package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const (
	defaultDatabase   = "test"
	defaultCollection = "transactions"
)

type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type transactionDocument struct {
	ID          primitive.ObjectID     `bson:"_id,omitempty"`
	Type        models.TransactionType `bson:"type"`
	Description string                 `bson:"description"`
	Amount      float64                `bson:"amount"`
	Category    string                 `bson:"category"`
	Date        time.Time              `bson:"date"`
	CreatedAt   time.Time              `bson:"createdAt"`
	UpdatedAt   time.Time              `bson:"updatedAt"`
}

func toDocument(t *models.Transaction) transactionDocument {
	return transactionDocument{
		Type:        t.Type,
		Description: t.Description,
		Amount:      t.Amount,
		Category:    t.Category,
		Date:        t.Date,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d transactionDocument) transaction() models.Transaction {
	return models.Transaction{
		ID:          d.ID.Hex(),
		Type:        d.Type,
		Description: d.Description,
		Amount:      d.Amount,
		Category:    d.Category,
		Date:        d.Date.UTC(),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// NewMongo creates a client for uri. The driver connects lazily, so an
// unreachable server is only reported by Ping.
func NewMongo(ctx context.Context, uri string, opts Options) (*Mongo, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongodb uri: %w", err)
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	database := opts.Database
	if database == "" {
		database = cs.Database
	}
	if database == "" {
		database = defaultDatabase
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}

	log.Debug().Str("database", database).Str("collection", collection).Msg("MongoDB client created")
	return newMongo(client.Database(database).Collection(collection)), nil
}

func newMongo(coll *mongo.Collection) *Mongo {
	return &Mongo{client: coll.Database().Client(), coll: coll}
}

func (m *Mongo) List(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	query := bson.D{}
	if filter.Type != "" {
		query = append(query, bson.E{Key: "type", Value: filter.Type})
	}
	if filter.Category != "" {
		query = append(query, bson.E{Key: "category", Value: filter.Category})
	}

	cursor, err := m.coll.Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	var docs []transactionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}

	result := make([]models.Transaction, 0, len(docs))
	for _, d := range docs {
		result = append(result, d.transaction())
	}
	return result, nil
}

func (m *Mongo) Get(ctx context.Context, id string) (*models.Transaction, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrNotFound
	}

	var doc transactionDocument
	err = m.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction %s: %w", id, err)
	}
	t := doc.transaction()
	return &t, nil
}

func (m *Mongo) Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	doc := toDocument(t)
	doc.ID = primitive.NewObjectID()
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	created := doc.transaction()
	return &created, nil
}

func (m *Mongo) Update(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	oid, err := primitive.ObjectIDFromHex(t.ID)
	if err != nil {
		return nil, models.ErrNotFound
	}
	doc := toDocument(t)
	doc.ID = oid

	res, err := m.coll.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return nil, fmt.Errorf("replace transaction %s: %w", t.ID, err)
	}
	if res.MatchedCount == 0 {
		return nil, models.ErrNotFound
	}
	updated := doc.transaction()
	return &updated, nil
}

func (m *Mongo) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrNotFound
	}
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

var _ Store = (*Mongo)(nil)
