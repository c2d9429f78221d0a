package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
)

// ErrNotConnected is returned by the placeholder store used when the
// database could not be reached at startup.
var ErrNotConnected = errors.New("database is not connected")

type Store interface {
	List(ctx context.Context, filter Filter) ([]models.Transaction, error)
	Get(ctx context.Context, id string) (*models.Transaction, error)
	Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	Update(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Filter narrows List to exact matches. Zero values match everything.
type Filter struct {
	Type     models.TransactionType
	Category string
}

func (f Filter) Match(t *models.Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	return true
}

type Options struct {
	Database   string
	Collection string
	Debug      bool
}

// Open picks a backend from the URI scheme:
//
//	mongodb://, mongodb+srv://   MongoDB
//	sqlite://path                SQLite through gorm
//	elasticsearch://host:port    Elasticsearch (alias es://)
//	memory://                    process memory
func Open(ctx context.Context, uri string, opts Options) (Store, error) {
	if uri == "" {
		return nil, errors.New("MONGO_URI is not set")
	}
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, fmt.Errorf("database uri %q has no scheme", uri)
	}

	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		return NewMongo(ctx, uri, opts)
	case "sqlite":
		return NewSQLite(rest, opts)
	case "elasticsearch", "es":
		return NewElasticsearch(ctx, "http://"+strings.TrimSuffix(rest, "/"), opts)
	case "memory":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unsupported database scheme %q", scheme)
}

// Disconnected returns a store whose every call fails with ErrNotConnected
// wrapping cause.
func Disconnected(cause error) Store {
	return &disconnected{cause: cause}
}

type disconnected struct {
	cause error
}

func (d *disconnected) err() error {
	return fmt.Errorf("%w: %v", ErrNotConnected, d.cause)
}

func (d *disconnected) List(context.Context, Filter) ([]models.Transaction, error) {
	return nil, d.err()
}

func (d *disconnected) Get(context.Context, string) (*models.Transaction, error) {
	return nil, d.err()
}

func (d *disconnected) Create(context.Context, *models.Transaction) (*models.Transaction, error) {
	return nil, d.err()
}

func (d *disconnected) Update(context.Context, *models.Transaction) (*models.Transaction, error) {
	return nil, d.err()
}

func (d *disconnected) Delete(context.Context, string) error { return d.err() }
func (d *disconnected) Ping(context.Context) error           { return d.err() }
func (d *disconnected) Close(context.Context) error          { return nil }
