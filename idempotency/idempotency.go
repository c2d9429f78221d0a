package idempotency

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"time"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/pkg/tracing"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	Header = "Idempotency-Key"
	TTL    = 24 * time.Hour

	keyPrefix = "idempotency:"
)

// Cache remembers which transaction an Idempotency-Key created.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(address string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     address, // host:port of the redis server
		Password: "",
		DB:       0,
	})
	client.AddHook(redisotel.NewTracingHook())
	return NewWithClient(client, TTL)
}

func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Lookup returns the transaction id recorded for key.
func (c *Cache) Lookup(ctx context.Context, key string) (string, bool, error) {
	ctx, span := tracing.NewSpan("idempotency.lookup", ctx)
	defer span.End()

	hash := generateHash(key)
	span.SetAttributes(attribute.String("hash", hash))

	id, err := c.client.Get(ctx, hash).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failure reaching redis")
		return "", false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	log.Debug().Str("hash", hash).Str("id", id).Msg("Idempotency key replayed")
	return id, true, nil
}

// Remember records id for key unless the key is already taken. It reports
// whether id was stored.
func (c *Cache) Remember(ctx context.Context, key, id string) (bool, error) {
	ctx, span := tracing.NewSpan("idempotency.remember", ctx)
	defer span.End()

	hash := generateHash(key)
	ok, err := c.client.SetNX(ctx, hash, id, c.ttl).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failure reaching redis")
		return false, fmt.Errorf("remember idempotency key: %w", err)
	}
	log.Debug().Str("hash", hash).Bool("stored", ok).Msg("Saved hash")
	return ok, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func generateHash(key string) string {
	return fmt.Sprintf("%s%x", keyPrefix, md5.Sum([]byte(key)))
}
