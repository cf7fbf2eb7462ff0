package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

// RedisStore keeps gzip-compressed JSON envelopes in Redis so several
// processes can share one cache. The envelope carries ExpiresAt so the
// freshness rule is the same as MemoryStore's.
type RedisStore[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    Clock
	logger *utils.Logger
}

// NewRedisStore namespaces keys under prefix.
func NewRedisStore[T any](client *redis.Client, prefix string, ttl time.Duration, clock Clock, logger *utils.Logger) *RedisStore[T] {
	if clock == nil {
		clock = time.Now
	}
	return &RedisStore[T]{client: client, prefix: prefix, ttl: ttl, now: clock, logger: logger}
}

var _ Store[int] = (*RedisStore[int])(nil)

// NewRedis builds the four stores on a shared client.
func NewRedis(client *redis.Client, catalogTTL, priceTTL time.Duration, logger *utils.Logger) *Caches {
	return &Caches{
		Brands:   NewRedisStore[[]models.CatalogEntry](client, "brands:", catalogTTL, nil, logger),
		Models:   NewRedisStore[[]models.CatalogEntry](client, "models:", catalogTTL, nil, logger),
		Versions: NewRedisStore[[]models.CatalogEntry](client, "versions:", catalogTTL, nil, logger),
		Prices:   NewRedisStore[models.ProviderResult](client, "prices:", priceTTL, nil, logger),
	}
}

// Get treats an unreachable Redis as a miss; an undecodable value is
// reported as ErrCacheCorrupt.
func (r *RedisStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("[cache] redis get %s%s: %v", r.prefix, key, err)
		}
		return zero, false, nil
	}

	entry, err := decodeEntry[T](raw)
	if err != nil {
		return zero, false, eris.Wrapf(models.ErrCacheCorrupt, "key %s%s: %v", r.prefix, key, err)
	}
	if !entry.Fresh(r.now()) {
		return zero, false, nil
	}
	return entry.Value, true, nil
}

func (r *RedisStore[T]) Set(ctx context.Context, key string, value T) error {
	payload, err := encodeEntry(CacheEntry[T]{Value: value, ExpiresAt: r.now().Add(r.ttl)})
	if err != nil {
		return eris.Wrapf(err, "encode %s%s", r.prefix, key)
	}
	if err := r.client.Set(ctx, r.prefix+key, payload, r.ttl).Err(); err != nil {
		if r.logger != nil {
			r.logger.Warn("[cache] redis set %s%s: %v", r.prefix, key, err)
		}
	}
	return nil
}

func encodeEntry[T any](entry CacheEntry[T]) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	w := gzip.NewWriter(&b)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeEntry[T any](raw []byte) (CacheEntry[T], error) {
	var entry CacheEntry[T]
	if len(raw) == 0 {
		return entry, errors.New("empty payload")
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return entry, err
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, err
	}
	return entry, nil
}
