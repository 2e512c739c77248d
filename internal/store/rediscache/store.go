// Package rediscache wraps a meta.Store with a Redis read-through cache of
// whole objects. Any write to an object drops its cached entry.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
)

// Config holds cache settings
type Config struct {
	// Prefix is prepended to every Redis key
	Prefix string
	// TTL is how long a cached object lives
	TTL time.Duration
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		Prefix: "wpmeta:",
		TTL:    10 * time.Minute,
	}
}

// cachedRow is a row in its stored text form
type cachedRow struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// Store is a caching meta.Store
type Store struct {
	next   meta.Store
	client *redis.Client
	config Config
	logger *zap.Logger
}

// New wraps next with a cache held in client
func New(next meta.Store, client *redis.Client, config Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL == 0 {
		config.TTL = DefaultConfig().TTL
	}
	return &Store{next: next, client: client, config: config, logger: logger}
}

// Dial connects to Redis and checks the connection
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Key returns the Redis key caching an object
func (s *Store) Key(objectType meta.ObjectType, objectID int64) string {
	return fmt.Sprintf("%s%s_meta:%d", s.config.Prefix, objectType, objectID)
}

func (s *Store) Add(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value interface{}) error {
	defer s.invalidate(ctx, objectType, objectID)
	return s.next.Add(ctx, objectType, objectID, key, value)
}

func (s *Store) Update(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value, prevValue interface{}) error {
	defer s.invalidate(ctx, objectType, objectID)
	return s.next.Update(ctx, objectType, objectID, key, value, prevValue)
}

func (s *Store) Delete(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value interface{}) error {
	defer s.invalidate(ctx, objectType, objectID)
	return s.next.Delete(ctx, objectType, objectID, key, value)
}

// GetAll serves the object from Redis, filling the cache on a miss
func (s *Store) GetAll(ctx context.Context, objectType meta.ObjectType, objectID int64) (meta.Rows, error) {
	if rows, ok := s.cached(ctx, objectType, objectID); ok {
		return rows, nil
	}

	rows, err := s.next.GetAll(ctx, objectType, objectID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, objectType, objectID, rows)
	return rows, nil
}

// GetByKey is answered from a cached object when there is one. A miss goes
// to the wrapped store without filling the cache.
func (s *Store) GetByKey(ctx context.Context, objectType meta.ObjectType, objectID int64, key string) ([]interface{}, error) {
	if rows, ok := s.cached(ctx, objectType, objectID); ok {
		return rows.Grouped()[key], nil
	}
	return s.next.GetByKey(ctx, objectType, objectID, key)
}

func (s *Store) cached(ctx context.Context, objectType meta.ObjectType, objectID int64) (meta.Rows, bool) {
	key := s.Key(objectType, objectID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("meta cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var cached []cachedRow
	if err := json.Unmarshal(data, &cached); err != nil {
		s.logger.Warn("meta cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	rows := make(meta.Rows, 0, len(cached))
	for _, c := range cached {
		rows = append(rows, meta.Row{Key: c.Key, Value: meta.MaybeUnserialize(c.Value)})
	}
	return rows, true
}

func (s *Store) fill(ctx context.Context, objectType meta.ObjectType, objectID int64, rows meta.Rows) {
	key := s.Key(objectType, objectID)

	cached := make([]cachedRow, 0, len(rows))
	for _, r := range rows {
		text, err := meta.MaybeSerialize(r.Value)
		if err != nil {
			return
		}
		cached = append(cached, cachedRow{Key: r.Key, Value: text})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, data, s.config.TTL).Err(); err != nil {
		s.logger.Warn("meta cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) invalidate(ctx context.Context, objectType meta.ObjectType, objectID int64) {
	key := s.Key(objectType, objectID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("meta cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
