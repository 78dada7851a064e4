// Package rediscache stores resolved paths in Redis so they survive restarts
// and are shared between lanemap instances.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lanemap/lanemap/internal/routing"
)

// DefaultPrefix namespaces lanemap keys.
const DefaultPrefix = "lanemap:path:"

// Config holds Redis store configuration.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// Prefix is prepended to every key (default: DefaultPrefix).
	Prefix string

	// TTL is the expiry of resolved entries (default: routing.DefaultStoreTTL).
	TTL time.Duration

	// PendingTTL bounds how long a Resolving, Unresolved or ResolveFailed
	// entry lives, so a crashed instance cannot pin a key (default: 10m).
	PendingTTL time.Duration
}

// Store is a routing.Store backed by Redis.
type Store struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	pendingTTL time.Duration
}

// Open parses cfg.URL, connects and pings the server.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config) *Store {
	s := &Store{
		client:     client,
		prefix:     cfg.Prefix,
		ttl:        cfg.TTL,
		pendingTTL: cfg.PendingTTL,
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.ttl <= 0 {
		s.ttl = routing.DefaultStoreTTL
	}
	if s.pendingTTL <= 0 {
		s.pendingTTL = 10 * time.Minute
	}
	return s
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get returns the entry stored under key.
func (s *Store) Get(ctx context.Context, key string) (routing.Entry, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return routing.Entry{}, false, nil
	}
	if err != nil {
		return routing.Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var e routing.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return routing.Entry{}, false, fmt.Errorf("decoding path entry: %w", err)
	}
	return e, true, nil
}

// Put stores e under key with a TTL that depends on its state.
func (s *Store) Put(ctx context.Context, key string, e routing.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding path entry: %w", err)
	}

	ttl := s.pendingTTL
	if e.State == routing.StateResolved {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Stats counts the keys under the store prefix.
func (s *Store) Stats(ctx context.Context) routing.StoreStats {
	stats := routing.StoreStats{Backend: "redis", TTL: s.ttl}

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		stats.Entries++
	}
	if err := iter.Err(); err != nil {
		stats.Error = err.Error()
	}
	return stats
}
