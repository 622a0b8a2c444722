// Package cached decorates a store.EntityStore with a read-through cache of exact-key
// lookups. Only hits are cached; misses and named queries always reach the wrapped store.
//
// Writes and removes replace the entry of the affected key with a tombstone before and
// after they reach the wrapped store. A tombstone refuses fills until it expires, and a
// reader whose load took longer than half the tombstone lifetime does not fill at all, so
// rows loaded before a write can never be cached after it. Fills resume once the
// tombstone expires.
package cached

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/jacentio/persist/store"
)

// DefaultSize is the entry limit of a local cache created without an explicit size.
const DefaultSize = 10_000

// DefaultTombstone is how long an invalidated key refuses fills by default.
const DefaultTombstone = 2 * time.Second

// Config holds configuration for the caching decorator.
type Config struct {
	// KeyPrefix namespaces cache keys, e.g. per application on a shared Redis.
	// Default: "persist:"
	KeyPrefix string

	// Tombstone is how long an invalidated key refuses fills. It bounds the load time of
	// a reader that may still fill. Default: DefaultTombstone.
	Tombstone time.Duration

	// Logger receives cache failure warnings. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{KeyPrefix: "persist:", Tombstone: DefaultTombstone}
}

func (c *Config) validate() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "persist:"
	}
	if c.Tombstone <= 0 {
		c.Tombstone = DefaultTombstone
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Store is a caching store.EntityStore.
type Store struct {
	next    store.EntityStore
	backend Backend
	config  Config
}

var _ store.EntityStore = (*Store)(nil)

// New wraps next with a cache held in backend.
func New(next store.EntityStore, backend Backend, config Config) *Store {
	config.validate()
	return &Store{next: next, backend: backend, config: config}
}

func (s *Store) key(entityType string, pk store.PK) string {
	return s.config.KeyPrefix + entityType + "/" + pk.String()
}

// FindByKey serves the rows of key from the cache, loading and caching them on a miss.
// A failing cache is logged and bypassed. Rows are not cached while the key holds a
// tombstone, nor when the load took half the tombstone lifetime or more.
func (s *Store) FindByKey(ctx context.Context, entityType string, key store.PK) ([]*store.Entity, error) {
	ck := s.key(entityType, key)
	raw, ok, err := s.backend.Get(ctx, ck)
	if err != nil {
		s.config.Logger.Warn("cache read failed", "key", ck, "error", err)
	}
	if ok {
		var rows []*store.Entity
		if err := json.Unmarshal(raw, &rows); err == nil {
			return rows, nil
		}
		s.config.Logger.Warn("dropping undecodable cache entry", "key", ck)
		s.drop(ctx, ck)
	}

	start := time.Now()
	rows, err := s.next.FindByKey(ctx, entityType, key)
	if err != nil || len(rows) == 0 {
		return rows, err
	}
	if time.Since(start) >= s.config.Tombstone/2 {
		s.config.Logger.Debug("skipping cache fill after slow load", "key", ck)
		return rows, nil
	}
	s.fill(ctx, ck, rows)
	return rows, nil
}

// Write invalidates the cached key, writes through and invalidates again. A failure of the
// first invalidation aborts the write; a failure of the second is logged.
func (s *Store) Write(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	ck := s.key(e.Type, e.Key)
	if err := s.invalidate(ctx, ck); err != nil {
		return nil, fmt.Errorf("cached: invalidate %s: %w", ck, err)
	}
	written, err := s.next.Write(ctx, e)
	s.drop(ctx, ck)
	return written, err
}

// Remove invalidates the cached key around the removal.
func (s *Store) Remove(ctx context.Context, e *store.Entity) error {
	ck := s.key(e.Type, e.Key)
	if err := s.invalidate(ctx, ck); err != nil {
		return fmt.Errorf("cached: invalidate %s: %w", ck, err)
	}
	err := s.next.Remove(ctx, e)
	s.drop(ctx, ck)
	return err
}

// Refresh always reads the wrapped store.
func (s *Store) Refresh(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	return s.next.Refresh(ctx, e)
}

// RunNamedQuery is never cached.
func (s *Store) RunNamedQuery(ctx context.Context, entityType, name string, params store.Params) ([]*store.Entity, error) {
	return s.next.RunNamedQuery(ctx, entityType, name, params)
}

func (s *Store) fill(ctx context.Context, ck string, rows []*store.Entity) {
	raw, err := json.Marshal(rows)
	if err != nil {
		s.config.Logger.Warn("cache encode failed", "key", ck, "error", err)
		return
	}
	filled, err := s.backend.Fill(ctx, ck, raw)
	if err != nil {
		s.config.Logger.Warn("cache write failed", "key", ck, "error", err)
		return
	}
	if !filled {
		s.config.Logger.Debug("cache fill refused", "key", ck)
	}
}

func (s *Store) invalidate(ctx context.Context, ck string) error {
	return s.backend.Invalidate(ctx, ck, s.config.Tombstone)
}

func (s *Store) drop(ctx context.Context, ck string) {
	if err := s.invalidate(ctx, ck); err != nil {
		s.config.Logger.Warn("cache invalidation failed", "key", ck, "error", err)
	}
}
