// Package cache stores encoded prediction results keyed by stat vector.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"legendary-classifier/internal/common"
)

// Cache is the byte-oriented store the predictor writes results into.
// Misses and backend errors both report ok == false on Get.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Memory adapts LRUWithTTL to Cache.
type Memory struct {
	lru *LRUWithTTL[string, []byte]
}

func NewMemory(size int, ttl time.Duration) (*Memory, error) {
	c, err := NewLRUWithTTL[string, []byte](size, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &Memory{lru: c}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	return m.lru.Get(key)
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.lru.Set(key, append([]byte(nil), value...))
	return nil
}

func (m *Memory) Stats() Stats { return m.lru.Stats() }

func (m *Memory) Close() error { return m.lru.Close() }

// Options selects and sizes a cache backend.
type Options struct {
	Backend   string
	Size      int
	TTL       time.Duration
	RedisAddr string
}

// New builds the configured backend. The "none" backend returns a nil
// Cache, which callers treat as caching disabled.
func New(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Backend {
	case common.CacheBackendNone, "":
		log.Info().Msg("Prediction cache disabled")
		return nil, nil
	case common.CacheBackendMemory:
		c, err := NewMemory(opts.Size, opts.TTL)
		if err != nil {
			return nil, err
		}
		log.Info().Int("size", opts.Size).Dur("ttl", opts.TTL).Msg("In-memory prediction cache ready")
		return c, nil
	case common.CacheBackendRedis:
		c, err := NewRedis(ctx, RedisOptions{Addr: opts.RedisAddr, TTL: opts.TTL})
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", opts.RedisAddr).Dur("ttl", opts.TTL).Msg("Redis prediction cache ready")
		return c, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
}
