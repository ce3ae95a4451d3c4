/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides the Redis-based read cache for playlist and
// now-playing data. Unlike the lease store, this layer is purely an
// optimization: on any Redis trouble it disables itself and callers fall
// through to the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultNowPlayingTTL = 1 * time.Minute
	DefaultPlaylistTTL   = 15 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyNowPlaying = "muninn:cache:now_playing"
	KeyPlaylist   = "muninn:cache:playlist:" // + session_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NowPlayingTTL time.Duration
	PlaylistTTL   time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		NowPlayingTTL:  DefaultNowPlayingTTL,
		PlaylistTTL:    DefaultPlaylistTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// CachedPlay represents a cached play for playlist and now-playing views.
type CachedPlay struct {
	ID        uint   `json:"id"`
	TrackID   uint   `json:"track_id"`
	SessionID *uint  `json:"session_id"`
	DJID      uint   `json:"dj_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album"`
	Label     string `json:"label"`
	PlayedAt  string `json:"played_at"`
	Listeners *int   `json:"listeners"`
}

// GetNowPlaying retrieves the cached now-playing record.
func (c *Cache) GetNowPlaying(ctx context.Context) (*CachedPlay, bool) {
	var play CachedPlay
	found, err := c.get(ctx, KeyNowPlaying, &play)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Uint("play_id", play.ID).Msg("now playing cache hit")
	return &play, true
}

// SetNowPlaying caches the now-playing record.
func (c *Cache) SetNowPlaying(ctx context.Context, play *CachedPlay) error {
	c.logger.Debug().Uint("play_id", play.ID).Msg("caching now playing")
	return c.set(ctx, KeyNowPlaying, play, c.config.NowPlayingTTL)
}

// GetPlaylist retrieves the cached playlist for a session.
func (c *Cache) GetPlaylist(ctx context.Context, sessionID uint) ([]CachedPlay, bool) {
	var plays []CachedPlay
	found, err := c.get(ctx, playlistKey(sessionID), &plays)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Uint("session_id", sessionID).Int("count", len(plays)).Msg("playlist cache hit")
	return plays, true
}

// SetPlaylist caches the playlist for a session.
func (c *Cache) SetPlaylist(ctx context.Context, sessionID uint, plays []CachedPlay) error {
	c.logger.Debug().Uint("session_id", sessionID).Int("count", len(plays)).Msg("caching playlist")
	return c.set(ctx, playlistKey(sessionID), plays, c.config.PlaylistTTL)
}

// Invalidate removes every playlist and now-playing entry. Called after any
// track log, edit, merge, or session transition.
func (c *Cache) Invalidate(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating playlist caches")

	if err := c.delete(ctx, KeyNowPlaying); err != nil {
		return err
	}
	return c.deletePattern(ctx, KeyPlaylist+"*")
}

func playlistKey(sessionID uint) string {
	return fmt.Sprintf("%s%d", KeyPlaylist, sessionID)
}
