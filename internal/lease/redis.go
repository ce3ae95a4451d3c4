/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package lease

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig contains connection settings and arbiter TTL defaults.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// DJTimeout is the default DJ inactivity lease TTL.
	DJTimeout time.Duration
	// NoDJTimeout is the shortened grace TTL applied after an explicit
	// logout so automation resumes quickly.
	NoDJTimeout time.Duration
}

// RedisStore implements Store on a Redis connection. Unlike the playlist
// cache there is no circuit breaker here: a Redis failure must surface to
// the caller so the arbiter can fall back to a relational re-check instead
// of trusting a stale answer.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
	cfg    RedisConfig
}

// NewRedis creates a Redis-backed lease store and verifies connectivity.
func NewRedis(cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect lease store: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("lease store connected")

	return &RedisStore{
		client: client,
		logger: logger.With().Str("component", "lease").Logger(),
		cfg:    cfg,
	}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) getID(ctx context.Context, key string) (uint, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lease get %s: %w", key, err)
	}
	id, err := parseID(value)
	if err != nil {
		// A corrupt pointer is as good as no pointer; log it and make the
		// caller re-derive from storage.
		s.logger.Warn().Str("key", key).Str("value", value).Msg("dropping unparseable lease pointer")
		_ = s.client.Del(ctx, key).Err()
		return 0, false, nil
	}
	return id, true, nil
}

// OnAirDJ returns the cached on-air owner id.
func (s *RedisStore) OnAirDJ(ctx context.Context) (uint, bool, error) {
	return s.getID(ctx, KeyOnAirDJ)
}

// SetOnAirDJ records the on-air owner id.
func (s *RedisStore) SetOnAirDJ(ctx context.Context, djID uint) error {
	if err := s.client.Set(ctx, KeyOnAirDJ, formatID(djID), 0).Err(); err != nil {
		return fmt.Errorf("lease set %s: %w", KeyOnAirDJ, err)
	}
	return nil
}

// OnAirSession returns the cached on-air session id.
func (s *RedisStore) OnAirSession(ctx context.Context) (uint, bool, error) {
	return s.getID(ctx, KeyOnAirSession)
}

// SetOnAirSession records the on-air session id.
func (s *RedisStore) SetOnAirSession(ctx context.Context, sessionID uint) error {
	if err := s.client.Set(ctx, KeyOnAirSession, formatID(sessionID), 0).Err(); err != nil {
		return fmt.Errorf("lease set %s: %w", KeyOnAirSession, err)
	}
	return nil
}

// ClearOnAirSession drops the on-air session pointer only.
func (s *RedisStore) ClearOnAirSession(ctx context.Context) error {
	if err := s.client.Del(ctx, KeyOnAirSession).Err(); err != nil {
		return fmt.Errorf("lease del %s: %w", KeyOnAirSession, err)
	}
	return nil
}

// ClearOnAir drops both on-air pointers.
func (s *RedisStore) ClearOnAir(ctx context.Context) error {
	if err := s.client.Del(ctx, KeyOnAirDJ, KeyOnAirSession).Err(); err != nil {
		return fmt.Errorf("lease clear onair: %w", err)
	}
	return nil
}

// AutomationFlag returns the three-way automation state.
func (s *RedisStore) AutomationFlag(ctx context.Context) (Flag, error) {
	value, err := s.client.Get(ctx, KeyAutomation).Result()
	if errors.Is(err, redis.Nil) {
		return FlagAbsent, nil
	}
	if err != nil {
		return FlagAbsent, fmt.Errorf("lease get %s: %w", KeyAutomation, err)
	}
	if value == "true" {
		return FlagTrue, nil
	}
	return FlagFalse, nil
}

// SetAutomation writes the automation flag.
func (s *RedisStore) SetAutomation(ctx context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	if err := s.client.Set(ctx, KeyAutomation, value, 0).Err(); err != nil {
		return fmt.Errorf("lease set %s: %w", KeyAutomation, err)
	}
	return nil
}

// RenewActivity marks the DJ live for the override TTL if present, else
// the configured inactivity timeout.
func (s *RedisStore) RenewActivity(ctx context.Context) error {
	ttl := s.cfg.DJTimeout

	override, err := s.client.Get(ctx, KeyTimeoutOverride).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lease get %s: %w", KeyTimeoutOverride, err)
	}
	if err == nil {
		if seconds, parseErr := parseID(override); parseErr == nil && seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
	}

	if err := s.client.Set(ctx, KeyDJActive, "true", ttl).Err(); err != nil {
		return fmt.Errorf("lease renew activity: %w", err)
	}
	return nil
}

// SuspendActivity replaces the lease with the short post-logout grace TTL.
func (s *RedisStore) SuspendActivity(ctx context.Context) error {
	if err := s.client.Set(ctx, KeyDJActive, "false", s.cfg.NoDJTimeout).Err(); err != nil {
		return fmt.Errorf("lease suspend activity: %w", err)
	}
	return nil
}

// ActivityPresent reports whether the activity lease key still exists.
func (s *RedisStore) ActivityPresent(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, KeyDJActive).Result()
	if err != nil {
		return false, fmt.Errorf("lease exists %s: %w", KeyDJActive, err)
	}
	return n > 0, nil
}

// SetTimeoutOverride stores the inactivity timeout override in seconds.
func (s *RedisStore) SetTimeoutOverride(ctx context.Context, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if err := s.client.Set(ctx, KeyTimeoutOverride, strconv.FormatInt(seconds, 10), 0).Err(); err != nil {
		return fmt.Errorf("lease set %s: %w", KeyTimeoutOverride, err)
	}
	return nil
}

// ClearTimeoutOverride removes the override so the default timeout applies.
func (s *RedisStore) ClearTimeoutOverride(ctx context.Context) error {
	if err := s.client.Del(ctx, KeyTimeoutOverride).Err(); err != nil {
		return fmt.Errorf("lease del %s: %w", KeyTimeoutOverride, err)
	}
	return nil
}
