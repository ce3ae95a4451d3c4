/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package lease

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. It is used by
// single-node deployments that run without Redis, and by tests. TTL
// semantics match the Redis store: an expired key reads as absent.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time

	djTimeout   time.Duration
	noDJTimeout time.Duration

	// now is swappable so tests can step time.
	now func() time.Time
}

// NewMemory creates an in-process lease store with the given TTL defaults.
func NewMemory(djTimeout, noDJTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		values:      make(map[string]string),
		expires:     make(map[string]time.Time),
		djTimeout:   djTimeout,
		noDJTimeout: noDJTimeout,
		now:         time.Now,
	}
}

// SetClock overrides the store's time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// get must be called with the lock held.
func (s *MemoryStore) get(key string) (string, bool) {
	deadline, hasDeadline := s.expires[key]
	if hasDeadline && !s.now().Before(deadline) {
		delete(s.values, key)
		delete(s.expires, key)
		return "", false
	}
	value, ok := s.values[key]
	return value, ok
}

// set must be called with the lock held. A zero ttl means no expiry.
func (s *MemoryStore) set(key, value string, ttl time.Duration) {
	s.values[key] = value
	if ttl > 0 {
		s.expires[key] = s.now().Add(ttl)
	} else {
		delete(s.expires, key)
	}
}

func (s *MemoryStore) getID(key string) (uint, bool) {
	value, ok := s.get(key)
	if !ok {
		return 0, false
	}
	id, err := parseID(value)
	if err != nil {
		delete(s.values, key)
		delete(s.expires, key)
		return 0, false
	}
	return id, true
}

// OnAirDJ returns the cached on-air owner id.
func (s *MemoryStore) OnAirDJ(ctx context.Context) (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.getID(KeyOnAirDJ)
	return id, ok, nil
}

// SetOnAirDJ records the on-air owner id.
func (s *MemoryStore) SetOnAirDJ(ctx context.Context, djID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(KeyOnAirDJ, formatID(djID), 0)
	return nil
}

// OnAirSession returns the cached on-air session id.
func (s *MemoryStore) OnAirSession(ctx context.Context) (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.getID(KeyOnAirSession)
	return id, ok, nil
}

// SetOnAirSession records the on-air session id.
func (s *MemoryStore) SetOnAirSession(ctx context.Context, sessionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(KeyOnAirSession, formatID(sessionID), 0)
	return nil
}

// ClearOnAirSession drops the on-air session pointer only.
func (s *MemoryStore) ClearOnAirSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, KeyOnAirSession)
	delete(s.expires, KeyOnAirSession)
	return nil
}

// ClearOnAir drops both on-air pointers.
func (s *MemoryStore) ClearOnAir(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{KeyOnAirDJ, KeyOnAirSession} {
		delete(s.values, key)
		delete(s.expires, key)
	}
	return nil
}

// AutomationFlag returns the three-way automation state.
func (s *MemoryStore) AutomationFlag(ctx context.Context) (Flag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.get(KeyAutomation)
	if !ok {
		return FlagAbsent, nil
	}
	if value == "true" {
		return FlagTrue, nil
	}
	return FlagFalse, nil
}

// SetAutomation writes the automation flag.
func (s *MemoryStore) SetAutomation(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	value := "false"
	if enabled {
		value = "true"
	}
	s.set(KeyAutomation, value, 0)
	return nil
}

// RenewActivity marks the DJ live for the override TTL if present, else
// the configured inactivity timeout.
func (s *MemoryStore) RenewActivity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ttl := s.djTimeout
	if override, ok := s.get(KeyTimeoutOverride); ok {
		if seconds, err := parseID(override); err == nil && seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
	}
	s.set(KeyDJActive, "true", ttl)
	return nil
}

// SuspendActivity replaces the lease with the short post-logout grace TTL.
func (s *MemoryStore) SuspendActivity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(KeyDJActive, "false", s.noDJTimeout)
	return nil
}

// ActivityPresent reports whether the activity lease key still exists.
func (s *MemoryStore) ActivityPresent(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(KeyDJActive)
	return ok, nil
}

// SetTimeoutOverride stores the inactivity timeout override in seconds.
func (s *MemoryStore) SetTimeoutOverride(ctx context.Context, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(KeyTimeoutOverride, formatID(uint(ttl/time.Second)), 0)
	return nil
}

// ClearTimeoutOverride removes the override so the default timeout applies.
func (s *MemoryStore) ClearTimeoutOverride(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, KeyTimeoutOverride)
	delete(s.expires, KeyTimeoutOverride)
	return nil
}
