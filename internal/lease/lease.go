/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package lease holds the short-lived facts the on-air arbiter consults:
// the current on-air pointers, the automation flag, and the DJ activity
// lease. These keys are advisory; the relational store stays the source of
// truth and callers must treat a lookup failure as "unknown", not as either
// automation state.
package lease

import (
	"context"
	"strconv"
	"time"
)

// Redis keys for the arbiter state.
const (
	KeyOnAirDJ         = "muninn:onair_dj_id"
	KeyOnAirSession    = "muninn:onair_session_id"
	KeyAutomation      = "muninn:automation_enabled"
	KeyDJActive        = "muninn:dj_active"
	KeyTimeoutOverride = "muninn:dj_timeout"
)

// Flag is the three-way automation state. Absent is deliberately kept
// distinct from an explicit false: the heartbeat treats an absent flag as
// "unknown, do nothing" while an explicit false arms the failover.
type Flag int

const (
	FlagAbsent Flag = iota
	FlagFalse
	FlagTrue
)

// Store is the ephemeral key/value contract the arbiter depends on. All
// errors mean "state unknown"; implementations never substitute a default.
type Store interface {
	// On-air pointers.
	OnAirDJ(ctx context.Context) (uint, bool, error)
	SetOnAirDJ(ctx context.Context, djID uint) error
	OnAirSession(ctx context.Context) (uint, bool, error)
	SetOnAirSession(ctx context.Context, sessionID uint) error
	ClearOnAirSession(ctx context.Context) error
	// ClearOnAir drops both pointers.
	ClearOnAir(ctx context.Context) error

	// Automation flag.
	AutomationFlag(ctx context.Context) (Flag, error)
	SetAutomation(ctx context.Context, enabled bool) error

	// DJ activity lease. RenewActivity marks the DJ live for the override
	// TTL if one is set, else the configured inactivity timeout.
	// SuspendActivity replaces the lease with the short post-logout grace
	// TTL. ActivityPresent reports whether the lease key still exists;
	// expiry is the sole inactivity signal.
	RenewActivity(ctx context.Context) error
	SuspendActivity(ctx context.Context) error
	ActivityPresent(ctx context.Context) (bool, error)

	// Inactivity timeout override, set by studio tooling for extended sets.
	SetTimeoutOverride(ctx context.Context, ttl time.Duration) error
	ClearTimeoutOverride(ctx context.Context) error

	Close() error
}

func parseID(value string) (uint, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
