/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package onair

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_airlog/internal/lease"
	"github.com/friendsincode/muninn_airlog/internal/models"
)

// flakyStore injects lease read failures on top of the in-memory store.
type flakyStore struct {
	*lease.MemoryStore
	activityErr error
	flagErr     error
}

func (s *flakyStore) ActivityPresent(ctx context.Context) (bool, error) {
	if s.activityErr != nil {
		return false, s.activityErr
	}
	return s.MemoryStore.ActivityPresent(ctx)
}

func (s *flakyStore) AutomationFlag(ctx context.Context) (lease.Flag, error) {
	if s.flagErr != nil {
		return lease.FlagAbsent, s.flagErr
	}
	return s.MemoryStore.AutomationFlag(ctx)
}

func newHeartbeatFixture(t *testing.T) (*fixture, *HeartbeatDriver) {
	t.Helper()
	f := newFixture(t)
	return f, NewHeartbeatDriver(f.coord, time.Minute, zerolog.Nop())
}

func TestHeartbeatNoopWhileDJActive(t *testing.T) {
	f, driver := newHeartbeatFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "active")

	if _, err := f.coord.StartHumanSession(ctx, dj.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := driver.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	if got := f.openSessionCount(t); got != 1 {
		t.Fatalf("open sessions = %d, want 1", got)
	}
}

func TestHeartbeatNoopWhenFlagAbsent(t *testing.T) {
	f, driver := newHeartbeatFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "unknownstate")

	// A session that predates this process: the automation flag was never
	// written, so it reads as absent rather than explicitly false.
	session := &models.BroadcastSession{DJID: dj.ID, StartedAt: time.Now().UTC()}
	if err := f.db.Create(session).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := f.leases.RenewActivity(ctx); err != nil {
		t.Fatalf("renew activity: %v", err)
	}

	// Expire the activity lease. Absent flag plus absent activity means
	// the state is unknown and nothing may be interrupted.
	base := time.Now()
	f.leases.SetClock(func() time.Time { return base.Add(31 * time.Minute) })

	if err := driver.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	var reloaded models.BroadcastSession
	if err := f.db.First(&reloaded, session.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.EndedAt != nil {
		t.Fatal("session must stay open while the flag is absent")
	}
}

func TestHeartbeatFailsOverWhenLeaseExpiredAndFlagFalse(t *testing.T) {
	f, driver := newHeartbeatFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "silent")

	// Automation was running before the DJ took over, so the takeover
	// wrote an explicit false into the flag.
	if err := f.coord.enableAutomation(ctx); err != nil {
		t.Fatalf("enable automation: %v", err)
	}
	session, err := f.coord.StartHumanSession(ctx, dj.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Only the activity lease stands between the DJ and the failover.
	base := time.Now()
	f.leases.SetClock(func() time.Time { return base.Add(31 * time.Minute) })

	if err := driver.Heartbeat(ctx); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	var reloaded models.BroadcastSession
	if err := f.db.First(&reloaded, session.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.EndedAt == nil {
		t.Fatal("expected silent session force-closed")
	}

	flag, err := f.leases.AutomationFlag(ctx)
	if err != nil {
		t.Fatalf("read flag: %v", err)
	}
	if flag != lease.FlagTrue {
		t.Fatalf("automation flag = %v, want true after failover", flag)
	}
}

func TestHeartbeatFailsSafeOnLeaseErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "unreachable")

	if _, err := f.coord.StartHumanSession(ctx, dj.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	injected := errors.New("connection refused")
	flaky := &flakyStore{MemoryStore: f.leases, activityErr: injected}
	coord := NewCoordinator(f.db, flaky, f.coord.matcher, f.bus, nil, nil, nil, 5*time.Second, zerolog.Nop())
	driver := NewHeartbeatDriver(coord, time.Minute, zerolog.Nop())

	if err := driver.Heartbeat(ctx); !errors.Is(err, injected) {
		t.Fatalf("got %v, want injected lease error", err)
	}
	if got := f.openSessionCount(t); got != 1 {
		t.Fatalf("open sessions = %d, want 1 (nothing touched on lease error)", got)
	}

	// Same when only the flag read fails.
	flaky.activityErr = nil
	flaky.flagErr = injected
	base := time.Now()
	f.leases.SetClock(func() time.Time { return base.Add(31 * time.Minute) })
	if err := driver.Heartbeat(ctx); !errors.Is(err, injected) {
		t.Fatalf("got %v, want injected lease error", err)
	}
	if got := f.openSessionCount(t); got != 1 {
		t.Fatalf("open sessions = %d, want 1 (nothing touched on flag error)", got)
	}
}
