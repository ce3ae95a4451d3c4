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
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_airlog/internal/events"
	"github.com/friendsincode/muninn_airlog/internal/lease"
	"github.com/friendsincode/muninn_airlog/internal/models"
	"github.com/friendsincode/muninn_airlog/internal/tracks"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.DJ{},
		&models.BroadcastSession{},
		&models.Rotation{},
		&models.Track{},
		&models.TrackPlayEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	automation := &models.DJ{
		ID:        models.AutomationDJID,
		Airname:   "Automation",
		Name:      "Automation",
		TimeAdded: time.Now().UTC(),
		Visible:   false,
	}
	if err := db.Create(automation).Error; err != nil {
		t.Fatalf("seed automation dj: %v", err)
	}
	return db
}

type fixture struct {
	db     *gorm.DB
	leases *lease.MemoryStore
	bus    *events.Bus
	coord  *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	leases := lease.NewMemory(30*time.Minute, 5*time.Minute)
	bus := events.NewBus()
	matcher := tracks.NewMatcher(db, bus, nil, zerolog.Nop())
	coord := NewCoordinator(db, leases, matcher, bus, nil, nil, nil, 5*time.Second, zerolog.Nop())
	return &fixture{db: db, leases: leases, bus: bus, coord: coord}
}

func (f *fixture) createDJ(t *testing.T, airname string) *models.DJ {
	t.Helper()
	phone := "540-555-0100"
	email := airname + "@example.org"
	dj := &models.DJ{
		Airname:   airname,
		Name:      airname,
		Phone:     &phone,
		Email:     &email,
		TimeAdded: time.Now().UTC(),
		Visible:   true,
	}
	if err := f.db.Create(dj).Error; err != nil {
		t.Fatalf("create dj: %v", err)
	}
	return dj
}

func (f *fixture) openSessionCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.BroadcastSession{}).
		Where("ended_at IS NULL").Count(&count).Error; err != nil {
		t.Fatalf("count open sessions: %v", err)
	}
	return count
}

func TestStartHumanSessionCreatesAndPointsLeases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "nightowl")

	session, err := f.coord.StartHumanSession(ctx, dj.ID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if session.ID == 0 || session.DJID != dj.ID || !session.Open() {
		t.Fatalf("unexpected session %+v", session)
	}

	onairDJ, found, _ := f.leases.OnAirDJ(ctx)
	if !found || onairDJ != dj.ID {
		t.Fatalf("on-air dj pointer = (%d,%v), want (%d,true)", onairDJ, found, dj.ID)
	}
	onairSession, found, _ := f.leases.OnAirSession(ctx)
	if !found || onairSession != session.ID {
		t.Fatalf("on-air session pointer = (%d,%v), want (%d,true)", onairSession, found, session.ID)
	}
	if active, _ := f.leases.ActivityPresent(ctx); !active {
		t.Fatal("expected activity lease after session start")
	}
}

func TestStartHumanSessionReusesOwnOpenSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "reuser")

	first, err := f.coord.StartHumanSession(ctx, dj.ID)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := f.coord.StartHumanSession(ctx, dj.ID)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same session, got %d then %d", first.ID, second.ID)
	}
	if got := f.openSessionCount(t); got != 1 {
		t.Fatalf("open sessions = %d, want 1", got)
	}
}

func TestStartHumanSessionClosesOtherOpenSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.createDJ(t, "daybreak")
	second := f.createDJ(t, "drivetime")

	firstSession, err := f.coord.StartHumanSession(ctx, first.ID)
	if err != nil {
		t.Fatalf("start for first dj: %v", err)
	}
	secondSession, err := f.coord.StartHumanSession(ctx, second.ID)
	if err != nil {
		t.Fatalf("start for second dj: %v", err)
	}

	if got := f.openSessionCount(t); got != 1 {
		t.Fatalf("open sessions = %d, want 1", got)
	}

	var reloaded models.BroadcastSession
	if err := f.db.First(&reloaded, firstSession.ID).Error; err != nil {
		t.Fatalf("reload first session: %v", err)
	}
	if reloaded.EndedAt == nil {
		t.Fatal("expected first session to be closed by handoff")
	}

	onairSession, found, _ := f.leases.OnAirSession(ctx)
	if !found || onairSession != secondSession.ID {
		t.Fatalf("on-air session = (%d,%v), want (%d,true)", onairSession, found, secondSession.ID)
	}
}

func TestStartHumanSessionRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coord.StartHumanSession(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown dj: got %v, want ErrNotFound", err)
	}
	if _, err := f.coord.StartHumanSession(ctx, models.AutomationDJID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("automation dj: got %v, want ErrForbidden", err)
	}

	incomplete := &models.DJ{Airname: "noprofile", Name: "noprofile", TimeAdded: time.Now().UTC()}
	if err := f.db.Create(incomplete).Error; err != nil {
		t.Fatalf("create dj: %v", err)
	}
	if _, err := f.coord.StartHumanSession(ctx, incomplete.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("incomplete profile: got %v, want ErrForbidden", err)
	}
}

func TestStartHumanSessionDisablesAutomation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "takeover")

	if err := f.coord.enableAutomation(ctx); err != nil {
		t.Fatalf("enable automation: %v", err)
	}
	autoSession, err := f.coord.ResolveAutomationSession(ctx, 0)
	if err != nil {
		t.Fatalf("resolve automation session: %v", err)
	}

	if _, err := f.coord.StartHumanSession(ctx, dj.ID); err != nil {
		t.Fatalf("start human session: %v", err)
	}

	flag, err := f.leases.AutomationFlag(ctx)
	if err != nil {
		t.Fatalf("read flag: %v", err)
	}
	if flag != lease.FlagFalse {
		t.Fatalf("automation flag = %v, want explicit false", flag)
	}

	var reloaded models.BroadcastSession
	if err := f.db.First(&reloaded, autoSession).Error; err != nil {
		t.Fatalf("reload automation session: %v", err)
	}
	if reloaded.EndedAt == nil {
		t.Fatal("expected automation session ended on human takeover")
	}
}

func TestEndSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "signoff")
	other := f.createDJ(t, "bystander")

	session, err := f.coord.StartHumanSession(ctx, dj.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := f.coord.EndSession(ctx, session.ID, other.ID, EndOptions{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("wrong requester: got %v, want ErrForbidden", err)
	}
	if err := f.coord.EndSession(ctx, 9999, dj.ID, EndOptions{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown session: got %v, want ErrNotFound", err)
	}

	if err := f.coord.EndSession(ctx, session.ID, dj.ID, EndOptions{}); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := f.coord.EndSession(ctx, session.ID, dj.ID, EndOptions{}); !errors.Is(err, ErrAlreadyEnded) {
		t.Fatalf("second end: got %v, want ErrAlreadyEnded", err)
	}

	if _, found, _ := f.leases.OnAirSession(ctx); found {
		t.Fatal("expected on-air session pointer cleared after end")
	}
}

func TestEndSessionLeavesShortGraceLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "grace")

	session, err := f.coord.StartHumanSession(ctx, dj.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.coord.EndSession(ctx, session.ID, dj.ID, EndOptions{}); err != nil {
		t.Fatalf("end: %v", err)
	}

	// Immediately after logout the grace lease is still present, so the
	// heartbeat does not fail over yet.
	if active, _ := f.leases.ActivityPresent(ctx); !active {
		t.Fatal("expected grace lease right after logout")
	}

	base := time.Now()
	f.leases.SetClock(func() time.Time { return base.Add(6 * time.Minute) })
	if active, _ := f.leases.ActivityPresent(ctx); active {
		t.Fatal("expected grace lease expired after the no-dj timeout")
	}
}

func TestResolveAutomationSessionIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.ResolveAutomationSession(ctx, 0)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	// Fast path: lease pointers name the session.
	second, err := f.coord.ResolveAutomationSession(ctx, 0)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second != first {
		t.Fatalf("fast path returned %d, want %d", second, first)
	}

	// Cold path: lease state lost, the open row is rediscovered under lock.
	if err := f.leases.ClearOnAir(ctx); err != nil {
		t.Fatalf("clear leases: %v", err)
	}
	third, err := f.coord.ResolveAutomationSession(ctx, 0)
	if err != nil {
		t.Fatalf("third resolve: %v", err)
	}
	if third != first {
		t.Fatalf("cold path returned %d, want %d", third, first)
	}

	if got := f.openSessionCount(t); got != 1 {
		t.Fatalf("open sessions = %d, want 1", got)
	}
}

func TestLogAutomationTrackSoftRejectsWhenDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.leases.SetAutomation(ctx, false); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	_, err := f.coord.LogAutomationTrack(ctx, tracks.Descriptor{
		Title: "Silent Running", Artist: "Automation Test",
	}, 0)
	if !errors.Is(err, ErrAutomationDisabled) {
		t.Fatalf("got %v, want ErrAutomationDisabled", err)
	}

	var plays int64
	if err := f.db.Model(&models.TrackPlayEvent{}).Count(&plays).Error; err != nil {
		t.Fatalf("count plays: %v", err)
	}
	if plays != 0 {
		t.Fatalf("plays = %d, want 0", plays)
	}
}

func TestLogAutomationTrackSharedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.coord.enableAutomation(ctx); err != nil {
		t.Fatalf("enable automation: %v", err)
	}

	first, err := f.coord.LogAutomationTrack(ctx, tracks.Descriptor{
		Title: "Trans-Europe Express", Artist: "Kraftwerk",
	}, 0)
	if err != nil {
		t.Fatalf("first log: %v", err)
	}
	second, err := f.coord.LogAutomationTrack(ctx, tracks.Descriptor{
		Title: "Europe Endless", Artist: "Kraftwerk",
	}, 0)
	if err != nil {
		t.Fatalf("second log: %v", err)
	}

	if first.SessionID == nil || second.SessionID == nil {
		t.Fatal("expected both plays to carry a session")
	}
	if *first.SessionID != *second.SessionID {
		t.Fatalf("plays landed in sessions %d and %d, want one shared session",
			*first.SessionID, *second.SessionID)
	}
	if got := f.openSessionCount(t); got != 1 {
		t.Fatalf("open sessions = %d, want 1", got)
	}
	if first.DJID != models.AutomationDJID {
		t.Fatalf("play dj = %d, want automation sentinel", first.DJID)
	}
	if first.Album != models.LabelNotAvailable || first.Label != models.LabelNotAvailable {
		t.Fatalf("expected placeholder album/label, got %q/%q", first.Album, first.Label)
	}
}

func TestLogTrackRenewsHumanActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "renewal")

	session, err := f.coord.StartHumanSession(ctx, dj.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	track, err := f.coord.matcher.FindOrCreate(ctx, tracks.Descriptor{
		Title: "Computer Love", Artist: "Kraftwerk",
	})
	if err != nil {
		t.Fatalf("resolve track: %v", err)
	}

	// Step past the original lease, log a play, and check the lease was
	// re-extended from the play's timestamp.
	base := time.Now()
	f.leases.SetClock(func() time.Time { return base.Add(29 * time.Minute) })

	play, err := f.coord.LogTrack(ctx, LogRequest{TrackID: track.ID, SessionID: &session.ID})
	if err != nil {
		t.Fatalf("log track: %v", err)
	}
	if play.Title != "Computer Love" || play.Artist != "Kraftwerk" {
		t.Fatalf("play not denormalized: %+v", play)
	}
	if play.DJID != dj.ID {
		t.Fatalf("play dj = %d, want %d", play.DJID, dj.ID)
	}

	f.leases.SetClock(func() time.Time { return base.Add(45 * time.Minute) })
	if active, _ := f.leases.ActivityPresent(ctx); !active {
		t.Fatal("expected lease renewed by the play")
	}
}

func TestLogoutAllForcesEverythingClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "marathon")

	if _, err := f.coord.StartHumanSession(ctx, dj.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.coord.LogoutAll(ctx, false); err != nil {
		t.Fatalf("logout all: %v", err)
	}

	if got := f.openSessionCount(t); got != 0 {
		t.Fatalf("open sessions = %d, want 0", got)
	}
	if _, found, _ := f.leases.OnAirDJ(ctx); found {
		t.Fatal("expected on-air dj pointer cleared")
	}
	if _, found, _ := f.leases.OnAirSession(ctx); found {
		t.Fatal("expected on-air session pointer cleared")
	}
}

func TestPruneEmptySessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "pruned")

	old := time.Now().UTC().Add(-48 * time.Hour)
	emptySession := &models.BroadcastSession{DJID: dj.ID, StartedAt: old, EndedAt: &old}
	if err := f.db.Create(emptySession).Error; err != nil {
		t.Fatalf("create empty session: %v", err)
	}

	playedSession := &models.BroadcastSession{DJID: dj.ID, StartedAt: old, EndedAt: &old}
	if err := f.db.Create(playedSession).Error; err != nil {
		t.Fatalf("create played session: %v", err)
	}
	track, err := f.coord.matcher.FindOrCreate(ctx, tracks.Descriptor{Title: "Keeper", Artist: "Anyone"})
	if err != nil {
		t.Fatalf("resolve track: %v", err)
	}
	play := &models.TrackPlayEvent{
		TrackID:   track.ID,
		PlayedAt:  old,
		SessionID: &playedSession.ID,
		DJID:      dj.ID,
		Title:     track.Title,
		Artist:    track.Artist,
	}
	if err := f.db.Create(play).Error; err != nil {
		t.Fatalf("create play: %v", err)
	}

	pruned, err := f.coord.PruneEmptySessions(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	if err := f.db.First(&models.BroadcastSession{}, emptySession.ID).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected empty session deleted, got %v", err)
	}
	if err := f.db.First(&models.BroadcastSession{}, playedSession.ID).Error; err != nil {
		t.Fatalf("expected played session kept: %v", err)
	}
}

func TestNowPlayingReturnsLatestPlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.coord.NowPlaying(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty log: got %v, want ErrNotFound", err)
	}

	if err := f.coord.enableAutomation(ctx); err != nil {
		t.Fatalf("enable automation: %v", err)
	}
	if _, err := f.coord.LogAutomationTrack(ctx, tracks.Descriptor{Title: "First", Artist: "A"}, 0); err != nil {
		t.Fatalf("first log: %v", err)
	}
	latest, err := f.coord.LogAutomationTrack(ctx, tracks.Descriptor{Title: "Second", Artist: "A"}, 0)
	if err != nil {
		t.Fatalf("second log: %v", err)
	}

	playing, err := f.coord.NowPlaying(ctx)
	if err != nil {
		t.Fatalf("now playing: %v", err)
	}
	if playing.ID != latest.ID || playing.Title != "Second" {
		t.Fatalf("now playing = %+v, want play %d", playing, latest.ID)
	}
}

func TestIsOnAir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dj := f.createDJ(t, "predicate")

	session, err := f.coord.StartHumanSession(ctx, dj.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if !f.coord.IsOnAir(ctx, session.ID) {
		t.Fatal("expected session on air")
	}
	if f.coord.IsOnAir(ctx, session.ID+1) {
		t.Fatal("expected other session off air")
	}

	if err := f.coord.EndSession(ctx, session.ID, dj.ID, EndOptions{}); err != nil {
		t.Fatalf("end: %v", err)
	}
	if f.coord.IsOnAir(ctx, session.ID) {
		t.Fatal("expected ended session off air")
	}
}
