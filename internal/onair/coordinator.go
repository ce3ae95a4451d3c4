/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package onair arbitrates which single party, human DJ or automation,
// owns the broadcast slot at any instant, and logs every track play
// exactly once against the right session.
//
// The relational store is the source of truth; the lease store is a fast
// path that is re-derived from storage whenever it is missing or
// unreachable. Within every operation the ordering is fixed: relational
// commit, then lease update, then event publish.
package onair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/muninn_airlog/internal/cache"
	"github.com/friendsincode/muninn_airlog/internal/db"
	"github.com/friendsincode/muninn_airlog/internal/events"
	"github.com/friendsincode/muninn_airlog/internal/lease"
	"github.com/friendsincode/muninn_airlog/internal/models"
	"github.com/friendsincode/muninn_airlog/internal/telemetry"
	"github.com/friendsincode/muninn_airlog/internal/tracks"
)

// Mailer sends best-effort notification email. Failures are logged, never
// fatal to the triggering operation.
type Mailer interface {
	SendLogoutReminder(ctx context.Context, dj *models.DJ) error
	SendPlaylistEmail(ctx context.Context, session *models.BroadcastSession, plays []models.TrackPlayEvent) error
}

// ListenerCounter snapshots the stream listener count. A nil result means
// the count was unavailable.
type ListenerCounter interface {
	Count(ctx context.Context) *int
}

// Coordinator owns the lifecycle of broadcast sessions and the track log.
type Coordinator struct {
	db        *gorm.DB
	leases    lease.Store
	matcher   *tracks.Matcher
	bus       *events.Bus
	cache     *cache.Cache
	mailer    Mailer
	listeners ListenerCounter
	logger    zerolog.Logger

	// lockWait bounds acquisition of the open-session row locks.
	lockWait time.Duration
}

// NewCoordinator creates a session coordinator. cache, mailer, and
// listeners may be nil.
func NewCoordinator(
	db *gorm.DB,
	leases lease.Store,
	matcher *tracks.Matcher,
	bus *events.Bus,
	playCache *cache.Cache,
	mailer Mailer,
	listeners ListenerCounter,
	lockWait time.Duration,
	logger zerolog.Logger,
) *Coordinator {
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &Coordinator{
		db:        db,
		leases:    leases,
		matcher:   matcher,
		bus:       bus,
		cache:     playCache,
		mailer:    mailer,
		listeners: listeners,
		logger:    logger.With().Str("component", "onair").Logger(),
		lockWait:  lockWait,
	}
}

// lockedTransaction runs fn inside a transaction with a bounded deadline on
// the row-lock acquisition. A deadline overrun surfaces as ErrUnavailable.
func (c *Coordinator) lockedTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
	defer cancel()

	err := c.db.WithContext(lockCtx).Transaction(fn)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(lockCtx.Err(), context.DeadlineExceeded)) {
		return fmt.Errorf("%w: open-session lock wait exceeded %s", ErrUnavailable, c.lockWait)
	}
	return err
}

// closeStragglers scans every currently open session under a row lock,
// most recent first, closes the ones that do not belong to ownerID, and
// returns an already-open session for ownerID if one exists. Must run
// inside a locked transaction; it does not commit.
func (c *Coordinator) closeStragglers(tx *gorm.DB, ownerID uint) (*models.BroadcastSession, error) {
	var open []models.BroadcastSession
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("ended_at IS NULL").
		Order("started_at DESC").
		Find(&open).Error; err != nil {
		return nil, fmt.Errorf("scan open sessions: %w", err)
	}

	now := time.Now().UTC()
	var current *models.BroadcastSession
	for i := range open {
		if current == nil && open[i].DJID == ownerID {
			current = &open[i]
			continue
		}
		if err := tx.Model(&models.BroadcastSession{}).
			Where("id = ?", open[i].ID).
			Update("ended_at", now).Error; err != nil {
			return nil, fmt.Errorf("close straggler session %d: %w", open[i].ID, err)
		}
		c.logger.Info().Uint("session_id", open[i].ID).Uint("dj_id", open[i].DJID).Msg("closed straggler session")
	}
	return current, nil
}

// StartHumanSession begins a broadcast session for a human DJ. Any other
// open session is closed under lock; an already-open session for the same
// DJ is reused. Automation is switched off as part of the handoff.
func (c *Coordinator) StartHumanSession(ctx context.Context, djID uint) (*models.BroadcastSession, error) {
	var dj models.DJ
	if err := c.db.WithContext(ctx).First(&dj, djID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: dj %d", ErrNotFound, djID)
		}
		return nil, fmt.Errorf("load dj: %w", err)
	}
	if dj.ID == models.AutomationDJID {
		return nil, fmt.Errorf("%w: automation cannot start a human session", ErrForbidden)
	}
	if dj.Phone == nil || dj.Email == nil {
		return nil, fmt.Errorf("%w: dj profile incomplete", ErrForbidden)
	}

	c.disableAutomation(ctx)

	var session *models.BroadcastSession
	err := c.lockedTransaction(ctx, func(tx *gorm.DB) error {
		current, err := c.closeStragglers(tx, djID)
		if err != nil {
			return err
		}
		if current != nil {
			session = current
			return nil
		}
		session = &models.BroadcastSession{DJID: djID, StartedAt: time.Now().UTC()}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, err
	}

	// Commit is durable; everything below is fast-path state and fan-out.
	c.leaseUpdate(ctx, func() error { return c.leases.SetOnAirDJ(ctx, djID) })
	c.leaseUpdate(ctx, func() error { return c.leases.SetOnAirSession(ctx, session.ID) })
	c.leaseUpdate(ctx, func() error { return c.leases.RenewActivity(ctx) })

	c.invalidate(ctx)
	c.bus.Publish(events.EventSessionStart, events.Payload{
		"session_id": session.ID,
		"dj_id":      djID,
	})
	telemetry.SessionsStarted.Inc()

	c.logger.Info().Uint("session_id", session.ID).Uint("dj_id", djID).Msg("human session started")
	return session, nil
}

// EndOptions controls optional end-of-session behavior.
type EndOptions struct {
	// EmailPlaylist sends the session playlist to the DJ, best effort.
	EmailPlaylist bool
}

// EndSession ends a session owned by requesterID. Ending a session that is
// not yours is ErrForbidden; ending one twice is ErrAlreadyEnded.
func (c *Coordinator) EndSession(ctx context.Context, sessionID, requesterID uint, opts EndOptions) error {
	var session models.BroadcastSession
	err := c.lockedTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: session %d", ErrNotFound, sessionID)
			}
			return fmt.Errorf("load session: %w", err)
		}
		if session.DJID != requesterID {
			return fmt.Errorf("%w: session %d belongs to dj %d", ErrForbidden, sessionID, session.DJID)
		}
		if session.EndedAt != nil {
			return ErrAlreadyEnded
		}
		now := time.Now().UTC()
		session.EndedAt = &now
		return tx.Model(&models.BroadcastSession{}).
			Where("id = ?", sessionID).
			Update("ended_at", now).Error
	})
	if err != nil {
		return err
	}

	// Drop the on-air pointer only when it still names this session.
	if onair, found, leaseErr := c.leases.OnAirSession(ctx); leaseErr == nil && found && onair == sessionID {
		c.leaseUpdate(ctx, func() error { return c.leases.ClearOnAirSession(ctx) })
	} else if leaseErr != nil {
		c.logger.Warn().Err(leaseErr).Msg("lease read failed while ending session")
	}
	c.leaseUpdate(ctx, func() error { return c.leases.ClearTimeoutOverride(ctx) })
	// Shortened grace lease so automation failover does not wait for the
	// full inactivity timeout.
	c.leaseUpdate(ctx, func() error { return c.leases.SuspendActivity(ctx) })

	c.invalidate(ctx)
	c.bus.Publish(events.EventSessionEnd, events.Payload{
		"session_id": sessionID,
		"dj_id":      session.DJID,
	})
	telemetry.SessionsEnded.Inc()

	if opts.EmailPlaylist {
		c.emailPlaylist(ctx, &session)
	}

	c.logger.Info().Uint("session_id", sessionID).Uint("dj_id", session.DJID).Msg("session ended")
	return nil
}

// ResolveAutomationSession returns the session automation plays should log
// against, reusing the cached on-air session when it is still owned by
// ownerID and otherwise re-deriving under lock. Safe to call concurrently:
// the loser of a create race observes the winner's row under lock and
// reuses it.
func (c *Coordinator) ResolveAutomationSession(ctx context.Context, ownerID uint) (uint, error) {
	if ownerID == 0 {
		ownerID = models.AutomationDJID
	}

	cachedSession, sessionFound, err := c.leases.OnAirSession(ctx)
	if err == nil && sessionFound {
		cachedDJ, djFound, djErr := c.leases.OnAirDJ(ctx)
		if djErr == nil && djFound && cachedDJ == ownerID {
			return cachedSession, nil
		}
		if djErr != nil {
			err = djErr
		}
	}
	if err != nil {
		// Unknown cache state: never assume exclusivity, re-derive below.
		c.logger.Warn().Err(err).Msg("lease lookup failed, re-deriving on-air session from storage")
	}

	var session *models.BroadcastSession
	resolve := func() error {
		return c.lockedTransaction(ctx, func(tx *gorm.DB) error {
			current, err := c.closeStragglers(tx, ownerID)
			if err != nil {
				return err
			}
			if current != nil {
				session = current
				return nil
			}
			session = &models.BroadcastSession{DJID: ownerID, StartedAt: time.Now().UTC()}
			if err := tx.Create(session).Error; err != nil {
				return err
			}
			c.logger.Info().Uint("session_id", session.ID).Uint("dj_id", ownerID).Msg("automation session created")
			return nil
		})
	}

	// The operation re-derives state from scratch, so one automatic retry
	// on a storage conflict is safe.
	if err := resolve(); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return 0, err
		}
		c.logger.Warn().Err(err).Msg("automation session resolution failed, retrying once")
		if err := resolve(); err != nil {
			return 0, err
		}
	}

	c.leaseUpdate(ctx, func() error { return c.leases.SetOnAirDJ(ctx, ownerID) })
	c.leaseUpdate(ctx, func() error { return c.leases.SetOnAirSession(ctx, session.ID) })

	c.invalidate(ctx)
	return session.ID, nil
}

// LogRequest describes one play to record.
type LogRequest struct {
	TrackID    uint
	SessionID  *uint
	Request    bool
	Vinyl      bool
	New        bool
	RotationID *uint
}

// LogTrack records one play of a resolved track against a session. The
// track tuple is denormalized onto the play row at write time.
func (c *Coordinator) LogTrack(ctx context.Context, req LogRequest) (*models.TrackPlayEvent, error) {
	var track models.Track
	if err := c.db.WithContext(ctx).First(&track, req.TrackID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: track %d", ErrNotFound, req.TrackID)
		}
		return nil, fmt.Errorf("load track: %w", err)
	}

	djID := models.AutomationDJID
	if req.SessionID != nil {
		var session models.BroadcastSession
		if err := c.db.WithContext(ctx).First(&session, *req.SessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: session %d", ErrNotFound, *req.SessionID)
			}
			return nil, fmt.Errorf("load session: %w", err)
		}
		djID = session.DJID
	}

	play := &models.TrackPlayEvent{
		TrackID:    track.ID,
		PlayedAt:   time.Now().UTC(),
		SessionID:  req.SessionID,
		DJID:       djID,
		Request:    req.Request,
		Vinyl:      req.Vinyl,
		New:        req.New,
		RotationID: req.RotationID,
		Listeners:  c.listenerCount(ctx),
		Title:      track.Title,
		Artist:     track.Artist,
		Album:      track.Album,
		Label:      track.Label,
	}
	if err := c.db.WithContext(ctx).Create(play).Error; err != nil {
		return nil, fmt.Errorf("create play: %w", err)
	}

	if djID != models.AutomationDJID {
		c.leaseUpdate(ctx, func() error { return c.leases.RenewActivity(ctx) })
	}

	c.invalidate(ctx)
	c.bus.Publish(events.EventTrackChange, playPayload(play))
	telemetry.TracksLogged.Inc()

	c.logger.Debug().Uint("play_id", play.ID).Uint("track_id", track.ID).Uint("dj_id", djID).Msg("track logged")
	return play, nil
}

// LogAutomationTrack resolves and logs a track submitted by the automation
// feed. While automation is disabled the submission is accepted but not
// logged (ErrAutomationDisabled, a soft rejection).
func (c *Coordinator) LogAutomationTrack(ctx context.Context, d tracks.Descriptor, ownerID uint) (*models.TrackPlayEvent, error) {
	if ownerID == 0 {
		ownerID = models.AutomationDJID
	}

	enabled, err := c.automationEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ErrAutomationDisabled
	}

	track, err := c.matcher.FindOrCreate(ctx, d)
	if err != nil {
		return nil, err
	}

	sessionID, err := c.ResolveAutomationSession(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	// The flag may have flipped while we resolved the session; a human
	// taking over mid-request must win.
	enabled, err = c.automationEnabled(ctx)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ErrAutomationDisabled
	}

	return c.LogTrack(ctx, LogRequest{TrackID: track.ID, SessionID: &sessionID})
}

// LogoutAll force-closes every open session, clears the on-air pointers,
// and optionally sends each affected human DJ a logout reminder.
func (c *Coordinator) LogoutAll(ctx context.Context, sendEmail bool) error {
	c.leaseUpdate(ctx, func() error { return c.leases.ClearOnAir(ctx) })

	var closed []models.BroadcastSession
	err := c.lockedTransaction(ctx, func(tx *gorm.DB) error {
		var open []models.BroadcastSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("ended_at IS NULL").
			Order("started_at DESC").
			Find(&open).Error; err != nil {
			return fmt.Errorf("scan open sessions: %w", err)
		}
		now := time.Now().UTC()
		for i := range open {
			if err := tx.Model(&models.BroadcastSession{}).
				Where("id = ?", open[i].ID).
				Update("ended_at", now).Error; err != nil {
				return fmt.Errorf("close session %d: %w", open[i].ID, err)
			}
		}
		closed = open
		return nil
	})
	if err != nil {
		return err
	}

	if sendEmail && c.mailer != nil {
		for _, session := range closed {
			if session.DJID == models.AutomationDJID {
				continue
			}
			var dj models.DJ
			if err := c.db.WithContext(ctx).First(&dj, session.DJID).Error; err != nil {
				c.logger.Warn().Err(err).Uint("dj_id", session.DJID).Msg("failed to load dj for logout reminder")
				continue
			}
			if err := c.mailer.SendLogoutReminder(ctx, &dj); err != nil {
				c.logger.Warn().Err(err).Uint("dj_id", dj.ID).Msg("failed to send logout reminder")
			}
		}
	}

	c.leaseUpdate(ctx, func() error { return c.leases.ClearTimeoutOverride(ctx) })

	c.invalidate(ctx)
	c.bus.Publish(events.EventSessionEnd, events.Payload{"forced": true})

	if len(closed) > 0 {
		c.logger.Info().Int("count", len(closed)).Msg("force-closed open sessions")
	}
	return nil
}

// PruneEmptySessions deletes ended sessions older than a day that logged
// no plays.
func (c *Coordinator) PruneEmptySessions(ctx context.Context) (int64, error) {
	pruned, err := db.PruneEmptySessions(ctx, c.db)
	if err != nil {
		return 0, err
	}

	if pruned > 0 {
		c.invalidate(ctx)
		c.logger.Debug().Int64("count", pruned).Msg("removed empty sessions")
	}
	return pruned, nil
}

// SetTimeoutOverride extends the inactivity timeout for the current show,
// for marathon sets and remote broadcasts. A zero ttl restores the default.
// The override applies on the next activity renewal and is cleared again
// when the session ends.
func (c *Coordinator) SetTimeoutOverride(ctx context.Context, ttl time.Duration) error {
	var err error
	if ttl <= 0 {
		err = c.leases.ClearTimeoutOverride(ctx)
	} else {
		err = c.leases.SetTimeoutOverride(ctx, ttl)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.logger.Info().Dur("ttl", ttl).Msg("inactivity timeout override updated")
	return nil
}

// IsOnAir reports whether sessionID is the current on-air session. Used as
// the authorization predicate by the session layer.
func (c *Coordinator) IsOnAir(ctx context.Context, sessionID uint) bool {
	onair, found, err := c.leases.OnAirSession(ctx)
	if err != nil || !found {
		return false
	}
	return onair == sessionID
}

// NowPlaying returns the latest play, cache first.
func (c *Coordinator) NowPlaying(ctx context.Context) (*cache.CachedPlay, error) {
	if c.cache != nil {
		if play, ok := c.cache.GetNowPlaying(ctx); ok {
			return play, nil
		}
	}

	var play models.TrackPlayEvent
	if err := c.db.WithContext(ctx).Order("id DESC").First(&play).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no plays logged", ErrNotFound)
		}
		return nil, fmt.Errorf("load latest play: %w", err)
	}

	cached := &cache.CachedPlay{
		ID:        play.ID,
		TrackID:   play.TrackID,
		SessionID: play.SessionID,
		DJID:      play.DJID,
		Title:     play.Title,
		Artist:    play.Artist,
		Album:     play.Album,
		Label:     play.Label,
		PlayedAt:  play.PlayedAt.Format(time.RFC3339),
		Listeners: play.Listeners,
	}
	if c.cache != nil {
		_ = c.cache.SetNowPlaying(ctx, cached)
	}
	return cached, nil
}

// automationEnabled reads the automation flag, falling back to a relational
// re-derivation when the lease store cannot answer: an open session owned
// by the automation sentinel means automation is effectively running.
func (c *Coordinator) automationEnabled(ctx context.Context) (bool, error) {
	flag, err := c.leases.AutomationFlag(ctx)
	if err == nil {
		return flag == lease.FlagTrue, nil
	}
	c.logger.Warn().Err(err).Msg("lease read failed, deriving automation state from storage")

	var count int64
	if dbErr := c.db.WithContext(ctx).Model(&models.BroadcastSession{}).
		Where("dj_id = ? AND ended_at IS NULL", models.AutomationDJID).
		Count(&count).Error; dbErr != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, dbErr)
	}
	return count > 0, nil
}

// disableAutomation flips the automation flag off, ends the cached
// automation session, and resets the activity lease. Lease failures are
// logged; the durable handoff does not depend on them.
func (c *Coordinator) disableAutomation(ctx context.Context) {
	flag, err := c.leases.AutomationFlag(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("lease read failed while disabling automation")
	}
	if err == nil && flag != lease.FlagTrue {
		return
	}

	automationSession, found, err := c.leases.OnAirSession(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("lease read failed while resolving automation session")
		found = false
	}

	c.leaseUpdate(ctx, func() error { return c.leases.SetAutomation(ctx, false) })
	c.leaseUpdate(ctx, func() error { return c.leases.ClearOnAir(ctx) })
	c.logger.Info().Msg("automation disabled")
	telemetry.AutomationTransitions.WithLabelValues("disabled").Inc()
	c.bus.Publish(events.EventAutomationDisabled, events.Payload{})

	if found {
		err := c.lockedTransaction(ctx, func(tx *gorm.DB) error {
			var session models.BroadcastSession
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&session, automationSession).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					c.logger.Warn().Uint("session_id", automationSession).Msg("cached automation session not found in storage")
					return nil
				}
				return err
			}
			if session.EndedAt != nil || session.DJID != models.AutomationDJID {
				return nil
			}
			now := time.Now().UTC()
			if err := tx.Model(&models.BroadcastSession{}).
				Where("id = ?", session.ID).
				Update("ended_at", now).Error; err != nil {
				return err
			}
			c.logger.Info().Uint("session_id", session.ID).Msg("automation session ended")
			return nil
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to end automation session")
		} else {
			c.invalidate(ctx)
		}
	}

	c.leaseUpdate(ctx, func() error { return c.leases.RenewActivity(ctx) })
}

// enableAutomation flips the flag on, once per actual transition.
func (c *Coordinator) enableAutomation(ctx context.Context) error {
	flag, err := c.leases.AutomationFlag(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if flag == lease.FlagTrue {
		return nil
	}
	if err := c.leases.SetAutomation(ctx, true); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.logger.Warn().Msg("automation enabled")
	telemetry.AutomationTransitions.WithLabelValues("enabled").Inc()
	c.bus.Publish(events.EventAutomationEnabled, events.Payload{})
	return nil
}

func (c *Coordinator) emailPlaylist(ctx context.Context, session *models.BroadcastSession) {
	if c.mailer == nil {
		return
	}
	if session.DJ == nil {
		var dj models.DJ
		if err := c.db.WithContext(ctx).First(&dj, session.DJID).Error; err != nil {
			c.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("failed to load dj for playlist email")
			return
		}
		session.DJ = &dj
	}
	var plays []models.TrackPlayEvent
	if err := c.db.WithContext(ctx).
		Where("session_id = ?", session.ID).
		Order("played_at").
		Find(&plays).Error; err != nil {
		c.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("failed to load playlist for email")
		return
	}
	if err := c.mailer.SendPlaylistEmail(ctx, session, plays); err != nil {
		c.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("failed to send playlist email")
	}
}

func (c *Coordinator) listenerCount(ctx context.Context) *int {
	if c.listeners == nil {
		return nil
	}
	return c.listeners.Count(ctx)
}

// leaseUpdate applies a lease mutation after a successful commit. Failures
// only degrade the fast path, so they are logged and swallowed.
func (c *Coordinator) leaseUpdate(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		c.logger.Warn().Err(err).Msg("lease update failed")
	}
}

func (c *Coordinator) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("playlist cache invalidation failed")
	}
}

func playPayload(play *models.TrackPlayEvent) events.Payload {
	payload := events.Payload{
		"play_id":  play.ID,
		"track_id": play.TrackID,
		"dj_id":    play.DJID,
		"title":    play.Title,
		"artist":   play.Artist,
		"album":    play.Album,
		"label":    play.Label,
		"played":   play.PlayedAt.Format(time.RFC3339),
		"request":  play.Request,
		"vinyl":    play.Vinyl,
		"new":      play.New,
	}
	if play.SessionID != nil {
		payload["session_id"] = *play.SessionID
	}
	if play.Listeners != nil {
		payload["listeners"] = *play.Listeners
	}
	return payload
}
