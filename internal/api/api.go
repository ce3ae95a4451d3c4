/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api is the thin HTTP adapter over the on-air coordinator. It
// owns no arbitration logic; handlers decode, delegate, and map errors
// to status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_airlog/internal/models"
	"github.com/friendsincode/muninn_airlog/internal/onair"
	"github.com/friendsincode/muninn_airlog/internal/tracks"
)

// API exposes HTTP handlers.
type API struct {
	db         *gorm.DB
	coord      *onair.Coordinator
	automation *onair.AutomationController
	heartbeat  *onair.HeartbeatDriver
	matcher    *tracks.Matcher
	logger     zerolog.Logger
}

// New creates the API router wrapper.
func New(db *gorm.DB, coord *onair.Coordinator, automation *onair.AutomationController, heartbeat *onair.HeartbeatDriver, matcher *tracks.Matcher, logger zerolog.Logger) *API {
	return &API{
		db:         db,
		coord:      coord,
		automation: automation,
		heartbeat:  heartbeat,
		matcher:    matcher,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Get("/now-playing", a.handleNowPlaying)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", a.handleSessionStart)
			r.Post("/logout-all", a.handleLogoutAll)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", a.handleSessionGet)
				r.Post("/end", a.handleSessionEnd)
				r.Post("/plays", a.handleLogPlay)
			})
		})

		r.Route("/automation", func(r chi.Router) {
			r.Post("/log", a.handleAutomationLog)
			r.Post("/enable", a.handleAutomationEnable)
			r.Post("/disable", a.handleAutomationDisable)
			r.Get("/", a.handleAutomationStatus)
		})

		r.Post("/tracks", a.handleTrackCreate)

		// Endpoints for studio tooling and cron, not the public site.
		r.Route("/internal", func(r chi.Router) {
			r.Get("/ping", a.handlePing)
			r.Post("/heartbeat", a.handleHeartbeat)
			r.Post("/timeout", a.handleTimeoutOverride)
		})
	})
}

type trackDescriptorRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Label  string `json:"label"`

	ArtistMBID       string `json:"artist_mbid"`
	RecordingMBID    string `json:"recording_mbid"`
	ReleaseMBID      string `json:"release_mbid"`
	ReleaseGroupMBID string `json:"releasegroup_mbid"`
}

// descriptor converts the wire shape, tolerating absent MBIDs but
// rejecting malformed ones.
func (t trackDescriptorRequest) descriptor() (tracks.Descriptor, error) {
	d := tracks.Descriptor{
		Title:  t.Title,
		Artist: t.Artist,
		Album:  t.Album,
		Label:  t.Label,
	}

	for _, field := range []struct {
		raw  string
		dest **uuid.UUID
	}{
		{t.ArtistMBID, &d.ArtistMBID},
		{t.RecordingMBID, &d.RecordingMBID},
		{t.ReleaseMBID, &d.ReleaseMBID},
		{t.ReleaseGroupMBID, &d.ReleaseGroupMBID},
	} {
		if field.raw == "" {
			continue
		}
		id, err := uuid.Parse(field.raw)
		if err != nil {
			return d, err
		}
		*field.dest = &id
	}
	return d, nil
}

type automationLogRequest struct {
	trackDescriptorRequest
	DJID uint `json:"dj_id"`
}

type sessionStartRequest struct {
	DJID uint `json:"dj_id"`
}

type sessionEndRequest struct {
	DJID          uint `json:"dj_id"`
	EmailPlaylist bool `json:"email_playlist"`
}

type logPlayRequest struct {
	TrackID    uint  `json:"track_id"`
	Request    bool  `json:"request"`
	Vinyl      bool  `json:"vinyl"`
	New        bool  `json:"new"`
	RotationID *uint `json:"rotation_id"`
}

type logoutAllRequest struct {
	SendEmail bool `json:"send_email"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAutomationLog accepts one play from the automation feed. A 200
// with success=false means the submission was understood but not logged
// because a human holds the slot; the feed should not retry it.
func (a *API) handleAutomationLog(w http.ResponseWriter, r *http.Request) {
	var req automationLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	d, err := req.descriptor()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mbid")
		return
	}

	play, err := a.coord.LogAutomationTrack(r.Context(), d, req.DJID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "play_id": play.ID})
	case errors.Is(err, onair.ErrAutomationDisabled):
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
	case errors.Is(err, tracks.ErrInvalidDescriptor):
		writeError(w, http.StatusBadRequest, "artist_and_title_required")
	case errors.Is(err, onair.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "arbiter_unavailable")
	default:
		a.logger.Error().Err(err).Msg("automation log failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (a *API) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DJID == 0 {
		writeError(w, http.StatusBadRequest, "dj_id_required")
		return
	}

	session, err := a.coord.StartHumanSession(r.Context(), req.DJID)
	if err != nil {
		a.writeCoordError(w, err, "session start failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"session_id": session.ID,
	})
}

func (a *API) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.sessionID(w, r)
	if !ok {
		return
	}

	var session models.BroadcastSession
	if err := a.db.WithContext(r.Context()).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": session.ID,
		"dj_id":      session.DJID,
		"started_at": session.StartedAt,
		"ended_at":   session.EndedAt,
		"on_air":     a.coord.IsOnAir(r.Context(), session.ID),
	})
}

func (a *API) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	id, ok := a.sessionID(w, r)
	if !ok {
		return
	}

	var req sessionEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	err := a.coord.EndSession(r.Context(), id, req.DJID, onair.EndOptions{EmailPlaylist: req.EmailPlaylist})
	if err != nil {
		a.writeCoordError(w, err, "session end failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleLogPlay(w http.ResponseWriter, r *http.Request) {
	id, ok := a.sessionID(w, r)
	if !ok {
		return
	}

	var req logPlayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.TrackID == 0 {
		writeError(w, http.StatusBadRequest, "track_id_required")
		return
	}

	play, err := a.coord.LogTrack(r.Context(), onair.LogRequest{
		TrackID:    req.TrackID,
		SessionID:  &id,
		Request:    req.Request,
		Vinyl:      req.Vinyl,
		New:        req.New,
		RotationID: req.RotationID,
	})
	if err != nil {
		a.writeCoordError(w, err, "play log failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"play_id": play.ID,
	})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	var req logoutAllRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	if err := a.coord.LogoutAll(r.Context(), req.SendEmail); err != nil {
		a.writeCoordError(w, err, "logout all failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleTrackCreate(w http.ResponseWriter, r *http.Request) {
	var req trackDescriptorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	d, err := req.descriptor()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mbid")
		return
	}

	track, err := a.matcher.FindOrCreate(r.Context(), d)
	if err != nil {
		if errors.Is(err, tracks.ErrInvalidDescriptor) {
			writeError(w, http.StatusBadRequest, "artist_and_title_required")
			return
		}
		a.logger.Error().Err(err).Msg("track create failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"track_id": track.ID,
	})
}

func (a *API) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	play, err := a.coord.NowPlaying(r.Context())
	if errors.Is(err, onair.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"playing": false})
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("now playing lookup failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playing": true, "play": play})
}

func (a *API) handleAutomationEnable(w http.ResponseWriter, r *http.Request) {
	if err := a.automation.Enable(r.Context()); err != nil {
		a.writeCoordError(w, err, "automation enable failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleAutomationDisable(w http.ResponseWriter, r *http.Request) {
	if err := a.automation.Disable(r.Context()); err != nil {
		a.writeCoordError(w, err, "automation disable failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleAutomationStatus(w http.ResponseWriter, r *http.Request) {
	enabled, err := a.automation.IsEnabled(r.Context())
	if err != nil {
		a.writeCoordError(w, err, "automation status failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": enabled})
}

func (a *API) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHeartbeat runs one inactivity check immediately instead of
// waiting for the next scheduled tick.
func (a *API) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := a.heartbeat.Heartbeat(r.Context()); err != nil {
		a.writeCoordError(w, err, "heartbeat failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleTimeoutOverride adjusts the DJ inactivity timeout for the current
// show. seconds=0 restores the configured default.
func (a *API) handleTimeoutOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Seconds < 0 {
		writeError(w, http.StatusBadRequest, "seconds_must_be_non_negative")
		return
	}

	if err := a.coord.SetTimeoutOverride(r.Context(), time.Duration(req.Seconds)*time.Second); err != nil {
		a.writeCoordError(w, err, "timeout override failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) sessionID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "sessionID")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid_session_id")
		return 0, false
	}
	return uint(id), true
}

// writeCoordError maps coordinator errors to HTTP statuses.
func (a *API) writeCoordError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, onair.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, onair.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, onair.ErrAlreadyEnded):
		writeError(w, http.StatusBadRequest, "session_already_ended")
	case errors.Is(err, onair.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "arbiter_unavailable")
	default:
		a.logger.Error().Err(err).Msg(logMsg)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
