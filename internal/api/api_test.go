package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_airlog/internal/events"
	"github.com/friendsincode/muninn_airlog/internal/lease"
	"github.com/friendsincode/muninn_airlog/internal/models"
	"github.com/friendsincode/muninn_airlog/internal/onair"
	"github.com/friendsincode/muninn_airlog/internal/tracks"
)

func setupTestAPI(t *testing.T) (chi.Router, *gorm.DB, *lease.MemoryStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
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
	if err := db.Create(&models.DJ{
		ID:        models.AutomationDJID,
		Airname:   "Automation",
		Name:      "Automation",
		TimeAdded: time.Now().UTC(),
	}).Error; err != nil {
		t.Fatalf("seed automation dj: %v", err)
	}

	leases := lease.NewMemory(30*time.Minute, 5*time.Minute)
	bus := events.NewBus()
	matcher := tracks.NewMatcher(db, bus, nil, zerolog.Nop())
	coord := onair.NewCoordinator(db, leases, matcher, bus, nil, nil, nil, 5*time.Second, zerolog.Nop())
	heartbeat := onair.NewHeartbeatDriver(coord, time.Minute, zerolog.Nop())

	a := New(db, coord, onair.NewAutomationController(coord), heartbeat, matcher, zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)
	return r, db, leases
}

func createTestDJ(t *testing.T, db *gorm.DB, airname string) *models.DJ {
	t.Helper()
	phone := "540-555-0199"
	email := airname + "@example.org"
	dj := &models.DJ{
		Airname:   airname,
		Name:      airname,
		Phone:     &phone,
		Email:     &email,
		TimeAdded: time.Now().UTC(),
		Visible:   true,
	}
	if err := db.Create(dj).Error; err != nil {
		t.Fatalf("create dj: %v", err)
	}
	return dj
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestAutomationLogSoftRejectWhenDisabled(t *testing.T) {
	r, _, leases := setupTestAPI(t)

	if err := leases.SetAutomation(context.Background(), false); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/automation/log", map[string]any{
		"artist": "Neu!", "title": "Hallogallo",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 soft reject", rr.Code)
	}

	var resp struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Fatal("expected success=false while automation disabled")
	}
}

func TestAutomationLogLogsWhenEnabled(t *testing.T) {
	r, db, leases := setupTestAPI(t)

	if err := leases.SetAutomation(context.Background(), true); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/automation/log", map[string]any{
		"artist": "Neu!", "title": "Hallogallo",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rr.Code, rr.Body.String())
	}

	var plays int64
	if err := db.Model(&models.TrackPlayEvent{}).Count(&plays).Error; err != nil {
		t.Fatalf("count plays: %v", err)
	}
	if plays != 1 {
		t.Fatalf("plays = %d, want 1", plays)
	}
}

func TestAutomationLogRejectsMissingFields(t *testing.T) {
	r, _, leases := setupTestAPI(t)
	if err := leases.SetAutomation(context.Background(), true); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/automation/log", map[string]any{"artist": "Neu!"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSessionStartEndRoundTrip(t *testing.T) {
	r, db, _ := setupTestAPI(t)
	dj := createTestDJ(t, db, "roundtrip")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]any{"dj_id": dj.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var started struct {
		SessionID uint `json:"session_id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%d", started.SessionID), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var got struct {
		OnAir bool `json:"on_air"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.OnAir {
		t.Fatal("expected started session on air")
	}

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/end", started.SessionID),
		map[string]any{"dj_id": dj.ID})
	if rr.Code != http.StatusOK {
		t.Fatalf("end status = %d, body=%s", rr.Code, rr.Body.String())
	}

	// Second end is a client error, not an internal one.
	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/end", started.SessionID),
		map[string]any{"dj_id": dj.ID})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("re-end status = %d, want 400", rr.Code)
	}
}

func TestSessionEndAuthorization(t *testing.T) {
	r, db, _ := setupTestAPI(t)
	owner := createTestDJ(t, db, "owner")
	other := createTestDJ(t, db, "other")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]any{"dj_id": owner.ID})
	if rr.Code != http.StatusCreated {
		t.Fatalf("start status = %d", rr.Code)
	}
	var started struct {
		SessionID uint `json:"session_id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/end", started.SessionID),
		map[string]any{"dj_id": other.ID})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}

	rr = doJSON(t, r, http.MethodPost, "/api/v1/sessions/99999/end", map[string]any{"dj_id": owner.ID})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestLogPlayAgainstSession(t *testing.T) {
	r, db, _ := setupTestAPI(t)
	dj := createTestDJ(t, db, "selector")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/sessions", map[string]any{"dj_id": dj.ID})
	var started struct {
		SessionID uint `json:"session_id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = doJSON(t, r, http.MethodPost, "/api/v1/tracks", map[string]any{
		"artist": "Can", "title": "Vitamin C", "album": "Ege Bamyasi", "label": "United Artists",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("track create status = %d", rr.Code)
	}
	var created struct {
		TrackID uint `json:"track_id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/plays", started.SessionID),
		map[string]any{"track_id": created.TrackID, "request": true})
	if rr.Code != http.StatusCreated {
		t.Fatalf("play status = %d, body=%s", rr.Code, rr.Body.String())
	}

	var play models.TrackPlayEvent
	if err := db.Order("id DESC").First(&play).Error; err != nil {
		t.Fatalf("load play: %v", err)
	}
	if play.TrackID != created.TrackID || !play.Request || play.Artist != "Can" {
		t.Fatalf("unexpected play %+v", play)
	}
}

func TestNowPlayingEmpty(t *testing.T) {
	r, _, _ := setupTestAPI(t)

	rr := doJSON(t, r, http.MethodGet, "/api/v1/now-playing", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Playing bool `json:"playing"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Playing {
		t.Fatal("expected playing=false with an empty log")
	}
}

func TestInvalidSessionIDRejected(t *testing.T) {
	r, _, _ := setupTestAPI(t)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/sessions/banana/end", map[string]any{"dj_id": 1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestInvalidMBIDRejected(t *testing.T) {
	r, _, leases := setupTestAPI(t)
	if err := leases.SetAutomation(context.Background(), true); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	rr := doJSON(t, r, http.MethodPost, "/api/v1/automation/log", map[string]any{
		"artist": "Neu!", "title": "Hallogallo", "recording_mbid": "not-a-uuid",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
