/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package tracks resolves submitted track metadata to canonical track rows
// and keeps the track table deduplicated.
package tracks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_airlog/internal/events"
	"github.com/friendsincode/muninn_airlog/internal/models"
)

// ErrInvalidDescriptor indicates a descriptor missing required fields.
var ErrInvalidDescriptor = errors.New("track descriptor requires title and artist")

// Descriptor is submitted track metadata, already validated upstream of the
// transport layer except for the required title/artist check done here.
type Descriptor struct {
	Title  string
	Artist string
	Album  string
	Label  string

	ArtistMBID       *uuid.UUID
	RecordingMBID    *uuid.UUID
	ReleaseMBID      *uuid.UUID
	ReleaseGroupMBID *uuid.UUID
}

// Validate checks the required fields.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Artist) == "" {
		return ErrInvalidDescriptor
	}
	return nil
}

// normalized applies the sentinel to empty album and label values so
// automation feeds without full metadata still dedup against manual entries.
func (d Descriptor) normalized() Descriptor {
	if strings.TrimSpace(d.Album) == "" {
		d.Album = models.LabelNotAvailable
	}
	if strings.TrimSpace(d.Label) == "" {
		d.Label = models.LabelNotAvailable
	}
	return d
}

// Invalidator clears the playlist read cache after track mutations.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Matcher resolves descriptors against the track table.
type Matcher struct {
	db     *gorm.DB
	bus    *events.Bus
	cache  Invalidator
	logger zerolog.Logger
}

// NewMatcher creates a track matcher. cache may be nil.
func NewMatcher(db *gorm.DB, bus *events.Bus, cache Invalidator, logger zerolog.Logger) *Matcher {
	return &Matcher{
		db:     db,
		bus:    bus,
		cache:  cache,
		logger: logger.With().Str("component", "tracks").Logger(),
	}
}

// FindOrCreate resolves a descriptor to a canonical track, creating one on
// first sighting. Matching order: MusicBrainz identifier intersection when
// the descriptor carries a recording id plus a release or release-group id,
// then a case-insensitive exact match on the (artist, title, album, label)
// tuple, then insert.
func (m *Matcher) FindOrCreate(ctx context.Context, d Descriptor) (*models.Track, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d = d.normalized()

	var match models.Track
	var err error

	if d.RecordingMBID != nil && (d.ReleaseMBID != nil || d.ReleaseGroupMBID != nil) {
		query := m.db.WithContext(ctx).Where("recording_mbid = ?", d.RecordingMBID)
		if d.ReleaseMBID != nil {
			query = query.Where("release_mbid = ?", d.ReleaseMBID)
		}
		if d.ReleaseGroupMBID != nil {
			query = query.Where("releasegroup_mbid = ?", d.ReleaseGroupMBID)
		}
		err = query.First(&match).Error
	} else {
		err = m.db.WithContext(ctx).Where(
			"LOWER(artist) = LOWER(?) AND LOWER(title) = LOWER(?) AND LOWER(album) = LOWER(?) AND LOWER(label) = LOWER(?)",
			d.Artist, d.Title, d.Album, d.Label,
		).First(&match).Error
	}

	if err == nil {
		return &match, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("match track: %w", err)
	}

	track := &models.Track{
		Title:            d.Title,
		Artist:           d.Artist,
		Album:            d.Album,
		Label:            d.Label,
		Added:            time.Now().UTC(),
		ArtistMBID:       d.ArtistMBID,
		RecordingMBID:    d.RecordingMBID,
		ReleaseMBID:      d.ReleaseMBID,
		ReleaseGroupMBID: d.ReleaseGroupMBID,
	}
	if err := m.db.WithContext(ctx).Create(track).Error; err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}

	m.invalidate(ctx)
	m.bus.Publish(events.EventTrackCreated, events.Payload{
		"track_id": track.ID,
		"artist":   track.Artist,
		"title":    track.Title,
	})

	m.logger.Info().Uint("track_id", track.ID).Str("artist", track.Artist).Str("title", track.Title).Msg("track created")

	return track, nil
}

// DeduplicateAll merges every duplicate (artist, title, album, label) group
// into its lowest-id row, repointing play events before deleting the rest.
// One transaction per group; running it twice changes nothing the second
// time.
func (m *Matcher) DeduplicateAll(ctx context.Context, ignoreCase bool) (int, error) {
	type tuple struct {
		Artist string
		Title  string
		Album  string
		Label  string
	}

	query := m.db.WithContext(ctx).Model(&models.Track{})
	if ignoreCase {
		query = query.
			Select("LOWER(artist) AS artist, LOWER(title) AS title, LOWER(album) AS album, LOWER(label) AS label").
			Group("LOWER(artist), LOWER(title), LOWER(album), LOWER(label)")
	} else {
		query = query.
			Select("artist, title, album, label").
			Group("artist, title, album, label")
	}

	var dups []tuple
	if err := query.Having("COUNT(*) > 1").Scan(&dups).Error; err != nil {
		return 0, fmt.Errorf("find duplicate tracks: %w", err)
	}

	merged := 0
	for _, dup := range dups {
		mergedInto, count, err := m.mergeGroup(ctx, dup.Artist, dup.Title, dup.Album, dup.Label, ignoreCase)
		if err != nil {
			return merged, err
		}
		if count > 1 {
			merged++
			m.logger.Info().Int("duplicates", count-1).Uint("track_id", mergedInto).Msg("merged duplicate tracks")
		}
	}

	if merged > 0 {
		m.invalidate(ctx)
		m.bus.Publish(events.EventTrackMerged, events.Payload{"groups": merged})
	}
	return merged, nil
}

// DeduplicateByID merges all duplicates of one track into the lowest-id row
// of its tuple group.
func (m *Matcher) DeduplicateByID(ctx context.Context, id uint, ignoreCase bool) error {
	var source models.Track
	if err := m.db.WithContext(ctx).First(&source, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m.logger.Info().Uint("track_id", id).Msg("track not found for dedup")
			return nil
		}
		return fmt.Errorf("load track %d: %w", id, err)
	}

	mergedInto, count, err := m.mergeGroup(ctx, source.Artist, source.Title, source.Album, source.Label, ignoreCase)
	if err != nil {
		return err
	}
	if count > 1 {
		m.invalidate(ctx)
		m.bus.Publish(events.EventTrackMerged, events.Payload{"track_id": mergedInto})
		m.logger.Info().
			Int("duplicates", count-1).
			Uint("source_id", id).
			Uint("track_id", mergedInto).
			Msg("merged duplicate tracks")
	}
	return nil
}

// mergeGroup repoints all play events within one tuple group to the
// lowest-id track and deletes the rest, inside a single transaction.
func (m *Matcher) mergeGroup(ctx context.Context, artist, title, album, label string, ignoreCase bool) (uint, int, error) {
	var keep uint
	var count int

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Order("id")
		if ignoreCase {
			query = query.Where(
				"LOWER(artist) = LOWER(?) AND LOWER(title) = LOWER(?) AND LOWER(album) = LOWER(?) AND LOWER(label) = LOWER(?)",
				artist, title, album, label,
			)
		} else {
			query = query.Where(
				"artist = ? AND title = ? AND album = ? AND label = ?",
				artist, title, album, label,
			)
		}

		var group []models.Track
		if err := query.Find(&group).Error; err != nil {
			return fmt.Errorf("load duplicate group: %w", err)
		}

		count = len(group)
		if count == 0 {
			return nil
		}
		keep = group[0].ID
		if count == 1 {
			return nil
		}

		loserIDs := make([]uint, 0, count-1)
		for _, t := range group[1:] {
			loserIDs = append(loserIDs, t.ID)
		}

		if err := tx.Model(&models.TrackPlayEvent{}).
			Where("track_id IN ?", loserIDs).
			Update("track_id", keep).Error; err != nil {
			return fmt.Errorf("repoint play events: %w", err)
		}

		if err := tx.Where("id IN ?", loserIDs).Delete(&models.Track{}).Error; err != nil {
			return fmt.Errorf("delete duplicate tracks: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return keep, count, nil
}

// AutofillLabels merges "Not Available" rows into a sibling that shares the
// (artist, title, album) triple but carries a real label. The labeled row
// always wins. Returns the number of rows merged.
func (m *Matcher) AutofillLabels(ctx context.Context) (int, error) {
	var sentinelTracks []models.Track
	if err := m.db.WithContext(ctx).
		Where("label = ?", models.LabelNotAvailable).
		Find(&sentinelTracks).Error; err != nil {
		return 0, fmt.Errorf("find unlabeled tracks: %w", err)
	}

	merged := 0
	for _, na := range sentinelTracks {
		var labeled models.Track
		err := m.db.WithContext(ctx).Where(
			"artist = ? AND title = ? AND album = ? AND label <> ?",
			na.Artist, na.Title, na.Album, models.LabelNotAvailable,
		).Order("id").First(&labeled).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return merged, fmt.Errorf("find labeled sibling: %w", err)
		}

		err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.TrackPlayEvent{}).
				Where("track_id = ?", na.ID).
				Update("track_id", labeled.ID).Error; err != nil {
				return fmt.Errorf("repoint play events: %w", err)
			}
			return tx.Delete(&models.Track{}, na.ID).Error
		})
		if err != nil {
			return merged, err
		}

		merged++
		m.invalidate(ctx)
		m.logger.Info().Uint("from", na.ID).Uint("into", labeled.ID).Msg("autofilled label from sibling track")
	}

	if merged > 0 {
		m.bus.Publish(events.EventTrackMerged, events.Payload{"autofilled": merged})
	}
	return merged, nil
}

func (m *Matcher) invalidate(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("playlist cache invalidation failed")
	}
}
