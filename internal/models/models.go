package models

import (
	"time"

	"github.com/google/uuid"
)

// AutomationDJID is the sentinel DJ row representing the unattended
// automation broadcaster.
const AutomationDJID uint = 1

// LabelNotAvailable is the sentinel stored when a submission carries no
// album or label metadata, so automation feeds still dedup against
// manually entered tracks.
const LabelNotAvailable = "Not Available"

// DJ represents a human broadcaster, or the automation sentinel (ID 1).
type DJ struct {
	ID        uint    `gorm:"primaryKey"`
	Airname   string  `gorm:"type:varchar(255)"`
	Name      string  `gorm:"type:varchar(255)"`
	Phone     *string `gorm:"type:varchar(12)"`
	Email     *string `gorm:"type:varchar(255)"`
	Genres    string  `gorm:"type:varchar(255)"`
	TimeAdded time.Time
	Visible   bool `gorm:"default:true"`
}

// BroadcastSession is a time-bounded record of one party being on air.
// An open session has EndedAt == nil. The arbiter enforces "at most one
// open session is authoritative" with row locks, not a unique index; see
// internal/onair.
type BroadcastSession struct {
	ID        uint `gorm:"primaryKey"`
	DJID      uint `gorm:"index"`
	DJ        *DJ
	StartedAt time.Time  `gorm:"index"`
	EndedAt   *time.Time `gorm:"index"`
}

// Open reports whether the session has not ended yet.
func (s *BroadcastSession) Open() bool {
	return s.EndedAt == nil
}

// Track is the canonical identity for a (title, artist, album, label)
// tuple, optionally enriched with MusicBrainz identifiers.
type Track struct {
	ID     uint   `gorm:"primaryKey"`
	Title  string `gorm:"type:varchar(500)"`
	Artist string `gorm:"type:varchar(255);index"`
	Album  string `gorm:"type:varchar(255)"`
	Label  string `gorm:"type:varchar(255)"`
	Added  time.Time

	ArtistMBID       *uuid.UUID `gorm:"type:uuid;column:artist_mbid"`
	RecordingMBID    *uuid.UUID `gorm:"type:uuid;column:recording_mbid"`
	ReleaseMBID      *uuid.UUID `gorm:"type:uuid;column:release_mbid"`
	ReleaseGroupMBID *uuid.UUID `gorm:"type:uuid;column:releasegroup_mbid"`
}

// Rotation classifies a play for chart reporting.
type Rotation struct {
	ID      uint   `gorm:"primaryKey"`
	Name    string `gorm:"type:varchar(255)"`
	Visible bool   `gorm:"default:true;not null"`
}

// TrackPlayEvent is the append-only record of one track play. The track
// tuple is denormalized at write time so later track edits and merges do
// not rewrite history.
type TrackPlayEvent struct {
	ID      uint `gorm:"primaryKey"`
	TrackID uint `gorm:"index"`
	Track   *Track

	PlayedAt time.Time

	SessionID *uint             `gorm:"index"`
	Session   *BroadcastSession `gorm:"foreignKey:SessionID"`

	// Denormalized owner at play time.
	DJID uint `gorm:"index"`

	Request    bool `gorm:"default:false"`
	Vinyl      bool `gorm:"default:false"`
	New        bool `gorm:"default:false"`
	RotationID *uint
	Rotation   *Rotation

	// Listener count snapshot at the start of the play; nil when the
	// stream status endpoint was unreachable.
	Listeners *int

	Title  string `gorm:"type:varchar(500)"`
	Artist string `gorm:"type:varchar(255);index"`
	Album  string `gorm:"type:varchar(255)"`
	Label  string `gorm:"type:varchar(255)"`
}
