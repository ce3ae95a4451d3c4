package onair

import "errors"

var (
	// ErrNotFound indicates an unknown session or track.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the acting party does not own the session.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyEnded indicates the session has already ended.
	ErrAlreadyEnded = errors.New("session has already ended")

	// ErrUnavailable indicates a transient lock or cache failure; the
	// caller may retry.
	ErrUnavailable = errors.New("temporarily unavailable")

	// ErrAutomationDisabled is the soft rejection for automation
	// submissions while automation is off: the track is accepted but not
	// logged, and the feed is expected to retry later.
	ErrAutomationDisabled = errors.New("automation not enabled")
)
