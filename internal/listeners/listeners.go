/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package listeners polls an Icecast server for the current audience
// size so each logged play can carry a listener snapshot.
package listeners

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Poller fetches listener counts from Icecast's status-json.xsl
// endpoint. Count never fails the caller: a nil result means the count
// is unknown and the play is logged without one.
type Poller struct {
	statusURL string
	mounts    map[string]bool
	client    *http.Client
	logger    zerolog.Logger
}

// NewPoller builds a Poller for the given Icecast base URL. When mounts
// is non-empty, only those mount points are counted; otherwise every
// source on the server is summed.
func NewPoller(icecastURL string, mounts []string, logger zerolog.Logger) *Poller {
	filter := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		filter[m] = true
	}
	return &Poller{
		statusURL: icecastURL + "/status-json.xsl",
		mounts:    filter,
		client:    &http.Client{Timeout: 5 * time.Second},
		logger:    logger.With().Str("component", "listeners").Logger(),
	}
}

// icecastStatus mirrors the subset of status-json.xsl we read. Icecast
// emits "source" as an object for one mount and an array for several,
// so it is decoded in two passes.
type icecastStatus struct {
	Icestats struct {
		Source json.RawMessage `json:"source"`
	} `json:"icestats"`
}

type icecastSource struct {
	ListenURL string `json:"listenurl"`
	Mount     string `json:"mount"`
	Listeners int    `json:"listeners"`
}

// Count returns the summed listener count across the configured
// mounts, or nil if the server could not be reached or parsed.
func (p *Poller) Count(ctx context.Context) *int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.statusURL, nil)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to build icecast status request")
		return nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn().Err(err).Msg("icecast status fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn().Int("status", resp.StatusCode).Msg("icecast status fetch failed")
		return nil
	}

	var status icecastStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		p.logger.Warn().Err(err).Msg("failed to decode icecast status")
		return nil
	}

	sources, err := decodeSources(status.Icestats.Source)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to decode icecast sources")
		return nil
	}

	total := 0
	counted := false
	for _, src := range sources {
		if len(p.mounts) > 0 && !p.mounts[src.mountName()] {
			continue
		}
		total += src.Listeners
		counted = true
	}
	if !counted && len(p.mounts) > 0 {
		// None of the configured mounts were up.
		return nil
	}
	return &total
}

func decodeSources(raw json.RawMessage) ([]icecastSource, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var many []icecastSource
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}

	var one icecastSource
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("unexpected source shape: %w", err)
	}
	return []icecastSource{one}, nil
}

// mountName prefers the explicit mount field and falls back to the
// path component of listenurl, which is all older Icecast versions
// provide.
func (s icecastSource) mountName() string {
	if s.Mount != "" {
		return s.Mount
	}
	for i := len(s.ListenURL) - 1; i >= 0; i-- {
		if s.ListenURL[i] == '/' {
			return s.ListenURL[i:]
		}
	}
	return s.ListenURL
}
