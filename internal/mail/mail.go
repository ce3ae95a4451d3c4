/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mail delivers the two notification emails the arbiter sends:
// logout reminders when a session is force-closed, and end-of-session
// playlist summaries when a DJ asks for one.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_airlog/internal/config"
	"github.com/friendsincode/muninn_airlog/internal/models"
)

// Sender sends plain-text email over SMTP. A Sender with no configured
// host silently drops mail, so a development deployment without SMTP
// still works.
type Sender struct {
	cfg    config.Config
	logger zerolog.Logger
}

func NewSender(cfg config.Config, logger zerolog.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger.With().Str("component", "mail").Logger(),
	}
}

// SendLogoutReminder tells a DJ their session was closed automatically
// because they forgot to sign off.
func (s *Sender) SendLogoutReminder(ctx context.Context, dj *models.DJ) error {
	if dj.Email == nil || *dj.Email == "" {
		s.logger.Debug().Uint("dj_id", dj.ID).Msg("dj has no email, skipping reminder")
		return nil
	}

	subject := fmt.Sprintf("%s: you forgot to log out", s.cfg.StationName)

	body := strings.Builder{}
	fmt.Fprintf(&body, "Hi %s,\n\n", dj.Airname)
	fmt.Fprintf(&body, "Your session on %s was closed automatically because no activity\n", s.cfg.StationName)
	body.WriteString("was seen for a while. Please remember to log out when your show ends\n")
	body.WriteString("so automation can take over cleanly.\n")
	if s.cfg.StationURL != "" {
		fmt.Fprintf(&body, "\n%s\n", s.cfg.StationURL)
	}

	return s.send(ctx, *dj.Email, subject, body.String())
}

// SendPlaylistEmail mails a DJ the list of tracks they played this
// session.
func (s *Sender) SendPlaylistEmail(ctx context.Context, session *models.BroadcastSession, plays []models.TrackPlayEvent) error {
	if session.DJ == nil || session.DJ.Email == nil || *session.DJ.Email == "" {
		s.logger.Debug().Uint("session_id", session.ID).Msg("session dj has no email, skipping playlist")
		return nil
	}

	subject := fmt.Sprintf("%s: playlist for %s", s.cfg.StationName,
		session.StartedAt.Format("2006-01-02"))

	body := strings.Builder{}
	fmt.Fprintf(&body, "Playlist for your session starting %s\n\n",
		session.StartedAt.Format("2006-01-02 15:04 MST"))

	if len(plays) == 0 {
		body.WriteString("No tracks were logged this session.\n")
	}
	for _, play := range plays {
		fmt.Fprintf(&body, "%s  %s - %s", play.PlayedAt.Format("15:04"), play.Artist, play.Title)
		if play.Album != "" && play.Album != models.LabelNotAvailable {
			fmt.Fprintf(&body, " [%s]", play.Album)
		}
		if play.Request {
			body.WriteString(" (request)")
		}
		body.WriteString("\n")
	}
	if s.cfg.StationURL != "" {
		fmt.Fprintf(&body, "\n%s\n", s.cfg.StationURL)
	}

	return s.send(ctx, *session.DJ.Email, subject, body.String())
}

func (s *Sender) send(ctx context.Context, to, subject, body string) error {
	if s.cfg.SMTPHost == "" {
		s.logger.Debug().Str("to", to).Str("subject", subject).Msg("smtp not configured, dropping email")
		return nil
	}

	from := s.cfg.SMTPFrom
	if s.cfg.SMTPFromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.SMTPFromName, s.cfg.SMTPFrom)
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.SMTPFrom, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	s.logger.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
