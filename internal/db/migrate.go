/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/muninn_airlog/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.DJ{},
		&models.BroadcastSession{},
		&models.Rotation{},
		&models.Track{},
		&models.TrackPlayEvent{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return seedAutomationDJ(database)
}

// seedAutomationDJ ensures the automation sentinel row exists with ID 1.
func seedAutomationDJ(database *gorm.DB) error {
	var count int64
	if err := database.Model(&models.DJ{}).
		Where("id = ?", models.AutomationDJID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check automation dj: %w", err)
	}
	if count > 0 {
		return nil
	}

	automation := &models.DJ{
		ID:        models.AutomationDJID,
		Airname:   "Automation",
		Name:      "Automation",
		TimeAdded: time.Now().UTC(),
		Visible:   false,
	}
	if err := database.Create(automation).Error; err != nil {
		return fmt.Errorf("seed automation dj: %w", err)
	}
	return nil
}

// PruneEmptySessions deletes ended sessions older than a day that logged
// no plays. Shared by the coordinator and the prune CLI command.
func PruneEmptySessions(ctx context.Context, database *gorm.DB) (int64, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	result := database.WithContext(ctx).
		Where("ended_at IS NOT NULL AND started_at < ?", cutoff).
		Where("id NOT IN (?)", database.Model(&models.TrackPlayEvent{}).
			Select("session_id").
			Where("session_id IS NOT NULL")).
		Delete(&models.BroadcastSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
