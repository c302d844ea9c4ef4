package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/calyptra/guildbot/internal/models"
)

// LevelRepository handles experience-ledger database operations.
type LevelRepository struct {
	db *DB
}

// NewLevelRepository creates a new level repository.
func NewLevelRepository(db *DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// Get retrieves the record for a (user, guild) pair, or nil when none exists.
func (r *LevelRepository) Get(userID, guildID string) (*models.LevelRecord, error) {
	var record models.LevelRecord
	err := r.db.Where("user_id = ? AND guild_id = ?", userID, guildID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get level record for user %s: %w", userID, err)
	}
	return &record, nil
}

// Create inserts a new record.
func (r *LevelRepository) Create(record *models.LevelRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create level record: %w", err)
	}
	return nil
}

// Update persists mutations to an existing record.
func (r *LevelRepository) Update(record *models.LevelRecord) error {
	if err := r.db.Save(record).Error; err != nil {
		return fmt.Errorf("failed to update level record: %w", err)
	}
	return nil
}

// Upsert creates the record for a (user, guild) pair or replaces its ledger
// fields when it already exists. Used by the member-join handler to seed a
// zeroed record.
func (r *LevelRepository) Upsert(record *models.LevelRecord) error {
	existing, err := r.Get(record.UserID, record.GuildID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.Create(record)
	}
	existing.Username = record.Username
	existing.XP = record.XP
	existing.Level = record.Level
	existing.MessageCount = record.MessageCount
	existing.LastMessageAt = record.LastMessageAt
	existing.JoinedAt = record.JoinedAt
	return r.Update(existing)
}

// Delete removes the record for a (user, guild) pair. The next qualifying
// message recreates it at level 1.
func (r *LevelRepository) Delete(userID, guildID string) error {
	result := r.db.Where("user_id = ? AND guild_id = ?", userID, guildID).Delete(&models.LevelRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete level record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Top retrieves the highest-XP records in a guild.
func (r *LevelRepository) Top(guildID string, limit int) ([]models.LevelRecord, error) {
	var records []models.LevelRecord
	err := r.db.Where("guild_id = ?", guildID).
		Order("xp DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list top level records: %w", err)
	}
	return records, nil
}

// CountByGuild returns how many users have a ledger row in the guild.
func (r *LevelRepository) CountByGuild(guildID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.LevelRecord{}).Where("guild_id = ?", guildID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count level records: %w", err)
	}
	return count, nil
}

// AverageLevel returns the mean level across the guild's ledger, 0 when empty.
func (r *LevelRepository) AverageLevel(guildID string) (float64, error) {
	var avg *float64
	err := r.db.Model(&models.LevelRecord{}).
		Where("guild_id = ?", guildID).
		Select("AVG(level)").
		Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("failed to average levels: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}
