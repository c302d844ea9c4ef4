package repository

import (
	"fmt"

	"github.com/calyptra/guildbot/internal/models"
)

// AuditRepository handles the append-only moderation audit tables.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// RecordDeletedMessage appends a deleted-message snapshot.
func (r *AuditRepository) RecordDeletedMessage(record *models.DeletedMessage) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to record deleted message: %w", err)
	}
	return nil
}

// RecordMemberLeave appends a member departure.
func (r *AuditRepository) RecordMemberLeave(record *models.MemberLeave) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to record member leave: %w", err)
	}
	return nil
}

// RecentDeletedMessages retrieves the most recent deletions in a guild.
func (r *AuditRepository) RecentDeletedMessages(guildID string, limit int) ([]models.DeletedMessage, error) {
	var records []models.DeletedMessage
	err := r.db.Where("guild_id = ?", guildID).
		Order("deleted_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted messages: %w", err)
	}
	return records, nil
}

// RecentMemberLeaves retrieves the most recent departures in a guild.
func (r *AuditRepository) RecentMemberLeaves(guildID string, limit int) ([]models.MemberLeave, error) {
	var records []models.MemberLeave
	err := r.db.Where("guild_id = ?", guildID).
		Order("left_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list member leaves: %w", err)
	}
	return records, nil
}

// CountDeletedMessages returns the total deletions recorded for a guild.
func (r *AuditRepository) CountDeletedMessages(guildID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.DeletedMessage{}).Where("guild_id = ?", guildID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted messages: %w", err)
	}
	return count, nil
}

// CountMemberLeaves returns the total departures recorded for a guild.
func (r *AuditRepository) CountMemberLeaves(guildID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.MemberLeave{}).Where("guild_id = ?", guildID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count member leaves: %w", err)
	}
	return count, nil
}
