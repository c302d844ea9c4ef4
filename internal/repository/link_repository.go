package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/calyptra/guildbot/internal/models"
)

// LinkRepository handles the local mirror of remote account-link documents.
type LinkRepository struct {
	db *DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create mirrors a link locally.
func (r *LinkRepository) Create(link *models.AccountLink) error {
	if err := r.db.Create(link).Error; err != nil {
		return fmt.Errorf("failed to create account link: %w", err)
	}
	return nil
}

// GetByDiscordID retrieves a mirrored link, or nil when the user is unlinked.
func (r *LinkRepository) GetByDiscordID(discordID string) (*models.AccountLink, error) {
	var link models.AccountLink
	err := r.db.Where("discord_id = ?", discordID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account link for %s: %w", discordID, err)
	}
	return &link, nil
}

// Count returns the number of mirrored links.
func (r *LinkRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&models.AccountLink{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count account links: %w", err)
	}
	return count, nil
}
