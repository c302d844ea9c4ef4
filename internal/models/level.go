package models

import (
	"time"
)

// LevelRecord tracks experience and level for one user in one guild.
type LevelRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"size:32;not null;uniqueIndex:idx_level_user_guild" json:"user_id"`
	GuildID      string    `gorm:"size:32;not null;uniqueIndex:idx_level_user_guild" json:"guild_id"`
	Username     string    `gorm:"size:100" json:"username"`
	XP           int       `gorm:"default:0" json:"xp"`
	Level        int       `gorm:"default:1" json:"level"`
	MessageCount int       `gorm:"default:0" json:"message_count"`
	// LastMessageAt is the last time an award was applied; it never moves backwards.
	LastMessageAt time.Time `json:"last_message_at"`
	JoinedAt      time.Time `json:"joined_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for LevelRecord model.
func (LevelRecord) TableName() string {
	return "level_records"
}
