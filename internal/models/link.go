package models

import (
	"time"
)

// AccountLink mirrors a remote link document locally for fast lookup. The
// remote document store remains the source of truth.
type AccountLink struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DiscordID  string    `gorm:"size:32;not null;uniqueIndex" json:"discord_id"`
	ExternalID string    `gorm:"size:100;not null" json:"external_id"`
	GuildID    string    `gorm:"size:32" json:"guild_id"`
	LinkedAt   time.Time `json:"linked_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for AccountLink model.
func (AccountLink) TableName() string {
	return "account_links"
}

// MaskedExternalID returns the external id with all but the last four
// characters hidden.
func (a *AccountLink) MaskedExternalID() string {
	runes := []rune(a.ExternalID)
	if len(runes) <= 4 {
		return a.ExternalID
	}
	masked := make([]rune, len(runes))
	for i := range runes {
		if i < len(runes)-4 {
			masked[i] = '*'
		} else {
			masked[i] = runes[i]
		}
	}
	return string(masked)
}
