package models

import (
	"time"
)

// DeletedMessage is an append-only snapshot of a message removed from a guild
// channel. References are denormalized strings; rows are never updated.
type DeletedMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   string    `gorm:"size:32" json:"message_id"`
	UserID      string    `gorm:"size:32;index" json:"user_id"`
	Username    string    `gorm:"size:100" json:"username"`
	ChannelID   string    `gorm:"size:32" json:"channel_id"`
	ChannelName string    `gorm:"size:100" json:"channel_name"`
	Content     string    `gorm:"type:text" json:"content"`
	// Attachments is a comma-joined list of attachment URLs.
	Attachments string    `gorm:"type:text" json:"attachments"`
	GuildID     string    `gorm:"size:32;index" json:"guild_id"`
	DeletedAt   time.Time `gorm:"index" json:"deleted_at"`
}

// TableName specifies the table name for DeletedMessage model.
func (DeletedMessage) TableName() string {
	return "deleted_messages"
}

// MemberLeave is an append-only record of a member leaving a guild.
type MemberLeave struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   string `gorm:"size:32;index" json:"user_id"`
	Username string `gorm:"size:100" json:"username"`
	// JoinedAt is nil when the member left before any join was recorded.
	JoinedAt *time.Time `json:"joined_at"`
	LeftAt   time.Time  `gorm:"index" json:"left_at"`
	// Roles is a comma-joined list of role names held at departure.
	Roles   string `gorm:"type:text" json:"roles"`
	GuildID string `gorm:"size:32;index" json:"guild_id"`
}

// TableName specifies the table name for MemberLeave model.
func (MemberLeave) TableName() string {
	return "member_leaves"
}

// TenureDays returns whole days between join and leave, or nil when the join
// time is unknown.
func (m *MemberLeave) TenureDays() *int {
	if m.JoinedAt == nil {
		return nil
	}
	days := int(m.LeftAt.Sub(*m.JoinedAt).Hours() / 24)
	return &days
}
