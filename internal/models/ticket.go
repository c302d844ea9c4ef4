package models

// Ticket statuses. A ticket moves open -> closed exactly once and is never
// removed from the list.
const (
	TicketStatusOpen   = "open"
	TicketStatusClosed = "closed"
)

// Ticket types.
const (
	TicketTypeBug     = "bug"
	TicketTypeFeature = "feature"
	TicketTypeGeneral = "general"
	TicketTypeUrgent  = "urgent"
)

// ValidTicketType reports whether t is one of the fixed ticket type tags.
func ValidTicketType(t string) bool {
	switch t {
	case TicketTypeBug, TicketTypeFeature, TicketTypeGeneral, TicketTypeUrgent:
		return true
	}
	return false
}

// Ticket is a support request stored in the shared remote ticket document.
// Timestamps are Unix milliseconds, matching the document's historical format.
type Ticket struct {
	TicketID    string `json:"ticket_id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	ChannelID   string `json:"channel_id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
	Status      string `json:"status"`
	GuildID     string `json:"guild_id"`
	ClosedAt    *int64 `json:"closed_at"`
	ClosedBy    string `json:"closed_by,omitempty"`
}

// TicketDocument is the whole remote document: every ticket ever opened plus
// the last write time in Unix milliseconds.
type TicketDocument struct {
	Tickets     []Ticket `json:"tickets"`
	LastUpdated int64    `json:"lastUpdated"`
}
