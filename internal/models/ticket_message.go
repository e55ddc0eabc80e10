// internal/models/ticket_message.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketMessage is one message posted in a ticket channel, kept for the
// transcript.
type TicketMessage struct {
	BaseModel
	TicketID    uuid.UUID  `json:"ticket_id" gorm:"type:uuid;not null;index:idx_ticket_messages_order,priority:1"`
	MessageID   string     `json:"message_id" gorm:"size:32;not null;uniqueIndex"`
	AuthorID    string     `json:"author_id" gorm:"size:32;not null"`
	AuthorName  string     `json:"author_name" gorm:"size:100"`
	Content     string     `json:"content" gorm:"type:text"`
	Attachments StringList `json:"attachments" gorm:"type:text"`
	SentAt      time.Time  `json:"sent_at" gorm:"not null;index:idx_ticket_messages_order,priority:2"`
}
