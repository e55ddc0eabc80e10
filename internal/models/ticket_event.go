// internal/models/ticket_event.go
package models

import (
	"github.com/google/uuid"
)

// TicketEvent is the audit trail of one ticket: every status transition and
// notable annotation (vouch, redelivery, handler claim).
type TicketEvent struct {
	BaseModel
	TicketID   uuid.UUID    `json:"ticket_id" gorm:"type:uuid;not null;index"`
	Action     string       `json:"action" gorm:"size:50;not null;index"`
	FromStatus TicketStatus `json:"from_status,omitempty" gorm:"type:varchar(20)"`
	ToStatus   TicketStatus `json:"to_status,omitempty" gorm:"type:varchar(20)"`
	ActorID    string       `json:"actor_id,omitempty" gorm:"size:32;index"`
	Note       string       `json:"note,omitempty" gorm:"type:text"`
	Details    JSONB        `json:"details,omitempty" gorm:"type:text"`
}

const (
	TicketActionOpened          = "opened"
	TicketActionPaymentSelected = "payment_selected"
	TicketActionPaymentClaimed  = "payment_claimed"
	TicketActionDelivered       = "delivered"
	TicketActionRedelivered     = "redelivered"
	TicketActionVouched         = "vouched"
	TicketActionVouchExpired    = "vouch_expired"
	TicketActionHandlerAssigned = "handler_assigned"
	TicketActionClosed          = "closed"
)
