// internal/models/ticket.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "open"
	TicketStatusPaymentSelected TicketStatus = "payment_selected"
	TicketStatusPaymentClaimed  TicketStatus = "payment_claimed"
	TicketStatusDelivered       TicketStatus = "delivered"
	TicketStatusClosed          TicketStatus = "closed"
	TicketStatusForceClosed     TicketStatus = "force_closed"
)

var ticketStatusRank = map[TicketStatus]int{
	TicketStatusOpen:            0,
	TicketStatusPaymentSelected: 1,
	TicketStatusPaymentClaimed:  2,
	TicketStatusDelivered:       3,
	TicketStatusClosed:          4,
	TicketStatusForceClosed:     4,
}

// ActiveTicketStatuses are the statuses that count towards the one active
// ticket per buyer rule.
var ActiveTicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusPaymentSelected,
	TicketStatusPaymentClaimed,
	TicketStatusDelivered,
}

func (s TicketStatus) Rank() int {
	r, ok := ticketStatusRank[s]
	if !ok {
		return -1
	}
	return r
}

func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusForceClosed
}

// CanAdvanceTo reports whether moving from s to next keeps the status
// sequence non-decreasing. Terminal statuses never move again.
func (s TicketStatus) CanAdvanceTo(next TicketStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	return next.Rank() > s.Rank()
}

type CloseReason string

const (
	CloseReasonManual       CloseReason = "manual"
	CloseReasonAutoClosed   CloseReason = "auto_closed"
	CloseReasonPostDelivery CloseReason = "post_delivery"
	CloseReasonForceClosed  CloseReason = "force_closed"
)

type Ticket struct {
	BaseModel
	ChannelID        string          `json:"channel_id" gorm:"size:32;not null;uniqueIndex"`
	BuyerID          string          `json:"buyer_id" gorm:"size:32;not null;index"`
	SellerID         string          `json:"seller_id" gorm:"size:32;not null;index"`
	ProductID        uuid.UUID       `json:"product_id" gorm:"type:uuid;not null;index"`
	ProductName      string          `json:"product_name" gorm:"size:100;not null"`
	Tier             *LicenseTier    `json:"tier,omitempty" gorm:"size:20"`
	Price            decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Status           TicketStatus    `json:"status" gorm:"type:varchar(20);not null;default:'open';index"`
	PaymentMethod    *PaymentMethod  `json:"payment_method,omitempty" gorm:"type:varchar(20)"`
	PaymentClaimedAt *time.Time      `json:"payment_claimed_at,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	KeyID            *uuid.UUID      `json:"key_id,omitempty" gorm:"type:uuid"`
	Vouched          bool            `json:"vouched" gorm:"not null;default:false"`
	VouchedAt        *time.Time      `json:"vouched_at,omitempty"`
	HandledBy        *string         `json:"handled_by,omitempty" gorm:"size:32"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
	ClosedBy         *string         `json:"closed_by,omitempty" gorm:"size:32"`
	CloseReason      *CloseReason    `json:"close_reason,omitempty" gorm:"type:varchar(20)"`
	CloseNote        string          `json:"close_note,omitempty" gorm:"type:text"`
	LastActivityAt   time.Time       `json:"last_activity_at" gorm:"not null;index"`
	Metadata         JSONB           `json:"metadata,omitempty" gorm:"type:text"`

	// Relationships
	Events []TicketEvent `json:"events,omitempty" gorm:"foreignKey:TicketID"`
}

func (t *Ticket) IsParticipant(userID string) bool {
	return userID == t.BuyerID || userID == t.SellerID
}

// VouchDeadline is the end of the buyer's vouch window, or nil before
// delivery.
func (t *Ticket) VouchDeadline(window time.Duration) *time.Time {
	if t.DeliveredAt == nil {
		return nil
	}
	d := t.DeliveredAt.Add(window)
	return &d
}

// TierLabel renders the tier for display; flat tickets have none.
func (t *Ticket) TierLabel() string {
	if t.Tier == nil {
		return ""
	}
	return string(*t.Tier)
}
