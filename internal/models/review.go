// internal/models/review.go
package models

import (
	"github.com/google/uuid"
)

type Review struct {
	BaseModel
	TicketID   uuid.UUID `json:"ticket_id" gorm:"type:uuid;not null;uniqueIndex"`
	ReviewerID string    `json:"reviewer_id" gorm:"size:32;not null;index"`
	SellerID   string    `json:"seller_id" gorm:"size:32;not null;index"`
	ProductID  uuid.UUID `json:"product_id" gorm:"type:uuid;not null"`
	Rating     int       `json:"rating" gorm:"not null"`
	Comment    string    `json:"comment" gorm:"type:text"`
}
