// internal/models/license_key.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LicenseKey is one single-use secret. Flat-price products store keys with
// an empty tier.
type LicenseKey struct {
	BaseModel
	ProductID  uuid.UUID  `json:"product_id" gorm:"type:uuid;not null;index:idx_license_keys_pool,priority:1"`
	Tier       string     `json:"tier" gorm:"size:20;not null;default:'';index:idx_license_keys_pool,priority:2"`
	Secret     string     `json:"-" gorm:"type:text;not null"`
	SecretHash string     `json:"-" gorm:"size:64;not null;index"`
	Used       bool       `json:"used" gorm:"not null;default:false;index:idx_license_keys_pool,priority:3"`
	ClaimedBy  *string    `json:"claimed_by,omitempty" gorm:"size:32"`
	TicketID   *uuid.UUID `json:"ticket_id,omitempty" gorm:"type:uuid;index"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

// TierOf converts the stored tier column back to the nullable form used by
// tickets and pricing.
func TierOf(key *LicenseKey) *LicenseTier {
	if key.Tier == "" {
		return nil
	}
	t := LicenseTier(key.Tier)
	return &t
}
