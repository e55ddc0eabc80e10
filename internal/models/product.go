// internal/models/product.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	BaseModel
	SellerID    string              `json:"seller_id" gorm:"size:32;not null;index;uniqueIndex:idx_products_seller_name"`
	Name        string              `json:"name" gorm:"size:100;not null;uniqueIndex:idx_products_seller_name"`
	Description string              `json:"description" gorm:"type:text"`
	Category    string              `json:"category,omitempty" gorm:"size:100;index"`
	Features    StringList          `json:"features" gorm:"type:text"`
	Prices      TierPrices          `json:"prices,omitempty" gorm:"type:text"`
	FlatPrice   decimal.NullDecimal `json:"price,omitempty" gorm:"type:decimal(10,2)"`

	// Relationships
	Keys     []LicenseKey     `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Listings []ProductListing `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// ProductListing points at a public listing message that displays the
// product's stock and buy controls.
type ProductListing struct {
	BaseModel
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	ChannelID string    `json:"channel_id" gorm:"size:32;not null"`
	MessageID string    `json:"message_id" gorm:"size:32;not null;uniqueIndex"`
}

// TierPrices maps a license tier to its unit price.
type TierPrices map[LicenseTier]decimal.Decimal

func (p TierPrices) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(map[LicenseTier]decimal.Decimal(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *TierPrices) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	raw := asBytes(value)
	if len(raw) == 0 {
		*p = nil
		return nil
	}
	return json.Unmarshal(raw, (*map[LicenseTier]decimal.Decimal)(p))
}

var (
	ErrTierNotOffered = errors.New("tier not offered by product")
	ErrTierRequired   = errors.New("tier required for tiered product")
)

// Pricing is the resolved price shape of a product: either one flat price
// (legacy listings) or a price per license tier.
type Pricing struct {
	flat  *decimal.Decimal
	tiers TierPrices
}

func FlatPricing(amount decimal.Decimal) Pricing {
	return Pricing{flat: &amount}
}

func TieredPricing(prices TierPrices) Pricing {
	return Pricing{tiers: prices}
}

// Pricing resolves the stored columns once. A product with a tier map is
// tiered even if a legacy flat price column is also populated.
func (p *Product) Pricing() Pricing {
	if len(p.Prices) > 0 {
		return TieredPricing(p.Prices)
	}
	if p.FlatPrice.Valid {
		return FlatPricing(p.FlatPrice.Decimal)
	}
	return TieredPricing(nil)
}

func (p Pricing) IsFlat() bool { return p.flat != nil }

// Tiers returns the offered tiers in display order. Flat pricing offers none.
func (p Pricing) Tiers() []LicenseTier {
	var out []LicenseTier
	for _, t := range Tiers {
		if _, ok := p.tiers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// PriceFor returns the unit price for tier. Flat pricing ignores the tier.
func (p Pricing) PriceFor(tier *LicenseTier) (decimal.Decimal, error) {
	if p.flat != nil {
		return *p.flat, nil
	}
	if tier == nil {
		return decimal.Zero, ErrTierRequired
	}
	price, ok := p.tiers[*tier]
	if !ok {
		return decimal.Zero, ErrTierNotOffered
	}
	return price, nil
}
