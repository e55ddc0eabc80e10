// internal/services/openers.go
package services

import (
	"context"

	"github.com/javajoker/keyshop-bot/internal/models"
)

// TicketOpener opens a purchase ticket for one buy flow.
type TicketOpener interface {
	OpenTicket(ctx context.Context, buyer Actor, product *models.Product, tier string) (*models.Ticket, error)
}

// TieredOpener serves the per-tier buy buttons. The tier must be one the
// product prices.
type TieredOpener struct {
	Tickets *TicketService
}

func (o TieredOpener) OpenTicket(ctx context.Context, buyer Actor, product *models.Product, tier string) (*models.Ticket, error) {
	t, ok := models.ParseLicenseTier(tier)
	if !ok {
		return nil, ErrTierNotOffered
	}
	if _, err := product.Pricing().PriceFor(&t); err != nil {
		return nil, ErrTierNotOffered
	}
	return o.Tickets.Open(ctx, &OpenTicketRequest{
		BuyerID:   buyer.UserID,
		BuyerName: buyer.Name,
		ProductID: product.ID,
		Tier:      &t,
	})
}

// FlatOpener serves the single buy-now button of a flat priced product.
type FlatOpener struct {
	Tickets *TicketService
}

func (o FlatOpener) OpenTicket(ctx context.Context, buyer Actor, product *models.Product, _ string) (*models.Ticket, error) {
	return o.Tickets.Open(ctx, &OpenTicketRequest{
		BuyerID:   buyer.UserID,
		BuyerName: buyer.Name,
		ProductID: product.ID,
	})
}

// Openers holds one opener per buy flow.
type Openers struct {
	Tiered TicketOpener
	Flat   TicketOpener
}

func NewOpeners(tickets *TicketService) Openers {
	return Openers{
		Tiered: TieredOpener{Tickets: tickets},
		Flat:   FlatOpener{Tickets: tickets},
	}
}

// For returns the opener matching the product's pricing.
func (o Openers) For(product *models.Product) TicketOpener {
	if product.Pricing().IsFlat() {
		return o.Flat
	}
	return o.Tiered
}
