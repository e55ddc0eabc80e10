package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingResolution(t *testing.T) {
	monthly := TierMonthly
	daily := TierDaily

	tiered := &Product{
		Prices:    TierPrices{TierMonthly: decimal.RequireFromString("9.99")},
		FlatPrice: decimal.NewNullDecimal(decimal.NewFromInt(1)),
	}
	p := tiered.Pricing()
	assert.False(t, p.IsFlat(), "tier map wins over a legacy flat price")
	price, err := p.PriceFor(&monthly)
	require.NoError(t, err)
	assert.Equal(t, "9.99", price.StringFixed(2))
	_, err = p.PriceFor(&daily)
	assert.ErrorIs(t, err, ErrTierNotOffered)
	_, err = p.PriceFor(nil)
	assert.ErrorIs(t, err, ErrTierRequired)

	flat := &Product{FlatPrice: decimal.NewNullDecimal(decimal.RequireFromString("4.50"))}
	p = flat.Pricing()
	assert.True(t, p.IsFlat())
	assert.Empty(t, p.Tiers())
	price, err = p.PriceFor(&daily)
	require.NoError(t, err)
	assert.Equal(t, "4.50", price.StringFixed(2))
}

func TestTierPricesScan(t *testing.T) {
	prices := TierPrices{TierLifetime: decimal.RequireFromString("49.90")}
	v, err := prices.Value()
	require.NoError(t, err)

	var scanned TierPrices
	require.NoError(t, scanned.Scan(v))
	assert.True(t, scanned[TierLifetime].Equal(decimal.RequireFromString("49.90")))

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)
}

func TestTicketStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TicketStatus
		ok       bool
	}{
		{TicketStatusOpen, TicketStatusPaymentSelected, true},
		{TicketStatusPaymentSelected, TicketStatusPaymentClaimed, true},
		{TicketStatusPaymentClaimed, TicketStatusDelivered, true},
		{TicketStatusOpen, TicketStatusClosed, true},
		{TicketStatusDelivered, TicketStatusForceClosed, true},
		{TicketStatusPaymentClaimed, TicketStatusPaymentSelected, false},
		{TicketStatusOpen, TicketStatusOpen, false},
		{TicketStatusClosed, TicketStatusOpen, false},
		{TicketStatusClosed, TicketStatusForceClosed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanAdvanceTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, TicketStatusForceClosed.IsTerminal())
	assert.False(t, TicketStatusDelivered.IsTerminal())
}

func TestVouchDeadline(t *testing.T) {
	ticket := &Ticket{}
	assert.Nil(t, ticket.VouchDeadline(time.Hour))

	delivered := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticket.DeliveredAt = &delivered
	assert.Equal(t, delivered.Add(24*time.Hour), *ticket.VouchDeadline(24 * time.Hour))
}
