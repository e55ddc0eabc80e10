package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/keyshop-bot/internal/models"
)

func TestActionIDsRoundTrip(t *testing.T) {
	id := uuid.New()
	monthly := models.TierMonthly

	tests := []struct {
		raw  string
		want ActionRef
	}{
		{BuyActionID(id, &monthly), ActionRef{Kind: ActionBuy, Target: id, Arg: "monthly"}},
		{BuyActionID(id, nil), ActionRef{Kind: ActionBuy, Target: id}},
		{PayActionID(id, models.PaymentMethodCrypto), ActionRef{Kind: ActionPay, Target: id, Arg: "crypto"}},
		{PaidActionID(id), ActionRef{Kind: ActionPaid, Target: id}},
		{DeliverActionID(id), ActionRef{Kind: ActionDeliver, Target: id}},
		{CloseActionID(id), ActionRef{Kind: ActionClose, Target: id}},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
		assert.LessOrEqual(t, len(tt.raw), 100, "custom ids are capped at 100 characters")
	}
}

func TestParseActionRejectsMalformedIDs(t *testing.T) {
	for _, raw := range []string{
		"",
		"buy",
		"refund:" + uuid.NewString(),
		"paid:not-a-uuid",
		"pay:" + uuid.NewString(),
	} {
		_, err := ParseAction(raw)
		assert.Error(t, err, raw)
	}
}

func TestPaymentActionsDisableAfterSelection(t *testing.T) {
	id := uuid.New()

	open := PaymentActions("en", id, nil)
	require.Len(t, open, len(models.PaymentMethods))
	for _, a := range open {
		assert.False(t, a.Disabled)
	}

	crypto := models.PaymentMethodCrypto
	chosen := PaymentActions("en", id, &crypto)
	for _, a := range chosen {
		assert.True(t, a.Disabled)
		if a.ID == PayActionID(id, crypto) {
			assert.Equal(t, ActionSuccess, a.Style)
		} else {
			assert.Equal(t, ActionSecondary, a.Style)
		}
	}
}

func TestWelcomeActionsKeepCloseAfterSelection(t *testing.T) {
	id := uuid.New()
	crypto := models.PaymentMethodCrypto

	for _, selected := range []*models.PaymentMethod{nil, &crypto} {
		actions := WelcomeActions("en", id, selected)
		require.Len(t, actions, len(models.PaymentMethods)+1)

		closeAction := actions[len(actions)-1]
		assert.Equal(t, CloseActionID(id), closeAction.ID)
		assert.Equal(t, ActionDanger, closeAction.Style)
		assert.False(t, closeAction.Disabled)
		for _, a := range actions[:len(actions)-1] {
			assert.Equal(t, selected != nil, a.Disabled)
		}
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$9.99", FormatPrice(decimal.RequireFromString("9.99")))
	assert.Equal(t, "$5.00", FormatPrice(decimal.NewFromInt(5)))
	assert.Equal(t, "★★★☆☆", FormatStars(3))
	assert.Equal(t, "24h", FormatDuration(24*time.Hour))
	assert.Equal(t, "15m", FormatDuration(15*time.Minute))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
	assert.Equal(t, "<t:1767614400:f>", FormatTimestamp(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)))
}
