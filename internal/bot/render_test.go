package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/services"
)

func init() {
	if err := i18n.Initialize("en"); err != nil {
		panic(err)
	}
}

var testRenderer = Renderer{Color: 0x3498db, Lang: "en"}

func tieredProduct() *models.Product {
	return &models.Product{
		BaseModel: models.BaseModel{ID: uuid.New()},
		SellerID:  "100000000000000001",
		Name:      "Widget",
		Features:  models.StringList{"Fast", "Undetected"},
		Prices: models.TierPrices{
			models.TierDaily:   decimal.RequireFromString("1.99"),
			models.TierMonthly: decimal.RequireFromString("9.99"),
		},
	}
}

func TestComponentsRowsOfFive(t *testing.T) {
	var actions []services.Action
	for n := 0; n < 7; n++ {
		actions = append(actions, services.Action{ID: uuid.NewString(), Label: "x", Style: services.ActionDanger})
	}

	rows := Components(actions)
	require.Len(t, rows, 2)
	first := rows[0].(discordgo.ActionsRow)
	second := rows[1].(discordgo.ActionsRow)
	assert.Len(t, first.Components, 5)
	assert.Len(t, second.Components, 2)
	assert.Equal(t, discordgo.DangerButton, first.Components[0].(discordgo.Button).Style)

	assert.Nil(t, Components(nil))
}

func TestBuyActionsDisableSoldOutTiers(t *testing.T) {
	product := tieredProduct()
	stock := &services.StockSummary{
		ByTier: map[models.LicenseTier]int64{models.TierMonthly: 2},
	}

	actions := testRenderer.BuyActions(product, stock)
	require.Len(t, actions, 2)

	daily, monthly := actions[0], actions[1]
	assert.Equal(t, "Buy daily ($1.99)", daily.Label)
	assert.True(t, daily.Disabled)
	assert.Equal(t, "Buy monthly ($9.99)", monthly.Label)
	assert.False(t, monthly.Disabled)

	ref, err := services.ParseAction(monthly.ID)
	require.NoError(t, err)
	assert.Equal(t, product.ID, ref.Target)
	assert.Equal(t, "monthly", ref.Arg)
}

func TestBuyActionsFlatProduct(t *testing.T) {
	product := &models.Product{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Name:      "Legacy",
		FlatPrice: decimal.NewNullDecimal(decimal.RequireFromString("4.50")),
	}

	actions := testRenderer.BuyActions(product, &services.StockSummary{Flat: true})
	require.Len(t, actions, 1)
	assert.Equal(t, "Buy $4.50", actions[0].Label)
	assert.True(t, actions[0].Disabled)
	assert.Equal(t, services.BuyActionID(product.ID, nil), actions[0].ID)
}

func TestListingEmbed(t *testing.T) {
	product := tieredProduct()
	product.Category = "Tools"
	stock := &services.StockSummary{
		ByTier: map[models.LicenseTier]int64{models.TierDaily: 3},
	}

	embed := testRenderer.ListingEmbed(product, stock)
	assert.Equal(t, "Widget", embed.Title)
	require.Len(t, embed.Fields, 4)
	assert.Equal(t, "Prices", embed.Fields[0].Name)
	assert.Equal(t, "daily: **$1.99**\nmonthly: **$9.99**", embed.Fields[0].Value)
	assert.Equal(t, "<@100000000000000001>", embed.Fields[1].Value)
	assert.Equal(t, "✨ Fast\n✨ Undetected", embed.Fields[2].Value)
	assert.Equal(t, "Stock Status", embed.Fields[3].Name)
	assert.Equal(t, "🟢 daily: 3\n🔴 monthly: 0", embed.Fields[3].Value)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "Tools", embed.Footer.Text)
}

func TestNoticeColours(t *testing.T) {
	assert.Equal(t, 0x3498db, testRenderer.NoticeEmbed(services.Notice{Tone: services.ToneInfo}).Color)
	assert.Equal(t, colorSuccess, testRenderer.NoticeEmbed(services.Notice{Tone: services.ToneSuccess}).Color)
	assert.Equal(t, colorDanger, testRenderer.NoticeEmbed(services.Notice{Tone: services.ToneDanger}).Color)
}

func TestReputationEmbed(t *testing.T) {
	none := testRenderer.ReputationEmbed("seller", &services.SellerReputation{})
	assert.Equal(t, "No reviews yet.", none.Description)

	avg := decimal.RequireFromString("4.5")
	rep := &services.SellerReputation{
		VouchCount:    2,
		AverageRating: &avg,
		Recent: []models.Review{
			{ReviewerID: "200000000000000002", Rating: 5, Comment: "great"},
			{ReviewerID: "200000000000000003", Rating: 4},
		},
	}
	embed := testRenderer.ReputationEmbed("seller", rep)
	assert.Equal(t, "2 vouches, average rating 4.5 / 5", embed.Description)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "★★★★★", embed.Fields[0].Name)
	assert.Equal(t, "<@200000000000000002>: great", embed.Fields[0].Value)
	assert.Equal(t, "<@200000000000000003>: -", embed.Fields[1].Value)
}
