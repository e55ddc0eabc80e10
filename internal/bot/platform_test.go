package bot

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/services"
)

var testDiscordConfig = config.DiscordConfig{
	GuildID:             "guild",
	TicketCategoryID:    "tickets",
	AdminRoleID:         "role-admin",
	SellerRoleID:        "role-seller",
	BuyerRoleID:         "role-buyer",
	TranscriptChannelID: "transcripts",
	LogsChannelID:       "bot-logs",
	EmbedColor:          "0x3498db",
}

func newTestGateway() (*Gateway, *fakeDiscord) {
	fake := newFakeDiscord()
	return NewGateway(fake, testDiscordConfig, "en"), fake
}

func TestCreateTicketChannel(t *testing.T) {
	gw, fake := newTestGateway()

	id, err := gw.CreateTicketChannel(context.Background(), services.TicketChannelSpec{
		TicketRef: "6f1c2d4e",
		BuyerID:   "buyer",
		BuyerName: "Jo Doe!",
		SellerID:  "seller",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, fake.created, 1)
	data := fake.created[0]
	assert.Equal(t, "ticket-jo-doe-6f1c2d4e", data.Name)
	assert.Equal(t, "tickets", data.ParentID)
	assert.Equal(t, discordgo.ChannelTypeGuildText, data.Type)

	byID := map[string]*discordgo.PermissionOverwrite{}
	for _, o := range data.PermissionOverwrites {
		byID[o.ID] = o
	}
	require.Contains(t, byID, "guild")
	assert.Equal(t, int64(discordgo.PermissionViewChannel), byID["guild"].Deny)
	assert.NotZero(t, byID["buyer"].Allow&discordgo.PermissionViewChannel)
	assert.Equal(t, discordgo.PermissionOverwriteTypeMember, byID["seller"].Type)
	assert.Equal(t, discordgo.PermissionOverwriteTypeRole, byID["role-admin"].Type)
}

func TestTicketChannelNameFallsBackToRef(t *testing.T) {
	assert.Equal(t, "ticket-abc", ticketChannelName(services.TicketChannelSpec{TicketRef: "abc", BuyerName: "!!!"}))
}

func TestSendDirectRefused(t *testing.T) {
	gw, fake := newTestGateway()
	fake.refuseDM = true

	err := gw.SendDirect(context.Background(), "buyer", services.Notice{Title: "key"})
	assert.ErrorIs(t, err, services.ErrDirectMessageRefused)

	fake.refuseDM = false
	require.NoError(t, gw.SendDirect(context.Background(), "buyer", services.Notice{Title: "key", Body: "KEY-1"}))
	sent := fake.sentTo("dm-buyer")
	require.Len(t, sent, 1)
	assert.Equal(t, "KEY-1", sent[0].Embeds[0].Description)
}

func TestRoleChanges(t *testing.T) {
	gw, fake := newTestGateway()
	ctx := context.Background()

	require.NoError(t, gw.GrantBuyerRole(ctx, "buyer"))
	require.NoError(t, gw.RevokeBuyerRole(ctx, "buyer"))
	assert.Equal(t, []string{"buyer:role-buyer"}, fake.rolesAdd)
	assert.Equal(t, []string{"buyer:role-buyer"}, fake.rolesDrop)

	fake.memberGone = true
	assert.NoError(t, gw.RevokeBuyerRole(ctx, "left"), "a member who left counts as revoked")
}

func TestDeleteChannelIgnoresUnknownChannel(t *testing.T) {
	gw, fake := newTestGateway()
	require.NoError(t, gw.DeleteChannel(context.Background(), "chan-1"))
	assert.Equal(t, []string{"chan-1"}, fake.deleted)

	fake.channelsGone = true
	assert.NoError(t, gw.DeleteChannel(context.Background(), "chan-2"))
}

func TestCreateTicketChannelError(t *testing.T) {
	gw, fake := newTestGateway()
	fake.createErr = errors.New("missing permissions")

	_, err := gw.CreateTicketChannel(context.Background(), services.TicketChannelSpec{TicketRef: "x"})
	assert.ErrorContains(t, err, "missing permissions")
}

func TestPublishAndRefreshListing(t *testing.T) {
	gw, fake := newTestGateway()
	product := tieredProduct()
	stock := &services.StockSummary{ByTier: map[models.LicenseTier]int64{models.TierMonthly: 1}}

	messageID, err := gw.PublishListing(context.Background(), "shop", product, stock)
	require.NoError(t, err)
	require.Len(t, fake.sentTo("shop"), 1)

	listing := &models.ProductListing{ChannelID: "shop", MessageID: messageID}
	stock.ByTier[models.TierMonthly] = 0
	require.NoError(t, gw.RefreshListing(context.Background(), listing, product, stock))

	require.Len(t, fake.edits, 1)
	edit := fake.edits[0]
	assert.Equal(t, messageID, edit.ID)
	require.NotNil(t, edit.Components)
	row := (*edit.Components)[0].(discordgo.ActionsRow)
	for _, c := range row.Components {
		assert.True(t, c.(discordgo.Button).Disabled)
	}
	require.NotNil(t, edit.Embeds)
	assert.Contains(t, (*edit.Embeds)[0].Fields[3].Value, "🔴 monthly: 0")
}

func TestArchiveTranscriptUploadsFile(t *testing.T) {
	gw, fake := newTestGateway()
	ticketID := uuid.New()

	err := gw.ArchiveTranscript(context.Background(), &services.Transcript{
		Ticket:   models.Ticket{BaseModel: models.BaseModel{ID: ticketID}, ProductName: "Widget", BuyerID: "buyer", SellerID: "seller"},
		Messages: []models.TicketMessage{{AuthorName: "buyer", Content: "hello"}},
	})
	require.NoError(t, err)

	sent := fake.sentTo("transcripts")
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Files, 1)
	assert.Equal(t, "transcript-"+ticketID.String()+".txt", sent[0].Files[0].Name)
	body, err := io.ReadAll(sent[0].Files[0].Reader)
	require.NoError(t, err)
	assert.Contains(t, string(body), "buyer: hello")
}

func TestPublishTicketEventToLogsChannel(t *testing.T) {
	gw, fake := newTestGateway()
	ticketID := uuid.MustParse("6f1c2d4e-0000-4000-8000-000000000001")

	err := gw.PublishTicketEvent(context.Background(), &services.TicketEventMessage{
		TicketID:   ticketID,
		Action:     "delivered",
		FromStatus: models.TicketStatusPaymentClaimed,
		ToStatus:   models.TicketStatusDelivered,
		ActorID:    "seller",
	})
	require.NoError(t, err)

	sent := fake.sentTo("bot-logs")
	require.Len(t, sent, 1)
	assert.Equal(t, "Ticket `6f1c2d4e` (delivered): payment_claimed -> delivered by <@seller>", sent[0].Content)

	quiet := NewGateway(fake, config.DiscordConfig{}, "en")
	require.NoError(t, quiet.PublishTicketEvent(context.Background(), &services.TicketEventMessage{TicketID: ticketID}))
	assert.Len(t, fake.sent, 1)
}
