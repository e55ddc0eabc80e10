// internal/bot/platform.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/services"
)

// discordAPI is the part of *discordgo.Session the gateway calls.
type discordAPI interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

const (
	participantAllow = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory |
		discordgo.PermissionAttachFiles |
		discordgo.PermissionEmbedLinks
	staffAllow = participantAllow | discordgo.PermissionManageMessages
)

var channelNameUnsafe = regexp.MustCompile(`[^a-z0-9-]+`)

// Gateway implements the services collaborator interfaces on top of the
// Discord REST API.
type Gateway struct {
	api    discordAPI
	cfg    config.DiscordConfig
	render Renderer
}

var (
	_ services.Platform           = (*Gateway)(nil)
	_ services.ListingPublisher   = (*Gateway)(nil)
	_ services.TranscriptArchiver = (*Gateway)(nil)
	_ services.EventSink          = (*Gateway)(nil)
)

func NewGateway(api discordAPI, cfg config.DiscordConfig, lang string) *Gateway {
	color, err := cfg.Color()
	if err != nil {
		color = 0x3498db
	}
	return &Gateway{
		api:    api,
		cfg:    cfg,
		render: Renderer{Color: color, Lang: lang},
	}
}

func (g *Gateway) Renderer() Renderer {
	return g.render
}

func ticketChannelName(spec services.TicketChannelSpec) string {
	name := strings.ToLower(spec.BuyerName)
	name = strings.Trim(channelNameUnsafe.ReplaceAllString(name, "-"), "-")
	if len(name) > 32 {
		name = name[:32]
	}
	if name == "" {
		return "ticket-" + spec.TicketRef
	}
	return fmt.Sprintf("ticket-%s-%s", name, spec.TicketRef)
}

// CreateTicketChannel creates a private text channel under the ticket
// category. @everyone is denied; buyer, seller and staff roles can see it.
func (g *Gateway) CreateTicketChannel(ctx context.Context, spec services.TicketChannelSpec) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: g.cfg.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: spec.BuyerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: participantAllow},
		{ID: spec.SellerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: staffAllow},
		{ID: g.cfg.AdminRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: staffAllow},
	}

	ch, err := g.api.GuildChannelCreateComplex(g.cfg.GuildID, discordgo.GuildChannelCreateData{
		Name:                 ticketChannelName(spec),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                fmt.Sprintf("Ticket %s", spec.TicketRef),
		ParentID:             g.cfg.TicketCategoryID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create ticket channel: %w", err)
	}
	return ch.ID, nil
}

func (g *Gateway) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := g.api.ChannelDelete(channelID, discordgo.WithContext(ctx)); err != nil {
		if isRESTCode(err, discordgo.ErrCodeUnknownChannel) {
			return nil
		}
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

func (g *Gateway) Send(ctx context.Context, channelID string, notice services.Notice) error {
	if _, err := g.api.ChannelMessageSendComplex(channelID, g.render.NoticeMessage(notice), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return nil
}

// SendDirect opens a DM channel and posts the notice. A recipient who does
// not accept DMs yields services.ErrDirectMessageRefused.
func (g *Gateway) SendDirect(ctx context.Context, userID string, notice services.Notice) error {
	dm, err := g.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		if isRESTCode(err, discordgo.ErrCodeCannotSendMessagesToThisUser) {
			return services.ErrDirectMessageRefused
		}
		return fmt.Errorf("open dm with %s: %w", userID, err)
	}
	if _, err := g.api.ChannelMessageSendComplex(dm.ID, g.render.NoticeMessage(notice), discordgo.WithContext(ctx)); err != nil {
		if isRESTCode(err, discordgo.ErrCodeCannotSendMessagesToThisUser) {
			return services.ErrDirectMessageRefused
		}
		return fmt.Errorf("send dm to %s: %w", userID, err)
	}
	return nil
}

func (g *Gateway) GrantBuyerRole(ctx context.Context, userID string) error {
	if err := g.api.GuildMemberRoleAdd(g.cfg.GuildID, userID, g.cfg.BuyerRoleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("grant buyer role to %s: %w", userID, err)
	}
	return nil
}

// RevokeBuyerRole removes the buyer role. A member who already left the
// guild counts as revoked.
func (g *Gateway) RevokeBuyerRole(ctx context.Context, userID string) error {
	if err := g.api.GuildMemberRoleRemove(g.cfg.GuildID, userID, g.cfg.BuyerRoleID, discordgo.WithContext(ctx)); err != nil {
		if isRESTCode(err, discordgo.ErrCodeUnknownMember) {
			return nil
		}
		return fmt.Errorf("revoke buyer role from %s: %w", userID, err)
	}
	return nil
}

func (g *Gateway) PublishListing(ctx context.Context, channelID string, product *models.Product, stock *services.StockSummary) (string, error) {
	msg, err := g.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{g.render.ListingEmbed(product, stock)},
		Components: Components(g.render.BuyActions(product, stock)),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("post listing: %w", err)
	}
	return msg.ID, nil
}

// RefreshListing re-renders the stock field and buy buttons of a posted
// listing.
func (g *Gateway) RefreshListing(ctx context.Context, listing *models.ProductListing, product *models.Product, stock *services.StockSummary) error {
	embeds := []*discordgo.MessageEmbed{g.render.ListingEmbed(product, stock)}
	components := Components(g.render.BuyActions(product, stock))

	edit := discordgo.NewMessageEdit(listing.ChannelID, listing.MessageID)
	edit.Embeds = &embeds
	edit.Components = &components
	if _, err := g.api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit listing %s: %w", listing.MessageID, err)
	}
	return nil
}

// ArchiveTranscript uploads the transcript as a text file to the
// transcript channel, when one is configured.
func (g *Gateway) ArchiveTranscript(ctx context.Context, transcript *services.Transcript) error {
	if g.cfg.TranscriptChannelID == "" {
		return nil
	}

	t := transcript.Ticket
	summary := fmt.Sprintf("Ticket `%s` %s %s\nBuyer <@%s> Seller <@%s>\nStatus: %s",
		t.ID, t.ProductName, tierLabel(t.Tier), t.BuyerID, t.SellerID, t.Status)
	_, err := g.api.ChannelMessageSendComplex(g.cfg.TranscriptChannelID, &discordgo.MessageSend{
		Content: summary,
		Files: []*discordgo.File{{
			Name:        fmt.Sprintf("transcript-%s.txt", t.ID),
			ContentType: "text/plain",
			Reader:      strings.NewReader(transcript.Text()),
		}},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("upload transcript: %w", err)
	}
	return nil
}

// PublishTicketEvent writes a one-line summary of the event to the logs
// channel, when one is configured.
func (g *Gateway) PublishTicketEvent(ctx context.Context, event *services.TicketEventMessage) error {
	if g.cfg.LogsChannelID == "" {
		return nil
	}

	from := string(event.FromStatus)
	if from == "" {
		from = "-"
	}
	actor := event.ActorID
	if actor != "" && actor != "system" {
		actor = "<@" + actor + ">"
	}
	line := i18n.T(g.render.Lang, i18n.KeyLogEvent, event.TicketID.String()[:8], event.Action, from, event.ToStatus, actor)
	if event.Note != "" {
		line += ": " + event.Note
	}

	_, err := g.api.ChannelMessageSendComplex(g.cfg.LogsChannelID, &discordgo.MessageSend{
		Content:         line,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		logrus.WithError(err).WithField("ticket_id", event.TicketID).Debug("Failed to write bot log")
		return fmt.Errorf("write bot log: %w", err)
	}
	return nil
}

func tierLabel(tier *models.LicenseTier) string {
	if tier == nil {
		return ""
	}
	return "(" + string(*tier) + ")"
}

func isRESTCode(err error, code int) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code == code
	}
	return false
}
