// internal/bot/commands.go
package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/services"
)

type handlerFunc func(ctx context.Context, in *invocation) (*reply, error)

type command struct {
	def     *discordgo.ApplicationCommand
	public  bool
	handler handlerFunc
}

type invocation struct {
	interaction *discordgo.Interaction
	actor       services.Actor
	lang        string
	options     map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func (in *invocation) str(name string) string {
	if opt, ok := in.options[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func (in *invocation) integer(name string) int64 {
	if opt, ok := in.options[name]; ok {
		return opt.IntValue()
	}
	return 0
}

// id returns the snowflake of a user, channel or role option.
func (in *invocation) id(name string) string {
	if opt, ok := in.options[name]; ok {
		if s, ok := opt.Value.(string); ok {
			return s
		}
	}
	return ""
}

func (in *invocation) t(key string, args ...interface{}) string {
	return i18n.T(in.lang, key, args...)
}

type reply struct {
	content string
	embeds  []*discordgo.MessageEmbed
}

func textReply(content string) *reply {
	return &reply{content: content}
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

func stringOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func userOption(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func channelOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
	}
}

func tierOption(required bool) *discordgo.ApplicationCommandOption {
	opt := stringOption("tier", "License type", required)
	for _, t := range models.Tiers {
		opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: string(t), Value: string(t)})
	}
	return opt
}

func (b *Bot) commandTable() map[string]command {
	minRating, maxRating := 1.0, 5.0

	table := []command{
		{
			def: &discordgo.ApplicationCommand{
				Name:        "createpanel",
				Description: "Create a product with daily, monthly and lifetime prices and post its listing",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("name", "Product name", true),
					stringOption("feature1", "Main product feature", true),
					stringOption("daily_price", "Price for a daily license", false),
					stringOption("monthly_price", "Price for a monthly license", false),
					stringOption("lifetime_price", "Price for a lifetime license", false),
					stringOption("feature2", "Additional feature", false),
					stringOption("feature3", "Additional feature", false),
					stringOption("feature4", "Additional feature", false),
					stringOption("feature5", "Additional feature", false),
					stringOption("category", "Product category", false),
					channelOption("channel", "Channel for the listing (defaults to this one)"),
				},
			},
			handler: b.createPanel,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "createproduct",
				Description: "Create a single-price product and post its listing",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("name", "Product name", true),
					stringOption("price", "Price", true),
					stringOption("description", "Description", false),
					channelOption("channel", "Channel for the listing (defaults to this one)"),
				},
			},
			handler: b.createProduct,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "buy",
				Description: "Open a purchase ticket",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("product", "Product name", true),
					userOption("seller", "Seller of the product", true),
					tierOption(false),
				},
			},
			handler: b.buy,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "addkey",
				Description: "Add a license key to one of your products",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("product", "Product name", true),
					stringOption("key", "License key", true),
					tierOption(false),
					userOption("seller", "Product seller (admins only)", false),
				},
			},
			handler: b.addKey,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "removekey",
				Description: "Remove an unused license key",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("key_id", "Key ID", true),
				},
			},
			handler: b.removeKey,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "stock",
				Description: "Show the unused key count of a product",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("product", "Product name", true),
					userOption("seller", "Product seller (defaults to you)", false),
				},
			},
			handler: b.stock,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "deleteproduct",
				Description: "Delete a product and all of its keys",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("product", "Product name", true),
					userOption("seller", "Product seller (admins only)", false),
				},
			},
			handler: b.deleteProduct,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "vouch",
				Description: "Rate your latest purchase",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "rating",
						Description: "Rating from 1 to 5",
						Required:    true,
						MinValue:    &minRating,
						MaxValue:    maxRating,
					},
					stringOption("comment", "Comment", false),
				},
			},
			handler: b.vouch,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "vouches",
				Description: "Show a seller's reputation",
				Options: []*discordgo.ApplicationCommandOption{
					userOption("seller", "Seller", true),
				},
			},
			public:  true,
			handler: b.vouches,
		},
		{
			def:     &discordgo.ApplicationCommand{Name: "close", Description: "Close this ticket"},
			handler: b.closeTicket,
		},
		{
			def: &discordgo.ApplicationCommand{
				Name:        "forceclose",
				Description: "Force close this ticket (admins only)",
				Options: []*discordgo.ApplicationCommandOption{
					stringOption("reason", "Reason shown to buyer and seller", true),
				},
			},
			handler: b.forceClose,
		},
		{
			def:     &discordgo.ApplicationCommand{Name: "claim", Description: "Take over handling of this ticket (admins only)"},
			handler: b.claim,
		},
		{
			def:     &discordgo.ApplicationCommand{Name: "resend", Description: "Send the delivered key to the buyer again"},
			handler: b.resend,
		},
	}

	commands := make(map[string]command, len(table))
	for _, c := range table {
		commands[c.def.Name] = c
	}
	return commands
}

// definitions lists the commands sorted by name.
func (b *Bot) definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(b.commands))
	for _, c := range b.commands {
		defs = append(defs, c.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (b *Bot) createPanel(ctx context.Context, in *invocation) (*reply, error) {
	if !in.actor.Seller && !in.actor.Admin {
		return nil, services.ErrNotAuthorized
	}

	prices := map[string]string{}
	for _, tier := range models.Tiers {
		if v := in.str(string(tier) + "_price"); v != "" {
			prices[string(tier)] = v
		}
	}
	if len(prices) == 0 {
		return nil, services.ErrValidation.With("at least one tier price is required")
	}

	var features []string
	for n := 1; n <= 5; n++ {
		if f := in.str(fmt.Sprintf("feature%d", n)); f != "" {
			features = append(features, f)
		}
	}

	product, err := b.svc.Products.CreateProduct(ctx, &services.CreateProductRequest{
		SellerID: in.actor.UserID,
		Name:     in.str("name"),
		Category: in.str("category"),
		Features: features,
		Prices:   prices,
	})
	if err != nil {
		return nil, err
	}
	return b.postListing(ctx, in, product, i18n.KeyPanelCreated)
}

func (b *Bot) createProduct(ctx context.Context, in *invocation) (*reply, error) {
	if !in.actor.Seller && !in.actor.Admin {
		return nil, services.ErrNotAuthorized
	}

	product, err := b.svc.Products.CreateProduct(ctx, &services.CreateProductRequest{
		SellerID:    in.actor.UserID,
		Name:        in.str("name"),
		Description: in.str("description"),
		FlatPrice:   in.str("price"),
	})
	if err != nil {
		return nil, err
	}
	return b.postListing(ctx, in, product, i18n.KeyProductCreated)
}

func (b *Bot) postListing(ctx context.Context, in *invocation, product *models.Product, okKey string) (*reply, error) {
	channelID := in.id("channel")
	if channelID == "" {
		channelID = in.interaction.ChannelID
	}
	if _, err := b.svc.Products.CreateListing(ctx, in.actor, product.ID, channelID); err != nil {
		return nil, err
	}
	return textReply(in.t(okKey, product.Name)), nil
}

// sellerScope is the seller whose product a command refers to. Only admins
// may act on another seller's products.
func sellerScope(in *invocation) string {
	if seller := in.id("seller"); seller != "" && in.actor.Admin {
		return seller
	}
	return in.actor.UserID
}

func (b *Bot) buy(ctx context.Context, in *invocation) (*reply, error) {
	product, err := b.svc.Products.GetProductByName(ctx, in.str("product"), in.id("seller"))
	if err != nil {
		return nil, err
	}
	return b.openTicket(ctx, in, product, in.str("tier"))
}

func (b *Bot) openTicket(ctx context.Context, in *invocation, product *models.Product, tier string) (*reply, error) {
	ticket, err := b.svc.Openers.For(product).OpenTicket(ctx, in.actor, product, tier)
	if err != nil {
		return nil, err
	}
	return textReply(in.t(i18n.KeyTicketOpened, ticket.ChannelID)), nil
}

func (b *Bot) addKey(ctx context.Context, in *invocation) (*reply, error) {
	product, err := b.svc.Products.GetProductByName(ctx, in.str("product"), sellerScope(in))
	if err != nil {
		return nil, err
	}

	result, err := b.svc.Keys.AddKey(ctx, in.actor, &services.AddKeyRequest{
		ProductID: product.ID,
		Tier:      in.str("tier"),
		Secret:    in.str("key"),
	})
	if err != nil {
		return nil, err
	}
	b.refreshListings(ctx, product.ID)

	content := in.t(i18n.KeyKeyAdded, product.Name, tierLabel(models.TierOf(result.Key)), result.Stock)
	if result.Duplicate {
		content += "\n" + in.t(i18n.KeyKeyDuplicateWarning)
	}
	return textReply(content), nil
}

func (b *Bot) removeKey(ctx context.Context, in *invocation) (*reply, error) {
	keyID, err := uuid.Parse(in.str("key_id"))
	if err != nil {
		return nil, services.ErrKeyNotFound
	}
	key, err := b.svc.Keys.GetKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if err := b.svc.Keys.DeleteKey(ctx, in.actor, keyID); err != nil {
		return nil, err
	}
	b.refreshListings(ctx, key.ProductID)
	return textReply(in.t(i18n.KeyKeyRemoved)), nil
}

func (b *Bot) stock(ctx context.Context, in *invocation) (*reply, error) {
	seller := in.id("seller")
	if seller == "" {
		seller = in.actor.UserID
	}
	product, err := b.svc.Products.GetProductByName(ctx, in.str("product"), seller)
	if err != nil {
		return nil, err
	}
	stock, err := b.svc.Keys.Stock(ctx, product)
	if err != nil {
		return nil, err
	}
	return &reply{embeds: []*discordgo.MessageEmbed{b.render.In(in.lang).StockEmbed(product, stock)}}, nil
}

func (b *Bot) deleteProduct(ctx context.Context, in *invocation) (*reply, error) {
	product, err := b.svc.Products.GetProductByName(ctx, in.str("product"), sellerScope(in))
	if err != nil {
		return nil, err
	}
	deleted, err := b.svc.Products.DeleteProduct(ctx, in.actor, product.ID)
	if err != nil {
		return nil, err
	}
	return textReply(in.t(i18n.KeyProductDeleted, deleted.Name)), nil
}

// vouch rates the ticket of the current channel, or the buyer's latest
// vouchable purchase when used elsewhere.
func (b *Bot) vouch(ctx context.Context, in *invocation) (*reply, error) {
	ticket, err := b.svc.Tickets.GetByChannel(ctx, in.interaction.ChannelID)
	if err != nil || ticket.BuyerID != in.actor.UserID {
		ticket, err = b.svc.Tickets.FindVouchable(ctx, in.actor.UserID)
		if err != nil {
			return nil, err
		}
	}

	_, err = b.svc.Tickets.Vouch(ctx, in.actor, &services.VouchRequest{
		TicketID: ticket.ID,
		Rating:   int(in.integer("rating")),
		Comment:  in.str("comment"),
	})
	if err != nil {
		return nil, err
	}
	return textReply(in.t(i18n.KeyVouchThanks)), nil
}

func (b *Bot) vouches(ctx context.Context, in *invocation) (*reply, error) {
	sellerID := in.id("seller")
	rep, err := b.svc.Reputation.Summary(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	name := "<@" + sellerID + ">"
	if data := in.interaction.ApplicationCommandData(); data.Resolved != nil {
		if u, ok := data.Resolved.Users[sellerID]; ok {
			name = u.Username
		}
	}
	return &reply{embeds: []*discordgo.MessageEmbed{b.render.In(in.lang).ReputationEmbed(name, rep)}}, nil
}

func (b *Bot) channelTicket(ctx context.Context, in *invocation) (*models.Ticket, error) {
	return b.svc.Tickets.GetByChannel(ctx, in.interaction.ChannelID)
}

func (b *Bot) closeTicket(ctx context.Context, in *invocation) (*reply, error) {
	ticket, err := b.channelTicket(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := b.svc.Tickets.Close(ctx, in.actor, ticket.ID, ""); err != nil {
		return nil, err
	}
	return textReply(in.t(i18n.KeyTicketCloseAck)), nil
}

func (b *Bot) forceClose(ctx context.Context, in *invocation) (*reply, error) {
	ticket, err := b.channelTicket(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := b.svc.Tickets.ForceClose(ctx, in.actor, ticket.ID, in.str("reason")); err != nil {
		return nil, err
	}
	return textReply(in.t(i18n.KeyTicketForceCloseAck)), nil
}

func (b *Bot) claim(ctx context.Context, in *invocation) (*reply, error) {
	ticket, err := b.channelTicket(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := b.svc.Tickets.AssignHandler(ctx, in.actor, ticket.ID); err != nil {
		return nil, err
	}
	return textReply(in.t(i18n.KeyTicketClaimAck)), nil
}

func (b *Bot) resend(ctx context.Context, in *invocation) (*reply, error) {
	ticket, err := b.channelTicket(ctx, in)
	if err != nil {
		return nil, err
	}
	channel, err := b.svc.Tickets.Redeliver(ctx, in.actor, ticket.ID)
	if err != nil {
		return nil, err
	}
	if channel == services.DeliveryFailed {
		return textReply(in.t(i18n.KeyDeliveryFailed)), nil
	}
	return textReply(in.t(i18n.KeyDeliveryResent)), nil
}

// refreshListings updates listing stock after a key change. Failures are
// logged only.
func (b *Bot) refreshListings(ctx context.Context, productID uuid.UUID) {
	if err := b.svc.Products.RefreshListings(ctx, productID); err != nil {
		logrus.WithError(err).WithField("product_id", productID).Warn("Failed to refresh listings")
	}
}
