// internal/bot/render.go
package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/services"
)

const (
	colorSuccess = 0x2ecc71
	colorWarning = 0xf1c40f
	colorDanger  = 0xe74c3c

	// Discord allows five buttons per action row and five rows per message.
	buttonsPerRow = 5
	maxRows       = 5

	stockInMarker  = "🟢"
	stockOutMarker = "🔴"
)

// Renderer turns platform-neutral notices and products into Discord
// embeds and components.
type Renderer struct {
	Color int
	Lang  string
}

func (r Renderer) toneColor(tone services.Tone) int {
	switch tone {
	case services.ToneSuccess:
		return colorSuccess
	case services.ToneWarning:
		return colorWarning
	case services.ToneDanger:
		return colorDanger
	default:
		return r.Color
	}
}

func (r Renderer) NoticeEmbed(n services.Notice) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Body,
		Color:       r.toneColor(n.Tone),
	}
}

func (r Renderer) NoticeMessage(n services.Notice) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{r.NoticeEmbed(n)},
		Components: Components(n.Actions),
	}
}

func buttonStyle(style services.ActionStyle) discordgo.ButtonStyle {
	switch style {
	case services.ActionSuccess:
		return discordgo.SuccessButton
	case services.ActionDanger:
		return discordgo.DangerButton
	case services.ActionSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}

// Components lays actions out in rows of buttons. Actions past the message
// limit are dropped.
func Components(actions []services.Action) []discordgo.MessageComponent {
	if len(actions) == 0 {
		return nil
	}

	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, a := range actions {
		row = append(row, discordgo.Button{
			CustomID: a.ID,
			Label:    a.Label,
			Style:    buttonStyle(a.Style),
			Disabled: a.Disabled,
		})
		if len(row) == buttonsPerRow {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	return rows
}

// StockLines renders one line per offered tier, or a single line for flat
// products.
func (r Renderer) StockLines(product *models.Product, stock *services.StockSummary) string {
	pricing := product.Pricing()
	if pricing.IsFlat() {
		return r.stockLine(product.Name, stock.Total)
	}

	tiers := pricing.Tiers()
	if len(tiers) == 0 {
		return i18n.T(r.Lang, i18n.KeyStockNone)
	}
	lines := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		tier := tier
		lines = append(lines, r.stockLine(string(tier), stock.For(&tier)))
	}
	return strings.Join(lines, "\n")
}

func (r Renderer) stockLine(label string, count int64) string {
	marker := stockInMarker
	if count <= 0 {
		marker = stockOutMarker
	}
	return i18n.T(r.Lang, i18n.KeyStockLine, marker, label, count)
}

func (r Renderer) priceLines(product *models.Product) (string, string) {
	pricing := product.Pricing()
	if pricing.IsFlat() {
		price, _ := pricing.PriceFor(nil)
		return i18n.T(r.Lang, i18n.KeyListingPrice), services.FormatPrice(price)
	}

	var lines []string
	for _, tier := range pricing.Tiers() {
		tier := tier
		price, _ := pricing.PriceFor(&tier)
		lines = append(lines, fmt.Sprintf("%s: **%s**", tier, services.FormatPrice(price)))
	}
	return i18n.T(r.Lang, i18n.KeyListingPrices), strings.Join(lines, "\n")
}

// ListingEmbed is the public product listing with prices and stock.
func (r Renderer) ListingEmbed(product *models.Product, stock *services.StockSummary) *discordgo.MessageEmbed {
	priceName, priceValue := r.priceLines(product)
	fields := []*discordgo.MessageEmbedField{
		{Name: priceName, Value: priceValue, Inline: true},
		{Name: i18n.T(r.Lang, i18n.KeyListingSeller), Value: fmt.Sprintf("<@%s>", product.SellerID), Inline: true},
	}
	if len(product.Features) > 0 {
		var b strings.Builder
		for _, f := range product.Features {
			fmt.Fprintf(&b, "✨ %s\n", f)
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  i18n.T(r.Lang, i18n.KeyListingFeatures),
			Value: strings.TrimSuffix(b.String(), "\n"),
		})
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name:  i18n.T(r.Lang, i18n.KeyStockField),
		Value: r.StockLines(product, stock),
	})

	embed := &discordgo.MessageEmbed{
		Title:       product.Name,
		Description: product.Description,
		Color:       r.Color,
		Fields:      fields,
	}
	if product.Category != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: product.Category}
	}
	return embed
}

// BuyActions builds one buy button per offered tier. Sold out tiers are
// shown disabled.
func (r Renderer) BuyActions(product *models.Product, stock *services.StockSummary) []services.Action {
	pricing := product.Pricing()
	if pricing.IsFlat() {
		price, _ := pricing.PriceFor(nil)
		return []services.Action{{
			ID:       services.BuyActionID(product.ID, nil),
			Label:    i18n.T(r.Lang, i18n.KeyButtonBuy, services.FormatPrice(price)),
			Style:    services.ActionPrimary,
			Disabled: stock.Total <= 0,
		}}
	}

	var actions []services.Action
	for _, tier := range pricing.Tiers() {
		tier := tier
		price, _ := pricing.PriceFor(&tier)
		actions = append(actions, services.Action{
			ID:       services.BuyActionID(product.ID, &tier),
			Label:    i18n.T(r.Lang, i18n.KeyButtonBuy, fmt.Sprintf("%s (%s)", tier, services.FormatPrice(price))),
			Style:    services.ActionPrimary,
			Disabled: stock.For(&tier) <= 0,
		})
	}
	return actions
}

// StockEmbed answers /stock.
func (r Renderer) StockEmbed(product *models.Product, stock *services.StockSummary) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       i18n.T(r.Lang, i18n.KeyStockTitle, product.Name),
		Description: r.StockLines(product, stock),
		Color:       r.Color,
	}
}

// ReputationEmbed answers /vouches.
func (r Renderer) ReputationEmbed(sellerName string, rep *services.SellerReputation) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: i18n.T(r.Lang, i18n.KeyReviewsTitle, sellerName),
		Color: r.Color,
	}
	if rep.AverageRating == nil {
		embed.Description = i18n.T(r.Lang, i18n.KeyReviewsNone)
		return embed
	}

	embed.Description = i18n.T(r.Lang, i18n.KeyReviewsSummary, rep.VouchCount, rep.AverageRating.StringFixed(1))
	for _, review := range rep.Recent {
		value := review.Comment
		if value == "" {
			value = "-"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  services.FormatStars(review.Rating),
			Value: fmt.Sprintf("<@%s>: %s", review.ReviewerID, value),
		})
	}
	return embed
}

// In returns a copy of r rendering in lang.
func (r Renderer) In(lang string) Renderer {
	r.Lang = lang
	return r
}
