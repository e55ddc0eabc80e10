// internal/bot/components.go
package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/services"
)

// handleAction runs a button press other than the payment selector.
func (b *Bot) handleAction(ctx context.Context, in *invocation, ref services.ActionRef) (*reply, error) {
	switch ref.Kind {
	case services.ActionBuy:
		product, err := b.svc.Products.GetProduct(ctx, ref.Target)
		if err != nil {
			return nil, err
		}
		return b.openTicket(ctx, in, product, ref.Arg)

	case services.ActionPaid:
		if _, err := b.svc.Tickets.ConfirmPayment(ctx, in.actor, ref.Target); err != nil {
			return nil, err
		}
		return textReply(in.t(i18n.KeyPaymentClaimedTitle)), nil

	case services.ActionDeliver:
		result, err := b.svc.Tickets.Deliver(ctx, in.actor, ref.Target)
		if err != nil {
			return nil, err
		}
		if result.Channel == services.DeliveryFailed {
			return textReply(in.t(i18n.KeyDeliveryFailed)), nil
		}
		return textReply(in.t(i18n.KeyDeliveryDoneTitle)), nil

	case services.ActionClose:
		if _, err := b.svc.Tickets.Close(ctx, in.actor, ref.Target, ""); err != nil {
			return nil, err
		}
		return textReply(in.t(i18n.KeyTicketCloseAck)), nil
	}
	return textReply(in.t(i18n.KeyUnknownCommand)), nil
}

// selectPayment records the chosen method and updates the selector message
// in place so that it cannot be used again.
func (b *Bot) selectPayment(ctx context.Context, in *invocation, ref services.ActionRef, log *logrus.Entry) {
	ticket, err := b.svc.Tickets.SelectPayment(ctx, in.actor, ref.Target, ref.Arg)
	if err != nil {
		b.respondEphemeral(in.interaction, b.errorReply(in.lang, err, log).content)
		return
	}

	components := Components(services.WelcomeActions(b.render.Lang, ticket.ID, ticket.PaymentMethod))
	err = b.api.InteractionRespond(in.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{Components: components},
	})
	if err != nil {
		log.WithError(err).Warn("Failed to disable payment selector")
	}
}
