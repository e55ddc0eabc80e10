// internal/services/actions.go
package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
)

type ActionKind string

const (
	ActionBuy     ActionKind = "buy"
	ActionPay     ActionKind = "pay"
	ActionPaid    ActionKind = "paid"
	ActionDeliver ActionKind = "deliver"
	ActionClose   ActionKind = "close"
)

// ActionRef is a decoded action ID. Target is a product ID for buy actions
// and a ticket ID otherwise.
type ActionRef struct {
	Kind   ActionKind
	Target uuid.UUID
	Arg    string
}

func (a ActionRef) String() string {
	if a.Arg == "" {
		return fmt.Sprintf("%s:%s", a.Kind, a.Target)
	}
	return fmt.Sprintf("%s:%s:%s", a.Kind, a.Target, a.Arg)
}

func BuyActionID(productID uuid.UUID, tier *models.LicenseTier) string {
	ref := ActionRef{Kind: ActionBuy, Target: productID}
	if tier != nil {
		ref.Arg = string(*tier)
	}
	return ref.String()
}

func PayActionID(ticketID uuid.UUID, method models.PaymentMethod) string {
	return ActionRef{Kind: ActionPay, Target: ticketID, Arg: string(method)}.String()
}

func PaidActionID(ticketID uuid.UUID) string {
	return ActionRef{Kind: ActionPaid, Target: ticketID}.String()
}

func DeliverActionID(ticketID uuid.UUID) string {
	return ActionRef{Kind: ActionDeliver, Target: ticketID}.String()
}

func CloseActionID(ticketID uuid.UUID) string {
	return ActionRef{Kind: ActionClose, Target: ticketID}.String()
}

// ParseAction decodes an action ID produced by the builders above.
func ParseAction(id string) (ActionRef, error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) < 2 {
		return ActionRef{}, fmt.Errorf("malformed action id %q", id)
	}

	ref := ActionRef{Kind: ActionKind(parts[0])}
	switch ref.Kind {
	case ActionBuy, ActionPay, ActionPaid, ActionDeliver, ActionClose:
	default:
		return ActionRef{}, fmt.Errorf("unknown action %q", parts[0])
	}

	target, err := uuid.Parse(parts[1])
	if err != nil {
		return ActionRef{}, fmt.Errorf("malformed action target %q: %w", parts[1], err)
	}
	ref.Target = target

	if len(parts) == 3 {
		ref.Arg = parts[2]
	}
	if ref.Kind == ActionPay && ref.Arg == "" {
		return ActionRef{}, fmt.Errorf("pay action %q has no method", id)
	}
	return ref, nil
}

// PaymentActions builds the single-use payment method selector. When
// selected is set every button is disabled and the chosen one highlighted.
func PaymentActions(lang string, ticketID uuid.UUID, selected *models.PaymentMethod) []Action {
	actions := make([]Action, 0, len(models.PaymentMethods))
	for _, m := range models.PaymentMethods {
		style := ActionSecondary
		if selected != nil && *selected == m {
			style = ActionSuccess
		}
		actions = append(actions, Action{
			ID:       PayActionID(ticketID, m),
			Label:    PaymentMethodLabel(lang, m),
			Style:    style,
			Disabled: selected != nil,
		})
	}
	return actions
}

// WelcomeActions are the buttons on a ticket's welcome message: the payment
// selector followed by Close, which stays usable after a method is picked.
func WelcomeActions(lang string, ticketID uuid.UUID, selected *models.PaymentMethod) []Action {
	return append(PaymentActions(lang, ticketID, selected), Action{
		ID:    CloseActionID(ticketID),
		Label: i18n.T(lang, i18n.KeyButtonClose),
		Style: ActionDanger,
	})
}
