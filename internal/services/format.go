// internal/services/format.go
package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
)

func FormatPrice(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

// FormatDuration renders d without zero suffix units, e.g. 24h, 15m, 1m30s.
func FormatDuration(d time.Duration) string {
	s := d.Round(time.Second).String()
	if strings.HasSuffix(s, "m0s") {
		s = strings.TrimSuffix(s, "0s")
	}
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return s
}

// FormatTimestamp renders t as a platform-localised timestamp.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:f>", t.Unix())
}

func FormatStars(rating int) string {
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

func PaymentMethodLabel(lang string, m models.PaymentMethod) string {
	return i18n.T(lang, i18n.KeyPaymentMethodLabel+string(m))
}

// tierSuffix renders "(monthly)" for tiered tickets and nothing for flat ones.
func tierSuffix(tier *models.LicenseTier) string {
	if tier == nil {
		return ""
	}
	return "(" + string(*tier) + ")"
}
