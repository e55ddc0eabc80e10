// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeyErrorGeneric    = "error.generic"
	KeyErrorValidation = "error.validation"
	KeyRateLimited     = "error.rate_limited"
	KeyNotAuthorized   = "error.not_authorized"
	KeyGuildOnly       = "command.guild_only"
	KeyUnknownCommand  = "command.unknown"

	// Authentication (ops API)
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthTokenExpired  = "auth.token_expired"
	KeyAdminAccessDenied = "admin.access_denied"

	// Products
	KeyProductCreated      = "product.created"
	KeyProductDeleted      = "product.deleted"
	KeyProductNotFound     = "product.not_found"
	KeyProductExists       = "product.exists"
	KeyProductTierNotFound = "product.tier_not_offered"
	KeyProductOutOfStock   = "product.out_of_stock"
	KeyPanelCreated        = "panel.created"
	KeyListingPrice        = "listing.price"
	KeyListingPrices       = "listing.prices"
	KeyListingFeatures     = "listing.features"
	KeyListingSeller       = "listing.seller"

	// Keys and stock
	KeyKeyAdded            = "key.added"
	KeyKeyDuplicateWarning = "key.duplicate_warning"
	KeyKeyRemoved          = "key.removed"
	KeyKeyRemovedAll       = "key.removed_all"
	KeyKeyNotFound         = "key.not_found"
	KeyStockTitle          = "stock.title"
	KeyStockField          = "stock.field"
	KeyStockLine           = "stock.line"
	KeyStockNone           = "stock.none"

	// Tickets
	KeyTicketOpened          = "ticket.opened"
	KeyTicketWelcomeTitle    = "ticket.welcome.title"
	KeyTicketWelcomeBody     = "ticket.welcome.body"
	KeyTicketActiveExists    = "ticket.active_exists"
	KeyTicketNotFound        = "ticket.not_found"
	KeyTicketClosed          = "ticket.closed"
	KeyTicketInvalidState    = "ticket.invalid_state"
	KeyTicketOpenFailed      = "ticket.open_failed"
	KeyTicketNotDelivered    = "ticket.not_delivered"
	KeyTicketClosingTitle    = "ticket.closing.title"
	KeyTicketClosedManual    = "ticket.closing.manual"
	KeyTicketClosedIdle      = "ticket.closing.idle"
	KeyTicketClosedDelivery  = "ticket.closing.post_delivery"
	KeyTicketClosedForce     = "ticket.closing.force"
	KeyTicketForceClosedDM   = "ticket.force_closed.dm"
	KeyTicketHandlerAssigned = "ticket.handler_assigned"
	KeyTicketCloseAck        = "ticket.close_ack"
	KeyTicketForceCloseAck   = "ticket.force_closed.ack"
	KeyTicketClaimAck        = "ticket.claim_ack"

	// Payments
	KeyPaymentMethodLabel      = "payment.method."
	KeyPaymentInstructionTitle = "payment.instructions.title"
	KeyPaymentInstructionBody  = "payment.instructions.body"
	KeyPaymentClaimedTitle     = "payment.claimed.title"
	KeyPaymentClaimedBody      = "payment.claimed.body"
	KeyPaymentAlreadySelected  = "payment.already_selected"
	KeyPaymentAlreadyConfirmed = "payment.already_confirmed"
	KeyPaymentMethodRequired   = "payment.method_required"
	KeyPaymentInvalidMethod    = "payment.invalid_method"

	// Delivery
	KeyDeliveryKeyTitle        = "delivery.key.title"
	KeyDeliveryKeyBody         = "delivery.key.body"
	KeyDeliveryDoneTitle       = "delivery.done.title"
	KeyDeliveryDoneBody        = "delivery.done.body"
	KeyDeliveryFallbackTitle   = "delivery.fallback.title"
	KeyDeliveryFallbackBody    = "delivery.fallback.body"
	KeyDeliveryFailed          = "delivery.failed"
	KeyDeliveryStockRefresh    = "delivery.stock_refresh_failed"
	KeyDeliveryResent          = "delivery.resent"
	KeyDeliveryRoleGrantFailed = "delivery.role_grant_failed"

	// Vouches
	KeyVouchThanks        = "vouch.thanks"
	KeyVouchPublicTitle   = "vouch.public.title"
	KeyVouchPublicBody    = "vouch.public.body"
	KeyVouchExpired       = "vouch.expired"
	KeyVouchAlready       = "vouch.already_vouched"
	KeyVouchInvalidRating = "vouch.invalid_rating"
	KeyVouchWindowClosed  = "vouch.window_closed"
	KeyReviewsTitle       = "reviews.title"
	KeyReviewsSummary     = "reviews.summary"
	KeyReviewsNone        = "reviews.none"

	// Buttons
	KeyButtonBuy     = "button.buy"
	KeyButtonPaid    = "button.paid"
	KeyButtonDeliver = "button.deliver"
	KeyButtonClose   = "button.close"

	// Bot logs channel
	KeyLogEvent = "log.event"
)
