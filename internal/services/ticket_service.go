// internal/services/ticket_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/models"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

// errStateChanged signals that a guarded update matched no row because the
// ticket moved on concurrently.
var errStateChanged = errors.New("ticket state changed")

type TicketConfig struct {
	VouchWindow            time.Duration
	IdleCloseAfter         time.Duration
	PostDeliveryCloseAfter time.Duration
	CloseGrace             time.Duration
	PaymentInstructions    map[models.PaymentMethod]string
	ReviewsChannelID       string
	Lang                   string
}

type TicketDependencies struct {
	Config      TicketConfig
	Keys        *KeyService
	Products    *ProductService
	Reputation  *ReputationService
	Events      *EventService
	Transcripts *TranscriptService
	Platform    Platform
	Clock       func() time.Time
}

// TicketService drives the purchase ticket state machine.
type TicketService struct {
	db          *gorm.DB
	cfg         TicketConfig
	keys        *KeyService
	products    *ProductService
	reputation  *ReputationService
	events      *EventService
	transcripts *TranscriptService
	platform    Platform
	nowFn       func() time.Time
}

type OpenTicketRequest struct {
	BuyerID   string              `json:"buyer_id" validate:"required"`
	BuyerName string              `json:"buyer_name"`
	ProductID uuid.UUID           `json:"product_id" validate:"required"`
	Tier      *models.LicenseTier `json:"tier,omitempty"`
}

type VouchRequest struct {
	TicketID uuid.UUID `json:"ticket_id" validate:"required"`
	Rating   int       `json:"rating" validate:"gte=1,lte=5"`
	Comment  string    `json:"comment" validate:"max=1000"`
}

type TicketSearchParams struct {
	utils.PaginationParams
	Status   models.TicketStatus `json:"status,omitempty"`
	BuyerID  string              `json:"buyer_id,omitempty"`
	SellerID string              `json:"seller_id,omitempty"`
}

type DeliveryChannel string

const (
	DeliveredDirect   DeliveryChannel = "direct"
	DeliveredInTicket DeliveryChannel = "ticket_channel"
	DeliveryFailed    DeliveryChannel = "failed"
)

type DeliveryResult struct {
	Ticket            *models.Ticket
	KeyID             uuid.UUID
	Channel           DeliveryChannel
	RoleGranted       bool
	ListingsRefreshed bool
}

type closeRequest struct {
	status  models.TicketStatus
	reason  models.CloseReason
	actorID string
	note    string
}

func NewTicketService(db *gorm.DB, deps TicketDependencies) *TicketService {
	cfg := deps.Config
	if cfg.VouchWindow <= 0 {
		cfg.VouchWindow = 24 * time.Hour
	}
	if cfg.IdleCloseAfter <= 0 {
		cfg.IdleCloseAfter = 48 * time.Hour
	}
	if cfg.PostDeliveryCloseAfter <= 0 {
		cfg.PostDeliveryCloseAfter = 15 * time.Minute
	}
	if cfg.CloseGrace < 0 {
		cfg.CloseGrace = time.Minute
	}
	if cfg.Lang == "" {
		cfg.Lang = i18n.Default()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	reputation := deps.Reputation
	if reputation == nil {
		reputation = NewReputationService(db)
	}
	events := deps.Events
	if events == nil {
		events = NewEventService(db)
	}
	transcripts := deps.Transcripts
	if transcripts == nil {
		transcripts = NewTranscriptService(db)
	}

	return &TicketService{
		db:          db,
		cfg:         cfg,
		keys:        deps.Keys,
		products:    deps.Products,
		reputation:  reputation,
		events:      events,
		transcripts: transcripts,
		platform:    deps.Platform,
		nowFn:       clock,
	}
}

func (s *TicketService) now() time.Time {
	return s.nowFn().UTC()
}

func (s *TicketService) t(key string, args ...interface{}) string {
	return i18n.T(s.cfg.Lang, key, args...)
}

// Open starts a purchase: it checks the buyer has no active ticket and the
// tier is in stock, creates the private channel, persists the ticket and
// posts the payment method selector. Nothing is left behind on failure.
func (s *TicketService) Open(ctx context.Context, req *OpenTicketRequest) (*models.Ticket, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, validationFailed(err)
	}

	product, err := s.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	pricing := product.Pricing()
	tier := req.Tier
	if pricing.IsFlat() {
		tier = nil
	}
	price, err := pricing.PriceFor(tier)
	if err != nil {
		return nil, ErrTierNotOffered
	}

	db := s.db.WithContext(ctx)

	var active int64
	if err := db.Model(&models.Ticket{}).
		Where("buyer_id = ? AND status IN ?", req.BuyerID, models.ActiveTicketStatuses).
		Count(&active).Error; err != nil {
		return nil, fmt.Errorf("failed to check active tickets: %w", err)
	}
	if active > 0 {
		return nil, ErrActiveTicketExists
	}

	stock, err := s.keys.AvailableCount(ctx, product.ID, tier)
	if err != nil {
		return nil, err
	}
	if stock == 0 {
		return nil, ErrOutOfStock
	}

	now := s.now()
	ticket := &models.Ticket{
		BaseModel:      models.BaseModel{ID: uuid.New()},
		BuyerID:        req.BuyerID,
		SellerID:       product.SellerID,
		ProductID:      product.ID,
		ProductName:    product.Name,
		Tier:           tier,
		Price:          price,
		Status:         models.TicketStatusOpen,
		LastActivityAt: now,
	}

	log := logrus.WithFields(logrus.Fields{
		"ticket_id":  ticket.ID,
		"product_id": product.ID,
		"buyer_id":   req.BuyerID,
		"seller_id":  product.SellerID,
	})

	channelID, err := s.platform.CreateTicketChannel(ctx, TicketChannelSpec{
		TicketRef: ticket.ID.String()[:8],
		BuyerID:   req.BuyerID,
		BuyerName: req.BuyerName,
		SellerID:  product.SellerID,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create ticket channel")
		return nil, ErrTicketOpenFailed
	}
	ticket.ChannelID = channelID
	log = log.WithField("channel_id", channelID)

	var event *models.TicketEvent
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ticket).Error; err != nil {
			return err
		}
		event, err = s.events.Record(tx, ticket, models.TicketActionOpened, "", models.TicketStatusOpen, req.BuyerID, "")
		return err
	})
	if err != nil {
		s.discardChannel(ctx, channelID, log)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrActiveTicketExists
		}
		log.WithError(err).Error("Failed to persist ticket")
		return nil, ErrTicketOpenFailed
	}

	welcome := Notice{
		Tone:  ToneInfo,
		Title: s.t(i18n.KeyTicketWelcomeTitle),
		Body: s.t(i18n.KeyTicketWelcomeBody,
			req.BuyerID, product.Name, tierSuffix(tier), FormatPrice(price), product.SellerID),
		Actions: WelcomeActions(s.cfg.Lang, ticket.ID, nil),
	}
	if err := s.platform.Send(ctx, channelID, welcome); err != nil {
		log.WithError(err).Error("Failed to post payment selector")
		if derr := s.deleteTicket(ctx, ticket.ID); derr != nil {
			log.WithError(derr).Error("Failed to remove ticket after open failure")
		}
		s.discardChannel(ctx, channelID, log)
		return nil, ErrTicketOpenFailed
	}

	s.events.Publish(ctx, ticket, event)
	log.Info("Ticket opened")
	return ticket, nil
}

func (s *TicketService) discardChannel(ctx context.Context, channelID string, log *logrus.Entry) {
	if err := s.platform.DeleteChannel(ctx, channelID); err != nil {
		log.WithError(err).Error("Failed to delete channel of aborted ticket")
	}
}

// deleteTicket removes a ticket that never became usable.
func (s *TicketService) deleteTicket(ctx context.Context, ticketID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ticket_id = ?", ticketID).Delete(&models.TicketEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Ticket{}, "id = ?", ticketID).Error
	})
}

func (s *TicketService) GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	return loadTicket(s.db.WithContext(ctx), ticketID)
}

func loadTicket(db *gorm.DB, ticketID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := db.First(&ticket, "id = ?", ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &ticket, nil
}

// GetByChannel resolves the ticket bound to a channel.
func (s *TicketService) GetByChannel(ctx context.Context, channelID string) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).First(&ticket, "channel_id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &ticket, nil
}

func (s *TicketService) ListTickets(ctx context.Context, params TicketSearchParams) ([]models.Ticket, int64, error) {
	params.PaginationParams = utils.NormalizePagination(params.PaginationParams)
	query := s.db.WithContext(ctx).Model(&models.Ticket{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.BuyerID != "" {
		query = query.Where("buyer_id = ?", params.BuyerID)
	}
	if params.SellerID != "" {
		query = query.Where("seller_id = ?", params.SellerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	var tickets []models.Ticket
	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "last_activity_at", "status"})
	if err := utils.ApplyPagination(query, params.PaginationParams).Find(&tickets).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, total, nil
}

// transition applies a guarded status change inside tx. The update only
// matches while the ticket is still in from, so a duplicate or racing
// invocation changes nothing and yields errStateChanged.
func (s *TicketService) transition(tx *gorm.DB, ticket *models.Ticket, to models.TicketStatus, updates map[string]interface{}) error {
	from := ticket.Status
	if !from.CanAdvanceTo(to) {
		return ErrInvalidTicketState
	}

	now := s.now()
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	updates["updated_at"] = now
	if !to.IsTerminal() {
		updates["last_activity_at"] = now
	}

	result := tx.Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticket.ID, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update ticket: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errStateChanged
	}
	return nil
}

// reload re-reads the ticket after a guarded update lost a race so that the
// caller can report why.
func (s *TicketService) reload(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	return loadTicket(s.db.WithContext(ctx), ticketID)
}

// SelectPayment records the buyer's payment method. The selector is single
// use: once a method is chosen further selections are rejected.
func (s *TicketService) SelectPayment(ctx context.Context, actor Actor, ticketID uuid.UUID, method string) (*models.Ticket, error) {
	m, ok := models.ParsePaymentMethod(method)
	if !ok {
		return nil, ErrInvalidPaymentMethod
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := selectPaymentGuard(ticket, actor); err != nil {
		return nil, err
	}

	var event *models.TicketEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, ticket, models.TicketStatusPaymentSelected, map[string]interface{}{
			"payment_method": m,
		}); err != nil {
			return err
		}
		event, err = s.events.Record(tx, ticket, models.TicketActionPaymentSelected,
			ticket.Status, models.TicketStatusPaymentSelected, actor.UserID, string(m))
		return err
	})
	if errors.Is(err, errStateChanged) {
		if current, rerr := s.reload(ctx, ticketID); rerr == nil {
			if gerr := selectPaymentGuard(current, actor); gerr != nil {
				return nil, gerr
			}
		}
		return nil, ErrPaymentAlreadySelected
	}
	if err != nil {
		return nil, err
	}

	ticket.Status = models.TicketStatusPaymentSelected
	ticket.PaymentMethod = &m

	instructions := Notice{
		Tone:  ToneInfo,
		Title: s.t(i18n.KeyPaymentInstructionTitle, PaymentMethodLabel(s.cfg.Lang, m)),
		Body:  s.t(i18n.KeyPaymentInstructionBody, s.cfg.PaymentInstructions[m], FormatPrice(ticket.Price)),
		Actions: []Action{{
			ID:    PaidActionID(ticket.ID),
			Label: s.t(i18n.KeyButtonPaid),
			Style: ActionSuccess,
		}},
	}
	if err := s.platform.Send(ctx, ticket.ChannelID, instructions); err != nil {
		logrus.WithError(err).WithField("ticket_id", ticket.ID).Warn("Failed to post payment instructions")
	}

	s.events.Publish(ctx, ticket, event)
	return ticket, nil
}

func selectPaymentGuard(ticket *models.Ticket, actor Actor) error {
	switch {
	case ticket.Status.IsTerminal():
		return ErrTicketClosed
	case actor.UserID != ticket.BuyerID:
		return ErrNotAuthorized
	case ticket.Status != models.TicketStatusOpen:
		return ErrPaymentAlreadySelected
	}
	return nil
}

// ConfirmPayment records the buyer's attestation that payment was sent and
// prompts the seller to deliver. A second confirmation is rejected.
func (s *TicketService) ConfirmPayment(ctx context.Context, actor Actor, ticketID uuid.UUID) (*models.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := confirmPaymentGuard(ticket, actor); err != nil {
		return nil, err
	}

	now := s.now()
	var event *models.TicketEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, ticket, models.TicketStatusPaymentClaimed, map[string]interface{}{
			"payment_claimed_at": now,
		}); err != nil {
			return err
		}
		event, err = s.events.Record(tx, ticket, models.TicketActionPaymentClaimed,
			ticket.Status, models.TicketStatusPaymentClaimed, actor.UserID, "")
		return err
	})
	if errors.Is(err, errStateChanged) {
		if current, rerr := s.reload(ctx, ticketID); rerr == nil {
			if gerr := confirmPaymentGuard(current, actor); gerr != nil {
				return nil, gerr
			}
		}
		return nil, ErrPaymentAlreadyConfirmed
	}
	if err != nil {
		return nil, err
	}

	ticket.Status = models.TicketStatusPaymentClaimed
	ticket.PaymentClaimedAt = &now

	method := ""
	if ticket.PaymentMethod != nil {
		method = PaymentMethodLabel(s.cfg.Lang, *ticket.PaymentMethod)
	}
	prompt := Notice{
		Tone:  ToneWarning,
		Title: s.t(i18n.KeyPaymentClaimedTitle),
		Body:  s.t(i18n.KeyPaymentClaimedBody, ticket.BuyerID, method, ticket.SellerID),
		Actions: []Action{{
			ID:    DeliverActionID(ticket.ID),
			Label: s.t(i18n.KeyButtonDeliver),
			Style: ActionSuccess,
		}},
	}
	if err := s.platform.Send(ctx, ticket.ChannelID, prompt); err != nil {
		logrus.WithError(err).WithField("ticket_id", ticket.ID).Warn("Failed to prompt seller")
	}

	s.events.Publish(ctx, ticket, event)
	return ticket, nil
}

func confirmPaymentGuard(ticket *models.Ticket, actor Actor) error {
	switch {
	case ticket.Status.IsTerminal():
		return ErrTicketClosed
	case actor.UserID != ticket.BuyerID:
		return ErrNotAuthorized
	case ticket.Status == models.TicketStatusOpen:
		return ErrPaymentMethodRequired
	case ticket.Status != models.TicketStatusPaymentSelected:
		return ErrPaymentAlreadyConfirmed
	}
	return nil
}

func deliverGuard(ticket *models.Ticket, actor Actor) error {
	switch {
	case ticket.Status.IsTerminal():
		return ErrTicketClosed
	case actor.UserID != ticket.SellerID:
		return ErrNotAuthorized
	case ticket.Status != models.TicketStatusPaymentClaimed:
		return ErrInvalidTicketState
	}
	return nil
}

// Deliver is the seller's confirm and deliver action. The status change, key
// claim and follow-up timers commit together; an empty pool rolls all of it
// back and leaves the ticket awaiting the seller. The secret is then handed
// to the buyer out of band, followed by the buyer role and listing refresh,
// neither of which can undo the delivery.
func (s *TicketService) Deliver(ctx context.Context, actor Actor, ticketID uuid.UUID) (*DeliveryResult, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := deliverGuard(ticket, actor); err != nil {
		return nil, err
	}

	log := logrus.WithFields(logrus.Fields{
		"ticket_id":  ticket.ID,
		"product_id": ticket.ProductID,
		"buyer_id":   ticket.BuyerID,
	})

	now := s.now()
	var key *models.LicenseKey
	var event *models.TicketEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, ticket, models.TicketStatusDelivered, map[string]interface{}{
			"delivered_at": now,
		}); err != nil {
			return err
		}

		var err error
		key, err = s.keys.claim(tx, ticket.ProductID, ticket.Tier, ticket.BuyerID, &ticket.ID)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.Ticket{}).Where("id = ?", ticket.ID).
			Update("key_id", key.ID).Error; err != nil {
			return fmt.Errorf("failed to link key: %w", err)
		}

		if err := scheduleJob(tx, ticket.ID, models.JobKindVouchExpiry, now.Add(s.cfg.VouchWindow)); err != nil {
			return err
		}
		if err := scheduleJob(tx, ticket.ID, models.JobKindPostDeliveryClose, now.Add(s.cfg.PostDeliveryCloseAfter)); err != nil {
			return err
		}

		event, err = s.events.Record(tx, ticket, models.TicketActionDelivered,
			ticket.Status, models.TicketStatusDelivered, actor.UserID, key.ID.String())
		return err
	})
	if errors.Is(err, errStateChanged) {
		if current, rerr := s.reload(ctx, ticketID); rerr == nil {
			if gerr := deliverGuard(current, actor); gerr != nil {
				return nil, gerr
			}
		}
		return nil, ErrInvalidTicketState
	}
	if errors.Is(err, ErrOutOfStock) {
		log.Warn("Delivery aborted: out of stock")
		return nil, ErrOutOfStock
	}
	if err != nil {
		return nil, err
	}

	ticket.Status = models.TicketStatusDelivered
	ticket.DeliveredAt = &now
	ticket.KeyID = &key.ID
	log = log.WithField("key_id", key.ID)

	result := &DeliveryResult{Ticket: ticket, KeyID: key.ID}
	result.Channel = s.handOver(ctx, ticket, key, log)

	if result.Channel == DeliveredDirect {
		s.notify(ctx, ticket.ChannelID, Notice{
			Tone:  ToneSuccess,
			Title: s.t(i18n.KeyDeliveryDoneTitle),
			Body:  s.t(i18n.KeyDeliveryDoneBody, ticket.BuyerID, FormatDuration(s.cfg.VouchWindow)),
		}, log)
	}

	if err := s.platform.GrantBuyerRole(ctx, ticket.BuyerID); err != nil {
		log.WithError(err).Warn("Failed to grant buyer role")
		s.notify(ctx, ticket.ChannelID, Notice{Tone: ToneWarning, Body: s.t(i18n.KeyDeliveryRoleGrantFailed)}, log)
	} else {
		result.RoleGranted = true
	}

	if err := s.products.RefreshListings(ctx, ticket.ProductID); err != nil {
		log.WithError(err).Warn("Failed to refresh listing stock")
		s.notify(ctx, ticket.ChannelID, Notice{Tone: ToneWarning, Body: s.t(i18n.KeyDeliveryStockRefresh)}, log)
	} else {
		result.ListingsRefreshed = true
	}

	s.events.Publish(ctx, ticket, event)
	log.WithField("delivery", result.Channel).Info("Ticket delivered")
	return result, nil
}

// handOver sends the secret to the buyer privately, falling back to the
// ticket channel when private messages are refused.
func (s *TicketService) handOver(ctx context.Context, ticket *models.Ticket, key *models.LicenseKey, log *logrus.Entry) DeliveryChannel {
	direct := Notice{
		Tone:  ToneSuccess,
		Title: s.t(i18n.KeyDeliveryKeyTitle),
		Body:  s.t(i18n.KeyDeliveryKeyBody, ticket.ProductName, tierSuffix(ticket.Tier), key.Secret),
	}
	err := s.platform.SendDirect(ctx, ticket.BuyerID, direct)
	if err == nil {
		return DeliveredDirect
	}
	if errors.Is(err, ErrDirectMessageRefused) {
		log.Info("Buyer refuses direct messages, delivering in ticket channel")
	} else {
		log.WithError(err).Warn("Direct delivery failed, delivering in ticket channel")
	}

	fallback := Notice{
		Tone:  ToneWarning,
		Title: s.t(i18n.KeyDeliveryFallbackTitle),
		Body:  s.t(i18n.KeyDeliveryFallbackBody, ticket.BuyerID, ticket.ProductName, tierSuffix(ticket.Tier), key.Secret),
	}
	if err := s.platform.Send(ctx, ticket.ChannelID, fallback); err == nil {
		return DeliveredInTicket
	}
	log.Error("In-channel delivery failed")

	s.notify(ctx, ticket.ChannelID, Notice{Tone: ToneDanger, Body: s.t(i18n.KeyDeliveryFailed)}, log)
	return DeliveryFailed
}

func (s *TicketService) notify(ctx context.Context, channelID string, notice Notice, log *logrus.Entry) {
	if channelID == "" {
		return
	}
	if err := s.platform.Send(ctx, channelID, notice); err != nil {
		log.WithError(err).Warn("Failed to post notice")
	}
}

// Redeliver sends the already claimed key of a ticket to its buyer again.
func (s *TicketService) Redeliver(ctx context.Context, actor Actor, ticketID uuid.UUID) (DeliveryChannel, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if actor.UserID != ticket.SellerID && !actor.Admin {
		return "", ErrNotAuthorized
	}
	if ticket.KeyID == nil {
		return "", ErrNotDelivered
	}

	key, err := s.keys.GetKey(ctx, *ticket.KeyID)
	if err != nil {
		return "", err
	}

	log := logrus.WithFields(logrus.Fields{"ticket_id": ticket.ID, "key_id": key.ID})
	channel := s.handOver(ctx, ticket, key, log)

	var event *models.TicketEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		event, err = s.events.Record(tx, ticket, models.TicketActionRedelivered, "", "", actor.UserID, string(channel))
		return err
	})
	if err != nil {
		log.WithError(err).Warn("Failed to record redelivery")
	} else {
		s.events.Publish(ctx, ticket, event)
	}
	return channel, nil
}

// FindVouchable returns the buyer's most recent delivered ticket that can
// still be vouched.
func (s *TicketService) FindVouchable(ctx context.Context, buyerID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.db.WithContext(ctx).
		Where("buyer_id = ? AND delivered_at IS NOT NULL AND vouched = ? AND status <> ?",
			buyerID, false, models.TicketStatusForceClosed).
		Order("delivered_at DESC").
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotDelivered
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !s.now().Before(*ticket.VouchDeadline(s.cfg.VouchWindow)) {
		return nil, ErrVouchWindowClosed
	}
	return &ticket, nil
}

func (s *TicketService) vouchGuard(ticket *models.Ticket, actor Actor) error {
	switch {
	case actor.UserID != ticket.BuyerID:
		return ErrNotAuthorized
	case ticket.Vouched:
		return ErrAlreadyVouched
	case ticket.Status == models.TicketStatusForceClosed:
		return ErrTicketClosed
	case ticket.DeliveredAt == nil:
		return ErrNotDelivered
	case !s.now().Before(*ticket.VouchDeadline(s.cfg.VouchWindow)):
		return ErrVouchWindowClosed
	}
	return nil
}

// Vouch records the buyer's rating of a delivered purchase. It is accepted
// once per ticket while the vouch window is open, also after the ticket
// channel was closed.
func (s *TicketService) Vouch(ctx context.Context, actor Actor, req *VouchRequest) (*models.Review, error) {
	if err := utils.ValidateStruct(req); err != nil {
		if req.Rating < 1 || req.Rating > 5 {
			return nil, ErrInvalidRating
		}
		return nil, validationFailed(err)
	}

	ticket, err := s.GetTicket(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if err := s.vouchGuard(ticket, actor); err != nil {
		return nil, err
	}

	now := s.now()
	var review *models.Review
	var event *models.TicketEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Ticket{}).
			Where("id = ? AND vouched = ? AND delivered_at IS NOT NULL AND status <> ?",
				ticket.ID, false, models.TicketStatusForceClosed).
			Updates(map[string]interface{}{
				"vouched":    true,
				"vouched_at": now,
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark ticket vouched: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyVouched
		}

		var err error
		review, err = s.reputation.recordReview(tx, ticket, req.Rating, req.Comment)
		if err != nil {
			return err
		}

		if err := cancelJob(tx, ticket.ID, models.JobKindVouchExpiry, now); err != nil {
			return err
		}

		event, err = s.events.Record(tx, ticket, models.TicketActionVouched, "", "", actor.UserID, fmt.Sprintf("rating=%d", req.Rating))
		return err
	})
	if err != nil {
		return nil, err
	}

	ticket.Vouched = true
	ticket.VouchedAt = &now

	if s.cfg.ReviewsChannelID != "" {
		s.notify(ctx, s.cfg.ReviewsChannelID, Notice{
			Tone:  ToneSuccess,
			Title: s.t(i18n.KeyVouchPublicTitle),
			Body: s.t(i18n.KeyVouchPublicBody, ticket.BuyerID, ticket.SellerID,
				FormatStars(req.Rating), ticket.ProductName, req.Comment),
		}, logrus.WithField("ticket_id", ticket.ID))
	}

	s.events.Publish(ctx, ticket, event)
	logrus.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"seller_id": ticket.SellerID,
		"rating":    req.Rating,
	}).Info("Ticket vouched")
	return review, nil
}

// AssignHandler records the admin handling a ticket.
func (s *TicketService) AssignHandler(ctx context.Context, actor Actor, ticketID uuid.UUID) (*models.Ticket, error) {
	if !actor.Admin {
		return nil, ErrNotAuthorized
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, ErrTicketClosed
	}

	var event *models.TicketEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Ticket{}).
			Where("id = ? AND status IN ?", ticket.ID, models.ActiveTicketStatuses).
			Updates(map[string]interface{}{
				"handled_by":       actor.UserID,
				"last_activity_at": s.now(),
				"updated_at":       s.now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to assign handler: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTicketClosed
		}
		var err error
		event, err = s.events.Record(tx, ticket, models.TicketActionHandlerAssigned, "", "", actor.UserID, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	handler := actor.UserID
	ticket.HandledBy = &handler
	s.notify(ctx, ticket.ChannelID, Notice{Tone: ToneInfo, Body: s.t(i18n.KeyTicketHandlerAssigned, actor.UserID)},
		logrus.WithField("ticket_id", ticket.ID))
	s.events.Publish(ctx, ticket, event)
	return ticket, nil
}

// Close is the manual close by the buyer, the seller or an admin.
func (s *TicketService) Close(ctx context.Context, actor Actor, ticketID uuid.UUID, note string) (*models.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsParticipant(actor.UserID) && !actor.Admin {
		return nil, ErrNotAuthorized
	}

	return s.close(ctx, ticket, closeRequest{
		status:  models.TicketStatusClosed,
		reason:  models.CloseReasonManual,
		actorID: actor.UserID,
		note:    note,
	})
}

// ForceClose lets an admin terminate a ticket in any state. Both parties
// are told privately, best effort.
func (s *TicketService) ForceClose(ctx context.Context, actor Actor, ticketID uuid.UUID, reason string) (*models.Ticket, error) {
	if !actor.Admin {
		return nil, ErrNotAuthorized
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	closed, err := s.close(ctx, ticket, closeRequest{
		status:  models.TicketStatusForceClosed,
		reason:  models.CloseReasonForceClosed,
		actorID: actor.UserID,
		note:    reason,
	})
	if err != nil {
		return nil, err
	}

	dm := Notice{Tone: ToneDanger, Body: s.t(i18n.KeyTicketForceClosedDM, closed.ProductName, reason)}
	for _, userID := range []string{closed.BuyerID, closed.SellerID} {
		if err := s.platform.SendDirect(ctx, userID, dm); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"ticket_id": closed.ID,
				"user_id":   userID,
			}).Warn("Failed to notify party of force close")
		}
	}
	return closed, nil
}

// close is shared by every close path: it moves the ticket to a terminal
// status, archives the transcript, posts the final warning and schedules
// the channel for deletion after the grace period.
func (s *TicketService) close(ctx context.Context, ticket *models.Ticket, req closeRequest) (*models.Ticket, error) {
	log := logrus.WithFields(logrus.Fields{
		"ticket_id": ticket.ID,
		"reason":    req.reason,
	})

	var event *models.TicketEvent
	now := s.now()
	for attempt := 0; attempt < 3; attempt++ {
		if ticket.Status.IsTerminal() {
			return nil, ErrTicketClosed
		}

		updates := map[string]interface{}{
			"closed_at":    now,
			"close_reason": req.reason,
			"close_note":   req.note,
		}
		if req.actorID != "" {
			updates["closed_by"] = req.actorID
		}

		from := ticket.Status
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.transition(tx, ticket, req.status, updates); err != nil {
				return err
			}
			if err := cancelJob(tx, ticket.ID, models.JobKindPostDeliveryClose, now); err != nil {
				return err
			}
			if err := scheduleJob(tx, ticket.ID, models.JobKindDestroyChannel, now.Add(s.cfg.CloseGrace)); err != nil {
				return err
			}
			actorID := req.actorID
			if actorID == "" {
				actorID = systemActorID
			}
			var err error
			event, err = s.events.Record(tx, ticket, models.TicketActionClosed, from, req.status, actorID, string(req.reason))
			return err
		})
		if errors.Is(err, errStateChanged) {
			current, rerr := s.reload(ctx, ticket.ID)
			if rerr != nil {
				return nil, rerr
			}
			ticket = current
			continue
		}
		if err != nil {
			return nil, err
		}

		reason := req.reason
		ticket.Status = req.status
		ticket.ClosedAt = &now
		ticket.CloseReason = &reason
		ticket.CloseNote = req.note
		if req.actorID != "" {
			actorID := req.actorID
			ticket.ClosedBy = &actorID
		}

		if err := s.transcripts.Archive(ctx, ticket.ID); err != nil {
			log.WithError(err).Warn("Transcript archive incomplete")
		}

		s.notify(ctx, ticket.ChannelID, s.closingNotice(ticket, req), log)
		s.events.Publish(ctx, ticket, event)
		log.Info("Ticket closed")
		return ticket, nil
	}
	return nil, ErrInvalidTicketState
}

func (s *TicketService) closingNotice(ticket *models.Ticket, req closeRequest) Notice {
	grace := FormatDuration(s.cfg.CloseGrace)
	notice := Notice{Tone: ToneWarning, Title: s.t(i18n.KeyTicketClosingTitle)}
	switch req.reason {
	case models.CloseReasonAutoClosed:
		notice.Body = s.t(i18n.KeyTicketClosedIdle, FormatDuration(s.cfg.IdleCloseAfter), grace)
	case models.CloseReasonPostDelivery:
		deadline := s.now().Add(s.cfg.VouchWindow)
		if d := ticket.VouchDeadline(s.cfg.VouchWindow); d != nil {
			deadline = *d
		}
		notice.Body = s.t(i18n.KeyTicketClosedDelivery, grace, FormatTimestamp(deadline))
	case models.CloseReasonForceClosed:
		notice.Tone = ToneDanger
		notice.Body = s.t(i18n.KeyTicketClosedForce, req.note, grace)
	default:
		notice.Body = s.t(i18n.KeyTicketClosedManual, req.actorID, grace)
	}
	return notice
}

// SweepIdle closes every active ticket whose last activity predates the
// idle threshold. Failures are logged per ticket.
func (s *TicketService) SweepIdle(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.IdleCloseAfter)

	var tickets []models.Ticket
	if err := s.db.WithContext(ctx).
		Where("status IN ? AND last_activity_at < ?", models.ActiveTicketStatuses, cutoff).
		Order("last_activity_at ASC").
		Find(&tickets).Error; err != nil {
		return 0, fmt.Errorf("failed to find idle tickets: %w", err)
	}

	closed := 0
	for i := range tickets {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		_, err := s.close(ctx, &tickets[i], closeRequest{
			status: models.TicketStatusClosed,
			reason: models.CloseReasonAutoClosed,
		})
		if err != nil {
			if !errors.Is(err, ErrTicketClosed) {
				logrus.WithError(err).WithField("ticket_id", tickets[i].ID).Error("Failed to auto-close idle ticket")
			}
			continue
		}
		closed++
	}
	return closed, nil
}

// HandleJob runs a scheduled job. Every handler re-reads the ticket and does
// nothing when the job no longer applies.
func (s *TicketService) HandleJob(ctx context.Context, job *models.ScheduledJob) error {
	ticket, err := s.GetTicket(ctx, job.TicketID)
	if errors.Is(err, ErrTicketNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch job.Kind {
	case models.JobKindVouchExpiry:
		return s.expireVouchWindow(ctx, ticket)
	case models.JobKindPostDeliveryClose:
		return s.closeAfterDelivery(ctx, ticket)
	case models.JobKindDestroyChannel:
		return s.destroyChannel(ctx, ticket)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// expireVouchWindow revokes the buyer role when the purchase was not
// vouched in time.
func (s *TicketService) expireVouchWindow(ctx context.Context, ticket *models.Ticket) error {
	if ticket.Vouched || ticket.Status == models.TicketStatusForceClosed || ticket.DeliveredAt == nil {
		return nil
	}

	// ticket may predate a vouch that committed after the job was claimed.
	vouched, err := s.isVouched(ctx, ticket.ID)
	if err != nil {
		return err
	}
	if vouched {
		return nil
	}

	if err := s.platform.RevokeBuyerRole(ctx, ticket.BuyerID); err != nil {
		return fmt.Errorf("failed to revoke buyer role: %w", err)
	}

	log := logrus.WithField("ticket_id", ticket.ID)
	if vouched, err := s.isVouched(ctx, ticket.ID); err != nil {
		log.WithError(err).Warn("Failed to re-check vouch after revoking role")
	} else if vouched {
		if err := s.platform.GrantBuyerRole(ctx, ticket.BuyerID); err != nil {
			log.WithError(err).Error("Failed to restore buyer role after late vouch")
		} else {
			log.Info("Vouch landed during expiry, buyer role restored")
		}
		return nil
	}

	notice := Notice{Tone: ToneInfo, Body: s.t(i18n.KeyVouchExpired)}
	if ticket.Status.IsTerminal() {
		if err := s.platform.SendDirect(ctx, ticket.BuyerID, notice); err != nil {
			log.WithError(err).Debug("Failed to notify buyer of vouch expiry")
		}
	} else {
		s.notify(ctx, ticket.ChannelID, notice, log)
	}

	var event *models.TicketEvent
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		event, err = s.events.Record(tx, ticket, models.TicketActionVouchExpired, "", "", systemActorID, "")
		return err
	})
	if err != nil {
		log.WithError(err).Warn("Failed to record vouch expiry")
		return nil
	}
	s.events.Publish(ctx, ticket, event)
	log.Info("Vouch window expired, buyer role revoked")
	return nil
}

func (s *TicketService) isVouched(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	var vouched bool
	err := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", ticketID).Select("vouched").Scan(&vouched).Error
	if err != nil {
		return false, fmt.Errorf("failed to read vouch state: %w", err)
	}
	return vouched, nil
}

// closeAfterDelivery closes a delivered ticket once the post-delivery
// window passed, regardless of activity.
func (s *TicketService) closeAfterDelivery(ctx context.Context, ticket *models.Ticket) error {
	if ticket.Status != models.TicketStatusDelivered {
		return nil
	}
	_, err := s.close(ctx, ticket, closeRequest{
		status: models.TicketStatusClosed,
		reason: models.CloseReasonPostDelivery,
	})
	if errors.Is(err, ErrTicketClosed) {
		return nil
	}
	return err
}

func (s *TicketService) destroyChannel(ctx context.Context, ticket *models.Ticket) error {
	if !ticket.Status.IsTerminal() {
		return nil
	}
	if err := s.platform.DeleteChannel(ctx, ticket.ChannelID); err != nil {
		return fmt.Errorf("failed to delete ticket channel: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"ticket_id":  ticket.ID,
		"channel_id": ticket.ChannelID,
	}).Info("Ticket channel deleted")
	return nil
}
