// internal/services/event_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/keyshop-bot/internal/models"
)

// TicketEventMessage is the published form of a ticket event.
type TicketEventMessage struct {
	EventID    uuid.UUID           `json:"event_id"`
	TicketID   uuid.UUID           `json:"ticket_id"`
	Action     string              `json:"action"`
	FromStatus models.TicketStatus `json:"from_status,omitempty"`
	ToStatus   models.TicketStatus `json:"to_status,omitempty"`
	ActorID    string              `json:"actor_id,omitempty"`
	Note       string              `json:"note,omitempty"`
	BuyerID    string              `json:"buyer_id"`
	SellerID   string              `json:"seller_id"`
	ProductID  uuid.UUID           `json:"product_id"`
	ChannelID  string              `json:"channel_id"`
	OccurredAt time.Time           `json:"occurred_at"`
}

type EventService struct {
	db    *gorm.DB
	sinks []EventSink
}

func NewEventService(db *gorm.DB, sinks ...EventSink) *EventService {
	return &EventService{db: db, sinks: sinks}
}

func (s *EventService) AddSink(sink EventSink) {
	s.sinks = append(s.sinks, sink)
}

// Record writes a ticket event inside tx.
func (s *EventService) Record(tx *gorm.DB, ticket *models.Ticket, action string, from, to models.TicketStatus, actorID, note string) (*models.TicketEvent, error) {
	event := &models.TicketEvent{
		TicketID:   ticket.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		Note:       note,
	}
	if err := tx.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to record ticket event: %w", err)
	}
	return event, nil
}

// Publish fans a committed event out to every sink. Sink failures are
// logged and never returned.
func (s *EventService) Publish(ctx context.Context, ticket *models.Ticket, event *models.TicketEvent) {
	if event == nil || len(s.sinks) == 0 {
		return
	}

	msg := &TicketEventMessage{
		EventID:    event.ID,
		TicketID:   ticket.ID,
		Action:     event.Action,
		FromStatus: event.FromStatus,
		ToStatus:   event.ToStatus,
		ActorID:    event.ActorID,
		Note:       event.Note,
		BuyerID:    ticket.BuyerID,
		SellerID:   ticket.SellerID,
		ProductID:  ticket.ProductID,
		ChannelID:  ticket.ChannelID,
		OccurredAt: event.CreatedAt,
	}

	for _, sink := range s.sinks {
		if err := sink.PublishTicketEvent(ctx, msg); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"ticket_id": ticket.ID,
				"action":    event.Action,
			}).Warn("Failed to publish ticket event")
		}
	}
}

func (s *EventService) ListForTicket(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvent, error) {
	var events []models.TicketEvent
	if err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list ticket events: %w", err)
	}
	return events, nil
}
