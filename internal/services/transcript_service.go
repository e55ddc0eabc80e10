// internal/services/transcript_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/keyshop-bot/internal/models"
)

// Transcript is the ordered log of a ticket channel plus ticket metadata.
type Transcript struct {
	Ticket      models.Ticket          `json:"ticket"`
	Messages    []models.TicketMessage `json:"messages"`
	Events      []models.TicketEvent   `json:"events"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Text renders the transcript as plain text, one line per message.
func (t *Transcript) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s\n", t.Ticket.ID)
	fmt.Fprintf(&b, "Product: %s %s\n", t.Ticket.ProductName, tierSuffix(t.Ticket.Tier))
	fmt.Fprintf(&b, "Buyer: %s  Seller: %s\n", t.Ticket.BuyerID, t.Ticket.SellerID)
	fmt.Fprintf(&b, "Status: %s\n", t.Ticket.Status)
	fmt.Fprintf(&b, "Opened: %s\n", t.Ticket.CreatedAt.UTC().Format(time.RFC3339))
	if t.Ticket.ClosedAt != nil {
		fmt.Fprintf(&b, "Closed: %s\n", t.Ticket.ClosedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")

	for _, m := range t.Messages {
		author := m.AuthorName
		if author == "" {
			author = m.AuthorID
		}
		fmt.Fprintf(&b, "[%s] %s: %s", m.SentAt.UTC().Format("2006-01-02 15:04:05"), author, m.Content)
		for _, a := range m.Attachments {
			fmt.Fprintf(&b, " <%s>", a)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type RecordMessageRequest struct {
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorName  string
	Content     string
	Attachments []string
	SentAt      time.Time
}

type TranscriptService struct {
	db        *gorm.DB
	archivers []TranscriptArchiver
	nowFn     func() time.Time
}

func NewTranscriptService(db *gorm.DB, archivers ...TranscriptArchiver) *TranscriptService {
	return &TranscriptService{db: db, archivers: archivers, nowFn: time.Now}
}

func (s *TranscriptService) AddArchiver(a TranscriptArchiver) {
	s.archivers = append(s.archivers, a)
}

// RecordMessage logs a message posted in an active ticket channel and bumps
// the ticket's activity time. Messages outside ticket channels are ignored.
func (s *TranscriptService) RecordMessage(ctx context.Context, req *RecordMessageRequest) (bool, error) {
	db := s.db.WithContext(ctx)

	var ticket models.Ticket
	err := db.Select("id", "status").
		Where("channel_id = ? AND status IN ?", req.ChannelID, models.ActiveTicketStatuses).
		First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("database error: %w", err)
	}

	sentAt := req.SentAt
	if sentAt.IsZero() {
		sentAt = s.nowFn()
	}

	msg := &models.TicketMessage{
		TicketID:    ticket.ID,
		MessageID:   req.MessageID,
		AuthorID:    req.AuthorID,
		AuthorName:  req.AuthorName,
		Content:     req.Content,
		Attachments: req.Attachments,
		SentAt:      sentAt,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(msg).Error; err != nil {
			return fmt.Errorf("failed to record message: %w", err)
		}
		if err := tx.Model(&models.Ticket{}).
			Where("id = ? AND last_activity_at < ?", ticket.ID, sentAt).
			Update("last_activity_at", sentAt).Error; err != nil {
			return fmt.Errorf("failed to bump ticket activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Build loads the transcript of a ticket.
func (s *TranscriptService) Build(ctx context.Context, ticketID uuid.UUID) (*Transcript, error) {
	db := s.db.WithContext(ctx)

	var ticket models.Ticket
	if err := db.First(&ticket, "id = ?", ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	transcript := &Transcript{Ticket: ticket, GeneratedAt: s.nowFn()}
	if err := db.Where("ticket_id = ?", ticketID).Order("sent_at ASC, id ASC").Find(&transcript.Messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load ticket messages: %w", err)
	}
	if err := db.Where("ticket_id = ?", ticketID).Order("created_at ASC").Find(&transcript.Events).Error; err != nil {
		return nil, fmt.Errorf("failed to load ticket events: %w", err)
	}
	return transcript, nil
}

// Archive builds the transcript and hands it to every archiver. A failing
// archiver does not stop the others.
func (s *TranscriptService) Archive(ctx context.Context, ticketID uuid.UUID) error {
	if len(s.archivers) == 0 {
		return nil
	}

	transcript, err := s.Build(ctx, ticketID)
	if err != nil {
		return err
	}

	var errs []error
	for _, a := range s.archivers {
		if err := a.ArchiveTranscript(ctx, transcript); err != nil {
			logrus.WithError(err).WithField("ticket_id", ticketID).Warn("Failed to archive transcript")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
