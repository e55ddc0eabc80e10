// internal/services/ports.go
package services

import (
	"context"
	"errors"

	"github.com/javajoker/keyshop-bot/internal/models"
)

// ErrDirectMessageRefused is returned by Platform.SendDirect when the
// recipient does not accept private messages.
var ErrDirectMessageRefused = errors.New("direct message refused by recipient")

// Actor is the chat-platform user behind an operation. Admin and Seller are
// resolved from the user's roles by the gateway.
type Actor struct {
	UserID string
	Name   string
	Admin  bool
	Seller bool
}

// systemActor is used for timer driven transitions.
const systemActorID = "system"

type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

type ActionStyle string

const (
	ActionPrimary   ActionStyle = "primary"
	ActionSecondary ActionStyle = "secondary"
	ActionSuccess   ActionStyle = "success"
	ActionDanger    ActionStyle = "danger"
)

// Action is an interactive control attached to a notice.
type Action struct {
	ID       string
	Label    string
	Style    ActionStyle
	Disabled bool
}

// Notice is a platform-neutral message. The gateway decides how to render
// it.
type Notice struct {
	Tone    Tone
	Title   string
	Body    string
	Actions []Action
}

type TicketChannelSpec struct {
	TicketRef string
	BuyerID   string
	BuyerName string
	SellerID  string
}

// Platform is the chat-platform surface the ticket workflow acts on.
type Platform interface {
	CreateTicketChannel(ctx context.Context, spec TicketChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	Send(ctx context.Context, channelID string, notice Notice) error
	SendDirect(ctx context.Context, userID string, notice Notice) error
	GrantBuyerRole(ctx context.Context, userID string) error
	RevokeBuyerRole(ctx context.Context, userID string) error
}

// ListingPublisher renders public product listings with stock and buy
// controls.
type ListingPublisher interface {
	PublishListing(ctx context.Context, channelID string, product *models.Product, stock *StockSummary) (string, error)
	RefreshListing(ctx context.Context, listing *models.ProductListing, product *models.Product, stock *StockSummary) error
}

// TranscriptArchiver stores a closed ticket's transcript outside the
// ticket channel.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, transcript *Transcript) error
}

// EventSink receives ticket lifecycle events after they are committed.
type EventSink interface {
	PublishTicketEvent(ctx context.Context, event *TicketEventMessage) error
}

// JobHandler executes one due scheduled job.
type JobHandler interface {
	HandleJob(ctx context.Context, job *models.ScheduledJob) error
}
