// internal/bot/bot.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/i18n"
	"github.com/javajoker/keyshop-bot/internal/services"
	"github.com/javajoker/keyshop-bot/internal/utils"
)

const interactionTimeout = 30 * time.Second

// interactionAPI is the part of *discordgo.Session used to answer
// interactions.
type interactionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Services are the workflow services the bot dispatches to.
type Services struct {
	Products    *services.ProductService
	Keys        *services.KeyService
	Tickets     *services.TicketService
	Reputation  *services.ReputationService
	Transcripts *services.TranscriptService
	Openers     services.Openers
}

type Options struct {
	Discord          config.DiscordConfig
	InteractionEvery time.Duration
	InteractionBurst int
}

// Bot owns the gateway session and routes slash commands, button presses
// and ticket channel messages to the services.
type Bot struct {
	session  *discordgo.Session
	api      interactionAPI
	cfg      config.DiscordConfig
	svc      Services
	gateway  *Gateway
	render   Renderer
	limiter  *utils.KeyedLimiter
	commands map[string]command
}

// NewSession creates the Discord session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildMembers |
		discordgo.IntentMessageContent
	return session, nil
}

// New wires the bot to a session. gateway must wrap the same session and
// is the Platform the services were built with.
func New(session *discordgo.Session, gateway *Gateway, svc Services, opts Options) *Bot {
	b := newBot(session, gateway, svc, opts)
	b.session = session
	return b
}

func newBot(interactions interactionAPI, gateway *Gateway, svc Services, opts Options) *Bot {
	every := opts.InteractionEvery
	if every <= 0 {
		every = 5 * time.Second
	}
	burst := opts.InteractionBurst
	if burst < 1 {
		burst = 3
	}

	b := &Bot{
		api:     interactions,
		cfg:     opts.Discord,
		svc:     svc,
		gateway: gateway,
		render:  gateway.Renderer(),
		limiter: utils.NewKeyedLimiter(rate.Every(every), burst),
	}
	b.commands = b.commandTable()
	return b
}

// Start connects to the gateway and registers the guild commands.
func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)
	b.session.AddHandler(b.onMessage)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	appID := b.session.State.User.ID
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.cfg.GuildID, b.definitions())
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	logrus.WithField("commands", len(registered)).Info("Slash commands registered")
	return nil
}

func (b *Bot) Close() error {
	b.limiter.Stop()
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	logrus.WithFields(logrus.Fields{
		"user":   r.User.Username,
		"guilds": len(r.Guilds),
	}).Info("Connected to Discord")
}

// onMessage records messages posted in ticket channels.
func (b *Bot) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	attachments := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, a.URL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	_, err := b.svc.Transcripts.RecordMessage(ctx, &services.RecordMessageRequest{
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		Content:     m.Content,
		Attachments: attachments,
		SentAt:      m.Timestamp,
	})
	if err != nil {
		logrus.WithError(err).WithField("channel_id", m.ChannelID).Warn("Failed to record ticket message")
	}
}

func (b *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	b.handleInteraction(ctx, i.Interaction)
}

func (b *Bot) handleInteraction(ctx context.Context, i *discordgo.Interaction) {
	lang := i18n.Normalize(string(i.Locale))
	log := logrus.WithFields(logrus.Fields{
		"interaction_id": i.ID,
		"channel_id":     i.ChannelID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).WithField("stack", string(debug.Stack())).Error("Interaction handler panicked")
		}
	}()

	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		b.respondEphemeral(i, i18n.T(lang, i18n.KeyGuildOnly))
		return
	}
	actor := b.actorFor(i.Member)
	log = log.WithField("user_id", actor.UserID)

	if !b.limiter.Allow(actor.UserID) {
		b.respondEphemeral(i, i18n.T(lang, i18n.KeyRateLimited))
		return
	}

	in := &invocation{interaction: i, actor: actor, lang: lang}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		log = log.WithField("command", data.Name)
		cmd, ok := b.commands[data.Name]
		if !ok {
			b.respondEphemeral(i, i18n.T(lang, i18n.KeyUnknownCommand))
			return
		}
		in.options = optionMap(data.Options)
		b.run(ctx, in, cmd.public, cmd.handler, log)

	case discordgo.InteractionMessageComponent:
		customID := i.MessageComponentData().CustomID
		log = log.WithField("action", customID)
		ref, err := services.ParseAction(customID)
		if err != nil {
			log.WithError(err).Warn("Unknown component action")
			b.respondEphemeral(i, i18n.T(lang, i18n.KeyUnknownCommand))
			return
		}
		if ref.Kind == services.ActionPay {
			b.selectPayment(ctx, in, ref, log)
			return
		}
		b.run(ctx, in, false, func(ctx context.Context, in *invocation) (*reply, error) {
			return b.handleAction(ctx, in, ref)
		}, log)
	}
}

// run defers the response, executes the handler and edits the deferred
// response with its outcome.
func (b *Bot) run(ctx context.Context, in *invocation, public bool, h handlerFunc, log *logrus.Entry) {
	var flags discordgo.MessageFlags
	if !public {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(in.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		log.WithError(err).Warn("Failed to acknowledge interaction")
		return
	}

	r, err := h(ctx, in)
	if err != nil {
		r = b.errorReply(in.lang, err, log)
	}
	if r == nil {
		r = &reply{content: "✅"}
	}

	edit := &discordgo.WebhookEdit{
		Content:         &r.content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if len(r.embeds) > 0 {
		edit.Embeds = &r.embeds
	}
	if _, err := b.api.InteractionResponseEdit(in.interaction, edit); err != nil {
		log.WithError(err).Warn("Failed to send interaction reply")
	}
}

// errorReply turns business errors into their message and anything else
// into the generic failure text.
func (b *Bot) errorReply(lang string, err error, log *logrus.Entry) *reply {
	if be, ok := services.AsBusiness(err); ok {
		log.WithField("reason", be.Key).Debug("Interaction rejected")
		return &reply{content: be.Message(lang)}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.WithError(err).Warn("Interaction timed out")
	} else {
		log.WithError(err).Error("Interaction failed")
	}
	return &reply{content: i18n.T(lang, i18n.KeyErrorGeneric)}
}

func (b *Bot) respondEphemeral(i *discordgo.Interaction, content string) {
	err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logrus.WithError(err).WithField("interaction_id", i.ID).Warn("Failed to respond to interaction")
	}
}

func (b *Bot) actorFor(m *discordgo.Member) services.Actor {
	actor := services.Actor{UserID: m.User.ID, Name: displayName(m)}
	for _, role := range m.Roles {
		switch role {
		case b.cfg.AdminRoleID:
			actor.Admin = true
		case b.cfg.SellerRoleID:
			actor.Seller = true
		}
	}
	if m.Permissions&discordgo.PermissionAdministrator != 0 {
		actor.Admin = true
	}
	return actor
}

func displayName(m *discordgo.Member) string {
	switch {
	case m.Nick != "":
		return m.Nick
	case m.User.GlobalName != "":
		return m.User.GlobalName
	default:
		return m.User.Username
	}
}
