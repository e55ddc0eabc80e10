// internal/queue/publisher.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/keyshop-bot/internal/config"
	"github.com/javajoker/keyshop-bot/internal/services"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, func() error, error)

// Publisher sends ticket lifecycle events to a durable topic exchange with
// routing key "ticket.<action>". The broker connection is opened lazily and
// re-opened after a failed publish.
type Publisher struct {
	url      string
	exchange string
	dial     dialFunc

	mu      sync.Mutex
	ch      channel
	closeFn func() error
}

func NewPublisher(cfg config.AMQPConfig) *Publisher {
	return &Publisher{
		url:      cfg.URL,
		exchange: cfg.Exchange,
		dial:     dialAMQP,
	}
}

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn.Close, nil
}

// RoutingKey is the routing key of an event action.
func RoutingKey(action string) string {
	return "ticket." + action
}

func (p *Publisher) PublishTicketEvent(ctx context.Context, event *services.TicketEventMessage) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ticket event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID.String(),
		Timestamp:    time.Now().UTC(),
		Type:         event.Action,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, p.exchange, RoutingKey(event.Action), false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish ticket event: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"ticket_id": event.TicketID,
		"action":    event.Action,
	}).Debug("Ticket event published")
	return nil
}

func (p *Publisher) channelLocked() (channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	if p.url == "" {
		return nil, errors.New("amqp url not configured")
	}

	ch, closeFn, err := p.dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.ch = ch
	p.closeFn = closeFn
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeFn != nil {
		_ = p.closeFn()
	}
	p.ch = nil
	p.closeFn = nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
