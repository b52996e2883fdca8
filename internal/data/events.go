package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/repo"
)

// EventMeta describes one published event
type EventMeta struct {
	// Trace / update correlation id
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event id
	ID string `json:"id"`
	// Emitting service
	Producer *string `json:"producer,omitempty"`
	// Time the event was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. helpdesk.ticket.closed.v1
	Type string `json:"type"`
}

// EventEnvelope is the wire format of ticket events
type EventEnvelope struct {
	Meta EventMeta          `json:"meta"`
	Data domain.TicketEvent `json:"data"`
}

// NewEventEnvelope wraps event with fresh metadata
func NewEventEnvelope(event domain.TicketEvent, producer string, now time.Time) EventEnvelope {
	env := EventEnvelope{
		Meta: EventMeta{
			ID:   uuid.NewString(),
			Time: now.UTC(),
			Type: event.Type,
		},
		Data: event,
	}
	if producer != "" {
		env.Meta.Producer = &producer
	}
	corr := event.CorrelationID
	if corr == "" {
		corr = env.Meta.ID
	}
	env.Meta.CorrelationID = &corr
	return env
}

// AMQPPublisher publishes ticket events to a topic exchange with publisher
// confirms. The routing key is the event type.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	producer string
	logger   *slog.Logger
}

var _ repo.EventPublisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials amqpURL and declares a durable topic exchange
func NewAMQPPublisher(amqpURL, exchange, producer string, logger *slog.Logger) (*AMQPPublisher, error) {
	if amqpURL == "" {
		return nil, fmt.Errorf("amqp URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "events"))

	host := ""
	if u, _ := url.Parse(amqpURL); u != nil {
		host = u.Host
	}
	logger.Info("connecting to rabbitmq", slog.String("host", host), slog.String("exchange", exchange))

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		producer: producer,
		logger:   logger,
	}, nil
}

// Publish sends event and waits for the broker confirm
func (p *AMQPPublisher) Publish(ctx context.Context, event domain.TicketEvent) error {
	env := NewEventEnvelope(event, p.producer, time.Now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: *env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         p.producer,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	if confirm == nil {
		return nil
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm %s: %w", event.Type, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s", event.Type)
	}

	p.logger.Debug("event published",
		slog.String("type", event.Type),
		slog.String("id", env.Meta.ID),
		slog.Int("thread", int(event.ThreadID)))
	return nil
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// LogPublisher is the fallback when no broker is configured: events are
// logged and dropped
type LogPublisher struct {
	logger *slog.Logger
}

var _ repo.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a logging publisher
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With(slog.String("component", "events"))}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.TicketEvent) error {
	p.logger.Info("ticket event",
		slog.String("type", event.Type),
		slog.Int("thread", int(event.ThreadID)),
		slog.String("user", string(event.UserID)),
		slog.String("closed_by", string(event.ClosedBy)),
		slog.String("outcome", string(event.Outcome)))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
