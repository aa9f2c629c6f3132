package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/eventbus"
	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher copies ledger events onto a topic exchange for audit consumers.
// The routing key is the event kind, e.g. "product.purchased".
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher dials RabbitMQ, declares the exchange and subscribes to every ledger event on the bus.
func NewPublisher(url, exchange string, bus *eventbus.EventBus[ledger.Event], logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newPublisher(ch, exchange, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	bus.Subscribe(eventbus.Wildcard, p.handle)
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{channel: ch, exchange: exchange, logger: logger}, nil
}

func (p *Publisher) handle(ev ledger.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.PublishEvent(ctx, ev); err != nil {
		p.logger.Error("rabbitmq.publish_failed",
			zap.Uint64("seq", ev.Seq),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	}
}

// PublishEvent publishes one ledger event as a persistent JSON message.
func (p *Publisher) PublishEvent(ctx context.Context, ev ledger.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.IncError("rabbitmq", "marshal_failed")
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,      // exchange
		string(ev.Kind), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    strconv.FormatUint(ev.Seq, 10),
			Timestamp:    ev.At,
			Type:         string(ev.Kind),
			Body:         body,
		},
	)
	if err != nil {
		metrics.IncError("rabbitmq", "publish_failed")
		return err
	}
	p.logger.Debug("rabbitmq.published",
		zap.Uint64("seq", ev.Seq),
		zap.String("kind", string(ev.Kind)))
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
