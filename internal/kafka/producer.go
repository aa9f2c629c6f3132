package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/eventbus"
	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
)

const writeTimeout = 10 * time.Second

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer copies ledger events to a Kafka topic. Messages are keyed by vendor
// identity so one vendor's events land on one partition in commit order.
type Producer struct {
	w      messageWriter
	logger *zap.Logger
}

// NewProducer builds a synchronous writer and subscribes it to every ledger event on the bus.
func NewProducer(brokers []string, topic string, bus *eventbus.EventBus[ledger.Event], logger *zap.Logger) *Producer {
	p := newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, logger)
	bus.Subscribe(eventbus.Wildcard, p.handle)
	return p
}

func newProducer(w messageWriter, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{w: w, logger: logger}
}

func (p *Producer) handle(ev ledger.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.PublishEvent(ctx, ev); err != nil {
		p.logger.Error("kafka.publish_failed",
			zap.Uint64("seq", ev.Seq),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
	}
}

// PublishEvent writes one event and waits for the broker acknowledgement.
func (p *Producer) PublishEvent(ctx context.Context, ev ledger.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		metrics.IncError("kafka", "marshal_failed")
		return err
	}
	key := string(ev.Vendor)
	if key == "" {
		key = string(ev.Actor)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Kind)},
			{Key: "sequence", Value: []byte(strconv.FormatUint(ev.Seq, 10))},
		},
	})
	if err != nil {
		metrics.IncError("kafka", "write_failed")
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}
