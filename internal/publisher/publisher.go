package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
	"github.com/Checker-Finance/marketplace-ledger/pkg/logger"
	"github.com/Checker-Finance/marketplace-ledger/pkg/model"
)

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and publishes ledger events as canonical envelopes.
type Publisher struct {
	nc      *nats.Conn
	js      jetStream
	prefix  string
	service string
}

// New creates a new Publisher on the connection's JetStream context.
// prefix is the subject root, e.g. "evt.marketplace".
func New(nc *nats.Conn, prefix, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		prefix:  prefix,
		service: service,
	}, nil
}

// EnsureStream creates the stream capturing prefix.> if it does not exist yet.
func EnsureStream(js nats.JetStreamManager, stream, prefix string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", stream, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", stream, err)
	}
	return nil
}

// Subject returns the subject a ledger event kind is published on.
func (p *Publisher) Subject(kind ledger.EventKind) string {
	return p.prefix + "." + string(kind) + ".v1"
}

// PublishEvent wraps a committed ledger event in an envelope and publishes it.
func (p *Publisher) PublishEvent(ctx context.Context, ev ledger.Event) error {
	subject := p.Subject(ev.Kind)
	env, err := model.NewEnvelope(p.service, subject, string(ev.Kind), ev)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}
	env.Sequence = ev.Seq
	return p.PublishEnvelope(ctx, subject, env)
}

// PublishEnvelope serializes and publishes a canonical event envelope to NATS.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"sequence":       []string{strconv.FormatUint(env.Sequence, 10)},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.MsgId(env.ID.String()), nats.Context(ctx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"sequence", env.Sequence,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
		"sequence", env.Sequence,
	)

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// Publish publishes raw JSON payloads (summaries and other non-canonical messages).
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{"source": []string{p.service}},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg, nats.Context(ctx))
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
