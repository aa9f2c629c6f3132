package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
)

const (
	SummarySubject  = "evt.marketplace.summary.v1"
	SummaryCacheKey = "ledger:summary"
)

// SummarySource reports the ledger's accounting totals.
type SummarySource interface {
	Summary() ledger.Summary
}

// Publisher sends a payload to a subject (NATS in production).
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Cache stores the latest summary for readers outside the process.
type Cache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// SummaryMessage is the payload published on SummarySubject.
type SummaryMessage struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   ledger.Summary `json:"summary"`
}

// SummaryPublisher periodically refreshes the ledger gauges and emits a summary
// event for downstream analytics systems.
type SummaryPublisher struct {
	logger    *zap.Logger
	source    SummarySource
	publisher Publisher
	cache     Cache
	interval  time.Duration
	stopCh    chan struct{}
	now       func() time.Time
}

// NewSummaryPublisher constructs the job. publisher and cache may be nil.
func NewSummaryPublisher(logger *zap.Logger, source SummarySource, pub Publisher, cache Cache, interval time.Duration) *SummaryPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryPublisher{
		logger:    logger,
		source:    source,
		publisher: pub,
		cache:     cache,
		interval:  interval,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start runs the loop until Stop is called or ctx is canceled.
func (r *SummaryPublisher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("summary_publisher.started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-r.stopCh:
			r.logger.Info("summary_publisher.stopped (manual stop)")
			return
		case <-ctx.Done():
			r.logger.Info("summary_publisher.stopped (context canceled)")
			return
		}
	}
}

// Stop gracefully halts the publisher.
func (r *SummaryPublisher) Stop() {
	close(r.stopCh)
}

// RunOnce executes one cycle.
func (r *SummaryPublisher) RunOnce(ctx context.Context) {
	s := r.source.Summary()
	now := r.now().UTC()

	metrics.SetLedgerTotals(s.EscrowHeld, s.Forfeited, s.Products)
	metrics.SetLastSummary(now)

	msg := SummaryMessage{Event: SummarySubject, Timestamp: now, Summary: s}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, SummaryCacheKey, msg, 2*r.interval); err != nil {
			r.logger.Warn("summary_publisher.cache_failed", zap.Error(err))
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, SummarySubject, msg); err != nil {
			r.logger.Warn("summary_publisher.nats_publish_failed", zap.Error(err))
			return
		}
	}

	r.logger.Debug("summary_publisher.success",
		zap.Uint64("last_event_seq", s.LastEventSeq),
		zap.Uint64("escrow_held", s.EscrowHeld))
}
