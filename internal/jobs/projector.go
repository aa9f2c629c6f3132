package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
)

// Journal persists committed ledger events.
type Journal interface {
	RecordEvent(ctx context.Context, ev ledger.Event) error
}

// Snapshots caches the latest vendor records for out-of-process readers.
type Snapshots interface {
	UpdateVendorSnapshot(ctx context.Context, v ledger.Vendor, ttl time.Duration) error
	DeleteVendorSnapshot(ctx context.Context, vendor ledger.Identity) error
}

// VendorSource looks up the current vendor record.
type VendorSource interface {
	Vendor(identity ledger.Identity) (ledger.Vendor, bool)
}

// Projector writes every ledger event to the journal and refreshes the snapshot
// of the vendor it touched. It is meant to be subscribed to the event bus, which
// delivers events to it one at a time in commit order.
type Projector struct {
	logger    *zap.Logger
	journal   Journal
	snapshots Snapshots
	vendors   VendorSource
	ttl       time.Duration
	timeout   time.Duration
}

// NewProjector builds a projector. journal and snapshots may each be nil.
func NewProjector(logger *zap.Logger, journal Journal, snapshots Snapshots, vendors VendorSource, ttl time.Duration) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		logger:    logger,
		journal:   journal,
		snapshots: snapshots,
		vendors:   vendors,
		ttl:       ttl,
		timeout:   5 * time.Second,
	}
}

// Handle projects one event. Failures are logged and counted; the in-memory
// ledger stays the source of truth.
func (p *Projector) Handle(ev ledger.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if p.journal != nil {
		if err := p.journal.RecordEvent(ctx, ev); err != nil {
			metrics.IncError("projector", "journal")
			p.logger.Error("projector.journal_failed",
				zap.Uint64("seq", ev.Seq),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
		}
	}

	if p.snapshots == nil || ev.Vendor == "" {
		return
	}
	if err := p.refreshVendor(ctx, ev.Vendor); err != nil {
		metrics.IncError("projector", "snapshot")
		p.logger.Error("projector.snapshot_failed",
			zap.Uint64("seq", ev.Seq),
			zap.String("vendor", string(ev.Vendor)),
			zap.Error(err))
	}
}

// refreshVendor writes the vendor's current record, or drops the snapshot once
// the vendor no longer exists.
func (p *Projector) refreshVendor(ctx context.Context, vendor ledger.Identity) error {
	v, ok := p.vendors.Vendor(vendor)
	if !ok {
		return p.snapshots.DeleteVendorSnapshot(ctx, vendor)
	}
	return p.snapshots.UpdateVendorSnapshot(ctx, v, p.ttl)
}
