package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
)

// Payer moves value out of the ledger to an external address.
type Payer interface {
	Pay(ctx context.Context, to Identity, amount uint64) error
}

// PayerFunc adapts a function to Payer.
type PayerFunc func(ctx context.Context, to Identity, amount uint64) error

// Pay calls f(ctx, to, amount).
func (f PayerFunc) Pay(ctx context.Context, to Identity, amount uint64) error { return f(ctx, to, amount) }

// Ledger owns all vendor and product records. Every mutation runs under the write
// lock and either applies all of its effects or none of them; reads take the read
// lock and observe the state between two mutations.
type Ledger struct {
	mu sync.RWMutex

	// emitted is the Seq of the last event handed to the emitter. A committer
	// waits on emitTurn until emitted is its predecessor; neither is tied to mu,
	// so a slow emitter never holds up readers.
	emitMu   sync.Mutex
	emitTurn *sync.Cond
	emitted  uint64

	admin    Identity
	vendors  map[Identity]*Vendor
	products map[uint64]*Product

	vendorCount  uint64
	productCount uint64
	withdrawn    uint64
	forfeited    uint64

	journal []Event
	seq     uint64

	payer   Payer
	emitter Emitter
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an empty ledger administered by admin. emitter may be nil.
func New(logger *zap.Logger, admin Identity, payer Payer, emitter Emitter) (*Ledger, error) {
	if admin == "" {
		return nil, errors.New("ledger: admin identity is required")
	}
	if payer == nil {
		return nil, errors.New("ledger: payer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		admin:    admin,
		vendors:  make(map[Identity]*Vendor),
		products: make(map[uint64]*Product),
		payer:    payer,
		emitter:  emitter,
		logger:   logger,
		now:      time.Now,
	}
	l.emitTurn = sync.NewCond(&l.emitMu)
	return l, nil
}

// Admin returns the identity fixed at construction.
func (l *Ledger) Admin() Identity { return l.admin }

// mutate runs fn under the write lock. fn validates, applies its effects and
// returns the event describing them; when it returns an error it must not have
// changed anything.
func (l *Ledger) mutate(op string, fn func() (Event, error)) (Event, error) {
	start := time.Now()
	defer metrics.ObserveDuration(metrics.LedgerOperationDuration, start, op)

	l.mu.Lock()
	ev, err := fn()
	if err != nil {
		l.mu.Unlock()
		metrics.IncOperation(op, CodeOf(err))
		l.logger.Debug("ledger."+op+".rejected", zap.Error(err))
		return Event{}, err
	}
	ev = l.commitLocked(ev)

	metrics.IncOperation(op, "ok")
	return ev, nil
}

// commitLocked journals ev and hands it to the emitter. It is called with mu held
// and returns with mu released. Events reach the emitter in Seq order, and mu is
// not held while the emitter runs, so an emitter may block on consumers that
// read the ledger.
func (l *Ledger) commitLocked(ev Event) Event {
	ev = l.appendLocked(ev)
	l.mu.Unlock()

	l.emitMu.Lock()
	for l.emitted != ev.Seq-1 {
		l.emitTurn.Wait()
	}
	l.emitMu.Unlock()

	l.emit(ev)

	l.emitMu.Lock()
	l.emitted = ev.Seq
	l.emitTurn.Broadcast()
	l.emitMu.Unlock()
	return ev
}

func (l *Ledger) appendLocked(ev Event) Event {
	l.seq++
	ev.Seq = l.seq
	ev.At = l.now().UTC()
	l.journal = append(l.journal, ev)
	return ev
}

func (l *Ledger) emit(ev Event) {
	if l.emitter == nil {
		return
	}
	l.emitter.Emit(ev)
}
