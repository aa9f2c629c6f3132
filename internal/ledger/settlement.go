package ledger

import (
	"context"
	"fmt"
	"math"
	"math/bits"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
)

// Withdraw pays the caller's whole escrow balance to its payout address.
//
// The balance is zeroed under the lock before the payer is invoked and the lock is
// not held during the payout, so a withdrawal re-entered from inside the payout
// observes a zero balance and fails with ErrNothingToWithdraw. If the payout fails
// the amount is credited back to the same vendor record and ErrPayoutFailed is
// returned wrapping the cause.
func (l *Ledger) Withdraw(ctx context.Context, caller Identity) (uint64, error) {
	const op = "withdraw"
	start := time.Now()
	defer metrics.ObserveDuration(metrics.LedgerOperationDuration, start, op)

	l.mu.Lock()
	v, err := l.approvedVendorLocked(caller)
	if err == nil && v.EscrowBalance == 0 {
		err = ErrNothingToWithdraw
	}
	if err != nil {
		l.mu.Unlock()
		metrics.IncOperation(op, CodeOf(err))
		return 0, err
	}
	amount, vendorID, to := v.EscrowBalance, v.ID, v.PayoutAddress
	v.EscrowBalance = 0
	l.mu.Unlock()

	if err := l.payer.Pay(ctx, to, amount); err != nil {
		l.mu.Lock()
		l.restoreLocked(caller, vendorID, amount)
		l.mu.Unlock()

		metrics.IncOperation(op, ErrPayoutFailed.Code)
		l.logger.Error("ledger.withdraw.payout_failed",
			zap.String("vendor", string(caller)),
			zap.Uint64("amount", amount),
			zap.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrPayoutFailed, err)
	}

	l.mu.Lock()
	l.withdrawn += amount
	l.commitLocked(Event{
		Kind:     EventVendorWithdrew,
		Actor:    caller,
		Vendor:   caller,
		VendorID: vendorID,
		Amount:   amount,
	})
	metrics.IncOperation(op, "ok")

	l.logger.Info("ledger.vendor_withdrew",
		zap.String("vendor", string(caller)),
		zap.String("payout_address", string(to)),
		zap.Uint64("amount", amount))
	return amount, nil
}

// restoreLocked returns an unpaid amount to the vendor record it was taken from.
// If that record was removed while the payout was in flight, the amount follows
// the removal rule and is forfeited.
func (l *Ledger) restoreLocked(caller Identity, vendorID, amount uint64) {
	if v, ok := l.vendors[caller]; ok && v.ID == vendorID {
		if balance, carry := bits.Add64(v.EscrowBalance, amount, 0); carry == 0 {
			v.EscrowBalance = balance
			return
		}
	}
	forfeited, carry := bits.Add64(l.forfeited, amount, 0)
	if carry != 0 {
		// Saturate; the remainder is unaccounted and reported.
		metrics.IncError("ledger", "forfeited_overflow")
		l.logger.Error("ledger.withdraw.forfeited_overflow",
			zap.String("vendor", string(caller)),
			zap.Uint64("amount", amount),
			zap.Uint64("forfeited", l.forfeited))
		l.forfeited = math.MaxUint64
		return
	}
	l.forfeited = forfeited
	l.logger.Warn("ledger.withdraw.restore_forfeited",
		zap.String("vendor", string(caller)),
		zap.Uint64("amount", amount))
}
