// Package payout implements the ledger's value-transfer collaborator.
package payout

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
)

const (
	ModeLog  = "log"
	ModeHTTP = "http"
)

// MajorUnits renders an amount held in the smallest currency unit as a decimal
// string in major units, e.g. 1999 with exponent 2 is "19.99".
func MajorUnits(amount uint64, exponent int) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), int32(-exponent))
	return d.StringFixed(int32(exponent))
}

// LogPayer records payouts without moving money. It is the default for local
// runs and environments without a payout provider.
type LogPayer struct {
	logger   *zap.Logger
	currency string
	exponent int
}

func NewLogPayer(logger *zap.Logger, currency string, exponent int) *LogPayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPayer{logger: logger, currency: currency, exponent: exponent}
}

func (p *LogPayer) Pay(ctx context.Context, to ledger.Identity, amount uint64) error {
	if err := ctx.Err(); err != nil {
		metrics.IncPayout(ModeLog, "error")
		return err
	}
	p.logger.Info("payout.logged",
		zap.String("destination", string(to)),
		zap.Uint64("amount_minor", amount),
		zap.String("amount", MajorUnits(amount, p.exponent)),
		zap.String("currency", p.currency))
	metrics.IncPayout(ModeLog, "ok")
	return nil
}
