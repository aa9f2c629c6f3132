package ledger

import (
	"math/bits"

	"go.uber.org/zap"
)

// BuyProduct sells quantity units of a listing to caller. amountPaid must equal
// UnitPrice*quantity exactly. On success the payment is credited to the escrow of
// the vendor that listed the product and stock is decremented; a listing whose
// stock reaches zero stays in the catalog.
//
// A listing orphaned by vendor removal can still be bought. With no vendor record
// to credit, the payment is booked as forfeited.
func (l *Ledger) BuyProduct(caller Identity, productID, quantity, amountPaid uint64) (Purchase, error) {
	var receipt Purchase
	_, err := l.mutate("buy_product", func() (Event, error) {
		p, ok := l.products[productID]
		if !ok {
			return Event{}, ErrNoSuchProduct
		}
		if quantity == 0 {
			return Event{}, ErrInvalidQuantity
		}
		if p.Stock < quantity {
			return Event{}, ErrInsufficientStock
		}
		hi, due := bits.Mul64(p.UnitPrice, quantity)
		if hi != 0 || due != amountPaid {
			return Event{}, ErrIncorrectPayment
		}

		owner, ok := l.vendors[p.Vendor]
		orphaned := !ok || owner.ID != p.VendorID
		if orphaned {
			forfeited, carry := bits.Add64(l.forfeited, amountPaid, 0)
			if carry != 0 {
				return Event{}, ErrBalanceOverflow
			}
			l.forfeited = forfeited
		} else {
			balance, carry := bits.Add64(owner.EscrowBalance, amountPaid, 0)
			if carry != 0 {
				return Event{}, ErrBalanceOverflow
			}
			owner.EscrowBalance = balance
		}
		p.Stock -= quantity

		receipt = Purchase{
			Buyer:          caller,
			ProductID:      productID,
			Quantity:       quantity,
			Amount:         amountPaid,
			RemainingStock: p.Stock,
			Orphaned:       orphaned,
		}
		return Event{
			Kind:      EventProductPurchased,
			Actor:     caller,
			Vendor:    p.Vendor,
			VendorID:  p.VendorID,
			ProductID: productID,
			Price:     p.UnitPrice,
			Stock:     p.Stock,
			Quantity:  quantity,
			Amount:    amountPaid,
		}, nil
	})
	if err != nil {
		return Purchase{}, err
	}
	if receipt.Orphaned {
		l.logger.Warn("ledger.orphaned_purchase_forfeited",
			zap.Uint64("product_id", productID),
			zap.String("buyer", string(caller)),
			zap.Uint64("amount", amountPaid))
		return receipt, nil
	}
	l.logger.Info("ledger.product_purchased",
		zap.Uint64("product_id", productID),
		zap.String("buyer", string(caller)),
		zap.Uint64("quantity", quantity),
		zap.Uint64("amount", amountPaid))
	return receipt, nil
}
