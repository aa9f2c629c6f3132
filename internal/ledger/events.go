package ledger

import "time"

// EventKind names a ledger mutation.
type EventKind string

const (
	EventVendorRegistered EventKind = "vendor.registered"
	EventVendorApproved   EventKind = "vendor.approved"
	EventVendorRemoved    EventKind = "vendor.removed"
	EventProductAdded     EventKind = "product.added"
	EventProductRemoved   EventKind = "product.removed"
	EventProductPurchased EventKind = "product.purchased"
	EventVendorWithdrew   EventKind = "vendor.withdrew"
)

// Event is one entry of the append-only audit trail. Seq is assigned when the
// mutation commits and is strictly increasing. Amount carries the payment for
// purchases, the payout for withdrawals and the forfeited escrow for removals;
// Orphaned counts the listings a removed vendor left in the catalog.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	At        time.Time `json:"at"`
	Actor     Identity  `json:"actor"`
	Vendor    Identity  `json:"vendor,omitempty"`
	VendorID  uint64    `json:"vendor_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	ProductID uint64    `json:"product_id,omitempty"`
	Price     uint64    `json:"price,omitempty"`
	Stock     uint64    `json:"stock,omitempty"`
	Quantity  uint64    `json:"quantity,omitempty"`
	Amount    uint64    `json:"amount,omitempty"`
	Orphaned  uint64    `json:"orphaned,omitempty"`
}

// Emitter receives every committed event, in Seq order, after the ledger lock is released.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(e).
func (f EmitterFunc) Emit(e Event) { f(e) }
