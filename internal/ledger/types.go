// Package ledger is the state-mutation and accounting engine of the marketplace:
// vendor registry, product catalog, purchase escrow and settlement over a single
// in-memory aggregate.
package ledger

// Identity names a caller. Vendors are keyed by the identity that registered them
// and that identity is also their payout address.
type Identity string

// Vendor is a registered seller. EscrowBalance is in the smallest currency unit.
type Vendor struct {
	ID            uint64   `json:"id"`
	Name          string   `json:"name"`
	PayoutAddress Identity `json:"payout_address"`
	ListingCount  uint64   `json:"listing_count"`
	EscrowBalance uint64   `json:"escrow_balance"`
	Approved      bool     `json:"approved"`
}

// Product is a live catalog listing. VendorID is the id of the vendor record the
// listing was created under; it outlives that record if the vendor is removed.
type Product struct {
	ID        uint64   `json:"id"`
	Name      string   `json:"name"`
	UnitPrice uint64   `json:"unit_price"`
	Stock     uint64   `json:"stock"`
	Vendor    Identity `json:"vendor"`
	VendorID  uint64   `json:"vendor_id"`
}

// Purchase is the receipt returned by a successful BuyProduct.
type Purchase struct {
	Buyer          Identity `json:"buyer"`
	ProductID      uint64   `json:"product_id"`
	Quantity       uint64   `json:"quantity"`
	Amount         uint64   `json:"amount"`
	RemainingStock uint64   `json:"remaining_stock"`
	Orphaned       bool     `json:"orphaned,omitempty"`
}

// Summary is a point-in-time accounting view of the whole ledger.
type Summary struct {
	Vendors         int    `json:"vendors"`
	ApprovedVendors int    `json:"approved_vendors"`
	Products        int    `json:"products"`
	VendorsIssued   uint64 `json:"vendors_issued"`
	ProductsIssued  uint64 `json:"products_issued"`
	EscrowHeld      uint64 `json:"escrow_held"`
	Withdrawn       uint64 `json:"withdrawn"`
	Forfeited       uint64 `json:"forfeited"`
	LastEventSeq    uint64 `json:"last_event_seq"`
}
