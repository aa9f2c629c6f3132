package ledger

import (
	"maps"
	"slices"
)

// Products returns every live listing in ascending id order.
func (l *Ledger) Products() []Product {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collectLocked(func(*Product) bool { return true })
}

// VendorProducts returns the live listings owned by vendor in ascending id order,
// including listings orphaned by the vendor's removal.
func (l *Ledger) VendorProducts(vendor Identity) []Product {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collectLocked(func(p *Product) bool { return p.Vendor == vendor })
}

func (l *Ledger) collectLocked(keep func(*Product) bool) []Product {
	out := make([]Product, 0, len(l.products))
	for _, id := range slices.Sorted(maps.Keys(l.products)) {
		if p := l.products[id]; keep(p) {
			out = append(out, *p)
		}
	}
	return out
}

// Product returns a single live listing.
func (l *Ledger) Product(id uint64) (Product, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.products[id]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

// Vendor returns the vendor record registered by identity.
func (l *Ledger) Vendor(identity Identity) (Vendor, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.vendors[identity]
	if !ok {
		return Vendor{}, false
	}
	return *v, true
}

// Events returns up to limit journal entries with Seq greater than after.
// A non-positive limit returns everything after the cursor.
func (l *Ledger) Events(after uint64, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	// Seq n lives at index n-1.
	if after >= uint64(len(l.journal)) {
		return nil
	}
	tail := l.journal[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	return slices.Clone(tail)
}

// Summary reports counters and accounting totals.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Summary{
		Vendors:        len(l.vendors),
		Products:       len(l.products),
		VendorsIssued:  l.vendorCount,
		ProductsIssued: l.productCount,
		Withdrawn:      l.withdrawn,
		Forfeited:      l.forfeited,
		LastEventSeq:   l.seq,
	}
	for _, v := range l.vendors {
		if v.Approved {
			s.ApprovedVendors++
		}
		s.EscrowHeld += v.EscrowBalance
	}
	return s
}
