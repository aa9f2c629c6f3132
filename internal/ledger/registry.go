package ledger

import (
	"math/bits"

	"go.uber.org/zap"
)

// RegisterVendor creates an unapproved vendor record for caller. Registration is
// one-shot per identity until an admin removes the record.
func (l *Ledger) RegisterVendor(caller Identity, name string) (Vendor, error) {
	var created Vendor
	_, err := l.mutate("register_vendor", func() (Event, error) {
		if _, ok := l.vendors[caller]; ok {
			return Event{}, ErrAlreadyRegistered
		}
		l.vendorCount++
		v := &Vendor{
			ID:            l.vendorCount,
			Name:          name,
			PayoutAddress: caller,
		}
		l.vendors[caller] = v
		created = *v
		return Event{
			Kind:     EventVendorRegistered,
			Actor:    caller,
			Vendor:   caller,
			VendorID: v.ID,
			Name:     name,
		}, nil
	})
	if err != nil {
		return Vendor{}, err
	}
	l.logger.Info("ledger.vendor_registered",
		zap.Uint64("vendor_id", created.ID),
		zap.String("vendor", string(caller)),
		zap.String("name", name))
	return created, nil
}

// ApproveVendor lets an already registered vendor list products and withdraw.
func (l *Ledger) ApproveVendor(caller, vendor Identity) error {
	ev, err := l.mutate("approve_vendor", func() (Event, error) {
		if err := l.requireAdmin(caller); err != nil {
			return Event{}, err
		}
		v, ok := l.vendors[vendor]
		if !ok {
			return Event{}, ErrNoSuchVendor
		}
		if v.Approved {
			return Event{}, ErrAlreadyApproved
		}
		v.Approved = true
		return Event{
			Kind:     EventVendorApproved,
			Actor:    caller,
			Vendor:   vendor,
			VendorID: v.ID,
			Name:     v.Name,
		}, nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("ledger.vendor_approved",
		zap.Uint64("vendor_id", ev.VendorID),
		zap.String("vendor", string(vendor)))
	return nil
}

// RemoveVendor hard-deletes a vendor record. The vendor's listings stay in the
// catalog as orphans and any escrow it had not withdrawn is forfeited; the
// forfeited amount is reported on the removal event and in Summary.
func (l *Ledger) RemoveVendor(caller, vendor Identity) error {
	ev, err := l.mutate("remove_vendor", func() (Event, error) {
		if err := l.requireAdmin(caller); err != nil {
			return Event{}, err
		}
		v, ok := l.vendors[vendor]
		if !ok {
			return Event{}, ErrNoSuchVendor
		}
		forfeited, carry := bits.Add64(l.forfeited, v.EscrowBalance, 0)
		if carry != 0 {
			return Event{}, ErrBalanceOverflow
		}
		l.forfeited = forfeited
		delete(l.vendors, vendor)
		return Event{
			Kind:     EventVendorRemoved,
			Actor:    caller,
			Vendor:   vendor,
			VendorID: v.ID,
			Name:     v.Name,
			Orphaned: v.ListingCount,
			Amount:   v.EscrowBalance,
		}, nil
	})
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.Uint64("vendor_id", ev.VendorID),
		zap.String("vendor", string(vendor)),
		zap.Uint64("orphaned_listings", ev.Orphaned),
		zap.Uint64("forfeited", ev.Amount),
	}
	if ev.Amount > 0 || ev.Orphaned > 0 {
		l.logger.Warn("ledger.vendor_removed_with_open_positions", fields...)
		return nil
	}
	l.logger.Info("ledger.vendor_removed", fields...)
	return nil
}
