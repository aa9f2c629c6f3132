package ledger

import "go.uber.org/zap"

// AddProduct lists a new product owned by caller, who must be an approved vendor.
func (l *Ledger) AddProduct(caller Identity, name string, price, stock uint64) (Product, error) {
	var created Product
	_, err := l.mutate("add_product", func() (Event, error) {
		v, err := l.approvedVendorLocked(caller)
		if err != nil {
			return Event{}, err
		}
		if price == 0 {
			return Event{}, ErrInvalidPrice
		}
		if stock == 0 {
			return Event{}, ErrInvalidStock
		}
		l.productCount++
		p := &Product{
			ID:        l.productCount,
			Name:      name,
			UnitPrice: price,
			Stock:     stock,
			Vendor:    caller,
			VendorID:  v.ID,
		}
		l.products[p.ID] = p
		v.ListingCount++
		created = *p
		return Event{
			Kind:      EventProductAdded,
			Actor:     caller,
			Vendor:    caller,
			VendorID:  v.ID,
			Name:      name,
			ProductID: p.ID,
			Price:     price,
			Stock:     stock,
		}, nil
	})
	if err != nil {
		return Product{}, err
	}
	l.logger.Info("ledger.product_added",
		zap.Uint64("product_id", created.ID),
		zap.String("vendor", string(caller)),
		zap.Uint64("price", price),
		zap.Uint64("stock", stock))
	return created, nil
}

// RemoveProduct deletes a listing. Only the identity that listed it may remove it,
// which also covers listings orphaned by vendor removal. The listing count of the
// vendor record the product was listed under is decremented if that record still exists.
func (l *Ledger) RemoveProduct(caller Identity, productID uint64) error {
	_, err := l.mutate("remove_product", func() (Event, error) {
		p, ok := l.products[productID]
		if !ok {
			return Event{}, ErrNoSuchProduct
		}
		if p.Vendor != caller {
			return Event{}, ErrNotOwner
		}
		owner, listed := l.vendors[p.Vendor]
		listed = listed && owner.ID == p.VendorID
		if listed && owner.ListingCount == 0 {
			l.logger.Error("ledger.listing_count_underflow",
				zap.Uint64("product_id", productID),
				zap.String("vendor", string(p.Vendor)))
			return Event{}, ErrInconsistentState
		}
		delete(l.products, productID)
		if listed {
			owner.ListingCount--
		}
		return Event{
			Kind:      EventProductRemoved,
			Actor:     caller,
			Vendor:    p.Vendor,
			VendorID:  p.VendorID,
			Name:      p.Name,
			ProductID: productID,
			Stock:     p.Stock,
		}, nil
	})
	if err != nil {
		return err
	}
	l.logger.Info("ledger.product_removed",
		zap.Uint64("product_id", productID),
		zap.String("vendor", string(caller)))
	return nil
}
