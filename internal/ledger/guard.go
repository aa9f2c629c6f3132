package ledger

// IsAdmin reports whether caller is the ledger administrator.
func (l *Ledger) IsAdmin(caller Identity) bool {
	return caller != "" && caller == l.admin
}

// IsApprovedVendor reports whether caller has a vendor record that the admin approved.
func (l *Ledger) IsApprovedVendor(caller Identity) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, err := l.approvedVendorLocked(caller)
	return err == nil
}

func (l *Ledger) requireAdmin(caller Identity) error {
	if !l.IsAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}

func (l *Ledger) approvedVendorLocked(caller Identity) (*Vendor, error) {
	v, ok := l.vendors[caller]
	if !ok || !v.Approved {
		return nil, ErrUnauthorized
	}
	return v, nil
}
