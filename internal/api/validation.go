package api

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxNameLength = 256

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	return nil
}

func (r RegisterVendorRequest) Validate() error {
	return validateName(r.Name)
}

// Validate checks the shape of the request only; price and stock rules are the ledger's.
func (r AddProductRequest) Validate() error {
	return validateName(r.Name)
}
