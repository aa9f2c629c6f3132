package ledger

import "errors"

// Kind groups ledger errors into the families callers branch on.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInvalidArgument Kind = "invalid_argument"
	KindUnavailable     Kind = "unavailable"
	KindInternal        Kind = "internal"
)

// Error is a ledger failure. Every ledger error is one of the sentinels below,
// possibly wrapped with a cause.
type Error struct {
	Code string
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrUnauthorized      = &Error{Code: "unauthorized", Kind: KindUnauthorized, msg: "caller is not authorized for this operation"}
	ErrNotOwner          = &Error{Code: "not_owner", Kind: KindUnauthorized, msg: "caller does not own this product"}
	ErrNoSuchVendor      = &Error{Code: "no_such_vendor", Kind: KindNotFound, msg: "vendor not found"}
	ErrNoSuchProduct     = &Error{Code: "no_such_product", Kind: KindNotFound, msg: "product not found"}
	ErrAlreadyRegistered = &Error{Code: "already_registered", Kind: KindConflict, msg: "vendor already registered"}
	ErrAlreadyApproved   = &Error{Code: "already_approved", Kind: KindConflict, msg: "vendor already approved"}
	ErrInsufficientStock = &Error{Code: "insufficient_stock", Kind: KindConflict, msg: "insufficient stock"}
	ErrNothingToWithdraw = &Error{Code: "nothing_to_withdraw", Kind: KindConflict, msg: "nothing to withdraw"}
	ErrInvalidPrice      = &Error{Code: "invalid_price", Kind: KindInvalidArgument, msg: "price must be greater than 0"}
	ErrInvalidStock      = &Error{Code: "invalid_stock", Kind: KindInvalidArgument, msg: "stock must be greater than 0"}
	ErrInvalidQuantity   = &Error{Code: "invalid_quantity", Kind: KindInvalidArgument, msg: "quantity must be greater than 0"}
	ErrIncorrectPayment  = &Error{Code: "incorrect_payment", Kind: KindInvalidArgument, msg: "payment must equal unit price times quantity"}
	ErrPayoutFailed      = &Error{Code: "payout_failed", Kind: KindUnavailable, msg: "payout failed"}
	ErrInconsistentState = &Error{Code: "inconsistent_state", Kind: KindInternal, msg: "ledger consistency fault"}
	ErrBalanceOverflow   = &Error{Code: "balance_overflow", Kind: KindInternal, msg: "escrow balance would overflow"}
)

// KindOf classifies err. Errors that did not originate in the ledger are internal.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of a ledger error, "ok" for nil and "error" for foreign errors.
func CodeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return "error"
}
