package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
)

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindUnauthorized:
		return fiber.StatusForbidden
	case ledger.KindNotFound:
		return fiber.StatusNotFound
	case ledger.KindConflict:
		return fiber.StatusConflict
	case ledger.KindInvalidArgument:
		return fiber.StatusUnprocessableEntity
	case ledger.KindUnavailable:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders a ledger error as {error, kind, code}. Errors from outside the
// ledger are reported as internal without their message.
func writeError(c *fiber.Ctx, err error) error {
	var le *ledger.Error
	if !errors.As(err, &le) {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "internal error",
			Kind:  string(ledger.KindInternal),
		})
	}
	// le is the sentinel; its message leaves out payout provider details.
	return c.Status(statusFor(le.Kind)).JSON(ErrorResponse{
		Error: le.Error(),
		Kind:  string(le.Kind),
		Code:  le.Code,
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Kind: "bad_request"})
}
