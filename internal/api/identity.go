package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
)

const callerKey = "caller"

// IdentityMiddleware reads the authenticated caller from header. Authentication
// itself happens upstream (gateway or mesh); requests without an identity are rejected.
func IdentityMiddleware(header string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(header))
		if id == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error: header + " header is required",
				Kind:  "unauthenticated",
			})
		}
		// Header values alias the request buffer; the ledger keeps identities as map keys.
		c.Locals(callerKey, ledger.Identity(utils.CopyString(id)))
		return c.Next()
	}
}

// identityParam returns a copy of the named path parameter as an identity.
func identityParam(c *fiber.Ctx, name string) ledger.Identity {
	return ledger.Identity(utils.CopyString(c.Params(name)))
}

// callerFrom returns the identity stored by IdentityMiddleware.
func callerFrom(c *fiber.Ctx) ledger.Identity {
	id, _ := c.Locals(callerKey).(ledger.Identity)
	return id
}
