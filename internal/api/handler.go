package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
)

// LedgerService is the ledger surface exposed over HTTP.
type LedgerService interface {
	RegisterVendor(caller ledger.Identity, name string) (ledger.Vendor, error)
	ApproveVendor(caller, vendor ledger.Identity) error
	RemoveVendor(caller, vendor ledger.Identity) error
	AddProduct(caller ledger.Identity, name string, price, stock uint64) (ledger.Product, error)
	RemoveProduct(caller ledger.Identity, productID uint64) error
	BuyProduct(caller ledger.Identity, productID, quantity, amountPaid uint64) (ledger.Purchase, error)
	Withdraw(ctx context.Context, caller ledger.Identity) (uint64, error)
	Products() []ledger.Product
	VendorProducts(vendor ledger.Identity) []ledger.Product
	Product(id uint64) (ledger.Product, bool)
	Vendor(identity ledger.Identity) (ledger.Vendor, bool)
	Events(after uint64, limit int) []ledger.Event
	Summary() ledger.Summary
}

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// LedgerHandler handles HTTP API requests for ledger operations.
type LedgerHandler struct {
	logger *zap.Logger
	ledger LedgerService
}

func NewLedgerHandler(logger *zap.Logger, svc LedgerService) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{logger: logger, ledger: svc}
}

// RegisterVendor registers the caller. POST /api/v1/vendors
func (h *LedgerHandler) RegisterVendor(c *fiber.Ctx) error {
	var req RegisterVendorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	v, err := h.ledger.RegisterVendor(callerFrom(c), req.Name)
	if err != nil {
		return h.fail(c, "register_vendor", err)
	}
	return c.Status(fiber.StatusCreated).JSON(v)
}

// ApproveVendor POST /api/v1/vendors/:vendor/approve
func (h *LedgerHandler) ApproveVendor(c *fiber.Ctx) error {
	vendor := identityParam(c, "vendor")
	if err := h.ledger.ApproveVendor(callerFrom(c), vendor); err != nil {
		return h.fail(c, "approve_vendor", err)
	}
	v, _ := h.ledger.Vendor(vendor)
	return c.JSON(v)
}

// RemoveVendor DELETE /api/v1/vendors/:vendor
func (h *LedgerHandler) RemoveVendor(c *fiber.Ctx) error {
	if err := h.ledger.RemoveVendor(callerFrom(c), identityParam(c, "vendor")); err != nil {
		return h.fail(c, "remove_vendor", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetVendor GET /api/v1/vendors/:vendor
func (h *LedgerHandler) GetVendor(c *fiber.Ctx) error {
	v, ok := h.ledger.Vendor(identityParam(c, "vendor"))
	if !ok {
		return writeError(c, ledger.ErrNoSuchVendor)
	}
	return c.JSON(v)
}

// GetVendorProducts GET /api/v1/vendors/:vendor/products
func (h *LedgerHandler) GetVendorProducts(c *fiber.Ctx) error {
	return c.JSON(h.ledger.VendorProducts(identityParam(c, "vendor")))
}

// AddProduct POST /api/v1/products
func (h *LedgerHandler) AddProduct(c *fiber.Ctx) error {
	var req AddProductRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, err)
	}

	p, err := h.ledger.AddProduct(callerFrom(c), req.Name, req.Price, req.Stock)
	if err != nil {
		return h.fail(c, "add_product", err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// RemoveProduct DELETE /api/v1/products/:id
func (h *LedgerHandler) RemoveProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return badRequest(c, err)
	}
	if err := h.ledger.RemoveProduct(callerFrom(c), id); err != nil {
		return h.fail(c, "remove_product", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// BuyProduct POST /api/v1/products/:id/purchase
func (h *LedgerHandler) BuyProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return badRequest(c, err)
	}
	var req PurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}

	receipt, err := h.ledger.BuyProduct(callerFrom(c), id, req.Quantity, req.Amount)
	if err != nil {
		return h.fail(c, "buy_product", err)
	}
	return c.JSON(receipt)
}

// GetProducts GET /api/v1/products
func (h *LedgerHandler) GetProducts(c *fiber.Ctx) error {
	return c.JSON(h.ledger.Products())
}

// GetProduct GET /api/v1/products/:id
func (h *LedgerHandler) GetProduct(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return badRequest(c, err)
	}
	p, ok := h.ledger.Product(id)
	if !ok {
		return writeError(c, ledger.ErrNoSuchProduct)
	}
	return c.JSON(p)
}

// Withdraw pays out the caller's escrow. POST /api/v1/withdrawals
func (h *LedgerHandler) Withdraw(c *fiber.Ctx) error {
	caller := callerFrom(c)
	amount, err := h.ledger.Withdraw(c.UserContext(), caller)
	if err != nil {
		return h.fail(c, "withdraw", err)
	}
	return c.JSON(WithdrawalResponse{Vendor: string(caller), Amount: amount})
}

// GetEvents GET /api/v1/events?after=N&limit=M
func (h *LedgerHandler) GetEvents(c *fiber.Ctx) error {
	after, err := strconv.ParseUint(c.Query("after", "0"), 10, 64)
	if err != nil {
		return badRequest(c, fmt.Errorf("after must be a non-negative integer"))
	}
	limit := c.QueryInt("limit", defaultEventPage)
	if limit <= 0 || limit > maxEventPage {
		return badRequest(c, fmt.Errorf("limit must be between 1 and %d", maxEventPage))
	}
	events := h.ledger.Events(after, limit)
	if events == nil {
		events = []ledger.Event{}
	}
	return c.JSON(events)
}

// GetSummary GET /api/v1/summary
func (h *LedgerHandler) GetSummary(c *fiber.Ctx) error {
	return c.JSON(h.ledger.Summary())
}

func (h *LedgerHandler) fail(c *fiber.Ctx, op string, err error) error {
	fields := []zap.Field{
		zap.String("caller", string(callerFrom(c))),
		zap.String("code", ledger.CodeOf(err)),
		zap.Error(err),
	}
	switch ledger.KindOf(err) {
	case ledger.KindUnavailable, ledger.KindInternal:
		h.logger.Error("api."+op+".failed", fields...)
	default:
		h.logger.Info("api."+op+".rejected", fields...)
	}
	return writeError(c, err)
}

func productID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("product id must be a positive integer")
	}
	return id, nil
}
