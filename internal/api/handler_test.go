package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
)

const testHeader = "X-Caller-Identity"

const (
	admin   ledger.Identity = "admin"
	vendorA ledger.Identity = "vendor-a"
	buyer   ledger.Identity = "buyer"
)

// --- Test Helpers ---

func newTestApp(t *testing.T, payer ledger.Payer, checks map[string]HealthChecker) (*fiber.App, *ledger.Ledger) {
	t.Helper()
	if payer == nil {
		payer = ledger.PayerFunc(func(context.Context, ledger.Identity, uint64) error { return nil })
	}
	l, err := ledger.New(zap.NewNop(), admin, payer, nil)
	require.NoError(t, err)

	app := fiber.New()
	RegisterRoutes(app, NewLedgerHandler(zap.NewNop(), l), testHeader, checks)
	return app, l
}

func doRequest(t *testing.T, app *fiber.App, method, path string, caller ledger.Identity, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(testHeader, string(caller))
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, data
}

func decodeError(t *testing.T, data []byte) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

// seedVendor registers and approves vendorA with one product (price 10, stock 5).
func seedVendor(t *testing.T, app *fiber.App) ledger.Product {
	t.Helper()
	resp, _ := doRequest(t, app, http.MethodPost, "/api/v1/vendors", vendorA, `{"name":"Acme"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/vendors/vendor-a/approve", admin, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, data := doRequest(t, app, http.MethodPost, "/api/v1/products", vendorA, `{"name":"widget","price":10,"stock":5}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var p ledger.Product
	require.NoError(t, json.Unmarshal(data, &p))
	return p
}

// --- Tests ---

func TestIdentityRequired(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)

	resp, data := doRequest(t, app, http.MethodGet, "/api/v1/products", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", decodeError(t, data).Kind)
}

func TestRegisterVendor(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)

	resp, data := doRequest(t, app, http.MethodPost, "/api/v1/vendors", vendorA, `{"name":"Acme"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var v ledger.Vendor
	require.NoError(t, json.Unmarshal(data, &v))
	assert.EqualValues(t, 1, v.ID)
	assert.Equal(t, vendorA, v.PayoutAddress)
	assert.False(t, v.Approved)

	resp, data = doRequest(t, app, http.MethodPost, "/api/v1/vendors", vendorA, `{"name":"Acme again"}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_registered", decodeError(t, data).Code)
}

func TestRegisterVendor_IdentitySurvivesLaterRequests(t *testing.T) {
	app, l := newTestApp(t, nil, nil)

	resp, _ := doRequest(t, app, http.MethodPost, "/api/v1/vendors", vendorA, `{"name":"Acme"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	// Same length as vendorA, so a reused request buffer would overwrite it in place.
	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/vendors/zzzzzzzz", "zzzzzzzz", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	v, ok := l.Vendor(vendorA)
	require.True(t, ok)
	assert.Equal(t, vendorA, v.PayoutAddress)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/vendors/vendor-a/approve", admin, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRegisterVendor_BadRequests(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)

	resp, _ := doRequest(t, app, http.MethodPost, "/api/v1/vendors", vendorA, `{"name":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/vendors", vendorA, `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestApproveVendor_RequiresAdmin(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	doRequest(t, app, http.MethodPost, "/api/v1/vendors", vendorA, `{"name":"Acme"}`)

	resp, data := doRequest(t, app, http.MethodPost, "/api/v1/vendors/vendor-a/approve", vendorA, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(ledger.KindUnauthorized), decodeError(t, data).Kind)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/vendors/nobody/approve", admin, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAddProduct_Validation(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	seedVendor(t, app)

	resp, data := doRequest(t, app, http.MethodPost, "/api/v1/products", vendorA, `{"name":"free","price":0,"stock":1}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_price", decodeError(t, data).Code)

	resp, data = doRequest(t, app, http.MethodPost, "/api/v1/products", vendorA, `{"name":"none","price":1,"stock":0}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_stock", decodeError(t, data).Code)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/products", buyer, `{"name":"x","price":1,"stock":1}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/products", vendorA, `{"name":"x","price":-1,"stock":1}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPurchaseAndWithdraw(t *testing.T) {
	var paidTo ledger.Identity
	var paid uint64
	app, l := newTestApp(t, ledger.PayerFunc(func(_ context.Context, to ledger.Identity, amount uint64) error {
		paidTo, paid = to, amount
		return nil
	}), nil)
	p := seedVendor(t, app)

	resp, data := doRequest(t, app, http.MethodPost, "/api/v1/products/1/purchase", buyer, `{"quantity":2,"amount":19}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "incorrect_payment", decodeError(t, data).Code)

	resp, data = doRequest(t, app, http.MethodPost, "/api/v1/products/1/purchase", buyer, `{"quantity":2,"amount":20}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var receipt ledger.Purchase
	require.NoError(t, json.Unmarshal(data, &receipt))
	assert.Equal(t, p.ID, receipt.ProductID)
	assert.EqualValues(t, 3, receipt.RemainingStock)

	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/products/1/purchase", buyer, `{"quantity":4,"amount":40}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, data = doRequest(t, app, http.MethodPost, "/api/v1/withdrawals", vendorA, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var w WithdrawalResponse
	require.NoError(t, json.Unmarshal(data, &w))
	assert.EqualValues(t, 20, w.Amount)
	assert.Equal(t, vendorA, paidTo)
	assert.EqualValues(t, 20, paid)

	resp, data = doRequest(t, app, http.MethodPost, "/api/v1/withdrawals", vendorA, "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "nothing_to_withdraw", decodeError(t, data).Code)

	v, ok := l.Vendor(vendorA)
	require.True(t, ok)
	assert.Zero(t, v.EscrowBalance)
}

func TestWithdraw_PayoutFailureHidesCause(t *testing.T) {
	app, l := newTestApp(t, ledger.PayerFunc(func(context.Context, ledger.Identity, uint64) error {
		return errors.New("provider said: secret-token invalid")
	}), nil)
	seedVendor(t, app)
	doRequest(t, app, http.MethodPost, "/api/v1/products/1/purchase", buyer, `{"quantity":1,"amount":10}`)

	resp, data := doRequest(t, app, http.MethodPost, "/api/v1/withdrawals", vendorA, "")
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	e := decodeError(t, data)
	assert.Equal(t, "payout_failed", e.Code)
	assert.NotContains(t, e.Error, "secret-token")

	v, _ := l.Vendor(vendorA)
	assert.EqualValues(t, 10, v.EscrowBalance, "balance restored after failed payout")
}

func TestRemoveProduct(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	seedVendor(t, app)

	resp, _ := doRequest(t, app, http.MethodDelete, "/api/v1/products/1", buyer, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodDelete, "/api/v1/products/abc", vendorA, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodDelete, "/api/v1/products/1", vendorA, "")
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/products/1", buyer, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, data := doRequest(t, app, http.MethodGet, "/api/v1/vendors/vendor-a", buyer, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var v ledger.Vendor
	require.NoError(t, json.Unmarshal(data, &v))
	assert.Zero(t, v.ListingCount)
}

func TestRemoveVendor_OrphansProducts(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	seedVendor(t, app)

	resp, _ := doRequest(t, app, http.MethodDelete, "/api/v1/vendors/vendor-a", vendorA, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodDelete, "/api/v1/vendors/vendor-a", admin, "")
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/vendors/vendor-a", buyer, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, data := doRequest(t, app, http.MethodGet, "/api/v1/vendors/vendor-a/products", buyer, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var products []ledger.Product
	require.NoError(t, json.Unmarshal(data, &products))
	assert.Len(t, products, 1)
}

func TestQueries(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	seedVendor(t, app)
	doRequest(t, app, http.MethodPost, "/api/v1/products", vendorA, `{"name":"gadget","price":3,"stock":1}`)

	resp, data := doRequest(t, app, http.MethodGet, "/api/v1/products", buyer, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var products []ledger.Product
	require.NoError(t, json.Unmarshal(data, &products))
	require.Len(t, products, 2)
	assert.Less(t, products[0].ID, products[1].ID)

	resp, data = doRequest(t, app, http.MethodGet, "/api/v1/events?after=1&limit=2", buyer, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var events []ledger.Event
	require.NoError(t, json.Unmarshal(data, &events))
	require.Len(t, events, 2)
	assert.EqualValues(t, 2, events[0].Seq)
	assert.Equal(t, ledger.EventVendorApproved, events[0].Kind)

	resp, data = doRequest(t, app, http.MethodGet, "/api/v1/events?after=99", buyer, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(data))

	resp, _ = doRequest(t, app, http.MethodGet, "/api/v1/events?limit=0", buyer, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, data = doRequest(t, app, http.MethodGet, "/api/v1/summary", buyer, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var s ledger.Summary
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, 2, s.Products)
	assert.Equal(t, 1, s.ApprovedVendors)
	assert.EqualValues(t, 4, s.LastEventSeq)
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t, nil, map[string]HealthChecker{
		"store": HealthCheckFunc(func(context.Context) error { return nil }),
	})
	resp, data := doRequest(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"status":"ok"`)

	app, _ = newTestApp(t, nil, map[string]HealthChecker{
		"nats": HealthCheckFunc(func(context.Context) error { return errors.New("disconnected") }),
	})
	resp, data = doRequest(t, app, http.MethodGet, "/health", "", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(data), "disconnected")
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t, nil, nil)
	resp, data := doRequest(t, app, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "go_goroutines")
}
