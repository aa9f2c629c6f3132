package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f(ctx).
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// RegisterRoutes mounts metrics, health and the ledger API. checks names the
// optional dependencies reported by /health; the ledger itself is always "ok".
func RegisterRoutes(app *fiber.App, h *LedgerHandler, identityHeader string, checks map[string]HealthChecker) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		results := map[string]string{"ledger": "ok"}
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check.HealthCheck(healthCtx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	})

	// API routes
	v1 := app.Group("/api/v1", IdentityMiddleware(identityHeader))

	v1.Post("/vendors", h.RegisterVendor)
	v1.Post("/vendors/:vendor/approve", h.ApproveVendor)
	v1.Delete("/vendors/:vendor", h.RemoveVendor)
	v1.Get("/vendors/:vendor", h.GetVendor)
	v1.Get("/vendors/:vendor/products", h.GetVendorProducts)

	v1.Post("/products", h.AddProduct)
	v1.Get("/products", h.GetProducts)
	v1.Get("/products/:id", h.GetProduct)
	v1.Delete("/products/:id", h.RemoveProduct)
	v1.Post("/products/:id/purchase", h.BuyProduct)

	v1.Post("/withdrawals", h.Withdraw)

	v1.Get("/events", h.GetEvents)
	v1.Get("/summary", h.GetSummary)
}
