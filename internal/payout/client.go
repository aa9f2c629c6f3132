package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/httpclient"
	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
	"github.com/Checker-Finance/marketplace-ledger/internal/rate"
	"github.com/Checker-Finance/marketplace-ledger/internal/secrets"
	"github.com/Checker-Finance/marketplace-ledger/pkg/model"
)

const (
	apiKeyField  = "api_key"
	rateLimitKey = "payout"
)

// ErrRejected is returned when the provider answers but declines the transfer.
var ErrRejected = errors.New("payout rejected")

// errUnauthorized marks a 401/403 so the cached key can be dropped.
var errUnauthorized = errors.New("payout provider refused credentials")

// ClientConfig configures the HTTP payer.
type ClientConfig struct {
	BaseURL    string
	SecretName string
	Currency   string
	Exponent   int
}

// Client pays vendors through an HTTP payout provider. The provider API key is
// resolved through keys and cached until the provider rejects it.
type Client struct {
	logger *zap.Logger
	exec   *httpclient.Executor
	cfg    ClientConfig
	keys   *secrets.Resolver[string]
}

// ParseAPIKey extracts the provider key from a raw secret.
func ParseAPIKey(secret map[string]string) (string, error) {
	key := secret[apiKeyField]
	if key == "" {
		return "", fmt.Errorf("secret has no %s", apiKeyField)
	}
	return key, nil
}

// NewClient constructs the HTTP payer. httpClient carries the request timeout.
func NewClient(
	logger *zap.Logger,
	cfg ClientConfig,
	httpClient *http.Client,
	rateMgr *rate.Manager,
	retryMax int,
	keys *secrets.Resolver[string],
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	exec := httpclient.New(logger, rateMgr, httpClient, retryMax, "payout", func(status int, body []byte) error {
		var resp model.PayoutResponse
		_ = json.Unmarshal(body, &resp)

		logger.Warn("payout.client_error",
			zap.Int("status", status),
			zap.String("reason", resp.Reason),
			zap.String("body", string(body)))

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return fmt.Errorf("%w: status %d", errUnauthorized, status)
		}
		reason := resp.Reason
		if reason == "" {
			reason = string(body)
		}
		return fmt.Errorf("%w: provider returned %d: %s", ErrRejected, status, reason)
	})
	return &Client{
		logger: logger,
		exec:   exec,
		cfg:    cfg,
		keys:   keys,
	}
}

// Pay sends one transfer. POST {base}/payouts
// The idempotency key is fixed for the call so executor retries cannot double pay.
func (c *Client) Pay(ctx context.Context, to ledger.Identity, amount uint64) error {
	apiKey, err := c.keys.Resolve(ctx, c.cfg.SecretName)
	if err != nil {
		metrics.IncPayout(ModeHTTP, "error")
		return fmt.Errorf("resolve payout credentials: %w", err)
	}

	reference := uuid.NewString()
	body, err := json.Marshal(model.PayoutRequest{
		Reference:   reference,
		Destination: string(to),
		Amount:      MajorUnits(amount, c.cfg.Exponent),
		Currency:    c.cfg.Currency,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		metrics.IncPayout(ModeHTTP, "error")
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Idempotency-Key", reference)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var resp model.PayoutResponse
	if err := c.exec.DoJSON(ctx, req, rateLimitKey, &resp); err != nil {
		if errors.Is(err, errUnauthorized) {
			c.keys.Invalidate(c.cfg.SecretName)
		}
		metrics.IncPayout(ModeHTTP, "error")
		return err
	}

	if strings.EqualFold(resp.Status, "rejected") || strings.EqualFold(resp.Status, "failed") {
		metrics.IncPayout(ModeHTTP, "rejected")
		return fmt.Errorf("%w: %s", ErrRejected, resp.Reason)
	}

	metrics.IncPayout(ModeHTTP, "ok")
	c.logger.Info("payout.sent",
		zap.String("reference", reference),
		zap.String("provider_id", resp.ID),
		zap.String("status", resp.Status),
		zap.String("destination", string(to)),
		zap.Uint64("amount_minor", amount))
	return nil
}
