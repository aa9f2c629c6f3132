package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
	pkgsecrets "github.com/Checker-Finance/marketplace-ledger/pkg/secrets"
)

// Resolver loads typed configuration from a secrets provider and keeps it in a
// TTL cache. It is generic over the resolved type so any outbound client can
// share it; the payout client resolves its API key through one.
type Resolver[T any] struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[T]
	parse    func(map[string]string) (T, error)
}

// NewResolver constructs a resolver. parse extracts T from the raw secret map and
// should validate required fields.
func NewResolver[T any](
	logger *zap.Logger,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[T],
	parse func(map[string]string) (T, error),
) *Resolver[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver[T]{
		logger:   logger,
		provider: provider,
		cache:    cache,
		parse:    parse,
	}
}

func cacheKey(name string) string {
	return strings.ToLower(name)
}

// Resolve fetches or returns the cached value stored under secret name.
func (r *Resolver[T]) Resolve(ctx context.Context, name string) (T, error) {
	key := cacheKey(name)

	// --- check in-memory cache first ---
	if v, ok := r.cache.Get(key); ok {
		metrics.IncCacheHit("hit")
		return v, nil
	}
	metrics.IncCacheHit("miss")

	// --- fetch from the provider ---
	secretMap, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		var zero T
		return zero, fmt.Errorf("resolve secret %q: %w", name, err)
	}

	v, err := r.parse(secretMap)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse secret %q: %w", name, err)
	}

	// --- cache locally for next time ---
	r.cache.Put(key, v)

	r.logger.Info("secrets.resolved", zap.String("key", name))
	return v, nil
}

// Invalidate drops a cached value, e.g. after the remote side rejected it.
func (r *Resolver[T]) Invalidate(name string) {
	r.cache.Bust(cacheKey(name))
}
