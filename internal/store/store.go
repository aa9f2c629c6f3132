package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
)

const vendorKeyPrefix = "vendor:"

// Store defines the contract for journaling ledger events and caching vendor projections.
type Store interface {
	RecordEvent(ctx context.Context, ev ledger.Event) error
	UpdateVendorSnapshot(ctx context.Context, v ledger.Vendor, ttl time.Duration) error
	DeleteVendorSnapshot(ctx context.Context, vendor ledger.Identity) error
	GetVendorSnapshot(ctx context.Context, vendor ledger.Identity) (*ledger.Vendor, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// pgPool is the part of *pgxpool.Pool the store uses.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// HybridStore journals events to Postgres and keeps vendor snapshots in Redis.
// Either side may be absent; the corresponding methods then do nothing.
type HybridStore struct {
	redis  *redis.Client
	pg     pgPool
	runID  uuid.UUID
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid connects to Redis (when redisAddr is set) and Postgres (when pgURL is set).
func NewHybrid(redisAddr string, redisDB int, redisPass string, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s := &HybridStore{runID: uuid.New(), logger: logger}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			DB:       redisDB,
			Password: redisPass,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		s.redis = rdb
	}

	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s.pg = pool
	}

	return s, nil
}

// RunID identifies this process's journal. Event sequence numbers restart with
// the in-memory ledger, so journal rows are unique per (run_id, seq).
func (s *HybridStore) RunID() uuid.UUID { return s.runID }

// Migrate creates the journal table if it does not exist.
func (s *HybridStore) Migrate(ctx context.Context) error {
	if s.pg == nil {
		return nil
	}
	if _, err := s.pg.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS ledger`); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	_, err := s.pg.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger.marketplace_event (
			run_id      UUID        NOT NULL,
			seq         BIGINT      NOT NULL,
			kind        TEXT        NOT NULL,
			actor       TEXT        NOT NULL,
			vendor      TEXT,
			product_id  BIGINT,
			amount      NUMERIC(20, 0),
			payload     JSONB       NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// RecordEvent appends an immutable event to ledger.marketplace_event.
// Replays of the same event are ignored.
func (s *HybridStore) RecordEvent(ctx context.Context, ev ledger.Event) error {
	if s.pg == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.pg.Exec(ctx, `
		INSERT INTO ledger.marketplace_event (
			run_id, seq, kind, actor, vendor, product_id, amount, payload, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, CAST($7::text AS NUMERIC), $8, $9)
		ON CONFLICT (run_id, seq) DO NOTHING
	`, s.runID, int64(ev.Seq), string(ev.Kind), string(ev.Actor), nullString(string(ev.Vendor)),
		nullInt(ev.ProductID), strconv.FormatUint(ev.Amount, 10), payload, ev.At)
	if err != nil {
		s.logger.Error("store.pg.insert_event_failed",
			zap.Uint64("seq", ev.Seq),
			zap.Error(err))
	}
	return err
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nullInt(v uint64) *int64 {
	if v == 0 {
		return nil
	}
	n := int64(v)
	return &n
}

func vendorKey(vendor ledger.Identity) string {
	return vendorKeyPrefix + string(vendor)
}

// UpdateVendorSnapshot caches the vendor record. ttl = 0 keeps it until replaced or deleted.
func (s *HybridStore) UpdateVendorSnapshot(ctx context.Context, v ledger.Vendor, ttl time.Duration) error {
	if s.redis == nil {
		return nil
	}
	if err := s.SetJSON(ctx, vendorKey(v.PayoutAddress), v, ttl); err != nil {
		s.logger.Error("store.redis.snapshot_update_failed",
			zap.String("vendor", string(v.PayoutAddress)),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *HybridStore) DeleteVendorSnapshot(ctx context.Context, vendor ledger.Identity) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, vendorKey(vendor)).Err()
}

// GetVendorSnapshot returns nil, nil when no snapshot is cached.
func (s *HybridStore) GetVendorSnapshot(ctx context.Context, vendor ledger.Identity) (*ledger.Vendor, error) {
	if s.redis == nil {
		return nil, nil
	}
	var v ledger.Vendor
	err := s.GetJSON(ctx, vendorKey(vendor), &v)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil && s.pg == nil {
		return fmt.Errorf("store not initialized")
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	if s.pg != nil {
		if err := s.pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.pg != nil {
		s.pg.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
