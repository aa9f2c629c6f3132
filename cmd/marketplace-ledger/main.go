package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/marketplace-ledger/internal/api"
	"github.com/Checker-Finance/marketplace-ledger/internal/eventbus"
	"github.com/Checker-Finance/marketplace-ledger/internal/jobs"
	"github.com/Checker-Finance/marketplace-ledger/internal/kafka"
	"github.com/Checker-Finance/marketplace-ledger/internal/ledger"
	"github.com/Checker-Finance/marketplace-ledger/internal/payout"
	"github.com/Checker-Finance/marketplace-ledger/internal/publisher"
	"github.com/Checker-Finance/marketplace-ledger/internal/rabbitmq"
	"github.com/Checker-Finance/marketplace-ledger/internal/rate"
	internalsecrets "github.com/Checker-Finance/marketplace-ledger/internal/secrets"
	"github.com/Checker-Finance/marketplace-ledger/internal/store"
	"github.com/Checker-Finance/marketplace-ledger/pkg/config"
	"github.com/Checker-Finance/marketplace-ledger/pkg/logger"
	"github.com/Checker-Finance/marketplace-ledger/pkg/secrets"
	"github.com/Checker-Finance/marketplace-ledger/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infof("starting [%s]...", cfg.ServiceName)

	if err := cfg.Validate(); err != nil {
		logg.Fatalw("invalid configuration", "error", err)
	}

	// --- In-process event bus (ledger -> projections, NATS, RabbitMQ) ---
	bus := eventbus.New[ledger.Event](cfg.EventBuffer)

	// --- Payout ---
	stopCleaner := make(chan struct{})
	payer := buildPayer(ctx, cfg, stopCleaner)

	// --- Ledger ---
	l, err := ledger.New(logger.Named("ledger"), ledger.Identity(cfg.AdminIdentity), payer,
		ledger.EmitterFunc(func(ev ledger.Event) { bus.Publish(string(ev.Kind), ev) }))
	if err != nil {
		logg.Fatalw("failed to init ledger", "error", err)
	}

	checks := map[string]api.HealthChecker{}

	// --- Connect to NATS ---
	var nc *nats.Conn
	var pub *publisher.Publisher
	if cfg.NATSEnabled {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err)
		}
		js, err := nc.JetStream()
		if err != nil {
			logg.Fatalw("failed to init JetStream", "error", err)
		}
		if err := publisher.EnsureStream(js, cfg.NATSStream, cfg.EventSubject); err != nil {
			logg.Fatalw("failed to ensure stream", "stream", cfg.NATSStream, "error", err)
		}
		pub, err = publisher.New(nc, cfg.EventSubject, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
		bus.Subscribe(eventbus.Wildcard, func(ev ledger.Event) {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// failures are logged and counted by the publisher
			_ = pub.PublishEvent(pubCtx, ev)
		})
		checks["nats"] = api.HealthCheckFunc(func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("disconnected")
			}
			return nc.FlushTimeout(1 * time.Second)
		})
	} else {
		logg.Warn("NATS_ENABLED=false; ledger events are not streamed")
	}

	// --- RabbitMQ audit exchange ---
	var amqpPub *rabbitmq.Publisher
	if cfg.RabbitMQEnabled {
		logg.Info("connecting to RabbitMQ: ", utils.MaskDSN(cfg.RabbitMQURL))
		amqpPub, err = rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, bus, logger.Named("rabbitmq"))
		if err != nil {
			logg.Fatalw("failed to init RabbitMQ publisher", "error", err)
		}
	}

	// --- Kafka topic ---
	var kafkaProd *kafka.Producer
	if cfg.KafkaEnabled {
		kafkaProd = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, bus, logger.Named("kafka"))
		logg.Infow("kafka producer enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	// --- Store (Postgres journal + Redis snapshots) ---
	var st *store.HybridStore
	if cfg.JournalEnabled || cfg.SnapshotsEnabled {
		pgURL, redisAddr := "", ""
		if cfg.JournalEnabled {
			pgURL = cfg.DatabaseURL
			logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))
		}
		if cfg.SnapshotsEnabled {
			redisAddr = cfg.RedisAddr
		}
		st, err = store.NewHybrid(redisAddr, cfg.RedisDB, cfg.RedisPass, pgURL, store.PGPoolConfig{
			MaxConns:          cfg.PGMaxConns,
			MinConns:          cfg.PGMinConns,
			MaxConnLifetime:   cfg.PGMaxConnLifetime,
			MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
			HealthCheckPeriod: cfg.PGHealthCheckPeriod,
		}, logger.Named("store"))
		if err != nil {
			logg.Fatalw("failed to init store", "error", err)
		}
		if err := st.Migrate(ctx); err != nil {
			logg.Fatalw("failed to migrate journal", "error", err)
		}

		projector := jobs.NewProjector(logger.Named("projector"), st, st, l, cfg.SnapshotTTL)
		bus.Subscribe(eventbus.Wildcard, projector.Handle)
		checks["store"] = st
		logg.Infow("projections enabled",
			"journal", cfg.JournalEnabled,
			"snapshots", cfg.SnapshotsEnabled,
			"run_id", st.RunID().String())
	}

	// --- Summary publisher ---
	var summaryPub jobs.Publisher
	if pub != nil {
		summaryPub = pub
	}
	var summaryCache jobs.Cache
	if st != nil && cfg.SnapshotsEnabled {
		summaryCache = st
	}
	summary := jobs.NewSummaryPublisher(logger.Named("summary"), l, summaryPub, summaryCache, cfg.SummaryInterval)
	go summary.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
		UnescapePath: true,
		Immutable:    true,
	})

	handler := api.NewLedgerHandler(logger.Named("api"), l)
	api.RegisterRoutes(app, handler, cfg.IdentityHeader, checks)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("["+cfg.ServiceName+"] running",
		"env", cfg.Env,
		"admin", cfg.AdminIdentity,
		"payout_mode", cfg.PayoutMode,
		"nats", cfg.NATSEnabled,
		"rabbitmq", cfg.RabbitMQEnabled,
		"kafka", cfg.KafkaEnabled)

	<-ctx.Done()
	logg.Infof("shutting down [%s]...", cfg.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	summary.Stop()
	close(stopCleaner)

	// drain queued events into the projections and brokers before closing them
	bus.Close()

	if kafkaProd != nil {
		if err := kafkaProd.Close(); err != nil {
			logg.Warnw("kafka.close_failed", "error", err)
		}
	}
	if amqpPub != nil {
		if err := amqpPub.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if st != nil {
		if err := st.Close(); err != nil {
			logg.Warnw("store.close_failed", "error", err)
		}
	}
}

// buildPayer selects the payout collaborator. In http mode the provider API key
// comes from AWS Secrets Manager or, with SECRETS_BACKEND=env, from PAYOUT_API_KEY.
func buildPayer(ctx context.Context, cfg *config.Config, stopCleaner <-chan struct{}) ledger.Payer {
	logg := logger.S()

	if cfg.PayoutMode == payout.ModeLog {
		logg.Warn("PAYOUT_MODE=log; withdrawals are recorded but no money moves")
		return payout.NewLogPayer(logger.Named("payout"), cfg.PayoutCurrency, cfg.PayoutCurrencyExponent)
	}

	var provider secrets.Provider
	switch cfg.SecretsBackend {
	case "aws":
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		provider = awsProvider
	default:
		logg.Infow("payout credentials from environment", "api_key", utils.MaskSecret(cfg.PayoutAPIKey))
		provider = secrets.StaticProvider{
			cfg.PayoutSecretName: {"api_key": cfg.PayoutAPIKey},
		}
	}

	keyCache := secrets.NewCache[string](cfg.CacheTTL)
	go keyCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.PayoutRequestsPerSec,
		Burst:             cfg.PayoutBurst,
	})

	return payout.NewClient(
		logger.Named("payout"),
		payout.ClientConfig{
			BaseURL:    cfg.PayoutBaseURL,
			SecretName: cfg.PayoutSecretName,
			Currency:   cfg.PayoutCurrency,
			Exponent:   cfg.PayoutCurrencyExponent,
		},
		&http.Client{Timeout: cfg.PayoutTimeout},
		rateMgr,
		cfg.PayoutRetryMax,
		internalsecrets.NewResolver(logger.Named("secrets"), provider, keyCache, payout.ParseAPIKey),
	)
}
