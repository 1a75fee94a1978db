package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/cache"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/config"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/db"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/events"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/gateway"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/handlers"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/services"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/store"
)

const sweepBatch = 100

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("APP_ENV") == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	client, err := db.Connect(ctx, cfg.Mongo.URI, logger)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			logger.Warn("error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	database := client.Database(cfg.Mongo.Database)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		logger.Fatal("failed to create indexes", zap.Error(err))
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info("publishing payment events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var opts []services.Option
	if cfg.Redis.Addr != "" {
		rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, notification lock will fail open", zap.Error(err))
		}
		opts = append(opts, services.WithNotificationLocker(cache.NewNotificationLock(rdb, cfg.Redis.LockTTL)))
	}

	// Initialize services and handlers
	st := store.NewMongoStore(client, database)
	ledger := services.NewWalletLedger(st, logger)
	xendit := gateway.NewXenditClient(gateway.XenditConfig{
		SecretKey:       cfg.Xendit.SecretKey,
		BaseURL:         cfg.Xendit.BaseURL,
		CallbackToken:   cfg.Xendit.CallbackToken,
		SigningKey:      cfg.Xendit.SigningKey,
		Currency:        cfg.Xendit.Currency,
		// Invoices die when the sweeper would give up on the order.
		InvoiceDuration: cfg.PendingOrderTTL,
	}, logger)
	payments := services.NewPaymentService(st, ledger, xendit, store.NewMongoSessions(database), publisher, services.PaymentConfig{
		RechargeMin: cfg.Limits.RechargeMin,
		RechargeMax: cfg.Limits.RechargeMax,
		ChargingMax: cfg.Limits.ChargingMax,
		NotifyURL:   cfg.NotifyURL(),
		ReturnURL:   cfg.ReturnURL(),
	}, logger, opts...)

	router := handlers.NewRouter(
		handlers.NewPaymentHandler(payments, logger),
		handlers.NewWalletHandler(ledger, logger),
		handlers.NewAuthenticator(cfg.JWTSecret),
		logger)

	go sweepPendingOrders(ctx, payments, cfg.PendingOrderTTL, cfg.SweepInterval, logger)

	// Start server
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		logger.Info("server running", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// sweepPendingOrders periodically closes gateway orders whose notification
// never arrived.
func sweepPendingOrders(ctx context.Context, payments *services.PaymentService, ttl, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := payments.ExpirePendingOrders(ctx, ttl, sweepBatch)
			if err != nil {
				logger.Warn("pending order sweep failed", zap.Error(err))
				continue
			}
			if closed > 0 {
				logger.Info("closed stale pending orders", zap.Int("count", closed))
			}
		}
	}
}
