package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"cementwatch/internal/alert"
	"cementwatch/internal/config"
	"cementwatch/internal/monitor"
	"cementwatch/internal/notify"
	"cementwatch/internal/server"
	"cementwatch/internal/storage"
)

func main() {
	cfgFile := flag.String("config", "", "path to config file")
	flag.Parse()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if len(cfg.Alerting.Recipients) == 0 {
		logger.Warn("No alert recipients configured; notifications will be skipped")
	}

	// Connect to NATS
	opts := []nats.Option{
		nats.Name(cfg.NATS.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error",
				zap.String("subject", sub.Subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Open alert log storage
	store, err := storage.NewSQLiteStore(logger, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("Failed to open alert storage", zap.Error(err))
	}
	defer store.Close()

	// Assemble the alerting pipeline
	registry, err := alert.NewRegistry(ctx, cfg.Alerting, store, logger)
	if err != nil {
		logger.Fatal("Failed to create threshold registry", zap.Error(err))
	}

	cooldown := alert.NewCooldownTracker(cfg.Alerting.Cooldown())
	evaluator := alert.NewEvaluator(registry, cooldown, logger)
	provider := notify.NewTwilioProvider(cfg.Twilio, logger)
	dispatcher := notify.NewDispatcher(provider, logger)

	mon := monitor.New(js, evaluator, dispatcher, store, cfg.Alerting.Recipients, cfg.Monitor.Stage, logger)
	if err := mon.Start(ctx); err != nil {
		logger.Fatal("Failed to start monitor", zap.Error(err))
	}
	defer mon.Stop()

	// Scheduled health check
	health := monitor.NewHealthChecker(store, store, cfg.Health.CronSpec, logger)
	if err := health.Start(ctx); err != nil {
		logger.Fatal("Failed to start health checker", zap.Error(err))
	}
	defer health.Stop()

	// Admin HTTP API
	api := server.New(registry, provider, store, cfg.Alerting.Recipients, logger)
	go func() {
		if err := api.Run(ctx, cfg.HTTP.Listen); err != nil {
			logger.Error("Admin API failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down gracefully")
}
