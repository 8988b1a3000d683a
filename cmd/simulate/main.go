// Command simulate publishes synthetic telemetry snapshots for one stage so
// the alerting pipeline can be exercised without a live plant feed.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"cementwatch/internal/config"
)

func main() {
	cfgFile := flag.String("config", "", "path to config file")
	interval := flag.Duration("interval", 5*time.Second, "time between snapshots")
	spike := flag.Float64("spike", 0.1, "probability a reading lands outside its safe range")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("cementwatch-simulate"))
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	subject := "telemetry." + cfg.Monitor.Stage + ".current"
	logger.Info("Publishing synthetic snapshots",
		zap.String("subject", subject),
		zap.Duration("interval", *interval))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info("Simulator stopped")
			return
		case <-ticker.C:
			snapshot := buildSnapshot(cfg.Alerting.Thresholds, *spike)
			data, err := json.Marshal(snapshot)
			if err != nil {
				logger.Error("Failed to marshal snapshot", zap.Error(err))
				continue
			}
			if _, err := js.Publish(subject, data); err != nil {
				logger.Error("Failed to publish snapshot", zap.Error(err))
				continue
			}
			logger.Info("Snapshot published", zap.Int("parameters", len(snapshot)))
		}
	}
}

// buildSnapshot draws one reading per configured parameter, mostly inside
// the safe range, occasionally outside it to trigger alerts. A Time field
// rides along the way the plant historian writes it.
func buildSnapshot(thresholds map[string]config.ThresholdRange, spike float64) map[string]interface{} {
	snapshot := make(map[string]interface{}, len(thresholds)+1)
	for parameter, r := range thresholds {
		span := r.Max - r.Min
		var value float64
		if rand.Float64() < spike {
			value = r.Max + span*0.1*(1+rand.Float64())
		} else {
			value = r.Min + span*rand.Float64()
		}
		snapshot[parameter] = value
	}
	snapshot["Time"] = time.Now().Format("15:04:05")
	return snapshot
}
