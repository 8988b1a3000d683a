package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"cementwatch/internal/model"
	"cementwatch/internal/storage"
)

// HealthChecker periodically records that the alerting pipeline is alive:
// how many batches fired recently plus host CPU and memory load. It runs
// outside the monitor's invocation path and its failures only ever reach
// the log.
type HealthChecker struct {
	logger *zap.Logger
	log    storage.AlertLog
	store  storage.HealthStore
	cron   *cron.Cron
	spec   string
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewHealthChecker creates a health checker on the given cron spec
// (seconds-granularity expressions, e.g. "0 0 9 * * *" for daily at 09:00).
func NewHealthChecker(log storage.AlertLog, store storage.HealthStore, spec string, logger *zap.Logger) *HealthChecker {
	named := logger.Named("health")
	return &HealthChecker{
		logger: named,
		log:    log,
		store:  store,
		spec:   spec,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(&cronLogger{logger: named.Named("cron")})),
		),
	}
}

// Start schedules the health check and starts the cron runner.
func (h *HealthChecker) Start(ctx context.Context) error {
	_, err := h.cron.AddFunc(h.spec, func() { _ = h.Run(ctx) })
	if err != nil {
		return err
	}
	h.cron.Start()
	h.logger.Info("Health checker started", zap.String("spec", h.spec))
	return nil
}

// Stop stops the cron runner and waits for a running check to finish.
func (h *HealthChecker) Stop() {
	ctx := h.cron.Stop()
	<-ctx.Done()
}

// Run performs one health check, writes the record and returns it.
func (h *HealthChecker) Run(ctx context.Context) model.HealthRecord {
	record := model.HealthRecord{
		Timestamp: time.Now(),
		Status:    "ok",
	}

	count, err := h.log.CountRecent(ctx, record.Timestamp.Add(-24*time.Hour))
	if err != nil {
		h.logger.Error("Failed to count recent alerts", zap.Error(err))
		record.Status = "degraded"
	}
	record.AlertsCount = count

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		record.CPUPercent = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		record.MemPercent = vm.UsedPercent
	}

	if err := h.store.AppendHealth(ctx, record); err != nil {
		h.logger.Error("Failed to write health record", zap.Error(err))
		return record
	}

	h.logger.Info("Health check recorded",
		zap.String("status", record.Status),
		zap.Int("alerts_count", record.AlertsCount),
		zap.Float64("cpu_percent", record.CPUPercent),
		zap.Float64("mem_percent", record.MemPercent))
	return record
}
