package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"cementwatch/internal/alert"
	"cementwatch/internal/model"
	"cementwatch/internal/notify"
	"cementwatch/internal/storage"
)

// Outcome summarizes one monitor invocation for observability. Stage errors
// never propagate past the invocation; they are reduced to fields here and
// logged.
type Outcome struct {
	Evaluated       int
	Fired           int
	AttemptFailures int
	LogErr          error
}

// Monitor subscribes to telemetry snapshots for one process stage and runs
// the evaluate -> dispatch -> log sequence for each one. Stages are strictly
// sequential within an invocation; invocations for successive snapshots may
// overlap, with cooldown atomicity as the only cross-invocation guard.
type Monitor struct {
	logger     *zap.Logger
	js         nats.JetStreamContext
	evaluator  *alert.Evaluator
	dispatcher *notify.Dispatcher
	log        storage.AlertLog
	recipients []string
	stage      string
	sub        *nats.Subscription
}

// New creates a monitor for the given stage.
func New(js nats.JetStreamContext, evaluator *alert.Evaluator, dispatcher *notify.Dispatcher, log storage.AlertLog, recipients []string, stage string, logger *zap.Logger) *Monitor {
	return &Monitor{
		logger:     logger.Named("monitor"),
		js:         js,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		log:        log,
		recipients: recipients,
		stage:      stage,
	}
}

// Start ensures the telemetry and alert streams exist and subscribes to the
// stage's snapshot subject.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.ensureStream(telemetryStreamName, "telemetry.>"); err != nil {
		return err
	}
	if err := m.ensureStream(alertStreamName, "alert.*"); err != nil {
		return err
	}

	subject := telemetrySubject(m.stage)
	sub, err := m.js.Subscribe(subject, func(msg *nats.Msg) {
		m.handleSnapshot(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	m.sub = sub

	m.logger.Info("Monitor started",
		zap.String("stage", m.stage),
		zap.String("subject", subject),
		zap.Int("recipients", len(m.recipients)))
	return nil
}

// Stop unsubscribes from the telemetry subject.
func (m *Monitor) Stop() {
	if m.sub != nil {
		m.sub.Unsubscribe()
	}
}

func (m *Monitor) ensureStream(name, subjects string) error {
	_, err := m.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info for %s: %w", name, err)
	}

	_, err = m.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{subjects},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	m.logger.Info("Created stream", zap.String("name", name))
	return nil
}

// handleSnapshot is the fire-and-forget entry point: whatever goes wrong, it
// returns normally so the subscription keeps delivering.
func (m *Monitor) handleSnapshot(ctx context.Context, msg *nats.Msg) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Monitor invocation panicked", zap.Any("panic", r))
		}
	}()

	var snapshot model.Snapshot
	if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
		m.logger.Error("Failed to unmarshal snapshot", zap.Error(err))
		return
	}

	outcome := m.process(ctx, snapshot)

	m.logger.Info("Snapshot processed",
		zap.String("stage", m.stage),
		zap.Int("evaluated", outcome.Evaluated),
		zap.Int("fired", outcome.Fired),
		zap.Int("attempt_failures", outcome.AttemptFailures),
		zap.Bool("log_failed", outcome.LogErr != nil))
}

// process runs one invocation: evaluate fully, then dispatch until every
// attempt settles, then append the batch. Dispatch and log are independent
// side effects; a log failure does not undo notifications.
func (m *Monitor) process(ctx context.Context, snapshot model.Snapshot) Outcome {
	outcome := Outcome{Evaluated: len(snapshot.Fields)}

	events := m.evaluator.Evaluate(snapshot)
	outcome.Fired = len(events)
	if len(events) == 0 {
		return outcome
	}

	results := m.dispatcher.Dispatch(ctx, events, m.recipients)
	for _, r := range results {
		if r.Err != nil {
			outcome.AttemptFailures++
		}
	}

	// One batch identity for both the live feed and the log, so the two
	// views correlate.
	batch := model.AlertBatch{
		ID:        uuid.New().String(),
		Alerts:    events,
		Timestamp: time.Now(),
	}

	m.publishBatch(batch)

	if err := m.log.Append(ctx, batch); err != nil {
		outcome.LogErr = err
		m.logger.Error("Failed to log alert batch", zap.Error(err))
	}

	return outcome
}

// publishBatch pushes the fired batch onto the alert subject so dashboards
// can subscribe without polling the log.
func (m *Monitor) publishBatch(batch model.AlertBatch) {
	data, err := json.Marshal(batch)
	if err != nil {
		m.logger.Error("Failed to marshal alert batch", zap.Error(err))
		return
	}
	if _, err := m.js.Publish(alertFiredSubject, data); err != nil {
		m.logger.Error("Failed to publish alert batch", zap.Error(err))
	}
}
