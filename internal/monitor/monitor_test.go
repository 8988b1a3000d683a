package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cementwatch/internal/alert"
	"cementwatch/internal/config"
	"cementwatch/internal/model"
	"cementwatch/internal/notify"
	"cementwatch/internal/storage"
	"cementwatch/internal/testutil"
)

type recordingProvider struct {
	mu    sync.Mutex
	calls int
	sms   int
}

func (p *recordingProvider) Call(context.Context, string, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return "CA-test", nil
}

func (p *recordingProvider) SendSMS(context.Context, string, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sms++
	return "SM-test", nil
}

func (p *recordingProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.sms
}

type failingLog struct{}

func (failingLog) Append(context.Context, model.AlertBatch) error { return errors.New("disk full") }
func (failingLog) Recent(context.Context, int) ([]model.AlertBatch, error) {
	return nil, errors.New("disk full")
}
func (failingLog) CountRecent(context.Context, time.Time) (int, error) {
	return 0, errors.New("disk full")
}

func monitorAlertingConfig() config.AlertingConfig {
	return config.AlertingConfig{
		CooldownMinutes: 10,
		Thresholds: map[string]config.ThresholdRange{
			"Clinker_Outlet_Temperature_C": {Min: 60, Max: 80, Enabled: true},
			"Grate_Speed_strokes_min":      {Min: 8, Max: 180, Enabled: true},
		},
		Messages: map[string]string{
			"Clinker_Outlet_Temperature_C": "Alert! Clinker outlet temperature is {value}°C, outside safe range {min}–{max}°C. Check cooling system.",
		},
	}
}

func newTestMonitor(t *testing.T, js nats.JetStreamContext, log storage.AlertLog) (*Monitor, *recordingProvider) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	registry, err := alert.NewRegistry(context.Background(), monitorAlertingConfig(), nil, logger)
	require.NoError(t, err)

	cooldown := alert.NewCooldownTracker(10 * time.Minute)
	evaluator := alert.NewEvaluator(registry, cooldown, logger)

	provider := &recordingProvider{}
	dispatcher := notify.NewDispatcher(provider, logger)

	return New(js, evaluator, dispatcher, log, []string{"+911234"}, "step5_cooling_grinding", logger), provider
}

func newTestLog(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	store, err := storage.NewSQLiteStore(logger, t.TempDir()+"/alerts.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMonitor_EndToEnd(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	store := newTestLog(t)
	mon, provider := newTestMonitor(t, js, store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, mon.Start(ctx))
	defer mon.Stop()

	// Collect fired batches
	batchCh := make(chan model.AlertBatch, 4)
	sub, err := js.Subscribe(alertFiredSubject, func(msg *nats.Msg) {
		var batch model.AlertBatch
		require.NoError(t, json.Unmarshal(msg.Data, &batch))
		batchCh <- batch
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// A snapshot with one violation, one in-range value and a timestamp field
	snapshot := []byte(`{"Clinker_Outlet_Temperature_C": 95, "Grate_Speed_strokes_min": 50, "Time": "12:00:00"}`)
	_, err = js.Publish(telemetrySubject("step5_cooling_grinding"), snapshot)
	require.NoError(t, err)

	var published model.AlertBatch
	select {
	case published = <-batchCh:
		require.Len(t, published.Alerts, 1)
		require.Equal(t, "Clinker_Outlet_Temperature_C", published.Alerts[0].Parameter)
		require.Contains(t, published.Alerts[0].Message, "95")
	case <-ctx.Done():
		t.Fatal("timeout waiting for alert batch")
	}

	// Both channels attempted for the single recipient
	testutil.Eventually(t, 5*time.Second, func() bool {
		calls, sms := provider.counts()
		return calls == 1 && sms == 1
	})

	// Batch appended to the log
	testutil.Eventually(t, 5*time.Second, func() bool {
		batches, err := store.Recent(ctx, 10)
		return err == nil && len(batches) == 1
	})

	// The logged row shares the published batch's identity
	batches, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, published.ID, batches[0].ID)

	// Same snapshot inside the cooldown window: no new batch, no new attempts
	_, err = js.Publish(telemetrySubject("step5_cooling_grinding"), snapshot)
	require.NoError(t, err)

	select {
	case <-batchCh:
		t.Fatal("cooldown should have suppressed the repeat alert")
	case <-time.After(2 * time.Second):
	}

	calls, sms := provider.counts()
	require.Equal(t, 1, calls)
	require.Equal(t, 1, sms)
}

func TestMonitor_MalformedSnapshotIgnored(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	store := newTestLog(t)
	mon, provider := newTestMonitor(t, js, store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, mon.Start(ctx))
	defer mon.Stop()

	_, err := js.Publish(telemetrySubject("step5_cooling_grinding"), []byte(`not json`))
	require.NoError(t, err)

	// A following valid snapshot is still processed
	_, err = js.Publish(telemetrySubject("step5_cooling_grinding"), []byte(`{"Clinker_Outlet_Temperature_C": 95}`))
	require.NoError(t, err)

	testutil.Eventually(t, 5*time.Second, func() bool {
		calls, _ := provider.counts()
		return calls == 1
	})
}

func TestMonitor_LogFailureDoesNotFailInvocation(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	mon, _ := newTestMonitor(t, js, failingLog{})

	var snapshot model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"Clinker_Outlet_Temperature_C": 95}`), &snapshot))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, mon.Start(ctx))
	defer mon.Stop()

	outcome := mon.process(ctx, snapshot)
	require.Equal(t, 1, outcome.Fired)
	require.Error(t, outcome.LogErr)
}

func TestMonitor_NoViolationsNoSideEffects(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	store := newTestLog(t)
	mon, provider := newTestMonitor(t, js, store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, mon.Start(ctx))
	defer mon.Stop()

	var snapshot model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"Grate_Speed_strokes_min": 50, "Time": "12:00:00"}`), &snapshot))

	outcome := mon.process(ctx, snapshot)
	require.Equal(t, 2, outcome.Evaluated)
	require.Equal(t, 0, outcome.Fired)
	require.NoError(t, outcome.LogErr)

	calls, sms := provider.counts()
	require.Equal(t, 0, calls)
	require.Equal(t, 0, sms)

	batches, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, batches)
}
