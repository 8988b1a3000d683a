package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cementwatch/internal/alert"
	"cementwatch/internal/config"
	"cementwatch/internal/model"
	"cementwatch/internal/storage"
)

type stubProvider struct {
	failFor map[string]error
}

func (p *stubProvider) Call(_ context.Context, to, _ string) (string, error) {
	if err, ok := p.failFor[to]; ok {
		return "", err
	}
	return "CA-" + to, nil
}

func (p *stubProvider) SendSMS(_ context.Context, to, _ string) (string, error) {
	return "SM-" + to, nil
}

func newTestServer(t *testing.T, provider *stubProvider, recipients []string) (*Server, *storage.SQLiteStore) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	store, err := storage.NewSQLiteStore(logger, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.AlertingConfig{
		CooldownMinutes: 10,
		Thresholds: map[string]config.ThresholdRange{
			"Clinker_Outlet_Temperature_C": {Min: 60, Max: 80, Enabled: true},
		},
	}
	registry, err := alert.NewRegistry(context.Background(), cfg, store, logger)
	require.NoError(t, err)

	return New(registry, provider, store, recipients, logger), store
}

func TestServer_UpdateAlertConfig(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{}, nil)

	body := `{"parameter": "Clinker_Outlet_Temperature_C", "max": 85}`
	req := httptest.NewRequest(http.MethodPost, "/updateAlertConfig", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool   `json:"success"`
		Config  struct {
			Min     float64 `json:"min"`
			Max     float64 `json:"max"`
			Enabled bool    `json:"enabled"`
		} `json:"config"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 60.0, resp.Config.Min)
	require.Equal(t, 85.0, resp.Config.Max)
	require.True(t, resp.Config.Enabled)
}

func TestServer_UpdateAlertConfig_UnknownParameter(t *testing.T) {
	srv, store := newTestServer(t, &stubProvider{}, nil)

	body := `{"parameter": "NotARealSensor", "min": 1, "max": 2}`
	req := httptest.NewRequest(http.MethodPost, "/updateAlertConfig", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Invalid parameter")

	// No override was persisted
	saved, err := store.LoadThresholds(context.Background())
	require.NoError(t, err)
	require.Empty(t, saved)
}

func TestServer_GetAlerts(t *testing.T) {
	srv, store := newTestServer(t, &stubProvider{}, nil)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, model.AlertBatch{
		ID: "batch-old", Timestamp: time.Now(), Alerts: []model.AlertEvent{{
			ID: "old-id", Parameter: "old", Value: 1, Message: "old alert", Timestamp: time.Now(),
		}},
	}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Append(ctx, model.AlertBatch{
		ID: "batch-new", Timestamp: time.Now(), Alerts: []model.AlertEvent{{
			ID: "new-id", Parameter: "new", Value: 2, Message: "new alert", Timestamp: time.Now(),
		}},
	}))

	req := httptest.NewRequest(http.MethodGet, "/getAlerts?limit=1", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool               `json:"success"`
		Count   int                `json:"count"`
		Alerts  []model.AlertEvent `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, 1, resp.Count)
	require.Equal(t, "new", resp.Alerts[0].Parameter)
}

func TestServer_TestAlert(t *testing.T) {
	provider := &stubProvider{failFor: map[string]error{"+2222": errors.New("unreachable")}}
	srv, _ := newTestServer(t, provider, []string{"+1111", "+2222"})

	req := httptest.NewRequest(http.MethodPost, "/testAlert", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Results []struct {
			PhoneNumber string `json:"phoneNumber"`
			Status      string `json:"status"`
			CallSID     string `json:"callSid"`
			Error       string `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 2)

	require.Equal(t, "fulfilled", resp.Results[0].Status)
	require.NotEmpty(t, resp.Results[0].CallSID)
	require.Equal(t, "rejected", resp.Results[1].Status)
	require.Contains(t, resp.Results[1].Error, "unreachable")
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &stubProvider{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/getAlerts", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
