package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cementwatch/internal/alert"
	"cementwatch/internal/model"
	"cementwatch/internal/notify"
	"cementwatch/internal/storage"
)

const testMessage = "This is a test alert from the Cement Plant monitoring system. " +
	"If you receive this call, the alert system is working correctly."

// Server exposes the administrative HTTP surface: test alerts, threshold
// updates and the recent-alert feed the dashboard polls.
type Server struct {
	logger     *zap.Logger
	registry   *alert.Registry
	provider   notify.Provider
	log        storage.AlertLog
	recipients []string
	engine     *gin.Engine
}

// New creates the admin server and registers its routes.
func New(registry *alert.Registry, provider notify.Provider, log storage.AlertLog, recipients []string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:     logger.Named("http"),
		registry:   registry,
		provider:   provider,
		log:        log,
		recipients: recipients,
		engine:     gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.cors())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.POST("/testAlert", s.handleTestAlert)
	s.engine.POST("/updateAlertConfig", s.handleUpdateAlertConfig)
	s.engine.GET("/getAlerts", s.handleGetAlerts)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves the admin API until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("Admin API listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type testAlertResult struct {
	PhoneNumber string `json:"phoneNumber"`
	Status      string `json:"status"`
	CallSID     string `json:"callSid,omitempty"`
	Error       string `json:"error,omitempty"`
}

// handleTestAlert places a test call to every configured recipient. Attempts
// run concurrently and all settle before the response is written; individual
// failures show up in their result entry instead of failing the request.
func (s *Server) handleTestAlert(c *gin.Context) {
	results := make([]testAlertResult, len(s.recipients))

	var wg sync.WaitGroup
	for i, phone := range s.recipients {
		wg.Add(1)
		go func(i int, phone string) {
			defer wg.Done()
			sid, err := s.provider.Call(c.Request.Context(), phone, testMessage)
			if err != nil {
				results[i] = testAlertResult{PhoneNumber: phone, Status: "rejected", Error: err.Error()}
				return
			}
			results[i] = testAlertResult{PhoneNumber: phone, Status: "fulfilled", CallSID: sid}
		}(i, phone)
	}
	wg.Wait()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Test alerts sent",
		"results": results,
	})
}

type updateConfigRequest struct {
	Parameter string   `json:"parameter"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Enabled   *bool    `json:"enabled"`
}

func (s *Server) handleUpdateAlertConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applied, err := s.registry.SetThreshold(c.Request.Context(), req.Parameter, alert.ThresholdUpdate{
		Min:     req.Min,
		Max:     req.Max,
		Enabled: req.Enabled,
	})
	if err != nil {
		if errors.Is(err, alert.ErrUnknownParameter) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid parameter"})
			return
		}
		s.logger.Error("Failed to update threshold", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Alert configuration updated",
		"parameter": req.Parameter,
		"config": gin.H{
			"min":     applied.Min,
			"max":     applied.Max,
			"enabled": applied.Enabled,
		},
	})
}

// handleGetAlerts returns the most recent alert events, newest first,
// flattened across log batches.
func (s *Server) handleGetAlerts(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	batches, err := s.log.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to fetch alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	alerts := make([]model.AlertEvent, 0, limit)
	for _, batch := range batches {
		for _, event := range batch.Alerts {
			if len(alerts) == limit {
				break
			}
			alerts = append(alerts, event)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(alerts),
		"alerts":  alerts,
	})
}
