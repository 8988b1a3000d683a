package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"cementwatch/internal/config"
	"cementwatch/internal/model"
)

// OverrideStore persists administrative threshold overrides so they survive
// restarts. The registry reads overrides back at startup and consults them
// ahead of the compiled-in defaults on every lookup.
type OverrideStore interface {
	SaveThreshold(ctx context.Context, t model.Threshold) error
	LoadThresholds(ctx context.Context) ([]model.Threshold, error)
}

// Registry resolves the effective threshold for each monitored parameter:
// the persisted override when one exists, otherwise the configured default.
// The parameter set itself is fixed at configuration time; overrides can
// retune a known parameter but never introduce a new one.
type Registry struct {
	logger *zap.Logger
	cfg    config.AlertingConfig
	store  OverrideStore

	mu        sync.RWMutex
	overrides map[string]model.Threshold
}

// NewRegistry creates a registry over the configured defaults and loads any
// persisted overrides from the store. A nil store keeps overrides in memory
// only.
func NewRegistry(ctx context.Context, cfg config.AlertingConfig, store OverrideStore, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		logger:    logger.Named("registry"),
		cfg:       cfg,
		store:     store,
		overrides: make(map[string]model.Threshold),
	}

	if store != nil {
		saved, err := store.LoadThresholds(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load threshold overrides: %w", err)
		}
		for _, t := range saved {
			if _, known := cfg.Threshold(t.Parameter); !known {
				r.logger.Warn("Ignoring override for unconfigured parameter",
					zap.String("parameter", t.Parameter))
				continue
			}
			r.overrides[overrideKey(t.Parameter)] = t
		}
		if len(r.overrides) > 0 {
			r.logger.Info("Loaded threshold overrides", zap.Int("count", len(r.overrides)))
		}
	}

	return r, nil
}

// Lookup returns the effective threshold for a parameter.
func (r *Registry) Lookup(parameter string) (model.Threshold, bool) {
	r.mu.RLock()
	t, ok := r.overrides[overrideKey(parameter)]
	r.mu.RUnlock()
	if ok {
		return t, true
	}
	return r.cfg.Threshold(parameter)
}

// overrideKey folds case so an override applied under one key casing matches
// lookups under another.
func overrideKey(parameter string) string {
	return strings.ToLower(parameter)
}

// IsViolating reports whether a reading is outside the effective safe range.
// Unknown and disabled parameters never violate.
func (r *Registry) IsViolating(parameter string, value float64) bool {
	t, ok := r.Lookup(parameter)
	if !ok {
		return false
	}
	return t.Violates(value)
}

// Message returns the alert message template for a parameter, if configured.
func (r *Registry) Message(parameter string) (string, bool) {
	return r.cfg.Message(parameter)
}

// ThresholdUpdate carries a partial administrative update; nil fields keep
// the current effective value.
type ThresholdUpdate struct {
	Min     *float64
	Max     *float64
	Enabled *bool
}

// SetThreshold applies an administrative update to one parameter, persists
// it, and makes it visible to subsequent lookups. Returns ErrUnknownParameter
// for parameters outside the configured set; in that case nothing is mutated.
func (r *Registry) SetThreshold(ctx context.Context, parameter string, update ThresholdUpdate) (model.Threshold, error) {
	current, ok := r.Lookup(parameter)
	if !ok {
		return model.Threshold{}, fmt.Errorf("%w: %s", ErrUnknownParameter, parameter)
	}

	applied := current
	if update.Min != nil {
		applied.Min = *update.Min
	}
	if update.Max != nil {
		applied.Max = *update.Max
	}
	if update.Enabled != nil {
		applied.Enabled = *update.Enabled
	}

	if r.store != nil {
		if err := r.store.SaveThreshold(ctx, applied); err != nil {
			return model.Threshold{}, fmt.Errorf("failed to persist threshold override: %w", err)
		}
	}

	r.mu.Lock()
	r.overrides[overrideKey(parameter)] = applied
	r.mu.Unlock()

	r.logger.Info("Threshold updated",
		zap.String("parameter", parameter),
		zap.Float64("min", applied.Min),
		zap.Float64("max", applied.Max),
		zap.Bool("enabled", applied.Enabled))

	return applied, nil
}
