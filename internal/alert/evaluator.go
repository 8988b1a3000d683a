package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cementwatch/internal/model"
)

// Evaluator turns telemetry snapshots into alert events. It is a pure
// decision step: its only side effect is advancing cooldown state for
// parameters that fire. Dispatch and logging are the caller's concern.
type Evaluator struct {
	logger   *zap.Logger
	registry *Registry
	cooldown *CooldownTracker

	// now is swapped out in tests
	now func() time.Time
}

// NewEvaluator creates an evaluator over the given registry and cooldown
// tracker.
func NewEvaluator(registry *Registry, cooldown *CooldownTracker, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		logger:   logger.Named("evaluator"),
		registry: registry,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Evaluate walks the snapshot in field order and returns one AlertEvent per
// enabled threshold violation that is outside its cooldown window. Cooldown
// is advanced atomically at decision time, before any notification is
// attempted, so concurrent evaluations of the same parameter yield at most
// one event. Non-numeric fields and parameters without a threshold are
// skipped silently.
func (e *Evaluator) Evaluate(snapshot model.Snapshot) []model.AlertEvent {
	var events []model.AlertEvent

	for _, field := range snapshot.Fields {
		value, ok := field.Float()
		if !ok {
			continue
		}
		if !e.registry.IsViolating(field.Parameter, value) {
			continue
		}

		now := e.now()
		if !e.cooldown.TryFire(field.Parameter, now) {
			e.logger.Debug("Alert cooldown active",
				zap.String("parameter", field.Parameter),
				zap.Float64("value", value))
			continue
		}

		event := model.AlertEvent{
			ID:        uuid.New().String(),
			Parameter: field.Parameter,
			Value:     value,
			Message:   e.renderMessage(field.Parameter, value),
			Timestamp: now,
		}
		events = append(events, event)

		e.logger.Warn("Alert triggered",
			zap.String("parameter", field.Parameter),
			zap.Float64("value", value))
	}

	return events
}

// renderMessage substitutes {value}, {min} and {max} into the parameter's
// message template, falling back to a generic message when none is
// configured. Only the first occurrence of each placeholder is replaced,
// matching how operators wrote the templates.
func (e *Evaluator) renderMessage(parameter string, value float64) string {
	template, ok := e.registry.Message(parameter)
	if !ok {
		return fmt.Sprintf("Alert! %s is %s, which is outside safe range.", parameter, formatValue(value))
	}

	threshold, _ := e.registry.Lookup(parameter)
	msg := strings.Replace(template, "{value}", formatValue(value), 1)
	msg = strings.Replace(msg, "{min}", formatValue(threshold.Min), 1)
	msg = strings.Replace(msg, "{max}", formatValue(threshold.Max), 1)
	return msg
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
