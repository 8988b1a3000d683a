package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cementwatch/internal/model"
)

// Provider places voice calls and sends text messages. Both calls return the
// provider-assigned identifier on success.
type Provider interface {
	Call(ctx context.Context, to, message string) (string, error)
	SendSMS(ctx context.Context, to, message string) (string, error)
}

// Dispatcher fans alert events out to every recipient over every channel.
// Delivery is best effort: attempts run concurrently, fail independently,
// and a failure never cancels or blocks a sibling attempt.
type Dispatcher struct {
	logger   *zap.Logger
	provider Provider
}

// NewDispatcher creates a dispatcher backed by the given provider.
func NewDispatcher(provider Provider, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		provider: provider,
	}
}

// Dispatch issues a voice call and an SMS for every (event, recipient) pair
// and returns after every attempt has settled. The returned results cover
// all 2 x len(events) x len(recipients) attempts in no particular order.
func (d *Dispatcher) Dispatch(ctx context.Context, events []model.AlertEvent, recipients []string) []model.AttemptResult {
	total := 2 * len(events) * len(recipients)
	if total == 0 {
		return nil
	}

	results := make([]model.AttemptResult, total)

	var wg sync.WaitGroup
	i := 0
	for _, event := range events {
		for _, recipient := range recipients {
			wg.Add(2)
			go d.attempt(ctx, &wg, &results[i], event, recipient, model.ChannelVoice)
			go d.attempt(ctx, &wg, &results[i+1], event, recipient, model.ChannelSMS)
			i += 2
		}
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) attempt(ctx context.Context, wg *sync.WaitGroup, out *model.AttemptResult, event model.AlertEvent, recipient string, channel model.Channel) {
	defer wg.Done()

	*out = model.AttemptResult{
		Parameter: event.Parameter,
		Recipient: recipient,
		Channel:   channel,
	}

	var sid string
	var err error
	switch channel {
	case model.ChannelVoice:
		sid, err = d.provider.Call(ctx, recipient, event.Message)
	case model.ChannelSMS:
		sid, err = d.provider.SendSMS(ctx, recipient, event.Message)
	}

	if err != nil {
		out.Err = err
		d.logger.Error("Notification attempt failed",
			zap.String("parameter", event.Parameter),
			zap.String("recipient", recipient),
			zap.String("channel", string(channel)),
			zap.Error(err))
		return
	}

	out.SID = sid
	d.logger.Info("Notification sent",
		zap.String("parameter", event.Parameter),
		zap.String("recipient", recipient),
		zap.String("channel", string(channel)),
		zap.String("sid", sid))
}
