// Package channels holds what the inbound channel adapters share: their
// startup status and the polling loop.
package channels

import (
	"context"
	"time"

	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/orchestrator"
	"go.uber.org/zap"
)

type State string

const (
	StateDisabled    State = "disabled"
	StateUnavailable State = "unavailable"
	StateReady       State = "ready"
)

// Status is the result of setting up a channel. Disabled means the channel
// is not configured, which is not an error.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func Disabled(reason string) Status { return Status{State: StateDisabled, Reason: reason} }

func Unavailable(err error) Status { return Status{State: StateUnavailable, Reason: err.Error()} }

func Ready() Status { return Status{State: StateReady} }

// Handler processes one inbound event.
type Handler interface {
	Handle(ctx context.Context, channel models.ChannelType, ev models.InboundEvent) (orchestrator.Result, error)
}

// RunLoop calls poll every interval until ctx is cancelled. A failed poll
// waits twice the interval before the next attempt.
func RunLoop(ctx context.Context, name string, interval time.Duration, poll func(context.Context) error, logger *zap.Logger) error {
	logger.Info("Starting poller",
		zap.String("channel", name),
		zap.Duration("interval", interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Poller stopped", zap.String("channel", name))
			return nil
		case <-timer.C:
		}

		wait := interval
		if err := poll(ctx); err != nil {
			logger.Error("Poll failed, backing off",
				zap.Error(err),
				zap.String("channel", name),
				zap.Duration("retry_in", 2*interval))
			wait = 2 * interval
		}
		timer.Reset(wait)
	}
}
