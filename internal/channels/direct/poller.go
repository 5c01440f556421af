package direct

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xaenox/lead-router/internal/channels"
	"github.com/xaenox/lead-router/internal/dedup"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ThreadLimit  = 20
	MessageLimit = 5
)

// DedupKey identifies a direct message by thread and send time.
func DedupKey(threadID string, ts time.Time) string {
	return fmt.Sprintf("%s_%d", threadID, ts.UnixMicro())
}

// Sender replies inside a thread, pacing sends through a limiter so the
// account does not look automated.
type Sender struct {
	port    Port
	limiter *rate.Limiter
}

func NewSender(port Port, limiter *rate.Limiter) *Sender {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(5*time.Second), 1)
	}
	return &Sender{port: port, limiter: limiter}
}

func (s *Sender) Send(ctx context.Context, msg models.OutboundMessage) error {
	if msg.ThreadID == "" {
		return fmt.Errorf("direct message to %s has no thread", msg.To)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}
	return s.port.Send(ctx, msg.ThreadID, msg.Content)
}

type Poller struct {
	port    Port
	handler channels.Handler
	record  *dedup.Record
	self    string
	logger  *zap.Logger
}

func NewPoller(port Port, handler channels.Handler, record *dedup.Record, logger *zap.Logger) *Poller {
	return &Poller{
		port:    port,
		handler: handler,
		record:  record,
		logger:  logger,
	}
}

// Setup resolves the account's own user ID so its messages are skipped.
func (p *Poller) Setup(ctx context.Context) channels.Status {
	me, err := p.port.Self(ctx)
	if err != nil {
		return channels.Unavailable(fmt.Errorf("resolve own account: %w", err))
	}
	p.self = me.ID
	p.logger.Info("Direct-message inbox ready", zap.String("username", me.Username))
	return channels.Ready()
}

// Poll handles at most one message per thread: the newest one written by
// someone else that was not processed yet.
func (p *Poller) Poll(ctx context.Context) error {
	threads, err := p.port.ListRecentThreads(ctx, ThreadLimit)
	if err != nil {
		return err
	}

	for _, th := range threads {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msgs, err := p.port.ListMessages(ctx, th.ID, MessageLimit)
		if err != nil {
			p.logger.Warn("Failed to list thread messages", zap.Error(err), zap.String("thread_id", th.ID))
			continue
		}

		ev, ok := p.pick(th, msgs)
		if !ok {
			continue
		}

		res, err := p.handler.Handle(ctx, models.ChannelInstagram, ev)
		if err != nil {
			p.logger.Error("Failed to process direct message",
				zap.Error(err),
				zap.String("thread_id", th.ID),
				zap.String("username", ev.ContactRef))
			continue
		}
		if res.Skipped {
			continue
		}

		if err := p.port.MarkRead(ctx, th.ID); err != nil {
			p.logger.Debug("Failed to mark thread read", zap.Error(err), zap.String("thread_id", th.ID))
		}
	}
	return nil
}

func (p *Poller) pick(th Thread, msgs []Msg) (models.InboundEvent, bool) {
	sorted := make([]Msg, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	for _, m := range sorted {
		key := DedupKey(th.ID, m.Timestamp)
		if p.record != nil && p.record.Seen(key) {
			continue
		}
		if p.self != "" && m.UserID == p.self {
			continue
		}
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		return models.InboundEvent{
			Channel:    models.ChannelInstagram,
			DedupKey:   key,
			ContactRef: th.Username(m.UserID),
			Text:       m.Text,
			ThreadID:   th.ID,
			ReceivedAt: m.Timestamp,
		}, true
	}
	return models.InboundEvent{}, false
}
