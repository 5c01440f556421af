package mailbox

import (
	"context"

	"github.com/xaenox/lead-router/internal/channels"
	"github.com/xaenox/lead-router/internal/models"
	"go.uber.org/zap"
)

// Sender replies to lead emails through a Port.
type Sender struct {
	port Port
}

func NewSender(port Port) *Sender {
	return &Sender{port: port}
}

func (s *Sender) Send(ctx context.Context, msg models.OutboundMessage) error {
	return s.port.SendReply(ctx, msg.To, msg.Subject, msg.Content, msg.ThreadID)
}

type Poller struct {
	port    Port
	handler channels.Handler
	logger  *zap.Logger
}

func NewPoller(port Port, handler channels.Handler, logger *zap.Logger) *Poller {
	return &Poller{
		port:    port,
		handler: handler,
		logger:  logger,
	}
}

// Poll processes every unseen message once. A message is marked seen only
// after the handler accepted it; failed messages stay unseen and are retried
// on the next poll.
func (p *Poller) Poll(ctx context.Context) error {
	uids, err := p.port.ListUnseen(ctx)
	if err != nil {
		return err
	}
	if len(uids) > 0 {
		p.logger.Info("Unseen emails found", zap.Int("count", len(uids)))
	}

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msg, err := p.port.Fetch(ctx, uid)
		if err != nil {
			p.logger.Error("Failed to fetch email", zap.Error(err), zap.Uint32("uid", uid))
			continue
		}

		res, err := p.handler.Handle(ctx, models.ChannelEmail, msg.Event())
		if err != nil {
			p.logger.Error("Failed to process email",
				zap.Error(err),
				zap.Uint32("uid", uid),
				zap.String("from", msg.From))
			continue
		}
		if res.Skipped {
			p.logger.Debug("Email skipped",
				zap.Uint32("uid", uid),
				zap.String("reason", string(res.SkipReason)))
		}

		if err := p.port.MarkSeen(ctx, uid); err != nil {
			p.logger.Warn("Failed to mark email seen", zap.Error(err), zap.Uint32("uid", uid))
		}
	}
	return nil
}
