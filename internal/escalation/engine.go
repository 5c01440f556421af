// Package escalation hands hot leads to a human operator.
package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/xaenox/lead-router/internal/events"
	"github.com/xaenox/lead-router/internal/metrics"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/rotation"
	"github.com/xaenox/lead-router/internal/storage"
	"go.uber.org/zap"
)

// Sender delivers operator notifications. The group announcement and the
// private directive go through the same transport.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

type Granter interface {
	Grant(ctx context.Context, conversationID string) (rotation.Grant, error)
}

type Request struct {
	ContactRef     string
	MessageText    string
	Classification models.Classification
	ConversationID string
	Channel        models.ChannelType
}

type Result struct {
	Operator           models.Operator
	OperatorIndex      int
	TicketCreated      bool
	AssignmentRecorded bool
	// Notified is true when both the group announcement and the private
	// directive were sent.
	Notified bool
}

type Config struct {
	// GroupAddress is the shared operators channel.
	GroupAddress string
	// NotifyChannel is the transport the notifications travel on.
	NotifyChannel models.ChannelType
	// TestMode logs notifications instead of sending them. Turns still
	// rotate and tickets are still created.
	TestMode bool
}

type Engine struct {
	tickets   storage.HandoffStorage
	rotation  Granter
	notifier  Sender
	publisher events.Publisher
	metrics   *metrics.Metrics
	config    Config
	now       func() time.Time
	logger    *zap.Logger
}

func NewEngine(tickets storage.HandoffStorage, granter Granter, notifier Sender, publisher events.Publisher, m *metrics.Metrics, config Config, logger *zap.Logger) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if config.NotifyChannel == "" {
		config.NotifyChannel = models.ChannelWhatsApp
	}
	return &Engine{
		tickets:   tickets,
		rotation:  granter,
		notifier:  notifier,
		publisher: publisher,
		metrics:   m,
		config:    config,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source used in notifications.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Escalate files a ticket, grants the next operator turn and notifies the
// operators. Only a failed grant is returned as an error; every later side
// effect is logged and reported in the result.
func (e *Engine) Escalate(ctx context.Context, req Request) (Result, error) {
	var res Result
	log := e.logger.With(
		zap.String("conversation_id", req.ConversationID),
		zap.String("channel", string(req.Channel)))

	_, err := e.tickets.CreateHandoff(ctx, &models.HandoffTicket{
		ConversationID: req.ConversationID,
		Priority:       models.PriorityHigh,
		Reason:         ticketReason(req.Channel, req.Classification),
		Channel:        req.Channel,
	})
	if err != nil {
		log.Error("Failed to create handoff ticket", zap.Error(err))
		e.metrics.SideEffectFailed("ticket")
	} else {
		res.TicketCreated = true
	}

	grant, err := e.rotation.Grant(ctx, req.ConversationID)
	if err != nil {
		return res, fmt.Errorf("grant operator turn: %w", err)
	}
	res.Operator = grant.Operator
	res.OperatorIndex = grant.Index
	res.AssignmentRecorded = grant.Recorded
	if !grant.Recorded {
		e.metrics.SideEffectFailed("assignment")
	}
	log = log.With(zap.String("operator", grant.Operator.Name))

	now := e.now()
	group := groupAnnouncement(req, grant.Operator, grant.Next, now)
	private := privateDirective(req)

	if e.config.TestMode {
		log.Info("Test mode, notification not sent",
			zap.String("group_message", group),
			zap.String("private_message", private))
	} else {
		groupErr := e.notify(ctx, e.config.GroupAddress, group)
		if groupErr != nil {
			log.Error("Failed to notify operators group", zap.Error(groupErr))
			e.metrics.SideEffectFailed("group_notification")
		}
		privateErr := e.notify(ctx, grant.Operator.Address, private)
		if privateErr != nil {
			log.Error("Failed to notify operator", zap.Error(privateErr))
			e.metrics.SideEffectFailed("private_notification")
		}
		res.Notified = groupErr == nil && privateErr == nil
	}

	env := events.NewHandoffAssigned(events.HandoffAssignedV1{
		ConversationID: req.ConversationID,
		Channel:        req.Channel,
		ContactRef:     req.ContactRef,
		OperatorName:   grant.Operator.Name,
		OperatorIndex:  grant.Index,
		Category:       req.Classification.Category,
		Confidence:     req.Classification.Confidence,
		TicketCreated:  res.TicketCreated,
		AssignedAt:     now,
	})
	if err := e.publisher.Publish(ctx, events.TypeHandoffAssigned, env); err != nil {
		log.Warn("Failed to publish handoff event", zap.Error(err))
		e.metrics.SideEffectFailed("event")
	}

	e.metrics.Escalated(string(req.Channel), grant.Operator.Name)
	log.Info("Lead escalated", zap.Int("operator_index", grant.Index))
	return res, nil
}

func (e *Engine) notify(ctx context.Context, to, text string) error {
	if e.notifier == nil {
		return fmt.Errorf("no notification sender configured")
	}
	if to == "" {
		return fmt.Errorf("empty notification address")
	}
	return e.notifier.Send(ctx, models.OutboundMessage{
		Channel: e.config.NotifyChannel,
		To:      to,
		Content: text,
	})
}
