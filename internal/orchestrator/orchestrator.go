// Package orchestrator runs one inbound lead message through the pipeline:
// validation, deduplication, conversation lookup, classification, reply,
// escalation and delivery.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xaenox/lead-router/internal/classifier"
	"github.com/xaenox/lead-router/internal/escalation"
	"github.com/xaenox/lead-router/internal/metrics"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/responder"
	"github.com/xaenox/lead-router/internal/storage"
	"go.uber.org/zap"
)

type SkipReason string

const (
	SkipSelf      SkipReason = "self_authored"
	SkipGroup     SkipReason = "group"
	SkipEmpty     SkipReason = "empty"
	SkipDuplicate SkipReason = "duplicate"
	SkipError     SkipReason = "error"
)

const (
	hotFallback   = "Ótimo! Vou conectar você com nosso especialista para finalizar sua reserva. Um momento, por favor."
	replyFallback = "Desculpe, tive um problema técnico. Como posso ajudar você?"
)

var ErrUnknownChannel = errors.New("no pipeline for channel")

type Escalator interface {
	Escalate(ctx context.Context, req escalation.Request) (escalation.Result, error)
}

type Result struct {
	Skipped        bool                  `json:"skipped,omitempty"`
	SkipReason     SkipReason            `json:"skip_reason,omitempty"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Classification models.Classification `json:"classification"`
	Reply          string                `json:"response,omitempty"`
	Operator       string                `json:"vendor,omitempty"`
	Escalated      bool                  `json:"escalated,omitempty"`
	Delivered      bool                  `json:"delivered,omitempty"`
}

type Orchestrator struct {
	store      storage.Storage
	classifier classifier.Classifier
	responder  responder.Responder
	escalator  Escalator
	pipelines  map[models.ChannelType]Pipeline
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New builds an orchestrator. escalator may be nil, in which case hot leads
// get the generic hand-off reply. A nil responder always uses the fixed
// fallback replies.
func New(store storage.Storage, c classifier.Classifier, r responder.Responder, escalator Escalator, m *metrics.Metrics, logger *zap.Logger, pipelines ...Pipeline) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		classifier: c,
		responder:  r,
		escalator:  escalator,
		pipelines:  make(map[models.ChannelType]Pipeline, len(pipelines)),
		metrics:    m,
		logger:     logger,
	}
	for _, p := range pipelines {
		o.pipelines[p.Channel] = p
	}
	return o
}

func (o *Orchestrator) Channels() []models.ChannelType {
	out := make([]models.ChannelType, 0, len(o.pipelines))
	for _, ch := range []models.ChannelType{models.ChannelWhatsApp, models.ChannelEmail, models.ChannelInstagram} {
		if _, ok := o.pipelines[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Handle processes one inbound event. Failures before the reply is built
// return a skipped result together with the error and leave the dedup key
// unmarked so the event can be retried.
func (o *Orchestrator) Handle(ctx context.Context, channel models.ChannelType, ev models.InboundEvent) (Result, error) {
	p, ok := o.pipelines[channel]
	if !ok {
		return Result{Skipped: true, SkipReason: SkipError}, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	log := o.logger.With(
		zap.String("channel", string(channel)),
		zap.String("contact", ev.ContactRef),
		zap.String("dedup_key", ev.DedupKey))

	switch {
	case ev.FromSelf:
		return o.skip(channel, SkipSelf), nil
	case ev.FromGroup:
		return o.skip(channel, SkipGroup), nil
	case strings.TrimSpace(ev.Text) == "":
		return o.skip(channel, SkipEmpty), nil
	}
	if p.Dedup != nil && ev.DedupKey != "" && p.Dedup.Seen(ev.DedupKey) {
		log.Debug("Event already processed")
		return o.skip(channel, SkipDuplicate), nil
	}

	log.Info("Processing message", zap.String("name", ev.DisplayName))

	conv, err := o.resolveConversation(ctx, channel, ev.ContactRef)
	if err != nil {
		o.metrics.MessageSkipped(string(channel), string(SkipError))
		return Result{Skipped: true, SkipReason: SkipError}, fmt.Errorf("resolve conversation: %w", err)
	}
	result := Result{ConversationID: conv.ID}
	log = log.With(zap.String("conversation_id", conv.ID))

	history := o.loadHistory(ctx, conv.ID, p.HistoryWindow, log)

	if _, err := o.store.SaveMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Content:        p.storedText(ev),
		Direction:      models.DirectionInbound,
		SenderType:     models.SenderLead,
		Channel:        channel,
	}); err != nil {
		log.Error("Failed to save inbound message", zap.Error(err))
	}

	classification, err := o.classifier.Classify(ctx, p.classifyText(ev))
	if err != nil {
		o.metrics.MessageSkipped(string(channel), string(SkipError))
		return Result{Skipped: true, SkipReason: SkipError, ConversationID: conv.ID}, fmt.Errorf("classify: %w", err)
	}
	result.Classification = classification
	o.metrics.Classified(string(channel), string(classification.Category))
	log.Info("Message classified",
		zap.String("category", string(classification.Category)),
		zap.Float64("confidence", classification.Confidence))

	var reply string
	if o.responder != nil {
		reply, err = o.responder.Generate(ctx, ev.Text, history, classification)
	}
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Warn("Reply generation failed, using fallback", zap.Error(err))
		reply = replyFallback
		if classification.IsHot() {
			reply = hotFallback
		}
	}

	if classification.IsHot() {
		operator := o.escalate(ctx, p, ev, conv.ID, classification, log)
		result.Operator = operator
		result.Escalated = operator != ""
		reply = p.hotReply(operator)
	}
	result.Reply = reply

	if p.Sender == nil {
		log.Warn("No sender configured, reply not delivered")
	} else if err := p.Sender.Send(ctx, p.outbound(ev, reply)); err != nil {
		log.Error("Failed to deliver reply", zap.Error(err))
		o.metrics.DeliveryFailed(string(channel))
	} else {
		result.Delivered = true
	}

	if _, err := o.store.SaveMessage(ctx, &models.Message{
		ConversationID: conv.ID,
		Content:        reply,
		Direction:      models.DirectionOutbound,
		SenderType:     models.SenderBot,
		Channel:        channel,
	}); err != nil {
		log.Error("Failed to save outbound message", zap.Error(err))
	}

	if p.Dedup != nil && ev.DedupKey != "" {
		p.Dedup.Mark(ctx, ev.DedupKey)
	}
	o.metrics.MessageProcessed(string(channel))
	return result, nil
}

func (o *Orchestrator) skip(channel models.ChannelType, reason SkipReason) Result {
	o.metrics.MessageSkipped(string(channel), string(reason))
	return Result{Skipped: true, SkipReason: reason}
}

// resolveConversation reuses the oldest active conversation for the contact
// or creates one. Concurrent first messages can create duplicates; later
// lookups keep picking the oldest.
func (o *Orchestrator) resolveConversation(ctx context.Context, channel models.ChannelType, identifier string) (*models.Conversation, error) {
	convs, err := o.store.FindConversations(ctx, channel, identifier, models.StatusActive)
	if err != nil {
		return nil, err
	}
	if len(convs) > 0 {
		if len(convs) > 1 {
			o.logger.Warn("Multiple active conversations, using oldest",
				zap.String("channel", string(channel)),
				zap.String("identifier", identifier),
				zap.Int("count", len(convs)),
				zap.String("conversation_id", convs[0].ID))
		}
		return convs[0], nil
	}

	return o.store.CreateConversation(ctx, &models.Conversation{
		ChannelType:       channel,
		ChannelIdentifier: identifier,
		Status:            models.StatusActive,
	})
}

func (o *Orchestrator) loadHistory(ctx context.Context, conversationID string, window int, log *zap.Logger) []*models.Message {
	msgs, err := o.store.GetConversationMessages(ctx, conversationID)
	if err != nil {
		log.Warn("Failed to load history", zap.Error(err))
		return nil
	}
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	return msgs
}

func (o *Orchestrator) escalate(ctx context.Context, p Pipeline, ev models.InboundEvent, conversationID string, c models.Classification, log *zap.Logger) string {
	if o.escalator == nil {
		log.Warn("No escalation engine configured")
		return ""
	}
	res, err := o.escalator.Escalate(ctx, escalation.Request{
		ContactRef:     ev.ContactRef,
		MessageText:    p.notifyText(ev),
		Classification: c,
		ConversationID: conversationID,
		Channel:        p.Channel,
	})
	if err != nil {
		log.Error("Escalation failed", zap.Error(err))
		return ""
	}
	return res.Operator.Name
}
