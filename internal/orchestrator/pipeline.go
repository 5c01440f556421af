package orchestrator

import (
	"context"
	"fmt"

	"github.com/xaenox/lead-router/internal/dedup"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/textutil"
)

// Sender delivers a reply on the channel the lead wrote on.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// Pipeline holds what differs between channels. Nil hooks fall back to the
// raw event text.
type Pipeline struct {
	Channel models.ChannelType
	Sender  Sender
	Dedup   *dedup.Record
	// HistoryWindow is the number of most recent ledger entries handed to
	// the responder.
	HistoryWindow int
	// HotReply builds the hand-off reply. operator is empty when no
	// operator could be resolved.
	HotReply func(operator string) string
	// ClassifyText is the text sent for classification.
	ClassifyText func(ev models.InboundEvent) string
	// StoredText is the inbound ledger content.
	StoredText func(ev models.InboundEvent) string
	// NotifyText is the message text shown to operators.
	NotifyText func(ev models.InboundEvent) string
	// Outbound addresses the reply.
	Outbound func(ev models.InboundEvent, reply string) models.OutboundMessage
}

func (p Pipeline) classifyText(ev models.InboundEvent) string {
	if p.ClassifyText == nil {
		return ev.Text
	}
	return p.ClassifyText(ev)
}

func (p Pipeline) storedText(ev models.InboundEvent) string {
	if p.StoredText == nil {
		return ev.Text
	}
	return p.StoredText(ev)
}

func (p Pipeline) notifyText(ev models.InboundEvent) string {
	if p.NotifyText == nil {
		return ev.Text
	}
	return p.NotifyText(ev)
}

func (p Pipeline) outbound(ev models.InboundEvent, reply string) models.OutboundMessage {
	if p.Outbound == nil {
		return models.OutboundMessage{Channel: p.Channel, To: ev.ContactRef, Content: reply}
	}
	return p.Outbound(ev, reply)
}

func (p Pipeline) hotReply(operator string) string {
	if p.HotReply == nil {
		return chatHotReply(operator)
	}
	return p.HotReply(operator)
}

func chatHotReply(operator string) string {
	if operator == "" {
		return "Perfeito! 🎯\n\nNossa equipe de reservas foi notificada e entrará em contato em instantes!\n\nPor favor, aguarde só um minutinho... ⏰"
	}
	return fmt.Sprintf("Perfeito! 🎯\n\nJá acionei %s, nosso(a) especialista em reservas.\n%s receberá sua mensagem agora e entrará em contato em instantes!\n\nPor favor, aguarde só um minutinho... ⏰", operator, operator)
}

func mailHotReply(operator string) string {
	if operator == "" {
		return "Olá!\n\nPerfeito! Recebi seu email sobre reserva.\n\nJá encaminhei sua solicitação para nossa equipe de reservas, que entrará em contato em breve para finalizar todos os detalhes.\n\nAtenciosamente,\nHotel Paradise São Paulo"
	}
	return fmt.Sprintf("Olá!\n\nPerfeito! Recebi seu email sobre reserva.\n\nJá encaminhei sua solicitação para %s, nosso(a) especialista em reservas, que entrará em contato em breve para finalizar todos os detalhes.\n\n%s responderá este email em até 30 minutos com todas as informações e disponibilidade.\n\nAtenciosamente,\nHotel Paradise São Paulo", operator, operator)
}

func directHotReply(operator string) string {
	if operator == "" {
		return "Perfeito! 🎯\n\nNossa equipe de reservas foi notificada e vai entrar em contato aqui pelo Instagram em instantes!\n\nPor favor, aguarde só um minutinho... ⏰"
	}
	return fmt.Sprintf("Perfeito! 🎯\n\nJá acionei %s, nosso(a) especialista em reservas.\n%s vai entrar em contato aqui pelo Instagram em instantes!\n\nPor favor, aguarde só um minutinho... ⏰", operator, operator)
}

// WhatsAppPipeline replies to the sender's phone number.
func WhatsAppPipeline(sender Sender, record *dedup.Record) Pipeline {
	return Pipeline{
		Channel:       models.ChannelWhatsApp,
		Sender:        sender,
		Dedup:         record,
		HistoryWindow: 50,
		HotReply:      chatHotReply,
	}
}

// EmailPipeline classifies subject and body together and replies in the
// same mail thread.
func EmailPipeline(sender Sender, record *dedup.Record) Pipeline {
	return Pipeline{
		Channel:       models.ChannelEmail,
		Sender:        sender,
		Dedup:         record,
		HistoryWindow: 50,
		HotReply:      mailHotReply,
		ClassifyText: func(ev models.InboundEvent) string {
			return fmt.Sprintf("Assunto: %s\n\n%s", ev.Subject, textutil.Truncate(ev.Text, 500))
		},
		StoredText: func(ev models.InboundEvent) string {
			return fmt.Sprintf("[ASSUNTO: %s]\n\n%s", ev.Subject, ev.Text)
		},
		NotifyText: func(ev models.InboundEvent) string {
			return fmt.Sprintf("[EMAIL] %s\n%s", ev.Subject, textutil.Excerpt(ev.Text, 200))
		},
		Outbound: func(ev models.InboundEvent, reply string) models.OutboundMessage {
			return models.OutboundMessage{
				Channel:  models.ChannelEmail,
				To:       ev.ContactRef,
				Subject:  "Re: " + ev.Subject,
				ThreadID: ev.ThreadID,
				Content:  reply,
			}
		},
	}
}

// InstagramPipeline replies inside the direct-message thread.
func InstagramPipeline(sender Sender, record *dedup.Record) Pipeline {
	return Pipeline{
		Channel:       models.ChannelInstagram,
		Sender:        sender,
		Dedup:         record,
		HistoryWindow: 20,
		HotReply:      directHotReply,
		NotifyText: func(ev models.InboundEvent) string {
			return "[INSTAGRAM] " + textutil.Excerpt(ev.Text, 200)
		},
		Outbound: func(ev models.InboundEvent, reply string) models.OutboundMessage {
			return models.OutboundMessage{
				Channel:  models.ChannelInstagram,
				To:       ev.ContactRef,
				ThreadID: ev.ThreadID,
				Content:  reply,
			}
		},
	}
}

