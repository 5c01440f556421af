// Package whatsapp adapts the MegaAPI WhatsApp gateway: inbound webhook
// payloads and outbound text sends.
package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/lead-router/internal/models"
)

const (
	userSuffix      = "@s.whatsapp.net"
	groupSuffix     = "@g.us"
	broadcastSuffix = "@broadcast"
)

type Payload struct {
	IsGroup          bool            `json:"isGroup"`
	Key              Key             `json:"key"`
	Message          *MessageContent `json:"message"`
	PushName         string          `json:"pushName"`
	MessageTimestamp json.RawMessage `json:"messageTimestamp,omitempty"`
}

type Key struct {
	FromMe    bool   `json:"fromMe"`
	RemoteJid string `json:"remoteJid"`
	ID        string `json:"id"`
}

type MessageContent struct {
	Conversation        string               `json:"conversation"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
}

type ExtendedTextMessage struct {
	Text string `json:"text"`
}

// ParsePayload decodes a webhook body. Any decoding failure is reported as
// models.ErrInvalidWebhookPayload.
func ParsePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", models.ErrInvalidWebhookPayload, err)
	}
	return p, nil
}

func (p Payload) Text() string {
	if p.Message == nil {
		return ""
	}
	if p.Message.Conversation != "" {
		return p.Message.Conversation
	}
	if p.Message.ExtendedTextMessage != nil {
		return p.Message.ExtendedTextMessage.Text
	}
	return ""
}

// Timestamp reads messageTimestamp, which the gateway sends either as a
// number or as a numeric string.
func (p Payload) Timestamp() (time.Time, bool) {
	raw := strings.Trim(string(p.MessageTimestamp), `"`)
	if raw == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

// Event converts the payload into an inbound event.
func (p Payload) Event(now time.Time) models.InboundEvent {
	jid := p.Key.RemoteJid
	received, ok := p.Timestamp()
	if !ok {
		received = now
	}

	key := p.Key.ID
	if key == "" {
		key = fmt.Sprintf("%s_%d", jid, received.Unix())
	}

	return models.InboundEvent{
		Channel:     models.ChannelWhatsApp,
		DedupKey:    key,
		ContactRef:  strings.TrimSuffix(jid, userSuffix),
		DisplayName: p.PushName,
		Text:        p.Text(),
		FromSelf:    p.Key.FromMe,
		FromGroup:   p.IsGroup || strings.HasSuffix(jid, groupSuffix) || strings.HasSuffix(jid, broadcastSuffix),
		ReceivedAt:  received,
	}
}
