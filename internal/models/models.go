package models

import "time"

// ChannelType identifies the transport a conversation lives on
type ChannelType string

const (
	ChannelWhatsApp  ChannelType = "whatsapp"
	ChannelEmail     ChannelType = "email"
	ChannelInstagram ChannelType = "instagram"
)

func (c ChannelType) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelEmail, ChannelInstagram:
		return true
	}
	return false
}

const StatusActive = "active"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type SenderType string

const (
	SenderLead SenderType = "lead"
	SenderBot  SenderType = "bot"
)

// Conversation is the thread of messages exchanged with one lead on one channel
type Conversation struct {
	ID                string      `json:"id"`
	ChannelType       ChannelType `json:"channel_type"`
	ChannelIdentifier string      `json:"channel_identifier"`
	Status            string      `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Message is one entry of the append-only message ledger
type Message struct {
	ID             string      `json:"id,omitempty"`
	ConversationID string      `json:"conversation_id"`
	Content        string      `json:"content"`
	Direction      Direction   `json:"direction"`
	SenderType     SenderType  `json:"sender_type"`
	Channel        ChannelType `json:"channel,omitempty"`
	CreatedAt      time.Time   `json:"created_at,omitempty"`
}

const PriorityHigh = "HIGH"

// HandoffTicket asks a human to take over a conversation. Tickets are never
// closed from here.
type HandoffTicket struct {
	ID             string      `json:"id,omitempty"`
	ConversationID string      `json:"conversation_id"`
	Priority       string      `json:"priority"`
	Reason         string      `json:"reason"`
	Channel        ChannelType `json:"channel,omitempty"`
	CreatedAt      time.Time   `json:"created_at,omitempty"`
}

// VendorAssignment records which roster slot received a hot lead. The
// latest row determines whose turn is next.
type VendorAssignment struct {
	ID             string    `json:"id,omitempty"`
	VendorIndex    int       `json:"vendor_index"`
	VendorName     string    `json:"vendor_name"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Operator is a human sales agent in the rotation roster
type Operator struct {
	Name    string `json:"name" mapstructure:"name"`
	Address string `json:"address" mapstructure:"address"`
	Glyph   string `json:"glyph" mapstructure:"glyph"`
}

// InboundEvent is the channel-independent form of a received message
type InboundEvent struct {
	Channel     ChannelType
	DedupKey    string
	ContactRef  string // phone number, email address or username
	DisplayName string
	Text        string
	Subject     string
	ThreadID    string
	FromSelf    bool
	FromGroup   bool
	ReceivedAt  time.Time
}

// OutboundMessage is a message to deliver through a channel sender
type OutboundMessage struct {
	Channel  ChannelType `json:"channel"`
	To       string      `json:"to"`
	Subject  string      `json:"subject,omitempty"`
	ThreadID string      `json:"thread_id,omitempty"`
	Content  string      `json:"content"`
}
