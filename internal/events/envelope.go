// Package events publishes handoff events for downstream consumers such as
// CRMs and dashboards.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/lead-router/internal/models"
)

const (
	Producer = "lead-router"

	TypeHandoffAssigned = "leads.handoff.assigned.v1"
)

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type Meta struct {
	// Unique event ID
	ID string `json:"id"`
	// Conversation the event belongs to
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	// Event name and version, e.g. leads.handoff.assigned.v1
	Type string `json:"type"`
}

// HandoffAssignedV1 announces that a hot lead was handed to an operator.
type HandoffAssignedV1 struct {
	ConversationID string             `json:"conversation_id"`
	Channel        models.ChannelType `json:"channel"`
	ContactRef     string             `json:"contact_ref"`
	OperatorName   string             `json:"operator_name"`
	OperatorIndex  int                `json:"operator_index"`
	Category       models.Category    `json:"category"`
	Confidence     float64            `json:"confidence"`
	TicketCreated  bool               `json:"ticket_created"`
	AssignedAt     time.Time          `json:"assigned_at"`
}

func NewHandoffAssigned(data HandoffAssignedV1) Envelope {
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			CorrelationID: data.ConversationID,
			Producer:      Producer,
			Time:          data.AssignedAt.UTC(),
			Type:          TypeHandoffAssigned,
		},
		Data: data,
	}
}
