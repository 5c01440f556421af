package storage

import (
	"context"

	"github.com/xaenox/lead-router/internal/models"
)

// Table names shared by every backend.
const (
	TableConversations     = "conversations"
	TableMessages          = "messages"
	TableHandoffQueue      = "handoff_queue"
	TableVendorAssignments = "vendor_assignments"
)

// Storage is the conversation store. Backends offer insert and exact-match
// select only; nothing here is transactional.
type Storage interface {
	ConversationStorage
	MessageStorage
	HandoffStorage
	AssignmentStorage
	Close() error
}

type ConversationStorage interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	// FindConversations returns matches ordered by creation time ascending.
	FindConversations(ctx context.Context, channel models.ChannelType, identifier, status string) ([]*models.Conversation, error)
}

type MessageStorage interface {
	SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	// GetConversationMessages returns the whole ledger of a conversation
	// ordered by creation time ascending.
	GetConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
}

type HandoffStorage interface {
	CreateHandoff(ctx context.Context, ticket *models.HandoffTicket) (*models.HandoffTicket, error)
}

type AssignmentStorage interface {
	SaveAssignment(ctx context.Context, a *models.VendorAssignment) (*models.VendorAssignment, error)
	// LatestAssignment returns models.ErrNotFound when the log is empty.
	LatestAssignment(ctx context.Context) (*models.VendorAssignment, error)
	ListAssignments(ctx context.Context) ([]*models.VendorAssignment, error)
}
