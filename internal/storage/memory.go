package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/lead-router/internal/models"
)

// MemoryStorage keeps every table in process memory. Used for local runs and
// tests; its clock can be replaced to get deterministic ordering.
type MemoryStorage struct {
	mu            sync.RWMutex
	conversations []*models.Conversation
	messages      []*models.Message
	handoffs      []*models.HandoffTicket
	assignments   []*models.VendorAssignment
	now           func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{now: time.Now}
}

// WithClock replaces the timestamp source used for created_at.
func (s *MemoryStorage) WithClock(now func() time.Time) *MemoryStorage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *conv
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.conversations = append(s.conversations, &c)
	out := c
	return &out, nil
}

func (s *MemoryStorage) FindConversations(ctx context.Context, channel models.ChannelType, identifier, status string) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Conversation
	for _, c := range s.conversations {
		if c.ChannelType != channel || c.ChannelIdentifier != identifier {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out := *c
		result = append(result, &out)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := *msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = s.now()
	s.messages = append(s.messages, &m)
	out := m
	return &out, nil
}

func (s *MemoryStorage) GetConversationMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out := *m
			result = append(result, &out)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStorage) CreateHandoff(ctx context.Context, ticket *models.HandoffTicket) (*models.HandoffTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := *ticket
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = s.now()
	s.handoffs = append(s.handoffs, &t)
	out := t
	return &out, nil
}

// Handoffs returns a copy of every stored ticket.
func (s *MemoryStorage) Handoffs() []models.HandoffTicket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HandoffTicket, len(s.handoffs))
	for i, t := range s.handoffs {
		out[i] = *t
	}
	return out
}

func (s *MemoryStorage) SaveAssignment(ctx context.Context, a *models.VendorAssignment) (*models.VendorAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := *a
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	s.assignments = append(s.assignments, &v)
	out := v
	return &out, nil
}

func (s *MemoryStorage) LatestAssignment(ctx context.Context) (*models.VendorAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.VendorAssignment
	for _, a := range s.assignments {
		// Ties keep the later insert.
		if latest == nil || !a.CreatedAt.Before(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (s *MemoryStorage) ListAssignments(ctx context.Context) ([]*models.VendorAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.VendorAssignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		out := *a
		result = append(result, &out)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
