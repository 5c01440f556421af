// Package rotation decides which operator receives the next hot lead.
//
// The turn is derived from the assignment log on every call: the latest
// assignment's index plus one, modulo the roster size. Grant serializes the
// read-then-write inside one process. Two processes granting at the same time
// can still hand out the same turn.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/storage"
	"go.uber.org/zap"
)

// MaxRoster caps the number of operators in a rotation.
const MaxRoster = 16

// LastIndexStore keeps the last granted index for when the assignment log
// cannot be read.
type LastIndexStore interface {
	Load() (int, bool)
	Store(index int)
}

type MemoryLastIndex struct {
	mu    sync.Mutex
	index int
	set   bool
}

func (m *MemoryLastIndex) Load() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index, m.set
}

func (m *MemoryLastIndex) Store(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = index
	m.set = true
}

// Grant is one granted turn.
type Grant struct {
	Index    int
	Operator models.Operator
	// Next is the operator whose turn follows this one.
	Next     models.Operator
	Recorded bool
}

type Scheduler struct {
	mu       sync.Mutex
	roster   []models.Operator
	log      storage.AssignmentStorage
	fallback LastIndexStore
	now      func() time.Time
	logger   *zap.Logger
}

func NewScheduler(roster []models.Operator, log storage.AssignmentStorage, fallback LastIndexStore, logger *zap.Logger) (*Scheduler, error) {
	if len(roster) == 0 {
		return nil, models.ErrEmptyRoster
	}
	if len(roster) > MaxRoster {
		return nil, fmt.Errorf("roster has %d operators, at most %d allowed", len(roster), MaxRoster)
	}
	if fallback == nil {
		fallback = &MemoryLastIndex{}
	}
	r := make([]models.Operator, len(roster))
	copy(r, roster)
	return &Scheduler{
		roster:   r,
		log:      log,
		fallback: fallback,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// WithClock replaces the time source used for assignment timestamps.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) Roster() []models.Operator {
	out := make([]models.Operator, len(s.roster))
	copy(out, s.roster)
	return out
}

// NextTurn returns the roster index whose turn it is without granting it.
func (s *Scheduler) NextTurn(ctx context.Context) (int, error) {
	if len(s.roster) == 0 {
		return 0, models.ErrEmptyRoster
	}
	return s.nextTurn(ctx), nil
}

func (s *Scheduler) nextTurn(ctx context.Context) int {
	k := len(s.roster)

	last, err := s.log.LatestAssignment(ctx)
	switch {
	case err == nil:
		idx := last.VendorIndex
		if idx < 0 || idx >= k {
			s.logger.Warn("Assignment index outside roster, reducing",
				zap.Int("index", idx),
				zap.Int("roster", k))
			idx = ((idx % k) + k) % k
		}
		return (idx + 1) % k
	case errors.Is(err, models.ErrNotFound):
		return 0
	}

	s.logger.Error("Assignment log unavailable, using local fallback", zap.Error(err))
	if idx, ok := s.fallback.Load(); ok {
		idx = ((idx % k) + k) % k
		return (idx + 1) % k
	}
	return 0
}

// Grant takes the next turn and writes it to the assignment log before
// returning. A failed write is logged; the turn is still granted.
func (s *Scheduler) Grant(ctx context.Context, conversationID string) (Grant, error) {
	if len(s.roster) == 0 {
		return Grant{}, models.ErrEmptyRoster
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.nextTurn(ctx)
	op := s.roster[idx]
	g := Grant{
		Index:    idx,
		Operator: op,
		Next:     s.roster[(idx+1)%len(s.roster)],
	}

	_, err := s.log.SaveAssignment(ctx, &models.VendorAssignment{
		VendorIndex:    idx,
		VendorName:     op.Name,
		ConversationID: conversationID,
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to record assignment",
			zap.Error(err),
			zap.String("operator", op.Name),
			zap.String("conversation_id", conversationID))
	} else {
		g.Recorded = true
	}
	s.fallback.Store(idx)

	s.logger.Info("Turn granted",
		zap.String("operator", op.Name),
		zap.Int("index", idx),
		zap.String("conversation_id", conversationID))
	return g, nil
}
