package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/lead-router/internal/models"
	"github.com/xaenox/lead-router/internal/storage"
	"go.uber.org/zap"
)

var roster = []models.Operator{
	{Name: "Anderson", Address: "5511999999999", Glyph: "👨‍💼"},
	{Name: "Sheila", Address: "5511888888888", Glyph: "👩‍💼"},
	{Name: "Ayla", Address: "5511777777777", Glyph: "👩‍💼"},
}

// brokenLog fails every read and write.
type brokenLog struct{}

func (brokenLog) SaveAssignment(ctx context.Context, a *models.VendorAssignment) (*models.VendorAssignment, error) {
	return nil, errors.New("store unreachable")
}

func (brokenLog) LatestAssignment(ctx context.Context) (*models.VendorAssignment, error) {
	return nil, errors.New("store unreachable")
}

func (brokenLog) ListAssignments(ctx context.Context) ([]*models.VendorAssignment, error) {
	return nil, errors.New("store unreachable")
}

// barrierLog reads the latest assignment, then holds the answer until every
// expected caller has read too, so all of them see the same turn.
type barrierLog struct {
	storage.AssignmentStorage
	wg *sync.WaitGroup
}

func (b barrierLog) LatestAssignment(ctx context.Context) (*models.VendorAssignment, error) {
	last, err := b.AssignmentStorage.LatestAssignment(ctx)
	b.wg.Done()
	b.wg.Wait()
	return last, err
}

func indices(t *testing.T, log storage.AssignmentStorage) []int {
	t.Helper()
	all, err := log.ListAssignments(context.Background())
	require.NoError(t, err)
	out := make([]int, len(all))
	for i, a := range all {
		out[i] = a.VendorIndex
	}
	return out
}

func TestNewSchedulerRejectsEmptyRoster(t *testing.T) {
	_, err := NewScheduler(nil, storage.NewMemoryStorage(), nil, zap.NewNop())
	assert.ErrorIs(t, err, models.ErrEmptyRoster)

	big := make([]models.Operator, MaxRoster+1)
	_, err = NewScheduler(big, storage.NewMemoryStorage(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestGrantSequentialRoundRobin(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	s, err := NewScheduler(roster, store, nil, zap.NewNop())
	require.NoError(t, err)

	turn, err := s.NextTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, turn)

	var names []string
	for i := 0; i < 7; i++ {
		g, err := s.Grant(ctx, fmt.Sprintf("conv-%d", i))
		require.NoError(t, err)
		assert.True(t, g.Recorded)
		names = append(names, g.Operator.Name)
	}
	assert.Equal(t, []string{"Anderson", "Sheila", "Ayla", "Anderson", "Sheila", "Ayla", "Anderson"}, names)
	assert.Empty(t, CheckFairness(indices(t, store), len(roster)))

	g, err := s.Grant(ctx, "conv-7")
	require.NoError(t, err)
	assert.Equal(t, "Sheila", g.Operator.Name)
	assert.Equal(t, "Ayla", g.Next.Name)
}

func TestNextTurnReducesOutOfRangeIndex(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	_, err := store.SaveAssignment(ctx, &models.VendorAssignment{VendorIndex: 4, VendorName: "Gone"})
	require.NoError(t, err)

	s, err := NewScheduler(roster, store, nil, zap.NewNop())
	require.NoError(t, err)

	turn, err := s.NextTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, turn)
}

func TestNextTurnFallsBackWhenLogUnavailable(t *testing.T) {
	ctx := context.Background()
	fallback := &MemoryLastIndex{}
	s, err := NewScheduler(roster, brokenLog{}, fallback, zap.NewNop())
	require.NoError(t, err)

	g, err := s.Grant(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Index)
	assert.False(t, g.Recorded)

	g, err = s.Grant(ctx, "conv-2")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Index)

	idx, ok := fallback.Load()
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestFallbackIgnoredWhenLogAnswers(t *testing.T) {
	ctx := context.Background()
	fallback := &MemoryLastIndex{}
	fallback.Store(1)

	s, err := NewScheduler(roster, storage.NewMemoryStorage(), fallback, zap.NewNop())
	require.NoError(t, err)

	turn, err := s.NextTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, turn)
}

func TestConcurrentGrantsOnOneSchedulerStayFair(t *testing.T) {
	store := storage.NewMemoryStorage()
	s, err := NewScheduler(roster, store, nil, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Grant(context.Background(), fmt.Sprintf("conv-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got := indices(t, store)
	require.Len(t, got, 30)
	assert.Empty(t, CheckFairness(got, len(roster)))

	stats, err := s.Stats(context.Background(), time.Now())
	require.NoError(t, err)
	for _, st := range stats {
		assert.Equal(t, 10, st.Total)
	}
}

func TestConcurrentSchedulersSharingLogCollide(t *testing.T) {
	store := storage.NewMemoryStorage()
	var barrier sync.WaitGroup
	barrier.Add(2)
	log := barrierLog{AssignmentStorage: store, wg: &barrier}

	a, err := NewScheduler(roster, log, nil, zap.NewNop())
	require.NoError(t, err)
	b, err := NewScheduler(roster, log, nil, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i, s := range []*Scheduler{a, b} {
		wg.Add(1)
		go func(i int, s *Scheduler) {
			defer wg.Done()
			_, err := s.Grant(context.Background(), fmt.Sprintf("conv-%d", i))
			assert.NoError(t, err)
		}(i, s)
	}
	wg.Wait()

	got := indices(t, store)
	assert.Equal(t, []int{0, 0}, got)
	assert.Equal(t, []Violation{{Position: 1, Got: 0, Want: 1}}, CheckFairness(got, len(roster)))
}

func TestStatsCountsToday(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)
	store := storage.NewMemoryStorage()
	for _, a := range []models.VendorAssignment{
		{VendorIndex: 0, VendorName: "Anderson", CreatedAt: now.Add(-48 * time.Hour)},
		{VendorIndex: 1, VendorName: "Sheila", CreatedAt: now.Add(-time.Hour)},
		{VendorIndex: 2, VendorName: "Ayla", CreatedAt: now.Add(-2 * time.Hour)},
		{VendorIndex: 0, VendorName: "Anderson", CreatedAt: now.Add(-30 * time.Minute)},
		{VendorIndex: 5, VendorName: "Former", CreatedAt: now},
	} {
		a := a
		_, err := store.SaveAssignment(ctx, &a)
		require.NoError(t, err)
	}

	s, err := NewScheduler(roster, store, nil, zap.NewNop())
	require.NoError(t, err)

	stats, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []OperatorStats{
		{Name: "Anderson", Glyph: "👨‍💼", Total: 2, Today: 1},
		{Name: "Sheila", Glyph: "👩‍💼", Total: 1, Today: 1},
		{Name: "Ayla", Glyph: "👩‍💼", Total: 1, Today: 1},
	}, stats)
}

func TestStatsLogUnavailable(t *testing.T) {
	s, err := NewScheduler(roster, brokenLog{}, nil, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Stats(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestCheckFairness(t *testing.T) {
	assert.Empty(t, CheckFairness([]int{0, 1, 2, 0, 1}, 3))
	assert.Equal(t, []Violation{{Position: 0, Got: 1, Want: 0}, {Position: 2, Got: 1, Want: 0}},
		CheckFairness([]int{1, 2, 1}, 3))
}
