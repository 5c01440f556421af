package rotation

import (
	"context"
	"fmt"
	"time"
)

type OperatorStats struct {
	Name  string `json:"name"`
	Glyph string `json:"glyph"`
	Total int    `json:"total"`
	Today int    `json:"today"`
}

// Stats counts assignments per roster operator, matched by name. Today is
// the calendar day of now in now's location.
func (s *Scheduler) Stats(ctx context.Context, now time.Time) ([]OperatorStats, error) {
	assignments, err := s.log.ListAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	y, m, d := now.Date()
	byName := make(map[string]*OperatorStats, len(s.roster))
	out := make([]OperatorStats, len(s.roster))
	for i, op := range s.roster {
		out[i] = OperatorStats{Name: op.Name, Glyph: op.Glyph}
		byName[op.Name] = &out[i]
	}

	for _, a := range assignments {
		st, ok := byName[a.VendorName]
		if !ok {
			continue
		}
		st.Total++
		ay, am, ad := a.CreatedAt.In(now.Location()).Date()
		if ay == y && am == m && ad == d {
			st.Today++
		}
	}
	return out, nil
}

// Violation is a position in a grant sequence that breaks round-robin order.
type Violation struct {
	Position int
	Got      int
	Want     int
}

// CheckFairness verifies that each index follows its predecessor in
// round-robin order over a roster of size k, starting at 0.
func CheckFairness(indices []int, k int) []Violation {
	var out []Violation
	want := 0
	for i, got := range indices {
		if got != want {
			out = append(out, Violation{Position: i, Got: got, Want: want})
		}
		want = (got + 1) % k
	}
	return out
}
