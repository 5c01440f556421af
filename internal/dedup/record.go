// Package dedup tracks which inbound events a channel already processed.
//
// Seen and Mark are separate calls: two pipelines handling the same key at
// the same time can both pass Seen before either marks it. Duplicate replies
// are possible in that window; callers accept this.
package dedup

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	DefaultCeiling = 1000
	DefaultRetain  = 800
)

// Persister stores the processed keys of one channel outside the process.
type Persister interface {
	Load(ctx context.Context) ([]string, error)
	Append(ctx context.Context, key string) error
	Trim(ctx context.Context, retain int) error
}

// Record is a bounded, insertion-ordered set of processed keys.
type Record struct {
	mu        sync.Mutex
	channel   string
	ceiling   int
	retain    int
	order     []string
	keys      map[string]struct{}
	persister Persister
	logger    *zap.Logger
}

func NewRecord(channel string, ceiling, retain int, persister Persister, logger *zap.Logger) *Record {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if retain <= 0 || retain >= ceiling {
		retain = ceiling * 4 / 5
	}
	return &Record{
		channel:   channel,
		ceiling:   ceiling,
		retain:    retain,
		keys:      make(map[string]struct{}),
		persister: persister,
		logger:    logger,
	}
}

// Restore rebuilds the set from the persister. A missing persister leaves
// the record empty.
func (r *Record) Restore(ctx context.Context) error {
	if r.persister == nil {
		return nil
	}
	keys, err := r.persister.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.add(k)
	}
	r.trim()
	r.logger.Info("Dedup record restored",
		zap.String("channel", r.channel),
		zap.Int("keys", len(r.order)))
	return nil
}

func (r *Record) Seen(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[key]
	return ok
}

// Mark records key as processed, trimming to the retained tail once the
// ceiling is exceeded.
func (r *Record) Mark(ctx context.Context, key string) {
	r.mu.Lock()
	added := r.add(key)
	trimmed := r.trim()
	r.mu.Unlock()

	if !added || r.persister == nil {
		return
	}
	if err := r.persister.Append(ctx, key); err != nil {
		r.logger.Warn("Failed to persist dedup key",
			zap.Error(err),
			zap.String("channel", r.channel))
		return
	}
	if trimmed {
		if err := r.persister.Trim(ctx, r.retain); err != nil {
			r.logger.Warn("Failed to trim persisted dedup keys",
				zap.Error(err),
				zap.String("channel", r.channel))
		}
	}
}

func (r *Record) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Keys returns the keys oldest first.
func (r *Record) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Record) add(key string) bool {
	if _, ok := r.keys[key]; ok {
		return false
	}
	r.keys[key] = struct{}{}
	r.order = append(r.order, key)
	return true
}

func (r *Record) trim() bool {
	if len(r.order) <= r.ceiling {
		return false
	}
	drop := r.order[:len(r.order)-r.retain]
	for _, k := range drop {
		delete(r.keys, k)
	}
	kept := make([]string, r.retain)
	copy(kept, r.order[len(r.order)-r.retain:])
	r.order = kept
	return true
}
