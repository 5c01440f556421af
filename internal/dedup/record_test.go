package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeList struct {
	items   []string
	loadErr error
	pushErr error
	trims   int
}

func (f *fakeList) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	out := make([]string, len(f.items))
	copy(out, f.items)
	return redis.NewStringSliceResult(out, f.loadErr)
}

func (f *fakeList) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		f.items = append(f.items, v.(string))
	}
	return redis.NewIntResult(int64(len(f.items)), nil)
}

func (f *fakeList) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trims++
	if start < 0 && int(-start) < len(f.items) {
		f.items = f.items[len(f.items)+int(start):]
	}
	return redis.NewStatusResult("OK", nil)
}

func TestRecordMarkAndSeen(t *testing.T) {
	r := NewRecord("whatsapp", 0, 0, nil, zap.NewNop())
	ctx := context.Background()

	assert.False(t, r.Seen("msg-1"))
	r.Mark(ctx, "msg-1")
	r.Mark(ctx, "msg-1")
	assert.True(t, r.Seen("msg-1"))
	assert.Equal(t, 1, r.Len())
}

func TestRecordTrimKeepsNewest(t *testing.T) {
	r := NewRecord("instagram", DefaultCeiling, DefaultRetain, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < DefaultCeiling; i++ {
		r.Mark(ctx, fmt.Sprintf("k%04d", i))
	}
	require.Equal(t, DefaultCeiling, r.Len())

	r.Mark(ctx, "k1000")
	assert.Equal(t, DefaultRetain, r.Len())

	keys := r.Keys()
	assert.Equal(t, "k0201", keys[0])
	assert.Equal(t, "k1000", keys[len(keys)-1])
	assert.False(t, r.Seen("k0200"))
	assert.True(t, r.Seen("k0201"))
}

func TestRecordInvalidRetainFallsBack(t *testing.T) {
	r := NewRecord("email", 10, 10, nil, zap.NewNop())
	for i := 0; i < 11; i++ {
		r.Mark(context.Background(), fmt.Sprintf("k%d", i))
	}
	assert.Equal(t, 8, r.Len())
}

func TestRecordRedisPersistence(t *testing.T) {
	list := &fakeList{items: []string{"a", "b"}}
	ctx := context.Background()

	r := NewRecord("whatsapp", 3, 2, NewRedisPersister(list, "whatsapp"), zap.NewNop())
	require.NoError(t, r.Restore(ctx))
	assert.True(t, r.Seen("a"))
	assert.True(t, r.Seen("b"))

	r.Mark(ctx, "c")
	assert.Equal(t, []string{"a", "b", "c"}, list.items)

	r.Mark(ctx, "d")
	assert.Equal(t, []string{"c", "d"}, r.Keys())
	assert.Equal(t, []string{"c", "d"}, list.items)
	assert.Equal(t, 1, list.trims)
}

func TestRecordRestoreError(t *testing.T) {
	list := &fakeList{loadErr: errors.New("connection refused")}
	r := NewRecord("email", 0, 0, NewRedisPersister(list, "email"), zap.NewNop())
	assert.Error(t, r.Restore(context.Background()))
	assert.Equal(t, 0, r.Len())
}

func TestRecordPersistFailureKeepsMemoryState(t *testing.T) {
	list := &fakeList{pushErr: errors.New("timeout")}
	r := NewRecord("email", 0, 0, NewRedisPersister(list, "email"), zap.NewNop())
	r.Mark(context.Background(), "x")
	assert.True(t, r.Seen("x"))
	assert.Empty(t, list.items)
}
