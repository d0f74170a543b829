package replication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue(4)
	q.Push(model.MutationEvent{Table: model.TableUsers, Op: model.OpAdd, Row: &model.User{ID: 1}})
	q.Push(model.MutationEvent{Table: model.TableUsers, Op: model.OpAdd, Row: &model.User{ID: 2}})

	ctx := context.Background()
	first, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(1), first.Row.(*model.User).ID)

	second, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(2), second.Row.(*model.User).ID)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	q.Push(model.MutationEvent{Op: model.OpAdd, Row: &model.User{ID: 1}})
	q.Push(model.MutationEvent{Op: model.OpAdd, Row: &model.User{ID: 2}})
	q.Push(model.MutationEvent{Op: model.OpAdd, Row: &model.User{ID: 3}})

	assert.LessOrEqual(t, q.Len(), 2)

	ctx := context.Background()
	ev, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.NotEqual(t, int64(1), ev.Row.(*model.User).ID)
}

func TestQueuePopRespectsContextCancellation(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}
