package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitChain(t *testing.T, q *ChainQueue, id string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return q.Wait(ctx, id)
}

func TestChainQueue_RunsLinksInOrder(t *testing.T) {
	q := NewChainQueue(2)
	defer q.Stop()

	var seen []any
	var mu sync.Mutex
	link := func(n int) Link {
		return func(_ context.Context, prev any) (any, error) {
			mu.Lock()
			seen = append(seen, prev)
			mu.Unlock()
			return n, nil
		}
	}

	onErrorCalled := false
	require.NoError(t, q.Submit(&Chain{
		ID:      "c1",
		Links:   []Link{link(1), link(2), link(3)},
		OnError: func(context.Context, error) { onErrorCalled = true },
	}))
	require.NoError(t, waitChain(t, q, "c1"))

	assert.Equal(t, []any{nil, 1, 2}, seen)
	assert.False(t, onErrorCalled)
}

func TestChainQueue_ErrorRunsOnErrorOnce(t *testing.T) {
	q := NewChainQueue(2)
	defer q.Stop()

	var ran []string
	var onErrorCalls int32
	var cause error
	boom := errors.New("store unavailable")
	done := make(chan struct{})

	require.NoError(t, q.Submit(&Chain{
		ID: "c2",
		Links: []Link{
			func(context.Context, any) (any, error) { ran = append(ran, "a"); return nil, nil },
			func(context.Context, any) (any, error) { ran = append(ran, "b"); return nil, boom },
			func(context.Context, any) (any, error) { ran = append(ran, "c"); return nil, nil },
		},
		OnError: func(_ context.Context, err error) {
			atomic.AddInt32(&onErrorCalls, 1)
			cause = err
			close(done)
		},
	}))

	err := waitChain(t, q, "c2")
	<-done
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, int32(1), atomic.LoadInt32(&onErrorCalls))
	assert.ErrorIs(t, cause, boom)
}

func TestChainQueue_PanicBecomesError(t *testing.T) {
	q := NewChainQueue(1)
	defer q.Stop()

	causes := make(chan error, 1)
	require.NoError(t, q.Submit(&Chain{
		ID: "c3",
		Links: []Link{
			func(context.Context, any) (any, error) { panic("nil map") },
		},
		OnError: func(_ context.Context, err error) { causes <- err },
	}))

	select {
	case err := <-causes:
		assert.Contains(t, err.Error(), "nil map")
	case <-time.After(5 * time.Second):
		t.Fatal("OnError未执行")
	}
}

func TestChainQueue_RevokeCancelsRunningLink(t *testing.T) {
	q := NewChainQueue(2)
	defer q.Stop()

	started := make(chan struct{})
	var secondRan, onErrorRan atomic.Bool
	require.NoError(t, q.Submit(&Chain{
		ID: "c4",
		Links: []Link{
			func(ctx context.Context, _ any) (any, error) {
				close(started)
				<-ctx.Done()
				return "cancelled", nil
			},
			func(context.Context, any) (any, error) { secondRan.Store(true); return nil, nil },
		},
		OnError: func(context.Context, error) { onErrorRan.Store(true) },
	}))

	<-started
	require.NoError(t, q.Revoke("c4"))

	err := waitChain(t, q, "c4")
	assert.ErrorIs(t, err, ErrRevoked)
	assert.False(t, secondRan.Load())
	assert.False(t, onErrorRan.Load())

	assert.True(t, pkgerrors.IsNotFound(q.Revoke("c4")))
}

func TestChainQueue_BoundedConcurrency(t *testing.T) {
	q := NewChainQueue(2)
	defer q.Stop()

	var running, peak int32
	link := func(context.Context, any) (any, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, id := range ids {
		require.NoError(t, q.Submit(&Chain{ID: id, Links: []Link{link, link}}))
	}
	for _, id := range ids {
		require.NoError(t, waitChain(t, q, id))
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestChainQueue_SubmitValidation(t *testing.T) {
	q := NewChainQueue(1)

	assert.True(t, pkgerrors.Is(q.Submit(&Chain{}), pkgerrors.ErrInvalidRequest))

	block := make(chan struct{})
	require.NoError(t, q.Submit(&Chain{ID: "dup", Links: []Link{
		func(ctx context.Context, _ any) (any, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return nil, nil
		},
	}}))
	assert.True(t, pkgerrors.IsConflict(q.Submit(&Chain{ID: "dup", Links: []Link{}})))

	assert.NoError(t, q.Wait(context.Background(), "unknown"))

	close(block)
	q.Stop()
	assert.True(t, pkgerrors.Is(q.Submit(&Chain{ID: "late", Links: []Link{}}), pkgerrors.ErrInfrastructure))
}

func TestChainQueue_EmptyChainCompletesImmediately(t *testing.T) {
	q := NewChainQueue(1)
	defer q.Stop()

	require.NoError(t, q.Submit(&Chain{ID: "empty"}))
	assert.NoError(t, waitChain(t, q, "empty"))
}
