package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDrainKeepsOrder(t *testing.T) {
	q := New[string](3)
	require.NoError(t, q.Push("a"))
	require.NoError(t, q.Push("b"))
	require.NoError(t, q.Push("c"))

	assert.Equal(t, []string{"a", "b", "c"}, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestPushRejectsWhenFull(t *testing.T) {
	q := New[int](2)
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))

	err := q.Push(3)
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, []int{1, 2}, q.Drain())
}

func TestZeroCapacityDisablesQueueing(t *testing.T) {
	q := New[int](0)
	assert.ErrorIs(t, q.Push(1), ErrFull)
	assert.Equal(t, 0, q.Len())

	assert.Equal(t, 0, New[int](-5).Cap())
}

func TestRequeuePutsUndeliveredFirst(t *testing.T) {
	q := New[int](5)
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(i))
	}
	taken := q.Drain()
	require.NoError(t, q.Push(4))

	dropped := q.Requeue(taken[1:])
	assert.Equal(t, 0, dropped)
	assert.Equal(t, []int{2, 3, 4}, q.Drain())
}

func TestRequeueDropsNewestOnOverflow(t *testing.T) {
	q := New[int](3)
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(i))
	}
	taken := q.Drain()
	require.NoError(t, q.Push(4))
	require.NoError(t, q.Push(5))

	dropped := q.Requeue(taken)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []int{1, 2, 3}, q.Drain())
}

func TestConcurrentPushAndDrainNeverDuplicates(t *testing.T) {
	const producers, perProducer = 8, 50
	q := New[int](producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Push(p*perProducer+i))
			}
		}(p)
	}

	seen := make(map[int]bool)
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			mu.Lock()
			n := len(seen)
			mu.Unlock()
			if n == producers*perProducer {
				return
			}
			for _, v := range q.Drain() {
				mu.Lock()
				assert.False(t, seen[v], "value %d drained twice", v)
				seen[v] = true
				mu.Unlock()
			}
		}
	}()

	wg.Wait()
	<-done
	assert.Len(t, seen, producers*perProducer)
}
