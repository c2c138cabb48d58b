package syncutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var counter int64
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock, err := m.LockContext(ctx, "counter")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			// 非原子自增：互斥失效时结果会小于 n
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), atomic.LoadInt64(&counter))
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.LockContext(context.Background(), "blocked")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = m.LockContext(ctx, "blocked")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// 无人持有时，已取消的 ctx 也必须拿到锁
func TestKeyedMutex_FreeLockIgnoresCancelledContext(t *testing.T) {
	m := NewKeyedMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 200; i++ {
		unlock, err := m.LockContext(ctx, "free")
		require.NoError(t, err, "attempt %d", i)
		unlock()
	}
	assert.Equal(t, 0, m.Waiting("free"))
}

// 持有者阻塞时，其他键不受影响
func TestKeyedMutex_HeldKeyDoesNotBlockOthers(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.LockContext(context.Background(), "stuck-webhook")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 512; i++ {
		other, err := m.LockContext(ctx, fmt.Sprintf("ext-%d", i))
		require.NoError(t, err)
		other()
	}
}

func TestKeyedMutex_FIFO(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := m.LockContext(ctx, "subject-1")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	const n = 5
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := m.LockContext(ctx, "subject-1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			u()
		}(i)
		// 等待第 i 个排入队列，保证到达顺序
		require.Eventually(t, func() bool { return m.Waiting("subject-1") == i+2 }, time.Second, time.Millisecond)
	}

	unlock()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, m.Waiting("subject-1"))
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.LockContext(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	timeout, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlockB, err := m.LockContext(timeout, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_CancelledWaiterLeavesQueue(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := m.LockContext(ctx, "k")
	require.NoError(t, err)

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.LockContext(timeout, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.Waiting("k"))

	unlock()
	unlock() // 重复调用无副作用
	assert.Equal(t, 0, m.Waiting("k"))

	again, err := m.LockContext(ctx, "k")
	require.NoError(t, err)
	again()
}
