package syncutil

import (
	"context"
	"sync"
)

// KeyedMutex 按键的 FIFO 互斥锁：同一键的等待者按到达顺序获得锁
// 不同键互不影响；无人持有的键会被回收
type KeyedMutex struct {
	mu    sync.Mutex
	queue map[string][]chan struct{} // 第一个元素为当前持有者
}

// NewKeyedMutex 创建按键 FIFO 锁
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{queue: map[string][]chan struct{}{}}
}

// LockContext 按到达顺序获取 key 的锁
func (k *KeyedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	turn := make(chan struct{})

	k.mu.Lock()
	q := k.queue[key]
	k.queue[key] = append(q, turn)
	if len(q) == 0 {
		close(turn)
	}
	k.mu.Unlock()

	// 已轮到自己时优先拿锁，ctx 已取消也不放弃
	select {
	case <-turn:
		return k.unlocker(key), nil
	default:
	}
	select {
	case <-turn:
		return k.unlocker(key), nil
	case <-ctx.Done():
	}

	// 取消：若恰好已轮到自己，则把锁交给下一位
	k.mu.Lock()
	defer k.mu.Unlock()
	select {
	case <-turn:
		k.releaseLocked(key)
	default:
		k.removeLocked(key, turn)
	}
	return nil, ctx.Err()
}

func (k *KeyedMutex) unlocker(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			defer k.mu.Unlock()
			k.releaseLocked(key)
		})
	}
}

// releaseLocked 移除队首并唤醒下一位
func (k *KeyedMutex) releaseLocked(key string) {
	q := k.queue[key]
	if len(q) <= 1 {
		delete(k.queue, key)
		return
	}
	q = q[1:]
	k.queue[key] = q
	close(q[0])
}

func (k *KeyedMutex) removeLocked(key string, turn chan struct{}) {
	q := k.queue[key]
	for i, c := range q {
		if c == turn {
			k.queue[key] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

// Waiting 返回 key 上持有者与等待者总数（测试与监控用）
func (k *KeyedMutex) Waiting(key string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.queue[key])
}
