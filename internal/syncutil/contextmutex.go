// Package syncutil holds concurrency helpers shared across services.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

const shardCount = 256

// ContextShardedMutex is a per-key mutex backed by a fixed pool of
// channel-based locks. Waiters can bail out on context cancellation, which
// matters when the critical section does I/O. Memory stays bounded no matter
// how many keys are seen, at the cost of occasional false sharing between
// keys that hash to the same shard.
//
// The zero value is ready to use.
type ContextShardedMutex struct {
	shards [shardCount]chan struct{}
	once   sync.Once
}

// NewContextShardedMutex creates a new context-aware sharded mutex.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	m.init()
	return m
}

func (m *ContextShardedMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			ch := make(chan struct{}, 1)
			ch <- struct{}{} // Start unlocked.
			m.shards[i] = ch
		}
	})
}

// LockContext acquires the lock for key. On success it returns the unlock
// function, which the caller must invoke exactly once. If ctx is cancelled
// while waiting it returns the context error instead.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	m.init()
	ch := m.shards[shardIdx(key)]

	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
