package like

import "sync"

const lockShards = 256

// userLocks is a fixed pool of mutexes; a user always maps to the same shard.
type userLocks struct {
	shards [lockShards]sync.Mutex
}

func (l *userLocks) shard(userID int64) *sync.Mutex {
	// fibonacci hashing spreads sequential IDs over the shards
	h := uint64(userID) * 0x9E3779B97F4A7C15
	return &l.shards[h>>56]
}

// with runs fn holding the user's shard lock.
func (l *userLocks) with(userID int64, fn func() error) error {
	mu := l.shard(userID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
