package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Guyuepp/pretty-like/domain"
)

var errDBDown = errors.New("db down")

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// fakeLikeDB is an in-memory system of record with the same row-level
// filtering and slice markers as the MySQL repository.
type fakeLikeDB struct {
	mu      sync.Mutex
	rows    map[pairKey]struct{}
	counts  map[int64]int64
	slices  map[time.Time]struct{}
	broken  map[pairKey]bool
	down    bool
	applies int
}

var _ domain.LikeDBRepository = (*fakeLikeDB)(nil)

func newFakeLikeDB() *fakeLikeDB {
	return &fakeLikeDB{
		rows:   make(map[pairKey]struct{}),
		counts: make(map[int64]int64),
		slices: make(map[time.Time]struct{}),
		broken: make(map[pairKey]bool),
	}
}

func (f *fakeLikeDB) seed(userID, itemID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[pairKey{userID: userID, itemID: itemID}] = struct{}{}
	f.counts[itemID]++
}

func (f *fakeLikeDB) count(itemID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[itemID]
}

func (f *fakeLikeDB) has(userID, itemID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[pairKey{userID: userID, itemID: itemID}]
	return ok
}

func (f *fakeLikeDB) apply(changes domain.LikeStateChanges) (domain.CounterDelta, error) {
	f.applies++
	if f.down {
		return nil, errDBDown
	}
	for _, rows := range [][]domain.UserLike{changes.ToAdd, changes.ToRemove} {
		for _, r := range rows {
			if f.broken[pairKey{userID: r.UserID, itemID: r.ItemID}] {
				return nil, errDBDown
			}
		}
	}

	delta := make(domain.CounterDelta)
	for _, r := range changes.ToAdd {
		k := pairKey{userID: r.UserID, itemID: r.ItemID}
		if _, ok := f.rows[k]; ok {
			continue
		}
		f.rows[k] = struct{}{}
		delta[r.ItemID]++
	}
	for _, r := range changes.ToRemove {
		k := pairKey{userID: r.UserID, itemID: r.ItemID}
		if _, ok := f.rows[k]; !ok {
			continue
		}
		delete(f.rows, k)
		delta[r.ItemID]--
	}
	for iid, d := range delta {
		f.counts[iid] += d
	}
	return delta, nil
}

func (f *fakeLikeDB) ApplyLikeChanges(_ context.Context, changes domain.LikeStateChanges) (domain.CounterDelta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(changes)
}

func (f *fakeLikeDB) ApplySliceChanges(_ context.Context, slice time.Time, changes domain.LikeStateChanges) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.slices[slice]; ok {
		return false, nil
	}
	if _, err := f.apply(changes); err != nil {
		return false, err
	}
	f.slices[slice] = struct{}{}
	return true, nil
}

func (f *fakeLikeDB) AddLikeRecord(context.Context, int64, int64) (domain.UserLike, error) {
	return domain.UserLike{}, errors.New("not used")
}

func (f *fakeLikeDB) RemoveLikeRecord(context.Context, int64, int64) error {
	return errors.New("not used")
}

func (f *fakeLikeDB) FetchUserLikedItems(_ context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errDBDown
	}
	var res []int64
	for k := range f.rows {
		if k.userID == userID {
			res = append(res, k.itemID)
		}
	}
	return res, nil
}

// fakeConsumer records what the worker did with each message.
type fakeConsumer struct {
	mu      sync.Mutex
	batches [][]domain.Message
	acked   []string
	nacked  []string
	dead    []string
}

var _ domain.EventConsumer = (*fakeConsumer)(nil)

func (f *fakeConsumer) Receive(ctx context.Context) ([]domain.Message, error) {
	f.mu.Lock()
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeConsumer) Ack(_ context.Context, msgs ...domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.acked = append(f.acked, m.ID)
	}
	return nil
}

func (f *fakeConsumer) Nack(_ context.Context, msgs ...domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.nacked = append(f.nacked, m.ID)
	}
	return nil
}

func (f *fakeConsumer) DeadLetter(_ context.Context, msgs ...domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.dead = append(f.dead, m.ID)
	}
	return nil
}

type captureSink struct {
	mu      sync.Mutex
	intents []domain.ToggleIntent
}

func (s *captureSink) Emit(_ context.Context, intent domain.ToggleIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, intent)
	return nil
}

func msg(id string, uid, iid int64, action domain.LikeAction, at time.Time) domain.Message {
	return domain.Message{
		ID:    id,
		Event: &domain.LikeEvent{UserID: uid, ItemID: iid, Action: action, EventTime: at},
	}
}
