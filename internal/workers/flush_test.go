package workers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/repository/redis"
)

const testWidth = 10 * time.Second

func newFlushJob(t *testing.T, now time.Time) (*FlushJob, *fakeLikeDB, func(slice time.Time, field, value string), func(slice time.Time) bool) {
	t.Helper()
	mr, client := newMiniRedis(t)
	db := newFakeLikeDB()
	job := NewFlushJob(redis.NewSliceBuffer(client, time.Second), db, testWidth, 2*time.Second)
	job.now = func() time.Time { return now }

	put := func(slice time.Time, field, value string) { mr.HSet(redis.SliceKey(slice), field, value) }
	exists := func(slice time.Time) bool { return mr.Exists(redis.SliceKey(slice)) }
	return job, db, put, exists
}

func TestFlushSlice_AppliesAndDeletes(t *testing.T) {
	job, db, put, exists := newFlushJob(t, t0)
	put(t0, "1:7", "1")
	put(t0, "2:7", "1")
	put(t0, "3:7", "0")

	require.NoError(t, job.FlushSlice(context.TODO(), t0))
	job.Wait()

	assert.Equal(t, int64(2), db.count(7))
	assert.True(t, db.has(1, 7))
	assert.False(t, db.has(3, 7))
	assert.False(t, exists(t0))
}

func TestFlushSlice_ReplayIsIdempotent(t *testing.T) {
	job, db, put, exists := newFlushJob(t, t0)
	put(t0, "1:7", "1")
	require.NoError(t, job.FlushSlice(context.TODO(), t0))
	job.Wait()

	// the deletion was lost and the slice comes back
	put(t0, "1:7", "1")
	require.NoError(t, job.FlushSlice(context.TODO(), t0))
	job.Wait()

	assert.Equal(t, int64(1), db.count(7))
	assert.False(t, exists(t0))
}

func TestFlushSlice_FailureKeepsSlice(t *testing.T) {
	job, db, put, exists := newFlushJob(t, t0)
	db.down = true
	put(t0, "1:7", "1")

	assert.ErrorIs(t, job.FlushSlice(context.TODO(), t0), errDBDown)
	job.Wait()
	assert.True(t, exists(t0))
	assert.Zero(t, db.count(7))
}

func TestFlushSlice_Busy(t *testing.T) {
	job, db, put, exists := newFlushJob(t, t0)
	put(t0, "1:7", "1")

	unlock, ok, err := job.slices.LockSlice(context.TODO(), t0, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, job.FlushSlice(context.TODO(), t0), domain.ErrSliceBusy)
	assert.True(t, exists(t0))
	assert.Zero(t, db.applies)

	unlock()
	require.NoError(t, job.FlushSlice(context.TODO(), t0))
	job.Wait()
	assert.Equal(t, int64(1), db.count(7))
}

func TestOnFlushTick_CatchesUp(t *testing.T) {
	job, db, put, exists := newFlushJob(t, t0.Add(35*time.Second))
	for i := 1; i <= 5; i++ {
		put(t0.Add(time.Duration(i)*testWidth), fmt.Sprintf("1:%d", i), "1")
	}

	// closed slice is t0+20s; the first tick does not look further back
	job.OnFlushTick(context.TODO())
	job.Wait()
	assert.True(t, exists(t0.Add(10*time.Second)))
	assert.False(t, exists(t0.Add(20*time.Second)))
	assert.True(t, db.has(1, 2))

	job.now = func() time.Time { return t0.Add(65 * time.Second) }
	job.OnFlushTick(context.TODO())
	job.Wait()
	for i := 3; i <= 5; i++ {
		assert.False(t, exists(t0.Add(time.Duration(i)*testWidth)))
		assert.True(t, db.has(1, int64(i)))
	}
	assert.Equal(t, t0.Add(50*time.Second), job.last)
}

func TestOnFlushTick_RetriesFailedSlice(t *testing.T) {
	job, db, put, exists := newFlushJob(t, t0.Add(35*time.Second))
	slice := t0.Add(20 * time.Second)
	put(slice, "1:7", "1")

	db.down = true
	job.OnFlushTick(context.TODO())
	assert.True(t, job.last.IsZero())
	assert.True(t, exists(slice))

	db.down = false
	job.OnFlushTick(context.TODO())
	job.Wait()
	assert.Equal(t, slice, job.last)
	assert.Equal(t, int64(1), db.count(7))
}

func TestOnFlushTick_SkipsBusySlice(t *testing.T) {
	job, db, put, exists := newFlushJob(t, t0.Add(35*time.Second))
	slice := t0.Add(20 * time.Second)
	put(slice, "1:7", "1")
	_, ok, err := job.slices.LockSlice(context.TODO(), slice, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	job.OnFlushTick(context.TODO())
	assert.Equal(t, slice, job.last)
	assert.True(t, exists(slice))
	assert.Zero(t, db.count(7))
}

func TestOnCompensateTick_ReplaysClosedLeftovers(t *testing.T) {
	job, db, put, exists := newFlushJob(t, t0.Add(35*time.Second))
	put(t0, "1:7", "1")
	put(t0.Add(10*time.Second), "2:7", "1")
	put(t0.Add(30*time.Second), "3:7", "1")

	job.OnCompensateTick(context.TODO())
	job.Wait()

	assert.False(t, exists(t0))
	assert.False(t, exists(t0.Add(10*time.Second)))
	assert.True(t, exists(t0.Add(30*time.Second)), "open slice must stay")
	assert.Equal(t, int64(2), db.count(7))
}
