package workers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/metrics"
	"github.com/Guyuepp/pretty-like/internal/usecase/like"
)

// maxCatchUp bounds how many closed slices one tick flushes. Older leftovers
// are picked up by the compensation pass.
const maxCatchUp = 60

// FlushJob writes closed time slices to the database.
type FlushJob struct {
	slices  domain.SliceBuffer
	db      domain.LikeDBRepository
	width   time.Duration
	offset  time.Duration
	lockTTL time.Duration
	now     func() time.Time

	mu   sync.Mutex
	last time.Time

	cleanup sync.WaitGroup
}

func NewFlushJob(slices domain.SliceBuffer, db domain.LikeDBRepository, width, offset time.Duration) *FlushJob {
	return &FlushJob{
		slices:  slices,
		db:      db,
		width:   width,
		offset:  offset,
		lockTTL: 3 * width,
		now:     time.Now,
	}
}

// closedSlice is the newest slice that ended at least offset ago.
func (j *FlushJob) closedSlice() time.Time {
	return like.CurrentSlice(j.now().Add(-j.offset), j.width).Add(-j.width)
}

// OnFlushTick flushes every closed slice since the last flushed one. It stops
// at the first failure so that slice is retried on the next tick.
func (j *FlushJob) OnFlushTick(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	target := j.closedSlice()
	start := target
	if !j.last.IsZero() {
		start = j.last.Add(j.width)
	}
	if earliest := target.Add(-time.Duration(maxCatchUp-1) * j.width); start.Before(earliest) {
		start = earliest
	}

	for s := start; !s.After(target); s = s.Add(j.width) {
		err := j.FlushSlice(ctx, s)
		if errors.Is(err, domain.ErrSliceBusy) {
			logrus.Infof("slice %s is being flushed elsewhere, skipping", s.Format(time.RFC3339))
		} else if err != nil {
			logrus.Errorf("failed to flush slice %s: %v", s.Format(time.RFC3339), err)
			return
		}
		j.last = s
	}
}

// FlushSlice applies one slice under its lock and deletes it afterwards.
// Returns ErrSliceBusy if another worker holds the lock.
func (j *FlushJob) FlushSlice(ctx context.Context, slice time.Time) error {
	unlock, ok, err := j.slices.LockSlice(ctx, slice, j.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		metrics.FlushedSlices.WithLabelValues("busy").Inc()
		return domain.ErrSliceBusy
	}
	defer unlock()

	start := time.Now()
	intents, err := j.slices.ReadSlice(ctx, slice)
	if err != nil {
		return err
	}
	if len(intents) == 0 {
		j.deleteAsync(slice)
		return nil
	}

	applied, err := j.db.ApplySliceChanges(ctx, slice, sliceChanges(intents))
	if err != nil {
		metrics.FlushedSlices.WithLabelValues("failed").Inc()
		return err
	}
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	if applied {
		metrics.FlushedSlices.WithLabelValues("applied").Inc()
		logrus.Infof("applied slice %s with %d changes in %v", slice.Format(time.RFC3339), len(intents), time.Since(start))
	} else {
		metrics.FlushedSlices.WithLabelValues("replayed").Inc()
		logrus.Warnf("slice %s was already applied, dropping it", slice.Format(time.RFC3339))
	}

	j.deleteAsync(slice)
	return nil
}

func (j *FlushJob) deleteAsync(slice time.Time) {
	j.cleanup.Add(1)
	go func() {
		defer j.cleanup.Done()
		if err := j.slices.DeleteSlice(context.Background(), slice); err != nil {
			logrus.Warnf("failed to delete slice %s, compensation will retry: %v", slice.Format(time.RFC3339), err)
		}
	}()
}

// Wait blocks until pending slice deletions finish.
func (j *FlushJob) Wait() {
	j.cleanup.Wait()
}

// OnCompensateTick replays every leftover closed slice, oldest first.
func (j *FlushJob) OnCompensateTick(ctx context.Context) {
	start := time.Now()
	slices, err := j.slices.ScanSlices(ctx)
	if err != nil {
		logrus.Errorf("compensation scan failed: %v", err)
		return
	}
	sort.Slice(slices, func(a, b int) bool { return slices[a].Before(slices[b]) })

	target := j.closedSlice()
	replayed := 0
	for _, s := range slices {
		if s.After(target) {
			break
		}
		switch err := j.FlushSlice(ctx, s); {
		case errors.Is(err, domain.ErrSliceBusy):
		case err != nil:
			logrus.Errorf("compensation failed for slice %s: %v", s.Format(time.RFC3339), err)
		default:
			replayed++
		}
	}
	logrus.Infof("compensation replayed %d of %d leftover slices in %v", replayed, len(slices), time.Since(start))
}
