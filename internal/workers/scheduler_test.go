package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunsLoopsUntilStopped(t *testing.T) {
	var delayed, rate atomic.Int32
	s := NewScheduler()
	s.FixedDelay(0, 5*time.Millisecond, func(context.Context) { delayed.Add(1) })
	s.FixedRate(5*time.Millisecond, func(context.Context) { rate.Add(1) })

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return delayed.Load() >= 3 && rate.Load() >= 3 }, time.Second, time.Millisecond)
	s.Stop()

	d, r := delayed.Load(), rate.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, d, delayed.Load())
	assert.Equal(t, r, rate.Load())
}

func TestScheduler_FixedDelayNeverOverlaps(t *testing.T) {
	var inside, overlaps atomic.Int32
	s := NewScheduler()
	s.FixedDelay(0, time.Millisecond, func(context.Context) {
		if inside.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(3 * time.Millisecond)
		inside.Add(-1)
	})

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	assert.Zero(t, overlaps.Load())
}

func TestScheduler_Cron(t *testing.T) {
	s := NewScheduler()
	assert.NoError(t, s.Cron("0 2 * * *", func(context.Context) {}))
	assert.Error(t, s.Cron("every now and then", func(context.Context) {}))

	s.Start(context.Background())
	s.Stop()
}
