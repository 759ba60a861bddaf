package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/metrics"
	"github.com/Guyuepp/pretty-like/internal/usecase/like"
)

// SliceSink records corrective intents into the current time slice.
type SliceSink struct {
	slices domain.SliceBuffer
	width  time.Duration
	now    func() time.Time
}

var _ domain.IntentSink = (*SliceSink)(nil)

func NewSliceSink(slices domain.SliceBuffer, width time.Duration) *SliceSink {
	return &SliceSink{slices: slices, width: width, now: time.Now}
}

func (s *SliceSink) Emit(ctx context.Context, intent domain.ToggleIntent) error {
	return s.slices.Record(ctx, like.CurrentSlice(s.now(), s.width), intent)
}

// StreamSink publishes corrective intents as regular events.
type StreamSink struct {
	publisher domain.EventPublisher
}

var _ domain.IntentSink = (*StreamSink)(nil)

func NewStreamSink(publisher domain.EventPublisher) *StreamSink {
	return &StreamSink{publisher: publisher}
}

func (s *StreamSink) Emit(ctx context.Context, intent domain.ToggleIntent) error {
	return s.publisher.Publish(ctx, domain.NewLikeEvent(intent))
}

// ReconcileJob compares every user's membership hash with the database and
// re-emits the cached state for pairs that disagree. The membership hash is
// the accepted state; the database trails it.
type ReconcileJob struct {
	cache       domain.LikeCache
	db          domain.LikeDBRepository
	slices      domain.SliceBuffer
	sink        domain.IntentSink
	concurrency int
	now         func() time.Time
}

// NewReconcileJob builds the audit job. slices may be nil when toggles are not
// buffered in time slices.
func NewReconcileJob(cache domain.LikeCache, db domain.LikeDBRepository, slices domain.SliceBuffer, sink domain.IntentSink, concurrency int) *ReconcileJob {
	return &ReconcileJob{
		cache:       cache,
		db:          db,
		slices:      slices,
		sink:        sink,
		concurrency: concurrency,
		now:         time.Now,
	}
}

type auditStats struct {
	users, missingInDB, missingInCache, failed atomic.Int64
}

func (j *ReconcileJob) OnAuditTick(ctx context.Context) {
	start := time.Now()
	pending, err := j.pendingPairs(ctx)
	if err != nil {
		logrus.Errorf("audit aborted, cannot read pending slices: %v", err)
		return
	}

	var stats auditStats
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	err = j.cache.ScanUserIDs(gctx, func(userID int64) error {
		g.Go(func() error {
			stats.users.Add(1)
			if err := j.reconcileUser(gctx, userID, pending, &stats); err != nil {
				stats.failed.Add(1)
				logrus.Errorf("audit of user %d failed: %v", userID, err)
			}
			return nil
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		logrus.Errorf("audit scan failed: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"users":            stats.users.Load(),
		"missing_in_db":    stats.missingInDB.Load(),
		"missing_in_cache": stats.missingInCache.Load(),
		"failed":           stats.failed.Load(),
		"took":             time.Since(start).String(),
	}).Info("audit finished")
}

// pendingPairs are pairs with a toggle still waiting in some slice.
func (j *ReconcileJob) pendingPairs(ctx context.Context) (map[pairKey]struct{}, error) {
	res := make(map[pairKey]struct{})
	if j.slices == nil {
		return res, nil
	}
	slices, err := j.slices.ScanSlices(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range slices {
		intents, err := j.slices.ReadSlice(ctx, s)
		if err != nil {
			return nil, err
		}
		for _, in := range intents {
			res[pairKey{userID: in.UserID, itemID: in.ItemID}] = struct{}{}
		}
	}
	return res, nil
}

func (j *ReconcileJob) reconcileUser(ctx context.Context, userID int64, pending map[pairKey]struct{}, stats *auditStats) error {
	cached, err := j.cache.UserLikedItems(ctx, userID)
	if err != nil {
		return err
	}
	durable, err := j.db.FetchUserLikedItems(ctx, userID)
	if err != nil {
		return err
	}

	inDB := make(map[int64]struct{}, len(durable))
	for _, iid := range durable {
		inDB[iid] = struct{}{}
	}
	inCache := make(map[int64]struct{}, len(cached))
	for _, iid := range cached {
		inCache[iid] = struct{}{}
	}

	for _, iid := range cached {
		if _, ok := inDB[iid]; ok {
			continue
		}
		if err := j.correct(ctx, userID, iid, domain.Like, pending); err != nil {
			return err
		}
		stats.missingInDB.Add(1)
	}
	for _, iid := range durable {
		if _, ok := inCache[iid]; ok {
			continue
		}
		if err := j.correct(ctx, userID, iid, domain.Unlike, pending); err != nil {
			return err
		}
		stats.missingInCache.Add(1)
	}
	return nil
}

func (j *ReconcileJob) correct(ctx context.Context, userID, itemID int64, action domain.LikeAction, pending map[pairKey]struct{}) error {
	if _, ok := pending[pairKey{userID: userID, itemID: itemID}]; ok {
		return nil
	}

	direction := "missing_in_db"
	if action == domain.Unlike {
		direction = "missing_in_cache"
	}
	metrics.ReconcileDrift.WithLabelValues(direction).Inc()
	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": itemID,
		"drift":   direction,
	}).Warn("like membership drift, re-emitting cached state")

	return j.sink.Emit(ctx, domain.ToggleIntent{UserID: userID, ItemID: itemID, Action: action, Timestamp: j.now()})
}

// MembershipResyncer rewrites one user's membership hash from the database.
type MembershipResyncer interface {
	Resync(ctx context.Context, userID int64) (int, error)
}

// ResyncJob is the audit of the synchronous strategy, where the database
// leads and the membership hash only mirrors it.
type ResyncJob struct {
	cache       domain.LikeCache
	resyncer    MembershipResyncer
	concurrency int
}

func NewResyncJob(cache domain.LikeCache, resyncer MembershipResyncer, concurrency int) *ResyncJob {
	return &ResyncJob{cache: cache, resyncer: resyncer, concurrency: concurrency}
}

func (j *ResyncJob) OnAuditTick(ctx context.Context) {
	start := time.Now()
	var users, repaired, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	err := j.cache.ScanUserIDs(gctx, func(userID int64) error {
		g.Go(func() error {
			users.Add(1)
			n, err := j.resyncer.Resync(gctx, userID)
			if err != nil {
				failed.Add(1)
				logrus.Errorf("resync of user %d failed: %v", userID, err)
				return nil
			}
			if n > 0 {
				metrics.ReconcileDrift.WithLabelValues("stale_mirror").Add(float64(n))
				logrus.WithFields(logrus.Fields{"user_id": userID, "repaired": n}).Warn("like mirror drift repaired from database")
			}
			repaired.Add(int64(n))
			return nil
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		logrus.Errorf("resync scan failed: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"users":    users.Load(),
		"repaired": repaired.Load(),
		"failed":   failed.Load(),
		"took":     time.Since(start).String(),
	}).Info("mirror resync finished")
}
