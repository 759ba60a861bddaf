package like

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/metrics"
)

// LocalRefresher updates a value held by the local cache tier, if any.
type LocalRefresher interface {
	PutIfPresent(namespace, field, value string)
}

const unlikedValue = "0"

func recordOutcome(strategy string, action domain.LikeAction, err error) {
	outcome := "accepted"
	switch {
	case errors.Is(err, domain.ErrConflict):
		outcome = "conflict"
	case err != nil:
		outcome = "error"
	}
	metrics.Toggles.WithLabelValues(strategy, action.String(), outcome).Inc()
}

// SyncExecutor applies every toggle to the database inline, serialized per
// user, then mirrors it into the backing store.
type SyncExecutor struct {
	db    domain.LikeDBRepository
	cache domain.LikeCache
	local LocalRefresher
	locks userLocks
}

var _ domain.ToggleExecutor = (*SyncExecutor)(nil)

func NewSyncExecutor(db domain.LikeDBRepository, cache domain.LikeCache, local LocalRefresher) *SyncExecutor {
	return &SyncExecutor{db: db, cache: cache, local: local}
}

func (e *SyncExecutor) Like(ctx context.Context, userID, itemID int64) (err error) {
	defer func() { recordOutcome("sync", domain.Like, err) }()

	return e.locks.with(userID, func() error {
		rec, err := e.db.AddLikeRecord(ctx, userID, itemID)
		if err != nil {
			return err
		}
		if err := e.cache.MirrorLike(ctx, rec); err != nil {
			logrus.Errorf("failed to mirror like of user %d on item %d: %v", userID, itemID, err)
		}
		e.local.PutIfPresent(domain.UserLikesNamespace(userID), strconv.FormatInt(itemID, 10), strconv.FormatInt(rec.ID, 10))
		return nil
	})
}

func (e *SyncExecutor) Unlike(ctx context.Context, userID, itemID int64) (err error) {
	defer func() { recordOutcome("sync", domain.Unlike, err) }()

	return e.locks.with(userID, func() error {
		if err := e.db.RemoveLikeRecord(ctx, userID, itemID); err != nil {
			return err
		}
		if err := e.cache.MirrorUnlike(ctx, userID, itemID); err != nil {
			logrus.Errorf("failed to mirror unlike of user %d on item %d: %v", userID, itemID, err)
		}
		e.local.PutIfPresent(domain.UserLikesNamespace(userID), strconv.FormatInt(itemID, 10), unlikedValue)
		return nil
	})
}

// Resync rewrites the user's membership hash from the database, which leads
// in this strategy. It returns the number of repaired pairs.
func (e *SyncExecutor) Resync(ctx context.Context, userID int64) (repaired int, err error) {
	err = e.locks.with(userID, func() error {
		durable, err := e.db.FetchUserLikedItems(ctx, userID)
		if err != nil {
			return err
		}
		cached, err := e.cache.UserLikedItems(ctx, userID)
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

		ns := domain.UserLikesNamespace(userID)
		for _, iid := range durable {
			if _, ok := inCache[iid]; ok {
				continue
			}
			intent := domain.ToggleIntent{UserID: userID, ItemID: iid, Action: domain.Like, Timestamp: time.Now()}
			if err := e.cache.ToggleMembership(ctx, intent); err != nil && !errors.Is(err, domain.ErrConflict) {
				return err
			}
			e.local.PutIfPresent(ns, strconv.FormatInt(iid, 10), localValue(domain.Like))
			repaired++
		}
		for _, iid := range cached {
			if _, ok := inDB[iid]; ok {
				continue
			}
			if err := e.cache.MirrorUnlike(ctx, userID, iid); err != nil {
				return err
			}
			e.local.PutIfPresent(ns, strconv.FormatInt(iid, 10), unlikedValue)
			repaired++
		}
		return nil
	})
	return repaired, err
}

// SliceExecutor flips membership and records the toggle into the current time
// slice with one script. The flush job writes it to the database later.
type SliceExecutor struct {
	cache domain.LikeCache
	local LocalRefresher
	width time.Duration
	now   func() time.Time
}

var _ domain.ToggleExecutor = (*SliceExecutor)(nil)

func NewSliceExecutor(cache domain.LikeCache, local LocalRefresher, width time.Duration) *SliceExecutor {
	return &SliceExecutor{cache: cache, local: local, width: width, now: time.Now}
}

// CurrentSlice is the start of the slice that t falls in.
func CurrentSlice(t time.Time, width time.Duration) time.Time {
	return t.UTC().Truncate(width)
}

func (e *SliceExecutor) toggle(ctx context.Context, userID, itemID int64, action domain.LikeAction) (err error) {
	defer func() { recordOutcome("slice", action, err) }()

	now := e.now()
	intent := domain.ToggleIntent{UserID: userID, ItemID: itemID, Action: action, Timestamp: now}
	if err := e.cache.ToggleInSlice(ctx, CurrentSlice(now, e.width), intent); err != nil {
		return err
	}
	e.local.PutIfPresent(domain.UserLikesNamespace(userID), strconv.FormatInt(itemID, 10), localValue(action))
	return nil
}

func (e *SliceExecutor) Like(ctx context.Context, userID, itemID int64) error {
	return e.toggle(ctx, userID, itemID, domain.Like)
}

func (e *SliceExecutor) Unlike(ctx context.Context, userID, itemID int64) error {
	return e.toggle(ctx, userID, itemID, domain.Unlike)
}

func localValue(action domain.LikeAction) string {
	if action == domain.Like {
		return "1"
	}
	return unlikedValue
}

// StreamExecutor flips membership and publishes the toggle as an event. A
// failed publish reverts the membership flip.
type StreamExecutor struct {
	cache     domain.LikeCache
	publisher domain.EventPublisher
	local     LocalRefresher
	now       func() time.Time
}

var _ domain.ToggleExecutor = (*StreamExecutor)(nil)

func NewStreamExecutor(cache domain.LikeCache, publisher domain.EventPublisher, local LocalRefresher) *StreamExecutor {
	return &StreamExecutor{cache: cache, publisher: publisher, local: local, now: time.Now}
}

func (e *StreamExecutor) toggle(ctx context.Context, userID, itemID int64, action domain.LikeAction) (err error) {
	defer func() { recordOutcome("stream", action, err) }()

	intent := domain.ToggleIntent{UserID: userID, ItemID: itemID, Action: action, Timestamp: e.now()}
	if err := e.cache.ToggleMembership(ctx, intent); err != nil {
		return err
	}

	if err := e.publisher.Publish(ctx, domain.NewLikeEvent(intent)); err != nil {
		logrus.Errorf("failed to publish %s of user %d on item %d: %v", action, userID, itemID, err)
		if rerr := e.cache.RevertMembership(context.WithoutCancel(ctx), intent); rerr != nil {
			logrus.Errorf("failed to revert membership of user %d on item %d: %v", userID, itemID, rerr)
		}
		if errors.Is(err, domain.ErrBrokerUnavailable) {
			return err
		}
		return errors.Join(domain.ErrBrokerUnavailable, err)
	}

	e.local.PutIfPresent(domain.UserLikesNamespace(userID), strconv.FormatInt(itemID, 10), localValue(action))
	return nil
}

func (e *StreamExecutor) Like(ctx context.Context, userID, itemID int64) error {
	return e.toggle(ctx, userID, itemID, domain.Like)
}

func (e *StreamExecutor) Unlike(ctx context.Context, userID, itemID int64) error {
	return e.toggle(ctx, userID, itemID, domain.Unlike)
}
