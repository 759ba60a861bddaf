package domain

import (
	"context"
	"strconv"
	"time"
)

// UserLikesNamespace is the hash holding a user's liked items, keyed by item ID.
func UserLikesNamespace(userID int64) string {
	return "thumb:user:" + strconv.FormatInt(userID, 10)
}

// HotItemKey is the hot key detector key of an item.
func HotItemKey(itemID int64) string {
	return "item:" + strconv.FormatInt(itemID, 10)
}

// LikeAction is the direction of a toggle. Its value is the signed
// contribution of the toggle to an item's like count.
type LikeAction int8

const (
	Like   LikeAction = 1
	Unlike LikeAction = -1
)

func (l LikeAction) String() string {
	switch l {
	case Like:
		return "LIKE"
	case Unlike:
		return "UNLIKE"
	default:
		return "UNKNOWN"
	}
}

// UserLike is representing a confirmed like record in the system of record.
// At most one UserLike exists per (UserID, ItemID).
type UserLike struct {
	ID        int64
	ItemID    int64
	UserID    int64
	CreatedAt time.Time
}

// ToggleIntent is an accepted like/unlike request on its way to the system
// of record.
type ToggleIntent struct {
	UserID    int64      `validate:"required,gt=0"`
	ItemID    int64      `validate:"required,gt=0"`
	Action    LikeAction `validate:"oneof=1 -1"`
	Timestamp time.Time
}

// LikeStateChanges is one batch of rows to insert and delete.
type LikeStateChanges struct {
	ToAdd    []UserLike
	ToRemove []UserLike
}

func (c LikeStateChanges) Empty() bool {
	return len(c.ToAdd) == 0 && len(c.ToRemove) == 0
}

// CounterDelta maps itemID to the signed adjustment of its like count.
type CounterDelta map[int64]int64

// LikeDBRepository is the system of record for like records and counts.
type LikeDBRepository interface {
	// ApplyLikeChanges applies a batch in one transaction and returns the
	// counter delta that was actually applied. Pairs to add that already
	// exist and pairs to remove that are already absent are skipped.
	ApplyLikeChanges(ctx context.Context, changes LikeStateChanges) (CounterDelta, error)

	// ApplySliceChanges is ApplyLikeChanges guarded by a processed marker for
	// the slice. applied is false when the slice had already been applied.
	ApplySliceChanges(ctx context.Context, slice time.Time, changes LikeStateChanges) (applied bool, err error)

	// AddLikeRecord checks membership, bumps the count and inserts the record
	// in one transaction. Returns ErrAlreadyLiked or ErrNotFound.
	AddLikeRecord(ctx context.Context, userID, itemID int64) (UserLike, error)

	// RemoveLikeRecord is the inverse of AddLikeRecord. Returns ErrNotLiked.
	RemoveLikeRecord(ctx context.Context, userID, itemID int64) error

	// FetchUserLikedItems returns all item IDs liked by the user.
	FetchUserLikedItems(ctx context.Context, userID int64) ([]int64, error)
}

// LikeCache is the key-value backing store side of likes: the per-user
// membership hash and the atomic toggle scripts.
type LikeCache interface {
	HashGetter

	// MirrorLike records a durable like in the user's hash.
	MirrorLike(ctx context.Context, rec UserLike) error
	// MirrorUnlike removes the membership field from the user's hash.
	MirrorUnlike(ctx context.Context, userID, itemID int64) error

	// ToggleInSlice atomically flips membership and accumulates the net
	// direction into the slice buffer. Returns ErrAlreadyLiked/ErrNotLiked.
	ToggleInSlice(ctx context.Context, slice time.Time, intent ToggleIntent) error
	// ToggleMembership atomically flips membership only.
	ToggleMembership(ctx context.Context, intent ToggleIntent) error
	// RevertMembership undoes a ToggleMembership whose event was never published.
	RevertMembership(ctx context.Context, intent ToggleIntent) error

	// UserLikedItems returns the item IDs marked liked in the user's hash.
	UserLikedItems(ctx context.Context, userID int64) ([]int64, error)
	// ScanUserIDs iterates every user that owns a membership hash.
	ScanUserIDs(ctx context.Context, fn func(userID int64) error) error
}

// HashGetter reads one field of a hash-structured record.
// Returns ErrCacheMiss when the field is absent.
type HashGetter interface {
	HGet(ctx context.Context, key, field string) (string, error)
}

// SliceBuffer is the time-sliced write buffer in the backing store.
type SliceBuffer interface {
	// ReadSlice returns the net direction per (user, item) recorded in slice.
	ReadSlice(ctx context.Context, slice time.Time) ([]ToggleIntent, error)
	DeleteSlice(ctx context.Context, slice time.Time) error
	// ScanSlices lists every slice still present in the store.
	ScanSlices(ctx context.Context) ([]time.Time, error)
	// LockSlice takes the per-slice flush lock. ok is false if another
	// holder owns it.
	LockSlice(ctx context.Context, slice time.Time, ttl time.Duration) (unlock func(), ok bool, err error)
	// Record writes a corrective net direction into slice, unless the
	// membership hash no longer agrees with it.
	Record(ctx context.Context, slice time.Time, intent ToggleIntent) error
}

// ToggleExecutor accepts a like/unlike exactly once per (user, item).
type ToggleExecutor interface {
	Like(ctx context.Context, userID, itemID int64) error
	Unlike(ctx context.Context, userID, itemID int64) error
}

// IntentSink re-emits a corrective intent through the normal write path.
type IntentSink interface {
	Emit(ctx context.Context, intent ToggleIntent) error
}

type LikeUsecase interface {
	Like(ctx context.Context, userID, itemID int64) error
	Unlike(ctx context.Context, userID, itemID int64) error
	GetItem(ctx context.Context, userID, itemID int64) (ItemView, error)
	HotItems(ctx context.Context) []HotKey
	InitItemFilter(ctx context.Context) error
}
