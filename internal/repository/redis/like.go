package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
)

const (
	KeyUserLikesPattern = "thumb:user:*"
	KeySlice            = "thumb:temp:%s"
	KeySlicePattern     = "thumb:temp:*"
	KeySliceLock        = "thumb:lock:temp:%s"

	// SliceLayout labels a slice by its UTC start time.
	SliceLayout = "20060102150405"

	scanCount = 1000
)

const (
	statusApplied  = 1
	statusRejected = -1
)

// KEYS = {slice hash, user hash}
// ARGV = {userID, itemID, action}
var toggleInSliceScript = redis.NewScript(`
	local action = tonumber(ARGV[3])
	local exists = redis.call('HEXISTS', KEYS[2], ARGV[2])
	if action == 1 then
		if exists == 1 then
			return -1
		end
		redis.call('HSET', KEYS[2], ARGV[2], 1)
	else
		if exists == 0 then
			return -1
		end
		redis.call('HDEL', KEYS[2], ARGV[2])
	end

	local field = ARGV[1] .. ':' .. ARGV[2]
	local old = tonumber(redis.call('HGET', KEYS[1], field) or 0)
	redis.call('HSET', KEYS[1], field, old + action)
	return 1
`)

// KEYS = {user hash}
// ARGV = {itemID, action}
var toggleMembershipScript = redis.NewScript(`
	local action = tonumber(ARGV[2])
	local exists = redis.call('HEXISTS', KEYS[1], ARGV[1])
	if action == 1 then
		if exists == 1 then
			return -1
		end
		redis.call('HSET', KEYS[1], ARGV[1], 1)
	else
		if exists == 0 then
			return -1
		end
		redis.call('HDEL', KEYS[1], ARGV[1])
	end
	return 1
`)

type likeCache struct {
	client  *redis.Client
	timeout time.Duration
}

var _ domain.LikeCache = (*likeCache)(nil)

func NewLikeCache(client *redis.Client, timeout time.Duration) *likeCache {
	return &likeCache{
		client:  client,
		timeout: timeout,
	}
}

func UserLikesKey(userID int64) string {
	return domain.UserLikesNamespace(userID)
}

func SliceKey(slice time.Time) string {
	return fmt.Sprintf(KeySlice, slice.UTC().Format(SliceLayout))
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrBackingStoreUnavailable, err)
}

func (c *likeCache) HGet(ctx context.Context, key, field string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrCacheMiss
	}
	if err != nil {
		return "", storeErr("hget", err)
	}
	return v, nil
}

func (c *likeCache) MirrorLike(ctx context.Context, rec domain.UserLike) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.client.HSet(ctx, UserLikesKey(rec.UserID), strconv.FormatInt(rec.ItemID, 10), strconv.FormatInt(rec.ID, 10)).Err()
	if err != nil {
		return storeErr("mirror like", err)
	}
	return nil
}

func (c *likeCache) MirrorUnlike(ctx context.Context, userID, itemID int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.HDel(ctx, UserLikesKey(userID), strconv.FormatInt(itemID, 10)).Err(); err != nil {
		return storeErr("mirror unlike", err)
	}
	return nil
}

func (c *likeCache) ToggleInSlice(ctx context.Context, slice time.Time, intent domain.ToggleIntent) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	keys := []string{SliceKey(slice), UserLikesKey(intent.UserID)}
	args := []any{
		strconv.FormatInt(intent.UserID, 10),
		strconv.FormatInt(intent.ItemID, 10),
		strconv.Itoa(int(intent.Action)),
	}
	res, err := toggleInSliceScript.Run(ctx, c.client, keys, args...).Int()
	if err != nil {
		return storeErr("toggle in slice", err)
	}
	return toggleStatus(res, intent.Action)
}

func (c *likeCache) ToggleMembership(ctx context.Context, intent domain.ToggleIntent) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	keys := []string{UserLikesKey(intent.UserID)}
	args := []any{
		strconv.FormatInt(intent.ItemID, 10),
		strconv.Itoa(int(intent.Action)),
	}
	res, err := toggleMembershipScript.Run(ctx, c.client, keys, args...).Int()
	if err != nil {
		return storeErr("toggle membership", err)
	}
	return toggleStatus(res, intent.Action)
}

func toggleStatus(res int, action domain.LikeAction) error {
	switch res {
	case statusApplied:
		return nil
	case statusRejected:
		if action == domain.Like {
			return domain.ErrAlreadyLiked
		}
		return domain.ErrNotLiked
	default:
		return fmt.Errorf("unexpected toggle status %d: %w", res, domain.ErrInternalServerError)
	}
}

func (c *likeCache) RevertMembership(ctx context.Context, intent domain.ToggleIntent) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key, field := UserLikesKey(intent.UserID), strconv.FormatInt(intent.ItemID, 10)
	var err error
	if intent.Action == domain.Like {
		err = c.client.HDel(ctx, key, field).Err()
	} else {
		err = c.client.HSet(ctx, key, field, "1").Err()
	}
	if err != nil {
		return storeErr("revert membership", err)
	}
	return nil
}

func (c *likeCache) UserLikedItems(ctx context.Context, userID int64) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.HGetAll(ctx, UserLikesKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeErr("user liked items", err)
	}

	res := make([]int64, 0, len(data))
	for field, v := range data {
		if v == "0" {
			continue
		}
		iid, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			logrus.Warnf("skip malformed like field %q of user %d", field, userID)
			continue
		}
		res = append(res, iid)
	}
	return res, nil
}

func (c *likeCache) ScanUserIDs(ctx context.Context, fn func(userID int64) error) error {
	prefix := strings.TrimSuffix(KeyUserLikesPattern, "*")
	return scanKeys(ctx, c.client, KeyUserLikesPattern, func(key string) error {
		uid, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			logrus.Warnf("skip malformed user like key %q", key)
			return nil
		}
		return fn(uid)
	})
}

func scanKeys(ctx context.Context, client *redis.Client, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return storeErr("scan "+pattern, err)
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
