package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
)

// KEYS = {lock key}
// ARGV = {token}
var unlockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// KEYS = {slice hash, user hash}
// ARGV = {slice field, itemID, action}
var recordScript = redis.NewScript(`
	local action = tonumber(ARGV[3])
	local liked = redis.call('HEXISTS', KEYS[2], ARGV[2]) == 1
	if (action == 1) ~= liked then
		return 0
	end
	redis.call('HSET', KEYS[1], ARGV[1], action)
	return 1
`)

type sliceBuffer struct {
	client  *redis.Client
	timeout time.Duration
}

var _ domain.SliceBuffer = (*sliceBuffer)(nil)

func NewSliceBuffer(client *redis.Client, timeout time.Duration) *sliceBuffer {
	return &sliceBuffer{
		client:  client,
		timeout: timeout,
	}
}

func sliceLockKey(slice time.Time) string {
	return fmt.Sprintf(KeySliceLock, slice.UTC().Format(SliceLayout))
}

// ParseSliceKey extracts the slice start time from a slice key.
func ParseSliceKey(key string) (time.Time, error) {
	label := strings.TrimPrefix(key, strings.TrimSuffix(KeySlicePattern, "*"))
	return time.ParseInLocation(SliceLayout, label, time.UTC)
}

func (s *sliceBuffer) ReadSlice(ctx context.Context, slice time.Time) ([]domain.ToggleIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := SliceKey(slice)
	data, err := s.client.HGetAll(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("read slice", err)
	}

	res := make([]domain.ToggleIntent, 0, len(data))
	for field, v := range data {
		uidStr, iidStr, ok := strings.Cut(field, ":")
		if !ok {
			logrus.Warnf("skip malformed field %q in %s", field, key)
			continue
		}
		uid, err1 := strconv.ParseInt(uidStr, 10, 64)
		iid, err2 := strconv.ParseInt(iidStr, 10, 64)
		net, err3 := strconv.Atoi(v)
		if err := errors.Join(err1, err2, err3); err != nil {
			logrus.Warnf("skip malformed field %q=%q in %s: %v", field, v, key, err)
			continue
		}
		if net == 0 {
			continue
		}
		action := domain.Like
		if net < 0 {
			action = domain.Unlike
		}
		res = append(res, domain.ToggleIntent{UserID: uid, ItemID: iid, Action: action, Timestamp: slice})
	}
	return res, nil
}

func (s *sliceBuffer) DeleteSlice(ctx context.Context, slice time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, SliceKey(slice)).Err(); err != nil {
		return storeErr("delete slice", err)
	}
	return nil
}

func (s *sliceBuffer) ScanSlices(ctx context.Context) ([]time.Time, error) {
	var res []time.Time
	err := scanKeys(ctx, s.client, KeySlicePattern, func(key string) error {
		slice, err := ParseSliceKey(key)
		if err != nil {
			logrus.Warnf("skip malformed slice key %q", key)
			return nil
		}
		res = append(res, slice)
		return nil
	})
	return res, err
}

func (s *sliceBuffer) LockSlice(ctx context.Context, slice time.Time, ttl time.Duration) (func(), bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := sliceLockKey(slice)
	token := strconv.FormatUint(rand.Uint64(), 36)
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, storeErr("lock slice", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := unlockScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil {
			logrus.Errorf("failed to release %s: %v", key, err)
		}
	}
	return unlock, true, nil
}

// Record sets the pair's net direction in slice to the one its membership
// implies. It is a no-op when the membership no longer agrees with intent.
func (s *sliceBuffer) Record(ctx context.Context, slice time.Time, intent domain.ToggleIntent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keys := []string{SliceKey(slice), UserLikesKey(intent.UserID)}
	args := []any{
		strconv.FormatInt(intent.UserID, 10) + ":" + strconv.FormatInt(intent.ItemID, 10),
		strconv.FormatInt(intent.ItemID, 10),
		strconv.Itoa(int(intent.Action)),
	}
	res, err := recordScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return storeErr("record slice", err)
	}
	if res == 0 {
		logrus.Debugf("membership of user %d on item %d moved on, not recording %s", intent.UserID, intent.ItemID, intent.Action)
	}
	return nil
}
