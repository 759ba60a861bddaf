package like

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Guyuepp/pretty-like/domain"
)

type mockLikeDB struct{ mock.Mock }

func (m *mockLikeDB) ApplyLikeChanges(ctx context.Context, changes domain.LikeStateChanges) (domain.CounterDelta, error) {
	args := m.Called(ctx, changes)
	delta, _ := args.Get(0).(domain.CounterDelta)
	return delta, args.Error(1)
}

func (m *mockLikeDB) ApplySliceChanges(ctx context.Context, slice time.Time, changes domain.LikeStateChanges) (bool, error) {
	args := m.Called(ctx, slice, changes)
	return args.Bool(0), args.Error(1)
}

func (m *mockLikeDB) AddLikeRecord(ctx context.Context, userID, itemID int64) (domain.UserLike, error) {
	args := m.Called(ctx, userID, itemID)
	return args.Get(0).(domain.UserLike), args.Error(1)
}

func (m *mockLikeDB) RemoveLikeRecord(ctx context.Context, userID, itemID int64) error {
	return m.Called(ctx, userID, itemID).Error(0)
}

func (m *mockLikeDB) FetchUserLikedItems(ctx context.Context, userID int64) ([]int64, error) {
	args := m.Called(ctx, userID)
	items, _ := args.Get(0).([]int64)
	return items, args.Error(1)
}

type mockLikeCache struct{ mock.Mock }

func (m *mockLikeCache) HGet(ctx context.Context, key, field string) (string, error) {
	args := m.Called(ctx, key, field)
	return args.String(0), args.Error(1)
}

func (m *mockLikeCache) MirrorLike(ctx context.Context, rec domain.UserLike) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockLikeCache) MirrorUnlike(ctx context.Context, userID, itemID int64) error {
	return m.Called(ctx, userID, itemID).Error(0)
}

func (m *mockLikeCache) ToggleInSlice(ctx context.Context, slice time.Time, intent domain.ToggleIntent) error {
	return m.Called(ctx, slice, intent).Error(0)
}

func (m *mockLikeCache) ToggleMembership(ctx context.Context, intent domain.ToggleIntent) error {
	return m.Called(ctx, intent).Error(0)
}

func (m *mockLikeCache) RevertMembership(ctx context.Context, intent domain.ToggleIntent) error {
	return m.Called(ctx, intent).Error(0)
}

func (m *mockLikeCache) UserLikedItems(ctx context.Context, userID int64) ([]int64, error) {
	args := m.Called(ctx, userID)
	items, _ := args.Get(0).([]int64)
	return items, args.Error(1)
}

func (m *mockLikeCache) ScanUserIDs(ctx context.Context, fn func(userID int64) error) error {
	return m.Called(ctx, fn).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, ev domain.LikeEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type mockRefresher struct{ mock.Mock }

func (m *mockRefresher) PutIfPresent(namespace, field, value string) {
	m.Called(namespace, field, value)
}

type mockExecutor struct{ mock.Mock }

func (m *mockExecutor) Like(ctx context.Context, userID, itemID int64) error {
	return m.Called(ctx, userID, itemID).Error(0)
}

func (m *mockExecutor) Unlike(ctx context.Context, userID, itemID int64) error {
	return m.Called(ctx, userID, itemID).Error(0)
}

type mockItems struct{ mock.Mock }

func (m *mockItems) GetByID(ctx context.Context, id int64) (domain.Item, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Item), args.Error(1)
}

func (m *mockItems) FetchIDs(ctx context.Context, cursor, limit int64) ([]int64, error) {
	args := m.Called(ctx, cursor, limit)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

type mockBloom struct{ mock.Mock }

func (m *mockBloom) Add(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockBloom) Exists(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockBloom) BulkAdd(ctx context.Context, ids []int64) error {
	return m.Called(ctx, ids).Error(0)
}

type mockStateReader struct{ mock.Mock }

func (m *mockStateReader) Get(ctx context.Context, namespace, field string) (string, bool, error) {
	args := m.Called(ctx, namespace, field)
	return args.String(0), args.Bool(1), args.Error(2)
}
