package like

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
)

const filterPageSize = 1000

// LikeStateReader reads a user's like state through the cache tiers.
type LikeStateReader interface {
	Get(ctx context.Context, namespace, field string) (string, bool, error)
}

type Service struct {
	executor domain.ToggleExecutor
	items    domain.ItemRepository
	bloom    domain.BloomRepository
	state    LikeStateReader
	detector domain.HotKeyDetector
	validate *validator.Validate
}

var _ domain.LikeUsecase = (*Service)(nil)

func NewService(executor domain.ToggleExecutor, items domain.ItemRepository, bloom domain.BloomRepository,
	state LikeStateReader, detector domain.HotKeyDetector) *Service {
	return &Service{
		executor: executor,
		items:    items,
		bloom:    bloom,
		state:    state,
		detector: detector,
		validate: validator.New(),
	}
}

// admit rejects malformed intents and items the filter knows cannot exist.
func (s *Service) admit(ctx context.Context, intent domain.ToggleIntent) error {
	if err := s.validate.Struct(intent); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadParamInput, err)
	}

	ok, err := s.bloom.Exists(ctx, intent.ItemID)
	if err != nil {
		logrus.Warnf("item filter unavailable, admitting item %d: %v", intent.ItemID, err)
		return nil
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) toggle(ctx context.Context, userID, itemID int64, action domain.LikeAction) error {
	intent := domain.ToggleIntent{UserID: userID, ItemID: itemID, Action: action, Timestamp: time.Now()}
	if err := s.admit(ctx, intent); err != nil {
		return err
	}

	var err error
	if action == domain.Like {
		err = s.executor.Like(ctx, userID, itemID)
	} else {
		err = s.executor.Unlike(ctx, userID, itemID)
	}
	if err != nil {
		return err
	}

	s.detector.Add(domain.HotItemKey(itemID), 1)
	return nil
}

func (s *Service) Like(ctx context.Context, userID, itemID int64) error {
	return s.toggle(ctx, userID, itemID, domain.Like)
}

func (s *Service) Unlike(ctx context.Context, userID, itemID int64) error {
	return s.toggle(ctx, userID, itemID, domain.Unlike)
}

func (s *Service) GetItem(ctx context.Context, userID, itemID int64) (domain.ItemView, error) {
	if itemID <= 0 {
		return domain.ItemView{}, domain.ErrBadParamInput
	}
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return domain.ItemView{}, err
	}

	view := domain.ItemView{Item: item}
	if userID <= 0 {
		return view, nil
	}
	v, ok, err := s.state.Get(ctx, domain.UserLikesNamespace(userID), strconv.FormatInt(itemID, 10))
	if err != nil {
		logrus.Warnf("failed to read like state of user %d on item %d: %v", userID, itemID, err)
		return view, nil
	}
	view.Liked = ok && v != unlikedValue
	return view, nil
}

func (s *Service) HotItems(_ context.Context) []domain.HotKey {
	return s.detector.List()
}

// InitItemFilter loads every item ID into the existence filter.
func (s *Service) InitItemFilter(ctx context.Context) error {
	start := time.Now()
	var cursor, total int64
	for {
		ids, err := s.items.FetchIDs(ctx, cursor, filterPageSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}
		if err := s.bloom.BulkAdd(ctx, ids); err != nil {
			return err
		}
		total += int64(len(ids))
		cursor = ids[len(ids)-1]
		if len(ids) < filterPageSize {
			break
		}
	}
	logrus.Infof("item filter loaded %d ids in %v", total, time.Since(start))
	return nil
}
