package repository

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/Guyuepp/pretty-like/domain"
)

// itemRepository coalesces concurrent loads of the same item into one
// database round trip.
type itemRepository struct {
	db    domain.ItemRepository
	group singleflight.Group
}

var _ domain.ItemRepository = (*itemRepository)(nil)

func NewItemRepository(db domain.ItemRepository) *itemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) GetByID(ctx context.Context, id int64) (domain.Item, error) {
	res, err, _ := r.group.Do("item:"+strconv.FormatInt(id, 10), func() (any, error) {
		return r.db.GetByID(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return domain.Item{}, err
	}
	return res.(domain.Item), nil
}

func (r *itemRepository) FetchIDs(ctx context.Context, cursor, limit int64) ([]int64, error) {
	return r.db.FetchIDs(ctx, cursor, limit)
}
