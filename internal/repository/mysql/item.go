package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/repository/mysql/model"
)

type itemRepository struct {
	DB *gorm.DB
}

var _ domain.ItemRepository = (*itemRepository)(nil)

func NewItemRepository(db *gorm.DB) *itemRepository {
	return &itemRepository{db}
}

func (m *itemRepository) GetByID(ctx context.Context, id int64) (domain.Item, error) {
	var item model.Item
	err := m.DB.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Item{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, err
	}
	return item.ToDomain(), nil
}

func (m *itemRepository) FetchIDs(ctx context.Context, cursor, limit int64) (ids []int64, err error) {
	err = m.DB.WithContext(ctx).
		Model(&model.Item{}).
		Where("id > ?", cursor).
		Order("id").
		Limit(int(limit)).
		Pluck("id", &ids).Error
	return
}
