package model

import (
	"time"

	"github.com/Guyuepp/pretty-like/domain"
)

type UserLike struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:uk_user_item"`
	ItemID    int64     `gorm:"column:item_id;not null;uniqueIndex:uk_user_item"`
	CreatedAt time.Time `gorm:"type:datetime"`
}

func (UserLike) TableName() string {
	return "user_likes"
}

func NewUserLikeFromDomain(ul domain.UserLike) UserLike {
	return UserLike{
		ID:        ul.ID,
		UserID:    ul.UserID,
		ItemID:    ul.ItemID,
		CreatedAt: ul.CreatedAt,
	}
}

func (m *UserLike) ToDomain() domain.UserLike {
	return domain.UserLike{
		ID:        m.ID,
		UserID:    m.UserID,
		ItemID:    m.ItemID,
		CreatedAt: m.CreatedAt,
	}
}

// LikeSliceLog marks a time slice as applied. It is written in the same
// transaction as the slice's changes.
type LikeSliceLog struct {
	Slice     string    `gorm:"primaryKey;type:char(14)"`
	CreatedAt time.Time `gorm:"type:datetime"`
}

func (LikeSliceLog) TableName() string {
	return "like_slice_log"
}
