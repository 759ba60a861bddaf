package model

import (
	"time"

	"github.com/Guyuepp/pretty-like/domain"
)

type Item struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Title     string    `gorm:"type:varchar(255);not null"`
	LikeCount int64     `gorm:"column:like_count;not null;default:0"`
	UpdatedAt time.Time `gorm:"type:datetime"`
	CreatedAt time.Time `gorm:"type:datetime"`
}

func (Item) TableName() string {
	return "item"
}

func (m *Item) ToDomain() domain.Item {
	return domain.Item{
		ID:        m.ID,
		Title:     m.Title,
		LikeCount: m.LikeCount,
		UpdatedAt: m.UpdatedAt,
		CreatedAt: m.CreatedAt,
	}
}
