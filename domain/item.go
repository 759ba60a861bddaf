package domain

import (
	"context"
	"time"
)

// Item is a likeable content item
type Item struct {
	ID        int64
	Title     string
	LikeCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemView is an item as seen by one user.
type ItemView struct {
	Item
	Liked bool
}

type ItemRepository interface {
	// GetByID returns ErrNotFound if the item doesn't exist.
	GetByID(ctx context.Context, id int64) (Item, error)

	// FetchIDs returns up to limit item IDs greater than cursor, ascending.
	FetchIDs(ctx context.Context, cursor, limit int64) ([]int64, error)
}
