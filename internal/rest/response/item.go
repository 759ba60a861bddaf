package response

import (
	"github.com/Guyuepp/pretty-like/domain"
)

type Item struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	LikeCount int64  `json:"like_count"`
	Liked     bool   `json:"liked"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// NewItemFromDomain: Domain -> Response
func NewItemFromDomain(v *domain.ItemView) Item {
	return Item{
		ID:        v.ID,
		Title:     v.Title,
		LikeCount: v.LikeCount,
		Liked:     v.Liked,
		CreatedAt: v.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt: v.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

type Toggle struct {
	ItemID int64  `json:"item_id"`
	Action string `json:"action"`
}
