package request

type Toggle struct {
	ItemID int64 `json:"item_id" binding:"required,gt=0"`
}
