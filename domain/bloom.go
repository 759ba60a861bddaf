package domain

import "context"

type BloomRepository interface {
	// Add puts an item ID into the filter
	Add(ctx context.Context, id int64) error

	// Exists reports whether the ID may exist.
	// true: may exist (check cache/DB)
	// false: definitely absent
	Exists(ctx context.Context, id int64) (bool, error)

	// BulkAdd adds many IDs in one round trip
	BulkAdd(ctx context.Context, ids []int64) error
}
