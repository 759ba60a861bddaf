package mysql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/repository/mysql/model"
)

const (
	// pairChunk bounds the OR-composed predicates per statement.
	pairChunk = 500

	errDuplicateEntry = 1062
)

type likeRepository struct {
	DB *gorm.DB
}

var _ domain.LikeDBRepository = (*likeRepository)(nil)

func NewLikeRepository(db *gorm.DB) *likeRepository {
	return &likeRepository{db}
}

type pair struct {
	userID int64
	itemID int64
}

func pairOf(ul domain.UserLike) pair {
	return pair{userID: ul.UserID, itemID: ul.ItemID}
}

// pairsPredicate builds "(user_id = ? AND item_id = ?) OR ..." for pairs.
func pairsPredicate(pairs []pair) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, 2*len(pairs))
	for i, p := range pairs {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(user_id = ? AND item_id = ?)")
		args = append(args, p.userID, p.itemID)
	}
	return sb.String(), args
}

func chunks(pairs []pair) [][]pair {
	var res [][]pair
	for len(pairs) > pairChunk {
		res = append(res, pairs[:pairChunk])
		pairs = pairs[pairChunk:]
	}
	if len(pairs) > 0 {
		res = append(res, pairs)
	}
	return res
}

func uniquePairs(rows []domain.UserLike) []pair {
	seen := make(map[pair]struct{}, len(rows))
	res := make([]pair, 0, len(rows))
	for _, row := range rows {
		p := pairOf(row)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		res = append(res, p)
	}
	return res
}

func (m *likeRepository) ApplyLikeChanges(ctx context.Context, changes domain.LikeStateChanges) (domain.CounterDelta, error) {
	var delta domain.CounterDelta
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		delta, err = applyChanges(tx, changes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return delta, nil
}

func (m *likeRepository) ApplySliceChanges(ctx context.Context, slice time.Time, changes domain.LikeStateChanges) (bool, error) {
	applied := false
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		marker := model.LikeSliceLog{Slice: slice.UTC().Format("20060102150405")}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		_, err := applyChanges(tx, changes)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// applyChanges skips rows whose target state already holds and returns the
// delta of what it actually wrote.
func applyChanges(tx *gorm.DB, changes domain.LikeStateChanges) (domain.CounterDelta, error) {
	delta := make(domain.CounterDelta)
	if changes.Empty() {
		return delta, nil
	}

	adds, removes := uniquePairs(changes.ToAdd), uniquePairs(changes.ToRemove)
	existing, err := existingPairs(tx, append(append([]pair{}, adds...), removes...))
	if err != nil {
		return nil, err
	}

	toAdd := make([]pair, 0, len(adds))
	for _, p := range adds {
		if _, ok := existing[p]; !ok {
			toAdd = append(toAdd, p)
		}
	}
	toRemove := make([]pair, 0, len(removes))
	for _, p := range removes {
		if _, ok := existing[p]; ok {
			toRemove = append(toRemove, p)
		}
	}

	toAdd, err = dropOrphans(tx, toAdd)
	if err != nil {
		return nil, err
	}

	if len(toAdd) > 0 {
		rows := make([]model.UserLike, len(toAdd))
		for i, p := range toAdd {
			rows[i] = model.UserLike{UserID: p.userID, ItemID: p.itemID}
		}
		if err := tx.CreateInBatches(&rows, pairChunk).Error; err != nil {
			return nil, err
		}
		for _, p := range toAdd {
			delta[p.itemID]++
		}
	}

	for _, chunk := range chunks(toRemove) {
		query, args := pairsPredicate(chunk)
		if err := tx.Where(query, args...).Delete(&model.UserLike{}).Error; err != nil {
			return nil, err
		}
	}
	for _, p := range toRemove {
		delta[p.itemID]--
	}

	for iid, d := range delta {
		if d == 0 {
			delete(delta, iid)
		}
	}
	if err := updateCounts(tx, delta); err != nil {
		return nil, err
	}
	return delta, nil
}

func existingPairs(tx *gorm.DB, pairs []pair) (map[pair]struct{}, error) {
	res := make(map[pair]struct{}, len(pairs))
	for _, chunk := range chunks(pairs) {
		var rows []model.UserLike
		query, args := pairsPredicate(chunk)
		if err := tx.Select("user_id", "item_id").Where(query, args...).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			res[pair{userID: row.UserID, itemID: row.ItemID}] = struct{}{}
		}
	}
	return res, nil
}

func dropOrphans(tx *gorm.DB, pairs []pair) ([]pair, error) {
	if len(pairs) == 0 {
		return pairs, nil
	}
	ids := make([]int64, 0, len(pairs))
	seen := make(map[int64]bool)
	for _, p := range pairs {
		if !seen[p.itemID] {
			ids = append(ids, p.itemID)
			seen[p.itemID] = true
		}
	}

	var validIDs []int64
	if err := tx.Model(&model.Item{}).Where("id IN ?", ids).Pluck("id", &validIDs).Error; err != nil {
		return nil, err
	}
	valid := make(map[int64]bool, len(validIDs))
	for _, id := range validIDs {
		valid[id] = true
	}

	res := pairs[:0]
	for _, p := range pairs {
		if valid[p.itemID] {
			res = append(res, p)
		} else {
			logrus.Warnf("dropped orphan like of user %d for item %d", p.userID, p.itemID)
		}
	}
	return res, nil
}

// updateCounts applies every item's delta with one CASE statement.
func updateCounts(tx *gorm.DB, delta domain.CounterDelta) error {
	if len(delta) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(delta))
	for iid := range delta {
		ids = append(ids, iid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sb strings.Builder
	args := make([]any, 0, 2*len(ids))
	sb.WriteString("like_count + CASE id")
	for _, iid := range ids {
		sb.WriteString(" WHEN ? THEN ?")
		args = append(args, iid, delta[iid])
	}
	sb.WriteString(" ELSE 0 END")

	return tx.Model(&model.Item{}).
		Where("id IN ?", ids).
		UpdateColumn("like_count", gorm.Expr(sb.String(), args...)).Error
}

func (m *likeRepository) AddLikeRecord(ctx context.Context, userID, itemID int64) (domain.UserLike, error) {
	rec := model.UserLike{UserID: userID, ItemID: itemID}
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.UserLike{}).
			Where("user_id = ? AND item_id = ?", userID, itemID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrAlreadyLiked
		}

		res := tx.Model(&model.Item{}).
			Where("id = ?", itemID).
			UpdateColumn("like_count", gorm.Expr("like_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		err := tx.Create(&rec).Error
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
			return domain.ErrAlreadyLiked
		}
		return err
	})
	if err != nil {
		return domain.UserLike{}, err
	}
	return rec.ToDomain(), nil
}

func (m *likeRepository) RemoveLikeRecord(ctx context.Context, userID, itemID int64) error {
	return m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND item_id = ?", userID, itemID).Delete(&model.UserLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotLiked
		}

		res = tx.Model(&model.Item{}).
			Where("id = ?", itemID).
			UpdateColumn("like_count", gorm.Expr("like_count - ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("item %d of removed like: %w", itemID, domain.ErrNotFound)
		}
		return nil
	})
}

func (m *likeRepository) FetchUserLikedItems(ctx context.Context, userID int64) ([]int64, error) {
	var res []int64
	err := m.DB.WithContext(ctx).
		Model(&model.UserLike{}).
		Where("user_id = ?", userID).
		Order("item_id").
		Pluck("item_id", &res).Error
	return res, err
}
