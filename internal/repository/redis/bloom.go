package redis

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Guyuepp/pretty-like/domain"
)

const (
	KeyItemBloom = "bloom:item:ids"

	bloomHashes = 3
)

type redisBloomRepo struct {
	client       *redis.Client
	BloomBitSize uint64
}

var _ domain.BloomRepository = (*redisBloomRepo)(nil)

func NewRedisBloomRepo(client *redis.Client, bitSize uint64) *redisBloomRepo {
	return &redisBloomRepo{
		client:       client,
		BloomBitSize: bitSize,
	}
}

func (r *redisBloomRepo) Add(ctx context.Context, id int64) error {
	pipe := r.client.Pipeline()
	for _, offset := range r.offsets(id) {
		pipe.SetBit(ctx, KeyItemBloom, int64(offset), 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("bloom add", err)
	}
	return nil
}

func (r *redisBloomRepo) Exists(ctx context.Context, id int64) (bool, error) {
	pipe := r.client.Pipeline()
	for _, offset := range r.offsets(id) {
		pipe.GetBit(ctx, KeyItemBloom, int64(offset))
	}
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return false, storeErr("bloom exists", err)
	}

	for _, cmd := range cmds {
		if cmd.(*redis.IntCmd).Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// offsets derives the bit positions by double hashing one xxhash sum.
func (r *redisBloomRepo) offsets(id int64) []uint64 {
	h := xxhash.Sum64String(strconv.FormatInt(id, 10))
	h1, h2 := h&0xffffffff, h>>32|1

	res := make([]uint64, bloomHashes)
	for i := range res {
		res[i] = (h1 + uint64(i)*h2) % r.BloomBitSize
	}
	return res
}

func (r *redisBloomRepo) BulkAdd(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, id := range ids {
		for _, offset := range r.offsets(id) {
			pipe.SetBit(ctx, KeyItemBloom, int64(offset), 1)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("bloom bulk add", err)
	}
	return nil
}
