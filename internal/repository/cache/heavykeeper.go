package cache

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/Guyuepp/pretty-like/domain"
)

const lookupTableSize = 256

type bucket struct {
	mu          sync.Mutex
	fingerprint uint64
	count       int
}

// HeavyKeeper tracks approximate write frequencies and keeps the K heaviest
// keys. Cells are locked one at a time; the Top-K heap has its own lock.
type HeavyKeeper struct {
	k        int
	width    uint64
	depth    int
	minCount int
	lookup   [lookupTableSize]float64
	buckets  [][]bucket

	mu       sync.Mutex
	topK     minHeap
	index    map[string]*entry
	expelled chan domain.HotKey

	total atomic.Int64

	// random returns a float in [0, 1). Replaced in tests.
	random func() float64
}

var _ domain.HotKeyDetector = (*HeavyKeeper)(nil)

func NewHeavyKeeper(k, width, depth int, decay float64, minCount int) *HeavyKeeper {
	hk := &HeavyKeeper{
		k:        k,
		width:    uint64(width),
		depth:    depth,
		minCount: minCount,
		buckets:  make([][]bucket, depth),
		index:    make(map[string]*entry, k),
		expelled: make(chan domain.HotKey, k),
		random:   rand.Float64,
	}
	for i := range hk.buckets {
		hk.buckets[i] = make([]bucket, width)
	}
	for i := range hk.lookup {
		hk.lookup[i] = math.Pow(decay, float64(i))
	}
	return hk
}

func (hk *HeavyKeeper) Add(key string, increment int) domain.AddResult {
	if increment <= 0 {
		return domain.AddResult{}
	}
	h := xxhash.Sum64String(key)
	fp := h
	h1, h2 := h&0xffffffff, h>>32

	maxCount := 0
	for i := 0; i < hk.depth; i++ {
		b := &hk.buckets[i][(h1+uint64(i)*h2)%hk.width]
		if c := hk.touch(b, fp, increment); c > maxCount {
			maxCount = c
		}
	}
	hk.total.Add(int64(increment))

	return hk.offer(key, maxCount, maxCount >= hk.minCount)
}

// touch applies one write to a cell and returns the cell count owned by fp
// afterwards, or 0 if fp does not own the cell.
func (hk *HeavyKeeper) touch(b *bucket, fp uint64, increment int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.count == 0:
		b.fingerprint = fp
		b.count = increment
		return b.count
	case b.fingerprint == fp:
		b.count += increment
		return b.count
	}

	for j := 0; j < increment; j++ {
		if hk.random() < hk.lookup[min(b.count, lookupTableSize-1)] {
			b.count--
			if b.count == 0 {
				b.fingerprint = fp
				b.count = increment - j
				return b.count
			}
		}
	}
	return 0
}

// offer refreshes a tracked key, and admits a new one only if admit is set.
// A tracked key stays hot after fading pulls its count under minCount.
func (hk *HeavyKeeper) offer(key string, count int, admit bool) domain.AddResult {
	hk.mu.Lock()
	defer hk.mu.Unlock()

	if e, ok := hk.index[key]; ok {
		if count > e.count {
			e.count = count
			heap.Fix(&hk.topK, e.pos)
		}
		return domain.AddResult{Hot: true}
	}
	if !admit {
		return domain.AddResult{}
	}

	if len(hk.topK) < hk.k {
		hk.push(key, count)
		return domain.AddResult{Hot: true}
	}

	if count <= hk.topK[0].count {
		return domain.AddResult{}
	}

	out := heap.Pop(&hk.topK).(*entry)
	delete(hk.index, out.key)
	hk.push(key, count)

	select {
	case hk.expelled <- domain.HotKey{Key: out.key, Count: out.count}:
	default:
	}
	return domain.AddResult{Hot: true, Expelled: out.key, HasExpelled: true}
}

func (hk *HeavyKeeper) push(key string, count int) {
	e := &entry{key: key, count: count}
	heap.Push(&hk.topK, e)
	hk.index[key] = e
}

func (hk *HeavyKeeper) List() []domain.HotKey {
	hk.mu.Lock()
	res := make([]domain.HotKey, 0, len(hk.topK))
	for _, e := range hk.topK {
		res = append(res, domain.HotKey{Key: e.key, Count: e.count})
	}
	hk.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return res[i].Key < res[j].Key
	})
	return res
}

func (hk *HeavyKeeper) Expelled() <-chan domain.HotKey {
	return hk.expelled
}

func (hk *HeavyKeeper) Fading() {
	for i := range hk.buckets {
		row := hk.buckets[i]
		for j := range row {
			b := &row[j]
			b.mu.Lock()
			b.count >>= 1
			b.mu.Unlock()
		}
	}

	hk.mu.Lock()
	for _, e := range hk.topK {
		e.count >>= 1
	}
	heap.Init(&hk.topK)
	hk.mu.Unlock()

	for {
		old := hk.total.Load()
		if hk.total.CompareAndSwap(old, old>>1) {
			return
		}
	}
}

func (hk *HeavyKeeper) Total() int64 {
	return hk.total.Load()
}

type entry struct {
	key   string
	count int
	pos   int
}

// minHeap orders entries by count, smallest first.
type minHeap []*entry

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool {
	if h[i].count != h[j].count {
		return h[i].count < h[j].count
	}
	return h[i].key < h[j].key
}

func (h minHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *minHeap) Push(x any) {
	e := x.(*entry)
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
