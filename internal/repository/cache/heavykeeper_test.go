package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guyuepp/pretty-like/domain"
)

func addN(hk *HeavyKeeper, key string, n int) domain.AddResult {
	var res domain.AddResult
	for i := 0; i < n; i++ {
		res = hk.Add(key, 1)
	}
	return res
}

func TestHeavyKeeper_BelowMinCountNeverListed(t *testing.T) {
	hk := NewHeavyKeeper(10, 1000, 3, 0.92, 10)

	res := addN(hk, "item:1", 9)

	assert.False(t, res.Hot)
	assert.Empty(t, hk.List())
	assert.Equal(t, int64(9), hk.Total())

	res = hk.Add("item:1", 1)
	assert.True(t, res.Hot)
	assert.Equal(t, []domain.HotKey{{Key: "item:1", Count: 10}}, hk.List())
}

func TestHeavyKeeper_ListOrderedByCount(t *testing.T) {
	hk := NewHeavyKeeper(10, 1000, 3, 0.92, 1)

	addN(hk, "a", 3)
	addN(hk, "b", 7)
	addN(hk, "c", 5)

	assert.Equal(t, []domain.HotKey{
		{Key: "b", Count: 7},
		{Key: "c", Count: 5},
		{Key: "a", Count: 3},
	}, hk.List())
}

func TestHeavyKeeper_ExpelsMinimumExactlyOnce(t *testing.T) {
	hk := NewHeavyKeeper(2, 1000, 3, 0.92, 1)

	addN(hk, "a", 5)
	addN(hk, "b", 6)

	var expelled []string
	for i := 0; i < 10; i++ {
		res := hk.Add("c", 1)
		if res.HasExpelled {
			expelled = append(expelled, res.Expelled)
		}
	}

	assert.Equal(t, []string{"a"}, expelled)
	list := hk.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.HotKey{Key: "c", Count: 10}, list[0])
	assert.Equal(t, domain.HotKey{Key: "b", Count: 6}, list[1])

	select {
	case got := <-hk.Expelled():
		assert.Equal(t, domain.HotKey{Key: "a", Count: 5}, got)
	default:
		t.Fatal("expected an expelled key on the feed")
	}
	select {
	case got := <-hk.Expelled():
		t.Fatalf("unexpected second expelled key %v", got)
	default:
	}
}

func TestHeavyKeeper_EqualCountDoesNotExpel(t *testing.T) {
	hk := NewHeavyKeeper(1, 1000, 3, 0.92, 1)

	addN(hk, "a", 3)
	res := addN(hk, "b", 3)

	assert.False(t, res.Hot)
	assert.Equal(t, []domain.HotKey{{Key: "a", Count: 3}}, hk.List())
}

func TestHeavyKeeper_SizeNeverExceedsK(t *testing.T) {
	hk := NewHeavyKeeper(5, 10000, 4, 0.92, 1)

	for i := 0; i < 50; i++ {
		addN(hk, fmt.Sprintf("item:%d", i), i+1)
		assert.LessOrEqual(t, len(hk.List()), 5)
	}
}

func TestHeavyKeeper_FadingHalvesCounts(t *testing.T) {
	hk := NewHeavyKeeper(10, 1000, 3, 0.92, 1)

	addN(hk, "a", 9)
	addN(hk, "b", 4)
	addN(hk, "c", 1)

	hk.Fading()

	assert.Equal(t, []domain.HotKey{
		{Key: "a", Count: 4},
		{Key: "b", Count: 2},
		{Key: "c", Count: 0},
	}, hk.List())
	assert.Equal(t, int64(7), hk.Total())

	// cells were halved too, so the next write continues from the faded count
	hk.Add("a", 1)
	assert.Equal(t, domain.HotKey{Key: "a", Count: 5}, hk.List()[0])
}

func TestHeavyKeeper_FadedMemberStaysHot(t *testing.T) {
	hk := NewHeavyKeeper(10, 1000, 3, 0.92, 10)
	require.True(t, addN(hk, "item:1", 10).Hot)

	hk.Fading()
	res := hk.Add("item:1", 1)

	assert.True(t, res.Hot)
	assert.Equal(t, []domain.HotKey{{Key: "item:1", Count: 6}}, hk.List())

	// an untracked key under minCount is still not admitted
	assert.False(t, addN(hk, "item:2", 9).Hot)
	assert.Len(t, hk.List(), 1)
}

func TestHeavyKeeper_DecayTakesOverCell(t *testing.T) {
	hk := NewHeavyKeeper(10, 1, 1, 0.92, 1)
	hk.random = func() float64 { return 0 }

	hk.Add("a", 1)
	res := hk.Add("b", 1)

	assert.True(t, res.Hot)
	counts := map[string]int{}
	for _, k := range hk.List() {
		counts[k.Key] = k.Count
	}
	assert.Equal(t, 1, counts["b"])
}

func TestHeavyKeeper_DecayMissKeepsOwner(t *testing.T) {
	hk := NewHeavyKeeper(10, 1, 1, 0.92, 1)
	hk.random = func() float64 { return 0.999 }

	addN(hk, "a", 3)
	res := hk.Add("b", 1)

	assert.False(t, res.Hot)
	assert.Equal(t, []domain.HotKey{{Key: "a", Count: 3}}, hk.List())
}

func TestHeavyKeeper_ConcurrentWriters(t *testing.T) {
	hk := NewHeavyKeeper(100, 10000, 5, 0.92, 10)

	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hk.Add("item:42", 1)
			hk.Add(fmt.Sprintf("noise:%d", i), 1)
		}(i)
	}
	wg.Wait()

	list := hk.List()
	require.NotEmpty(t, list)
	assert.Equal(t, "item:42", list[0].Key)
	assert.Equal(t, 1000, list[0].Count)
	assert.Equal(t, int64(2000), hk.Total())
}
