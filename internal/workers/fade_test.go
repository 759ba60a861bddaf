package workers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Guyuepp/pretty-like/internal/repository/cache"
)

func TestFadeJob_HalvesAndDrainsExpelled(t *testing.T) {
	hk := cache.NewHeavyKeeper(1, 1000, 5, 0.92, 1)
	for i := 0; i < 8; i++ {
		hk.Add("a", 1)
	}
	for i := 0; i < 10; i++ {
		hk.Add("b", 1)
	}
	total := hk.Total()

	NewFadeJob(hk).OnFadeTick(context.TODO())

	assert.Equal(t, total/2, hk.Total())
	assert.Equal(t, 5, hk.List()[0].Count)
	select {
	case k := <-hk.Expelled():
		t.Fatalf("expelled feed not drained, got %v", k)
	default:
	}
}
