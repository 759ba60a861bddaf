package workers

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Guyuepp/pretty-like/domain"
)

type pairKey struct {
	userID, itemID int64
}

// eventGroup is every message of one batch for a single (user, item) pair,
// oldest first.
type eventGroup struct {
	key  pairKey
	msgs []domain.Message
}

// survivor is the group's net result. An even number of toggles cancels out;
// an odd number leaves the latest one.
func (g eventGroup) survivor() (domain.LikeEvent, bool) {
	if len(g.msgs)%2 == 0 {
		return domain.LikeEvent{}, false
	}
	return *g.msgs[len(g.msgs)-1].Event, true
}

// groupEvents groups decoded messages by pair and orders each group by event
// time, then by stream ID.
func groupEvents(msgs []domain.Message) []eventGroup {
	index := make(map[pairKey]int)
	var groups []eventGroup
	for _, m := range msgs {
		if m.Event == nil {
			continue
		}
		k := pairKey{userID: m.Event.UserID, itemID: m.Event.ItemID}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, eventGroup{key: k})
		}
		groups[i].msgs = append(groups[i].msgs, m)
	}

	for _, g := range groups {
		sort.SliceStable(g.msgs, func(i, j int) bool {
			a, b := g.msgs[i], g.msgs[j]
			if !a.Event.EventTime.Equal(b.Event.EventTime) {
				return a.Event.EventTime.Before(b.Event.EventTime)
			}
			return compareStreamIDs(a.ID, b.ID) < 0
		})
	}
	return groups
}

// compareStreamIDs orders "<ms>-<seq>" IDs numerically.
func compareStreamIDs(a, b string) int {
	am, as, _ := strings.Cut(a, "-")
	bm, bs, _ := strings.Cut(b, "-")
	for _, p := range [][2]string{{am, bm}, {as, bs}} {
		x, err1 := strconv.ParseUint(p[0], 10, 64)
		y, err2 := strconv.ParseUint(p[1], 10, 64)
		if err1 != nil || err2 != nil {
			return strings.Compare(a, b)
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func groupChanges(groups []eventGroup) domain.LikeStateChanges {
	var changes domain.LikeStateChanges
	for _, g := range groups {
		ev, ok := g.survivor()
		if !ok {
			continue
		}
		row := domain.UserLike{UserID: ev.UserID, ItemID: ev.ItemID, CreatedAt: ev.EventTime}
		if ev.Action == domain.Like {
			changes.ToAdd = append(changes.ToAdd, row)
		} else {
			changes.ToRemove = append(changes.ToRemove, row)
		}
	}
	return changes
}

// sliceChanges turns the net directions read from a slice into row changes.
func sliceChanges(intents []domain.ToggleIntent) domain.LikeStateChanges {
	var changes domain.LikeStateChanges
	for _, in := range intents {
		row := domain.UserLike{UserID: in.UserID, ItemID: in.ItemID, CreatedAt: in.Timestamp}
		switch in.Action {
		case domain.Like:
			changes.ToAdd = append(changes.ToAdd, row)
		case domain.Unlike:
			changes.ToRemove = append(changes.ToRemove, row)
		}
	}
	return changes
}
