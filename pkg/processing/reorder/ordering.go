package reorder

import (
	"cmp"
	"slices"
	"time"

	"github.com/aarondl/opt/omit"

	"github.com/mpapenbr/racegrid/pkg/model"
)

// Key holds the values a slot is ordered by
type Key struct {
	Position  int
	PB        omit.Val[time.Duration]
	Frequency int
	Channel   model.ChannelID
}

// Compare orders by position, PB (missing last) and frequency.
// Without a ranked result only the frequency counts.
// The channel id is the final tie breaker to keep the order deterministic.
func Compare(a, b Key, ranked bool) int {
	if ranked {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		if c := comparePB(a.PB, b.PB); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Frequency, b.Frequency); c != 0 {
		return c
	}
	return cmp.Compare(a.Channel, b.Channel)
}

func comparePB(a, b omit.Val[time.Duration]) int {
	av, aok := a.Get()
	bv, bok := b.Get()
	switch {
	case aok && bok:
		return cmp.Compare(av, bv)
	case aok:
		return -1
	case bok:
		return 1
	}
	return 0
}

// Order returns a sorted copy of items.
// The sentinel position is the largest position, so unranked slots sort last.
func Order[T any](items []T, key func(T) Key, ranked bool) []T {
	ret := slices.Clone(items)
	slices.SortStableFunc(ret, func(a, b T) int {
		return Compare(key(a), key(b), ranked)
	})
	return ret
}
