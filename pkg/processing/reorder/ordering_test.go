//nolint:funlen // ok for tests
package reorder

import (
	"testing"
	"time"

	"github.com/aarondl/opt/omit"
	"github.com/google/go-cmp/cmp"

	"github.com/mpapenbr/racegrid/pkg/model"
)

type item struct {
	name string
	key  Key
}

func keyOf(i item) Key { return i.key }

func names(items []item) []string {
	ret := make([]string, len(items))
	for i := range items {
		ret[i] = items[i].name
	}
	return ret
}

func TestOrder(t *testing.T) {
	const sentinel = 8
	pb := func(s int) omit.Val[time.Duration] { return omit.From(time.Duration(s) * time.Second) }
	items := []item{
		{"unranked-low", Key{Position: sentinel, Frequency: 5658, Channel: 1}},
		{"p2-nopb", Key{Position: 2, Frequency: 5695, Channel: 2}},
		{"p2-pb20", Key{Position: 2, PB: pb(20), Frequency: 5917, Channel: 8}},
		{"p1", Key{Position: 1, PB: pb(30), Frequency: 5880, Channel: 7}},
		{"p2-pb20-low", Key{Position: 2, PB: pb(20), Frequency: 5732, Channel: 3}},
		{"unranked-high", Key{Position: sentinel, Frequency: 5843, Channel: 6}},
	}

	tests := []struct {
		name   string
		ranked bool
		want   []string
	}{
		{
			name:   "ranked",
			ranked: true,
			want: []string{
				"p1", "p2-pb20-low", "p2-pb20", "p2-nopb", "unranked-low", "unranked-high",
			},
		},
		{
			name:   "unranked uses frequency only",
			ranked: false,
			want: []string{
				"unranked-low", "p2-nopb", "p2-pb20-low", "unranked-high", "p1", "p2-pb20",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(Order(items, keyOf, tt.ranked))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Order() mismatch: %s", diff)
			}
		})
	}
}

func TestOrder_Stable(t *testing.T) {
	// equal position and PB, broken only by frequency, independent of input order
	a := item{"a", Key{Position: 3, PB: omit.From(time.Second), Frequency: 5800, Channel: 2}}
	b := item{"b", Key{Position: 3, PB: omit.From(time.Second), Frequency: 5700, Channel: 5}}
	for i := 0; i < 10; i++ {
		in := []item{a, b}
		if i%2 == 1 {
			in = []item{b, a}
		}
		if diff := cmp.Diff([]string{"b", "a"}, names(Order(in, keyOf, true))); diff != "" {
			t.Fatalf("run %d: %s", i, diff)
		}
	}
}

func TestOrder_DoesNotModifyInput(t *testing.T) {
	in := []item{
		{"x", Key{Position: 2, Channel: model.ChannelID(1)}},
		{"y", Key{Position: 1, Channel: model.ChannelID(2)}},
	}
	_ = Order(in, keyOf, true)
	if in[0].name != "x" {
		t.Errorf("input modified")
	}
}
