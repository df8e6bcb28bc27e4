package indexer

import (
	"math"
	"reflect"
	"testing"
)

func TestSplitRange(t *testing.T) {
	got, err := SplitRange(100, 125, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []BlockRange{
		{From: 100, To: 109},
		{From: 110, To: 119},
		{From: 120, To: 125},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitRangeEdges(t *testing.T) {
	got, err := SplitRange(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []BlockRange{{From: 5, To: 5}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}

	got, err = SplitRange(math.MaxUint64-1, math.MaxUint64, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].To != math.MaxUint64 {
		t.Fatalf("unexpected ranges at the top of the block space: %+v", got)
	}

	if _, err := SplitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := SplitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}
}

func TestResolveRange(t *testing.T) {
	cases := []struct {
		name                          string
		from, tip, confirmations, max uint64
		want                          BlockRange
		ok                            bool
	}{
		{name: "up to tip", from: 100, tip: 125, want: BlockRange{From: 100, To: 125}, ok: true},
		{name: "confirmations", from: 100, tip: 130, confirmations: 10, want: BlockRange{From: 100, To: 120}, ok: true},
		{name: "max range", from: 100, tip: 10_000, confirmations: 5, max: 50, want: BlockRange{From: 100, To: 149}, ok: true},
		{name: "caught up", from: 126, tip: 125, want: BlockRange{From: 126, To: 125}},
		{name: "tip below depth", from: 0, tip: 5, confirmations: 10, want: BlockRange{From: 0}},
	}
	for _, tc := range cases {
		got, ok := ResolveRange(tc.from, tc.tip, tc.confirmations, tc.max)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: got %+v ok=%v, want %+v ok=%v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
