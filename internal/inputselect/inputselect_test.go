package inputselect

import (
	"errors"
	"testing"

	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
)

func TestSelectExactMatch(t *testing.T) {
	inputs := []Input{
		{Address: "a", AvailableBalance: 100},
		{Address: "b", AvailableBalance: 250},
	}
	selected, err := Select(250, inputs)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(selected) != 1 || selected[0].Address != "b" {
		t.Errorf("expected exact match on b, got %+v", selected)
	}
}

func TestSelectSmallestSingleCovering(t *testing.T) {
	inputs := []Input{
		{Address: "a", AvailableBalance: 500},
		{Address: "b", AvailableBalance: 300},
		{Address: "c", AvailableBalance: 1000},
	}
	selected, err := Select(250, inputs)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(selected) != 1 || selected[0].Address != "b" {
		t.Errorf("expected smallest covering input (b, 300), got %+v", selected)
	}
}

func TestSelectAccumulatesInternalFirst(t *testing.T) {
	inputs := []Input{
		{Address: "pub0", Internal: false, AvailableBalance: 40},
		{Address: "int0", Internal: true, AvailableBalance: 60},
		{Address: "int1", Internal: true, AvailableBalance: 50},
	}
	selected, err := Select(90, inputs)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(selected) != 2 || selected[0].Address != "int0" || selected[1].Address != "int1" {
		t.Errorf("expected internal inputs int0 then int1 (60 < 90, needs more): got %+v", selected)
	}
	// int0 alone (60) doesn't cover 90, so it should accumulate int1 too.
	selected, err = Select(100, inputs)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	total := uint64(0)
	for _, in := range selected {
		total += in.AvailableBalance
		if !in.Internal {
			t.Errorf("expected only internal inputs before public ones, got %+v", in)
		}
	}
	if total < 100 {
		t.Errorf("selected inputs sum %d below target 100", total)
	}
}

func TestSelectInsufficientFunds(t *testing.T) {
	inputs := []Input{{Address: "a", AvailableBalance: 10}}
	_, err := Select(100, inputs)
	if !errors.Is(err, walleterr.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSelectCoversTarget(t *testing.T) {
	// For any multiset with total >= target, Select returns
	// a subset summing to >= target.
	cases := [][]uint64{
		{1, 2, 3, 100},
		{50, 50, 50},
		{7},
	}
	for _, balances := range cases {
		var inputs []Input
		var total uint64
		for i, b := range balances {
			inputs = append(inputs, Input{Address: string(rune('a' + i)), AvailableBalance: b, KeyIndex: uint32(i)})
			total += b
		}
		selected, err := Select(total, inputs)
		if err != nil {
			t.Fatalf("Select(%d, %v) error = %v", total, balances, err)
		}
		var sum uint64
		for _, in := range selected {
			sum += in.AvailableBalance
		}
		if sum < total {
			t.Errorf("Select(%d, %v) = %v, sum %d < target", total, balances, selected, sum)
		}
	}
}
