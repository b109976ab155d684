// Package inputselect implements the input selector: given a target
// amount and a set of candidate address balances, it picks a minimal-sum,
// minimal-count covering subset.
package inputselect

import (
	"sort"

	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
)

// Input is one candidate address the selector may draw from. Callers must
// pre-filter out locked addresses and zero-balance addresses, and
// optionally the transfer's destination address.
type Input struct {
	Address          string
	Internal         bool
	KeyIndex         uint32
	AvailableBalance uint64
}

// Select returns a subset of inputs whose summed balance covers target,
// minimizing excess and input count. It fails with
// walleterr.ErrInsufficientFunds if the total available balance is below
// target.
//
// Algorithm:
//  1. If an input exactly matches target, use it alone.
//  2. Else if the smallest single input covering target exists, use it
//     alone.
//  3. Else accumulate internal (change) inputs first by descending
//     balance, then public inputs, stopping at first coverage.
//
// Ties are broken by lower key index, then internal-before-public (to
// favor consolidating change).
func Select(target uint64, inputs []Input) ([]Input, error) {
	if target == 0 {
		return nil, nil
	}

	var total uint64
	for _, in := range inputs {
		total += in.AvailableBalance
	}
	if total < target {
		return nil, walleterr.ErrInsufficientFunds
	}

	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sortCanonical(sorted)

	// Exact match, single input.
	for _, in := range sorted {
		if in.AvailableBalance == target {
			return []Input{in}, nil
		}
	}

	// Smallest single input that covers target alone.
	var bestSingle *Input
	for i := range sorted {
		in := sorted[i]
		if in.AvailableBalance < target {
			continue
		}
		if bestSingle == nil || in.AvailableBalance < bestSingle.AvailableBalance {
			in := in
			bestSingle = &in
		}
	}
	if bestSingle != nil {
		return []Input{*bestSingle}, nil
	}

	// Accumulate: internal (change) first by descending balance, then
	// public, stopping at first coverage.
	var internalInputs, publicInputs []Input
	for _, in := range sorted {
		if in.Internal {
			internalInputs = append(internalInputs, in)
		} else {
			publicInputs = append(publicInputs, in)
		}
	}
	sortByBalanceDesc(internalInputs)
	sortByBalanceDesc(publicInputs)

	var selected []Input
	var sum uint64
	for _, group := range [][]Input{internalInputs, publicInputs} {
		for _, in := range group {
			if sum >= target {
				break
			}
			selected = append(selected, in)
			sum += in.AvailableBalance
		}
	}
	if sum < target {
		// total >= target was already verified; this should be
		// unreachable, but guard defensively.
		return nil, walleterr.ErrInsufficientFunds
	}
	return selected, nil
}

// sortCanonical orders by key index ascending, internal-before-public on
// ties, giving input selection a deterministic order independent of
// iteration order over the account's address map.
func sortCanonical(inputs []Input) {
	sort.SliceStable(inputs, func(i, j int) bool {
		if inputs[i].KeyIndex != inputs[j].KeyIndex {
			return inputs[i].KeyIndex < inputs[j].KeyIndex
		}
		return inputs[i].Internal && !inputs[j].Internal
	})
}

func sortByBalanceDesc(inputs []Input) {
	sort.SliceStable(inputs, func(i, j int) bool {
		if inputs[i].AvailableBalance != inputs[j].AvailableBalance {
			return inputs[i].AvailableBalance > inputs[j].AvailableBalance
		}
		if inputs[i].KeyIndex != inputs[j].KeyIndex {
			return inputs[i].KeyIndex < inputs[j].KeyIndex
		}
		return inputs[i].Internal && !inputs[j].Internal
	})
}
