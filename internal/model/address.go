package model

// Address is an immutable identity (bech32 string + key index + internal
// flag) whose balance and output map are mutated only by the Account
// Syncer. Invariant: Balance == sum(outputs where !IsSpent).
type Address struct {
	Bech32   string
	Index    uint32
	Internal bool // false = public/external, true = change

	Balance uint64
	Outputs map[OutputID]*Output
}

// NewAddress builds an Address with an initialized, empty output map.
func NewAddress(bech32 string, index uint32, internal bool) *Address {
	return &Address{
		Bech32:   bech32,
		Index:    index,
		Internal: internal,
		Outputs:  make(map[OutputID]*Output),
	}
}

// AvailableBalance sums the unspent, non-dust-allowance outputs currently
// known for this address. Dust-allowance and treasury outputs don't
// contribute spendable balance for ordinary transfers.
func (a *Address) AvailableBalance() uint64 {
	var total uint64
	for _, o := range a.Outputs {
		if !o.IsSpent && o.Kind == OutputSingleSpend {
			total += o.Amount
		}
	}
	return total
}

// AvailableOutputs returns the unspent SingleSpend outputs for this
// address, the set the input selector is allowed to choose inputs from.
func (a *Address) AvailableOutputs() []*Output {
	var out []*Output
	for _, o := range a.Outputs {
		if !o.IsSpent && o.Kind == OutputSingleSpend {
			out = append(out, o)
		}
	}
	return out
}

// DustAllowanceBalance sums this address's DustAllowance outputs.
func (a *Address) DustAllowanceBalance() uint64 {
	var total uint64
	for _, o := range a.Outputs {
		if !o.IsSpent && o.Kind == OutputDustAllowance {
			total += o.Amount
		}
	}
	return total
}

// DustOutputCount counts unspent SingleSpend outputs under
// DustAllowanceValue.
func (a *Address) DustOutputCount() int {
	var n int
	for _, o := range a.Outputs {
		if !o.IsSpent && o.IsDust() {
			n++
		}
	}
	return n
}

// MergeOutput inserts or replaces the output for its ID — last-write-wins,
// matching the address syncer's rule that per-output lookups may run
// concurrently while insertion stays last-write-wins. Balance is then
// recomputed as the sum of every unspent output, whatever its kind.
func (a *Address) MergeOutput(o *Output) {
	a.Outputs[o.ID] = o
	var total uint64
	for _, out := range a.Outputs {
		if !out.IsSpent {
			total += out.Amount
		}
	}
	a.Balance = total
}

// Clone produces a deep copy, used to snapshot pre-sync state for diffing
// against post-sync state.
func (a *Address) Clone() *Address {
	clone := &Address{
		Bech32:   a.Bech32,
		Index:    a.Index,
		Internal: a.Internal,
		Balance:  a.Balance,
		Outputs:  make(map[OutputID]*Output, len(a.Outputs)),
	}
	for id, o := range a.Outputs {
		cp := *o
		clone.Outputs[id] = &cp
	}
	return clone
}
