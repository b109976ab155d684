// Package dust implements the dust policy: it decides whether a set of
// pending output deltas on an address would violate the ledger's dust
// protection rule.
//
//	dust_outputs_count <= min(floor(dust_allowance_balance / 100_000), 100)
package dust

import (
	"context"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
)

// Delta is one pending change to an address's output set: amount and
// whether it's a creation (true) or a consumption (false) of an existing
// output.
type Delta struct {
	Amount   uint64
	IsCreate bool
}

// OutputLister resolves an address's current outputs when the checker
// doesn't have a local Account to consult, falling back to the node.
type OutputLister interface {
	ListOutputs(ctx context.Context, address string) ([]*model.Output, error)
}

// Check evaluates whether address would still satisfy the dust invariant
// after applying deltas on top of its current (local or node-sourced)
// output set.
func Check(ctx context.Context, addr *model.Address, lister OutputLister, address string, deltas []Delta) error {
	var dustAllowanceBalance int64
	var dustOutputsCount int64

	// Start from current on-ledger outputs.
	if addr != nil {
		dustAllowanceBalance += int64(addr.DustAllowanceBalance())
		dustOutputsCount += int64(addr.DustOutputCount())
	} else if lister != nil {
		outputs, err := lister.ListOutputs(ctx, address)
		if err != nil {
			return walleterr.NewClientError("dust.ListOutputs", err)
		}
		for _, o := range outputs {
			if o.IsSpent {
				continue
			}
			switch o.Kind {
			case model.OutputDustAllowance:
				dustAllowanceBalance += int64(o.Amount)
			case model.OutputSingleSpend:
				if o.Amount < model.DustAllowanceValue {
					dustOutputsCount++
				}
			}
		}
	}

	// Apply the pending transaction's deltas.
	for _, d := range deltas {
		sign := int64(1)
		if !d.IsCreate {
			sign = -1
		}
		if d.Amount >= model.DustAllowanceValue {
			dustAllowanceBalance += sign * int64(d.Amount)
		} else {
			dustOutputsCount += sign
		}
	}

	allowed := dustAllowanceBalance / int64(model.DustAllowanceDivisor)
	if allowed > model.MaxDustOutputsPerAddress {
		allowed = model.MaxDustOutputsPerAddress
	}
	if allowed < 0 {
		allowed = 0
	}

	if dustOutputsCount > allowed {
		return walleterr.NewDustError(address)
	}
	return nil
}
