package transfer

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/tangle-wallet-core/internal/dust"
	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
)

// buildAndBroadcast runs steps 4-9 of the transfer procedure: essence
// construction, remainder resolution, dust enforcement, signing, PoW and
// broadcast. The caller has already selected and locked inputs (steps
// 1-3) and is responsible for releasing the lock on any error this
// returns.
func (e *Engine) buildAndBroadcast(ctx context.Context, account *model.Account, t *model.Transfer, selected []selectedInput) (*model.Message, error) {
	total := selectedTotal(selected)
	// inputselect only returns sets covering t.Amount; an explicit input
	// bypasses it, so check here before subtracting.
	if total < t.Amount {
		return nil, walleterr.ErrInsufficientFunds
	}
	remainder := total - t.Amount

	var remainderAddr string
	if remainder > 0 {
		addr, err := e.resolveRemainderDeposit(ctx, account, t, selected)
		if err != nil {
			return nil, err
		}
		remainderAddr = addr
	}

	essence := model.Essence{Indexation: t.Indexation}
	for _, s := range selected {
		for _, o := range s.outputs {
			essence.Inputs = append(essence.Inputs, model.Input{OutputID: o.ID})
		}
	}
	essence.Outputs = append(essence.Outputs, model.TxOutput{
		Address: t.DestinationAddress,
		Amount:  t.Amount,
		Kind:    model.OutputSingleSpend,
	})
	if remainder > 0 {
		essence.Outputs = append(essence.Outputs, model.TxOutput{
			Address: remainderAddr,
			Amount:  remainder,
			Kind:    model.OutputSingleSpend,
		})
	}
	essence.SealOrder()

	if err := e.checkDust(ctx, account, selected, t.DestinationAddress, t.Amount, remainderAddr, remainder); err != nil {
		return nil, err
	}

	perInput := make([]signer.PerInputPath, 0, len(essence.Inputs))
	idx := 0
	for _, s := range selected {
		for range s.outputs {
			perInput = append(perInput, signer.PerInputPath{
				InputIndex: idx,
				Path: signer.DerivationPath{
					CoinType: e.CoinType,
					Account:  account.Index,
					Internal: s.internal,
					Index:    s.keyIndex,
				},
			})
			idx++
		}
	}

	unlockBlocks, err := e.Provider.SignMessage(ctx, &essence, perInput, signer.SignMetadata{
		RemainderAddress: remainderAddr,
		RemainderValue:   remainder,
		RemainderDeposit: remainder > 0,
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: sign message: %w", err)
	}

	msg := &model.Message{
		PayloadKind: model.PayloadTransaction,
		Transaction: &model.TransactionPayload{
			Essence:      essence,
			UnlockBlocks: unlockBlocks,
		},
	}

	if err := e.Client.FinishPoW(ctx, msg); err != nil {
		return nil, fmt.Errorf("transfer: proof of work: %w", err)
	}
	msgID, err := e.Client.PostMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("transfer: post message: %w", err)
	}
	msg.ID = msgID

	markSpent(selected, msgID)
	e.refreshLatestAddressIfSpent(ctx, account, t.DestinationAddress, remainderAddr, remainder)

	return msg, nil
}

// markSpent flips every consumed output to spent in the account's local
// state, so a subsequent transfer in the same session doesn't try to
// reuse an output that's already on the ledger awaiting confirmation.
func markSpent(selected []selectedInput, messageID string) {
	for _, s := range selected {
		for _, o := range s.outputs {
			o.IsSpent = true
			o.MessageID = messageID
			s.address.MergeOutput(o)
		}
	}
}

func selectedTotal(selected []selectedInput) uint64 {
	var total uint64
	for _, s := range selected {
		for _, o := range s.outputs {
			total += o.Amount
		}
	}
	return total
}

// resolveRemainderDeposit implements step 5's three strategies.
func (e *Engine) resolveRemainderDeposit(ctx context.Context, account *model.Account, t *model.Transfer, selected []selectedInput) (string, error) {
	switch t.RemainderStrategy {
	case model.RemainderAccountAddress:
		return t.RemainderAddress, nil

	case model.RemainderReuseAddress:
		last := selected[len(selected)-1]
		return last.address.Bech32, nil

	case model.RemainderChangeAddress:
		source := selected[len(selected)-1].address
		if source.Internal {
			latest := account.LatestAddress()
			if latest == nil || latest.Bech32 == t.DestinationAddress {
				return e.generateNextAddress(ctx, account, false)
			}
			return latest.Bech32, nil
		}
		if existing := account.InternalAddressAtIndex(source.Index); existing != nil {
			return existing.Bech32, nil
		}
		return e.generateNextAddress(ctx, account, true)

	default:
		return "", fmt.Errorf("transfer: unknown remainder strategy %d", t.RemainderStrategy)
	}
}

func (e *Engine) generateNextAddress(ctx context.Context, account *model.Account, internal bool) (string, error) {
	index := uint32(0)
	if internal {
		if last := account.LatestInternalAddress(); last != nil {
			index = last.Index + 1
		}
	} else {
		if last := account.LatestAddress(); last != nil {
			index = last.Index + 1
		}
	}
	addr, err := e.Provider.GenerateAddress(ctx, account.Index, index, internal, signer.GenerateMetadata{})
	if err != nil {
		return "", fmt.Errorf("transfer: generate remainder address: %w", err)
	}
	account.UpsertAddress(addr)
	return addr.Bech32, nil
}

// checkDust runs the dust policy (step 7) over every distinct address the
// transfer touches: every spent address and the destination/remainder
// deposit addresses.
func (e *Engine) checkDust(ctx context.Context, account *model.Account, selected []selectedInput, destination string, destAmount uint64, remainderAddr string, remainderAmount uint64) error {
	deltas := make(map[string][]dust.Delta)
	for _, s := range selected {
		for _, o := range s.outputs {
			switch {
			case o.Kind == model.OutputSingleSpend && o.Amount < model.DustAllowanceValue:
				deltas[s.address.Bech32] = append(deltas[s.address.Bech32], dust.Delta{Amount: o.Amount, IsCreate: false})
			case o.Kind == model.OutputDustAllowance:
				deltas[s.address.Bech32] = append(deltas[s.address.Bech32], dust.Delta{Amount: o.Amount, IsCreate: false})
			}
		}
	}
	if destAmount < model.DustAllowanceValue {
		deltas[destination] = append(deltas[destination], dust.Delta{Amount: destAmount, IsCreate: true})
	}
	if remainderAmount > 0 && remainderAmount < model.DustAllowanceValue {
		deltas[remainderAddr] = append(deltas[remainderAddr], dust.Delta{Amount: remainderAmount, IsCreate: true})
	}

	touched := make(map[string]struct{})
	for _, s := range selected {
		touched[s.address.Bech32] = struct{}{}
	}
	touched[destination] = struct{}{}
	if remainderAmount > 0 {
		touched[remainderAddr] = struct{}{}
	}

	lister := nodeOutputLister{client: e.Client}
	for addr := range touched {
		known := account.AddressByBech32(addr)
		if err := dust.Check(ctx, known, lister, addr, deltas[addr]); err != nil {
			return err
		}
	}
	return nil
}

// refreshLatestAddressIfSpent implements step 10: if the destination or
// the remainder deposit is the account's current trailing unused public
// address, it's no longer unused, so a fresh deposit address is derived.
func (e *Engine) refreshLatestAddressIfSpent(ctx context.Context, account *model.Account, destination, remainderAddr string, remainder uint64) {
	latest := account.LatestAddress()
	if latest == nil {
		return
	}
	if latest.Bech32 == destination || (remainder > 0 && latest.Bech32 == remainderAddr) {
		if _, err := e.generateNextAddress(ctx, account, false); err != nil {
			e.log.Warn("failed to generate fresh deposit address after spending the latest one", "error", err)
		}
	}
}
