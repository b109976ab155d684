// Package addrsync implements the address syncer: reconciling one
// address's known outputs and messages against the node.
package addrsync

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
)

// KnownMessage is the caller's prior knowledge of a message, used to
// decide whether it needs re-fetching.
type KnownMessage struct {
	Confirmed model.Confirmation
}

// Result is what syncing one address produces.
type Result struct {
	Balance  uint64
	Outputs  map[model.OutputID]*model.Output
	Messages map[string]*model.Message
}

// Sync reconciles addr against the node: fetches its output IDs and
// balance, resolves any output not already known-spent, and fetches the
// body/metadata of every new or still-unconfirmed message.
func Sync(ctx context.Context, client nodeclient.Client, addr *model.Address, known map[string]KnownMessage) (*Result, error) {
	outputIDs, err := fetchOutputIDs(ctx, client, addr.Bech32)
	if err != nil {
		return nil, err
	}
	balance, err := client.GetBalance(ctx, addr.Bech32)
	if err != nil {
		return nil, fmt.Errorf("addrsync: get balance: %w", err)
	}

	outputs := make(map[model.OutputID]*model.Output, len(outputIDs))
	var mu outputMutex
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range outputIDs {
		id := id
		if existing, ok := addr.Outputs[id]; ok && existing.IsSpent {
			mu.store(outputs, id, existing)
			continue
		}
		g.Go(func() error {
			out, err := client.GetOutput(gctx, id)
			if err != nil {
				return fmt.Errorf("addrsync: get output %s: %w", id, err)
			}
			mu.store(outputs, id, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	messageIDs := make(map[string]struct{})
	for _, out := range outputs {
		if out.MessageID != "" {
			messageIDs[out.MessageID] = struct{}{}
		}
	}

	messages := make(map[string]*model.Message, len(messageIDs))
	var msgMu outputMutex
	mg, mgctx := errgroup.WithContext(ctx)
	for id := range messageIDs {
		id := id
		prior, wasKnown := known[id]
		if wasKnown && prior.Confirmed == model.ConfirmationTrue {
			continue
		}
		mg.Go(func() error {
			msg, err := fetchMessage(mgctx, client, id)
			if err != nil {
				return err
			}
			if msg == nil {
				return nil // 404: omit, not an error.
			}
			if outputSpentFor(outputs, id) {
				msg.Confirmed = model.ConfirmationTrue
			}
			msgMu.storeMessage(messages, id, msg)
			return nil
		})
	}
	if err := mg.Wait(); err != nil {
		return nil, err
	}

	return &Result{Balance: balance, Outputs: outputs, Messages: messages}, nil
}

// fetchOutputIDs queries the unbounded output-id list; if the result was
// capped while spent outputs were included, re-query excluding spent and
// merge-dedup, since the cap may have discarded unspent ids.
func fetchOutputIDs(ctx context.Context, client nodeclient.Client, addr string) ([]model.OutputID, error) {
	withSpent, err := client.GetAddressOutputs(ctx, addr, true)
	if err != nil {
		return nil, fmt.Errorf("addrsync: get address outputs: %w", err)
	}
	if len(withSpent) < nodeclient.MaxOutputIDsPerQuery {
		return withSpent, nil
	}

	unspentOnly, err := client.GetAddressOutputs(ctx, addr, false)
	if err != nil {
		return nil, fmt.Errorf("addrsync: get unspent address outputs: %w", err)
	}
	seen := make(map[model.OutputID]struct{}, len(withSpent))
	merged := make([]model.OutputID, 0, len(withSpent)+len(unspentOnly))
	for _, id := range withSpent {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	for _, id := range unspentOnly {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged, nil
}

func fetchMessage(ctx context.Context, client nodeclient.Client, id string) (*model.Message, error) {
	msg, err := client.GetMessage(ctx, id)
	if err != nil {
		if err == nodeclient.ErrMessageNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("addrsync: get message %s: %w", id, err)
	}
	meta, err := client.GetMessageMetadata(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("addrsync: get message metadata %s: %w", id, err)
	}
	switch meta.LedgerInclusionState {
	case nodeclient.InclusionIncluded:
		msg.Confirmed = model.ConfirmationTrue
	case nodeclient.InclusionConflicting, nodeclient.InclusionNoTransaction:
		msg.Confirmed = model.ConfirmationFalse
	}
	return msg, nil
}

func outputSpentFor(outputs map[model.OutputID]*model.Output, messageID string) bool {
	for _, o := range outputs {
		if o.MessageID == messageID && o.IsSpent {
			return true
		}
	}
	return false
}
