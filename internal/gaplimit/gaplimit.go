// Package gaplimit implements BIP44-style address discovery: scanning
// batches of addresses until a batch contributes nothing new, then
// trimming the trailing unused addresses down to the single "deposit
// address".
package gaplimit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/tangle-wallet-core/internal/addrsync"
	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
)

// DefaultGapLimit is the standard BIP44 gap limit for address scanning,
// used whenever a caller doesn't specify its own.
const DefaultGapLimit = 20

// batchResult is one generated-and-synced address plus whatever the
// address syncer observed for it.
type batchResult struct {
	address  *model.Address
	messages map[string]*model.Message
}

// Discover scans forward from startIndex in batches of gapLimit, for
// both public and internal addresses, until a batch yields nothing new.
// It returns every address that survived trimming and the union of newly
// observed messages.
func Discover(ctx context.Context, client nodeclient.Client, provider signer.Provider, account uint32, startIndex uint32, gapLimit uint32) ([]*model.Address, map[string]*model.Message, error) {
	var accumulated []*model.Address
	allMessages := make(map[string]*model.Message)

	for i := startIndex; ; i += gapLimit {
		results, err := discoverBatch(ctx, client, provider, account, i, gapLimit)
		if errors.Is(err, signer.ErrLocked) {
			break // keystore locked: stop discovery, keep what's accumulated
		}
		if err != nil {
			return nil, nil, err
		}

		batchHadMessages := false
		for _, r := range results {
			if len(r.messages) > 0 {
				batchHadMessages = true
			}
			for id, msg := range r.messages {
				allMessages[id] = msg
			}
			if r.address.Internal && len(r.address.Outputs) == 0 {
				continue // drop unused internal (change) addresses
			}
			accumulated = append(accumulated, r.address)
		}

		batchHadOutputs := false
		for _, r := range results {
			if len(r.address.Outputs) > 0 {
				batchHadOutputs = true
			}
		}
		if !batchHadMessages && !batchHadOutputs {
			break
		}
	}

	return trimTrailingUnused(accumulated), allMessages, nil
}

func discoverBatch(ctx context.Context, client nodeclient.Client, provider signer.Provider, account uint32, start, gapLimit uint32) ([]batchResult, error) {
	type job struct {
		index    uint32
		internal bool
	}
	var jobs []job
	for i := start; i < start+gapLimit; i++ {
		jobs = append(jobs, job{index: i, internal: false}, job{index: i, internal: true})
	}

	results := make([]batchResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for idx, j := range jobs {
		idx, j := idx, j
		g.Go(func() error {
			addr, err := provider.GenerateAddress(gctx, account, j.index, j.internal, signer.GenerateMetadata{Syncing: true})
			if err != nil {
				return err
			}
			syncResult, err := addrsync.Sync(gctx, client, addr, nil)
			if err != nil {
				return fmt.Errorf("gaplimit: sync address %s: %w", addr.Bech32, err)
			}
			for id, out := range syncResult.Outputs {
				addr.Outputs[id] = out
			}
			addr.Balance = syncResult.Balance
			results[idx] = batchResult{address: addr, messages: syncResult.Messages}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// trimTrailingUnused keeps at most one trailing unused (no-output) public
// address in the returned set — the deposit address — while preserving
// any trailing unused addresses that precede a used one, since the gap
// between used addresses is contiguous by construction. Internal
// addresses are untouched here: the caller already dropped every unused
// one, so every internal address remaining is by definition used.
func trimTrailingUnused(addrs []*model.Address) []*model.Address {
	var public, internal []*model.Address
	for _, a := range addrs {
		if a.Internal {
			internal = append(internal, a)
		} else {
			public = append(public, a)
		}
	}
	public = trimTrailingUnusedPublic(public)
	return mergeByIndex(public, internal)
}

func trimTrailingUnusedPublic(addrs []*model.Address) []*model.Address {
	if len(addrs) == 0 {
		return addrs
	}
	lastUsed := -1
	for i, a := range addrs {
		if len(a.Outputs) > 0 {
			lastUsed = i
		}
	}
	cut := lastUsed + 2 // keep one address past the last used one
	if cut >= len(addrs) {
		return addrs
	}
	return addrs[:cut]
}

// mergeByIndex returns the public addresses followed by the internal
// ones, each list keeping its own derivation-index order: the same
// internal-flag-then-index order storage loads an account's addresses in.
func mergeByIndex(public, internal []*model.Address) []*model.Address {
	out := make([]*model.Address, 0, len(public)+len(internal))
	out = append(out, public...)
	out = append(out, internal...)
	return out
}
