// Package accountsync implements the account syncer: the composable
// SyncAddresses/SyncMessages steps that drive address discovery and
// reconciliation for one account.
package accountsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/tangle-wallet-core/internal/addrsync"
	"github.com/klingon-exchange/tangle-wallet-core/internal/events"
	"github.com/klingon-exchange/tangle-wallet-core/internal/gaplimit"
	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
)

// Persister writes an account's post-sync state durably. Implementations
// back onto the storage adapter; tests can use an in-memory stub.
type Persister interface {
	SaveAccount(a *model.Account) error
	SaveAddress(accountID string, addr *model.Address) error
	SaveMessage(accountID string, m *model.Message) error
}

// Options controls one sync call.
type Options struct {
	// ExplicitAddresses, if non-nil, restricts SyncAddresses to exactly
	// these addresses instead of driving gap-limit discovery.
	ExplicitAddresses []string

	GapLimit uint32

	// SkipPersistence, when true, performs the sync in memory only —
	// results are applied to the account but never written through
	// Persister.
	SkipPersistence bool
}

// SyncAddresses reconciles addresses either for an explicit list or,
// absent one, by driving gap-limit discovery from the account's next
// undiscovered index. It returns the events produced by diffing pre- and
// post-sync snapshots.
func SyncAddresses(ctx context.Context, client nodeclient.Client, provider signer.Provider, persister Persister, account *model.Account, opts Options) ([]events.Event, error) {
	account.Lock()
	defer account.Unlock()

	pre := account.Snapshot()

	if len(opts.ExplicitAddresses) > 0 {
		if err := syncKnownAddresses(ctx, client, account, opts.ExplicitAddresses); err != nil {
			return nil, err
		}
	} else {
		if err := syncViaDiscovery(ctx, client, provider, account, opts.GapLimit); err != nil {
			return nil, err
		}
	}

	if !opts.SkipPersistence {
		if err := persistAccount(persister, account); err != nil {
			return nil, err
		}
	}

	post := account.Snapshot()
	return events.Diff(account.ID, pre, post), nil
}

// SyncMessages sweeps the address syncer over every address the account
// already knows (whether or not discovery touched it this round), to
// surface confirmation changes on already-spent outputs.
func SyncMessages(ctx context.Context, client nodeclient.Client, persister Persister, account *model.Account, skipPersistence bool) ([]events.Event, error) {
	account.Lock()
	defer account.Unlock()

	pre := account.Snapshot()

	var bech32s []string
	for _, addr := range account.Addresses() {
		bech32s = append(bech32s, addr.Bech32)
	}
	if err := syncKnownAddresses(ctx, client, account, bech32s); err != nil {
		return nil, err
	}

	if !skipPersistence {
		if err := persistAccount(persister, account); err != nil {
			return nil, err
		}
	}

	post := account.Snapshot()
	return events.Diff(account.ID, pre, post), nil
}

// syncKnownAddresses fans the address syncer out across bech32s — each of
// which must already exist on account — merging every result back under
// the caller's held write lock. Caller must hold account's write lock.
func syncKnownAddresses(ctx context.Context, client nodeclient.Client, account *model.Account, bech32s []string) error {
	known := knownMessages(account)

	var mu sync.Mutex
	messages := make(map[string]*model.Message)

	g, gctx := errgroup.WithContext(ctx)
	for _, bech32 := range bech32s {
		addr := account.AddressByBech32(bech32)
		if addr == nil {
			continue
		}
		addr := addr
		g.Go(func() error {
			result, err := addrsync.Sync(gctx, client, addr, known)
			if err != nil {
				return fmt.Errorf("accountsync: sync address %s: %w", addr.Bech32, err)
			}
			for _, out := range result.Outputs {
				addr.MergeOutput(out)
			}
			mu.Lock()
			for id, m := range result.Messages {
				messages[id] = m
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, m := range messages {
		account.PutMessage(m)
	}
	return nil
}

func syncViaDiscovery(ctx context.Context, client nodeclient.Client, provider signer.Provider, account *model.Account, gapLimit uint32) error {
	if gapLimit == 0 {
		gapLimit = gaplimit.DefaultGapLimit
	}
	startIndex := uint32(0)
	if last := account.LatestAddress(); last != nil {
		startIndex = last.Index + 1
	}

	addrs, messages, err := gaplimit.Discover(ctx, client, provider, account.Index, startIndex, gapLimit)
	if err != nil {
		return fmt.Errorf("accountsync: discover addresses: %w", err)
	}
	for _, a := range addrs {
		account.UpsertAddress(a)
	}
	for _, m := range messages {
		account.PutMessage(m)
	}
	account.LastSyncedAt = time.Now()
	return nil
}

func knownMessages(account *model.Account) map[string]addrsync.KnownMessage {
	known := make(map[string]addrsync.KnownMessage)
	for id, m := range account.Messages() {
		known[id] = addrsync.KnownMessage{Confirmed: m.Confirmed}
	}
	return known
}

func persistAccount(p Persister, account *model.Account) error {
	if p == nil {
		return nil
	}
	if err := p.SaveAccount(account); err != nil {
		return fmt.Errorf("accountsync: persist account: %w", err)
	}
	for _, addr := range account.Addresses() {
		if err := p.SaveAddress(account.ID, addr); err != nil {
			return fmt.Errorf("accountsync: persist address %s: %w", addr.Bech32, err)
		}
	}
	for _, m := range account.Messages() {
		if err := p.SaveMessage(account.ID, m); err != nil {
			return fmt.Errorf("accountsync: persist message %s: %w", m.ID, err)
		}
	}
	return nil
}
