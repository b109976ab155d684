package actor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klingon-exchange/tangle-wallet-core/internal/accountsync"
	"github.com/klingon-exchange/tangle-wallet-core/internal/events"
	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
)

// registerHandlers wires every supported action tag. Action names mirror
// the IOTA wallet.rs actor's cmd strings (CreateAccount, GetAccounts,
// CallAccountMethod, ...), trimmed to this core's scope: no backup/restore
// or stronghold-password actions, since those name a feature this wallet
// core doesn't carry.
func (a *Actor) registerHandlers() {
	a.register("CreateAccount", handleCreateAccount)
	a.register("GetAccount", handleGetAccount)
	a.register("GetAccounts", handleGetAccounts)
	a.register("RemoveAccount", handleRemoveAccount)
	a.register("SyncAccounts", handleSyncAccounts)
	a.register("CallAccountMethod", handleCallAccountMethod)
}

type createAccountPayload struct {
	Alias         string              `json:"alias"`
	ClientOptions model.ClientOptions `json:"clientOptions"`
}

func handleCreateAccount(ctx context.Context, a *Actor, payload json.RawMessage) (interface{}, error) {
	var p createAccountPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("actor: decode CreateAccount payload: %w", err)
	}
	return a.manager.CreateAccount(ctx, p.Alias, p.ClientOptions)
}

type accountIdentifierPayload struct {
	AccountID string `json:"accountId"`
}

func handleGetAccount(ctx context.Context, a *Actor, payload json.RawMessage) (interface{}, error) {
	var p accountIdentifierPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("actor: decode GetAccount payload: %w", err)
	}
	account, ok := a.manager.Account(p.AccountID)
	if !ok {
		return nil, walleterr.ErrRecordNotFound
	}
	return account, nil
}

func handleGetAccounts(ctx context.Context, a *Actor, payload json.RawMessage) (interface{}, error) {
	return a.manager.Accounts(), nil
}

func handleRemoveAccount(ctx context.Context, a *Actor, payload json.RawMessage) (interface{}, error) {
	var p accountIdentifierPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("actor: decode RemoveAccount payload: %w", err)
	}
	if err := a.manager.DeleteAccount(p.AccountID); err != nil {
		return nil, err
	}
	return nil, nil
}

type syncAccountsPayload struct {
	GapLimit uint32 `json:"gapLimit"`
}

// handleSyncAccounts drives a full multi-account sync. With a poller
// attached it runs the poller's own tick (sync, discovery, retry and
// consolidation); otherwise it falls back to syncing each known account's
// addresses and messages directly.
func handleSyncAccounts(ctx context.Context, a *Actor, payload json.RawMessage) (interface{}, error) {
	if a.poller != nil {
		return a.poller.Tick(ctx)
	}

	var p syncAccountsPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("actor: decode SyncAccounts payload: %w", err)
		}
	}

	var all []events.Event
	for _, account := range a.manager.Accounts() {
		evs, err := accountsync.SyncAddresses(ctx, a.client, a.provider, a.persist, account, accountsync.Options{GapLimit: p.GapLimit})
		if err != nil {
			return nil, err
		}
		all = append(all, evs...)
		evs, err = accountsync.SyncMessages(ctx, a.client, a.persist, account, false)
		if err != nil {
			return nil, err
		}
		all = append(all, evs...)
	}
	return all, nil
}

type accountMethodPayload struct {
	AccountID string          `json:"accountId"`
	Method    string          `json:"method"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// handleCallAccountMethod dispatches one of the per-account operations the
// original wallet.rs actor names as AccountMethod variants, scoped to what
// this core supports: address generation, balance/listing queries, a
// single-account sync, the unused-address check, and alias renaming.
func handleCallAccountMethod(ctx context.Context, a *Actor, payload json.RawMessage) (interface{}, error) {
	var p accountMethodPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("actor: decode CallAccountMethod payload: %w", err)
	}
	account, ok := a.manager.Account(p.AccountID)
	if !ok {
		return nil, walleterr.ErrRecordNotFound
	}

	switch p.Method {
	case "GenerateAddress":
		return generateAddress(ctx, a, account, false)
	case "GetUnusedAddress":
		account.RLock()
		latest := account.LatestAddress()
		account.RUnlock()
		if latest != nil && len(latest.Outputs) == 0 {
			return latest, nil
		}
		return generateAddress(ctx, a, account, false)
	case "ListAddresses":
		account.RLock()
		defer account.RUnlock()
		return account.Addresses(), nil
	case "GetBalance":
		account.RLock()
		defer account.RUnlock()
		return account.Balance(), nil
	case "GetLatestAddress":
		account.RLock()
		defer account.RUnlock()
		return account.LatestAddress(), nil
	case "IsLatestAddressUnused":
		account.RLock()
		defer account.RUnlock()
		return account.IsLatestAddressUnused(), nil
	case "SyncAccount":
		var opts accountsync.Options
		if len(p.Data) > 0 {
			var syncData struct {
				GapLimit uint32 `json:"gapLimit"`
			}
			if err := json.Unmarshal(p.Data, &syncData); err != nil {
				return nil, fmt.Errorf("actor: decode SyncAccount data: %w", err)
			}
			opts.GapLimit = syncData.GapLimit
		}
		evs, err := accountsync.SyncAddresses(ctx, a.client, a.provider, a.persist, account, opts)
		if err != nil {
			return nil, err
		}
		msgEvs, err := accountsync.SyncMessages(ctx, a.client, a.persist, account, opts.SkipPersistence)
		if err != nil {
			return nil, err
		}
		return append(evs, msgEvs...), nil
	case "SetAlias":
		var alias string
		if err := json.Unmarshal(p.Data, &alias); err != nil {
			return nil, fmt.Errorf("actor: decode SetAlias data: %w", err)
		}
		return nil, a.manager.RenameAccount(account.ID, alias)
	default:
		return nil, fmt.Errorf("actor: unknown account method %q", p.Method)
	}
}

func generateAddress(ctx context.Context, a *Actor, account *model.Account, internal bool) (*model.Address, error) {
	account.Lock()
	defer account.Unlock()

	nextIndex := uint32(0)
	if last := account.LatestAddress(); last != nil {
		nextIndex = last.Index + 1
	}

	addr, err := a.provider.GenerateAddress(ctx, account.Index, nextIndex, internal, signer.GenerateMetadata{})
	if err != nil {
		return nil, fmt.Errorf("actor: generate address: %w", err)
	}
	account.UpsertAddress(addr)
	if err := a.persist.SaveAddress(account.ID, addr); err != nil {
		return nil, fmt.Errorf("actor: persist generated address: %w", err)
	}
	return addr, nil
}
