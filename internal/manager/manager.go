// Package manager implements the Account Manager: it owns every account
// in this wallet, enforces alias uniqueness and index monotonicity at
// creation, and wires the node client, signer, storage adapter, and
// transfer engine together for the rest of the core to drive.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/storage"
	"github.com/klingon-exchange/tangle-wallet-core/internal/transfer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
	"github.com/klingon-exchange/tangle-wallet-core/pkg/logging"
)

var _ Persister = (*storage.Storage)(nil)

// Persister is the subset of the storage adapter the manager needs:
// account-level CRUD plus the alias/index bookkeeping queries.
type Persister interface {
	AccountExists(alias string) (bool, error)
	NextAccountIndex() (uint32, error)
	SaveAccount(a *model.Account) error
	SaveAddress(accountID string, addr *model.Address) error
	SaveMessage(accountID string, m *model.Message) error
	ListAccountIDs() ([]string, error)
	LoadAccount(id string) (*model.Account, error)
	LoadAddresses(accountID string) ([]*model.Address, error)
	LoadMessages(accountID string) (map[string]*model.Message, error)
}

// Manager owns the accounts map and the process-wide locked-address set,
// and is the composition root for the transfer engine the rest of the
// core drives transfers through.
type Manager struct {
	mu       sync.RWMutex
	accounts []*model.Account
	byID     map[string]*model.Account

	client   nodeclient.Client
	provider signer.Provider
	persist  Persister
	locked   *model.LockedAddressSet
	engine   *transfer.Engine
	coinType uint32
	log      *logging.Logger
}

// New builds a Manager over the given collaborators. Call LoadAll to
// populate it from existing storage before use.
func New(client nodeclient.Client, provider signer.Provider, persist Persister, coinType uint32) *Manager {
	locked := model.NewLockedAddressSet()
	m := &Manager{
		byID:     make(map[string]*model.Account),
		client:   client,
		provider: provider,
		persist:  persist,
		locked:   locked,
		coinType: coinType,
		log:      logging.Default().Component("manager"),
	}
	m.engine = transfer.NewEngine(client, provider, locked, &transferPersister{persist}, coinType)
	return m
}

// transferPersister adapts Persister's narrower surface to
// transfer.Persister (same three methods, kept as a distinct type so the
// two interfaces can diverge independently).
type transferPersister struct{ p Persister }

func (t *transferPersister) SaveAccount(a *model.Account) error { return t.p.SaveAccount(a) }
func (t *transferPersister) SaveAddress(accountID string, addr *model.Address) error {
	return t.p.SaveAddress(accountID, addr)
}
func (t *transferPersister) SaveMessage(accountID string, m *model.Message) error {
	return t.p.SaveMessage(accountID, m)
}

// Engine returns the transfer engine wired to this manager's collaborators.
func (m *Manager) Engine() *transfer.Engine { return m.engine }

// LoadAll reconstructs every account known to storage, in index order.
func (m *Manager) LoadAll(ctx context.Context) error {
	ids, err := m.persist.ListAccountIDs()
	if err != nil {
		return fmt.Errorf("manager: list accounts: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		account, err := m.persist.LoadAccount(id)
		if err != nil {
			return fmt.Errorf("manager: load account %s: %w", id, err)
		}
		addrs, err := m.persist.LoadAddresses(id)
		if err != nil {
			return fmt.Errorf("manager: load addresses for %s: %w", id, err)
		}
		account.SetAddresses(addrs)
		messages, err := m.persist.LoadMessages(id)
		if err != nil {
			return fmt.Errorf("manager: load messages for %s: %w", id, err)
		}
		for _, msg := range messages {
			account.PutMessage(msg)
		}
		m.accounts = append(m.accounts, account)
		m.byID[account.ID] = account
	}
	return nil
}

// CreateAccount creates a new account with the given alias, enforcing
// alias uniqueness and index monotonicity against storage, then persists
// its initial row.
func (m *Manager) CreateAccount(ctx context.Context, alias string, clientOptions model.ClientOptions) (*model.Account, error) {
	exists, err := m.persist.AccountExists(alias)
	if err != nil {
		return nil, fmt.Errorf("manager: check alias: %w", err)
	}
	if exists {
		return nil, walleterr.ErrAccountAliasAlreadyExists
	}

	index, err := m.persist.NextAccountIndex()
	if err != nil {
		return nil, fmt.Errorf("manager: next account index: %w", err)
	}

	id := fmt.Sprintf("account-%d", index)
	account := model.NewAccount(id, index, alias, clientOptions, model.SignerMnemonic)

	m.mu.Lock()
	m.accounts = append(m.accounts, account)
	m.byID[account.ID] = account
	m.mu.Unlock()

	if err := m.persist.SaveAccount(account); err != nil {
		return nil, fmt.Errorf("manager: persist new account: %w", err)
	}
	return account, nil
}

// CreateNextAccount creates an account named after its own index,
// satisfying poller.AccountStore — the poller discovers accounts without
// a caller-supplied alias.
func (m *Manager) CreateNextAccount(ctx context.Context) (*model.Account, error) {
	index, err := m.persist.NextAccountIndex()
	if err != nil {
		return nil, fmt.Errorf("manager: next account index: %w", err)
	}
	alias := fmt.Sprintf("Account %d", index)
	return m.CreateAccount(ctx, alias, model.ClientOptions{})
}

// DeleteAccount removes an empty account. An account with a nonzero
// balance cannot be removed, matching the original wallet's guard against
// silently discarding funds.
func (m *Manager) DeleteAccount(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.byID[id]
	if !ok {
		return walleterr.ErrRecordNotFound
	}
	account.RLock()
	balance := account.Balance()
	account.RUnlock()
	if balance > 0 {
		return walleterr.ErrAccountNotEmpty
	}

	delete(m.byID, id)
	for i, a := range m.accounts {
		if a.ID == id {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			break
		}
	}
	return nil
}

// Accounts returns every known account. Satisfies poller.AccountStore.
func (m *Manager) Accounts() []*model.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Account, len(m.accounts))
	copy(out, m.accounts)
	return out
}

// Account looks up one account by id.
func (m *Manager) Account(id string) (*model.Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	return a, ok
}

// AccountByAlias looks up one account by its alias.
func (m *Manager) AccountByAlias(alias string) (*model.Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Alias == alias {
			return a, true
		}
	}
	return nil, false
}

// RenameAccount changes an account's alias, enforcing the same uniqueness
// constraint CreateAccount does.
func (m *Manager) RenameAccount(id string, alias string) error {
	exists, err := m.persist.AccountExists(alias)
	if err != nil {
		return fmt.Errorf("manager: check alias: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.byID[id]
	if !ok {
		return walleterr.ErrRecordNotFound
	}
	if exists && account.Alias != alias {
		return walleterr.ErrAccountAliasAlreadyExists
	}

	account.Alias = alias
	return m.persist.SaveAccount(account)
}

// AreAllLatestAddressesUnused reports whether every account's current deposit
// address has never received anything — used by light clients to decide
// whether a fresh receive address needs generating before display.
func (m *Manager) AreAllLatestAddressesUnused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		a.RLock()
		unused := a.IsLatestAddressUnused()
		a.RUnlock()
		if !unused {
			return false
		}
	}
	return true
}
