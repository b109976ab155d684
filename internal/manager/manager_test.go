package manager

import (
	"context"
	"sync"
	"testing"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
)

// fakePersister is an in-memory Persister stand-in, mirroring the style of
// nodeclient.Fake and signer.Fake elsewhere in this codebase.
type fakePersister struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	order    []string
}

func newFakePersister() *fakePersister {
	return &fakePersister{accounts: make(map[string]*model.Account)}
}

func (p *fakePersister) AccountExists(alias string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.accounts {
		if a.Alias == alias {
			return true, nil
		}
	}
	return false, nil
}

func (p *fakePersister) NextAccountIndex() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint32(len(p.accounts)), nil
}

func (p *fakePersister) SaveAccount(a *model.Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[a.ID]; !ok {
		p.order = append(p.order, a.ID)
	}
	p.accounts[a.ID] = a
	return nil
}

func (p *fakePersister) SaveAddress(accountID string, addr *model.Address) error { return nil }
func (p *fakePersister) SaveMessage(accountID string, m *model.Message) error    { return nil }

func (p *fakePersister) ListAccountIDs() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out, nil
}

func (p *fakePersister) LoadAccount(id string) (*model.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[id]
	if !ok {
		return nil, walleterr.ErrRecordNotFound
	}
	return a, nil
}

func (p *fakePersister) LoadAddresses(accountID string) ([]*model.Address, error) { return nil, nil }
func (p *fakePersister) LoadMessages(accountID string) (map[string]*model.Message, error) {
	return nil, nil
}

func newTestManager() (*Manager, *fakePersister) {
	persist := newFakePersister()
	m := New(nodeclient.NewFake(), signer.NewFake(), persist, 4218)
	return m, persist
}

func TestCreateAccountAssignsSequentialIndices(t *testing.T) {
	m, _ := newTestManager()

	a0, err := m.CreateAccount(context.Background(), "primary", model.ClientOptions{})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if a0.Index != 0 {
		t.Errorf("first account index = %d, want 0", a0.Index)
	}

	a1, err := m.CreateAccount(context.Background(), "savings", model.ClientOptions{})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if a1.Index != 1 {
		t.Errorf("second account index = %d, want 1", a1.Index)
	}
}

func TestCreateAccountRejectsDuplicateAlias(t *testing.T) {
	m, _ := newTestManager()

	if _, err := m.CreateAccount(context.Background(), "primary", model.ClientOptions{}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	_, err := m.CreateAccount(context.Background(), "primary", model.ClientOptions{})
	if err != walleterr.ErrAccountAliasAlreadyExists {
		t.Errorf("CreateAccount() duplicate alias error = %v, want ErrAccountAliasAlreadyExists", err)
	}
}

func TestCreateNextAccountSatisfiesAccountStore(t *testing.T) {
	m, _ := newTestManager()

	a, err := m.CreateNextAccount(context.Background())
	if err != nil {
		t.Fatalf("CreateNextAccount() error = %v", err)
	}
	if a.Alias != "Account 0" {
		t.Errorf("CreateNextAccount() alias = %q, want \"Account 0\"", a.Alias)
	}

	b, err := m.CreateNextAccount(context.Background())
	if err != nil {
		t.Fatalf("CreateNextAccount() error = %v", err)
	}
	if b.Alias != "Account 1" {
		t.Errorf("CreateNextAccount() second alias = %q, want \"Account 1\"", b.Alias)
	}

	if len(m.Accounts()) != 2 {
		t.Errorf("Accounts() returned %d accounts, want 2", len(m.Accounts()))
	}
}

func TestDeleteAccountRejectsNonEmptyAccount(t *testing.T) {
	m, _ := newTestManager()

	a, err := m.CreateAccount(context.Background(), "primary", model.ClientOptions{})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	addr := model.NewAddress("fake1addr", 0, false)
	addr.MergeOutput(&model.Output{
		ID:      model.OutputID{TransactionID: "tx1", OutputIndex: 0},
		Amount:  1_000_000,
		Address: addr.Bech32,
		Kind:    model.OutputSingleSpend,
	})
	a.UpsertAddress(addr)

	if err := m.DeleteAccount(a.ID); err != walleterr.ErrAccountNotEmpty {
		t.Errorf("DeleteAccount() on a funded account = %v, want ErrAccountNotEmpty", err)
	}
}

func TestDeleteAccountRemovesEmptyAccount(t *testing.T) {
	m, _ := newTestManager()

	a, err := m.CreateAccount(context.Background(), "primary", model.ClientOptions{})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	if err := m.DeleteAccount(a.ID); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}
	if _, ok := m.Account(a.ID); ok {
		t.Errorf("account %s still present after DeleteAccount()", a.ID)
	}
	if len(m.Accounts()) != 0 {
		t.Errorf("Accounts() = %d after deleting the only account, want 0", len(m.Accounts()))
	}
}

func TestDeleteAccountUnknownID(t *testing.T) {
	m, _ := newTestManager()
	if err := m.DeleteAccount("does-not-exist"); err != walleterr.ErrRecordNotFound {
		t.Errorf("DeleteAccount() on unknown id = %v, want ErrRecordNotFound", err)
	}
}

func TestAccountByAlias(t *testing.T) {
	m, _ := newTestManager()

	created, err := m.CreateAccount(context.Background(), "primary", model.ClientOptions{})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	got, ok := m.AccountByAlias("primary")
	if !ok || got.ID != created.ID {
		t.Errorf("AccountByAlias(\"primary\") = %+v, %v, want %+v, true", got, ok, created)
	}

	if _, ok := m.AccountByAlias("nonexistent"); ok {
		t.Error("AccountByAlias(\"nonexistent\") = true, want false")
	}
}

func TestAreAllLatestAddressesUnused(t *testing.T) {
	m, _ := newTestManager()

	// No accounts at all: vacuously true.
	if !m.AreAllLatestAddressesUnused() {
		t.Error("AreAllLatestAddressesUnused() with no accounts = false, want true")
	}

	a, err := m.CreateAccount(context.Background(), "primary", model.ClientOptions{})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	addr := model.NewAddress("fake1addr", 0, false)
	a.UpsertAddress(addr)
	if !m.AreAllLatestAddressesUnused() {
		t.Error("AreAllLatestAddressesUnused() with a fresh unused address = false, want true")
	}

	addr.MergeOutput(&model.Output{
		ID:      model.OutputID{TransactionID: "tx1", OutputIndex: 0},
		Amount:  1_000_000,
		Address: addr.Bech32,
		Kind:    model.OutputSingleSpend,
	})
	if m.AreAllLatestAddressesUnused() {
		t.Error("AreAllLatestAddressesUnused() after funding the latest address = true, want false")
	}
}

func TestLoadAllReconstructsAccounts(t *testing.T) {
	persist := newFakePersister()
	m := New(nodeclient.NewFake(), signer.NewFake(), persist, 4218)

	if _, err := m.CreateAccount(context.Background(), "primary", model.ClientOptions{}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	reloaded := New(nodeclient.NewFake(), signer.NewFake(), persist, 4218)
	if err := reloaded.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(reloaded.Accounts()) != 1 {
		t.Fatalf("LoadAll() produced %d accounts, want 1", len(reloaded.Accounts()))
	}
	if _, ok := reloaded.AccountByAlias("primary"); !ok {
		t.Error("LoadAll() did not restore the \"primary\" alias")
	}
}
