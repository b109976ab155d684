package transfer

import (
	"context"
	"testing"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
)

type fakePersister struct {
	savedMessages []string
}

func (p *fakePersister) SaveAccount(a *model.Account) error { return nil }
func (p *fakePersister) SaveAddress(accountID string, addr *model.Address) error {
	return nil
}
func (p *fakePersister) SaveMessage(accountID string, m *model.Message) error {
	p.savedMessages = append(p.savedMessages, m.ID)
	return nil
}

func fundedAccount(t *testing.T, provider signer.Provider, amounts ...uint64) *model.Account {
	t.Helper()
	account := model.NewAccount("acct-1", 0, "primary", model.ClientOptions{}, model.SignerMnemonic)
	for i, amt := range amounts {
		addr, err := provider.GenerateAddress(context.Background(), account.Index, uint32(i), false, signer.GenerateMetadata{})
		if err != nil {
			t.Fatalf("GenerateAddress() error = %v", err)
		}
		addr.MergeOutput(&model.Output{
			ID:      model.OutputID{TransactionID: "seed", OutputIndex: uint16(i)},
			Amount:  amt,
			Address: addr.Bech32,
			Kind:    model.OutputSingleSpend,
		})
		account.UpsertAddress(addr)
	}
	return account
}

func newTestEngine(client nodeclient.Client, provider signer.Provider, persister Persister) *Engine {
	return NewEngine(client, provider, model.NewLockedAddressSet(), persister, 4218)
}

func TestSendExactMatchNoRemainder(t *testing.T) {
	client := nodeclient.NewFake()
	provider := signer.NewFake()
	account := fundedAccount(t, provider, 1_500_000)
	persister := &fakePersister{}
	engine := newTestEngine(client, provider, persister)

	msg, evs, err := engine.Send(context.Background(), account, model.Transfer{
		DestinationAddress: "external-addr",
		Amount:             1_500_000,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.ID == "" {
		t.Errorf("expected a broadcast message id")
	}
	if len(msg.Transaction.Essence.Outputs) != 1 {
		t.Errorf("expected exactly one output (no remainder), got %d", len(msg.Transaction.Essence.Outputs))
	}
	if account.Balance() != 0 {
		t.Errorf("account balance after spending everything = %d, want 0", account.Balance())
	}
	if len(persister.savedMessages) != 1 {
		t.Errorf("expected the broadcast message to be persisted once")
	}
	_ = evs
}

func TestSendWithRemainderUsesChangeAddress(t *testing.T) {
	client := nodeclient.NewFake()
	provider := signer.NewFake()
	account := fundedAccount(t, provider, 3_000_000)
	persister := &fakePersister{}
	engine := newTestEngine(client, provider, persister)

	msg, _, err := engine.Send(context.Background(), account, model.Transfer{
		DestinationAddress: "external-addr",
		Amount:             1_000_000,
		RemainderStrategy:  model.RemainderChangeAddress,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(msg.Transaction.Essence.Outputs) != 2 {
		t.Fatalf("expected destination + remainder outputs, got %d", len(msg.Transaction.Essence.Outputs))
	}

	var sawRemainder bool
	for _, o := range msg.Transaction.Essence.Outputs {
		if o.Amount == 2_000_000 {
			sawRemainder = true
		}
	}
	if !sawRemainder {
		t.Errorf("expected a 2,000,000-value remainder output, got %+v", msg.Transaction.Essence.Outputs)
	}

	var foundInternal bool
	for _, a := range account.Addresses() {
		if a.Internal {
			foundInternal = true
		}
	}
	if !foundInternal {
		t.Errorf("expected a new internal (change) address to have been generated")
	}
}

func TestSendInsufficientFundsFails(t *testing.T) {
	client := nodeclient.NewFake()
	provider := signer.NewFake()
	account := fundedAccount(t, provider, 100)
	engine := newTestEngine(client, provider, &fakePersister{})

	_, _, err := engine.Send(context.Background(), account, model.Transfer{
		DestinationAddress: "external-addr",
		Amount:             1000,
	})
	if err == nil {
		t.Fatalf("expected an insufficient-funds error")
	}
}

func TestSendToOwnAddressForcesReuseStrategy(t *testing.T) {
	client := nodeclient.NewFake()
	provider := signer.NewFake()
	account := fundedAccount(t, provider, 3_000_000, 1_000_000)
	engine := newTestEngine(client, provider, &fakePersister{})

	own := account.Addresses()[1].Bech32
	spender := account.Addresses()[0].Bech32
	transfer := model.Transfer{
		DestinationAddress: own,
		Amount:             2_000_000,
		RemainderStrategy:  model.RemainderChangeAddress,
	}
	msg, _, err := engine.Send(context.Background(), account, transfer)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// The requested ChangeAddress strategy should have been overridden to
	// ReuseAddress, since the destination belongs to this account: the
	// remainder must land back on the spending address, not a freshly
	// generated change address.
	var sawOwnOutput, sawRemainderOnSpender bool
	for _, o := range msg.Transaction.Essence.Outputs {
		if o.Address == own {
			sawOwnOutput = true
		}
		if o.Address == spender && o.Amount == 1_000_000 {
			sawRemainderOnSpender = true
		}
	}
	if !sawOwnOutput {
		t.Errorf("expected the destination output to target the account's own address")
	}
	if !sawRemainderOnSpender {
		t.Errorf("expected the remainder to land back on the spending address (ReuseAddress), got %+v", msg.Transaction.Essence.Outputs)
	}
	for _, a := range account.Addresses() {
		if a.Internal {
			t.Errorf("ReuseAddress should not have generated a new change address, found %s", a.Bech32)
		}
	}
}

func TestSendReleasesLockedAddressesOnDustFailure(t *testing.T) {
	client := nodeclient.NewFake()
	provider := signer.NewFake()
	account := fundedAccount(t, provider, 2_000_000)
	locked := model.NewLockedAddressSet()
	engine := NewEngine(client, provider, locked, &fakePersister{}, 4218)

	// A tiny transfer to an unknown external address creates a dust
	// output there with no dust allowance to cover it: the dust check
	// (step 7, after inputs are already locked) must reject this.
	_, _, err := engine.Send(context.Background(), account, model.Transfer{
		DestinationAddress: "external-addr-with-no-dust-allowance",
		Amount:             500,
	})
	if err == nil {
		t.Fatalf("expected a dust-policy error for an unfunded tiny transfer")
	}

	locked.Lock()
	defer locked.Unlock()
	for _, addr := range account.Addresses() {
		if locked.Contains(addr.Bech32) {
			t.Errorf("address %s should have been released after the failed transfer", addr.Bech32)
		}
	}
}
