package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "tangle-wallet-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewCreatesDatabaseFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tangle-wallet-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tmpDir, "wallet.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestExists(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "tangle-wallet-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := &Config{DataDir: tmpDir}
	if Exists(cfg) {
		t.Error("Exists() = true before any store was opened")
	}

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	store.Close()

	if !Exists(cfg) {
		t.Error("Exists() = false after a store was created")
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, _ := os.UserHomeDir()
	expanded := expandPath("~/.test")
	expected := filepath.Join(home, ".test")
	if expanded != expected {
		t.Errorf("expandPath(~/.test) = %s, want %s", expanded, expected)
	}
}

func TestAccountExistsAndNextAccountIndex(t *testing.T) {
	store := newTestStorage(t)

	exists, err := store.AccountExists("primary")
	if err != nil {
		t.Fatalf("AccountExists() error = %v", err)
	}
	if exists {
		t.Error("AccountExists(\"primary\") = true before any account was saved")
	}

	index, err := store.NextAccountIndex()
	if err != nil {
		t.Fatalf("NextAccountIndex() error = %v", err)
	}
	if index != 0 {
		t.Errorf("NextAccountIndex() on an empty store = %d, want 0", index)
	}

	account := model.NewAccount("account-0", 0, "primary", model.ClientOptions{Node: "https://node.example"}, model.SignerMnemonic)
	if err := store.SaveAccount(account); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}

	exists, err = store.AccountExists("primary")
	if err != nil {
		t.Fatalf("AccountExists() error = %v", err)
	}
	if !exists {
		t.Error("AccountExists(\"primary\") = false after saving it")
	}

	index, err = store.NextAccountIndex()
	if err != nil {
		t.Fatalf("NextAccountIndex() error = %v", err)
	}
	if index != 1 {
		t.Errorf("NextAccountIndex() after one account = %d, want 1", index)
	}
}

func TestSaveAndLoadAccountRoundtrip(t *testing.T) {
	store := newTestStorage(t)

	account := model.NewAccount("account-0", 0, "primary", model.ClientOptions{Node: "https://node.example", LocalPoW: true, NetworkID: "testnet"}, model.SignerMnemonic)
	if err := store.SaveAccount(account); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}

	got, err := store.LoadAccount("account-0")
	if err != nil {
		t.Fatalf("LoadAccount() error = %v", err)
	}
	if got.Alias != "primary" || got.Index != 0 || got.ClientOptions.Node != "https://node.example" {
		t.Errorf("LoadAccount() = %+v, want matching fields to the saved account", got)
	}
}

func TestSaveAndLoadAddressesIncludesOutputs(t *testing.T) {
	store := newTestStorage(t)

	account := model.NewAccount("account-0", 0, "primary", model.ClientOptions{}, model.SignerMnemonic)
	if err := store.SaveAccount(account); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}

	addr := model.NewAddress("addr-bech32", 0, false)
	addr.MergeOutput(&model.Output{
		ID:      model.OutputID{TransactionID: "tx1", OutputIndex: 0},
		Amount:  1_000_000,
		Address: addr.Bech32,
		Kind:    model.OutputSingleSpend,
	})
	if err := store.SaveAddress(account.ID, addr); err != nil {
		t.Fatalf("SaveAddress() error = %v", err)
	}

	loaded, err := store.LoadAddresses(account.ID)
	if err != nil {
		t.Fatalf("LoadAddresses() error = %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("LoadAddresses() returned %d addresses, want 1", len(loaded))
	}
	if loaded[0].Balance != 1_000_000 {
		t.Errorf("loaded address balance = %d, want 1,000,000", loaded[0].Balance)
	}
	if len(loaded[0].Outputs) != 1 {
		t.Errorf("loaded address has %d outputs, want 1", len(loaded[0].Outputs))
	}
}

func TestSaveAndLoadMessage(t *testing.T) {
	store := newTestStorage(t)

	account := model.NewAccount("account-0", 0, "primary", model.ClientOptions{}, model.SignerMnemonic)
	if err := store.SaveAccount(account); err != nil {
		t.Fatalf("SaveAccount() error = %v", err)
	}

	msg := &model.Message{ID: "msg-1", PayloadKind: model.PayloadIndexation, Confirmed: model.ConfirmationUnknown}
	if err := store.SaveMessage(account.ID, msg); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	got, err := store.GetMessage(account.ID, "msg-1")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if got.ID != "msg-1" || got.PayloadKind != model.PayloadIndexation {
		t.Errorf("GetMessage() = %+v, want matching fields", got)
	}

	msg.Confirmed = model.ConfirmationTrue
	if err := store.SaveMessage(account.ID, msg); err != nil {
		t.Fatalf("SaveMessage() update error = %v", err)
	}
	got, err = store.GetMessage(account.ID, "msg-1")
	if err != nil {
		t.Fatalf("GetMessage() after update error = %v", err)
	}
	if got.Confirmed != model.ConfirmationTrue {
		t.Errorf("GetMessage() after update Confirmed = %v, want ConfirmationTrue", got.Confirmed)
	}
}

func TestListAccountIDsOrderedByIndex(t *testing.T) {
	store := newTestStorage(t)

	for i := 2; i >= 0; i-- {
		account := model.NewAccount(
			filepath.Join("account", string(rune('0'+i))),
			uint32(i),
			"alias-"+string(rune('0'+i)),
			model.ClientOptions{},
			model.SignerMnemonic,
		)
		if err := store.SaveAccount(account); err != nil {
			t.Fatalf("SaveAccount() error = %v", err)
		}
	}

	ids, err := store.ListAccountIDs()
	if err != nil {
		t.Fatalf("ListAccountIDs() error = %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ListAccountIDs() returned %d ids, want 3", len(ids))
	}
}

func TestBoolToInt(t *testing.T) {
	if boolToInt(true) != 1 {
		t.Error("boolToInt(true) should return 1")
	}
	if boolToInt(false) != 0 {
		t.Error("boolToInt(false) should return 0")
	}
}
