package model

import (
	"sync"
	"time"
)

// SignerType tags which signing provider an account uses.
type SignerType string

const (
	SignerMnemonic  SignerType = "mnemonic"
	SignerHardware  SignerType = "hardware"
	SignerSimulator SignerType = "simulator"
)

// ClientOptions is the subset of node connection configuration an account
// carries (endpoint, local pow, network). Its fields are intentionally
// opaque here — the node client package owns their meaning.
type ClientOptions struct {
	Node         string
	LocalPoW     bool
	NetworkID    string
}

// Account is the ordered collection of addresses and messages behind one
// alias. The Account Manager owns the set of Accounts; an Account owns its
// Addresses and Messages.
type Account struct {
	mu sync.RWMutex

	ID             string
	Index          uint32
	Alias          string
	CreatedAt      time.Time
	LastSyncedAt   time.Time
	ClientOptions  ClientOptions
	SignerType     SignerType

	addresses []*Address
	messages  map[string]*Message
}

// NewAccount constructs an empty account ready for gap-limit discovery.
func NewAccount(id string, index uint32, alias string, clientOptions ClientOptions, signerType SignerType) *Account {
	return &Account{
		ID:            id,
		Index:         index,
		Alias:         alias,
		CreatedAt:     time.Now(),
		ClientOptions: clientOptions,
		SignerType:    signerType,
		messages:      make(map[string]*Message),
	}
}

// Lock/RLock/Unlock/RUnlock expose the account's reader/writer lock
// directly: sync holds the write lock only while appending results and
// persisting, reading snapshots under a read lock and releasing it before
// network I/O.
func (a *Account) Lock()    { a.mu.Lock() }
func (a *Account) Unlock()  { a.mu.Unlock() }
func (a *Account) RLock()   { a.mu.RLock() }
func (a *Account) RUnlock() { a.mu.RUnlock() }

// Addresses returns the account's addresses in derivation order. Caller
// must hold at least a read lock.
func (a *Account) Addresses() []*Address {
	return a.addresses
}

// Messages returns all known messages, keyed by id. Caller must hold at
// least a read lock.
func (a *Account) Messages() map[string]*Message {
	return a.messages
}

// AddressByBech32 looks up an address by its bech32 string.
func (a *Account) AddressByBech32(bech32 string) *Address {
	for _, addr := range a.addresses {
		if addr.Bech32 == bech32 {
			return addr
		}
	}
	return nil
}

// SetAddresses replaces the account's address list. Caller must hold the
// write lock.
func (a *Account) SetAddresses(addrs []*Address) {
	a.addresses = addrs
}

// UpsertAddress appends addr if its bech32 isn't already known, otherwise
// replaces the existing entry in place (keeping list order). Caller must
// hold the write lock.
func (a *Account) UpsertAddress(addr *Address) {
	for i, existing := range a.addresses {
		if existing.Bech32 == addr.Bech32 {
			a.addresses[i] = addr
			return
		}
	}
	a.addresses = append(a.addresses, addr)
}

// PutMessage records or replaces a message by id. Caller must hold the
// write lock.
func (a *Account) PutMessage(m *Message) {
	a.messages[m.ID] = m
}

// Message looks up a message by id. Caller must hold at least a read lock.
func (a *Account) Message(id string) (*Message, bool) {
	m, ok := a.messages[id]
	return m, ok
}

// Balance totals the available balance across all addresses.
func (a *Account) Balance() uint64 {
	var total uint64
	for _, addr := range a.addresses {
		total += addr.AvailableBalance()
	}
	return total
}

// LatestAddress returns the last public (external) address — the
// "deposit address" gap-limit discovery leaves unused — or nil if the
// account has no public addresses.
func (a *Account) LatestAddress() *Address {
	var latest *Address
	for _, addr := range a.addresses {
		if !addr.Internal {
			latest = addr
		}
	}
	return latest
}

// LatestInternalAddress returns the last change address, or nil.
func (a *Account) LatestInternalAddress() *Address {
	var latest *Address
	for _, addr := range a.addresses {
		if addr.Internal {
			latest = addr
		}
	}
	return latest
}

// InternalAddressAtIndex finds an existing change address at the given
// derivation index, or nil.
func (a *Account) InternalAddressAtIndex(index uint32) *Address {
	for _, addr := range a.addresses {
		if addr.Internal && addr.Index == index {
			return addr
		}
	}
	return nil
}

// IsLatestAddressUnused reports whether the account's latest public
// address has never received anything — the original wallet.rs' account
// method of the same name (_examples/original_source).
func (a *Account) IsLatestAddressUnused() bool {
	latest := a.LatestAddress()
	if latest == nil {
		return true
	}
	return len(latest.Outputs) == 0
}

// Snapshot takes a deep, consistent copy of addresses and messages for
// pre/post-sync diffing. Caller must hold at least a
// read lock for the duration of the call.
type Snapshot struct {
	Addresses map[string]*Address // by bech32
	Messages  map[string]*Message
}

func (a *Account) Snapshot() *Snapshot {
	s := &Snapshot{
		Addresses: make(map[string]*Address, len(a.addresses)),
		Messages:  make(map[string]*Message, len(a.messages)),
	}
	for _, addr := range a.addresses {
		s.Addresses[addr.Bech32] = addr.Clone()
	}
	for id, m := range a.messages {
		cp := *m
		s.Messages[id] = &cp
	}
	return s
}
