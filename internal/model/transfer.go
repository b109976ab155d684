package model

import "sync"

// RemainderStrategy chooses where leftover input value is deposited once
// inputs overshoot the transfer amount.
type RemainderStrategy int

const (
	RemainderReuseAddress RemainderStrategy = iota
	RemainderChangeAddress
	RemainderAccountAddress
)

// ExplicitInput pins a transfer to a specific address and output set,
// bypassing input selection entirely — used by the poller's
// output-consolidation sweeps and by callers that already know which
// UTXOs to spend.
type ExplicitInput struct {
	Address string
	Outputs []*Output
}

// Transfer is the user-supplied description of a value transaction.
type Transfer struct {
	DestinationAddress string
	Amount             uint64
	RemainderStrategy  RemainderStrategy
	RemainderAddress   string // meaningful only when RemainderStrategy == RemainderAccountAddress
	ExplicitInput      *ExplicitInput
	Indexation         []byte

	// SuppressEvents silences the balance/message events this transfer's
	// broadcast would otherwise produce. Output-consolidation sweeps set
	// this true — they are not user-facing transfers.
	SuppressEvents bool
}

// LockedAddressSet is the process-wide set of bech32 addresses currently
// pledged to an in-flight transfer.
// Held only across the input-selection step of a transfer.
type LockedAddressSet struct {
	mu   sync.Mutex
	locked map[string]struct{}
}

// NewLockedAddressSet builds an empty set.
func NewLockedAddressSet() *LockedAddressSet {
	return &LockedAddressSet{locked: make(map[string]struct{})}
}

// Lock acquires the set's mutex for the caller to inspect/mutate
// membership atomically — input selection and appending the result happen
// under one hold, covering only the selection step, not the whole
// transfer.
func (s *LockedAddressSet) Lock()   { s.mu.Lock() }
func (s *LockedAddressSet) Unlock() { s.mu.Unlock() }

// Contains reports whether address is currently locked. Caller must hold
// the mutex.
func (s *LockedAddressSet) Contains(address string) bool {
	_, ok := s.locked[address]
	return ok
}

// Add marks addresses as locked. Caller must hold the mutex.
func (s *LockedAddressSet) Add(addresses ...string) {
	for _, addr := range addresses {
		s.locked[addr] = struct{}{}
	}
}

// Release unmarks addresses, making them available to other transfers.
// Safe to call without already holding the mutex — it acquires it itself.
// Callers release on any error path so a failed transfer never leaves
// addresses permanently locked.
func (s *LockedAddressSet) Release(addresses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, addr := range addresses {
		delete(s.locked, addr)
	}
}
