// Package signer defines the signing-provider contract: the capability set
// {generate_address, sign_message, store_mnemonic} that a software
// mnemonic, a hardware device, or a simulator can each back.
package signer

import (
	"context"
	"errors"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

// ErrLocked is returned by GenerateAddress or SignMessage when the
// underlying keystore is unavailable — a hardware wallet disconnected, or
// a software keystore not yet unlocked. Gap-limit discovery treats this
// as a terminal condition for the current batch, not a retryable error.
var ErrLocked = errors.New("signer: keystore locked")

// DerivationPath identifies one HD key: m/44'/coin'/account'/internal'/index',
// all five segments hardened.
type DerivationPath struct {
	CoinType uint32
	Account  uint32
	Internal bool
	Index    uint32
}

// GenerateMetadata carries context about why an address is being derived.
// Syncing distinguishes silent background derivations (gap-limit
// discovery) from user-confirmed ones — hardware signers may require a
// physical confirmation only in the latter case.
type GenerateMetadata struct {
	Syncing bool
}

// SignMetadata carries the remainder placement a transfer's essence
// encodes, so a signer capable of verifying display can show it to the
// user before authorizing.
type SignMetadata struct {
	RemainderAddress string
	RemainderValue   uint64
	RemainderDeposit bool
}

// PerInputPath maps one essence input to the derivation path that owns it.
type PerInputPath struct {
	InputIndex int
	Path       DerivationPath
}

// Provider is the signing-provider contract. Implementations serialize
// their own operations internally; callers must not assume concurrent
// calls on the same provider are safe to reorder.
type Provider interface {
	// StoreMnemonic hands a mnemonic (or hardware pairing reference) for
	// path to the implementation. MnemonicSigner and Fake accept it and
	// store nothing.
	StoreMnemonic(ctx context.Context, path, mnemonic string) error

	// GenerateAddress derives the address at (account, index, internal).
	// Returns ErrLocked if the keystore cannot currently be reached.
	GenerateAddress(ctx context.Context, account uint32, index uint32, internal bool, meta GenerateMetadata) (*model.Address, error)

	// SignMessage produces one unlock block per essence input, using the
	// supplied per-input derivation paths.
	SignMessage(ctx context.Context, essence *model.Essence, perInput []PerInputPath, meta SignMetadata) ([]model.UnlockBlock, error)
}

// SupportsConsolidation reports whether p can be driven through repeated
// self-transfers without interactive confirmation at every step — true
// for software and simulator signers, false for most hardware signers.
func SupportsConsolidation(p Provider) bool {
	type consolidator interface{ SupportsConsolidation() bool }
	if c, ok := p.(consolidator); ok {
		return c.SupportsConsolidation()
	}
	return false
}
