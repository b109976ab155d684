package signer

import (
	"context"
	"fmt"
	"sync"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

// Fake is an in-memory Provider used by tests. Addresses are deterministic
// strings derived from the path, not real cryptography.
type Fake struct {
	mu     sync.Mutex
	Locked bool
}

// NewFake builds an unlocked fake signer.
func NewFake() *Fake { return &Fake{} }

func (f *Fake) StoreMnemonic(ctx context.Context, path, mnemonic string) error {
	return nil
}

func (f *Fake) GenerateAddress(ctx context.Context, account uint32, index uint32, internal bool, meta GenerateMetadata) (*model.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Locked {
		return nil, ErrLocked
	}
	flag := "pub"
	if internal {
		flag = "int"
	}
	bech32 := fmt.Sprintf("fake1%s%d%d", flag, account, index)
	return model.NewAddress(bech32, index, internal), nil
}

func (f *Fake) SignMessage(ctx context.Context, essence *model.Essence, perInput []PerInputPath, meta SignMetadata) ([]model.UnlockBlock, error) {
	blocks := make([]model.UnlockBlock, len(perInput))
	for i, p := range perInput {
		blocks[i] = model.UnlockBlock{
			Signature: []byte(fmt.Sprintf("sig-%d-%d", p.Path.Account, p.Path.Index)),
			PublicKey: []byte(fmt.Sprintf("pub-%d-%d", p.Path.Account, p.Path.Index)),
		}
	}
	return blocks, nil
}

func (f *Fake) SupportsConsolidation() bool { return true }
