package signer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/pkg/logging"
)

// internalFlag encodes the derivation path's fourth hardened segment:
// 0 for public/external, 1 for change.
const (
	internalFlagPublic uint32 = 0
	internalFlagChange uint32 = 1
	bip44Purpose       uint32 = 44
)

// GenerateMnemonic produces a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("signer: generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic reports whether mnemonic is well-formed BIP39.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// MnemonicSigner is a software signing provider: it holds a BIP39 seed in
// memory and derives fully-hardened BIP44-shaped keys from it
// (m/44'/coin'/account'/internal'/index', every segment hardened). All
// operations serialize on one mutex, matching the "strictly serialized"
// signer discipline.
type MnemonicSigner struct {
	mu        sync.Mutex
	masterKey *hdkeychain.ExtendedKey
	coinType  uint32
	hrp       string
	log       *logging.Logger
}

// NewMnemonicSigner builds a signer from a mnemonic, an optional BIP39
// passphrase, the ledger's registered coin type, and the bech32 human
// readable part used for generated addresses.
func NewMnemonicSigner(mnemonic, passphrase string, coinType uint32, hrp string) (*MnemonicSigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("signer: invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("signer: derive master key: %w", err)
	}
	return &MnemonicSigner{
		masterKey: master,
		coinType:  coinType,
		hrp:       hrp,
		log:       logging.Default().Component("signer"),
	}, nil
}

// StoreMnemonic is a no-op for the in-memory signer; production software
// signers persist through the storage adapter's encryption instead of
// reimplementing it here. Kept to satisfy Provider.
func (s *MnemonicSigner) StoreMnemonic(ctx context.Context, path, mnemonic string) error {
	return nil
}

func (s *MnemonicSigner) derive(account uint32, internal bool, index uint32) (*hdkeychain.ExtendedKey, error) {
	internalFlag := internalFlagPublic
	if internal {
		internalFlag = internalFlagChange
	}

	key := s.masterKey
	for _, segment := range []uint32{bip44Purpose, s.coinType, account, internalFlag, index} {
		var err error
		key, err = key.Derive(hdkeychain.HardenedKeyStart + segment)
		if err != nil {
			return nil, fmt.Errorf("signer: derive path segment %d: %w", segment, err)
		}
	}
	return key, nil
}

// GenerateAddress derives the address at (account, index, internal) and
// bech32-encodes it under the signer's configured HRP.
func (s *MnemonicSigner) GenerateAddress(ctx context.Context, account uint32, index uint32, internal bool, meta GenerateMetadata) (*model.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.derive(account, internal, index)
	if err != nil {
		return nil, err
	}
	pubKey, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("signer: derive public key: %w", err)
	}

	addrStr, err := encodeBech32Address(s.hrp, pubKey)
	if err != nil {
		return nil, err
	}

	if meta.Syncing {
		s.log.Debug("derived address for gap-limit discovery", "account", account, "index", index, "internal", internal)
	}
	return model.NewAddress(addrStr, index, internal), nil
}

// SignMessage produces one unlock block per essence input using the
// per-input derivation paths the caller supplies. The essence's canonical
// byte encoding is what gets signed — callers must seal (sort) the
// essence before calling this.
func (s *MnemonicSigner) SignMessage(ctx context.Context, essence *model.Essence, perInput []PerInputPath, meta SignMetadata) ([]model.UnlockBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest, err := essenceDigest(essence)
	if err != nil {
		return nil, err
	}

	blocks := make([]model.UnlockBlock, len(perInput))
	for i, pip := range perInput {
		key, err := s.derive(pip.Path.Account, pip.Path.Internal, pip.Path.Index)
		if err != nil {
			return nil, err
		}
		privKey, err := key.ECPrivKey()
		if err != nil {
			return nil, fmt.Errorf("signer: derive private key: %w", err)
		}
		pubKey, err := key.ECPubKey()
		if err != nil {
			return nil, fmt.Errorf("signer: derive public key for unlock: %w", err)
		}

		sig := ecdsa.Sign(privKey, digest)
		blocks[i] = model.UnlockBlock{
			Signature: sig.Serialize(),
			PublicKey: pubKey.SerializeCompressed(),
		}
	}
	return blocks, nil
}

// SupportsConsolidation reports true: a software mnemonic signer never
// needs interactive confirmation, so automatic output-consolidation
// sweeps may drive it unattended.
func (s *MnemonicSigner) SupportsConsolidation() bool { return true }

// essenceDigest hashes the essence's canonical byte encoding, which must
// already be sorted by the caller via Essence.SealOrder.
func essenceDigest(e *model.Essence) ([]byte, error) {
	var buf []byte
	for _, in := range e.Inputs {
		buf = append(buf, in.Bytes()...)
	}
	for _, out := range e.Outputs {
		buf = append(buf, out.Bytes()...)
	}
	buf = append(buf, e.Indexation...)
	sum := sha256.Sum256(buf)
	return sum[:], nil
}

// encodeBech32Address hashes pubKey the way the address type's own
// identity does — Hash160, the same pay-to-pubkey-hash construction the
// Bitcoin-family derivation uses — then bech32-encodes it under hrp.
func encodeBech32Address(hrp string, pubKey *btcec.PublicKey) (string, error) {
	hash := btcutil.Hash160(pubKey.SerializeCompressed())
	conv, err := bech32.ConvertBits(hash, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("signer: bech32 bit conversion: %w", err)
	}
	encoded, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", fmt.Errorf("signer: bech32 encode: %w", err)
	}
	return encoded, nil
}
