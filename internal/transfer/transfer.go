// Package transfer implements the transfer engine: input selection,
// remainder placement, dust-policy enforcement, signing, proof-of-work
// and broadcast for one value transaction.
package transfer

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/tangle-wallet-core/internal/dust"
	"github.com/klingon-exchange/tangle-wallet-core/internal/events"
	"github.com/klingon-exchange/tangle-wallet-core/internal/inputselect"
	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
	"github.com/klingon-exchange/tangle-wallet-core/pkg/logging"
)

// Persister writes an account's post-transfer state durably.
type Persister interface {
	SaveAccount(a *model.Account) error
	SaveAddress(accountID string, addr *model.Address) error
	SaveMessage(accountID string, m *model.Message) error
}

// Engine drives transfers for a single wallet: it owns no account state
// itself, only the collaborators a transfer needs.
type Engine struct {
	Client    nodeclient.Client
	Provider  signer.Provider
	Locked    *model.LockedAddressSet
	Persister Persister
	CoinType  uint32
	log       *logging.Logger
}

// NewEngine builds a transfer engine over the given collaborators.
func NewEngine(client nodeclient.Client, provider signer.Provider, locked *model.LockedAddressSet, persister Persister, coinType uint32) *Engine {
	return &Engine{
		Client:    client,
		Provider:  provider,
		Locked:    locked,
		Persister: persister,
		CoinType:  coinType,
		log:       logging.Default().Component("transfer"),
	}
}

// selectedInput is one address contributing to a transfer, with the full
// set of its outputs being spent (a transfer spends an address's entire
// available balance, never a partial output).
type selectedInput struct {
	address  *model.Address
	outputs  []*model.Output
	keyIndex uint32
	internal bool
}

// Send executes the full transfer procedure against account and returns
// the broadcast message plus the events the resulting balance/message
// changes produced.
func (e *Engine) Send(ctx context.Context, account *model.Account, t model.Transfer) (*model.Message, []events.Event, error) {
	account.Lock()
	defer account.Unlock()

	pre := account.Snapshot()

	if err := validatePreconditions(account, &t); err != nil {
		return nil, nil, err
	}

	selected, err := e.selectInputs(account, &t)
	if err != nil {
		return nil, nil, err
	}

	lockedAddrs := make([]string, len(selected))
	for i, s := range selected {
		lockedAddrs[i] = s.address.Bech32
	}

	msg, err := e.buildAndBroadcast(ctx, account, &t, selected)
	if err != nil {
		e.Locked.Release(lockedAddrs...)
		return nil, nil, err
	}

	account.PutMessage(msg)
	e.Locked.Release(lockedAddrs...)

	if e.Persister != nil {
		if err := e.persist(account, msg); err != nil {
			// The message is already on the ledger; a sync round will
			// re-ingest it via the account syncer. Surface the error so
			// the caller can retry persistence, but don't undo the send.
			return msg, nil, fmt.Errorf("transfer: persist after broadcast: %w", err)
		}
	}

	if t.SuppressEvents {
		return msg, nil, nil
	}

	post := account.Snapshot()
	return msg, events.Diff(account.ID, pre, post), nil
}

func validatePreconditions(account *model.Account, t *model.Transfer) error {
	if t.Amount == 0 {
		return fmt.Errorf("transfer: amount must be greater than zero")
	}
	if t.Amount > account.Balance() {
		return walleterr.ErrInsufficientFunds
	}
	if account.AddressByBech32(t.DestinationAddress) != nil {
		// Sending to one's own address: the only strategy that
		// disambiguates which output is "the payment" versus "the
		// remainder" is reusing the spending address itself.
		t.RemainderStrategy = model.RemainderReuseAddress
	}
	if t.RemainderStrategy == model.RemainderAccountAddress {
		if account.AddressByBech32(t.RemainderAddress) == nil {
			return fmt.Errorf("transfer: remainder address %s: %w", t.RemainderAddress, walleterr.ErrInvalidRemainderValueAddress)
		}
	}
	return nil
}

// selectInputs runs the locked-mutex-guarded selection step (steps 1-3):
// pick addresses, append them to the locked set, release the mutex.
func (e *Engine) selectInputs(account *model.Account, t *model.Transfer) ([]selectedInput, error) {
	if t.ExplicitInput != nil {
		return e.selectExplicitInput(account, t.ExplicitInput)
	}

	e.Locked.Lock()
	defer e.Locked.Unlock()

	candidates := candidateInputs(account, t.DestinationAddress, e.Locked)
	chosen, err := inputselect.Select(t.Amount, candidates)
	if err != nil {
		return nil, err
	}

	destinationIsOwn := account.AddressByBech32(t.DestinationAddress) != nil
	if destinationIsOwn && t.RemainderStrategy == model.RemainderReuseAddress {
		if sum(chosen) > t.Amount {
			excluding := candidateInputsExcluding(account, t.DestinationAddress, e.Locked)
			chosen, err = inputselect.Select(t.Amount, excluding)
			if err != nil {
				return nil, err
			}
		}
	}

	selected := make([]selectedInput, len(chosen))
	for i, c := range chosen {
		addr := account.AddressByBech32(c.Address)
		selected[i] = selectedInput{
			address:  addr,
			outputs:  addr.AvailableOutputs(),
			keyIndex: c.KeyIndex,
			internal: c.Internal,
		}
		e.Locked.Add(c.Address)
	}
	return selected, nil
}

func (e *Engine) selectExplicitInput(account *model.Account, explicit *model.ExplicitInput) ([]selectedInput, error) {
	addr := account.AddressByBech32(explicit.Address)
	if addr == nil {
		return nil, fmt.Errorf("transfer: explicit input address %s does not belong to this account", explicit.Address)
	}

	e.Locked.Lock()
	defer e.Locked.Unlock()
	if e.Locked.Contains(explicit.Address) {
		return nil, fmt.Errorf("transfer: address %s is already locked by another transfer", explicit.Address)
	}
	e.Locked.Add(explicit.Address)

	return []selectedInput{{
		address:  addr,
		outputs:  explicit.Outputs,
		keyIndex: addr.Index,
		internal: addr.Internal,
	}}, nil
}

func candidateInputs(account *model.Account, destination string, locked *model.LockedAddressSet) []inputselect.Input {
	var out []inputselect.Input
	for _, addr := range account.Addresses() {
		if locked.Contains(addr.Bech32) {
			continue
		}
		bal := addr.AvailableBalance()
		if bal == 0 {
			continue
		}
		if addr.Bech32 == destination && len(addr.AvailableOutputs()) <= 1 {
			continue
		}
		out = append(out, inputselect.Input{
			Address:          addr.Bech32,
			Internal:         addr.Internal,
			KeyIndex:         addr.Index,
			AvailableBalance: bal,
		})
	}
	return out
}

func candidateInputsExcluding(account *model.Account, destination string, locked *model.LockedAddressSet) []inputselect.Input {
	var out []inputselect.Input
	for _, addr := range account.Addresses() {
		if locked.Contains(addr.Bech32) || addr.Bech32 == destination {
			continue
		}
		bal := addr.AvailableBalance()
		if bal == 0 {
			continue
		}
		out = append(out, inputselect.Input{
			Address:          addr.Bech32,
			Internal:         addr.Internal,
			KeyIndex:         addr.Index,
			AvailableBalance: bal,
		})
	}
	return out
}

func sum(inputs []inputselect.Input) uint64 {
	var total uint64
	for _, in := range inputs {
		total += in.AvailableBalance
	}
	return total
}
