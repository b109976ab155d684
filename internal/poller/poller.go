// Package poller implements the background multi-account sync loop:
// periodic account syncing, new-account discovery, unconfirmed-message
// retry/promote/reattach, and automatic output consolidation.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/klingon-exchange/tangle-wallet-core/internal/accountsync"
	"github.com/klingon-exchange/tangle-wallet-core/internal/events"
	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/transfer"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
	"github.com/klingon-exchange/tangle-wallet-core/pkg/logging"
)

// DefaultOutputConsolidationThreshold is the number of outputs an address
// may accumulate before automatic consolidation sweeps it.
const DefaultOutputConsolidationThreshold = 100

// AccountStore is the subset of the Account Manager the poller needs:
// enumerate known accounts and create the next one when discovery finds
// the highest-indexed account is no longer empty.
type AccountStore interface {
	Accounts() []*model.Account
	CreateNextAccount(ctx context.Context) (*model.Account, error)
}

// Options configures one Poller.
type Options struct {
	GapLimit                     uint32
	ConsolidationEnabled         bool
	OutputConsolidationThreshold int
	// LiveMonitoringHealthy, when set, lets the poller skip a full sync
	// if push-based monitoring (e.g. MQTT) is already keeping state
	// fresh and the previous tick succeeded.
	LiveMonitoringHealthy func() bool
}

// Poller drives ticks for every account behind one store, single-flighted
// so overlapping ticks or an explicit sync request collapse into one
// execution.
type Poller struct {
	client  nodeclient.Client
	store   AccountStore
	engine  *transfer.Engine
	persist accountsync.Persister

	opts Options
	log  *logging.Logger

	sf    sync.Mutex // guards lastTickSucceeded; singleflight guards concurrent ticks
	group singleflight.Group
	lastTickSucceeded bool
}

// New builds a Poller over the given collaborators.
func New(client nodeclient.Client, store AccountStore, engine *transfer.Engine, persist accountsync.Persister, opts Options) *Poller {
	if opts.OutputConsolidationThreshold == 0 {
		opts.OutputConsolidationThreshold = DefaultOutputConsolidationThreshold
	}
	return &Poller{
		client:  client,
		store:   store,
		engine:  engine,
		persist: persist,
		opts:    opts,
		log:     logging.Default().Component("poller"),
	}
}

// Tick runs one poll cycle. Concurrent calls collapse into a single
// execution via the internal single-flight group. A panic inside the
// tick is recovered and surfaced as a walleterr.PanicError rather than
// propagating and killing whatever loop is driving Tick.
func (p *Poller) Tick(ctx context.Context) (evs []events.Event, err error) {
	v, err, _ := p.group.Do("tick", func() (result interface{}, rerr error) {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("recovered panic in poll tick", "panic", r)
				rerr = walleterr.NewPanicError(r)
			}
		}()
		return p.tick(ctx)
	})
	if err != nil {
		p.setLastTickSucceeded(false)
		return nil, err
	}
	p.setLastTickSucceeded(true)
	if v == nil {
		return nil, nil
	}
	return v.([]events.Event), nil
}

func (p *Poller) setLastTickSucceeded(ok bool) {
	p.sf.Lock()
	defer p.sf.Unlock()
	p.lastTickSucceeded = ok
}

func (p *Poller) shouldSkipFullSync() bool {
	p.sf.Lock()
	defer p.sf.Unlock()
	if p.opts.LiveMonitoringHealthy == nil {
		return false
	}
	return p.lastTickSucceeded && p.opts.LiveMonitoringHealthy()
}

func (p *Poller) tick(ctx context.Context) ([]events.Event, error) {
	var all []events.Event

	if !p.shouldSkipFullSync() {
		evs, err := p.syncAllAccounts(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, evs...)
	}

	discoveryEvents, err := p.discoverNewAccounts(ctx)
	if err != nil {
		return nil, err
	}
	all = append(all, discoveryEvents...)

	repostEvents, err := p.retryUnconfirmed(ctx)
	if err != nil {
		return nil, err
	}
	all = append(all, repostEvents...)

	if p.opts.ConsolidationEnabled {
		consolidationEvents, err := p.consolidate(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, consolidationEvents...)
	}

	return all, nil
}

func (p *Poller) syncAllAccounts(ctx context.Context) ([]events.Event, error) {
	accounts := p.store.Accounts()
	results := make([][]events.Event, len(accounts))

	var wg sync.WaitGroup
	errs := make([]error, len(accounts))
	for i, account := range accounts {
		i, account := i, account
		wg.Add(1)
		go func() {
			defer wg.Done()
			evs, err := accountsync.SyncAddresses(ctx, p.client, p.engine.Provider, p.persist, account, accountsync.Options{GapLimit: p.opts.GapLimit})
			if err != nil {
				errs[i] = fmt.Errorf("poller: sync account %s: %w", account.ID, err)
				return
			}
			msgEvs, err := accountsync.SyncMessages(ctx, p.client, p.persist, account, false)
			if err != nil {
				errs[i] = fmt.Errorf("poller: sync messages for account %s: %w", account.ID, err)
				return
			}
			results[i] = append(evs, msgEvs...)
		}()
	}
	wg.Wait()

	var all []events.Event
	for i, err := range errs {
		if err != nil {
			return nil, err
		}
		all = append(all, results[i]...)
	}
	return all, nil
}

// discoverNewAccounts implements step 2: while the highest-indexed
// account is non-empty after syncing, create and sync the next one.
func (p *Poller) discoverNewAccounts(ctx context.Context) ([]events.Event, error) {
	var all []events.Event
	for {
		accounts := p.store.Accounts()
		highest := highestIndexed(accounts)
		if highest == nil || highest.Balance() == 0 {
			return all, nil
		}

		account, err := p.store.CreateNextAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("poller: create next account: %w", err)
		}
		evs, err := accountsync.SyncAddresses(ctx, p.client, p.engine.Provider, p.persist, account, accountsync.Options{GapLimit: p.opts.GapLimit})
		if err != nil {
			return nil, fmt.Errorf("poller: sync newly discovered account %s: %w", account.ID, err)
		}
		all = append(all, evs...)

		if account.Balance() == 0 {
			return all, nil // newly discovered account came back empty: stop
		}
	}
}

func highestIndexed(accounts []*model.Account) *model.Account {
	var highest *model.Account
	for _, a := range accounts {
		if highest == nil || a.Index > highest.Index {
			highest = a
		}
	}
	return highest
}

// retryUnconfirmed implements step 3: ask the node to reattach or
// promote every account's unconfirmed messages, classify the result, and
// surface confirmation changes the node resolved without a repost.
func (p *Poller) retryUnconfirmed(ctx context.Context) ([]events.Event, error) {
	var all []events.Event
	for _, account := range p.store.Accounts() {
		account.Lock()
		var unconfirmed []*model.Message
		for _, m := range account.Messages() {
			if m.Confirmed != model.ConfirmationTrue {
				unconfirmed = append(unconfirmed, m)
			}
		}
		account.Unlock()

		for _, m := range unconfirmed {
			evs, err := p.retryOne(ctx, account, m)
			if err != nil {
				return nil, fmt.Errorf("poller: retry message %s: %w", m.ID, err)
			}
			all = append(all, evs...)
		}
	}
	return all, nil
}

func (p *Poller) retryOne(ctx context.Context, account *model.Account, m *model.Message) ([]events.Event, error) {
	result, err := p.client.Retry(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	account.Lock()
	defer account.Unlock()

	switch result.Kind {
	case nodeclient.RepostReattachment:
		if result.Message != nil {
			account.PutMessage(result.Message)
		}
		return []events.Event{events.NewReattachment(account.ID, m.ID, result.MessageID)}, nil

	case nodeclient.RepostPromotion:
		if result.Message != nil {
			account.PutMessage(result.Message)
		}
		return nil, nil

	case nodeclient.RepostNoNeeded:
		meta, err := p.client.GetMessageMetadata(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		before := m.Confirmed
		switch meta.LedgerInclusionState {
		case nodeclient.InclusionIncluded:
			m.ApplyConfirmation(model.ConfirmationTrue)
		case nodeclient.InclusionConflicting, nodeclient.InclusionNoTransaction:
			m.ApplyConfirmation(model.ConfirmationFalse)
		}
		if m.Confirmed == before {
			return nil, nil
		}
		return []events.Event{{
			Kind:      events.KindConfirmationChange,
			AccountID: account.ID,
			Confirmation: &events.ConfirmationChange{
				MessageID: m.ID,
				Before:    before,
				After:     m.Confirmed,
			},
		}}, nil

	default:
		return nil, errors.New("poller: unknown repost kind")
	}
}

// consolidate implements step 4: for every address over the
// consolidation threshold, issue self-transfers chunked by
// model.InputOutputCountMax that collapse its outputs into one UTXO.
func (p *Poller) consolidate(ctx context.Context) ([]events.Event, error) {
	if !signer.SupportsConsolidation(p.engine.Provider) {
		return nil, nil
	}

	var all []events.Event
	for _, account := range p.store.Accounts() {
		account.RLock()
		type job struct {
			addr    *model.Address
			outputs []*model.Output
		}
		var jobs []job
		for _, addr := range account.Addresses() {
			outputs := addr.AvailableOutputs()
			if len(outputs) > p.opts.OutputConsolidationThreshold {
				jobs = append(jobs, job{addr: addr, outputs: outputs})
			}
		}
		account.RUnlock()

		for _, j := range jobs {
			for start := 0; start < len(j.outputs); start += model.InputOutputCountMax {
				end := start + model.InputOutputCountMax
				if end > len(j.outputs) {
					end = len(j.outputs)
				}
				chunk := j.outputs[start:end]
				var total uint64
				for _, o := range chunk {
					total += o.Amount
				}

				_, evs, err := p.engine.Send(ctx, account, model.Transfer{
					DestinationAddress: j.addr.Bech32,
					Amount:             total,
					RemainderStrategy:  model.RemainderReuseAddress,
					ExplicitInput:      &model.ExplicitInput{Address: j.addr.Bech32, Outputs: chunk},
					SuppressEvents:     true,
				})
				if err != nil {
					return nil, fmt.Errorf("poller: consolidate address %s: %w", j.addr.Bech32, err)
				}
				all = append(all, evs...)
			}
		}
	}
	return all, nil
}
