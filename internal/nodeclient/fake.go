package nodeclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

// Fake is an in-memory Client used by tests throughout the wallet core.
// It never talks to a real node; callers seed it directly.
type Fake struct {
	mu sync.Mutex

	OutputIDs map[string][]model.OutputID
	Balances  map[string]uint64
	Outputs   map[model.OutputID]*model.Output
	Messages  map[string]*model.Message
	Metadata  map[string]*MessageMetadata

	Posted []*model.Message
	Retried []string

	// RetryResult, if set, is returned by Retry for every call.
	RetryResult *RepostResult
}

// NewFake builds an empty fake ready to be seeded by a test.
func NewFake() *Fake {
	return &Fake{
		OutputIDs: make(map[string][]model.OutputID),
		Balances:  make(map[string]uint64),
		Outputs:   make(map[model.OutputID]*model.Output),
		Messages:  make(map[string]*model.Message),
		Metadata:  make(map[string]*MessageMetadata),
	}
}

func (f *Fake) GetAddressOutputs(ctx context.Context, addr string, includeSpent bool) ([]model.OutputID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OutputID
	for _, id := range f.OutputIDs[addr] {
		o, ok := f.Outputs[id]
		if ok && o.IsSpent && !includeSpent {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (f *Fake) GetBalance(ctx context.Context, addr string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balances[addr], nil
}

func (f *Fake) GetOutput(ctx context.Context, id model.OutputID) (*model.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.Outputs[id]
	if !ok {
		return nil, fmt.Errorf("nodeclient: fake has no output %s", id)
	}
	return o, nil
}

func (f *Fake) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.Messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return m, nil
}

func (f *Fake) GetMessageMetadata(ctx context.Context, id string) (*MessageMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.Metadata[id]
	if !ok {
		return &MessageMetadata{LedgerInclusionState: InclusionUnknown}, nil
	}
	return meta, nil
}

func (f *Fake) PostMessage(ctx context.Context, m *model.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Posted = append(f.Posted, m)
	f.Messages[m.ID] = m
	return m.ID, nil
}

func (f *Fake) Retry(ctx context.Context, id string) (*RepostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Retried = append(f.Retried, id)
	if f.RetryResult != nil {
		return f.RetryResult, nil
	}
	return &RepostResult{Kind: RepostNoNeeded, MessageID: id}, nil
}

func (f *Fake) FindOutputs(ctx context.Context, ids []model.OutputID, addrs []string) ([]*model.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Output
	for _, id := range ids {
		if o, ok := f.Outputs[id]; ok {
			out = append(out, o)
		}
	}
	for _, addr := range addrs {
		for _, id := range f.OutputIDs[addr] {
			if o, ok := f.Outputs[id]; ok {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func (f *Fake) FinishPoW(ctx context.Context, m *model.Message) error {
	return nil
}

// SeedOutput registers an output as belonging to addr and resolvable by
// id, the way a real node would after it's been observed on the ledger.
func (f *Fake) SeedOutput(addr string, o *model.Output) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OutputIDs[addr] = append(f.OutputIDs[addr], o.ID)
	f.Outputs[o.ID] = o
}

// SeedMessage registers a message body and its ledger inclusion state.
func (f *Fake) SeedMessage(m *model.Message, state InclusionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages[m.ID] = m
	f.Metadata[m.ID] = &MessageMetadata{LedgerInclusionState: state}
}
