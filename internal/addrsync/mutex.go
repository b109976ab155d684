package addrsync

import (
	"sync"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

// outputMutex guards concurrent insertion into the result maps built up
// by per-output and per-message goroutines — insertion itself stays
// last-write-wins, matching the address's own merge rule.
type outputMutex struct {
	mu sync.Mutex
}

func (m *outputMutex) store(dst map[model.OutputID]*model.Output, id model.OutputID, out *model.Output) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst[id] = out
}

func (m *outputMutex) storeMessage(dst map[string]*model.Message, id string, msg *model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst[id] = msg
}
