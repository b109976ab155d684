package transfer

import (
	"context"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
)

// nodeOutputLister backs dust.OutputLister for addresses the local
// account doesn't own (an external destination), by asking the node
// directly.
type nodeOutputLister struct {
	client nodeclient.Client
}

func (l nodeOutputLister) ListOutputs(ctx context.Context, address string) ([]*model.Output, error) {
	return l.client.FindOutputs(ctx, nil, []string{address})
}

func (e *Engine) persist(account *model.Account, msg *model.Message) error {
	if err := e.Persister.SaveAccount(account); err != nil {
		return err
	}
	for _, addr := range account.Addresses() {
		if err := e.Persister.SaveAddress(account.ID, addr); err != nil {
			return err
		}
	}
	return e.Persister.SaveMessage(account.ID, msg)
}
