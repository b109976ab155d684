// Package nodeclient defines the contract for the external Tangle node.
// The wallet core never talks HTTP/MQTT itself — it calls this interface,
// which production code backs with an HTTP+MQTT client and tests back
// with an in-memory fake.
package nodeclient

import (
	"context"
	"errors"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

// ErrMessageNotFound is returned by GetMessage for a 404 — the address
// syncer treats this as an omission, not an error.
var ErrMessageNotFound = errors.New("message not found")

// MaxOutputIDsPerQuery is the cap the node enforces on GetAddressOutputs;
// the unbounded result is truncated at this many output IDs per call.
const MaxOutputIDsPerQuery = 1000

// InclusionState mirrors the node's message-metadata ledger inclusion
// verdict.
type InclusionState int

const (
	InclusionUnknown InclusionState = iota
	InclusionIncluded
	InclusionConflicting
	InclusionNoTransaction
)

// MessageMetadata is the subset of node metadata the core consults.
type MessageMetadata struct {
	LedgerInclusionState InclusionState
}

// RepostKind classifies what retry/promote/reattach actually did, so the
// caller can tell a reattachment from a promotion.
type RepostKind int

const (
	RepostReattachment RepostKind = iota
	RepostPromotion
	RepostNoNeeded
)

// RepostResult is what retry/promote/reattach returns.
type RepostResult struct {
	Kind      RepostKind
	MessageID string
	Message   *model.Message
}

// Client is the external node collaborator. All methods are network I/O
// and are therefore points where the caller may need to suspend or retry.
type Client interface {
	// GetAddressOutputs returns output IDs known at addr, capped at
	// MaxOutputIDsPerQuery. includeSpent controls whether spent outputs
	// are included in the (possibly truncated) result.
	GetAddressOutputs(ctx context.Context, addr string, includeSpent bool) ([]model.OutputID, error)

	// GetBalance returns the node's view of addr's confirmed balance.
	GetBalance(ctx context.Context, addr string) (uint64, error)

	// GetOutput fetches full output details by id.
	GetOutput(ctx context.Context, id model.OutputID) (*model.Output, error)

	// GetMessage fetches a message body. Returns ErrMessageNotFound if
	// the node has no record of it — the caller treats that as an omission,
	// not an error.
	GetMessage(ctx context.Context, id string) (*model.Message, error)

	// GetMessageMetadata fetches a message's ledger inclusion state.
	GetMessageMetadata(ctx context.Context, id string) (*MessageMetadata, error)

	// PostMessage broadcasts a fully signed, PoW'd message and returns
	// its assigned id.
	PostMessage(ctx context.Context, m *model.Message) (string, error)

	// Retry asks the node to reattach or promote an unconfirmed message;
	// the node decides which.
	Retry(ctx context.Context, id string) (*RepostResult, error)

	// FindOutputs resolves outputs either by id or by owning address.
	FindOutputs(ctx context.Context, ids []model.OutputID, addrs []string) ([]*model.Output, error)

	// FinishPoW runs proof-of-work over an assembled message, filling in
	// whatever nonce/metadata the ledger requires before PostMessage.
	FinishPoW(ctx context.Context, m *model.Message) error
}
