// Package actor implements the wallet core's tagged request/response IPC
// surface: a single Dispatch entrypoint keyed by an action tag, mirroring
// the IOTA wallet.rs actor's cmd/payload message shape but realized as a
// Go handler registry in the manner of the teacher's JSON-RPC dispatcher
// (internal/rpc/server.go's method-name -> Handler map).
package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/klingon-exchange/tangle-wallet-core/internal/accountsync"
	"github.com/klingon-exchange/tangle-wallet-core/internal/manager"
	"github.com/klingon-exchange/tangle-wallet-core/internal/nodeclient"
	"github.com/klingon-exchange/tangle-wallet-core/internal/poller"
	"github.com/klingon-exchange/tangle-wallet-core/internal/signer"
	"github.com/klingon-exchange/tangle-wallet-core/pkg/logging"
)

// Message is one request sent to the actor. Action selects the handler;
// Payload is the action's JSON-encoded arguments. ID correlates a Response
// back to its Message — callers that leave it blank get one assigned.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers a Message with the same ID.
type Response struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Handler implements one action.
type Handler func(ctx context.Context, a *Actor, payload json.RawMessage) (interface{}, error)

// Actor owns the account manager and node/signer collaborators needed to
// serve actions that don't go through the manager's own surface (address
// generation, single-account sync, message reattachment).
type Actor struct {
	manager  *manager.Manager
	client   nodeclient.Client
	provider signer.Provider
	persist  accountsync.Persister
	poller   *poller.Poller
	log      *logging.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// New builds an Actor over the given manager and collaborators. poller may
// be nil if the caller doesn't run background sync — SyncAccounts then
// falls back to a one-shot sync of every account without discovery/retry.
func New(mgr *manager.Manager, client nodeclient.Client, provider signer.Provider, persist accountsync.Persister, p *poller.Poller) *Actor {
	a := &Actor{
		manager:  mgr,
		client:   client,
		provider: provider,
		persist:  persist,
		poller:   p,
		log:      logging.Default().Component("actor"),
		handlers: make(map[string]Handler),
	}
	a.registerHandlers()
	return a
}

// Dispatch runs the Message's action and returns a correlated Response.
// It never returns a Go error itself — failures are reported inside the
// Response so callers on the wire always get a reply.
func (a *Actor) Dispatch(ctx context.Context, msg Message) Response {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	a.mu.RLock()
	handler, ok := a.handlers[msg.Action]
	a.mu.RUnlock()
	if !ok {
		return Response{ID: id, Error: fmt.Sprintf("actor: unknown action %q", msg.Action)}
	}

	result, err := handler(ctx, a, msg.Payload)
	if err != nil {
		return Response{ID: id, Error: err.Error()}
	}
	return Response{ID: id, Result: result}
}

func (a *Actor) register(action string, h Handler) {
	a.handlers[action] = h
}
