// Package events computes the set of events a sync round produced by
// diffing an account's pre-sync and post-sync snapshots.
package events

import (
	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

// Kind classifies an emitted event.
type Kind int

const (
	KindBalanceChange Kind = iota
	KindNewTransaction
	KindConfirmationChange
	KindReattachment
)

// BalanceChange carries a signed delta for one address. MessageID is
// empty when the event represents the unattributed remainder rather than
// a specific observed output.
type BalanceChange struct {
	Address   string
	Delta     int64
	MessageID string
}

// ConfirmationChange carries a message's confirmation transition.
type ConfirmationChange struct {
	MessageID string
	Before    model.Confirmation
	After     model.Confirmation
}

// Event is one emitted notification. Exactly one of the typed fields is
// populated, matching Kind.
type Event struct {
	Kind           Kind
	AccountID      string
	BalanceChange  *BalanceChange
	NewMessage     *model.Message
	Confirmation   *ConfirmationChange
	ReattachedFrom string
	ReattachedTo   string
}

// Diff computes every balance-change, new-transaction, and
// confirmation-change event between pre and post snapshots of the same
// account. Reattachment events are constructed separately by the poller,
// which is the only caller that knows a reattach happened.
func Diff(accountID string, pre, post *model.Snapshot) []Event {
	var out []Event
	out = append(out, diffBalances(accountID, pre, post)...)
	out = append(out, diffMessages(accountID, pre, post)...)
	return out
}

func diffBalances(accountID string, pre, post *model.Snapshot) []Event {
	var out []Event
	for bech32, postAddr := range post.Addresses {
		preAddr, existed := pre.Addresses[bech32]
		var preBalance uint64
		var preOutputs map[model.OutputID]*model.Output
		if existed {
			preBalance = preAddr.Balance
			preOutputs = preAddr.Outputs
		}
		if existed && preBalance == postAddr.Balance && sameOutputs(preOutputs, postAddr.Outputs) {
			continue
		}

		totalDelta := int64(postAddr.Balance) - int64(preBalance)
		var emittedSum int64
		var perOutput []Event

		for id, postOut := range postAddr.Outputs {
			preOut, hadOutput := preOutputs[id]
			switch {
			case !hadOutput:
				// Newly observed output: received.
				perOutput = append(perOutput, Event{
					Kind:      KindBalanceChange,
					AccountID: accountID,
					BalanceChange: &BalanceChange{
						Address:   bech32,
						Delta:     int64(postOut.Amount),
						MessageID: postOut.MessageID,
					},
				})
				emittedSum += int64(postOut.Amount)
			case !preOut.IsSpent && postOut.IsSpent:
				// Newly spent: consumed.
				perOutput = append(perOutput, Event{
					Kind:      KindBalanceChange,
					AccountID: accountID,
					BalanceChange: &BalanceChange{
						Address:   bech32,
						Delta:     -int64(postOut.Amount),
						MessageID: postOut.MessageID,
					},
				})
				emittedSum -= int64(postOut.Amount)
			}
		}

		out = append(out, perOutput...)

		remaining := totalDelta - emittedSum
		if remaining != 0 || len(perOutput) == 0 {
			out = append(out, Event{
				Kind:      KindBalanceChange,
				AccountID: accountID,
				BalanceChange: &BalanceChange{
					Address: bech32,
					Delta:   remaining,
				},
			})
		}
	}
	return out
}

func diffMessages(accountID string, pre, post *model.Snapshot) []Event {
	var out []Event
	for id, postMsg := range post.Messages {
		preMsg, existed := pre.Messages[id]
		if !existed {
			out = append(out, Event{Kind: KindNewTransaction, AccountID: accountID, NewMessage: postMsg})
			continue
		}
		if preMsg.Confirmed != postMsg.Confirmed {
			out = append(out, Event{
				Kind:      KindConfirmationChange,
				AccountID: accountID,
				Confirmation: &ConfirmationChange{
					MessageID: id,
					Before:    preMsg.Confirmed,
					After:     postMsg.Confirmed,
				},
			})
		}
	}
	return out
}

func sameOutputs(a, b map[model.OutputID]*model.Output) bool {
	if len(a) != len(b) {
		return false
	}
	for id, ao := range a {
		bo, ok := b[id]
		if !ok || ao.IsSpent != bo.IsSpent || ao.Amount != bo.Amount {
			return false
		}
	}
	return true
}

// NewReattachment builds a reattachment event for a message the poller
// successfully resubmitted under a new id.
func NewReattachment(accountID, fromMessageID, toMessageID string) Event {
	return Event{
		Kind:           KindReattachment,
		AccountID:      accountID,
		ReattachedFrom: fromMessageID,
		ReattachedTo:   toMessageID,
	}
}

// Sink receives emitted events — delivered to user callbacks and
// optionally persisted via the storage adapter.
type Sink interface {
	Emit(events []Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func([]Event)

func (f SinkFunc) Emit(events []Event) { f(events) }
