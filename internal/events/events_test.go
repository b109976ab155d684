package events

import (
	"testing"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
)

func snapshotWithAddress(addr *model.Address, msgs ...*model.Message) *model.Snapshot {
	s := &model.Snapshot{
		Addresses: map[string]*model.Address{addr.Bech32: addr},
		Messages:  make(map[string]*model.Message),
	}
	for _, m := range msgs {
		s.Messages[m.ID] = m
	}
	return s
}

func TestDiffNewOutputEmitsReceivedEvent(t *testing.T) {
	pre := snapshotWithAddress(model.NewAddress("A", 0, false))

	post := model.NewAddress("A", 0, false)
	post.MergeOutput(&model.Output{ID: model.OutputID{TransactionID: "t", OutputIndex: 0}, Amount: 500, MessageID: "m1"})
	postSnap := snapshotWithAddress(post)

	evs := Diff("acct", pre, postSnap)
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(evs), evs)
	}
	if evs[0].Kind != KindBalanceChange || evs[0].BalanceChange.Delta != 500 || evs[0].BalanceChange.MessageID != "m1" {
		t.Errorf("unexpected event: %+v", evs[0].BalanceChange)
	}
}

func TestDiffSpentOutputEmitsNegativeEvent(t *testing.T) {
	pre := model.NewAddress("A", 0, false)
	pre.MergeOutput(&model.Output{ID: model.OutputID{TransactionID: "t", OutputIndex: 0}, Amount: 500})
	preSnap := snapshotWithAddress(pre)

	post := model.NewAddress("A", 0, false)
	post.MergeOutput(&model.Output{ID: model.OutputID{TransactionID: "t", OutputIndex: 0}, Amount: 500, IsSpent: true, MessageID: "m2"})
	postSnap := snapshotWithAddress(post)

	evs := Diff("acct", preSnap, postSnap)
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(evs), evs)
	}
	if evs[0].BalanceChange.Delta != -500 {
		t.Errorf("Delta = %d, want -500", evs[0].BalanceChange.Delta)
	}
}

func TestDiffRemainderWhenNoPerOutputEvents(t *testing.T) {
	// Balance changed but no individual output diff explains it (e.g.
	// amount revised on an existing unspent output) — must still emit a
	// remainder event with no message id.
	pre := model.NewAddress("A", 0, false)
	pre.MergeOutput(&model.Output{ID: model.OutputID{TransactionID: "t", OutputIndex: 0}, Amount: 500})
	preSnap := snapshotWithAddress(pre)

	post := model.NewAddress("A", 0, false)
	post.MergeOutput(&model.Output{ID: model.OutputID{TransactionID: "t", OutputIndex: 0}, Amount: 500})
	post.Balance = 700 // synthetic divergence without an output diff
	postSnap := snapshotWithAddress(post)

	evs := Diff("acct", preSnap, postSnap)
	if len(evs) != 1 || evs[0].BalanceChange.MessageID != "" || evs[0].BalanceChange.Delta != 200 {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestDiffNewTransactionEvent(t *testing.T) {
	pre := snapshotWithAddress(model.NewAddress("A", 0, false))
	msg := &model.Message{ID: "m1"}
	post := snapshotWithAddress(model.NewAddress("A", 0, false), msg)

	evs := Diff("acct", pre, post)
	if len(evs) != 1 || evs[0].Kind != KindNewTransaction || evs[0].NewMessage.ID != "m1" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestDiffConfirmationChangeEvent(t *testing.T) {
	before := &model.Message{ID: "m1", Confirmed: model.ConfirmationUnknown}
	after := &model.Message{ID: "m1", Confirmed: model.ConfirmationTrue}

	pre := snapshotWithAddress(model.NewAddress("A", 0, false), before)
	post := snapshotWithAddress(model.NewAddress("A", 0, false), after)

	evs := Diff("acct", pre, post)
	if len(evs) != 1 || evs[0].Kind != KindConfirmationChange {
		t.Fatalf("unexpected events: %+v", evs)
	}
	if evs[0].Confirmation.Before != model.ConfirmationUnknown || evs[0].Confirmation.After != model.ConfirmationTrue {
		t.Errorf("unexpected confirmation transition: %+v", evs[0].Confirmation)
	}
}

func TestNewReattachmentEvent(t *testing.T) {
	ev := NewReattachment("acct", "old", "new")
	if ev.Kind != KindReattachment || ev.ReattachedFrom != "old" || ev.ReattachedTo != "new" {
		t.Errorf("unexpected reattachment event: %+v", ev)
	}
}
