package model

// Confirmation is a tri-state: a message's ledger-inclusion status is
// unknown until the node has a definitive answer, and once it flips to
// Confirmed it must never revert.
type Confirmation int

const (
	ConfirmationUnknown Confirmation = iota
	ConfirmationTrue
	ConfirmationFalse
)

// PayloadKind tags the closed sum type of payloads a Message may carry.
type PayloadKind string

const (
	PayloadTransaction PayloadKind = "transaction"
	PayloadIndexation  PayloadKind = "indexation"
	PayloadMilestone   PayloadKind = "milestone"
	PayloadTreasury    PayloadKind = "treasury"
)

// Input references a UTXO being consumed by a transaction essence.
type Input struct {
	OutputID OutputID
}

// TxOutput is an output inside a transaction essence (not yet a persisted
// model.Output — that's created once the message is observed on-chain).
type TxOutput struct {
	Address string
	Amount  uint64
	Kind    OutputKind
}

// Essence is the signed portion of a transaction payload: inputs, outputs
// and an optional indexation tag. Inputs and outputs must be sorted by
// their canonical byte encoding before the essence is sealed.
type Essence struct {
	Inputs      []Input
	Outputs     []TxOutput
	Indexation  []byte
}

// UnlockBlock authorizes one input of an Essence; its shape is opaque to
// the core — it's produced by the signer provider and passed through
// unmodified.
type UnlockBlock struct {
	Signature []byte
	PublicKey []byte
}

// TransactionPayload carries a sealed essence plus its unlock blocks.
type TransactionPayload struct {
	Essence      Essence
	UnlockBlocks []UnlockBlock
}

// Message is one node of the Tangle: an id, optional payload, parents and
// a tri-state confirmation flag.
type Message struct {
	ID          string
	Parents     []string
	PayloadKind PayloadKind
	Transaction *TransactionPayload // present iff PayloadKind == PayloadTransaction
	Confirmed   Confirmation
}

// ApplyConfirmation enforces the monotonic transition rule for
// once confirmed, a message never reverts to unconfirmed or unknown.
func (m *Message) ApplyConfirmation(next Confirmation) {
	if m.Confirmed == ConfirmationTrue {
		return
	}
	m.Confirmed = next
}
