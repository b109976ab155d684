// Package model defines the core data types shared by every wallet
// component: addresses, UTXOs, messages and accounts. It holds no
// behavior beyond small invariant-preserving helpers — sync, transfer and
// event logic live in their own packages and operate on these types.
package model

import "fmt"

// OutputKind classifies a UTXO the way the ledger itself tags it.
type OutputKind string

const (
	OutputSingleSpend   OutputKind = "single"
	OutputDustAllowance OutputKind = "dust_allowance"
	OutputTreasury      OutputKind = "treasury"
)

// DustAllowanceValue is the minimum amount (in the ledger's smallest unit)
// an output must carry to not be considered dust.
const DustAllowanceValue uint64 = 1_000_000

// MaxDustOutputsPerAddress caps the dust outputs an address may hold
// regardless of how large its dust-allowance balance is.
const MaxDustOutputsPerAddress = 100

// DustAllowanceDivisor converts a dust-allowance balance into a permitted
// dust-output count: floor(balance / DustAllowanceDivisor).
const DustAllowanceDivisor uint64 = 100_000

// InputOutputCountMax is the protocol's cap on inputs or outputs carried
// by a single transaction essence. Output consolidation chunks its
// self-transfers to this size.
const InputOutputCountMax = 127

// OutputID identifies a UTXO by the transaction that created it and the
// index of that transaction's output list.
type OutputID struct {
	TransactionID string
	OutputIndex   uint16
}

func (id OutputID) String() string {
	return fmt.Sprintf("%s:%d", id.TransactionID, id.OutputIndex)
}

// Output is a single unspent (or formerly-spent) transaction output.
type Output struct {
	ID            OutputID
	Amount        uint64
	Address       string // bech32, owning address
	Kind          OutputKind
	IsSpent       bool
	MessageID     string // originating message
}

// IsDust reports whether this output would count as a dust output if it
// were a SingleSpend UTXO.
func (o *Output) IsDust() bool {
	return o.Kind == OutputSingleSpend && o.Amount < DustAllowanceValue
}
