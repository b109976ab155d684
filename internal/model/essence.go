package model

import (
	"encoding/binary"
	"sort"

	"github.com/klingon-exchange/tangle-wallet-core/pkg/helpers"
)

// Bytes returns the canonical byte encoding of an input: its referenced
// output's transaction id followed by the big-endian output index.
func (in Input) Bytes() []byte {
	b := make([]byte, 0, len(in.OutputID.TransactionID)+2)
	b = append(b, []byte(in.OutputID.TransactionID)...)
	var idx [2]byte
	binary.BigEndian.PutUint16(idx[:], in.OutputID.OutputIndex)
	return append(b, idx[:]...)
}

// Bytes returns the canonical byte encoding of a transaction output: its
// address followed by the big-endian amount.
func (o TxOutput) Bytes() []byte {
	b := make([]byte, 0, len(o.Address)+8)
	b = append(b, []byte(o.Address)...)
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], o.Amount)
	return append(b, amt[:]...)
}

// SealOrder sorts an essence's inputs and outputs by their canonical byte
// encoding in place — the protocol requires a deterministic order before
// the essence is hashed and signed.
func (e *Essence) SealOrder() {
	sort.SliceStable(e.Inputs, func(i, j int) bool {
		return helpers.CompareBytes(e.Inputs[i].Bytes(), e.Inputs[j].Bytes()) < 0
	})
	sort.SliceStable(e.Outputs, func(i, j int) bool {
		return helpers.CompareBytes(e.Outputs[i].Bytes(), e.Outputs[j].Bytes()) < 0
	})
}
