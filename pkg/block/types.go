// Package block defines the wire-level data model of the chain: block
// headers, ordered transaction maps, and the Merkle root and header
// hashing rules blocks are built and validated against.
package block

import (
	"fmt"
	"strconv"
)

// GenesisHash is the parent-hash sentinel used by the first block appended
// to an otherwise empty chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Reward is the fixed coinbase payout added on top of a block's collected
// fees. Kept as a float to match the literal 3.125 named by the protocol;
// every other monetary value in the system is an Amount (fixed-point).
const Reward = 3.125

// Header is a block header. Canonical string form (Repr) concatenates the
// six fields in declaration order with no delimiters — integers in decimal,
// hex fields lowercase as stored — and is the input to block hashing.
type Header struct {
	Version    int    `json:"version"`
	HashParent string `json:"hash_parent"`
	HashMerkle string `json:"hash_merkle"`
	Time       int64  `json:"time"`
	Target     string `json:"target"`
	Nonce      uint64 `json:"nonce"`
}

// Repr returns the canonical concatenation of header fields used for hashing.
func (h Header) Repr() string {
	return strconv.Itoa(h.Version) + h.HashParent + h.HashMerkle +
		strconv.FormatInt(h.Time, 10) + h.Target + strconv.FormatUint(h.Nonce, 10)
}

// TxInput references a prior transaction's output being spent.
type TxInput struct {
	TxID      string `json:"tx_id"`
	VOut      int    `json:"v_out"`
	Key       string `json:"key"`
	Signature string `json:"signature"`
}

// TxOutput carries either an Amount or a Data payload, never both; Keyhash
// names the owner that must sign to spend it. Exactly one of Amount/Data
// is non-nil on a well-formed output.
type TxOutput struct {
	Amount  *Amount `json:"amount,omitempty"`
	Data    *string `json:"data,omitempty"`
	Keyhash string  `json:"keyhash"`
}

// IsData reports whether this is a data-carrying output.
func (o TxOutput) IsData() bool { return o.Data != nil }

// IsAmount reports whether this is a value-carrying output.
func (o TxOutput) IsAmount() bool { return o.Amount != nil }

// Payload returns the signature payload this output demands of whoever
// spends it: the decimal amount string, or the data string verbatim.
func (o TxOutput) Payload() (string, error) {
	switch {
	case o.Amount != nil:
		return o.Amount.String(), nil
	case o.Data != nil:
		return *o.Data, nil
	default:
		return "", fmt.Errorf("output carries neither amount nor data")
	}
}

// Transaction is a transfer of value or data between outpoints. Only
// version 1 is ever accepted by the validator.
type Transaction struct {
	Version  int        `json:"version"`
	Inputs   []TxInput  `json:"inputs,omitempty"`
	Outputs  []TxOutput `json:"outputs,omitempty"`
	Coinbase bool       `json:"coinbase,omitempty"`
}

// NewCoinbase builds the single reward-paying transaction for a block.
func NewCoinbase(keyhash string, total Amount) Transaction {
	return Transaction{
		Version:  1,
		Outputs:  []TxOutput{{Amount: &total, Keyhash: keyhash}},
		Coinbase: true,
	}
}
