package block

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Block is a header plus the ordered set of transactions it carries.
type Block struct {
	Header       Header
	Transactions *TxMap
}

// NewBlock starts a block over a parent hash and target, with an empty
// transaction set and a zero nonce — the caller mines it by repeatedly
// incrementing Header.Nonce and recomputing Hash.
func NewBlock(parent, target string, timestamp int64) *Block {
	return &Block{
		Header: Header{
			Version:    1,
			HashParent: parent,
			Time:       timestamp,
			Target:     target,
			Nonce:      0,
		},
		Transactions: NewTxMap(),
	}
}

// Hash returns the block header hash: SHA256(SHA256(repr(header))), rendered
// lowercase hex, per §3 invariant 4.
func (b *Block) Hash() string {
	first := sha256.Sum256([]byte(b.Header.Repr()))
	second := sha256.Sum256(first[:])
	return hex.EncodeToString(second[:])
}

// RefreshMerkleRoot recomputes Header.HashMerkle from the current
// transaction set. Callers must invoke this after mutating Transactions and
// before hashing or sending the block.
func (b *Block) RefreshMerkleRoot() error {
	root, err := MerkleRoot(b.Transactions.Transactions())
	if err != nil {
		return fmt.Errorf("computing merkle root: %w", err)
	}
	b.Header.HashMerkle = root
	return nil
}

// blockJSON mirrors the flat wire representation: header fields merged with
// a "transactions" object. Field order on receive is insignificant per §4.1;
// only the transactions mapping's key order matters, and that is handled by
// TxMap's own (de)serialization.
type blockJSON struct {
	Version      int             `json:"version"`
	HashParent   string          `json:"hash_parent"`
	HashMerkle   string          `json:"hash_merkle"`
	Time         int64           `json:"time"`
	Target       string          `json:"target"`
	Nonce        uint64          `json:"nonce"`
	Transactions json.RawMessage `json:"transactions"`
}

// MarshalJSON renders the block as the flat header+transactions object §4.1
// and §6 describe.
func (b *Block) MarshalJSON() ([]byte, error) {
	txJSON, err := b.Transactions.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	fmt.Fprintf(&buf, `"version":%d,`, b.Header.Version)
	writeJSONString(&buf, "hash_parent", b.Header.HashParent)
	buf.WriteByte(',')
	writeJSONString(&buf, "hash_merkle", b.Header.HashMerkle)
	buf.WriteByte(',')
	fmt.Fprintf(&buf, `"time":%d,`, b.Header.Time)
	writeJSONString(&buf, "target", b.Header.Target)
	buf.WriteByte(',')
	fmt.Fprintf(&buf, `"nonce":%d,`, b.Header.Nonce)
	buf.WriteString(`"transactions":`)
	buf.Write(txJSON)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, key, value string) {
	keyJSON, _ := json.Marshal(key)
	valJSON, _ := json.Marshal(value)
	buf.Write(keyJSON)
	buf.WriteByte(':')
	buf.Write(valJSON)
}

// UnmarshalJSON reverses MarshalJSON, preserving transaction order.
func (b *Block) UnmarshalJSON(data []byte) error {
	var aux blockJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decoding block: %w", err)
	}
	b.Header = Header{
		Version:    aux.Version,
		HashParent: aux.HashParent,
		HashMerkle: aux.HashMerkle,
		Time:       aux.Time,
		Target:     aux.Target,
		Nonce:      aux.Nonce,
	}
	b.Transactions = NewTxMap()
	if len(aux.Transactions) == 0 {
		return nil
	}
	return b.Transactions.UnmarshalJSON(aux.Transactions)
}

// String is a short diagnostic summary of the block.
func (b *Block) String() string {
	return fmt.Sprintf("Block{hash:%s parent:%s txs:%d nonce:%d}",
		b.Hash()[:12], b.Header.HashParent[:12], b.Transactions.Len(), b.Header.Nonce)
}
