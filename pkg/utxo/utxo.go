// Package utxo implements the UTXO set (§3 UTXOEntry) and the transaction
// validator of §4.4: value conservation plus signature ownership over the
// outpoints a transaction spends.
//
// Grounded on the teacher's pkg/utxo/utxo.go structure (a mutex-guarded map
// with Add/Remove/Validate entry points), re-targeted at the spec's exact
// outpoint model ({v_outs, block_id} keyed by txid) and RSA/PSS signature
// scheme from pkg/cryptocap.
package utxo

import (
	"fmt"
	"sync"

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/block"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/cryptocap"
)

// Entry is a UTXOEntry: the set of still-unspent output indices of a
// transaction, plus the height (block_id) it was confirmed at. An Entry
// with an empty VOuts set must never exist — Spend deletes it instead.
type Entry struct {
	VOuts   map[int]struct{}
	BlockID int
}

// Set is the UTXO set, keyed by txid. Safe for concurrent use, matching the
// teacher's mutex-guarded UTXOSet.
type Set struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewSet returns an empty UTXO set.
func NewSet() *Set {
	return &Set{entries: make(map[string]*Entry)}
}

// Add inserts a new entry, or merges v-outs into an existing one (used when
// re-seeding from a genesis block whose outpoints may already be tracked).
func (s *Set) Add(txid string, vouts []int, blockID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[txid]
	if !ok {
		entry = &Entry{VOuts: make(map[int]struct{}), BlockID: blockID}
		s.entries[txid] = entry
	}
	for _, v := range vouts {
		entry.VOuts[v] = struct{}{}
	}
}

// Has reports whether (txid, vout) is currently unspent.
func (s *Set) Has(txid string, vout int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[txid]
	if !ok {
		return false
	}
	_, ok = entry.VOuts[vout]
	return ok
}

// Get returns the entry for a txid, if any.
func (s *Set) Get(txid string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[txid]
	return entry, ok
}

// Spend removes a single outpoint from the set, deleting the entry entirely
// once its last v_out is spent (§3 invariant: no empty-VOuts entry).
func (s *Set) Spend(txid string, vout int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[txid]
	if !ok {
		return
	}
	delete(entry.VOuts, vout)
	if len(entry.VOuts) == 0 {
		delete(s.entries, txid)
	}
}

// Reset discards all entries. ValidateChain and Reconcile do not call it;
// they build a fresh set with NewSet.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

// Snapshot returns a deep copy of the set's entries, for callers that need
// to try a validation pass without mutating shared state.
func (s *Set) Snapshot() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := NewSet()
	for txid, entry := range s.entries {
		vouts := make([]int, 0, len(entry.VOuts))
		for v := range entry.VOuts {
			vouts = append(vouts, v)
		}
		out.Add(txid, vouts, entry.BlockID)
	}
	return out
}

// OutputLookup resolves the TxOutput a prior transaction's outpoint
// referred to. The UTXOEntry data model only carries {v_outs, block_id}; to
// validate a spend, a caller (the chain, which indexes txid -> transaction)
// must additionally supply the referenced output's content.
type OutputLookup interface {
	Output(txid string, vout int) (block.TxOutput, bool)
}

// ErrInvalidTransaction is wrapped by every validation failure so callers
// can distinguish "rejected" from an unrelated plumbing error if they need
// to, without the validator ever panicking.
var ErrInvalidTransaction = fmt.Errorf("invalid transaction")

// ValidateTransaction implements §4.4's validate_transaction. It rejects
// with a wrapped ErrInvalidTransaction on the first failing rule, in rule
// order, and otherwise returns the transaction's fee. The coinbase
// transaction must never be passed here.
func ValidateTransaction(tx block.Transaction, utxos *Set, lookup OutputLookup) (block.Amount, error) {
	if tx.Version != 1 {
		return 0, fmt.Errorf("%w: version %d != 1", ErrInvalidTransaction, tx.Version)
	}

	seen := make(map[string]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		key := outpointKey(in.TxID, in.VOut)
		if _, dup := seen[key]; dup {
			return 0, fmt.Errorf("%w: duplicate input (%s,%d)", ErrInvalidTransaction, in.TxID, in.VOut)
		}
		seen[key] = struct{}{}
	}

	var inAmount block.Amount
	inputData := make(map[string]struct{})

	for _, in := range tx.Inputs {
		if !utxos.Has(in.TxID, in.VOut) {
			return 0, fmt.Errorf("%w: outpoint (%s,%d) not in utxo set", ErrInvalidTransaction, in.TxID, in.VOut)
		}
		out, ok := lookup.Output(in.TxID, in.VOut)
		if !ok {
			return 0, fmt.Errorf("%w: referenced output (%s,%d) not found", ErrInvalidTransaction, in.TxID, in.VOut)
		}

		pub, err := cryptocap.LoadPubkey(in.Key)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid input key: %v", ErrInvalidTransaction, err)
		}
		keyhash, err := cryptocap.HashPubkey(pub)
		if err != nil {
			return 0, fmt.Errorf("%w: hashing input key: %v", ErrInvalidTransaction, err)
		}
		if keyhash != out.Keyhash {
			return 0, fmt.Errorf("%w: input key does not match output keyhash", ErrInvalidTransaction)
		}

		payload, err := out.Payload()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
		}
		if !cryptocap.Verify(pub, in.Signature, payload) {
			return 0, fmt.Errorf("%w: signature does not verify", ErrInvalidTransaction)
		}

		if out.IsAmount() {
			inAmount += *out.Amount
		}
		if out.IsData() {
			inputData[*out.Data] = struct{}{}
		}
	}

	var outAmount block.Amount
	outputData := make(map[string]struct{})
	for _, out := range tx.Outputs {
		if out.IsAmount() {
			outAmount += *out.Amount
		}
		if out.IsData() {
			outputData[*out.Data] = struct{}{}
		}
	}

	fee := inAmount - outAmount
	if fee < 0 {
		return 0, fmt.Errorf("%w: outputs (%s) exceed inputs (%s)", ErrInvalidTransaction, outAmount, inAmount)
	}

	for data := range inputData {
		if _, ok := outputData[data]; !ok {
			return 0, fmt.Errorf("%w: input data %q not preserved in outputs", ErrInvalidTransaction, data)
		}
	}

	return fee, nil
}

func outpointKey(txid string, vout int) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}
