// Package chain implements the chain representation and validation rules
// of §3 (Chain) and §4.5 (validate_block / validate_chain), plus the
// accepted-block application of §4.8.
//
// Grounded on the teacher's pkg/chain/chain.go Chain struct and
// validateBlock control flow (a mutex-guarded in-memory block store with a
// bestBlock/tip), re-targeted at the spec's exact validation order and
// compact-target PoW check instead of the teacher's big.Int difficulty.
package chain

import (
	"fmt"
	"sync"

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/block"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/difficulty"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/utxo"
)

// Reward is the fixed coinbase payout (spec §3 / §6), re-exported from
// pkg/block so callers of this package never need to import block just to
// read the constant.
var Reward = block.NewAmount(block.Reward)

// Outpoint identifies a transaction output by txid and index.
type Outpoint struct {
	TxID string
	VOut int
}

// Chain is an ordered sequence of blocks plus the live UTXO set and txid
// index built up by appending them. Each miner and the coordinator each own
// an independent instance — nothing here is shared across processes except
// via explicit chain messages.
type Chain struct {
	mu      sync.RWMutex
	blocks  []*block.Block
	utxos   *utxo.Set
	txIndex map[string]block.Transaction
}

// New returns an empty chain.
func New() *Chain {
	return &Chain{
		utxos:   utxo.NewSet(),
		txIndex: make(map[string]block.Transaction),
	}
}

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// LastHash returns the hash of the last block, or GenesisHash if the chain
// is empty.
func (c *Chain) LastHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return block.GenesisHash
	}
	return c.blocks[len(c.blocks)-1].Hash()
}

// Blocks returns a shallow copy of the block slice, safe for a caller to
// range over without holding the chain's lock.
func (c *Chain) Blocks() []*block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*block.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Block returns the block at height i, or nil if out of range.
func (c *Chain) Block(i int) *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.blocks) {
		return nil
	}
	return c.blocks[i]
}

// UTXOs exposes the chain's live UTXO set.
func (c *Chain) UTXOs() *utxo.Set {
	return c.utxos
}

// Output implements utxo.OutputLookup against this chain's txid index.
func (c *Chain) Output(txid string, vout int) (block.TxOutput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tx, ok := c.txIndex[txid]
	if !ok || vout < 0 || vout >= len(tx.Outputs) {
		return block.TxOutput{}, false
	}
	return tx.Outputs[vout], true
}

// ValidateTransaction validates tx against this chain's live UTXO set,
// the entry point §4.9 names for mempool admission.
func (c *Chain) ValidateTransaction(tx block.Transaction) (block.Amount, error) {
	return utxo.ValidateTransaction(tx, c.utxos, c)
}

// AppendBlock applies an already-accepted block: §4.8. It appends the
// block, indexes its transactions, subtracts spent outpoints (deleting any
// UTXOEntry emptied in the process), and adds the block's new outpoints at
// block_id = len(chain)-1. It returns the outpoints spent and the txids of
// every non-coinbase transaction the block carried, so a miner can use
// them to shrink its pool.
func (c *Chain) AppendBlock(b *block.Block) (spent []Outpoint, txids []string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blockID := len(c.blocks)
	c.blocks = append(c.blocks, b)

	for _, txid := range b.Transactions.Keys() {
		tx, _ := b.Transactions.Get(txid)
		c.txIndex[txid] = tx
		if !tx.Coinbase {
			txids = append(txids, txid)
			for _, in := range tx.Inputs {
				spent = append(spent, Outpoint{TxID: in.TxID, VOut: in.VOut})
			}
		}
	}

	for _, op := range spent {
		c.utxos.Spend(op.TxID, op.VOut)
	}

	for _, txid := range b.Transactions.Keys() {
		tx, _ := b.Transactions.Get(txid)
		vouts := make([]int, len(tx.Outputs))
		for i := range tx.Outputs {
			vouts[i] = i
		}
		if len(vouts) > 0 {
			c.utxos.Add(txid, vouts, blockID)
		}
	}

	return spent, txids, nil
}

// ValidateBlock implements §4.5's validate_block against the supplied
// expected target/parent and a UTXO/lookup pair representing chain state
// immediately before this block. On success it returns the block's total
// collected fees (the non-coinbase transactions' fees summed).
func ValidateBlock(b *block.Block, expectedTarget, expectedParent string, utxos *utxo.Set, lookup utxo.OutputLookup) (block.Amount, error) {
	if b.Header.HashParent != expectedParent {
		return 0, fmt.Errorf("hash_parent %q != expected %q", b.Header.HashParent, expectedParent)
	}
	if b.Header.Target != expectedTarget {
		return 0, fmt.Errorf("target %q != expected %q", b.Header.Target, expectedTarget)
	}
	meets, err := difficulty.HashMeetsTarget(b.Hash(), b.Header.Target)
	if err != nil {
		return 0, fmt.Errorf("checking proof of work: %w", err)
	}
	if !meets {
		return 0, fmt.Errorf("block hash does not meet target %q", b.Header.Target)
	}

	var total block.Amount
	var coinbase *block.Transaction
	for _, txid := range b.Transactions.Keys() {
		tx, _ := b.Transactions.Get(txid)

		recomputed, err := block.TxID(tx)
		if err != nil {
			return 0, fmt.Errorf("hashing transaction %s: %w", txid, err)
		}
		if recomputed != txid {
			return 0, fmt.Errorf("transaction %s hashes to %s, tampered", txid, recomputed)
		}

		if tx.Coinbase {
			if coinbase != nil {
				return 0, fmt.Errorf("block carries more than one coinbase transaction")
			}
			txCopy := tx
			coinbase = &txCopy
			continue
		}

		fee, err := utxo.ValidateTransaction(tx, utxos, lookup)
		if err != nil {
			return 0, fmt.Errorf("transaction %s: %w", txid, err)
		}
		total += fee
	}

	if coinbase == nil {
		return 0, fmt.Errorf("block carries no coinbase transaction")
	}
	if len(coinbase.Outputs) != 1 {
		return 0, fmt.Errorf("coinbase must have exactly one output, got %d", len(coinbase.Outputs))
	}
	if coinbase.Outputs[0].Amount == nil {
		return 0, fmt.Errorf("coinbase output must carry an amount")
	}
	want := total + Reward
	if *coinbase.Outputs[0].Amount != want {
		return 0, fmt.Errorf("coinbase amount %v != fees+reward %v", *coinbase.Outputs[0].Amount, want)
	}

	return total, nil
}

// ValidateChain implements §4.5's validate_chain: an empty chain is valid;
// otherwise the UTXO set is re-seeded from genesis and every subsequent
// block is validated against its own stored target and its parent's hash
// (the coordinator's adaptive difficulty is never retroactively enforced
// here). Returns the freshly rebuilt UTXO set on success — per P8, calling
// this twice yields the same answer and the same resulting UTXO state.
func ValidateChain(blocks []*block.Block) (*utxo.Set, error) {
	utxos := utxo.NewSet()
	txIndex := make(map[string]block.Transaction)
	lookup := mapLookup(txIndex)

	if len(blocks) == 0 {
		return utxos, nil
	}

	applyBlock(blocks[0], 0, utxos, txIndex)

	for i := 1; i < len(blocks); i++ {
		b := blocks[i]
		if _, err := ValidateBlock(b, b.Header.Target, blocks[i-1].Hash(), utxos, lookup); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		applyBlock(b, i, utxos, txIndex)
	}

	return utxos, nil
}

type mapLookup map[string]block.Transaction

func (m mapLookup) Output(txid string, vout int) (block.TxOutput, bool) {
	tx, ok := m[txid]
	if !ok || vout < 0 || vout >= len(tx.Outputs) {
		return block.TxOutput{}, false
	}
	return tx.Outputs[vout], true
}

// ReconcileAction describes what a chain reconciliation decided to do.
type ReconcileAction int

const (
	// ReconcileNone means neither chain was replaced.
	ReconcileNone ReconcileAction = iota
	// ReconcileEchoLocal means the local chain should be sent back to
	// whoever offered the (shorter, invalid-or-not) remote one.
	ReconcileEchoLocal
	// ReconcileReplaced means the local chain was replaced by the remote
	// one and should now be rebroadcast.
	ReconcileReplaced
)

// Reconcile implements §4.10's chain reconciliation rule against a
// candidate chain received over the wire. On ReconcileReplaced the
// receiver's chain, UTXO set, and txid index are all swapped atomically for
// the validated remote chain.
func (c *Chain) Reconcile(remoteBlocks []*block.Block) (ReconcileAction, error) {
	c.mu.RLock()
	localLen := len(c.blocks)
	localBlocks := make([]*block.Block, localLen)
	copy(localBlocks, c.blocks)
	c.mu.RUnlock()

	remoteLen := len(remoteBlocks)

	if remoteLen < localLen {
		if _, err := ValidateChain(localBlocks); err == nil {
			return ReconcileEchoLocal, nil
		}
		return ReconcileNone, nil
	}

	remoteUTXOs, remoteErr := ValidateChain(remoteBlocks)
	_, localErr := ValidateChain(localBlocks)

	replace := (remoteLen > localLen && remoteErr == nil) || (remoteErr == nil && localErr != nil)
	if !replace {
		return ReconcileNone, nil
	}

	txIndex := make(map[string]block.Transaction)
	for _, b := range remoteBlocks {
		for _, txid := range b.Transactions.Keys() {
			tx, _ := b.Transactions.Get(txid)
			txIndex[txid] = tx
		}
	}

	c.mu.Lock()
	c.blocks = append([]*block.Block{}, remoteBlocks...)
	c.utxos = remoteUTXOs
	c.txIndex = txIndex
	c.mu.Unlock()

	return ReconcileReplaced, nil
}

func applyBlock(b *block.Block, blockID int, utxos *utxo.Set, txIndex map[string]block.Transaction) {
	blockHashes := b.Transactions.Keys()
	for _, txid := range blockHashes {
		tx, _ := b.Transactions.Get(txid)
		txIndex[txid] = tx
		if !tx.Coinbase {
			for _, in := range tx.Inputs {
				utxos.Spend(in.TxID, in.VOut)
			}
		}
	}
	for _, txid := range blockHashes {
		tx, _ := b.Transactions.Get(txid)
		vouts := make([]int, len(tx.Outputs))
		for i := range tx.Outputs {
			vouts[i] = i
		}
		if len(vouts) > 0 {
			utxos.Add(txid, vouts, blockID)
		}
	}
}
