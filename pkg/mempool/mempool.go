// Package mempool implements the transaction pool of §3 (TransactionInPool)
// and its admission rule (§4.9). Grounded on the teacher's
// pkg/mempool/mempool.go heap types, trimmed to the spec's simpler
// admit-or-drop contract: no eviction policy, no dust/DoS heuristics, no
// re-validation when the chain moves (a known, accepted limitation per the
// spec's Design Notes).
package mempool

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/block"
)

// Entry is a TransactionInPool: {data, fee}.
type Entry struct {
	Tx  block.Transaction
	Fee block.Amount
}

// Validator is the chain-UTXO-backed check a transaction must pass before
// admission (§4.9): "validated by §4.4 against the current chain UTXO".
type Validator interface {
	ValidateTransaction(tx block.Transaction) (block.Amount, error)
}

// Pool is the transaction pool. Admission order drives block-building
// (§4.7: "build a Block over the pool ordered as in the pool"); the
// fee-descending heap is preserved as a contract the spec's Design Notes
// call out as "the current code never uses the ordering to limit block
// size" — present, and correct, but unused as a selector.
type Pool struct {
	mu    sync.Mutex
	order []string
	items map[string]Entry
	fees  *feeHeap
}

// New returns an empty pool.
func New() *Pool {
	p := &Pool{
		items: make(map[string]Entry),
		fees:  &feeHeap{},
	}
	heap.Init(p.fees)
	return p
}

// Admit validates tx against v and, on success, appends it to the pool at
// its computed fee. A failing transaction is silently dropped per §4.9 —
// callers that want visibility should log the returned error themselves.
func (p *Pool) Admit(tx block.Transaction, v Validator) (string, error) {
	fee, err := v.ValidateTransaction(tx)
	if err != nil {
		return "", err
	}
	txid, err := block.TxID(tx)
	if err != nil {
		return "", fmt.Errorf("hashing transaction: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.items[txid]; exists {
		return txid, nil
	}
	p.order = append(p.order, txid)
	p.items[txid] = Entry{Tx: tx, Fee: fee}
	heap.Push(p.fees, &feeItem{txid: txid, fee: fee})
	return txid, nil
}

// AdmitCoinbase inserts the miner's own coinbase transaction with fee 0,
// bypassing validation (§4.7: "append to the pool as a coinbase transaction
// with fee=0").
func (p *Pool) AdmitCoinbase(tx block.Transaction) (string, error) {
	txid, err := block.TxID(tx)
	if err != nil {
		return "", fmt.Errorf("hashing coinbase: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = append(p.order, txid)
	p.items[txid] = Entry{Tx: tx, Fee: 0}
	heap.Push(p.fees, &feeItem{txid: txid, fee: 0})
	return txid, nil
}

// Remove drops a transaction from the pool, if present.
func (p *Pool) Remove(txid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txid)
}

func (p *Pool) removeLocked(txid string) {
	if _, ok := p.items[txid]; !ok {
		return
	}
	delete(p.items, txid)
	for i, k := range p.order {
		if k == txid {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Shrink removes every txid in spent from the pool — the operation §4.8
// names after a block is accepted, preserving the fees of everything that
// survives by construction (the underlying entries are untouched; only the
// removed ones lose their slot).
func (p *Pool) Shrink(spent []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, txid := range spent {
		p.removeLocked(txid)
	}
}

// Get returns the pooled entry for a txid.
func (p *Pool) Get(txid string) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.items[txid]
	return e, ok
}

// Len returns the number of pooled transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Transactions returns the pooled transactions in admission order — the
// order a miner builds a candidate block's transaction set from.
func (p *Pool) Transactions() []block.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]block.Transaction, 0, len(p.order))
	for _, txid := range p.order {
		out = append(out, p.items[txid].Tx)
	}
	return out
}

// TxIDs returns the pooled txids in admission order.
func (p *Pool) TxIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// TotalFee sums the fee of every pooled transaction, the quantity a
// coinbase output must pay out on top of the fixed reward.
func (p *Pool) TotalFee() block.Amount {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total block.Amount
	for _, e := range p.items {
		total += e.Fee
	}
	return total
}

// ByFeeDescending drains a snapshot of the fee-ordered heap, highest fee
// first. Preserved per the spec's "sortable pool by fee" Design Note; no
// caller in this system currently uses it to bound block size.
func (p *Pool) ByFeeDescending() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make(feeHeap, len(*p.fees))
	copy(snapshot, *p.fees)
	heap.Init(&snapshot)

	out := make([]Entry, 0, snapshot.Len())
	for snapshot.Len() > 0 {
		item := heap.Pop(&snapshot).(*feeItem)
		if e, ok := p.items[item.txid]; ok {
			out = append(out, e)
		}
	}
	return out
}

type feeItem struct {
	txid string
	fee  block.Amount
}

// feeHeap is a max-heap by fee, implementing container/heap.Interface the
// same way the teacher's TransactionHeap does.
type feeHeap []*feeItem

func (h feeHeap) Len() int            { return len(h) }
func (h feeHeap) Less(i, j int) bool  { return h[i].fee > h[j].fee }
func (h feeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *feeHeap) Push(x interface{}) { *h = append(*h, x.(*feeItem)) }
func (h *feeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
