// Package miner implements the miner state machine of §4.7: idle/mining/
// paused/voting transitions, the PoW search loop, pool and chain
// reconciliation (§4.9/§4.10 miner side), and accepted-block application
// (§4.8).
//
// Grounded on the teacher's pkg/miner/miner.go mineBlock/cancellation-
// channel idiom and pkg/consensus/consensus.go's MineBlock(block, stopChan),
// re-targeted at message-driven mining instead of ticker-driven mining.
// Per the spec's Design Notes, the shared solution_found/mining_signal flag
// pair is replaced by a single cancellation channel (hard stop, on an
// accepted block) plus a resume channel (soft pause/continue, on a
// rejected-round verdict) carried into the mining goroutine.
package miner

import (
	"crypto/rsa"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/block"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/chain"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/cryptocap"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/difficulty"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/logger"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/mempool"
	"github.com/TomasDanielExpositoTorre/simple-blockchain/pkg/netio"
)

// State is one of the four miner states named in §4.7.
type State int

const (
	Idle State = iota
	Mining
	Paused
	Voting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Mining:
		return "mining"
	case Paused:
		return "paused"
	case Voting:
		return "voting"
	default:
		return "unknown"
	}
}

// miningTask is the cancellation/pause pair a single mining goroutine
// carries: stop is a hard cancellation token (closed once, on an accepted
// block), resume is a level-triggered wake-up for "verdict arrived, keep
// searching" (final:true).
type miningTask struct {
	stop   chan struct{}
	resume chan struct{}
	paused atomic.Bool
}

// Sender is the subset of netio.Peer a Miner needs, narrowed for testing.
type Sender interface {
	Send(netio.Envelope) error
}

// Miner is one node's mining/voting state machine and local chain replica.
type Miner struct {
	mu    sync.Mutex
	state State

	chain *chain.Chain
	pool  *mempool.Pool
	peer  Sender
	log   *logger.Logger

	keys    *cryptocap.Keypair
	pubHex  string
	keyhash string

	task                  *miningTask
	candidateCoinbaseTxID string

	// Liar lets a test simulate E6: a miner whose validate_block always
	// returns false, to confirm a majority of honest votes still make
	// progress.
	Liar bool
}

// Config bundles the dependencies a Miner needs at construction.
type Config struct {
	Chain  *chain.Chain
	Pool   *mempool.Pool
	Peer   Sender
	Logger *logger.Logger
}

// New builds a Miner with a freshly generated keypair.
func New(cfg Config) (*Miner, error) {
	kp, err := cryptocap.CreateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generating miner keypair: %w", err)
	}
	pubHex, err := cryptocap.DumpPubkey(kp.Pub)
	if err != nil {
		return nil, fmt.Errorf("dumping miner pubkey: %w", err)
	}
	keyhash, err := cryptocap.HashPubkey(kp.Pub)
	if err != nil {
		return nil, fmt.Errorf("hashing miner pubkey: %w", err)
	}

	c := cfg.Chain
	if c == nil {
		c = chain.New()
	}
	p := cfg.Pool
	if p == nil {
		p = mempool.New()
	}
	lg := cfg.Logger
	if lg == nil {
		lg = logger.NewLogger(nil)
	}

	return &Miner{
		chain:   c,
		pool:    p,
		peer:    cfg.Peer,
		log:     lg,
		keys:    kp,
		pubHex:  pubHex,
		keyhash: keyhash,
	}, nil
}

// State returns the miner's current state.
func (m *Miner) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Chain exposes the miner's chain replica.
func (m *Miner) Chain() *chain.Chain { return m.chain }

// Pool exposes the miner's transaction pool.
func (m *Miner) Pool() *mempool.Pool { return m.pool }

// Pubkey returns the hex-encoded DER SPKI public key this miner mines to.
func (m *Miner) Pubkey() string { return m.pubHex }

// PrivateKey exposes the miner's private key, for the §6 `keys` request.
func (m *Miner) PrivateKey() *rsa.PrivateKey { return m.keys.Priv }

// HandleMessage dispatches one inbound envelope per §4.7's transition
// table. Unknown types are logged and ignored per §4.1/§7.
func (m *Miner) HandleMessage(env netio.Envelope) error {
	switch env.Type {
	case netio.TypeMine:
		return m.StartMining(env.Difficulty)
	case netio.TypeVerify:
		return m.handleVerify(env)
	case netio.TypeVeredict:
		return m.handleVerdict(env)
	case netio.TypeTransaction:
		return m.handleTransaction(env)
	case netio.TypeChain:
		return m.handleChain(env)
	case netio.TypeKeys:
		return m.handleKeysRequest()
	case netio.TypeCloseConnection:
		m.stopMining()
		return nil
	default:
		m.log.Debug("ignoring unrecognized message type %q", env.Type)
		return nil
	}
}

// StartMining builds a candidate block over the current pool and begins
// the nonce search (§4.7 Idle --mine--> Mining).
func (m *Miner) StartMining(difficultyHex string) error {
	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		m.log.Debug("ignoring mine message while in state %s", m.state)
		return nil
	}

	total := m.pool.TotalFee() + chain.Reward
	coinbase := block.NewCoinbase(m.keyhash, total)
	coinbaseTxID, err := m.pool.AdmitCoinbase(coinbase)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("admitting coinbase: %w", err)
	}
	m.candidateCoinbaseTxID = coinbaseTxID

	candidate := block.NewBlock(m.chain.LastHash(), difficultyHex, time.Now().Unix())
	for _, txid := range m.pool.TxIDs() {
		entry, ok := m.pool.Get(txid)
		if !ok {
			continue
		}
		candidate.Transactions.Put(txid, entry.Tx)
	}
	if err := candidate.RefreshMerkleRoot(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("computing merkle root: %w", err)
	}

	task := &miningTask{stop: make(chan struct{}), resume: make(chan struct{}, 1)}
	m.task = task
	m.state = Mining
	m.mu.Unlock()

	go m.runMining(task, candidate)
	return nil
}

// runMining is the nonce search loop (§4.7 Mining state, §5's "inner loop
// does not suspend except to poll the stop flag"). On finding a solution it
// sends it upstream and blocks awaiting either a hard stop (accepted
// elsewhere) or a resume signal (rejected elsewhere, keep searching).
func (m *Miner) runMining(task *miningTask, candidate *block.Block) {
	for {
		select {
		case <-task.stop:
			return
		default:
		}

		if task.paused.Load() {
			select {
			case <-task.stop:
				return
			case <-task.resume:
				task.paused.Store(false)
				candidate.Header.Nonce++
				continue
			}
		}

		ok, err := difficulty.HashMeetsTarget(candidate.Hash(), candidate.Header.Target)
		if err != nil {
			m.log.Error("checking proof of work: %v", err)
			return
		}
		if ok {
			if err := m.peer.Send(netio.Envelope{Type: netio.TypeSolution, Block: candidate}); err != nil {
				m.log.Error("sending solution: %v", err)
			}
			m.mu.Lock()
			m.state = Paused
			m.mu.Unlock()
			task.paused.Store(true)
			continue
		}
		candidate.Header.Nonce++
	}
}

// handleVerify implements §4.7's Paused/Mining --verify(request)--> Voting:
// pause the local search (if any), validate the candidate, vote, and stay
// paused pending a verdict.
func (m *Miner) handleVerify(env netio.Envelope) error {
	m.mu.Lock()
	if m.task != nil {
		m.task.paused.Store(true)
	}
	m.state = Voting
	m.mu.Unlock()

	vote := 0
	if env.Block != nil {
		valid := !m.Liar
		if valid {
			_, err := chain.ValidateBlock(env.Block, env.Difficulty, m.chain.LastHash(), m.chain.UTXOs(), m.chain)
			valid = err == nil
		}
		if valid {
			vote = 1
		}
	}

	m.mu.Lock()
	m.state = Paused
	m.mu.Unlock()

	return m.peer.Send(netio.Envelope{Type: netio.TypeVerify, Vote: netio.IntPtr(vote)})
}

// handleVerdict implements §4.7's Paused --veredict--> {Idle,Mining,Paused}
// depending on whether a block was accepted, the round was exhausted, or
// rejection advances to the next queued solution.
func (m *Miner) handleVerdict(env netio.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case env.Block != nil:
		if m.task != nil {
			close(m.task.stop)
			m.task = nil
		}
		if m.candidateCoinbaseTxID != "" {
			m.pool.Remove(m.candidateCoinbaseTxID)
			m.candidateCoinbaseTxID = ""
		}
		_, txids, err := m.chain.AppendBlock(env.Block)
		if err != nil {
			return fmt.Errorf("applying accepted block: %w", err)
		}
		m.pool.Shrink(txids)
		m.state = Idle
	case env.Final != nil && *env.Final:
		if m.task != nil {
			select {
			case m.task.resume <- struct{}{}:
			default:
			}
			m.state = Mining
		} else {
			m.state = Idle
		}
	default:
		// final:false — stay Paused awaiting the next queued solution's
		// verify request.
	}
	return nil
}

// handleTransaction implements §4.9: admit or silently drop.
func (m *Miner) handleTransaction(env netio.Envelope) error {
	if env.Transaction == nil {
		return nil
	}
	if _, err := m.pool.Admit(*env.Transaction, m.chain); err != nil {
		m.log.Debug("dropping transaction: %v", err)
	}
	return nil
}

// handleChain implements §4.10's miner-side reconciliation.
func (m *Miner) handleChain(env netio.Envelope) error {
	action, err := m.chain.Reconcile(env.Blockchain)
	if err != nil {
		return fmt.Errorf("reconciling chain: %w", err)
	}
	switch action {
	case chain.ReconcileEchoLocal:
		return m.peer.Send(netio.Envelope{Type: netio.TypeChain, Blockchain: m.chain.Blocks()})
	case chain.ReconcileReplaced:
		m.log.Info("replaced local chain with a longer valid one (len=%d)", m.chain.Len())
	}
	return nil
}

// handleKeysRequest answers §6's `keys` demo-UI seam with this miner's
// own keypair.
func (m *Miner) handleKeysRequest() error {
	privHex := cryptocap.DumpPrivkey(m.keys.Priv)
	return m.peer.Send(netio.Envelope{Type: netio.TypeKeys, Priv: privHex, Pub: m.pubHex})
}

func (m *Miner) stopMining() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task != nil {
		select {
		case <-m.task.stop:
		default:
			close(m.task.stop)
		}
		m.task = nil
	}
}
