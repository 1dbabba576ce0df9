package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"bingot/blockchain"
	"bingot/blockchain/chain"
	"bingot/blockchain/store"
	"bingot/mempool"
	"bingot/metrics"
	"bingot/mining"
	"bingot/wallet"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrAlreadyRunning     = errors.New("node is already mining")
	ErrMempoolFull        = errors.New("mempool is full")
)

// Deps are the collaborators a node is built from. Nil fields get defaults:
// a fresh wallet, an in-memory store and a broadcaster that drops everything.
type Deps struct {
	Wallet      *wallet.Wallet
	Store       store.ChainStore
	Broadcaster Broadcaster
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// FullNode owns the wallet, chain, mempool and miner, and drives mining
// rounds against the current tip.
type FullNode struct {
	config Config

	wallet      *wallet.Wallet
	chain       *chain.Chain
	mempool     *mempool.Mempool
	miner       *mining.Coordinator
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	state   atomic.Int32
	running atomic.Bool

	// reconcileMu orders tip changes against candidate assembly, so a
	// round is never built from a mempool that is being reconciled.
	reconcileMu sync.Mutex

	roundMu     sync.Mutex
	cancelRound context.CancelCauseFunc
	roundTip    blockchain.Hash32

	restarts atomic.Uint64
	mined    atomic.Uint64
	reorgs   atomic.Uint64
}

// New creates a node that runs all services
func New(config Config, deps Deps) (*FullNode, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}

	logger := deps.Logger.With().Str("node", config.NodeID).Logger()

	w := deps.Wallet
	if w == nil {
		generated, err := wallet.Generate()
		if err != nil {
			return nil, err
		}
		w = generated
	}

	st := deps.Store
	if st == nil {
		st = store.NewMemoryChainStore()
	}

	c, err := chain.New(config.ChainConfig(), st, logger)
	if err != nil {
		return nil, err
	}

	miner, err := mining.NewCoordinator(config.Mining, logger, deps.Metrics)
	if err != nil {
		return nil, err
	}

	b := deps.Broadcaster
	if b == nil {
		b = NopBroadcaster{}
	}

	n := &FullNode{
		config:      config,
		wallet:      w,
		chain:       c,
		mempool:     mempool.NewWithLimit(config.MempoolSize),
		miner:       miner,
		broadcaster: b,
		metrics:     deps.Metrics,
		logger:      logger.With().Str("component", "node").Logger(),
	}
	n.setState(StateIdle)
	n.metrics.SetHeight(c.Length())

	n.logger.Info().Str("address", string(w.Address())).Uint64("length", c.Length()).Msg("Node initialized")
	return n, nil
}

// Run mines on top of the current tip until ctx is done. Only one round is
// active at a time; a round ends when it is solved, exhausted, or made stale
// by a tip change, and the next one starts from the new tip.
func (n *FullNode) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer n.running.Store(false)

	n.setState(StateMining)
	defer n.setState(StateIdle)

	n.logger.Info().
		Int("workers", n.config.Mining.Workers).
		Uint8("difficulty", n.config.Difficulty).
		Msg("Mining started")

	for ctx.Err() == nil {
		n.mineRound(ctx)
	}

	n.logger.Info().Msg("Mining stopped")
	return nil
}

func (n *FullNode) mineRound(ctx context.Context) {
	n.reconcileMu.Lock()
	tip := n.chain.Tip()
	drained := n.mempool.DrainForBlock()
	roundCtx, cancel := context.WithCancelCause(ctx)
	n.roundMu.Lock()
	n.cancelRound = cancel
	n.roundTip = tip.Hash
	n.roundMu.Unlock()
	n.reconcileMu.Unlock()

	defer cancel(nil)

	txs := make([]blockchain.Transaction, 0, len(drained)+1)
	txs = append(txs, blockchain.NewCoinbase(n.wallet.Address(), n.config.Reward))
	for _, tx := range drained {
		if !n.chain.IsConfirmed(tx.Signature) {
			txs = append(txs, tx)
		}
	}

	candidate := blockchain.BuildBlock(tip.Header.Index+1, txs, tip.Hash, n.config.Difficulty)
	solved, err := n.miner.StartRound(roundCtx, candidate)

	n.roundMu.Lock()
	n.cancelRound = nil
	n.roundMu.Unlock()

	if err != nil {
		n.mempool.Restore(drained, n.chain)
		switch {
		case errors.Is(err, mining.ErrCandidateStale), errors.Is(err, mining.ErrNoSolutionFound):
			n.restarts.Add(1)
			n.logger.Debug().Err(err).Uint64("index", candidate.Header.Index).Msg("Restarting mining round")
		case ctx.Err() != nil:
		default:
			n.logger.Error().Err(err).Msg("Mining round failed")
		}
		n.metrics.SetMempoolSize(n.mempool.Len())
		return
	}

	res, err := n.chain.Add(solved)
	n.metrics.BlockProcessed("local", resultLabel(res, err))
	if err != nil {
		n.logger.Warn().Err(err).Str("hash", solved.Hash.Short()).Msg("Mined block rejected")
		n.mempool.Restore(drained, n.chain)
		return
	}

	if res.TipChanged() {
		n.mined.Add(1)
		n.broadcaster.BroadcastBlock(solved)
		n.afterTipChange(res)
	}
	// whatever the solved block did not confirm goes back
	n.mempool.Restore(drained, n.chain)
	n.metrics.SetMempoolSize(n.mempool.Len())
}

// ReceiveBlock hands a block from the network to the chain. A tip change
// cancels the active round; a side branch leaves mining alone.
func (n *FullNode) ReceiveBlock(block *blockchain.Block) (chain.AddResult, error) {
	res, err := n.chain.Add(block)
	n.metrics.BlockProcessed("network", resultLabel(res, err))
	if err != nil {
		return res, err
	}

	if res.TipChanged() {
		n.broadcaster.BroadcastBlock(block)
		n.afterTipChange(res)
	}
	return res, nil
}

func (n *FullNode) afterTipChange(res chain.AddResult) {
	n.reconcileMu.Lock()
	defer n.reconcileMu.Unlock()

	n.roundMu.Lock()
	if n.cancelRound != nil && n.roundTip != res.Tip.Hash {
		n.cancelRound(mining.ErrCandidateStale)
	}
	n.roundMu.Unlock()

	if len(res.Disconnected) > 0 {
		n.setState(StateReorganizing)

		restored := n.restoreDisconnected(res)
		n.reorgs.Add(1)
		n.metrics.Reorganized(len(res.Disconnected))
		n.logger.Warn().
			Int("disconnected", len(res.Disconnected)).
			Int("connected", len(res.Connected)).
			Int("restored", restored).
			Str("tip", res.Tip.Hash.Short()).
			Msg("Reconciled mempool after reorganization")

		if n.running.Load() {
			n.setState(StateMining)
		} else {
			n.setState(StateIdle)
		}
	}

	n.mempool.Prune(n.chain)
	n.metrics.SetHeight(n.chain.Length())
	n.metrics.SetMempoolSize(n.mempool.Len())
}

// restoreDisconnected returns the user transactions of the losing branch to
// the mempool, except those the winning branch confirmed, by signature or as
// the same transfer signed again.
func (n *FullNode) restoreDisconnected(res chain.AddResult) int {
	var connected []blockchain.Transaction
	for _, b := range res.Connected {
		connected = append(connected, b.NonCoinbase()...)
	}

	var losing []blockchain.Transaction
	for _, b := range res.Disconnected {
		for _, tx := range b.NonCoinbase() {
			if !containsTransfer(connected, &tx) {
				losing = append(losing, tx)
			}
		}
	}
	return n.mempool.Restore(losing, n.chain)
}

func containsTransfer(txs []blockchain.Transaction, tx *blockchain.Transaction) bool {
	for i := range txs {
		if txs[i].SameTransfer(tx) {
			return true
		}
	}
	return false
}

// ReceiveTransaction verifies a transaction and adds it to the mempool. It
// returns false without error for confirmed or already pending
// transactions.
func (n *FullNode) ReceiveTransaction(tx blockchain.Transaction) (bool, error) {
	if err := n.checkTransaction(&tx); err != nil {
		n.metrics.TransactionReceived("invalid")
		n.logger.Warn().Err(err).Str("from", string(tx.From)).Msg("Rejected transaction")
		return false, err
	}

	if n.chain.IsConfirmed(tx.Signature) {
		n.metrics.TransactionReceived("confirmed")
		return false, nil
	}
	if !n.mempool.Insert(tx) {
		n.metrics.TransactionReceived("duplicate")
		return false, nil
	}

	n.metrics.TransactionReceived("accepted")
	n.metrics.SetMempoolSize(n.mempool.Len())
	n.broadcaster.BroadcastTransaction(tx)
	return true, nil
}

func (n *FullNode) checkTransaction(tx *blockchain.Transaction) error {
	if tx.IsCoinbase() {
		return fmt.Errorf("%w: coinbase transactions are only valid inside blocks", ErrInvalidTransaction)
	}
	ok, err := tx.VerifyAttached()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if !ok {
		return fmt.Errorf("%w: signature does not verify", ErrInvalidTransaction)
	}
	if n.config.StrictSenderBinding && !tx.BindsSender() {
		return fmt.Errorf("%w: sender address does not match public key", ErrInvalidTransaction)
	}
	return nil
}

// Transfer signs a payment from the node's wallet, queues it and broadcasts
// it.
func (n *FullNode) Transfer(to wallet.Address, amount uint64) (*blockchain.Transaction, error) {
	tx := blockchain.NewTransaction(n.wallet.Address(), to, amount)
	if err := tx.Sign(n.wallet); err != nil {
		return nil, err
	}
	if !n.mempool.Insert(*tx) {
		return nil, ErrMempoolFull
	}

	n.metrics.SetMempoolSize(n.mempool.Len())
	n.broadcaster.BroadcastTransaction(*tx)
	n.logger.Info().Str("to", string(to)).Uint64("amount", amount).Msg("Transfer queued")
	return tx, nil
}

func (n *FullNode) setState(s State) {
	n.state.Store(int32(s))
	n.metrics.SetState(s.String(), stateNames...)
}

func (n *FullNode) State() State {
	return State(n.state.Load())
}

type Stats struct {
	Rounds       uint64 `json:"rounds"`
	ActiveRounds int64  `json:"active_rounds"`
	Solved       uint64 `json:"solved"`
	Mined        uint64 `json:"mined"`
	Restarts     uint64 `json:"restarts"`
	Reorgs       uint64 `json:"reorgs"`
}

func (n *FullNode) Stats() Stats {
	ms := n.miner.Stats()
	return Stats{
		Rounds:       ms.Rounds,
		ActiveRounds: ms.Active,
		Solved:       ms.Solved,
		Mined:        n.mined.Load(),
		Restarts:     n.restarts.Load(),
		Reorgs:       n.reorgs.Load(),
	}
}

type Status struct {
	NodeID      string            `json:"node_id"`
	State       State             `json:"state"`
	Address     wallet.Address    `json:"address"`
	Length      uint64            `json:"length"`
	Tip         blockchain.Hash32 `json:"tip"`
	Difficulty  uint8             `json:"difficulty"`
	MempoolSize int               `json:"mempool_size"`
	Orphans     int               `json:"orphans"`
	Stats       Stats             `json:"stats"`
}

func (n *FullNode) Status() Status {
	return Status{
		NodeID:      n.config.NodeID,
		State:       n.State(),
		Address:     n.wallet.Address(),
		Length:      n.chain.Length(),
		Tip:         n.chain.LastHash(),
		Difficulty:  n.config.Difficulty,
		MempoolSize: n.mempool.Len(),
		Orphans:     n.chain.OrphanCount(),
		Stats:       n.Stats(),
	}
}

func (n *FullNode) Chain() *chain.Chain {
	return n.chain
}

func (n *FullNode) Mempool() *mempool.Mempool {
	return n.mempool
}

func (n *FullNode) Address() wallet.Address {
	return n.wallet.Address()
}

func (n *FullNode) NodeID() string {
	return n.config.NodeID
}

func resultLabel(res chain.AddResult, err error) string {
	switch {
	case err == nil:
		return res.Status.String()
	case errors.Is(err, blockchain.ErrOrphanBlock):
		return "orphaned"
	case errors.Is(err, blockchain.ErrInvalidBlock):
		return "invalid"
	case errors.Is(err, blockchain.ErrReorgFailure):
		return "reorg_failed"
	default:
		return "error"
	}
}
