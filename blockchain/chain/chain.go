package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"bingot/blockchain"
	"bingot/blockchain/store"

	"github.com/rs/zerolog"
)

// Status describes what Add did with a block.
type Status int

const (
	StatusExtended Status = iota
	StatusDuplicate
	StatusSideBranch
	StatusReorganized
	StatusOrphaned
)

func (s Status) String() string {
	switch s {
	case StatusExtended:
		return "extended"
	case StatusDuplicate:
		return "duplicate"
	case StatusSideBranch:
		return "side_branch"
	case StatusReorganized:
		return "reorganized"
	case StatusOrphaned:
		return "orphaned"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// AddResult reports the net change to the canonical chain caused by one Add,
// including any buffered orphans it made connectable. Disconnected is ordered
// tip first, Connected is ordered from the fork point upwards.
type AddResult struct {
	Status       Status
	Disconnected []*blockchain.Block
	Connected    []*blockchain.Block
	Tip          *blockchain.Block
}

// TipChanged reports whether the canonical head moved.
func (r AddResult) TipChanged() bool {
	return len(r.Connected) > 0
}

type Config struct {
	MinDifficulty uint8
	OrphanTTL     time.Duration
	MaxOrphans    int
}

func DefaultConfig() Config {
	return Config{
		MinDifficulty: 0,
		OrphanTTL:     10 * time.Minute,
		MaxOrphans:    256,
	}
}

func (c Config) Validate() error {
	if c.OrphanTTL <= 0 {
		return fmt.Errorf("orphan TTL must be positive, got %s", c.OrphanTTL)
	}
	if c.MaxOrphans < 0 {
		return fmt.Errorf("max orphans must not be negative, got %d", c.MaxOrphans)
	}
	return nil
}

// Chain is the canonical sequence of blocks rooted at the genesis block.
// Mutations are serialized; reads go straight to the store.
type Chain struct {
	cfg     Config
	store   store.ChainStore
	orphans *orphanPool
	logger  zerolog.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// New seeds an empty store with the genesis block, or checks that a
// populated store is rooted at it.
func New(cfg Config, st store.ChainStore, logger zerolog.Logger) (*Chain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chain config: %w", err)
	}

	c := &Chain{
		cfg:     cfg,
		store:   st,
		orphans: newOrphanPool(cfg.MaxOrphans, cfg.OrphanTTL),
		logger:  logger.With().Str("component", "chain").Logger(),
		now:     time.Now,
	}

	height, err := st.GetChainHeight()
	if err != nil {
		return nil, fmt.Errorf("failed to read chain height: %w", err)
	}

	if height == 0 {
		if err := st.PutBlock(blockchain.GenesisBlock, blockchain.CalculateBlockWork(blockchain.GenesisBlock.Header.Difficulty)); err != nil {
			return nil, fmt.Errorf("failed to store genesis: %w", err)
		}
		if err := st.ExtendCanonical(blockchain.GenesisHash); err != nil {
			return nil, fmt.Errorf("failed to seed genesis: %w", err)
		}
		return c, nil
	}

	root, err := st.GetBlockByHeight(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read root block: %w", err)
	}
	if !blockchain.IsGenesis(root) {
		return nil, fmt.Errorf("%w: store is rooted at %s", blockchain.ErrGenesisMismatch, root.Hash.Short())
	}
	return c, nil
}

// Add validates a block and links it into the block tree. Adding a known
// block is a no-op. A block with an unknown parent is buffered and reported
// as ErrOrphanBlock; it is revisited whenever its parent arrives.
func (c *Chain) Add(block *blockchain.Block) (AddResult, error) {
	if block == nil {
		return AddResult{}, fmt.Errorf("%w: nil block", blockchain.ErrInvalidBlock)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.orphans.expire(c.now()); n > 0 {
		c.logger.Debug().Int("expired", n).Msg("Expired orphan blocks")
	}

	oldTip, err := c.store.GetHeadBlock()
	if err != nil {
		return AddResult{}, fmt.Errorf("failed to read head: %w", err)
	}

	status, err := c.connectLocked(block)
	if err != nil {
		result := AddResult{Tip: oldTip}
		if errors.Is(err, blockchain.ErrOrphanBlock) {
			result.Status = StatusOrphaned
		}
		return result, err
	}
	if status != StatusDuplicate {
		c.tryConnectOrphans(block.Hash)
	}

	newTip, err := c.store.GetHeadBlock()
	if err != nil {
		return AddResult{}, fmt.Errorf("failed to read head: %w", err)
	}

	result := AddResult{Status: status, Tip: newTip}
	if newTip.Hash == oldTip.Hash {
		return result, nil
	}

	result.Disconnected, result.Connected, err = c.diffLocked(oldTip, newTip)
	if err != nil {
		return result, fmt.Errorf("%w: %v", blockchain.ErrChainCorrupt, err)
	}
	if len(result.Disconnected) > 0 {
		result.Status = StatusReorganized
	}
	return result, nil
}

// connectLocked places one block in the tree and moves the canonical head
// if the block extends it or outweighs it.
func (c *Chain) connectLocked(block *blockchain.Block) (Status, error) {
	if c.store.HasBlock(block.Hash) {
		return StatusDuplicate, nil
	}

	if err := block.Validate(c.cfg.MinDifficulty); err != nil {
		c.logger.Warn().Err(err).Str("hash", block.Hash.Short()).Uint64("index", block.Header.Index).Msg("Rejected block")
		return 0, err
	}

	parent, err := c.store.GetBlockByHash(block.Header.PreviousHash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
		missing := &blockchain.ErrMissingParent{
			Hash:   block.Hash,
			Parent: block.Header.PreviousHash,
			Index:  block.Header.Index,
		}
		if c.orphans.add(block, c.now()) {
			c.logger.Info().Str("hash", block.Hash.Short()).Str("parent", missing.Parent.Short()).
				Int("orphans", c.orphans.len()).Msg("Buffered orphan block")
		}
		return 0, missing
	}

	if block.Header.Index != parent.Header.Index+1 {
		err := fmt.Errorf("%w: index %d does not follow parent index %d", blockchain.ErrInvalidBlock, block.Header.Index, parent.Header.Index)
		c.logger.Warn().Err(err).Str("hash", block.Hash.Short()).Msg("Rejected block")
		return 0, err
	}

	parentWork, err := c.store.WorkAt(parent.Hash)
	if err != nil {
		return 0, fmt.Errorf("failed to read parent work: %w", err)
	}
	work := blockchain.AddWork(parentWork, blockchain.CalculateBlockWork(block.Header.Difficulty))

	head, err := c.store.GetHeadBlock()
	if err != nil {
		return 0, fmt.Errorf("failed to read head: %w", err)
	}

	headWork, err := c.store.WorkAt(head.Hash)
	if err != nil {
		return 0, fmt.Errorf("failed to read head work: %w", err)
	}
	extends := parent.Hash == head.Hash
	heavier := !extends && blockchain.CompareWork(work, headWork) > 0

	// A rejected block must not reach the store.
	path, fork, err := c.branchLocked(block)
	if err != nil {
		return 0, fmt.Errorf("%w: walking back from %s: %v", blockchain.ErrReorgFailure, block.Hash.Short(), err)
	}
	if err := c.checkReplayLocked(path, fork.Header.Index); err != nil {
		if heavier {
			err = fmt.Errorf("%w: %v", blockchain.ErrReorgFailure, err)
			c.logger.Warn().Err(err).Str("hash", block.Hash.Short()).Msg("Reorganization failed")
		} else {
			err = fmt.Errorf("%w: %v", blockchain.ErrInvalidBlock, err)
			c.logger.Warn().Err(err).Str("hash", block.Hash.Short()).Msg("Rejected block")
		}
		return 0, err
	}

	if err := c.store.PutBlock(block, work); err != nil {
		return 0, fmt.Errorf("failed to store block: %w", err)
	}

	switch {
	case extends:
		if err := c.store.ExtendCanonical(block.Hash); err != nil {
			return 0, fmt.Errorf("failed to extend chain: %w", err)
		}
		c.logger.Info().Str("hash", block.Hash.Short()).Uint64("index", block.Header.Index).
			Int("txs", len(block.Transactions)).Msg("Block added to main chain")
		return StatusExtended, nil
	case !heavier:
		// Equal work keeps the branch seen first.
		c.logger.Info().Str("hash", block.Hash.Short()).Uint64("index", block.Header.Index).Msg("Stored side branch block")
		return StatusSideBranch, nil
	}

	if err := c.reorganizeLocked(path, fork); err != nil {
		c.logger.Error().Err(err).Str("hash", block.Hash.Short()).Msg("Reorganization failed")
		return 0, err
	}
	return StatusReorganized, nil
}

// tryConnectOrphans attempts to connect orphan blocks descending from parent
func (c *Chain) tryConnectOrphans(parent blockchain.Hash32) {
	queue := []blockchain.Hash32{parent}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		for _, orphan := range c.orphans.takeChildren(next) {
			if _, err := c.connectLocked(orphan); err != nil {
				c.logger.Warn().Err(err).Str("hash", orphan.Hash.Short()).Msg("Dropped orphan block")
				continue
			}
			c.logger.Info().Str("hash", orphan.Hash.Short()).Msg("Connected orphan block")
			queue = append(queue, orphan.Hash)
		}
	}

	if n := c.orphans.len(); n > 0 {
		c.logger.Debug().Int("orphans", n).Msg("Orphan blocks waiting for parents")
	}
}

func (c *Chain) LastHash() blockchain.Hash32 {
	head, err := c.store.GetHeadBlock()
	if err != nil {
		return blockchain.Hash32{}
	}
	return head.Hash
}

// Length is the number of canonical blocks, genesis included.
func (c *Chain) Length() uint64 {
	height, _ := c.store.GetChainHeight()
	return height
}

func (c *Chain) Tip() *blockchain.Block {
	head, _ := c.store.GetHeadBlock()
	return head
}

func (c *Chain) BlockAt(height uint64) (*blockchain.Block, error) {
	return c.store.GetBlockByHeight(height)
}

// BlockByHash finds any stored block, canonical or not.
func (c *Chain) BlockByHash(hash blockchain.Hash32) (*blockchain.Block, error) {
	return c.store.GetBlockByHash(hash)
}

func (c *Chain) Blocks() []*blockchain.Block {
	return c.store.Canonical()
}

// IsConfirmed reports whether a transaction with this signature is in the
// canonical chain.
func (c *Chain) IsConfirmed(signature []byte) bool {
	tx := blockchain.Transaction{Signature: signature}
	return c.store.IsConfirmed(tx.Key())
}

func (c *Chain) OrphanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orphans.len()
}

func (c *Chain) TotalWork() *big.Int {
	work, err := c.store.WorkAt(c.LastHash())
	if err != nil {
		return new(big.Int)
	}
	return work
}

func (c *Chain) MinDifficulty() uint8 {
	return c.cfg.MinDifficulty
}

// Verify walks the canonical chain and checks genesis, linkage and hashes.
func (c *Chain) Verify() error {
	blocks := c.store.Canonical()
	if len(blocks) == 0 {
		return fmt.Errorf("%w: empty chain", blockchain.ErrChainCorrupt)
	}
	if !blockchain.IsGenesis(blocks[0]) {
		return blockchain.ErrGenesisMismatch
	}

	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]
		switch {
		case cur.Header.Index != uint64(i):
			return fmt.Errorf("%w: block at height %d has index %d", blockchain.ErrChainCorrupt, i, cur.Header.Index)
		case cur.Header.PreviousHash != prev.Hash:
			return fmt.Errorf("%w: block at height %d does not link to its predecessor", blockchain.ErrChainCorrupt, i)
		case blockchain.HashBlockHeader(&cur.Header) != cur.Hash:
			return fmt.Errorf("%w: block at height %d has a stale hash", blockchain.ErrChainCorrupt, i)
		}
	}
	return nil
}
