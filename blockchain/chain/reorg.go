package chain

import (
	"fmt"

	"bingot/blockchain"
)

// branchLocked returns the blocks from just above the fork point with the
// canonical chain up to and including block, oldest first, together with
// the fork point. block itself need not be stored yet.
func (c *Chain) branchLocked(block *blockchain.Block) ([]*blockchain.Block, *blockchain.Block, error) {
	path := []*blockchain.Block{block}
	cur, err := c.store.GetBlockByHash(block.Header.PreviousHash)
	if err != nil {
		return nil, nil, err
	}
	for !c.isCanonicalLocked(cur) {
		path = append(path, cur)
		if cur, err = c.store.GetBlockByHash(cur.Header.PreviousHash); err != nil {
			return nil, nil, err
		}
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, cur, nil
}

// reorganizeLocked makes the last block of path the canonical head. The
// path has already passed checkReplayLocked; the store swaps it in as a
// single step, so a failure leaves the canonical chain untouched.
func (c *Chain) reorganizeLocked(path []*blockchain.Block, fork *blockchain.Block) error {
	hashes := make([]blockchain.Hash32, len(path))
	for i, b := range path {
		hashes[i] = b.Hash
	}

	oldHeight, _ := c.store.GetChainHeight()
	if err := c.store.ReplaceCanonical(fork.Header.Index, hashes); err != nil {
		return fmt.Errorf("%w: %v", blockchain.ErrReorgFailure, err)
	}

	newTip := path[len(path)-1]
	c.logger.Warn().
		Str("fork", fork.Hash.Short()).
		Uint64("fork_height", fork.Header.Index).
		Uint64("disconnected", oldHeight-fork.Header.Index-1).
		Int("connected", len(path)).
		Str("tip", newTip.Hash.Short()).
		Msg("Chain reorganized")
	return nil
}

func (c *Chain) isCanonicalLocked(b *blockchain.Block) bool {
	at, err := c.store.GetBlockByHeight(b.Header.Index)
	return err == nil && at.Hash == b.Hash
}

// checkReplayLocked rejects blocks that repeat a transaction among
// themselves or one already confirmed at or below forkHeight.
func (c *Chain) checkReplayLocked(blocks []*blockchain.Block, forkHeight uint64) error {
	seen := make(map[string]struct{})
	for _, b := range blocks {
		for i := range b.Transactions {
			tx := &b.Transactions[i]
			if tx.IsCoinbase() {
				continue
			}
			key := tx.Key()
			if _, dup := seen[key]; dup {
				return fmt.Errorf("transaction repeated in block %s", b.Hash.Short())
			}
			seen[key] = struct{}{}
			if height, ok := c.store.ConfirmedHeight(key); ok && height <= forkHeight {
				return fmt.Errorf("block %s repeats a transaction confirmed at height %d", b.Hash.Short(), height)
			}
		}
	}
	return nil
}

// diffLocked returns the blocks leaving the canonical chain (tip first) and
// the blocks joining it (fork point upwards) when the head moves from
// oldTip to newTip.
func (c *Chain) diffLocked(oldTip, newTip *blockchain.Block) (disconnected, connected []*blockchain.Block, err error) {
	a, b := oldTip, newTip
	parent := func(x *blockchain.Block) (*blockchain.Block, error) {
		return c.store.GetBlockByHash(x.Header.PreviousHash)
	}

	for a.Header.Index > b.Header.Index {
		disconnected = append(disconnected, a)
		if a, err = parent(a); err != nil {
			return nil, nil, err
		}
	}
	for b.Header.Index > a.Header.Index {
		connected = append(connected, b)
		if b, err = parent(b); err != nil {
			return nil, nil, err
		}
	}
	for a.Hash != b.Hash {
		disconnected = append(disconnected, a)
		connected = append(connected, b)
		if a, err = parent(a); err != nil {
			return nil, nil, err
		}
		if b, err = parent(b); err != nil {
			return nil, nil, err
		}
	}

	for i, j := 0, len(connected)-1; i < j; i, j = i+1, j-1 {
		connected[i], connected[j] = connected[j], connected[i]
	}
	return disconnected, connected, nil
}
