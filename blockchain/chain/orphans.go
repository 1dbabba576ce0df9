package chain

import (
	"time"

	"bingot/blockchain"
)

type orphan struct {
	block *blockchain.Block
	added time.Time
}

// orphanPool holds blocks whose parent is unknown, indexed by the missing
// parent. It is guarded by Chain.mu.
type orphanPool struct {
	blocks   map[blockchain.Hash32]orphan
	byParent map[blockchain.Hash32][]blockchain.Hash32
	max      int
	ttl      time.Duration
}

func newOrphanPool(maxSize int, ttl time.Duration) *orphanPool {
	return &orphanPool{
		blocks:   make(map[blockchain.Hash32]orphan),
		byParent: make(map[blockchain.Hash32][]blockchain.Hash32),
		max:      maxSize,
		ttl:      ttl,
	}
}

// add buffers a block. It returns false if the block was already buffered or
// the pool holds nothing.
func (p *orphanPool) add(block *blockchain.Block, now time.Time) bool {
	if p.max == 0 {
		return false
	}
	if _, ok := p.blocks[block.Hash]; ok {
		return false
	}

	for len(p.blocks) >= p.max {
		p.evictOldest()
	}

	p.blocks[block.Hash] = orphan{block: block, added: now}
	parent := block.Header.PreviousHash
	p.byParent[parent] = append(p.byParent[parent], block.Hash)
	return true
}

// takeChildren removes and returns the buffered blocks waiting on parent.
func (p *orphanPool) takeChildren(parent blockchain.Hash32) []*blockchain.Block {
	hashes := p.byParent[parent]
	if len(hashes) == 0 {
		return nil
	}
	delete(p.byParent, parent)

	children := make([]*blockchain.Block, 0, len(hashes))
	for _, h := range hashes {
		if o, ok := p.blocks[h]; ok {
			children = append(children, o.block)
			delete(p.blocks, h)
		}
	}
	return children
}

func (p *orphanPool) expire(now time.Time) int {
	expired := 0
	for h, o := range p.blocks {
		if now.Sub(o.added) >= p.ttl {
			p.remove(h)
			expired++
		}
	}
	return expired
}

func (p *orphanPool) evictOldest() {
	var (
		oldest blockchain.Hash32
		at     time.Time
		found  bool
	)
	for h, o := range p.blocks {
		if !found || o.added.Before(at) {
			oldest, at, found = h, o.added, true
		}
	}
	if found {
		p.remove(oldest)
	}
}

func (p *orphanPool) remove(hash blockchain.Hash32) {
	o, ok := p.blocks[hash]
	if !ok {
		return
	}
	delete(p.blocks, hash)

	parent := o.block.Header.PreviousHash
	siblings := p.byParent[parent]
	for i, h := range siblings {
		if h == hash {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(siblings) == 0 {
		delete(p.byParent, parent)
	} else {
		p.byParent[parent] = siblings
	}
}

func (p *orphanPool) len() int {
	return len(p.blocks)
}
