package store

import (
	"fmt"
	"math/big"
	"sync"

	"bingot/blockchain"
)

type storedBlock struct {
	block *blockchain.Block
	work  *big.Int
}

type MemoryChainStore struct {
	blocks    map[blockchain.Hash32]storedBlock
	canonical []*blockchain.Block
	// confirmed maps a transaction signature key to the canonical height
	// holding it.
	confirmed map[string]uint64
	mu        sync.RWMutex
}

func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{
		blocks:    make(map[blockchain.Hash32]storedBlock),
		canonical: make([]*blockchain.Block, 0),
		confirmed: make(map[string]uint64),
	}
}

// PutBlock records a block and its cumulative work without touching the
// canonical chain. Storing a known hash again is a no-op.
func (m *MemoryChainStore) PutBlock(block *blockchain.Block, cumulativeWork *big.Int) error {
	if block == nil {
		return fmt.Errorf("cannot store nil block")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blocks[block.Hash]; ok {
		return nil
	}
	work := new(big.Int)
	if cumulativeWork != nil {
		work.Set(cumulativeWork)
	}
	m.blocks[block.Hash] = storedBlock{block: block, work: work}
	return nil
}

// ExtendCanonical appends a stored block whose parent is the current head.
// The first call on an empty store sets the root of the chain.
func (m *MemoryChainStore) ExtendCanonical(hash blockchain.Hash32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.blocks[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Short())
	}

	if head := m.headUnsafe(); head != nil {
		if entry.block.Header.PreviousHash != head.Hash || entry.block.Header.Index != head.Header.Index+1 {
			return fmt.Errorf("%w: %s", ErrNotLinked, hash.Short())
		}
	}

	m.appendUnsafe(entry.block)
	return nil
}

// ReplaceCanonical truncates the canonical chain above forkHeight and appends
// path in order. The whole path is checked before anything changes, so a
// rejected replacement leaves the store as it was.
func (m *MemoryChainStore) ReplaceCanonical(forkHeight uint64, path []blockchain.Hash32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if forkHeight >= uint64(len(m.canonical)) {
		return fmt.Errorf("fork height %d beyond canonical length %d", forkHeight, len(m.canonical))
	}

	newBlocks := make([]*blockchain.Block, 0, len(path))
	prev := m.canonical[forkHeight]
	for _, hash := range path {
		entry, ok := m.blocks[hash]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownBlock, hash.Short())
		}
		if entry.block.Header.PreviousHash != prev.Hash || entry.block.Header.Index != prev.Header.Index+1 {
			return fmt.Errorf("%w: %s", ErrNotLinked, hash.Short())
		}
		newBlocks = append(newBlocks, entry.block)
		prev = entry.block
	}

	for _, block := range m.canonical[forkHeight+1:] {
		for _, tx := range block.Transactions {
			if !tx.IsCoinbase() {
				delete(m.confirmed, tx.Key())
			}
		}
	}
	m.canonical = m.canonical[:forkHeight+1:forkHeight+1]
	for _, block := range newBlocks {
		m.appendUnsafe(block)
	}
	return nil
}

func (m *MemoryChainStore) HasBlock(hash blockchain.Hash32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[hash]
	return ok
}

func (m *MemoryChainStore) GetBlockByHash(hash blockchain.Hash32) (*blockchain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.blocks[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash.Short())
	}
	return entry.block, nil
}

func (m *MemoryChainStore) GetBlockByHeight(height uint64) (*blockchain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if height >= uint64(len(m.canonical)) {
		return nil, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	return m.canonical[height], nil
}

func (m *MemoryChainStore) GetHeadBlock() (*blockchain.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	head := m.headUnsafe()
	if head == nil {
		return nil, ErrEmptyChain
	}
	return head, nil
}

// GetChainHeight returns the number of canonical blocks, genesis included.
func (m *MemoryChainStore) GetChainHeight() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.canonical)), nil
}

func (m *MemoryChainStore) WorkAt(hash blockchain.Hash32) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.blocks[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash.Short())
	}
	return new(big.Int).Set(entry.work), nil
}

// Canonical returns a copy of the canonical chain.
func (m *MemoryChainStore) Canonical() []*blockchain.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*blockchain.Block, len(m.canonical))
	copy(out, m.canonical)
	return out
}

func (m *MemoryChainStore) IsConfirmed(signatureKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.confirmed[signatureKey]
	return ok
}

// ConfirmedHeight returns the canonical height of the block holding the
// transaction with the given signature key.
func (m *MemoryChainStore) ConfirmedHeight(signatureKey string) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	height, ok := m.confirmed[signatureKey]
	return height, ok
}

// BlockCount is the number of stored blocks across all branches.
func (m *MemoryChainStore) BlockCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// headUnsafe returns the canonical head without locking - must be called with lock held
func (m *MemoryChainStore) headUnsafe() *blockchain.Block {
	if len(m.canonical) == 0 {
		return nil
	}
	return m.canonical[len(m.canonical)-1]
}

// appendUnsafe must be called with the write lock held
func (m *MemoryChainStore) appendUnsafe(block *blockchain.Block) {
	height := uint64(len(m.canonical))
	m.canonical = append(m.canonical, block)
	for _, tx := range block.Transactions {
		if !tx.IsCoinbase() {
			m.confirmed[tx.Key()] = height
		}
	}
}
