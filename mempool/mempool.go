package mempool

import (
	"sort"
	"sync"

	"bingot/blockchain"
)

// DefaultMaxSize is the default maximum number of pending transactions
const DefaultMaxSize = 10000

// Confirmer reports whether a signature is already in the canonical chain.
type Confirmer interface {
	IsConfirmed(signature []byte) bool
}

// Mempool holds signed transactions waiting for a block, keyed by signature.
type Mempool struct {
	mu           sync.RWMutex
	transactions map[string]blockchain.Transaction
	maxSize      int
}

func New() *Mempool {
	return NewWithLimit(DefaultMaxSize)
}

// NewWithLimit creates a mempool holding at most maxSize transactions; zero
// means unbounded.
func NewWithLimit(maxSize int) *Mempool {
	return &Mempool{
		transactions: make(map[string]blockchain.Transaction),
		maxSize:      maxSize,
	}
}

// Insert adds a signed transaction. It returns false for coinbase or unsigned
// transactions, for signatures already present, and when the pool is full.
// Signature checks are the caller's job.
func (m *Mempool) Insert(tx blockchain.Transaction) bool {
	if tx.IsCoinbase() || !tx.IsSigned() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := tx.Key()
	if _, exists := m.transactions[key]; exists {
		return false
	}
	if m.maxSize > 0 && len(m.transactions) >= m.maxSize {
		return false
	}
	m.transactions[key] = tx
	return true
}

// DrainForBlock removes every pending transaction in one step and returns
// them ordered by signature.
func (m *Mempool) DrainForBlock() []blockchain.Transaction {
	m.mu.Lock()
	drained := m.transactions
	m.transactions = make(map[string]blockchain.Transaction, len(drained))
	m.mu.Unlock()

	return sorted(drained)
}

// Restore puts transactions back after a discarded round or a
// reorganization. Coinbase transactions, confirmed signatures and
// signatures already pending are skipped. It returns how many were added.
// The size limit does not apply.
func (m *Mempool) Restore(txs []blockchain.Transaction, confirmed Confirmer) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	restored := 0
	for _, tx := range txs {
		if tx.IsCoinbase() || !tx.IsSigned() {
			continue
		}
		if confirmed != nil && confirmed.IsConfirmed(tx.Signature) {
			continue
		}
		key := tx.Key()
		if _, exists := m.transactions[key]; exists {
			continue
		}
		m.transactions[key] = tx
		restored++
	}
	return restored
}

// Prune drops pending transactions that are now confirmed.
func (m *Mempool) Prune(confirmed Confirmer) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for key, tx := range m.transactions {
		if confirmed.IsConfirmed(tx.Signature) {
			delete(m.transactions, key)
			pruned++
		}
	}
	return pruned
}

func (m *Mempool) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.transactions[key]
	return ok
}

func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transactions)
}

// Snapshot returns the pending transactions ordered by signature without
// removing them.
func (m *Mempool) Snapshot() []blockchain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sorted(m.transactions)
}

func sorted(set map[string]blockchain.Transaction) []blockchain.Transaction {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	// hex keys sort in the same order as the raw signature bytes
	sort.Strings(keys)

	txs := make([]blockchain.Transaction, 0, len(keys))
	for _, key := range keys {
		txs = append(txs, set[key])
	}
	return txs
}
