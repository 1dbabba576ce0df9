package mempool

import (
	"bytes"
	"sync"
	"testing"

	"bingot/blockchain"
	"bingot/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type confirmedSet map[string]bool

func (c confirmedSet) IsConfirmed(signature []byte) bool {
	tx := blockchain.Transaction{Signature: signature}
	return c[tx.Key()]
}

func signedTxs(t *testing.T, n int) []blockchain.Transaction {
	t.Helper()
	w, err := wallet.Generate()
	require.NoError(t, err)

	txs := make([]blockchain.Transaction, n)
	for i := range txs {
		tx := blockchain.NewTransaction(w.Address(), "random_address", uint64(i+1))
		require.NoError(t, tx.Sign(w))
		txs[i] = *tx
	}
	return txs
}

func TestInsert(t *testing.T) {
	m := New()
	txs := signedTxs(t, 2)

	assert.True(t, m.Insert(txs[0]))
	assert.False(t, m.Insert(txs[0]), "duplicate signature is a no-op")
	assert.True(t, m.Insert(txs[1]))
	assert.False(t, m.Insert(blockchain.NewCoinbase("miner", 50)))
	assert.False(t, m.Insert(*blockchain.NewTransaction("a", "b", 1)), "unsigned")

	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Contains(txs[0].Key()))
}

func TestInsertRespectsLimit(t *testing.T) {
	m := NewWithLimit(1)
	txs := signedTxs(t, 2)

	assert.True(t, m.Insert(txs[0]))
	assert.False(t, m.Insert(txs[1]))
	assert.Equal(t, 1, m.Restore(txs[1:], nil), "restore ignores the limit")
	assert.Equal(t, 2, m.Len())
}

func TestDrainForBlock(t *testing.T) {
	m := New()
	for _, tx := range signedTxs(t, 10) {
		require.True(t, m.Insert(tx))
	}

	drained := m.DrainForBlock()
	require.Len(t, drained, 10)
	for i := 1; i < len(drained); i++ {
		assert.Negative(t, bytes.Compare(drained[i-1].Signature, drained[i].Signature))
	}
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.DrainForBlock())
}

func TestRestore(t *testing.T) {
	m := New()
	txs := signedTxs(t, 4)
	require.True(t, m.Insert(txs[0]))

	confirmed := confirmedSet{txs[1].Key(): true}
	in := []blockchain.Transaction{
		blockchain.NewCoinbase("miner", 50),
		txs[0], // already pending
		txs[1], // confirmed
		txs[2],
		txs[3],
		txs[3], // repeated in the input
	}

	assert.Equal(t, 2, m.Restore(in, confirmed))
	assert.Equal(t, 3, m.Len())
	assert.False(t, m.Contains(txs[1].Key()))
	assert.True(t, m.Contains(txs[2].Key()))
	assert.True(t, m.Contains(txs[3].Key()))
}

func TestPrune(t *testing.T) {
	m := New()
	txs := signedTxs(t, 3)
	for _, tx := range txs {
		require.True(t, m.Insert(tx))
	}

	assert.Equal(t, 2, m.Prune(confirmedSet{txs[0].Key(): true, txs[1].Key(): true, "unknown": true}))
	assert.Equal(t, 0, m.Prune(confirmedSet{txs[0].Key(): true}))

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, txs[2].Key(), snap[0].Key())
	assert.Equal(t, 1, m.Len(), "snapshot does not drain")
}

func TestConcurrentDrainLosesNothing(t *testing.T) {
	m := New()
	txs := signedTxs(t, 200)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		drained = make(map[string]int)
	)
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(offset int) {
			defer wg.Done()
			for i := offset; i < len(txs); i += 4 {
				m.Insert(txs[i])
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				got := m.DrainForBlock()
				mu.Lock()
				for _, tx := range got {
					drained[tx.Key()]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, tx := range m.DrainForBlock() {
		drained[tx.Key()]++
	}
	assert.Len(t, drained, len(txs))
	for key, n := range drained {
		assert.Equal(t, 1, n, "transaction %s drained more than once", key)
	}
}
