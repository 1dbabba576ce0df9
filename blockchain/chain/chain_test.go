package chain

import (
	"errors"
	"sync"
	"testing"
	"time"

	"bingot/blockchain"
	"bingot/blockchain/store"
	"bingot/wallet"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChain(t *testing.T, cfg Config) *Chain {
	t.Helper()
	c, err := New(cfg, store.NewMemoryChainStore(), zerolog.Nop())
	require.NoError(t, err)
	return c
}

func mine(t *testing.T, parent *blockchain.Block, difficulty uint8, txs ...blockchain.Transaction) *blockchain.Block {
	t.Helper()
	coinbase := blockchain.NewCoinbase("miner", 50)
	b, err := blockchain.NewBlock(blockchain.BlockCreationParams{
		Index:        parent.Header.Index + 1,
		PreviousHash: parent.Hash,
		Coinbase:     &coinbase,
		Transactions: txs,
		Difficulty:   difficulty,
	})
	require.NoError(t, err)
	return b
}

func signedTx(t *testing.T, amount uint64) blockchain.Transaction {
	t.Helper()
	w, err := wallet.Generate()
	require.NoError(t, err)
	tx := blockchain.NewTransaction(w.Address(), "random_address", amount)
	require.NoError(t, tx.Sign(w))
	return *tx
}

func assertLinked(t *testing.T, c *Chain) {
	t.Helper()
	require.NoError(t, c.Verify())
	blocks := c.Blocks()
	require.Equal(t, uint64(len(blocks)), c.Length())
	assert.Equal(t, c.Length(), c.Tip().Header.Index+1)
	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].Hash, blocks[i].Header.PreviousHash)
		assert.Equal(t, uint64(i), blocks[i].Header.Index)
	}
}

func TestNewSeedsGenesis(t *testing.T) {
	c := newTestChain(t, DefaultConfig())

	assert.Equal(t, uint64(1), c.Length())
	assert.Equal(t, blockchain.GenesisHash, c.LastHash())
	assert.Equal(t, int64(1), c.TotalWork().Int64())
	assertLinked(t, c)
}

func TestNewRejectsForeignGenesis(t *testing.T) {
	st := store.NewMemoryChainStore()
	fake := &blockchain.Block{Header: blockchain.BlockHeader{Timestamp: 42}}
	fake.Seal(0)
	require.NoError(t, st.PutBlock(fake, nil))
	require.NoError(t, st.ExtendCanonical(fake.Hash))

	_, err := New(DefaultConfig(), st, zerolog.Nop())
	assert.ErrorIs(t, err, blockchain.ErrGenesisMismatch)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OrphanTTL = 0
	_, err := New(cfg, store.NewMemoryChainStore(), zerolog.Nop())
	assert.Error(t, err)
}

func TestAddExtendsChain(t *testing.T) {
	c := newTestChain(t, DefaultConfig())

	parent := blockchain.GenesisBlock
	for i := 0; i < 5; i++ {
		b := mine(t, parent, 0, signedTx(t, uint64(i)))
		res, err := c.Add(b)
		require.NoError(t, err)
		assert.Equal(t, StatusExtended, res.Status)
		assert.True(t, res.TipChanged())
		assert.Equal(t, []*blockchain.Block{b}, res.Connected)
		assert.Empty(t, res.Disconnected)
		assert.Equal(t, b, res.Tip)
		assertLinked(t, c)
		parent = b
	}
	assert.Equal(t, uint64(6), c.Length())
}

func TestAddIsIdempotent(t *testing.T) {
	c := newTestChain(t, DefaultConfig())
	tx := signedTx(t, 9)
	b := mine(t, blockchain.GenesisBlock, 0, tx)

	_, err := c.Add(b)
	require.NoError(t, err)
	assert.True(t, c.IsConfirmed(tx.Signature))

	res, err := c.Add(b)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)
	assert.False(t, res.TipChanged())
	assert.Equal(t, uint64(2), c.Length())

	_, err = c.Add(blockchain.GenesisBlock)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.Length())
}

func TestAddRejectsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDifficulty = 2
	c := newTestChain(t, cfg)

	good := mine(t, blockchain.GenesisBlock, 2)

	tests := []struct {
		name  string
		block func() *blockchain.Block
	}{
		{"below minimum difficulty", func() *blockchain.Block {
			return mine(t, blockchain.GenesisBlock, 0)
		}},
		{"stale hash", func() *blockchain.Block {
			b := *good
			b.Header.Timestamp++
			return &b
		}},
		{"index does not follow parent", func() *blockchain.Block {
			b := *good
			b.Header.Index = 5
			nonce, err := blockchain.MineCorrectNonce(&b, 0)
			require.NoError(t, err)
			b.Seal(nonce)
			return &b
		}},
		{"replayed transaction", func() *blockchain.Block {
			tx := signedTx(t, 1)
			first := mine(t, blockchain.GenesisBlock, 2, tx)
			_, err := c.Add(first)
			require.NoError(t, err)
			return mine(t, first, 2, tx)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.block()
			before := c.Length()
			_, err := c.Add(b)
			assert.ErrorIs(t, err, blockchain.ErrInvalidBlock)
			assert.Equal(t, before, c.Length())
			assertLinked(t, c)
		})
	}
}

func TestAddBuffersOrphans(t *testing.T) {
	c := newTestChain(t, DefaultConfig())

	b1 := mine(t, blockchain.GenesisBlock, 0)
	b2 := mine(t, b1, 0)
	b3 := mine(t, b2, 0)

	res, err := c.Add(b3)
	require.ErrorIs(t, err, blockchain.ErrOrphanBlock)
	var missing *blockchain.ErrMissingParent
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, b2.Hash, missing.Parent)
	assert.Equal(t, StatusOrphaned, res.Status)

	_, err = c.Add(b2)
	require.ErrorIs(t, err, blockchain.ErrOrphanBlock)
	assert.Equal(t, 2, c.OrphanCount())
	assert.Equal(t, uint64(1), c.Length())

	res, err = c.Add(b1)
	require.NoError(t, err)
	assert.Equal(t, StatusExtended, res.Status)
	assert.Equal(t, []*blockchain.Block{b1, b2, b3}, res.Connected)
	assert.Equal(t, b3, res.Tip)
	assert.Equal(t, 0, c.OrphanCount())
	assert.Equal(t, uint64(4), c.Length())
	assertLinked(t, c)
}

func TestOrphanExpiry(t *testing.T) {
	c := newTestChain(t, DefaultConfig())
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	b1 := mine(t, blockchain.GenesisBlock, 0)
	b2 := mine(t, b1, 0)

	_, err := c.Add(b2)
	require.ErrorIs(t, err, blockchain.ErrOrphanBlock)
	require.Equal(t, 1, c.OrphanCount())

	now = now.Add(c.cfg.OrphanTTL)
	_, err = c.Add(b1)
	require.NoError(t, err)

	assert.Equal(t, 0, c.OrphanCount())
	assert.Equal(t, uint64(2), c.Length(), "expired orphan must not be connected")
}

func TestOrphanPoolBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOrphans = 2
	c := newTestChain(t, cfg)

	tick := time.Unix(0, 0)
	c.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	missing := mine(t, blockchain.GenesisBlock, 0)
	var orphans []*blockchain.Block
	for i := 0; i < 3; i++ {
		orphans = append(orphans, mine(t, missing, 0, signedTx(t, uint64(i))))
	}
	for _, o := range orphans {
		_, err := c.Add(o)
		require.ErrorIs(t, err, blockchain.ErrOrphanBlock)
	}
	assert.Equal(t, 2, c.OrphanCount())

	res, err := c.Add(missing)
	require.NoError(t, err)
	// The oldest orphan was evicted; the remaining siblings compete for the
	// same height and the first one connected wins on equal work.
	assert.Equal(t, uint64(3), c.Length())
	assert.NotEqual(t, orphans[0].Hash, res.Tip.Hash)
	assert.Equal(t, 0, c.OrphanCount())
	assertLinked(t, c)
}

func TestForkChoice(t *testing.T) {
	t.Run("equal work keeps first seen", func(t *testing.T) {
		c := newTestChain(t, DefaultConfig())
		a1 := mine(t, blockchain.GenesisBlock, 0, signedTx(t, 1))
		b1 := mine(t, blockchain.GenesisBlock, 0, signedTx(t, 2))

		_, err := c.Add(a1)
		require.NoError(t, err)
		res, err := c.Add(b1)
		require.NoError(t, err)

		assert.Equal(t, StatusSideBranch, res.Status)
		assert.False(t, res.TipChanged())
		assert.Equal(t, a1.Hash, c.LastHash())
		assertLinked(t, c)
	})

	t.Run("longer branch wins", func(t *testing.T) {
		c := newTestChain(t, DefaultConfig())
		losing := signedTx(t, 1)
		winning := signedTx(t, 2)
		a1 := mine(t, blockchain.GenesisBlock, 0, losing)
		b1 := mine(t, blockchain.GenesisBlock, 0, winning)
		b2 := mine(t, b1, 0)

		_, err := c.Add(a1)
		require.NoError(t, err)
		_, err = c.Add(b1)
		require.NoError(t, err)
		res, err := c.Add(b2)
		require.NoError(t, err)

		assert.Equal(t, StatusReorganized, res.Status)
		assert.Equal(t, []*blockchain.Block{a1}, res.Disconnected)
		assert.Equal(t, []*blockchain.Block{b1, b2}, res.Connected)
		assert.Equal(t, b2.Hash, c.LastHash())
		assert.False(t, c.IsConfirmed(losing.Signature))
		assert.True(t, c.IsConfirmed(winning.Signature))
		assertLinked(t, c)
	})

	t.Run("harder block outweighs a longer branch", func(t *testing.T) {
		c := newTestChain(t, DefaultConfig())
		a1 := mine(t, blockchain.GenesisBlock, 0)
		a2 := mine(t, a1, 0)
		heavy := mine(t, blockchain.GenesisBlock, 4)

		for _, b := range []*blockchain.Block{a1, a2} {
			_, err := c.Add(b)
			require.NoError(t, err)
		}
		res, err := c.Add(heavy)
		require.NoError(t, err)

		assert.Equal(t, StatusReorganized, res.Status)
		assert.Equal(t, []*blockchain.Block{a2, a1}, res.Disconnected)
		assert.Equal(t, heavy.Hash, c.LastHash())
		assert.Equal(t, uint64(2), c.Length())
		assertLinked(t, c)
	})

	t.Run("orphan completes a heavier branch", func(t *testing.T) {
		c := newTestChain(t, DefaultConfig())
		a1 := mine(t, blockchain.GenesisBlock, 0)
		b1 := mine(t, blockchain.GenesisBlock, 0)
		b2 := mine(t, b1, 0)

		_, err := c.Add(a1)
		require.NoError(t, err)
		_, err = c.Add(b2)
		require.ErrorIs(t, err, blockchain.ErrOrphanBlock)

		res, err := c.Add(b1)
		require.NoError(t, err)
		assert.Equal(t, StatusReorganized, res.Status)
		assert.Equal(t, []*blockchain.Block{a1}, res.Disconnected)
		assert.Equal(t, []*blockchain.Block{b1, b2}, res.Connected)
		assertLinked(t, c)
	})
}

func TestReorgFailureLeavesChainIntact(t *testing.T) {
	c := newTestChain(t, DefaultConfig())
	tx := signedTx(t, 1)

	a1 := mine(t, blockchain.GenesisBlock, 0, tx)
	a2 := mine(t, a1, 0)
	a3 := mine(t, a2, 0)
	for _, b := range []*blockchain.Block{a1, a2, a3} {
		_, err := c.Add(b)
		require.NoError(t, err)
	}

	// Forks above a1 and replays its transaction; heavier, but invalid as a
	// canonical extension.
	replay := mine(t, a1, 6, tx)
	res, err := c.Add(replay)
	require.ErrorIs(t, err, blockchain.ErrReorgFailure)
	assert.Equal(t, a3, res.Tip)

	assert.False(t, c.store.HasBlock(replay.Hash))
	_, err = c.BlockByHash(replay.Hash)
	assert.Error(t, err)

	// Offering it again fails the same way instead of reading as a duplicate.
	res, err = c.Add(replay)
	require.ErrorIs(t, err, blockchain.ErrReorgFailure)
	assert.NotEqual(t, StatusDuplicate, res.Status)

	assert.Equal(t, a3.Hash, c.LastHash())
	assert.Equal(t, uint64(4), c.Length())
	assert.True(t, c.IsConfirmed(tx.Signature))
	assertLinked(t, c)
}

func TestSideBranchReplayNotStored(t *testing.T) {
	c := newTestChain(t, DefaultConfig())
	tx := signedTx(t, 1)

	a1 := mine(t, blockchain.GenesisBlock, 0, tx)
	a2 := mine(t, a1, 0)
	a3 := mine(t, a2, 0)
	for _, b := range []*blockchain.Block{a1, a2, a3} {
		_, err := c.Add(b)
		require.NoError(t, err)
	}

	side := mine(t, a1, 0, tx)
	for range 2 {
		_, err := c.Add(side)
		require.ErrorIs(t, err, blockchain.ErrInvalidBlock)
		assert.False(t, c.store.HasBlock(side.Hash))
	}
	assert.Equal(t, a3.Hash, c.LastHash())
}

func TestConcurrentAdd(t *testing.T) {
	c := newTestChain(t, DefaultConfig())

	blocks := make([]*blockchain.Block, 20)
	parent := blockchain.GenesisBlock
	for i := range blocks {
		blocks[i] = mine(t, parent, 0, signedTx(t, uint64(i)))
		parent = blocks[i]
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := range blocks {
				b := blocks[(i+offset)%len(blocks)]
				if _, err := c.Add(b); err != nil && !errors.Is(err, blockchain.ErrOrphanBlock) {
					t.Errorf("Add(%d) failed: %v", b.Header.Index, err)
				}
				_ = c.Length()
				_ = c.LastHash()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, uint64(len(blocks)+1), c.Length())
	assert.Equal(t, blocks[len(blocks)-1].Hash, c.LastHash())
	assert.Equal(t, 0, c.OrphanCount())
	assertLinked(t, c)
}
