package blockchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDifficulty = 8

func mineTestBlock(t *testing.T, index uint64, prev Hash32, txs []Transaction) *Block {
	t.Helper()
	coinbase := NewCoinbase("miner", 50)
	block, err := NewBlock(BlockCreationParams{
		Index:        index,
		PreviousHash: prev,
		Coinbase:     &coinbase,
		Transactions: txs,
		Difficulty:   testDifficulty,
	})
	require.NoError(t, err)
	return block
}

func TestHashMeetsDifficulty(t *testing.T) {
	tests := []struct {
		name       string
		hash       Hash32
		difficulty uint8
		want       bool
	}{
		{"hash with leading zero byte meets difficulty 8", Hash32{0x00, 0x40}, 8, true},
		{"hash with one leading zero bit meets difficulty 1", Hash32{0x40}, 1, true},
		{"hash with one leading zero bit misses difficulty 2", Hash32{0x40}, 2, false},
		{"hash without leading zero should not meet difficulty 1", Hash32{0xFF, 0xFF, 0xFF, 0xFF}, 1, false},
		{"any hash meets difficulty 0", Hash32{0xFF}, 0, true},
		{"all zero hash should meet max difficulty", Hash32{}, MaxDifficulty, true},
		{"twelve zero bits", Hash32{0x00, 0x0F}, 12, true},
		{"eleven zero bits", Hash32{0x00, 0x10}, 12, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HashMeetsDifficulty(tt.hash, tt.difficulty))
			assert.Equal(t, tt.want, HashBelowTarget(tt.hash, Target(tt.difficulty)),
				"leading-zero check must agree with the numeric comparison")
		})
	}
}

func TestTargetAndWork(t *testing.T) {
	assert.Equal(t, 0, Target(0).Cmp(new(big.Int).Lsh(big.NewInt(1), 256)))
	assert.Equal(t, 0, Target(8).Cmp(new(big.Int).Lsh(big.NewInt(1), 248)))

	assert.Equal(t, int64(1), CalculateBlockWork(0).Int64())
	assert.Equal(t, int64(256), CalculateBlockWork(8).Int64())

	total := AddWork(CalculateBlockWork(8), CalculateBlockWork(8))
	assert.Equal(t, 1, CompareWork(total, CalculateBlockWork(8)))
	assert.Equal(t, -1, CompareWork(CalculateBlockWork(8), CalculateBlockWork(9)))
	assert.Equal(t, 0, CompareWork(nil, new(big.Int)))
}

func TestComputeHashMatchesSeal(t *testing.T) {
	block := BuildBlock(1, []Transaction{NewCoinbase("miner", 50)}, GenesisHash, 0)

	for _, nonce := range []uint64{0, 1, 42, 1 << 40} {
		want := block.ComputeHash(nonce)
		block.Seal(nonce)
		assert.Equal(t, want, block.Hash)
		assert.Equal(t, want, HashBlockHeader(&block.Header))
	}
}

func TestBuildBlockOrdering(t *testing.T) {
	w := newTestWallet(t)
	a := signedTx(t, w, "x", 1)
	b := signedTx(t, w, "y", 2)
	c := signedTx(t, w, "z", 3)
	coinbase := NewCoinbase("miner", 50)

	block := BuildBlock(1, []Transaction{c, a, coinbase, b, a, NewCoinbase("other", 1)}, GenesisHash, 0)

	require.Len(t, block.Transactions, 4, "duplicate signature and second coinbase are dropped")
	assert.True(t, block.Transactions[0].IsCoinbase())
	assert.Equal(t, coinbase.To, block.Transactions[0].To)
	for i := 2; i < len(block.Transactions); i++ {
		assert.True(t, lessBySignature(&block.Transactions[i-1], &block.Transactions[i]))
	}

	again := BuildBlock(1, []Transaction{c, a, coinbase, b}, GenesisHash, 0)
	assert.NotEqual(t, block.Header.ExtraNonce, again.Header.ExtraNonce, "each candidate draws a fresh extra nonce")
}

func TestValidateBlock(t *testing.T) {
	w := newTestWallet(t)
	txs := []Transaction{signedTx(t, w, "x", 1), signedTx(t, w, "y", 2)}

	valid := mineTestBlock(t, 1, GenesisHash, txs)
	require.NoError(t, valid.Validate(testDifficulty))
	assert.True(t, valid.IsValid(Target(testDifficulty)))

	tests := []struct {
		name   string
		mutate func(b *Block)
	}{
		{"wrong nonce", func(b *Block) { b.Header.Nonce++ }},
		{"wrong stored hash", func(b *Block) { b.Hash[0] ^= 0xFF }},
		{"tampered amount", func(b *Block) { b.Transactions[1].Amount++ }},
		{"duplicate signature", func(b *Block) {
			b.Transactions = append(b.Transactions, b.Transactions[1])
			b.Header.MerkleRoot = MerkleTransactions(b.Transactions)
		}},
		{"second coinbase", func(b *Block) {
			b.Transactions = append(b.Transactions, NewCoinbase("thief", 1000))
			b.Header.MerkleRoot = MerkleTransactions(b.Transactions)
		}},
		{"unordered", func(b *Block) {
			b.Transactions[1], b.Transactions[2] = b.Transactions[2], b.Transactions[1]
			b.Header.MerkleRoot = MerkleTransactions(b.Transactions)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := cloneBlock(valid)
			tt.mutate(b)
			// Re-mine whatever header changes the mutation caused so only the
			// targeted defect remains.
			if tt.name != "wrong nonce" && tt.name != "wrong stored hash" {
				nonce, err := MineCorrectNonce(b, 0)
				require.NoError(t, err)
				b.Seal(nonce)
			}
			err := b.Validate(testDifficulty)
			assert.ErrorIs(t, err, ErrInvalidBlock)
			assert.False(t, b.IsValid(Target(testDifficulty)))
		})
	}
}

func TestValidateBlockDifficultyFloor(t *testing.T) {
	block := mineTestBlock(t, 1, GenesisHash, nil)
	assert.ErrorIs(t, block.Validate(testDifficulty+1), ErrInvalidBlock)
	assert.NoError(t, block.Validate(testDifficulty))
}

func TestGenesis(t *testing.T) {
	assert.True(t, IsGenesis(GenesisBlock))
	assert.Equal(t, GenesisHash, HashBlockHeader(&GenesisBlock.Header))
	assert.Equal(t, uint64(0), GenesisBlock.Header.Index)
	assert.NoError(t, GenesisBlock.Validate(0))

	fake := cloneBlock(GenesisBlock)
	fake.Header.Timestamp++
	fake.Seal(0)
	assert.False(t, IsGenesis(fake))
}

func TestHashJSON(t *testing.T) {
	text, err := GenesisHash.MarshalText()
	require.NoError(t, err)

	var parsed Hash32
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, GenesisHash, parsed)

	_, err = ParseHash("abc")
	assert.Error(t, err)
}

func cloneBlock(b *Block) *Block {
	clone := *b
	clone.Transactions = append([]Transaction(nil), b.Transactions...)
	return &clone
}
