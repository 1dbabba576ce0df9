package blockchain

import (
	"math"
	"sort"
	"time"

	"lukechampine.com/frand"
)

type BlockCreationParams struct {
	Index        uint64
	PreviousHash Hash32
	Coinbase     *Transaction
	Transactions []Transaction
	Timestamp    int64
	Difficulty   uint8
	// NonceLimit bounds the single-threaded search; zero means unbounded.
	NonceLimit uint64
}

// BuildBlock assembles an unsealed candidate. Transactions are ordered with
// the coinbase first and then by signature; repeated signatures and extra
// coinbases are dropped. Each call draws a fresh extra nonce, so two
// candidates built from the same inputs search different hash spaces.
func BuildBlock(index uint64, transactions []Transaction, previousHash Hash32, difficulty uint8) *Block {
	return buildBlock(index, transactions, previousHash, difficulty, time.Now().UnixNano())
}

func buildBlock(index uint64, transactions []Transaction, previousHash Hash32, difficulty uint8, timestamp int64) *Block {
	txs := orderTransactions(transactions)

	return &Block{
		Header: BlockHeader{
			Index:        index,
			PreviousHash: previousHash,
			Timestamp:    timestamp,
			ExtraNonce:   frand.Uint64n(math.MaxUint64),
			Difficulty:   difficulty,
			MerkleRoot:   MerkleTransactions(txs),
		},
		Transactions: txs,
	}
}

func orderTransactions(transactions []Transaction) []Transaction {
	txs := make([]Transaction, 0, len(transactions))
	seen := make(map[string]struct{}, len(transactions))
	haveCoinbase := false

	for _, tx := range transactions {
		if tx.IsCoinbase() {
			if haveCoinbase {
				continue
			}
			haveCoinbase = true
			txs = append(txs, tx)
			continue
		}
		key := tx.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return lessBySignature(&txs[i], &txs[j])
	})
	return txs
}

// NewBlock builds a block and mines it on the calling goroutine. It is meant
// for fixtures and low difficulties; the node mines through the parallel
// coordinator instead.
func NewBlock(params BlockCreationParams) (*Block, error) {
	txs := make([]Transaction, 0, len(params.Transactions)+1)
	if params.Coinbase != nil {
		txs = append(txs, *params.Coinbase)
	}
	txs = append(txs, params.Transactions...)

	ts := params.Timestamp
	if ts == 0 {
		ts = time.Now().UnixNano()
	}

	block := buildBlock(params.Index, txs, params.PreviousHash, params.Difficulty, ts)

	nonce, err := MineCorrectNonce(block, params.NonceLimit)
	if err != nil {
		return nil, err
	}
	block.Seal(nonce)

	return block, nil
}
