package blockchain

// genesisTimestamp is fixed so every node derives the same genesis hash.
const genesisTimestamp = 1577836800_000000000

// GenesisBlock is the first block in the blockchain
// It has no previous hash, carries no transactions and is never mined.
var GenesisBlock *Block

// GenesisHash is GenesisBlock.Hash.
var GenesisHash Hash32

func init() {
	header := BlockHeader{
		Index:        0,
		PreviousHash: Hash32{}, // All zeros for genesis
		Timestamp:    genesisTimestamp,
		Difficulty:   0,
		MerkleRoot:   MerkleTransactions(nil),
	}

	GenesisBlock = &Block{
		Header:       header,
		Transactions: []Transaction{},
	}
	GenesisBlock.Seal(0)
	GenesisHash = GenesisBlock.Hash
}

// IsGenesis reports whether b is byte-for-byte the fixed genesis block.
func IsGenesis(b *Block) bool {
	return b != nil && b.Header.Index == 0 && b.Hash == GenesisHash && HashBlockHeader(&b.Header) == GenesisHash
}
