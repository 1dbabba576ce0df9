package blockchain

import (
	"crypto/sha256"
	"encoding/binary"
)

const (
	// HeaderSize is the length of the encoded header hashed by the miner.
	HeaderSize = 8 + 32 + 8 + 8 + 1 + 32 + 8

	// NonceOffset is where the nonce sits inside the encoded header.
	NonceOffset = HeaderSize - 8
)

// PoWBytes encodes the header in the fixed layout used for hashing. Miners
// copy this buffer once per round and overwrite only the nonce.
func (h *BlockHeader) PoWBytes() [HeaderSize]byte {
	var buf [HeaderSize]byte
	off := 0
	binary.BigEndian.PutUint64(buf[off:], h.Index)
	off += 8
	copy(buf[off:], h.PreviousHash[:])
	off += 32
	binary.BigEndian.PutUint64(buf[off:], uint64(h.Timestamp))
	off += 8
	binary.BigEndian.PutUint64(buf[off:], h.ExtraNonce)
	off += 8
	buf[off] = h.Difficulty
	off++
	copy(buf[off:], h.MerkleRoot[:])
	binary.BigEndian.PutUint64(buf[NonceOffset:], h.Nonce)
	return buf
}

// HashBlockHeader hashes the header with its current nonce.
func HashBlockHeader(header *BlockHeader) Hash32 {
	buf := header.PoWBytes()
	return sha256.Sum256(buf[:])
}

// ComputeHash hashes the block's header as if its nonce were nonce.
func (b *Block) ComputeHash(nonce uint64) Hash32 {
	buf := b.Header.PoWBytes()
	binary.BigEndian.PutUint64(buf[NonceOffset:], nonce)
	return sha256.Sum256(buf[:])
}

// Seal fixes the nonce and records the resulting hash.
func (b *Block) Seal(nonce uint64) {
	b.Header.Nonce = nonce
	b.Hash = b.ComputeHash(nonce)
}

// MerkleTransactions creates a merkle root from a list of transactions
func MerkleTransactions(transactions []Transaction) Hash32 {
	if len(transactions) == 0 {
		return Hash32{}
	}

	hashes := make([]Hash32, len(transactions))
	for i := range transactions {
		hashes[i] = transactions[i].Hash()
	}

	for len(hashes) > 1 {
		// If odd number, duplicate last hash
		if len(hashes)%2 == 1 {
			hashes = append(hashes, hashes[len(hashes)-1])
		}

		next := make([]Hash32, 0, len(hashes)/2)
		var pair [64]byte
		for i := 0; i < len(hashes); i += 2 {
			copy(pair[:32], hashes[i][:])
			copy(pair[32:], hashes[i+1][:])
			next = append(next, sha256.Sum256(pair[:]))
		}
		hashes = next
	}

	return hashes[0]
}
