package blockchain

import (
	"bytes"
	"math/big"
)

// IsValid reports whether the block's hash is below target and its
// transactions are well formed and verified.
func (b *Block) IsValid(target *big.Int) bool {
	hash := b.ComputeHash(b.Header.Nonce)
	if hash != b.Hash || !HashBelowTarget(hash, target) {
		return false
	}
	return b.validateBody() == nil
}

// Validate checks a block in isolation: difficulty floor, proof of work,
// merkle root and transactions. Parent linkage is the chain's concern.
// Every failure wraps ErrInvalidBlock.
func (b *Block) Validate(minDifficulty uint8) error {
	if b.Header.Difficulty < minDifficulty {
		return invalidBlock("difficulty %d below minimum %d", b.Header.Difficulty, minDifficulty)
	}

	hash := b.ComputeHash(b.Header.Nonce)
	if hash != b.Hash {
		return invalidBlock("hash mismatch: header hashes to %s, block claims %s", hash.Short(), b.Hash.Short())
	}
	if !HashBelowTarget(hash, Target(b.Header.Difficulty)) {
		return invalidBlock("hash %s does not meet difficulty %d", hash.Short(), b.Header.Difficulty)
	}

	return b.validateBody()
}

func (b *Block) validateBody() error {
	if merkle := MerkleTransactions(b.Transactions); merkle != b.Header.MerkleRoot {
		return invalidBlock("merkle root is not correct")
	}

	var prev *Transaction
	for i := range b.Transactions {
		tx := &b.Transactions[i]

		if tx.IsCoinbase() {
			if i != 0 {
				return invalidBlock("coinbase at position %d", i)
			}
			if tx.To.IsEmpty() {
				return invalidBlock("coinbase without recipient")
			}
			if err := tx.checkAddresses(); err != nil {
				return invalidBlock("coinbase: %v", err)
			}
			continue
		}

		if !tx.IsSigned() {
			return invalidBlock("transaction %d is unsigned", i)
		}
		if prev != nil {
			switch c := bytes.Compare(prev.Signature, tx.Signature); {
			case c == 0:
				return invalidBlock("duplicate signature %s", shortKey(tx))
			case c > 0:
				return invalidBlock("transactions not ordered by signature at %d", i)
			}
		}
		prev = tx

		ok, err := tx.VerifyAttached()
		if err != nil {
			return invalidBlock("transaction %d: %v", i, err)
		}
		if !ok {
			return invalidBlock("transaction %d has an invalid signature", i)
		}
	}

	return nil
}

func shortKey(tx *Transaction) string {
	key := tx.Key()
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
