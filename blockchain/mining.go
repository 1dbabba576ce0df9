package blockchain

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
)

var ErrNonceExhausted = errors.New("nonce space exhausted")

// MineCorrectNonce searches nonces from zero upwards until the header meets
// its own difficulty. A zero limit searches the whole uint64 space.
func MineCorrectNonce(block *Block, limit uint64) (uint64, error) {
	if limit == 0 {
		limit = math.MaxUint64
	}

	buf := block.Header.PoWBytes()
	difficulty := block.Header.Difficulty

	for nonce := uint64(0); nonce < limit; nonce++ {
		binary.BigEndian.PutUint64(buf[NonceOffset:], nonce)
		if HashMeetsDifficulty(sha256.Sum256(buf[:]), difficulty) {
			return nonce, nil
		}
	}

	return 0, ErrNonceExhausted
}
