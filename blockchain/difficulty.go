package blockchain

import (
	"math/big"
	"math/bits"
)

// MaxDifficulty is the largest number of leading zero bits a header may
// demand.
const MaxDifficulty = 255

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

// Target returns 2^(256-difficulty). A hash is valid when, read as a
// big-endian unsigned integer, it is strictly below the target.
func Target(difficulty uint8) *big.Int {
	return new(big.Int).Rsh(twoTo256, uint(difficulty))
}

// HashBelowTarget compares hash and target numerically.
func HashBelowTarget(hash Hash32, target *big.Int) bool {
	return new(big.Int).SetBytes(hash[:]).Cmp(target) < 0
}

// HashMeetsDifficulty is the allocation-free form of
// HashBelowTarget(hash, Target(difficulty)) used on the mining hot path.
func HashMeetsDifficulty(hash Hash32, difficulty uint8) bool {
	need := int(difficulty)
	for _, b := range hash {
		if need <= 0 {
			return true
		}
		if b != 0 {
			return bits.LeadingZeros8(b) >= need
		}
		need -= 8
	}
	return need <= 0
}
