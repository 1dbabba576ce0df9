package blockchain

import (
	"math/big"
)

// CalculateBlockWork calculates the amount of work represented by a given difficulty
// Work = 2^256 / target, which is 2^difficulty for power-of-two targets.
func CalculateBlockWork(difficulty uint8) *big.Int {
	return new(big.Int).Div(twoTo256, Target(difficulty))
}

// AddWork returns work1 + work2 without modifying either argument.
func AddWork(work1, work2 *big.Int) *big.Int {
	total := new(big.Int)
	if work1 != nil {
		total.Add(total, work1)
	}
	if work2 != nil {
		total.Add(total, work2)
	}
	return total
}

// CompareWork compares two work values, returns:
// -1 if work1 < work2
//
//	0 if work1 == work2
//	1 if work1 > work2
func CompareWork(work1, work2 *big.Int) int {
	if work1 == nil {
		work1 = new(big.Int)
	}
	if work2 == nil {
		work2 = new(big.Int)
	}
	return work1.Cmp(work2)
}
