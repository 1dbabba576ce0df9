package mining

// NonceRange is the half-open interval [Start, End).
type NonceRange struct {
	Start uint64
	End   uint64
}

func (r NonceRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Partition splits [0, n) into workers contiguous ranges of n/workers nonces.
// The last range absorbs the remainder.
func Partition(n uint64, workers int) []NonceRange {
	if workers < 1 {
		workers = 1
	}
	chunk := n / uint64(workers)

	ranges := make([]NonceRange, workers)
	for i := range ranges {
		ranges[i] = NonceRange{
			Start: uint64(i) * chunk,
			End:   uint64(i+1) * chunk,
		}
	}
	ranges[workers-1].End = n
	return ranges
}
