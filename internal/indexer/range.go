package indexer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len is the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// ResolveRange picks the blocks a pass should scan: from the first unscanned
// block up to the tip minus the confirmation depth, at most maxRange blocks
// (0 means unbounded). ok is false when there is nothing to scan yet.
func ResolveRange(from, tip, confirmations, maxRange uint64) (BlockRange, bool) {
	if tip < confirmations {
		return BlockRange{From: from}, false
	}
	r := BlockRange{From: from, To: tip - confirmations}
	if r.To < r.From {
		return r, false
	}
	if maxRange > 0 && r.Len() > maxRange {
		r.To = r.From + maxRange - 1
	}
	return r, true
}

// SplitRange splits a block range into chunks of at most chunkSize blocks.
func SplitRange(from, to, chunkSize uint64) ([]BlockRange, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/chunkSize+1)
	for start := from; ; {
		end := to
		if to-start >= chunkSize {
			end = start + chunkSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
		start = end + 1
	}
}
