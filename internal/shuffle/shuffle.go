package shuffle

import "math/rand"

// Shuffle permutes items in place with Fisher-Yates using the given source.
func Shuffle[T any](r *rand.Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

// Slice returns the half-open window [start, start+size) of items, clamped
// to the slice bounds.
func Slice[T any](items []T, start, size int) []T {
	if start < 0 || start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Partition cuts items into contiguous, non-overlapping chunks of size each.
// A short tail chunk is kept.
func Partition[T any](items []T, size int) [][]T {
	if size <= 0 {
		return nil
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		chunks = append(chunks, Slice(items, start, size))
	}
	return chunks
}
