// Package batch splits ordered collections into bounded groups for
// rate-limited downstream calls.
package batch

import (
	"errors"
	"iter"
	"slices"
)

// ErrInvalidSize is returned for chunk sizes below 1.
var ErrInvalidSize = errors.New("batch: chunk size must be positive")

// Chunk lazily yields contiguous sub-slices of items, each of length <= size,
// in original order. The last chunk holds the remainder. Yielded slices share
// the backing array of items and are capped so appends cannot clobber it.
func Chunk[T any](items []T, size int) (iter.Seq[[]T], error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	return slices.Chunk(items, size), nil
}

// Count returns ceil(n/size), the number of chunks Chunk yields.
func Count(n, size int) int {
	if size < 1 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
