// Package store provides the key-value persistence that backs every
// service's state, and the transactional overlay the host uses to make a
// dispatched message chain all-or-nothing.
//
// Backends only need three primitives: point reads, ordered prefix scans
// and an atomic batch apply. Buffering, read-your-writes and rollback are
// handled once, in Tx.
package store

import (
	"context"
	"errors"
	"sort"
)

// ErrNotFound is returned when a key is absent.
var ErrNotFound = errors.New("key not found")

// Pair is a key and its stored value.
type Pair struct {
	Key   string
	Value []byte
}

// Op is one write in an atomic batch. Delete ignores Value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Reader reads keys and ordered prefix ranges.
type Reader interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Iterate returns every pair whose key starts with prefix, ascending.
	Iterate(ctx context.Context, prefix string) ([]Pair, error)
}

// Writer mutates keys.
type Writer interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ReadWriter is the view handed to service code.
type ReadWriter interface {
	Reader
	Writer
}

// KV is a committed backend.
type KV interface {
	Reader
	// Apply writes the batch atomically: either every op is visible
	// afterwards or none is.
	Apply(ctx context.Context, ops []Op) error
	Close() error
}

func sortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
}

// prefixEnd returns the smallest key greater than every key with the
// given prefix, or "" when no such bound exists.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

func clone(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
