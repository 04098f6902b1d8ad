package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tx buffers writes over a committed backend. Reads see the buffered
// writes first. Nothing reaches the backend until Commit; dropping the Tx
// discards every buffered write.
type Tx struct {
	base   KV
	writes map[string]Op
	done   bool
}

// Begin opens a write buffer over base.
func Begin(base KV) *Tx {
	return &Tx{base: base, writes: make(map[string]Op)}
}

func (t *Tx) Get(ctx context.Context, key string) ([]byte, error) {
	if op, ok := t.writes[key]; ok {
		if op.Delete {
			return nil, ErrNotFound
		}
		return clone(op.Value), nil
	}
	return t.base.Get(ctx, key)
}

func (t *Tx) Iterate(ctx context.Context, prefix string) ([]Pair, error) {
	committed, err := t.base.Iterate(ctx, prefix)
	if err != nil {
		return nil, err
	}
	merged := make([]Pair, 0, len(committed))
	for _, p := range committed {
		if _, overwritten := t.writes[p.Key]; overwritten {
			continue
		}
		merged = append(merged, p)
	}
	for k, op := range t.writes {
		if op.Delete || !strings.HasPrefix(k, prefix) {
			continue
		}
		merged = append(merged, Pair{Key: k, Value: clone(op.Value)})
	}
	sortPairs(merged)
	return merged, nil
}

func (t *Tx) Set(ctx context.Context, key string, value []byte) error {
	if t.done {
		return fmt.Errorf("store: write after commit")
	}
	t.writes[key] = Op{Key: key, Value: clone(value)}
	return nil
}

func (t *Tx) Delete(ctx context.Context, key string) error {
	if t.done {
		return fmt.Errorf("store: write after commit")
	}
	t.writes[key] = Op{Key: key, Delete: true}
	return nil
}

// Pending returns the buffered writes ordered by key.
func (t *Tx) Pending() []Op {
	ops := make([]Op, 0, len(t.writes))
	for _, op := range t.writes {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Key < ops[j].Key })
	return ops
}

// Commit applies every buffered write to the backend in one batch.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("store: tx already committed")
	}
	t.done = true
	if len(t.writes) == 0 {
		return nil
	}
	if err := t.base.Apply(ctx, t.Pending()); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
