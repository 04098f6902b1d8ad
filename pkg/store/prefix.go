package store

import (
	"context"
	"strings"
)

// Prefixed scopes a ReadWriter to keys under prefix, so each service
// instance owns a disjoint key range.
type Prefixed struct {
	inner  ReadWriter
	prefix string
}

// NewPrefixed returns a view of rw rooted at prefix.
func NewPrefixed(rw ReadWriter, prefix string) *Prefixed {
	return &Prefixed{inner: rw, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Iterate(ctx context.Context, prefix string) ([]Pair, error) {
	pairs, err := p.inner.Iterate(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i := range pairs {
		pairs[i].Key = strings.TrimPrefix(pairs[i].Key, p.prefix)
	}
	return pairs, nil
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}
