package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTx_ReadYourWrites(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	require.NoError(t, base.Apply(ctx, []Op{
		{Key: "a", Value: []byte("1")},
		{Key: "b", Value: []byte("2")},
	}))

	tx := Begin(base)
	require.NoError(t, tx.Set(ctx, "c", []byte("3")))
	require.NoError(t, tx.Delete(ctx, "a"))
	require.NoError(t, tx.Set(ctx, "b", []byte("22")))

	_, err := tx.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	v, err := tx.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("22"), v)

	pairs, err := tx.Iterate(ctx, "")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "b", pairs[0].Key)
	assert.Equal(t, []byte("22"), pairs[0].Value)
	assert.Equal(t, "c", pairs[1].Key)

	// Base untouched until commit.
	v, err = base.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestTx_DiscardLeavesBaseUntouched(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()

	tx := Begin(base)
	require.NoError(t, tx.Set(ctx, "x", []byte("1")))
	assert.Len(t, tx.Pending(), 1)

	assert.Equal(t, 0, base.Len())
}

func TestTx_Commit(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	require.NoError(t, base.Apply(ctx, []Op{{Key: "old", Value: []byte("o")}}))

	tx := Begin(base)
	require.NoError(t, tx.Set(ctx, "new", []byte("n")))
	require.NoError(t, tx.Delete(ctx, "old"))
	require.Len(t, tx.Pending(), 2)
	require.NoError(t, tx.Commit(ctx))

	_, err := base.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	v, err := base.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, []byte("n"), v)

	assert.Error(t, tx.Set(ctx, "late", nil))
	assert.Error(t, tx.Commit(ctx))
}

func TestPrefixed(t *testing.T) {
	ctx := context.Background()
	tx := Begin(NewMemoryStore())
	a := NewPrefixed(tx, "c/a/")
	b := NewPrefixed(tx, "c/b/")

	require.NoError(t, a.Set(ctx, "k", []byte("A")))
	require.NoError(t, b.Set(ctx, "k", []byte("B")))

	va, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("A"), va)

	pairs, err := b.Iterate(ctx, "")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "k", pairs[0].Key)

	raw, err := tx.Get(ctx, "c/b/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("B"), raw)
}

type record struct {
	ID    uint64 `cbor:"id"`
	Owner string `cbor:"owner"`
}

func TestCodec_SaveLoad(t *testing.T) {
	ctx := context.Background()
	tx := Begin(NewMemoryStore())

	require.NoError(t, Save(ctx, tx, "r/2", record{ID: 2, Owner: "b"}))
	require.NoError(t, Save(ctx, tx, "r/1", record{ID: 1, Owner: "a"}))

	var got record
	require.NoError(t, Load(ctx, tx, "r/1", &got))
	assert.Equal(t, record{ID: 1, Owner: "a"}, got)

	ok, err := Has(ctx, tx, "r/3")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := LoadAll[record](ctx, tx, "r/")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[0].ID)

	assert.ErrorIs(t, Load(ctx, tx, "r/9", &got), ErrNotFound)
}

func TestCodec_Deterministic(t *testing.T) {
	a, err := Marshal(map[string]uint64{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := Marshal(map[string]uint64{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
