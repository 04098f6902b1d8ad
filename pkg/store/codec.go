package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// State records are CBOR with Core Deterministic Encoding, so the same
// record always produces the same bytes regardless of backend.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Load decodes the record at key into v. Absent keys return ErrNotFound.
func Load(ctx context.Context, r Reader, key string, v any) error {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := Unmarshal(raw, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}

// Save encodes v and writes it at key.
func Save(ctx context.Context, w Writer, key string, v any) error {
	raw, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return w.Set(ctx, key, raw)
}

// Has reports whether key exists.
func Has(ctx context.Context, r Reader, key string) (bool, error) {
	_, err := r.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LoadAll decodes every record under prefix, in key order.
func LoadAll[T any](ctx context.Context, r Reader, prefix string) ([]T, error) {
	pairs, err := r.Iterate(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(pairs))
	for _, p := range pairs {
		var v T
		if err := Unmarshal(p.Value, &v); err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", p.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}
