package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

// Balances live in the same KV as contract state so a rolled back chain
// also rolls back every transfer it made.
const bankKeyPrefix = "bank/"

func balance(ctx context.Context, r store.Reader, addr Addr) (uint64, error) {
	var bal uint64
	err := store.Load(ctx, r, bankKeyPrefix+string(addr), &bal)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	return bal, err
}

func setBalance(ctx context.Context, w store.Writer, addr Addr, amount uint64) error {
	if amount == 0 {
		return w.Delete(ctx, bankKeyPrefix+string(addr))
	}
	return store.Save(ctx, w, bankKeyPrefix+string(addr), amount)
}

func transfer(ctx context.Context, rw store.ReadWriter, from, to Addr, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := balance(ctx, rw, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", contracts.ErrInsufficientFunds, from, fromBal, amount)
	}
	toBal, err := balance(ctx, rw, to)
	if err != nil {
		return err
	}
	if toBal+amount < toBal {
		return fmt.Errorf("transfer to %s: balance overflow", to)
	}
	if err := setBalance(ctx, rw, from, fromBal-amount); err != nil {
		return err
	}
	return setBalance(ctx, rw, to, toBal+amount)
}
