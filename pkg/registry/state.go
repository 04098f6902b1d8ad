package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

const (
	configKey        = "config"
	ticketPrefix     = "ticket/"
	assignmentPrefix = "assignment/"
	settledPrefix    = "settled/"
)

// Zero-padded ids keep prefix scans in numeric order.
func ticketKey(id uint64) string     { return fmt.Sprintf("%s%020d", ticketPrefix, id) }
func assignmentKey(id uint64) string { return fmt.Sprintf("%s%020d", assignmentPrefix, id) }
func settledKey(id uint64) string    { return fmt.Sprintf("%s%020d", settledPrefix, id) }

func loadConfig(ctx context.Context, r store.Reader) (contracts.RegistryConfig, error) {
	var cfg contracts.RegistryConfig
	if err := store.Load(ctx, r, configKey, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cfg, fmt.Errorf("%w: registry", contracts.ErrNotInitialized)
		}
		return cfg, err
	}
	return cfg, nil
}

func loadTicket(ctx context.Context, r store.Reader, id uint64) (contracts.Ticket, error) {
	var t contracts.Ticket
	if err := store.Load(ctx, r, ticketKey(id), &t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return t, fmt.Errorf("%w: ticket %d", contracts.ErrNotFound, id)
		}
		return t, err
	}
	return t, nil
}

func loadAssignment(ctx context.Context, r store.Reader, id uint64) (contracts.Assignment, error) {
	var a contracts.Assignment
	if err := store.Load(ctx, r, assignmentKey(id), &a); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return a, fmt.Errorf("%w: no worker assigned to ticket %d", contracts.ErrNotFound, id)
		}
		return a, err
	}
	return a, nil
}

func isSettled(ctx context.Context, r store.Reader, id uint64) (bool, error) {
	return store.Has(ctx, r, settledKey(id))
}
