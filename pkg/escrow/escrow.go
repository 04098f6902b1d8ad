// Package escrow holds worker collateral. Stakes are locked through the
// Gateway and only ever leave the escrow on the Orchestrator's word: as a
// settlement split between the worker and the slash sink, or as a refund
// when the ticket is removed.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

const (
	configKey   = "config"
	stakePrefix = "stakes/"
)

func stakesKey(id uint64) string { return fmt.Sprintf("%s%020d", stakePrefix, id) }

// Contract is the Escrow service.
type Contract struct{}

func New() *Contract { return &Contract{} }

func loadConfig(ctx context.Context, r store.Reader) (contracts.EscrowConfig, error) {
	var cfg contracts.EscrowConfig
	if err := store.Load(ctx, r, configKey, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cfg, fmt.Errorf("%w: escrow", contracts.ErrNotInitialized)
		}
		return cfg, err
	}
	return cfg, nil
}

func loadStakes(ctx context.Context, r store.Reader, id uint64) ([]contracts.Stake, error) {
	var stakes []contracts.Stake
	if err := store.Load(ctx, r, stakesKey(id), &stakes); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return stakes, nil
}

func saveStakes(ctx context.Context, w store.Writer, id uint64, stakes []contracts.Stake) error {
	if len(stakes) == 0 {
		return w.Delete(ctx, stakesKey(id))
	}
	return store.Save(ctx, w, stakesKey(id), stakes)
}

func indexOf(stakes []contracts.Stake, worker contracts.Addr) int {
	for i, s := range stakes {
		if s.Worker == worker {
			return i
		}
	}
	return -1
}

func (c *Contract) Instantiate(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	m, ok := msg.(contracts.InstantiateEscrow)
	if !ok {
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	cfg := contracts.EscrowConfig{Admin: info.Sender, Registry: m.Registry, Gateway: m.Gateway}
	if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "instantiate").
		AddAttribute("admin", string(info.Sender)), nil
}

func (c *Contract) Execute(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}

	switch m := msg.(type) {
	case contracts.LockStake:
		return c.lockStake(ctx, deps, info, cfg, m)
	case contracts.ReleaseStake:
		return c.releaseStake(ctx, deps, info, cfg, m)
	case contracts.RefundStakes:
		return c.refundStakes(ctx, deps, info, cfg, m)
	case contracts.PostEscrowConfig:
		if err := contracts.RejectFunds(info.Funds); err != nil {
			return nil, err
		}
		if err := contracts.RequireSender(info.Sender, cfg.Admin); err != nil {
			return nil, err
		}
		if cfg.Registry, err = cfg.Registry.Replace(m.Registry); err != nil {
			return nil, err
		}
		if cfg.Gateway, err = cfg.Gateway.Replace(m.Gateway); err != nil {
			return nil, err
		}
		if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
			return nil, err
		}
		return host.NewResponse().AddAttribute("method", "post_config"), nil
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}

func (c *Contract) lockStake(ctx context.Context, deps host.Deps, info host.MessageInfo, cfg contracts.EscrowConfig, m contracts.LockStake) (*host.Response, error) {
	if err := contracts.RequirePeer(cfg.Gateway, "gateway", info.Sender); err != nil {
		return nil, err
	}
	if err := contracts.ValidateAddress(m.Worker); err != nil {
		return nil, err
	}
	registry, err := cfg.Registry.Require("registry")
	if err != nil {
		return nil, err
	}
	ticket, err := host.QueryAs[contracts.Ticket](ctx, deps.Querier, registry, contracts.QueryTicket{ID: m.TicketID})
	if err != nil {
		return nil, err
	}
	switch {
	case info.Funds < ticket.Collateral || info.Funds == 0:
		return nil, fmt.Errorf("%w: ticket %d requires %d, got %d", contracts.ErrInsufficientFunds, m.TicketID, ticket.Collateral, info.Funds)
	case info.Funds > ticket.Collateral:
		return nil, fmt.Errorf("%w: ticket %d requires %d, got %d", contracts.ErrUnexpectedFunds, m.TicketID, ticket.Collateral, info.Funds)
	}

	stakes, err := loadStakes(ctx, deps.Storage, m.TicketID)
	if err != nil {
		return nil, err
	}
	if indexOf(stakes, m.Worker) >= 0 {
		return nil, fmt.Errorf("%w: %s on ticket %d", contracts.ErrAlreadyStaked, m.Worker, m.TicketID)
	}
	stakes = append(stakes, contracts.Stake{Worker: m.Worker, Amount: info.Funds})
	if err := saveStakes(ctx, deps.Storage, m.TicketID, stakes); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "lock_stake").
		AddAttribute("ticket", contracts.FormatID(m.TicketID)).
		AddAttribute("worker", string(m.Worker)).
		AddAttribute("amount", strconv.FormatUint(info.Funds, 10)), nil
}

func (c *Contract) releaseStake(ctx context.Context, deps host.Deps, info host.MessageInfo, cfg contracts.EscrowConfig, m contracts.ReleaseStake) (*host.Response, error) {
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	if err := contracts.RequireSender(info.Sender, cfg.Admin); err != nil {
		return nil, err
	}
	stakes, err := loadStakes(ctx, deps.Storage, m.TicketID)
	if err != nil {
		return nil, err
	}
	i := indexOf(stakes, m.Worker)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s on ticket %d", contracts.ErrNotStaked, m.Worker, m.TicketID)
	}
	locked := stakes[i].Amount
	if m.Amount > locked || m.Slashed > locked-m.Amount {
		return nil, fmt.Errorf("%w: releasing %d+%d of %d", contracts.ErrInsufficientFunds, m.Amount, m.Slashed, locked)
	}
	if m.Slashed > 0 {
		if m.Sink == "" {
			return nil, fmt.Errorf("%w: slash sink", contracts.ErrNotInitialized)
		}
		if err := contracts.ValidateAddress(m.Sink); err != nil {
			return nil, err
		}
	}
	// Whatever is not explicitly slashed goes back to the worker.
	toWorker := locked - m.Slashed

	stakes = append(stakes[:i], stakes[i+1:]...)
	if err := saveStakes(ctx, deps.Storage, m.TicketID, stakes); err != nil {
		return nil, err
	}

	resp := host.NewResponse().
		AddAttribute("method", "release_stake").
		AddAttribute("ticket", contracts.FormatID(m.TicketID)).
		AddAttribute("worker", string(m.Worker)).
		AddAttribute("released", strconv.FormatUint(toWorker, 10)).
		AddAttribute("slashed", strconv.FormatUint(m.Slashed, 10))
	if toWorker > 0 {
		resp.AddMessage(host.BankSend{To: m.Worker, Amount: toWorker})
	}
	if m.Slashed > 0 {
		resp.AddMessage(host.BankSend{To: m.Sink, Amount: m.Slashed})
	}
	return resp, nil
}

func (c *Contract) refundStakes(ctx context.Context, deps host.Deps, info host.MessageInfo, cfg contracts.EscrowConfig, m contracts.RefundStakes) (*host.Response, error) {
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	if err := contracts.RequireSender(info.Sender, cfg.Admin); err != nil {
		return nil, err
	}
	stakes, err := loadStakes(ctx, deps.Storage, m.TicketID)
	if err != nil {
		return nil, err
	}
	if err := deps.Storage.Delete(ctx, stakesKey(m.TicketID)); err != nil {
		return nil, err
	}

	var total uint64
	resp := host.NewResponse()
	for _, s := range stakes {
		if s.Amount == 0 {
			continue
		}
		total += s.Amount
		resp.AddMessage(host.BankSend{To: s.Worker, Amount: s.Amount})
	}
	return resp.
		AddAttribute("method", "refund_stakes").
		AddAttribute("ticket", contracts.FormatID(m.TicketID)).
		AddAttribute("refunds", strconv.Itoa(len(stakes))).
		AddAttribute("amount", strconv.FormatUint(total, 10)), nil
}

func (c *Contract) Query(ctx context.Context, deps host.Deps, env host.Env, msg any) (any, error) {
	switch m := msg.(type) {
	case contracts.QueryStakeStatus:
		stakes, err := loadStakes(ctx, deps.Storage, m.TicketID)
		if err != nil {
			return nil, err
		}
		return indexOf(stakes, m.Worker) >= 0, nil
	case contracts.QueryStakes:
		stakes, err := loadStakes(ctx, deps.Storage, m.TicketID)
		if err != nil {
			return nil, err
		}
		if stakes == nil {
			stakes = []contracts.Stake{}
		}
		return stakes, nil
	case contracts.QueryEscrowConfig:
		return loadConfig(ctx, deps.Storage)
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}
