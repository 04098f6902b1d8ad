// Package gateway is the worker-facing entry point. It forwards stake
// deposits to the Escrow, bids to the Bidding Engine and results to the
// Registry, checking each worker's standing on the way.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

const configKey = "config"

// Contract is the Gateway service.
type Contract struct{}

func New() *Contract { return &Contract{} }

func loadConfig(ctx context.Context, r store.Reader) (contracts.GatewayConfig, error) {
	var cfg contracts.GatewayConfig
	if err := store.Load(ctx, r, configKey, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cfg, fmt.Errorf("%w: gateway", contracts.ErrNotInitialized)
		}
		return cfg, err
	}
	return cfg, nil
}

func (c *Contract) Instantiate(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	m, ok := msg.(contracts.InstantiateGateway)
	if !ok {
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	cfg := contracts.GatewayConfig{
		Admin:         info.Sender,
		Registry:      m.Registry,
		Escrow:        m.Escrow,
		BiddingEngine: m.BiddingEngine,
	}
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
	case contracts.GatewayLockStake:
		if info.Funds == 0 {
			return nil, fmt.Errorf("%w: no collateral attached", contracts.ErrInsufficientFunds)
		}
		escrow, err := cfg.Escrow.Require("escrow")
		if err != nil {
			return nil, err
		}
		return host.NewResponse().
			AddAttribute("method", "lock_stake").
			AddAttribute("ticket", contracts.FormatID(m.TicketID)).
			AddAttribute("worker", string(info.Sender)).
			AddMessage(host.ExecuteMsg{
				Contract: escrow,
				Msg:      contracts.LockStake{TicketID: m.TicketID, Worker: info.Sender},
				Funds:    info.Funds,
			}), nil

	case contracts.GatewayPlaceBet:
		if err := contracts.RejectFunds(info.Funds); err != nil {
			return nil, err
		}
		escrow, err := cfg.Escrow.Require("escrow")
		if err != nil {
			return nil, err
		}
		bidding, err := cfg.BiddingEngine.Require("bidding engine")
		if err != nil {
			return nil, err
		}
		staked, err := host.QueryAs[bool](ctx, deps.Querier, escrow,
			contracts.QueryStakeStatus{TicketID: m.TicketID, Worker: info.Sender})
		if err != nil {
			return nil, err
		}
		if !staked {
			return nil, fmt.Errorf("%w: %s on ticket %d", contracts.ErrNotStaked, info.Sender, m.TicketID)
		}
		return host.NewResponse().
			AddAttribute("method", "place_bet").
			AddAttribute("ticket", contracts.FormatID(m.TicketID)).
			AddAttribute("worker", string(info.Sender)).
			AddMessage(host.ExecuteMsg{
				Contract: bidding,
				Msg:      contracts.PlaceBid{TicketID: m.TicketID, Bidder: info.Sender, Amount: m.Amount},
			}), nil

	case contracts.GatewaySubmitResult:
		if err := contracts.RejectFunds(info.Funds); err != nil {
			return nil, err
		}
		registry, err := cfg.Registry.Require("registry")
		if err != nil {
			return nil, err
		}
		assigned, err := host.QueryAs[contracts.Addr](ctx, deps.Querier, registry, contracts.QueryTicketWorker{ID: m.TicketID})
		if err != nil {
			return nil, err
		}
		if assigned != info.Sender {
			return nil, fmt.Errorf("%w: %s is not assigned to ticket %d", contracts.ErrUnauthorized, info.Sender, m.TicketID)
		}
		return host.NewResponse().
			AddAttribute("method", "submit_result").
			AddAttribute("ticket", contracts.FormatID(m.TicketID)).
			AddAttribute("worker", string(info.Sender)).
			AddMessage(host.ExecuteMsg{
				Contract: registry,
				Msg:      contracts.AssessSubmission{TicketID: m.TicketID, Worker: info.Sender, Result: m.Result},
			}), nil

	case contracts.PostGatewayConfig:
		if err := contracts.RejectFunds(info.Funds); err != nil {
			return nil, err
		}
		if err := contracts.RequireSender(info.Sender, cfg.Admin); err != nil {
			return nil, err
		}
		if cfg.Registry, err = cfg.Registry.Replace(m.Registry); err != nil {
			return nil, err
		}
		if cfg.Escrow, err = cfg.Escrow.Replace(m.Escrow); err != nil {
			return nil, err
		}
		if cfg.BiddingEngine, err = cfg.BiddingEngine.Replace(m.BiddingEngine); err != nil {
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

func (c *Contract) Query(ctx context.Context, deps host.Deps, env host.Env, msg any) (any, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case contracts.QueryOpenTickets:
		bidding, err := cfg.BiddingEngine.Require("bidding engine")
		if err != nil {
			return nil, err
		}
		return host.QueryAs[[]uint64](ctx, deps.Querier, bidding, m)
	case contracts.QueryStakeStatus:
		escrow, err := cfg.Escrow.Require("escrow")
		if err != nil {
			return nil, err
		}
		return host.QueryAs[bool](ctx, deps.Querier, escrow, m)
	case contracts.QueryGatewayConfig:
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}
