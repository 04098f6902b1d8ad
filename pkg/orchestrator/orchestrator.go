// Package orchestrator is the administrative hub of the auction. It holds
// the authoritative address map, provisions the other services, relays
// ticket administration and turns slash requests into stake releases.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

const configKey = "config"

// SettlementMethod is the "method" attribute of the event emitted for
// every slash relay.
const SettlementMethod = "release stake with slash"

// Contract is the Orchestrator service.
type Contract struct{}

func New() *Contract { return &Contract{} }

func loadConfig(ctx context.Context, r store.Reader) (contracts.OrchestratorConfig, error) {
	var cfg contracts.OrchestratorConfig
	if err := store.Load(ctx, r, configKey, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cfg, fmt.Errorf("%w: orchestrator", contracts.ErrNotInitialized)
		}
		return cfg, err
	}
	return cfg, nil
}

func (c *Contract) Instantiate(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	m, ok := msg.(contracts.InstantiateOrchestrator)
	if !ok {
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	cfg := contracts.OrchestratorConfig{Admin: info.Sender, Treasury: info.Sender}
	if m.Treasury != nil {
		if err := contracts.ValidateAddress(*m.Treasury); err != nil {
			return nil, err
		}
		cfg.Treasury = *m.Treasury
	}
	if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "instantiate").
		AddAttribute("admin", string(cfg.Admin)).
		AddAttribute("treasury", string(cfg.Treasury)), nil
}

func (c *Contract) Execute(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}

	if m, ok := msg.(contracts.SlashRequest); ok {
		return c.handleSlash(ctx, deps, info, cfg, m)
	}
	if err := contracts.RequireSender(info.Sender, cfg.Admin); err != nil {
		return nil, err
	}

	switch m := msg.(type) {
	case contracts.AddTicket:
		return forward(cfg.Registry, "registry", "add_ticket", m.Ticket.ID, m)
	case contracts.UpdateTicket:
		if err := checkCollateral(ctx, deps, cfg, m); err != nil {
			return nil, err
		}
		return forward(cfg.Registry, "registry", "update_ticket", m.ID, m)
	case contracts.DecideWinner:
		return forward(cfg.BiddingEngine, "bidding engine", "decide_winner", m.TicketID, m)
	case contracts.RemoveTicket:
		return removeTicket(cfg, m)
	case contracts.CreateService:
		return createService(cfg, m)
	case contracts.SyncPeers:
		resp := host.NewResponse().AddAttribute("method", "sync_peers")
		for _, sm := range peerUpdates(cfg) {
			resp.AddMessage(sm)
		}
		return resp, nil
	case contracts.PostOrchestratorConfig:
		return postConfig(ctx, deps, cfg, m)
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}

func forward(p contracts.Peer, name, method string, id uint64, msg any) (*host.Response, error) {
	addr, err := p.Require(name)
	if err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", method).
		AddAttribute("ticket", contracts.FormatID(id)).
		AddMessage(host.ExecuteMsg{Contract: addr, Msg: msg}), nil
}

// checkCollateral refuses to change a ticket's collateral while any worker
// holds a stake locked at the old amount. Settlement prices the release
// from the current collateral, so it must match what Escrow holds.
func checkCollateral(ctx context.Context, deps host.Deps, cfg contracts.OrchestratorConfig, m contracts.UpdateTicket) error {
	if m.Collateral == nil {
		return nil
	}
	registry, okReg := cfg.Registry.Get()
	escrow, okEsc := cfg.Escrow.Get()
	if !okReg || !okEsc {
		return nil
	}
	ticket, err := host.QueryAs[contracts.Ticket](ctx, deps.Querier, registry, contracts.QueryTicket{ID: m.ID})
	if err != nil {
		return err
	}
	if ticket.Collateral == *m.Collateral {
		return nil
	}
	stakes, err := host.QueryAs[[]contracts.Stake](ctx, deps.Querier, escrow, contracts.QueryStakes{TicketID: m.ID})
	if err != nil {
		return err
	}
	if len(stakes) > 0 {
		return fmt.Errorf("%w: ticket %d has %d locked at %d", contracts.ErrCollateralFixed, m.ID, len(stakes), ticket.Collateral)
	}
	return nil
}

// removeTicket refunds stakes and drops open bids before the Registry
// forgets the ticket. Escrow and Bidding Engine are skipped when absent.
func removeTicket(cfg contracts.OrchestratorConfig, m contracts.RemoveTicket) (*host.Response, error) {
	registry, err := cfg.Registry.Require("registry")
	if err != nil {
		return nil, err
	}
	resp := host.NewResponse().
		AddAttribute("method", "remove_ticket").
		AddAttribute("ticket", contracts.FormatID(m.ID))
	if escrow, ok := cfg.Escrow.Get(); ok {
		resp.AddMessage(host.ExecuteMsg{Contract: escrow, Msg: contracts.RefundStakes{TicketID: m.ID}})
	}
	if bidding, ok := cfg.BiddingEngine.Get(); ok {
		resp.AddMessage(host.ExecuteMsg{Contract: bidding, Msg: contracts.ClearBids{TicketID: m.ID}})
	}
	return resp.AddMessage(host.ExecuteMsg{Contract: registry, Msg: m}), nil
}

func (c *Contract) handleSlash(ctx context.Context, deps host.Deps, info host.MessageInfo, cfg contracts.OrchestratorConfig, m contracts.SlashRequest) (*host.Response, error) {
	if err := contracts.RequirePeer(cfg.Registry, "registry", info.Sender); err != nil {
		return nil, err
	}
	escrow, err := cfg.Escrow.Require("escrow")
	if err != nil {
		return nil, err
	}
	ticket, err := host.QueryAs[contracts.Ticket](ctx, deps.Querier, info.Sender, contracts.QueryTicket{ID: m.TicketID})
	if err != nil {
		return nil, err
	}

	s := contracts.Settle(ticket.Collateral, m.SlashPercent)
	deps.Logger.InfoContext(ctx, "settling stake",
		"ticket", m.TicketID,
		"worker", m.Worker,
		"slash_percent", s.SlashPercent,
		"released", s.Released,
		"slashed", s.Slashed,
	)

	return host.NewResponse().
		AddAttribute("method", SettlementMethod).
		AddAttribute("ticket", contracts.FormatID(m.TicketID)).
		AddAttribute("worker", string(m.Worker)).
		AddAttribute("stake", strconv.FormatUint(s.Collateral, 10)).
		AddAttribute("slash_percent", strconv.FormatUint(s.SlashPercent, 10)).
		AddAttribute("slashed", strconv.FormatUint(s.Slashed, 10)).
		AddAttribute("released", strconv.FormatUint(s.Released, 10)).
		AddMessage(host.ExecuteMsg{
			Contract: escrow,
			Msg: contracts.ReleaseStake{
				TicketID: m.TicketID,
				Worker:   m.Worker,
				Amount:   s.Released,
				Slashed:  s.Slashed,
				Sink:     cfg.Treasury,
			},
		}), nil
}

func postConfig(ctx context.Context, deps host.Deps, cfg contracts.OrchestratorConfig, m contracts.PostOrchestratorConfig) (*host.Response, error) {
	var err error
	if cfg.Registry, err = cfg.Registry.Replace(m.Registry); err != nil {
		return nil, err
	}
	if cfg.Escrow, err = cfg.Escrow.Replace(m.Escrow); err != nil {
		return nil, err
	}
	if cfg.BiddingEngine, err = cfg.BiddingEngine.Replace(m.BiddingEngine); err != nil {
		return nil, err
	}
	if cfg.Gateway, err = cfg.Gateway.Replace(m.Gateway); err != nil {
		return nil, err
	}
	if m.Treasury != nil {
		if err := contracts.ValidateAddress(*m.Treasury); err != nil {
			return nil, err
		}
		cfg.Treasury = *m.Treasury
	}
	if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
		return nil, err
	}
	return host.NewResponse().AddAttribute("method", "post_config"), nil
}

func (c *Contract) Query(ctx context.Context, deps host.Deps, env host.Env, msg any) (any, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case contracts.QueryOrchestratorConfig:
		return cfg, nil
	case contracts.QueryTicket, contracts.QueryTickets, contracts.QueryTicketWorker:
		registry, err := cfg.Registry.Require("registry")
		if err != nil {
			return nil, err
		}
		return deps.Querier.Query(ctx, registry, m)
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}
