// Package registry implements the ticket catalog. It owns tickets, their
// winning-worker assignments and the settled marks, and grades submitted
// results into slash requests for the Orchestrator.
package registry

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

// Contract is the Registry service.
type Contract struct{}

func New() *Contract { return &Contract{} }

func (c *Contract) Instantiate(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	m, ok := msg.(contracts.InstantiateRegistry)
	if !ok {
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	cfg := contracts.RegistryConfig{
		Admin:         info.Sender,
		BiddingEngine: m.BiddingEngine,
		Gateway:       m.Gateway,
	}
	if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "instantiate").
		AddAttribute("admin", string(info.Sender)), nil
}

func (c *Contract) Execute(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	switch m := msg.(type) {
	case contracts.AddTicket:
		return c.addTicket(ctx, deps, info, m)
	case contracts.UpdateTicket:
		return c.updateTicket(ctx, deps, info, m)
	case contracts.RemoveTicket:
		return c.removeTicket(ctx, deps, info, m)
	case contracts.RecordWinner:
		return c.recordWinner(ctx, deps, info, m)
	case contracts.AssessSubmission:
		return c.assessSubmission(ctx, deps, env, info, m)
	case contracts.PostRegistryConfig:
		return c.postConfig(ctx, deps, info, m)
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}

func (c *Contract) adminGuard(ctx context.Context, deps host.Deps, info host.MessageInfo) (contracts.RegistryConfig, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return cfg, err
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return cfg, err
	}
	return cfg, contracts.RequireSender(info.Sender, cfg.Admin)
}

func (c *Contract) addTicket(ctx context.Context, deps host.Deps, info host.MessageInfo, m contracts.AddTicket) (*host.Response, error) {
	if _, err := c.adminGuard(ctx, deps, info); err != nil {
		return nil, err
	}
	t := m.Ticket
	if err := t.Validate(); err != nil {
		return nil, err
	}
	exists, err := store.Has(ctx, deps.Storage, ticketKey(t.ID))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %d", contracts.ErrDuplicateTicket, t.ID)
	}
	if err := store.Save(ctx, deps.Storage, ticketKey(t.ID), t); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "add_ticket").
		AddAttribute("ticket", contracts.FormatID(t.ID)), nil
}

func (c *Contract) updateTicket(ctx context.Context, deps host.Deps, info host.MessageInfo, m contracts.UpdateTicket) (*host.Response, error) {
	if _, err := c.adminGuard(ctx, deps, info); err != nil {
		return nil, err
	}
	t, err := loadTicket(ctx, deps.Storage, m.ID)
	if err != nil {
		return nil, err
	}
	if m.BetDeadline != nil {
		t.BetDeadline = *m.BetDeadline
	}
	if m.CloseDeadline != nil {
		t.CloseDeadline = *m.CloseDeadline
	}
	if m.ExpectedResult != nil {
		t.ExpectedResult = *m.ExpectedResult
	}
	if m.Collateral != nil {
		t.Collateral = *m.Collateral
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, deps.Storage, ticketKey(t.ID), t); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "update_ticket").
		AddAttribute("ticket", contracts.FormatID(t.ID)), nil
}

func (c *Contract) removeTicket(ctx context.Context, deps host.Deps, info host.MessageInfo, m contracts.RemoveTicket) (*host.Response, error) {
	if _, err := c.adminGuard(ctx, deps, info); err != nil {
		return nil, err
	}
	if _, err := loadTicket(ctx, deps.Storage, m.ID); err != nil {
		return nil, err
	}
	for _, key := range []string{ticketKey(m.ID), assignmentKey(m.ID), settledKey(m.ID)} {
		if err := deps.Storage.Delete(ctx, key); err != nil {
			return nil, err
		}
	}
	return host.NewResponse().
		AddAttribute("method", "remove_ticket").
		AddAttribute("ticket", contracts.FormatID(m.ID)), nil
}

func (c *Contract) recordWinner(ctx context.Context, deps host.Deps, info host.MessageInfo, m contracts.RecordWinner) (*host.Response, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	if err := contracts.RequirePeer(cfg.BiddingEngine, "bidding engine", info.Sender); err != nil {
		return nil, err
	}
	a := m.Assignment
	if err := contracts.ValidateAddress(a.Worker); err != nil {
		return nil, err
	}
	if _, err := loadTicket(ctx, deps.Storage, a.TicketID); err != nil {
		return nil, err
	}
	settled, err := isSettled(ctx, deps.Storage, a.TicketID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, fmt.Errorf("%w: %d", contracts.ErrAlreadySettled, a.TicketID)
	}
	if err := store.Save(ctx, deps.Storage, assignmentKey(a.TicketID), a); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "record_winner").
		AddAttribute("ticket", contracts.FormatID(a.TicketID)).
		AddAttribute("worker", string(a.Worker)), nil
}

func (c *Contract) assessSubmission(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, m contracts.AssessSubmission) (*host.Response, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	if err := contracts.RequirePeer(cfg.Gateway, "gateway", info.Sender); err != nil {
		return nil, err
	}
	t, err := loadTicket(ctx, deps.Storage, m.TicketID)
	if err != nil {
		return nil, err
	}
	a, err := loadAssignment(ctx, deps.Storage, m.TicketID)
	if err != nil {
		return nil, err
	}
	if a.Worker != m.Worker {
		return nil, fmt.Errorf("%w: %s is not assigned to ticket %d", contracts.ErrUnauthorized, m.Worker, m.TicketID)
	}
	settled, err := isSettled(ctx, deps.Storage, m.TicketID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, fmt.Errorf("%w: %d", contracts.ErrAlreadySettled, m.TicketID)
	}

	pct := contracts.SlashPercent(t, m.Result, env.Block.Time)
	if err := store.Save(ctx, deps.Storage, settledKey(m.TicketID), env.Block.Time); err != nil {
		return nil, err
	}
	deps.Logger.DebugContext(ctx, "submission assessed",
		"ticket", m.TicketID, "worker", m.Worker, "slash_percent", pct)

	return host.NewResponse().
		AddAttribute("method", "assess_submission").
		AddAttribute("ticket", contracts.FormatID(m.TicketID)).
		AddAttribute("worker", string(m.Worker)).
		AddAttribute("slash_percent", strconv.FormatUint(pct, 10)).
		AddMessage(host.ExecuteMsg{
			Contract: cfg.Admin,
			Msg: contracts.SlashRequest{
				TicketID:     m.TicketID,
				Worker:       m.Worker,
				SlashPercent: pct,
			},
		}), nil
}

func (c *Contract) postConfig(ctx context.Context, deps host.Deps, info host.MessageInfo, m contracts.PostRegistryConfig) (*host.Response, error) {
	cfg, err := c.adminGuard(ctx, deps, info)
	if err != nil {
		return nil, err
	}
	if cfg.BiddingEngine, err = cfg.BiddingEngine.Replace(m.BiddingEngine); err != nil {
		return nil, err
	}
	if cfg.Gateway, err = cfg.Gateway.Replace(m.Gateway); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
		return nil, err
	}
	return host.NewResponse().AddAttribute("method", "post_config"), nil
}

func (c *Contract) Query(ctx context.Context, deps host.Deps, env host.Env, msg any) (any, error) {
	switch m := msg.(type) {
	case contracts.QueryTicket:
		return loadTicket(ctx, deps.Storage, m.ID)
	case contracts.QueryTickets:
		return store.LoadAll[contracts.Ticket](ctx, deps.Storage, ticketPrefix)
	case contracts.QueryAssignments:
		return store.LoadAll[contracts.Assignment](ctx, deps.Storage, assignmentPrefix)
	case contracts.QueryTicketWorker:
		a, err := loadAssignment(ctx, deps.Storage, m.ID)
		if err != nil {
			return nil, err
		}
		return a.Worker, nil
	case contracts.QueryRegistryConfig:
		return loadConfig(ctx, deps.Storage)
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}
