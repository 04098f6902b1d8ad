package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/node"
)

// simClock lets the demo jump between deadlines.
type simClock struct {
	mu  sync.Mutex
	sec int64
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.sec, 0)
}

func (c *simClock) set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sec = sec
}

// runDemo plays one ticket through its whole lifecycle: a late, wrong
// submission that loses 80% of the stake.
func runDemo(ctx context.Context, n *node.Node, d node.Deployment, clock *simClock, logger *slog.Logger) error {
	admin := contracts.Addr(n.Config().AdminAddress)
	worker := contracts.Addr("demo-worker")
	const ticketID = 1

	clock.set(0)
	if _, err := n.Host.Execute(ctx, admin, d.Orchestrator, contracts.AddTicket{Ticket: contracts.Ticket{
		ID: ticketID, BetDeadline: 100, CloseDeadline: 200, ExpectedResult: "X", Collateral: 1000,
	}}, 0); err != nil {
		return fmt.Errorf("add ticket: %w", err)
	}
	if err := n.Host.Fund(ctx, worker, 1000); err != nil {
		return err
	}

	steps := []struct {
		at     int64
		sender contracts.Addr
		to     contracts.Addr
		msg    any
		funds  uint64
	}{
		{10, worker, d.Gateway, contracts.GatewayLockStake{TicketID: ticketID}, 1000},
		{20, worker, d.Gateway, contracts.GatewayPlaceBet{TicketID: ticketID, Amount: 400}, 0},
		{100, admin, d.Orchestrator, contracts.DecideWinner{TicketID: ticketID}, 0},
		{250, worker, d.Gateway, contracts.GatewaySubmitResult{TicketID: ticketID, Result: "Y"}, 0},
	}
	for _, s := range steps {
		clock.set(s.at)
		res, err := n.Host.Execute(ctx, s.sender, s.to, s.msg, s.funds)
		if err != nil {
			return fmt.Errorf("%T: %w", s.msg, err)
		}
		logger.Info("[demo] step committed", "t", s.at, "msg", fmt.Sprintf("%T", s.msg), "tx", res.TxID, "events", len(res.Events))
	}

	workerBal, err := n.Host.Balance(ctx, worker)
	if err != nil {
		return err
	}
	cfg, err := host.QueryAs[contracts.OrchestratorConfig](ctx, n.Host, d.Orchestrator, contracts.QueryOrchestratorConfig{})
	if err != nil {
		return err
	}
	treasuryBal, err := n.Host.Balance(ctx, cfg.Treasury)
	if err != nil {
		return err
	}
	ok, msg := n.Journal.Verify()
	logger.Info("[demo] settled",
		"worker_balance", workerBal,
		"treasury_balance", treasuryBal,
		"journal_entries", n.Journal.Length(),
		"journal_ok", ok,
		"journal_msg", msg,
	)
	return nil
}
