package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/ticket-auction/pkg/bidding"
	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/escrow"
	"github.com/Mindburn-Labs/ticket-auction/pkg/gateway"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host/hosttest"
	"github.com/Mindburn-Labs/ticket-auction/pkg/registry"
)

const (
	admin    = contracts.Addr("admin-wallet")
	treasury = contracts.Addr("treasury-wallet")
	worker   = contracts.Addr("worker-w")
)

type fixture struct {
	h     *host.Host
	clock *hosttest.Clock
	orch  contracts.Addr
	cfg   contracts.OrchestratorConfig
}

func newHost(t *testing.T) (*host.Host, *hosttest.Clock) {
	t.Helper()
	h, clock := hosttest.NewHost(t, nil)
	h.RegisterCode(contracts.CodeOrchestrator, New())
	h.RegisterCode(contracts.CodeRegistry, registry.New())
	h.RegisterCode(contracts.CodeEscrow, escrow.New())
	h.RegisterCode(contracts.CodeBidding, bidding.New())
	h.RegisterCode(contracts.CodeGateway, gateway.New())
	return h, clock
}

func deployOrchestrator(t *testing.T, h *host.Host) contracts.Addr {
	t.Helper()
	tr := treasury
	return hosttest.Deploy(t, h, admin, contracts.CodeOrchestrator, contracts.InstantiateOrchestrator{Treasury: &tr})
}

func setup(t *testing.T) *fixture {
	t.Helper()
	h, clock := newHost(t)
	orch := deployOrchestrator(t, h)
	f := &fixture{h: h, clock: clock, orch: orch}
	for _, kind := range []contracts.ServiceKind{
		contracts.ServiceRegistry,
		contracts.ServiceEscrow,
		contracts.ServiceBiddingEngine,
		contracts.ServiceGateway,
	} {
		require.NoError(t, f.exec(admin, contracts.CreateService{Service: kind}, 0))
	}
	f.cfg = hosttest.Query[contracts.OrchestratorConfig](t, h, orch, contracts.QueryOrchestratorConfig{})
	return f
}

func (f *fixture) exec(sender contracts.Addr, msg any, funds uint64) error {
	_, err := f.h.Execute(context.Background(), sender, f.orch, msg, funds)
	return err
}

func (f *fixture) addr(t *testing.T, p contracts.Peer) contracts.Addr {
	t.Helper()
	addr, ok := p.Get()
	require.True(t, ok)
	return addr
}

func (f *fixture) gw(msg any, funds uint64) error {
	addr, _ := f.cfg.Gateway.Get()
	_, err := f.h.Execute(context.Background(), worker, addr, msg, funds)
	return err
}

func TestInstantiate_TreasuryDefaultsToAdmin(t *testing.T) {
	h, _ := newHost(t)
	orch := hosttest.Deploy(t, h, admin, contracts.CodeOrchestrator, contracts.InstantiateOrchestrator{})
	cfg := hosttest.Query[contracts.OrchestratorConfig](t, h, orch, contracts.QueryOrchestratorConfig{})
	assert.Equal(t, admin, cfg.Admin)
	assert.Equal(t, admin, cfg.Treasury)

	bad := contracts.Addr("T")
	_, _, err := h.Instantiate(context.Background(), admin, contracts.CodeOrchestrator,
		contracts.InstantiateOrchestrator{Treasury: &bad}, 0, "orchestrator")
	assert.ErrorIs(t, err, contracts.ErrInvalidAddress)
}

func TestProvisioning(t *testing.T) {
	f := setup(t)
	reg := f.addr(t, f.cfg.Registry)
	esc := f.addr(t, f.cfg.Escrow)
	bid := f.addr(t, f.cfg.BiddingEngine)
	gw := f.addr(t, f.cfg.Gateway)
	assert.Len(t, map[contracts.Addr]bool{reg: true, esc: true, bid: true, gw: true}, 4)

	regCfg := hosttest.Query[contracts.RegistryConfig](t, f.h, reg, contracts.QueryRegistryConfig{})
	assert.Equal(t, f.orch, regCfg.Admin)
	assert.True(t, regCfg.BiddingEngine.Is(bid))
	assert.True(t, regCfg.Gateway.Is(gw))

	escCfg := hosttest.Query[contracts.EscrowConfig](t, f.h, esc, contracts.QueryEscrowConfig{})
	assert.True(t, escCfg.Registry.Is(reg))
	assert.True(t, escCfg.Gateway.Is(gw))

	bidCfg := hosttest.Query[contracts.BiddingConfig](t, f.h, bid, contracts.QueryBiddingConfig{})
	assert.True(t, bidCfg.Registry.Is(reg))
	assert.True(t, bidCfg.Gateway.Is(gw))

	gwCfg := hosttest.Query[contracts.GatewayConfig](t, f.h, gw, contracts.QueryGatewayConfig{})
	assert.True(t, gwCfg.Registry.Is(reg))
	assert.True(t, gwCfg.Escrow.Is(esc))
	assert.True(t, gwCfg.BiddingEngine.Is(bid))

	info, err := f.h.ContractInfo(context.Background(), gw)
	require.NoError(t, err)
	assert.Equal(t, contracts.CodeGateway, info.CodeID)
	assert.Equal(t, f.orch, info.Admin)
}

func TestProvisioning_FailureKeepsConfig(t *testing.T) {
	h, _ := newHost(t)
	orch := deployOrchestrator(t, h)

	_, err := h.Execute(context.Background(), admin, orch, contracts.CreateService{Service: contracts.ServiceRegistry, CodeID: "missing"}, 0)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	_, err = h.Execute(context.Background(), admin, orch, contracts.CreateService{Service: "oracle"}, 0)
	assert.ErrorIs(t, err, contracts.ErrUnknownMessage)

	cfg := hosttest.Query[contracts.OrchestratorConfig](t, h, orch, contracts.QueryOrchestratorConfig{})
	_, ok := cfg.Registry.Get()
	assert.False(t, ok)
	infos, err := h.Contracts(context.Background())
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestAdminGuards(t *testing.T) {
	f := setup(t)
	ticket := contracts.AddTicket{Ticket: contracts.Ticket{ID: 1, BetDeadline: 100, CloseDeadline: 200, Collateral: 10}}

	assert.ErrorIs(t, f.exec(worker, ticket, 0), contracts.ErrUnauthorized)
	assert.ErrorIs(t, f.exec(worker, contracts.CreateService{Service: contracts.ServiceEscrow}, 0), contracts.ErrUnauthorized)
	assert.ErrorIs(t, f.exec(worker, contracts.SyncPeers{}, 0), contracts.ErrUnauthorized)
	require.NoError(t, f.h.Fund(context.Background(), admin, 10))
	assert.ErrorIs(t, f.exec(admin, ticket, 10), contracts.ErrUnexpectedFunds)
}

func TestDispatch_NotInitialized(t *testing.T) {
	h, _ := newHost(t)
	orch := deployOrchestrator(t, h)
	ctx := context.Background()

	_, err := h.Execute(ctx, admin, orch, contracts.AddTicket{Ticket: contracts.Ticket{ID: 1}}, 0)
	assert.ErrorIs(t, err, contracts.ErrNotInitialized)
	_, err = h.Execute(ctx, admin, orch, contracts.DecideWinner{TicketID: 1}, 0)
	assert.ErrorIs(t, err, contracts.ErrNotInitialized)
	_, err = h.Execute(ctx, admin, orch, contracts.RemoveTicket{ID: 1}, 0)
	assert.ErrorIs(t, err, contracts.ErrNotInitialized)
	_, err = h.Query(ctx, orch, contracts.QueryTicket{ID: 1})
	assert.ErrorIs(t, err, contracts.ErrNotInitialized)
}

func TestTicketAdministration(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.exec(admin, contracts.AddTicket{Ticket: contracts.Ticket{
		ID: 1, BetDeadline: 100, CloseDeadline: 200, ExpectedResult: "X", Collateral: 1000,
	}}, 0))

	collateral := uint64(700)
	require.NoError(t, f.exec(admin, contracts.UpdateTicket{ID: 1, Collateral: &collateral}, 0))

	tk := hosttest.Query[contracts.Ticket](t, f.h, f.orch, contracts.QueryTicket{ID: 1})
	assert.Equal(t, uint64(700), tk.Collateral)
	all := hosttest.Query[[]contracts.Ticket](t, f.h, f.orch, contracts.QueryTickets{})
	assert.Len(t, all, 1)
}

func TestUpdateTicket_CollateralFixedWhileStaked(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.h.Fund(ctx, worker, 1000))
	require.NoError(t, f.exec(admin, contracts.AddTicket{Ticket: contracts.Ticket{
		ID: 1, BetDeadline: 100, CloseDeadline: 200, ExpectedResult: "X", Collateral: 1000,
	}}, 0))
	require.NoError(t, f.gw(contracts.GatewayLockStake{TicketID: 1}, 1000))

	for _, amount := range []uint64{500, 2000} {
		c := amount
		err := f.exec(admin, contracts.UpdateTicket{ID: 1, Collateral: &c}, 0)
		assert.ErrorIs(t, err, contracts.ErrCollateralFixed, "collateral %d", amount)
	}

	same := uint64(1000)
	result := "Z"
	require.NoError(t, f.exec(admin, contracts.UpdateTicket{ID: 1, Collateral: &same, ExpectedResult: &result}, 0))
	tk := hosttest.Query[contracts.Ticket](t, f.h, f.orch, contracts.QueryTicket{ID: 1})
	assert.Equal(t, uint64(1000), tk.Collateral)
	assert.Equal(t, "Z", tk.ExpectedResult)

	require.NoError(t, f.exec(admin, contracts.RemoveTicket{ID: 1}, 0))
	require.NoError(t, f.exec(admin, contracts.AddTicket{Ticket: contracts.Ticket{
		ID: 1, BetDeadline: 100, CloseDeadline: 200, ExpectedResult: "X", Collateral: 1000,
	}}, 0))
	lowered := uint64(500)
	assert.NoError(t, f.exec(admin, contracts.UpdateTicket{ID: 1, Collateral: &lowered}, 0), "no stakes after refund")
}

func TestSlashRelay_OnlyRegistry(t *testing.T) {
	f := setup(t)
	slash := contracts.SlashRequest{TicketID: 1, Worker: worker, SlashPercent: 1000}

	assert.ErrorIs(t, f.exec(admin, slash, 0), contracts.ErrUnauthorized)
	assert.ErrorIs(t, f.exec(worker, slash, 0), contracts.ErrUnauthorized)
	gw := f.addr(t, f.cfg.Gateway)
	assert.ErrorIs(t, f.exec(gw, slash, 0), contracts.ErrUnauthorized)
}

func TestSettlement(t *testing.T) {
	tests := []struct {
		name       string
		at         int64
		result     string
		toWorker   uint64
		toTreasury uint64
		pct        string
	}{
		{"correct and on time", 150, "X", 1000, 0, "0"},
		{"wrong", 150, "Y", 500, 500, "500"},
		{"late", 250, "X", 700, 300, "300"},
		{"wrong and late", 250, "Y", 200, 800, "800"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			require.NoError(t, f.h.Fund(ctx, worker, 1000))
			require.NoError(t, f.exec(admin, contracts.AddTicket{Ticket: contracts.Ticket{
				ID: 1, BetDeadline: 100, CloseDeadline: 200, ExpectedResult: "X", Collateral: 1000,
			}}, 0))

			f.clock.Set(10)
			require.NoError(t, f.gw(contracts.GatewayLockStake{TicketID: 1}, 1000))
			require.NoError(t, f.gw(contracts.GatewayPlaceBet{TicketID: 1, Amount: 400}, 0))
			f.clock.Set(100)
			require.NoError(t, f.exec(admin, contracts.DecideWinner{TicketID: 1}, 0))
			assert.Equal(t, worker, hosttest.Query[contracts.Addr](t, f.h, f.orch, contracts.QueryTicketWorker{ID: 1}))

			f.clock.Set(tt.at)
			gw, _ := f.cfg.Gateway.Get()
			res, err := f.h.Execute(ctx, worker, gw, contracts.GatewaySubmitResult{TicketID: 1, Result: tt.result}, 0)
			require.NoError(t, err)

			assert.Equal(t, tt.toWorker, hosttest.Balance(t, f.h, worker))
			assert.Equal(t, tt.toTreasury, hosttest.Balance(t, f.h, treasury))
			assert.Equal(t, uint64(0), hosttest.Balance(t, f.h, f.addr(t, f.cfg.Escrow)))

			ev, ok := res.FindEvent("method", SettlementMethod)
			require.True(t, ok)
			assert.Equal(t, f.orch, ev.Contract)
			pct, _ := ev.Attr("slash_percent")
			assert.Equal(t, tt.pct, pct)
			stake, _ := ev.Attr("stake")
			assert.Equal(t, "1000", stake)

			assert.Len(t, f.h.Journal().Find("method", SettlementMethod), 1)
		})
	}
}

func TestRemoveTicket_Cascade(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.h.Fund(ctx, worker, 1000))
	require.NoError(t, f.exec(admin, contracts.AddTicket{Ticket: contracts.Ticket{
		ID: 1, BetDeadline: 100, CloseDeadline: 200, ExpectedResult: "X", Collateral: 1000,
	}}, 0))
	require.NoError(t, f.gw(contracts.GatewayLockStake{TicketID: 1}, 1000))
	require.NoError(t, f.gw(contracts.GatewayPlaceBet{TicketID: 1, Amount: 400}, 0))
	assert.Equal(t, uint64(0), hosttest.Balance(t, f.h, worker))

	require.NoError(t, f.exec(admin, contracts.RemoveTicket{ID: 1}, 0))

	assert.Equal(t, uint64(1000), hosttest.Balance(t, f.h, worker), "stake refunded")
	bids := hosttest.Query[[]contracts.Bid](t, f.h, f.addr(t, f.cfg.BiddingEngine), contracts.QueryBids{TicketID: 1})
	assert.Empty(t, bids)
	_, err := f.h.Query(ctx, f.orch, contracts.QueryTicket{ID: 1})
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	err = f.exec(admin, contracts.RemoveTicket{ID: 1}, 0)
	assert.ErrorIs(t, err, contracts.ErrNotFound, "removing twice fails in the registry and rolls the cascade back")
}

func TestPostConfigAndSync(t *testing.T) {
	f := setup(t)
	next := contracts.Addr("treasury-two")
	require.NoError(t, f.exec(admin, contracts.PostOrchestratorConfig{Treasury: &next}, 0))

	bad := contracts.Addr("X")
	assert.ErrorIs(t, f.exec(admin, contracts.PostOrchestratorConfig{Gateway: &bad}, 0), contracts.ErrInvalidAddress)

	cfg := hosttest.Query[contracts.OrchestratorConfig](t, f.h, f.orch, contracts.QueryOrchestratorConfig{})
	assert.Equal(t, next, cfg.Treasury)
	assert.Equal(t, f.cfg.Gateway, cfg.Gateway)

	// Point the escrow at a stale gateway, then let SyncPeers restore it.
	esc := f.addr(t, f.cfg.Escrow)
	stale := contracts.Addr("gateway-stale")
	_, err := f.h.Execute(context.Background(), f.orch, esc, contracts.PostEscrowConfig{Gateway: &stale}, 0)
	require.NoError(t, err)

	require.NoError(t, f.exec(admin, contracts.SyncPeers{}, 0))
	escCfg := hosttest.Query[contracts.EscrowConfig](t, f.h, esc, contracts.QueryEscrowConfig{})
	assert.Equal(t, f.cfg.Gateway, escCfg.Gateway)
}
