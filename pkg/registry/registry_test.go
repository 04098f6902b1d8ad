package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host/hosttest"
)

const (
	bidding = contracts.Addr("bidding-wallet")
	gateway = contracts.Addr("gateway-wallet")
	worker  = contracts.Addr("worker-w")
)

type fixture struct {
	h     *host.Host
	clock *hosttest.Clock
	rec   *hosttest.Recorder
	orch  contracts.Addr
	reg   contracts.Addr
}

func setup(t *testing.T) *fixture {
	t.Helper()
	rec := &hosttest.Recorder{}
	h, clock := hosttest.NewHost(t, rec)
	h.RegisterCode(contracts.CodeRegistry, New())

	orch := hosttest.Deploy(t, h, "deployer", hosttest.RecorderCode, nil)
	reg := hosttest.Deploy(t, h, orch, contracts.CodeRegistry, contracts.InstantiateRegistry{
		BiddingEngine: contracts.Configured(bidding),
		Gateway:       contracts.Configured(gateway),
	})
	return &fixture{h: h, clock: clock, rec: rec, orch: orch, reg: reg}
}

func sampleTicket() contracts.Ticket {
	return contracts.Ticket{ID: 1, BetDeadline: 100, CloseDeadline: 200, ExpectedResult: "X", Collateral: 1000}
}

func (f *fixture) exec(sender contracts.Addr, msg any) error {
	_, err := f.h.Execute(context.Background(), sender, f.reg, msg, 0)
	return err
}

func (f *fixture) addAssigned(t *testing.T) {
	t.Helper()
	require.NoError(t, f.exec(f.orch, contracts.AddTicket{Ticket: sampleTicket()}))
	require.NoError(t, f.exec(bidding, contracts.RecordWinner{Assignment: contracts.Assignment{TicketID: 1, Worker: worker}}))
}

func TestInstantiate_AdminIsInstantiator(t *testing.T) {
	f := setup(t)
	cfg := hosttest.Query[contracts.RegistryConfig](t, f.h, f.reg, contracts.QueryRegistryConfig{})
	assert.Equal(t, f.orch, cfg.Admin)
	assert.True(t, cfg.BiddingEngine.Is(bidding))
	assert.True(t, cfg.Gateway.Is(gateway))
}

func TestAddTicket(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.exec(f.orch, contracts.AddTicket{Ticket: sampleTicket()}))
	got := hosttest.Query[contracts.Ticket](t, f.h, f.reg, contracts.QueryTicket{ID: 1})
	assert.Equal(t, sampleTicket(), got)

	err := f.exec(f.orch, contracts.AddTicket{Ticket: sampleTicket()})
	assert.ErrorIs(t, err, contracts.ErrDuplicateTicket)

	bad := sampleTicket()
	bad.ID, bad.BetDeadline = 2, 300
	assert.ErrorIs(t, f.exec(f.orch, contracts.AddTicket{Ticket: bad}), contracts.ErrInvalidTicket)

	other := sampleTicket()
	other.ID = 3
	assert.ErrorIs(t, f.exec("intruder", contracts.AddTicket{Ticket: other}), contracts.ErrUnauthorized)

	require.NoError(t, f.h.Fund(context.Background(), f.orch, 10))
	_, err = f.h.Execute(context.Background(), f.orch, f.reg, contracts.AddTicket{Ticket: other}, 10)
	assert.ErrorIs(t, err, contracts.ErrUnexpectedFunds)

	tickets := hosttest.Query[[]contracts.Ticket](t, f.h, f.reg, contracts.QueryTickets{})
	assert.Len(t, tickets, 1)
}

func TestUpdateTicket(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.exec(f.orch, contracts.AddTicket{Ticket: sampleTicket()}))

	closeAt := uint64(500)
	collateral := uint64(2000)
	require.NoError(t, f.exec(f.orch, contracts.UpdateTicket{ID: 1, CloseDeadline: &closeAt, Collateral: &collateral}))

	got := hosttest.Query[contracts.Ticket](t, f.h, f.reg, contracts.QueryTicket{ID: 1})
	assert.Equal(t, uint64(100), got.BetDeadline, "nil field unchanged")
	assert.Equal(t, uint64(500), got.CloseDeadline)
	assert.Equal(t, "X", got.ExpectedResult)
	assert.Equal(t, uint64(2000), got.Collateral)

	bet := uint64(600)
	assert.ErrorIs(t, f.exec(f.orch, contracts.UpdateTicket{ID: 1, BetDeadline: &bet}), contracts.ErrInvalidTicket)
	assert.ErrorIs(t, f.exec(f.orch, contracts.UpdateTicket{ID: 9, BetDeadline: &bet}), contracts.ErrNotFound)
}

func TestRemoveTicket(t *testing.T) {
	f := setup(t)
	f.addAssigned(t)

	require.NoError(t, f.exec(f.orch, contracts.RemoveTicket{ID: 1}))
	_, err := f.h.Query(context.Background(), f.reg, contracts.QueryTicket{ID: 1})
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assignments := hosttest.Query[[]contracts.Assignment](t, f.h, f.reg, contracts.QueryAssignments{})
	assert.Empty(t, assignments)

	assert.ErrorIs(t, f.exec(f.orch, contracts.RemoveTicket{ID: 1}), contracts.ErrNotFound)

	// The id can be reused after removal.
	require.NoError(t, f.exec(f.orch, contracts.AddTicket{Ticket: sampleTicket()}))
}

func TestRecordWinner(t *testing.T) {
	f := setup(t)
	assign := contracts.RecordWinner{Assignment: contracts.Assignment{TicketID: 1, Worker: worker}}

	assert.ErrorIs(t, f.exec(bidding, assign), contracts.ErrNotFound)
	require.NoError(t, f.exec(f.orch, contracts.AddTicket{Ticket: sampleTicket()}))
	assert.ErrorIs(t, f.exec(f.orch, assign), contracts.ErrUnauthorized)

	require.NoError(t, f.exec(bidding, assign))
	w := hosttest.Query[contracts.Addr](t, f.h, f.reg, contracts.QueryTicketWorker{ID: 1})
	assert.Equal(t, worker, w)

	bad := contracts.RecordWinner{Assignment: contracts.Assignment{TicketID: 1, Worker: "X"}}
	assert.ErrorIs(t, f.exec(bidding, bad), contracts.ErrInvalidAddress)
}

func TestRecordWinner_Unconfigured(t *testing.T) {
	f := setup(t)
	bare := hosttest.Deploy(t, f.h, f.orch, contracts.CodeRegistry, contracts.InstantiateRegistry{})
	_, err := f.h.Execute(context.Background(), f.orch, bare, contracts.AddTicket{Ticket: sampleTicket()}, 0)
	require.NoError(t, err)

	_, err = f.h.Execute(context.Background(), bidding, bare,
		contracts.RecordWinner{Assignment: contracts.Assignment{TicketID: 1, Worker: worker}}, 0)
	assert.ErrorIs(t, err, contracts.ErrNotInitialized)
}

func TestAssessSubmission(t *testing.T) {
	tests := []struct {
		name   string
		result string
		now    int64
		pct    uint64
	}{
		{"correct on time", "X", 150, 0},
		{"correct late", "X", 250, 300},
		{"wrong on time", "Y", 150, 500},
		{"wrong late", "Y", 250, 800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.addAssigned(t)
			f.clock.Set(tt.now)

			res, err := f.h.Execute(context.Background(), gateway, f.reg,
				contracts.AssessSubmission{TicketID: 1, Worker: worker, Result: tt.result}, 0)
			require.NoError(t, err)
			ev, ok := res.FindEvent("method", "assess_submission")
			require.True(t, ok)
			pct, _ := ev.Attr("slash_percent")
			assert.Equal(t, contracts.FormatID(tt.pct), pct)

			calls := f.rec.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, f.reg, calls[0].Sender)
			assert.Equal(t, contracts.SlashRequest{TicketID: 1, Worker: worker, SlashPercent: tt.pct}, calls[0].Msg)
		})
	}
}

func TestAssessSubmission_Guards(t *testing.T) {
	f := setup(t)
	f.addAssigned(t)
	f.clock.Set(150)
	submit := contracts.AssessSubmission{TicketID: 1, Worker: worker, Result: "X"}

	assert.ErrorIs(t, f.exec(worker, submit), contracts.ErrUnauthorized, "only the gateway may relay")
	assert.ErrorIs(t, f.exec(gateway, contracts.AssessSubmission{TicketID: 1, Worker: "worker-z", Result: "X"}),
		contracts.ErrUnauthorized)
	assert.ErrorIs(t, f.exec(gateway, contracts.AssessSubmission{TicketID: 7, Worker: worker}), contracts.ErrNotFound)

	require.NoError(t, f.exec(gateway, submit))
	assert.ErrorIs(t, f.exec(gateway, submit), contracts.ErrAlreadySettled)
	assert.ErrorIs(t, f.exec(bidding, contracts.RecordWinner{Assignment: contracts.Assignment{TicketID: 1, Worker: worker}}),
		contracts.ErrAlreadySettled)
}

func TestAssessSubmission_NoAssignment(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.exec(f.orch, contracts.AddTicket{Ticket: sampleTicket()}))
	err := f.exec(gateway, contracts.AssessSubmission{TicketID: 1, Worker: worker, Result: "X"})
	assert.ErrorIs(t, err, contracts.ErrNotFound)
	assert.Empty(t, f.rec.Calls())
}

func TestPostConfig(t *testing.T) {
	f := setup(t)
	next := contracts.Addr("gateway-two")
	assert.ErrorIs(t, f.exec(worker, contracts.PostRegistryConfig{Gateway: &next}), contracts.ErrUnauthorized)

	require.NoError(t, f.exec(f.orch, contracts.PostRegistryConfig{Gateway: &next}))
	cfg := hosttest.Query[contracts.RegistryConfig](t, f.h, f.reg, contracts.QueryRegistryConfig{})
	assert.True(t, cfg.Gateway.Is(next))
	assert.True(t, cfg.BiddingEngine.Is(bidding), "nil field keeps value")

	bad := contracts.Addr("??")
	assert.ErrorIs(t, f.exec(f.orch, contracts.PostRegistryConfig{BiddingEngine: &bad}), contracts.ErrInvalidAddress)
}

func TestUnknownMessage(t *testing.T) {
	f := setup(t)
	assert.ErrorIs(t, f.exec(f.orch, struct{}{}), contracts.ErrUnknownMessage)
	_, err := f.h.Query(context.Background(), f.reg, struct{}{})
	assert.ErrorIs(t, err, contracts.ErrUnknownMessage)
}
