package contracts

import "fmt"

// SlashScale is the basis of slash percentages: 1000 means 100.0%.
const SlashScale = 1000

// Ticket is a unit of work with deadlines, an expected result and the
// collateral a worker must lock before bidding. Timestamps are Unix seconds.
type Ticket struct {
	ID             uint64 `cbor:"id" json:"id"`
	BetDeadline    uint64 `cbor:"bet_deadline" json:"bet_deadline"`
	CloseDeadline  uint64 `cbor:"close_deadline" json:"close_deadline"`
	ExpectedResult string `cbor:"expected_result" json:"expected_result"`
	Collateral     uint64 `cbor:"collateral" json:"collateral"`
}

// Validate checks the deadline ordering.
func (t Ticket) Validate() error {
	if t.BetDeadline > t.CloseDeadline {
		return fmt.Errorf("%w: bet deadline %d after close deadline %d", ErrInvalidTicket, t.BetDeadline, t.CloseDeadline)
	}
	return nil
}

// Bid is a worker's proposed price for a ticket.
type Bid struct {
	TicketID uint64 `cbor:"ticket_id" json:"ticket_id"`
	Bidder   Addr   `cbor:"bidder" json:"bidder"`
	Amount   uint64 `cbor:"amount" json:"amount"`
}

// Stake is collateral locked by one worker for one ticket.
type Stake struct {
	Worker Addr   `cbor:"worker" json:"worker"`
	Amount uint64 `cbor:"amount" json:"amount"`
}

// Assignment records the winning worker of a ticket.
type Assignment struct {
	TicketID uint64 `cbor:"ticket_id" json:"ticket_id"`
	Worker   Addr   `cbor:"worker" json:"worker"`
}

// ServiceKind names one of the provisionable services.
type ServiceKind string

const (
	ServiceRegistry      ServiceKind = "registry"
	ServiceEscrow        ServiceKind = "escrow"
	ServiceBiddingEngine ServiceKind = "bidding"
	ServiceGateway       ServiceKind = "gateway"
)

// Code ids under which the host registers each service implementation.
const (
	CodeRegistry     = "registry"
	CodeEscrow       = "escrow"
	CodeBidding      = "bidding"
	CodeGateway      = "gateway"
	CodeOrchestrator = "orchestrator"
)
