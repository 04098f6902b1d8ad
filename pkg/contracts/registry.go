package contracts

// RegistryConfig is the Registry's peer configuration. Admin is the
// instantiating Orchestrator and is the only account allowed to mutate
// tickets; it also receives slash requests.
type RegistryConfig struct {
	Admin         Addr `cbor:"admin" json:"admin"`
	BiddingEngine Peer `cbor:"bidding_engine" json:"bidding_engine"`
	Gateway       Peer `cbor:"gateway" json:"gateway"`
}

// InstantiateRegistry creates a Registry instance.
type InstantiateRegistry struct {
	BiddingEngine Peer
	Gateway       Peer
}

// AddTicket appends a ticket to the catalog.
type AddTicket struct {
	Ticket Ticket
}

// UpdateTicket changes the non-nil fields of an existing ticket.
type UpdateTicket struct {
	ID             uint64
	BetDeadline    *uint64
	CloseDeadline  *uint64
	ExpectedResult *string
	Collateral     *uint64
}

// RemoveTicket deletes a ticket. Sent to the Orchestrator it cascades
// to bids and stakes; sent to the Registry it drops the ticket, its
// assignment and its settlement mark.
type RemoveTicket struct {
	ID uint64
}

// RecordWinner stores the winning worker reported by the Bidding Engine.
type RecordWinner struct {
	Assignment Assignment
}

// AssessSubmission grades a worker's result against the ticket.
type AssessSubmission struct {
	TicketID uint64
	Worker   Addr
	Result   string
}

// PostRegistryConfig replaces the non-nil peer addresses.
type PostRegistryConfig struct {
	BiddingEngine *Addr
	Gateway       *Addr
}

// QueryTicket returns a Ticket.
type QueryTicket struct {
	ID uint64
}

// QueryTickets returns []Ticket ordered by id.
type QueryTickets struct{}

// QueryAssignments returns []Assignment ordered by ticket id.
type QueryAssignments struct{}

// QueryTicketWorker returns the assigned worker Addr.
type QueryTicketWorker struct {
	ID uint64
}

// QueryRegistryConfig returns RegistryConfig.
type QueryRegistryConfig struct{}
