package contracts

// EscrowConfig is the Escrow's peer configuration. Admin is the
// instantiating Orchestrator, the only account that may release funds.
type EscrowConfig struct {
	Admin    Addr `cbor:"admin" json:"admin"`
	Registry Peer `cbor:"registry" json:"registry"`
	Gateway  Peer `cbor:"gateway" json:"gateway"`
}

// InstantiateEscrow creates an Escrow instance.
type InstantiateEscrow struct {
	Registry Peer
	Gateway  Peer
}

// LockStake records collateral sent by the Gateway on behalf of Worker.
type LockStake struct {
	TicketID uint64
	Worker   Addr
}

// ReleaseStake pays Amount to Worker and Slashed to Sink, then drops the
// worker's stake record.
type ReleaseStake struct {
	TicketID uint64
	Worker   Addr
	Amount   uint64
	Slashed  uint64
	Sink     Addr
}

// RefundStakes returns every locked stake of a ticket to its worker.
type RefundStakes struct {
	TicketID uint64
}

// PostEscrowConfig replaces the non-nil peer addresses.
type PostEscrowConfig struct {
	Registry *Addr
	Gateway  *Addr
}

// QueryStakeStatus returns bool: whether Worker holds a stake on the ticket.
type QueryStakeStatus struct {
	TicketID uint64
	Worker   Addr
}

// QueryStakes returns []Stake in lock order.
type QueryStakes struct {
	TicketID uint64
}

// QueryEscrowConfig returns EscrowConfig.
type QueryEscrowConfig struct{}
