package contracts

// BiddingConfig is the Bidding Engine's peer configuration. Admin is
// the instantiating Orchestrator, the only account that may decide a winner.
type BiddingConfig struct {
	Admin    Addr `cbor:"admin" json:"admin"`
	Registry Peer `cbor:"registry" json:"registry"`
	Gateway  Peer `cbor:"gateway" json:"gateway"`
}

// InstantiateBidding creates a Bidding Engine instance.
type InstantiateBidding struct {
	Registry Peer
	Gateway  Peer
}

// PlaceBid appends a bid for a ticket. Only the Gateway may send it.
type PlaceBid struct {
	TicketID uint64
	Bidder   Addr
	Amount   uint64
}

// DecideWinner closes the auction of a ticket and reports the lowest bid.
type DecideWinner struct {
	TicketID uint64
}

// ClearBids drops every open bid of a ticket.
type ClearBids struct {
	TicketID uint64
}

// PostBiddingConfig replaces the non-nil peer addresses.
type PostBiddingConfig struct {
	Registry *Addr
	Gateway  *Addr
}

// QueryOpenTickets returns []uint64, the ids of tickets with open bids.
type QueryOpenTickets struct{}

// QueryBids returns []Bid in insertion order.
type QueryBids struct {
	TicketID uint64
}

// QueryBiddingConfig returns BiddingConfig.
type QueryBiddingConfig struct{}
