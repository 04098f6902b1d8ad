package contracts

// GatewayConfig is the Gateway's peer configuration.
type GatewayConfig struct {
	Admin         Addr `cbor:"admin" json:"admin"`
	Registry      Peer `cbor:"registry" json:"registry"`
	Escrow        Peer `cbor:"escrow" json:"escrow"`
	BiddingEngine Peer `cbor:"bidding_engine" json:"bidding_engine"`
}

// InstantiateGateway creates a Gateway instance.
type InstantiateGateway struct {
	Registry      Peer
	Escrow        Peer
	BiddingEngine Peer
}

// GatewayLockStake forwards the attached collateral to the Escrow.
type GatewayLockStake struct {
	TicketID uint64
}

// GatewayPlaceBet places a bid for the sender once its stake is locked.
type GatewayPlaceBet struct {
	TicketID uint64
	Amount   uint64
}

// GatewaySubmitResult submits the sender's result for assessment.
type GatewaySubmitResult struct {
	TicketID uint64
	Result   string
}

// PostGatewayConfig replaces the non-nil peer addresses.
type PostGatewayConfig struct {
	Registry      *Addr
	Escrow        *Addr
	BiddingEngine *Addr
}

// QueryGatewayConfig returns GatewayConfig.
type QueryGatewayConfig struct{}
