package contracts

// OrchestratorConfig is the authoritative map of every service address.
// Slashed collateral is paid to Treasury.
type OrchestratorConfig struct {
	Admin         Addr `cbor:"admin" json:"admin"`
	Treasury      Addr `cbor:"treasury" json:"treasury"`
	Registry      Peer `cbor:"registry" json:"registry"`
	Escrow        Peer `cbor:"escrow" json:"escrow"`
	BiddingEngine Peer `cbor:"bidding_engine" json:"bidding_engine"`
	Gateway       Peer `cbor:"gateway" json:"gateway"`
}

// InstantiateOrchestrator creates an Orchestrator owned by the sender.
// A nil Treasury makes the admin wallet the slash sink.
type InstantiateOrchestrator struct {
	Treasury *Addr
}

// PostOrchestratorConfig replaces the non-nil addresses.
type PostOrchestratorConfig struct {
	Registry      *Addr
	Escrow        *Addr
	BiddingEngine *Addr
	Gateway       *Addr
	Treasury      *Addr
}

// SlashRequest asks the Orchestrator to settle a worker's stake.
// SlashPercent is in basis points of SlashScale.
type SlashRequest struct {
	TicketID     uint64
	Worker       Addr
	SlashPercent uint64
}

// CreateService provisions a fresh service instance from CodeID and
// records its address.
type CreateService struct {
	Service ServiceKind
	CodeID  string
}

// SyncPeers pushes the Orchestrator's address map to every configured service.
type SyncPeers struct{}

// QueryOrchestratorConfig returns OrchestratorConfig.
type QueryOrchestratorConfig struct{}

// Settlement splits a stake into the released and slashed parts.
type Settlement struct {
	Collateral   uint64
	SlashPercent uint64
	Slashed      uint64
	Released     uint64
}

// Settle computes floor(collateral*percent/SlashScale) as the slashed part
// and returns the remainder as released. Percentages above SlashScale are
// clamped. Released+Slashed always equals collateral.
func Settle(collateral, percent uint64) Settlement {
	if percent > SlashScale {
		percent = SlashScale
	}
	// collateral*percent may overflow uint64; split into quotient and remainder.
	q, r := collateral/SlashScale, collateral%SlashScale
	slashed := q*percent + r*percent/SlashScale
	return Settlement{
		Collateral:   collateral,
		SlashPercent: percent,
		Slashed:      slashed,
		Released:     collateral - slashed,
	}
}

// SlashPercent grades a submission: 500 for a wrong result, 300 more when
// submitted after the close deadline, clamped to SlashScale.
func SlashPercent(t Ticket, result string, now uint64) uint64 {
	var pct uint64
	if result != t.ExpectedResult {
		pct += 500
	}
	if now > t.CloseDeadline {
		pct += 300
	}
	if pct > SlashScale {
		pct = SlashScale
	}
	return pct
}
