package node

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
)

// Deployment is the set of service addresses of one auction.
type Deployment struct {
	Orchestrator  contracts.Addr
	Registry      contracts.Addr
	Escrow        contracts.Addr
	BiddingEngine contracts.Addr
	Gateway       contracts.Addr
}

var serviceOrder = []contracts.ServiceKind{
	contracts.ServiceRegistry,
	contracts.ServiceEscrow,
	contracts.ServiceBiddingEngine,
	contracts.ServiceGateway,
}

// Bootstrap provisions a full deployment owned by the configured admin.
// It resumes an existing deployment found in the store and only creates
// the services that are missing.
func (n *Node) Bootstrap(ctx context.Context) (Deployment, error) {
	admin := contracts.Addr(n.cfg.AdminAddress)
	if err := contracts.ValidateAddress(admin); err != nil {
		return Deployment{}, fmt.Errorf("admin address: %w", err)
	}

	orch, found, err := n.findOrchestrator(ctx, admin)
	if err != nil {
		return Deployment{}, err
	}
	if !found {
		msg := contracts.InstantiateOrchestrator{}
		if n.cfg.TreasuryAddress != "" {
			treasury := contracts.Addr(n.cfg.TreasuryAddress)
			msg.Treasury = &treasury
		}
		orch, _, err = n.Host.Instantiate(ctx, admin, contracts.CodeOrchestrator, msg, 0, "orchestrator")
		if err != nil {
			return Deployment{}, fmt.Errorf("instantiate orchestrator: %w", err)
		}
		n.logger.InfoContext(ctx, "orchestrator instantiated", "address", orch, "admin", admin)
	} else {
		n.logger.InfoContext(ctx, "resuming deployment", "orchestrator", orch)
	}

	cfg, err := host.QueryAs[contracts.OrchestratorConfig](ctx, n.Host, orch, contracts.QueryOrchestratorConfig{})
	if err != nil {
		return Deployment{}, err
	}
	for _, kind := range serviceOrder {
		if _, ok := peerOf(cfg, kind).Get(); ok {
			continue
		}
		if _, err := n.Host.Execute(ctx, admin, orch, contracts.CreateService{Service: kind}, 0); err != nil {
			return Deployment{}, fmt.Errorf("create %s: %w", kind, err)
		}
	}

	cfg, err = host.QueryAs[contracts.OrchestratorConfig](ctx, n.Host, orch, contracts.QueryOrchestratorConfig{})
	if err != nil {
		return Deployment{}, err
	}
	d := Deployment{Orchestrator: orch}
	d.Registry, _ = cfg.Registry.Get()
	d.Escrow, _ = cfg.Escrow.Get()
	d.BiddingEngine, _ = cfg.BiddingEngine.Get()
	d.Gateway, _ = cfg.Gateway.Get()
	return d, nil
}

func (n *Node) findOrchestrator(ctx context.Context, admin contracts.Addr) (contracts.Addr, bool, error) {
	infos, err := n.Host.Contracts(ctx)
	if err != nil {
		return "", false, err
	}
	for _, info := range infos {
		if info.CodeID == contracts.CodeOrchestrator && info.Admin == admin {
			return info.Address, true, nil
		}
	}
	return "", false, nil
}

func peerOf(cfg contracts.OrchestratorConfig, kind contracts.ServiceKind) contracts.Peer {
	switch kind {
	case contracts.ServiceRegistry:
		return cfg.Registry
	case contracts.ServiceEscrow:
		return cfg.Escrow
	case contracts.ServiceBiddingEngine:
		return cfg.BiddingEngine
	default:
		return cfg.Gateway
	}
}
