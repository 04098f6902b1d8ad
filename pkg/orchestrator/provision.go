package orchestrator

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

// Reply ids, one per provisionable service.
const (
	replyRegistry uint64 = iota + 1
	replyEscrow
	replyBidding
	replyGateway
)

var defaultCodes = map[contracts.ServiceKind]string{
	contracts.ServiceRegistry:      contracts.CodeRegistry,
	contracts.ServiceEscrow:        contracts.CodeEscrow,
	contracts.ServiceBiddingEngine: contracts.CodeBidding,
	contracts.ServiceGateway:       contracts.CodeGateway,
}

// createService instantiates a service seeded with the peers known so
// far. The new address is stored by Reply in the same chain.
func createService(cfg contracts.OrchestratorConfig, m contracts.CreateService) (*host.Response, error) {
	var (
		init    any
		replyID uint64
	)
	switch m.Service {
	case contracts.ServiceRegistry:
		init = contracts.InstantiateRegistry{BiddingEngine: cfg.BiddingEngine, Gateway: cfg.Gateway}
		replyID = replyRegistry
	case contracts.ServiceEscrow:
		init = contracts.InstantiateEscrow{Registry: cfg.Registry, Gateway: cfg.Gateway}
		replyID = replyEscrow
	case contracts.ServiceBiddingEngine:
		init = contracts.InstantiateBidding{Registry: cfg.Registry, Gateway: cfg.Gateway}
		replyID = replyBidding
	case contracts.ServiceGateway:
		init = contracts.InstantiateGateway{Registry: cfg.Registry, Escrow: cfg.Escrow, BiddingEngine: cfg.BiddingEngine}
		replyID = replyGateway
	default:
		return nil, fmt.Errorf("%w: service %q", contracts.ErrUnknownMessage, m.Service)
	}
	codeID := m.CodeID
	if codeID == "" {
		codeID = defaultCodes[m.Service]
	}
	return host.NewResponse().
		AddAttribute("method", "create_service").
		AddAttribute("service", string(m.Service)).
		AddAttribute("code_id", codeID).
		AddMessage(host.InstantiateMsg{
			CodeID:  codeID,
			Msg:     init,
			Label:   string(m.Service),
			ReplyID: replyID,
		}), nil
}

// Reply records a freshly instantiated service and pushes the updated
// address map to every configured service.
func (c *Contract) Reply(ctx context.Context, deps host.Deps, env host.Env, reply host.Reply) (*host.Response, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}
	var kind contracts.ServiceKind
	switch reply.ID {
	case replyRegistry:
		cfg.Registry, kind = contracts.Configured(reply.Address), contracts.ServiceRegistry
	case replyEscrow:
		cfg.Escrow, kind = contracts.Configured(reply.Address), contracts.ServiceEscrow
	case replyBidding:
		cfg.BiddingEngine, kind = contracts.Configured(reply.Address), contracts.ServiceBiddingEngine
	case replyGateway:
		cfg.Gateway, kind = contracts.Configured(reply.Address), contracts.ServiceGateway
	default:
		return nil, fmt.Errorf("%w: reply id %d", contracts.ErrUnknownMessage, reply.ID)
	}
	if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
		return nil, err
	}
	deps.Logger.InfoContext(ctx, "service provisioned", "service", kind, "address", reply.Address)

	resp := host.NewResponse().
		AddAttribute("method", "service_created").
		AddAttribute("service", string(kind)).
		AddAttribute("address", string(reply.Address))
	for _, m := range peerUpdates(cfg) {
		resp.AddMessage(m)
	}
	return resp, nil
}

func peerRef(p contracts.Peer) *contracts.Addr {
	addr, ok := p.Get()
	if !ok {
		return nil
	}
	return &addr
}

// peerUpdates builds one PostConfig per configured service carrying the
// configured subset of its peers.
func peerUpdates(cfg contracts.OrchestratorConfig) []host.Msg {
	var msgs []host.Msg
	if addr, ok := cfg.Registry.Get(); ok {
		msgs = append(msgs, host.ExecuteMsg{Contract: addr, Msg: contracts.PostRegistryConfig{
			BiddingEngine: peerRef(cfg.BiddingEngine),
			Gateway:       peerRef(cfg.Gateway),
		}})
	}
	if addr, ok := cfg.Escrow.Get(); ok {
		msgs = append(msgs, host.ExecuteMsg{Contract: addr, Msg: contracts.PostEscrowConfig{
			Registry: peerRef(cfg.Registry),
			Gateway:  peerRef(cfg.Gateway),
		}})
	}
	if addr, ok := cfg.BiddingEngine.Get(); ok {
		msgs = append(msgs, host.ExecuteMsg{Contract: addr, Msg: contracts.PostBiddingConfig{
			Registry: peerRef(cfg.Registry),
			Gateway:  peerRef(cfg.Gateway),
		}})
	}
	if addr, ok := cfg.Gateway.Get(); ok {
		msgs = append(msgs, host.ExecuteMsg{Contract: addr, Msg: contracts.PostGatewayConfig{
			Registry:      peerRef(cfg.Registry),
			Escrow:        peerRef(cfg.Escrow),
			BiddingEngine: peerRef(cfg.BiddingEngine),
		}})
	}
	return msgs
}
