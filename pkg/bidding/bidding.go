// Package bidding implements the Bidding Engine: it collects bids relayed
// by the Gateway and, once the bet deadline has passed, awards the ticket
// to the lowest bid.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

const (
	configKey = "config"
	bidPrefix = "bids/"
)

func bidsKey(id uint64) string { return fmt.Sprintf("%s%020d", bidPrefix, id) }

// Contract is the Bidding Engine service.
type Contract struct{}

func New() *Contract { return &Contract{} }

func loadConfig(ctx context.Context, r store.Reader) (contracts.BiddingConfig, error) {
	var cfg contracts.BiddingConfig
	if err := store.Load(ctx, r, configKey, &cfg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cfg, fmt.Errorf("%w: bidding engine", contracts.ErrNotInitialized)
		}
		return cfg, err
	}
	return cfg, nil
}

func loadBids(ctx context.Context, r store.Reader, id uint64) ([]contracts.Bid, error) {
	var bids []contracts.Bid
	if err := store.Load(ctx, r, bidsKey(id), &bids); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return bids, nil
}

// Winner returns the lowest bid; ties go to the earliest. ok is false
// when there are no bids.
func Winner(bids []contracts.Bid) (contracts.Bid, bool) {
	if len(bids) == 0 {
		return contracts.Bid{}, false
	}
	best := bids[0]
	for _, b := range bids[1:] {
		if b.Amount < best.Amount {
			best = b
		}
	}
	return best, true
}

func (c *Contract) Instantiate(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	m, ok := msg.(contracts.InstantiateBidding)
	if !ok {
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}
	cfg := contracts.BiddingConfig{Admin: info.Sender, Registry: m.Registry, Gateway: m.Gateway}
	if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "instantiate").
		AddAttribute("admin", string(info.Sender)), nil
}

func (c *Contract) Execute(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	cfg, err := loadConfig(ctx, deps.Storage)
	if err != nil {
		return nil, err
	}
	if err := contracts.RejectFunds(info.Funds); err != nil {
		return nil, err
	}

	switch m := msg.(type) {
	case contracts.PlaceBid:
		return c.placeBid(ctx, deps, env, info, cfg, m)
	case contracts.DecideWinner:
		return c.decideWinner(ctx, deps, env, info, cfg, m)
	case contracts.ClearBids:
		if err := contracts.RequireSender(info.Sender, cfg.Admin); err != nil {
			return nil, err
		}
		if err := deps.Storage.Delete(ctx, bidsKey(m.TicketID)); err != nil {
			return nil, err
		}
		return host.NewResponse().
			AddAttribute("method", "clear_bids").
			AddAttribute("ticket", contracts.FormatID(m.TicketID)), nil
	case contracts.PostBiddingConfig:
		if err := contracts.RequireSender(info.Sender, cfg.Admin); err != nil {
			return nil, err
		}
		if cfg.Registry, err = cfg.Registry.Replace(m.Registry); err != nil {
			return nil, err
		}
		if cfg.Gateway, err = cfg.Gateway.Replace(m.Gateway); err != nil {
			return nil, err
		}
		if err := store.Save(ctx, deps.Storage, configKey, cfg); err != nil {
			return nil, err
		}
		return host.NewResponse().AddAttribute("method", "post_config"), nil
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}

func (c *Contract) placeBid(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, cfg contracts.BiddingConfig, m contracts.PlaceBid) (*host.Response, error) {
	if err := contracts.RequirePeer(cfg.Gateway, "gateway", info.Sender); err != nil {
		return nil, err
	}
	if err := contracts.ValidateAddress(m.Bidder); err != nil {
		return nil, err
	}
	registry, err := cfg.Registry.Require("registry")
	if err != nil {
		return nil, err
	}
	ticket, err := host.QueryAs[contracts.Ticket](ctx, deps.Querier, registry, contracts.QueryTicket{ID: m.TicketID})
	if err != nil {
		return nil, err
	}
	if env.Block.Time >= ticket.BetDeadline {
		return nil, fmt.Errorf("%w: ticket %d closed bidding at %d", contracts.ErrBettingClosed, m.TicketID, ticket.BetDeadline)
	}

	bids, err := loadBids(ctx, deps.Storage, m.TicketID)
	if err != nil {
		return nil, err
	}
	bids = append(bids, contracts.Bid{TicketID: m.TicketID, Bidder: m.Bidder, Amount: m.Amount})
	if err := store.Save(ctx, deps.Storage, bidsKey(m.TicketID), bids); err != nil {
		return nil, err
	}
	return host.NewResponse().
		AddAttribute("method", "place_bid").
		AddAttribute("ticket", contracts.FormatID(m.TicketID)).
		AddAttribute("bidder", string(m.Bidder)).
		AddAttribute("amount", strconv.FormatUint(m.Amount, 10)), nil
}

func (c *Contract) decideWinner(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, cfg contracts.BiddingConfig, m contracts.DecideWinner) (*host.Response, error) {
	if err := contracts.RequireSender(info.Sender, cfg.Admin); err != nil {
		return nil, err
	}
	registry, err := cfg.Registry.Require("registry")
	if err != nil {
		return nil, err
	}
	ticket, err := host.QueryAs[contracts.Ticket](ctx, deps.Querier, registry, contracts.QueryTicket{ID: m.TicketID})
	if err != nil {
		return nil, err
	}
	if env.Block.Time < ticket.BetDeadline {
		return nil, fmt.Errorf("%w: ticket %d bets close at %d", contracts.ErrTooEarly, m.TicketID, ticket.BetDeadline)
	}

	bids, err := loadBids(ctx, deps.Storage, m.TicketID)
	if err != nil {
		return nil, err
	}
	best, ok := Winner(bids)
	if !ok {
		return nil, fmt.Errorf("%w: no bids for ticket %d", contracts.ErrNotFound, m.TicketID)
	}
	if err := deps.Storage.Delete(ctx, bidsKey(m.TicketID)); err != nil {
		return nil, err
	}

	return host.NewResponse().
		AddAttribute("method", "decide_winner").
		AddAttribute("ticket", contracts.FormatID(m.TicketID)).
		AddAttribute("winner", string(best.Bidder)).
		AddAttribute("amount", strconv.FormatUint(best.Amount, 10)).
		AddMessage(host.ExecuteMsg{
			Contract: registry,
			Msg: contracts.RecordWinner{Assignment: contracts.Assignment{
				TicketID: m.TicketID,
				Worker:   best.Bidder,
			}},
		}), nil
}

func (c *Contract) Query(ctx context.Context, deps host.Deps, env host.Env, msg any) (any, error) {
	switch m := msg.(type) {
	case contracts.QueryOpenTickets:
		lists, err := store.LoadAll[[]contracts.Bid](ctx, deps.Storage, bidPrefix)
		if err != nil {
			return nil, err
		}
		ids := make([]uint64, 0, len(lists))
		for _, bids := range lists {
			if len(bids) > 0 {
				ids = append(ids, bids[0].TicketID)
			}
		}
		return ids, nil
	case contracts.QueryBids:
		bids, err := loadBids(ctx, deps.Storage, m.TicketID)
		if err != nil {
			return nil, err
		}
		if bids == nil {
			bids = []contracts.Bid{}
		}
		return bids, nil
	case contracts.QueryBiddingConfig:
		return loadConfig(ctx, deps.Storage)
	default:
		return nil, fmt.Errorf("%w: %T", contracts.ErrUnknownMessage, msg)
	}
}
