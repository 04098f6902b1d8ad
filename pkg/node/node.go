// Package node assembles a runnable ticket auction: it opens the
// configured store, builds the host with telemetry, journal and Gateway
// throttle, registers the five service codes and provisions a deployment.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/ticket-auction/pkg/bidding"
	"github.com/Mindburn-Labs/ticket-auction/pkg/config"
	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/escrow"
	"github.com/Mindburn-Labs/ticket-auction/pkg/gateway"
	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/ledger"
	"github.com/Mindburn-Labs/ticket-auction/pkg/observability"
	"github.com/Mindburn-Labs/ticket-auction/pkg/orchestrator"
	"github.com/Mindburn-Labs/ticket-auction/pkg/registry"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

// Node is an assembled host with its backing resources.
type Node struct {
	Host      *host.Host
	Journal   *ledger.Journal
	Telemetry *observability.Provider

	cfg     *config.Config
	kv      store.KV
	limiter gateway.Limiter
	base    *slog.Logger
	logger  *slog.Logger
	clock   func() time.Time
	owned   bool
}

// Option configures a Node.
type Option func(*Node)

// WithClock overrides the block time source.
func WithClock(clock func() time.Time) Option {
	return func(n *Node) { n.clock = clock }
}

// WithLogger sets the base logger; node and host derive their component
// loggers from it.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) { n.base = logger }
}

// WithTelemetry supplies a provider instead of building one from config.
// The caller keeps ownership and shuts it down.
func WithTelemetry(p *observability.Provider) Option {
	return func(n *Node) { n.Telemetry = p }
}

// WithStore supplies a backend instead of opening the configured driver.
func WithStore(kv store.KV) Option {
	return func(n *Node) { n.kv = kv }
}

// Open builds a node from cfg.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Node, error) {
	n := &Node{cfg: cfg, clock: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	if cfg.AddressPrefix != "" {
		if err := host.ValidatePrefix(cfg.AddressPrefix); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if n.base == nil {
		n.base = slog.Default()
	}
	n.logger = n.base.With("component", "node")

	if n.kv == nil {
		kv, limiter, err := openStore(ctx, cfg, n.base)
		if err != nil {
			return nil, err
		}
		n.kv, n.limiter = kv, limiter
	}
	if n.limiter == nil && cfg.GatewayRPS > 0 {
		n.limiter = gateway.NewLocalLimiter(cfg.GatewayRPS, cfg.GatewayBurst)
	}

	if n.Telemetry == nil {
		otelCfg := observability.DefaultConfig()
		otelCfg.Enabled = cfg.OTelEnabled
		otelCfg.OTLPEndpoint = cfg.OTelEndpoint
		p, err := observability.New(ctx, otelCfg)
		if err != nil {
			_ = n.kv.Close()
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		n.Telemetry, n.owned = p, true
	}

	n.Journal = ledger.NewJournal().WithClock(n.clock)
	hostOpts := []host.Option{
		host.WithClock(n.clock),
		host.WithLogger(n.base.With("component", "host")),
		host.WithTelemetry(n.Telemetry),
		host.WithJournal(n.Journal),
		host.WithCommitHook(n.recordSettlements),
	}
	if cfg.AddressPrefix != "" {
		hostOpts = append(hostOpts, host.WithAddressPrefix(cfg.AddressPrefix))
	}
	if n.limiter != nil {
		hostOpts = append(hostOpts, host.WithAdmission(gateway.Throttle(n.limiter)))
	}
	n.Host = host.New(n.kv, hostOpts...)
	n.Host.RegisterCode(contracts.CodeOrchestrator, orchestrator.New())
	n.Host.RegisterCode(contracts.CodeRegistry, registry.New())
	n.Host.RegisterCode(contracts.CodeEscrow, escrow.New())
	n.Host.RegisterCode(contracts.CodeBidding, bidding.New())
	n.Host.RegisterCode(contracts.CodeGateway, gateway.New())

	restored, err := n.Host.LoadJournal(ctx)
	if err != nil {
		_ = n.Close(ctx)
		return nil, err
	}

	n.logger.InfoContext(ctx, "node ready",
		"store", cfg.StoreDriver,
		"journal_entries", restored,
		"throttle", n.limiter != nil,
		"otel", cfg.OTelEnabled,
	)
	return n, nil
}

func (n *Node) Config() *config.Config { return n.cfg }

// Close releases the store and, when the node built it, the telemetry provider.
func (n *Node) Close(ctx context.Context) error {
	var errs []error
	if n.owned {
		errs = append(errs, n.Telemetry.Shutdown(ctx))
	}
	errs = append(errs, n.kv.Close())
	return errors.Join(errs...)
}

// recordSettlements feeds committed slash relays into the settlement metrics.
func (n *Node) recordSettlements(ctx context.Context, sender host.Addr, res *host.Result) {
	for _, ev := range res.Events {
		if m, _ := ev.Attr("method"); m != orchestrator.SettlementMethod {
			continue
		}
		released := attrUint(ev, "released")
		slashed := attrUint(ev, "slashed")
		ticket, _ := ev.Attr("ticket")
		worker, _ := ev.Attr("worker")
		n.Telemetry.RecordSettlement(ctx, released, slashed,
			attribute.String("ticket.denom", n.cfg.Denom))
		n.logger.InfoContext(ctx, "stake settled",
			"tx", res.TxID,
			"ticket", ticket,
			"worker", worker,
			"released", released,
			"slashed", slashed,
			"denom", n.cfg.Denom,
		)
	}
}

func attrUint(ev host.Event, key string) uint64 {
	v, _ := ev.Attr(key)
	n, _ := strconv.ParseUint(v, 10, 64)
	return n
}
