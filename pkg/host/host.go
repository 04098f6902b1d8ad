// Package host executes contracts with all-or-nothing message chains.
//
// A top-level dispatch (Execute, Instantiate) opens one store.Tx overlay.
// The handler and every sub-message it returns run depth-first inside
// that overlay; any error discards the overlay and the whole chain rolls
// back. On success the buffered writes reach the backend in one atomic
// batch and the emitted events are appended to the journal.
package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/ledger"
	"github.com/Mindburn-Labs/ticket-auction/pkg/observability"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

const (
	defaultAddressPrefix = "tkt"
	defaultMaxDepth      = 16

	contractKeyPrefix = "host/contracts/"
	seqKey            = "host/seq"
	heightKey         = "host/height"
	journalKeyPrefix  = "host/journal/"
)

// ErrMaxDepth is returned when a chain nests deeper than the host allows.
var ErrMaxDepth = errors.New("host: max call depth exceeded")

// AdmissionFunc vets a top-level message before it executes. Returning an
// error rejects the dispatch without touching state.
type AdmissionFunc func(ctx context.Context, sender, contract Addr, msg any) error

// CommitHook runs after a dispatch has been committed.
type CommitHook func(ctx context.Context, sender Addr, res *Result)

// ContractInfo is the host's record of an instantiated contract.
type ContractInfo struct {
	Address Addr   `cbor:"address"`
	CodeID  string `cbor:"code_id"`
	Admin   Addr   `cbor:"admin"`
	Label   string `cbor:"label"`
}

// Host runs contracts over a store.KV backend.
type Host struct {
	mu sync.Mutex

	kv        store.KV
	codes     map[string]Contract
	clock     func() time.Time
	logger    *slog.Logger
	telemetry *observability.Provider
	journal   *ledger.Journal
	admission []AdmissionFunc
	hooks     []CommitHook
	prefix    string
	maxDepth  int
}

// Option configures a Host.
type Option func(*Host)

// WithClock overrides the block time source.
func WithClock(clock func() time.Time) Option {
	return func(h *Host) { h.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

func WithTelemetry(p *observability.Provider) Option {
	return func(h *Host) { h.telemetry = p }
}

// WithJournal sets the journal that receives committed events.
func WithJournal(j *ledger.Journal) Option {
	return func(h *Host) { h.journal = j }
}

func WithAdmission(fn AdmissionFunc) Option {
	return func(h *Host) { h.admission = append(h.admission, fn) }
}

func WithCommitHook(fn CommitHook) Option {
	return func(h *Host) { h.hooks = append(h.hooks, fn) }
}

var prefixPattern = regexp.MustCompile(`^[a-z][a-z0-9]{1,15}$`)

// ValidatePrefix reports whether prefix yields addresses that pass
// contracts.ValidateAddress.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: address prefix %q", contracts.ErrInvalidAddress, prefix)
	}
	return nil
}

// WithAddressPrefix sets the human readable prefix of derived addresses.
func WithAddressPrefix(prefix string) Option {
	return func(h *Host) { h.prefix = prefix }
}

func WithMaxDepth(depth int) Option {
	return func(h *Host) { h.maxDepth = depth }
}

// New creates a host over kv.
func New(kv store.KV, opts ...Option) *Host {
	h := &Host{
		kv:       kv,
		codes:    make(map[string]Contract),
		clock:    time.Now,
		journal:  ledger.NewJournal(),
		prefix:   defaultAddressPrefix,
		maxDepth: defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default().With("component", "host")
	}
	return h
}

// RegisterCode makes a contract implementation available under codeID.
func (h *Host) RegisterCode(codeID string, c Contract) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.codes[codeID] = c
}

// Journal returns the committed event journal.
func (h *Host) Journal() *ledger.Journal { return h.journal }

// Execute dispatches msg to contract on behalf of sender, attaching funds.
func (h *Host) Execute(ctx context.Context, sender, contract Addr, msg any, funds uint64) (*Result, error) {
	return h.dispatch(ctx, sender, contract, msg, func(ctx context.Context, e *execution) error {
		return e.execute(ctx, sender, contract, msg, funds)
	})
}

// Instantiate creates a contract from codeID with sender as its admin.
func (h *Host) Instantiate(ctx context.Context, sender Addr, codeID string, msg any, funds uint64, label string) (Addr, *Result, error) {
	var addr Addr
	res, err := h.dispatch(ctx, sender, "", msg, func(ctx context.Context, e *execution) error {
		var err error
		addr, err = e.instantiate(ctx, sender, codeID, msg, funds, label)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return addr, res, nil
}

// Query runs a read-only query against committed state.
func (h *Host) Query(ctx context.Context, contract Addr, msg any) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := store.Begin(h.kv)
	block, err := h.currentBlock(ctx, tx)
	if err != nil {
		return nil, err
	}
	e := &execution{h: h, tx: tx, block: block}
	return e.query(ctx, contract, msg)
}

// Fund mints amount into addr. It is the genesis allocation primitive.
func (h *Host) Fund(ctx context.Context, addr Addr, amount uint64) error {
	if err := contracts.ValidateAddress(addr); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	tx := store.Begin(h.kv)
	bal, err := balance(ctx, tx, addr)
	if err != nil {
		return err
	}
	if bal+amount < bal {
		return fmt.Errorf("fund %s: balance overflow", addr)
	}
	if err := setBalance(ctx, tx, addr, bal+amount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Balance returns the committed balance of addr.
func (h *Host) Balance(ctx context.Context, addr Addr) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return balance(ctx, h.kv, addr)
}

// ContractInfo returns the record of an instantiated contract.
func (h *Host) ContractInfo(ctx context.Context, addr Addr) (ContractInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return loadContract(ctx, h.kv, addr)
}

// Contracts lists every instantiated contract in address order.
func (h *Host) Contracts(ctx context.Context) ([]ContractInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return store.LoadAll[ContractInfo](ctx, h.kv, contractKeyPrefix)
}

func (h *Host) dispatch(ctx context.Context, sender, contract Addr, msg any, run func(context.Context, *execution) error) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	txID := uuid.NewString()
	msgType := fmt.Sprintf("%T", msg)
	finish := func(error) {}
	if h.telemetry != nil {
		ctx, finish = h.telemetry.TrackOperation(ctx, "ticket.dispatch",
			attribute.String("ticket.msg", msgType),
			attribute.String("ticket.contract", string(contract)),
		)
	}

	res, err := h.run(ctx, txID, sender, contract, msg, run)
	finish(err)
	if err != nil {
		h.logger.WarnContext(ctx, "dispatch rolled back",
			"tx", txID, "sender", sender, "contract", contract, "msg", msgType, "error", err)
		return nil, fmt.Errorf("tx %s: %w", txID, err)
	}

	if err := h.journal.Extend(res.entries); err != nil {
		h.logger.ErrorContext(ctx, "journal extend failed", "tx", txID, "error", err)
	}
	for _, hook := range h.hooks {
		hook(ctx, sender, res)
	}
	h.logger.DebugContext(ctx, "dispatch committed",
		"tx", txID, "sender", sender, "contract", contract, "msg", msgType, "events", len(res.Events))
	return res, nil
}

func (h *Host) run(ctx context.Context, txID string, sender, contract Addr, msg any, run func(context.Context, *execution) error) (*Result, error) {
	for _, admit := range h.admission {
		if err := admit(ctx, sender, contract, msg); err != nil {
			return nil, err
		}
	}

	tx := store.Begin(h.kv)
	block, err := h.currentBlock(ctx, tx)
	if err != nil {
		return nil, err
	}
	block.Height++
	if err := store.Save(ctx, tx, heightKey, block.Height); err != nil {
		return nil, err
	}

	e := &execution{h: h, tx: tx, block: block}
	if err := run(ctx, e); err != nil {
		return nil, err
	}

	// Journal entries commit in the same batch as the state they describe.
	records := make([]ledger.Record, 0, len(e.events))
	for _, ev := range e.events {
		attrs := make(map[string]string, len(ev.Attributes))
		for _, a := range ev.Attributes {
			attrs[a.Key] = a.Value
		}
		records = append(records, ledger.Record{Contract: string(ev.Contract), Attributes: attrs})
	}
	entries, err := h.journal.Prepare(txID, string(sender), records)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := store.Save(ctx, tx, journalKey(entry.Sequence), entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &Result{TxID: txID, Height: block.Height, Events: e.events, entries: entries}, nil
}

func journalKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", journalKeyPrefix, seq)
}

// LoadJournal restores the journal from entries committed by earlier
// runs over the same store. Call it once, before the first dispatch.
func (h *Host) LoadJournal(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries, err := store.LoadAll[ledger.Entry](ctx, h.kv, journalKeyPrefix)
	if err != nil {
		return 0, err
	}
	if err := h.journal.Restore(entries); err != nil {
		return 0, fmt.Errorf("journal: %w", err)
	}
	return len(entries), nil
}

func (h *Host) currentBlock(ctx context.Context, r store.Reader) (BlockInfo, error) {
	var height uint64
	if err := store.Load(ctx, r, heightKey, &height); err != nil && !errors.Is(err, store.ErrNotFound) {
		return BlockInfo{}, err
	}
	return BlockInfo{Height: height, Time: uint64(h.clock().Unix())}, nil
}

// nextAddress derives a fresh, deterministic contract address.
func (h *Host) nextAddress(ctx context.Context, rw store.ReadWriter, codeID string) (Addr, error) {
	var seq uint64
	if err := store.Load(ctx, rw, seqKey, &seq); err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	seq++
	if err := store.Save(ctx, rw, seqKey, seq); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", codeID, seq)))
	return Addr(h.prefix + "1" + hex.EncodeToString(sum[:])[:40]), nil
}

func loadContract(ctx context.Context, r store.Reader, addr Addr) (ContractInfo, error) {
	var info ContractInfo
	err := store.Load(ctx, r, contractKeyPrefix+string(addr), &info)
	if errors.Is(err, store.ErrNotFound) {
		return ContractInfo{}, fmt.Errorf("%w: contract %s", contracts.ErrNotFound, addr)
	}
	return info, err
}
