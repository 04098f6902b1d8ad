// Package hosttest provides helpers for testing contracts on a host.
package hosttest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/ticket-auction/pkg/host"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

// RecorderCode is the code id NewHost registers the Recorder under.
const RecorderCode = "recorder"

// Clock is a settable block clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the block time to sec Unix seconds.
func (c *Clock) Set(sec int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(sec, 0)
}

// Call is one message received by a Recorder.
type Call struct {
	Sender host.Addr
	Msg    any
	Funds  uint64
}

// Recorder is a stand-in peer. It accepts every message, keeps the
// attached funds and answers queries through Answer. Calls are recorded
// as they arrive, so a rolled back chain still shows up here.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	Answer func(msg any) (any, error)
}

func (r *Recorder) Instantiate(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	return host.NewResponse(), nil
}

func (r *Recorder) Execute(ctx context.Context, deps host.Deps, env host.Env, info host.MessageInfo, msg any) (*host.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Sender: info.Sender, Msg: msg, Funds: info.Funds})
	return host.NewResponse(), nil
}

func (r *Recorder) Query(ctx context.Context, deps host.Deps, env host.Env, msg any) (any, error) {
	if r.Answer == nil {
		return nil, nil
	}
	return r.Answer(msg)
}

// Calls returns a snapshot of the received messages.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Reset forgets every recorded call.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// NewHost returns an in-memory host driven by a settable clock, with rec
// registered under RecorderCode.
func NewHost(t testing.TB, rec *Recorder, opts ...host.Option) (*host.Host, *Clock) {
	t.Helper()
	clock := &Clock{}
	clock.Set(0)
	opts = append([]host.Option{host.WithClock(clock.Now)}, opts...)
	h := host.New(store.NewMemoryStore(), opts...)
	if rec != nil {
		h.RegisterCode(RecorderCode, rec)
	}
	t.Cleanup(func() {
		if ok, msg := h.Journal().Verify(); !ok {
			t.Errorf("journal corrupted: %s", msg)
		}
	})
	return h, clock
}

// Deploy instantiates codeID from sender and fails the test on error.
func Deploy(t testing.TB, h *host.Host, sender host.Addr, codeID string, msg any) host.Addr {
	t.Helper()
	addr, _, err := h.Instantiate(context.Background(), sender, codeID, msg, 0, codeID)
	require.NoError(t, err)
	return addr
}

// Query runs a typed query against committed state.
func Query[T any](t testing.TB, h *host.Host, contract host.Addr, msg any) T {
	t.Helper()
	res, err := h.Query(context.Background(), contract, msg)
	require.NoError(t, err)
	out, ok := res.(T)
	require.Truef(t, ok, "unexpected query result %T", res)
	return out
}

// Balance returns the committed balance of addr.
func Balance(t testing.TB, h *host.Host, addr host.Addr) uint64 {
	t.Helper()
	bal, err := h.Balance(context.Background(), addr)
	require.NoError(t, err)
	return bal
}
