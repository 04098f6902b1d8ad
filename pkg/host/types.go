package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/ledger"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

// Addr is a wallet or contract address.
type Addr = contracts.Addr

// BlockInfo is the point-in-time view of the chain a message executes in.
type BlockInfo struct {
	Height uint64
	Time   uint64 // Unix seconds
}

// Env describes where a message executes.
type Env struct {
	Block    BlockInfo
	Contract Addr
}

// MessageInfo carries the validated caller and the attached funds. Funds
// have already been moved to the contract when the handler runs.
type MessageInfo struct {
	Sender Addr
	Funds  uint64
}

// Querier performs read-only queries against other contracts. During
// execution it observes the writes of the in-flight chain.
type Querier interface {
	Query(ctx context.Context, contract Addr, msg any) (any, error)
}

// Deps are the capabilities a contract handler receives.
type Deps struct {
	Storage store.ReadWriter
	Querier Querier
	Logger  *slog.Logger
}

// QueryAs runs a query and asserts the result type.
func QueryAs[T any](ctx context.Context, q Querier, contract Addr, msg any) (T, error) {
	var zero T
	res, err := q.Query(ctx, contract, msg)
	if err != nil {
		return zero, err
	}
	out, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("query %T on %s: unexpected result %T", msg, contract, res)
	}
	return out, nil
}

// Contract is a service implementation registered under a code id.
// Implementations are stateless; all state lives in Deps.Storage.
type Contract interface {
	Instantiate(ctx context.Context, deps Deps, env Env, info MessageInfo, msg any) (*Response, error)
	Execute(ctx context.Context, deps Deps, env Env, info MessageInfo, msg any) (*Response, error)
	Query(ctx context.Context, deps Deps, env Env, msg any) (any, error)
}

// Replier is implemented by contracts that dispatch InstantiateMsg and
// want to learn the new address in the same chain.
type Replier interface {
	Reply(ctx context.Context, deps Deps, env Env, reply Reply) (*Response, error)
}

// Msg is a sub-message returned by a handler. Sub-messages run depth-first
// after the handler returns, inside the same atomic chain.
type Msg interface {
	isMsg()
}

// ExecuteMsg calls another contract, sending Funds from the caller.
type ExecuteMsg struct {
	Contract Addr
	Msg      any
	Funds    uint64
}

// BankSend transfers Amount from the contract to To.
type BankSend struct {
	To     Addr
	Amount uint64
}

// InstantiateMsg creates a new contract from CodeID with the calling
// contract as its admin. A non-zero ReplyID triggers Reply on the caller.
type InstantiateMsg struct {
	CodeID  string
	Msg     any
	Funds   uint64
	Label   string
	ReplyID uint64
}

func (ExecuteMsg) isMsg()     {}
func (BankSend) isMsg()       {}
func (InstantiateMsg) isMsg() {}

// Reply reports the outcome of an InstantiateMsg.
type Reply struct {
	ID      uint64
	Address Addr
}

// Attribute is a key/value pair of an emitted event.
type Attribute struct {
	Key   string
	Value string
}

// Response is what a handler returns.
type Response struct {
	Messages   []Msg
	Attributes []Attribute
}

func NewResponse() *Response { return &Response{} }

func (r *Response) AddMessage(m Msg) *Response {
	r.Messages = append(r.Messages, m)
	return r
}

func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// Event is the attribute set one handler emitted.
type Event struct {
	Contract   Addr
	Attributes []Attribute
}

// Attr returns the first attribute value under key.
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Result is the outcome of a committed dispatch.
type Result struct {
	TxID   string
	Height uint64
	Events []Event

	entries []ledger.Entry
}

// FindEvent returns the first event carrying key=value.
func (r *Result) FindEvent(key, value string) (Event, bool) {
	for _, e := range r.Events {
		if v, ok := e.Attr(key); ok && v == value {
			return e, true
		}
	}
	return Event{}, false
}
