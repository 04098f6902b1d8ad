package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/ticket-auction/pkg/contracts"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

// execution is one top-level dispatch and everything it triggers.
type execution struct {
	h      *Host
	tx     *store.Tx
	block  BlockInfo
	events []Event
	depth  int
}

func contractPrefix(addr Addr) string { return "c/" + string(addr) + "/" }

func (e *execution) enter() error {
	e.depth++
	if e.depth > e.h.maxDepth {
		return ErrMaxDepth
	}
	return nil
}

func (e *execution) leave() { e.depth-- }

func (e *execution) code(ctx context.Context, addr Addr) (Contract, error) {
	info, err := loadContract(ctx, e.tx, addr)
	if err != nil {
		return nil, err
	}
	c, ok := e.h.codes[info.CodeID]
	if !ok {
		return nil, fmt.Errorf("%w: code %s", contracts.ErrNotFound, info.CodeID)
	}
	return c, nil
}

func (e *execution) deps(addr Addr) Deps {
	return Deps{
		Storage: store.NewPrefixed(e.tx, contractPrefix(addr)),
		Querier: e,
		Logger:  e.h.logger.With("contract", string(addr)),
	}
}

func (e *execution) env(addr Addr) Env {
	return Env{Block: e.block, Contract: addr}
}

func (e *execution) execute(ctx context.Context, sender, contract Addr, msg any, funds uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	c, err := e.code(ctx, contract)
	if err != nil {
		return err
	}
	if err := transfer(ctx, e.tx, sender, contract, funds); err != nil {
		return err
	}
	resp, err := c.Execute(ctx, e.deps(contract), e.env(contract), MessageInfo{Sender: sender, Funds: funds}, msg)
	if err != nil {
		return err
	}
	return e.handle(ctx, contract, resp)
}

func (e *execution) instantiate(ctx context.Context, sender Addr, codeID string, msg any, funds uint64, label string) (Addr, error) {
	if err := e.enter(); err != nil {
		return "", err
	}
	defer e.leave()

	c, ok := e.h.codes[codeID]
	if !ok {
		return "", fmt.Errorf("%w: code %s", contracts.ErrNotFound, codeID)
	}
	addr, err := e.h.nextAddress(ctx, e.tx, codeID)
	if err != nil {
		return "", err
	}
	info := ContractInfo{Address: addr, CodeID: codeID, Admin: sender, Label: label}
	if err := store.Save(ctx, e.tx, contractKeyPrefix+string(addr), info); err != nil {
		return "", err
	}
	if err := transfer(ctx, e.tx, sender, addr, funds); err != nil {
		return "", err
	}
	resp, err := c.Instantiate(ctx, e.deps(addr), e.env(addr), MessageInfo{Sender: sender, Funds: funds}, msg)
	if err != nil {
		return "", err
	}
	if err := e.handle(ctx, addr, resp); err != nil {
		return "", err
	}
	return addr, nil
}

// handle records the handler's event and runs its sub-messages in order.
func (e *execution) handle(ctx context.Context, contract Addr, resp *Response) error {
	if resp == nil {
		return nil
	}
	if len(resp.Attributes) > 0 {
		attrs := make([]Attribute, len(resp.Attributes))
		copy(attrs, resp.Attributes)
		e.events = append(e.events, Event{Contract: contract, Attributes: attrs})
	}
	for _, m := range resp.Messages {
		if err := e.dispatchMsg(ctx, contract, m); err != nil {
			return err
		}
	}
	return nil
}

func (e *execution) dispatchMsg(ctx context.Context, contract Addr, m Msg) error {
	switch m := m.(type) {
	case ExecuteMsg:
		return e.execute(ctx, contract, m.Contract, m.Msg, m.Funds)
	case BankSend:
		if err := contracts.ValidateAddress(m.To); err != nil {
			return err
		}
		return transfer(ctx, e.tx, contract, m.To, m.Amount)
	case InstantiateMsg:
		addr, err := e.instantiate(ctx, contract, m.CodeID, m.Msg, m.Funds, m.Label)
		if err != nil {
			return err
		}
		if m.ReplyID == 0 {
			return nil
		}
		return e.reply(ctx, contract, Reply{ID: m.ReplyID, Address: addr})
	default:
		return fmt.Errorf("%w: sub-message %T", contracts.ErrUnknownMessage, m)
	}
}

func (e *execution) reply(ctx context.Context, contract Addr, r Reply) error {
	c, err := e.code(ctx, contract)
	if err != nil {
		return err
	}
	replier, ok := c.(Replier)
	if !ok {
		return fmt.Errorf("contract %s cannot handle reply %d", contract, r.ID)
	}
	resp, err := replier.Reply(ctx, e.deps(contract), e.env(contract), r)
	if err != nil {
		return err
	}
	return e.handle(ctx, contract, resp)
}

// Query implements Querier over the in-flight overlay. Query handlers get
// a storage view that rejects writes.
func (e *execution) Query(ctx context.Context, contract Addr, msg any) (any, error) {
	return e.query(ctx, contract, msg)
}

func (e *execution) query(ctx context.Context, contract Addr, msg any) (any, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()

	c, err := e.code(ctx, contract)
	if err != nil {
		return nil, err
	}
	deps := e.deps(contract)
	deps.Storage = readOnly{deps.Storage}
	return c.Query(ctx, deps, e.env(contract), msg)
}

// ErrReadOnly is returned when a query handler tries to write.
var ErrReadOnly = errors.New("host: storage is read-only during queries")

type readOnly struct {
	store.Reader
}

func (readOnly) Set(context.Context, string, []byte) error { return ErrReadOnly }
func (readOnly) Delete(context.Context, string) error      { return ErrReadOnly }
