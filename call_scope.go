package tcc

import (
	"context"
	"sync"
)

// callScope is the call-scoped stack of active transactions, ordered by
// nesting with the most recently opened transaction on top. A call path may
// hold more than one independent transaction when a nested call demands a
// fresh one (RequiresNew); each is a separate frame.
//
// A scope belongs to the logical call path that created it and must not be
// shared across concurrent call paths. The mutex only guards against
// incidental overlap between a call thread and cleanup, not concurrent use.
type callScope struct {
	mu    sync.Mutex
	stack []*Transaction
}

type callScopeKey struct{}

// NewCallScope returns a context carrying a fresh, empty transaction scope.
// Every independent call path needs its own scope before the transaction
// manager can bind transactions to it.
func NewCallScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, callScopeKey{}, &callScope{})
}

// EnsureCallScope returns ctx unchanged when a scope is already attached,
// otherwise a context with a fresh scope.
func EnsureCallScope(ctx context.Context) context.Context {
	if scopeFrom(ctx) != nil {
		return ctx
	}
	return NewCallScope(ctx)
}

func scopeFrom(ctx context.Context) *callScope {
	scope, _ := ctx.Value(callScopeKey{}).(*callScope)
	return scope
}

func (s *callScope) push(tx *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stack = append(s.stack, tx)
}

// peek returns the current (most recently opened) transaction, or nil.
func (s *callScope) peek() *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// popIfTop removes tx only when it is exactly the top frame.
func (s *callScope) popIfTop(tx *Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.stack) == 0 || s.stack[len(s.stack)-1] != tx {
		return false
	}
	s.stack = s.stack[:len(s.stack)-1]
	return true
}

func (s *callScope) active() bool {
	return s.peek() != nil
}
