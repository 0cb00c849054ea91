// Package controller holds the client-side state machines behind every page:
// fetching, composing, reacting, settings, the friend graph, the inbox and
// the username setup flow. Each controller owns its error handling and reports
// to the user through a flash.Sink.
package controller

import (
	"context"
	"sync"

	"replied/internal/models"
)

// Scope ties in-flight requests to the lifetime of the view that issued them.
// Results that complete after Cancel are discarded.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScope derives a scope from parent.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

// Context is the context every request in the scope must use.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Cancel ends the scope. Safe to call more than once.
func (s *Scope) Cancel() {
	s.cancel()
}

// Live reports whether results may still be applied.
func (s *Scope) Live() bool {
	return s.ctx.Err() == nil
}

// Settle converts the outcome of a request issued in the scope: once the
// scope is gone the result is reported as stale regardless of what came back.
func (s *Scope) Settle(err error) error {
	if !s.Live() {
		return models.NewStaleError(context.Cause(s.ctx))
	}
	return err
}

// Latest hands out scopes where starting a new one cancels the previous.
type Latest struct {
	mu  sync.Mutex
	cur *Scope
}

// Begin cancels the current scope, if any, and starts a new one.
func (l *Latest) Begin(parent context.Context) *Scope {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur != nil {
		l.cur.Cancel()
	}
	l.cur = NewScope(parent)
	return l.cur
}

// Cancel cancels the current scope.
func (l *Latest) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur != nil {
		l.cur.Cancel()
		l.cur = nil
	}
}
