// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package execctx serializes script execution and, in isolated mode, swaps
// the sequencing thread into the owning script's context for each call.
package execctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/hookhost/hookhost/internal/script"
	"github.com/hookhost/hookhost/pkg/errutil"
)

// Mode selects how scripts share interpreter state. It is fixed for the
// life of a Manager.
type Mode string

// Execution modes.
const (
	ModeShared   Mode = "shared"
	ModeIsolated Mode = "isolated"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeShared, ModeIsolated:
		return Mode(s), nil
	default:
		return "", ErrInvalidMode(s)
	}
}

// DefaultQueueSize bounds the background queue when no size is given.
const DefaultQueueSize = 256

// Token is an execution context. In shared mode one token serves every
// script; in isolated mode each script gets its own.
type Token struct {
	id      uint64
	owner   script.ID
	revoked atomic.Bool
}

// Owner returns the script the token was issued for. The process-wide token
// has owner 0.
func (t *Token) Owner() script.ID {
	if t == nil {
		return 0
	}
	return t.owner
}

// Valid reports whether the token may still be swapped to.
func (t *Token) Valid() bool { return t != nil && !t.revoked.Load() }

func (t *Token) String() string { return fmt.Sprintf("token(%d:%s)", t.id, t.owner) }

// Thread is the context slot of one sequencing thread. A Thread must only be
// used by one goroutine at a time.
type Thread struct {
	current *Token
	holding bool
}

// Current returns the thread's current context, or nil.
func (t *Thread) Current() *Token { return t.current }

type threadKey struct{}

// WithThread returns a context carrying thread.
func WithThread(ctx context.Context, thread *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, thread)
}

// ThreadFrom returns the thread carried by ctx, if any.
func ThreadFrom(ctx context.Context) *Thread {
	t, _ := ctx.Value(threadKey{}).(*Thread)
	return t
}

type work struct {
	owner script.ID
	fn    func(context.Context) error
}

// Manager owns the serialization lock, the execution tokens and the
// background work queue.
type Manager struct {
	mode   Mode
	logger *slog.Logger

	lock sync.Mutex

	tokMu   sync.Mutex
	lastTok uint64
	process *Token
	owners  map[script.ID]*Token

	queue  chan work
	budget time.Duration
	closed atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithQueueSize bounds the background queue.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queue = make(chan work, n)
		}
	}
}

// WithWorkBudget bounds each drained work item. Zero disables the deadline.
func WithWorkBudget(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.budget = d
		}
	}
}

// WithLogger sets the logger used for failed background work.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager in mode.
func New(mode Mode, opts ...Option) (*Manager, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	m := &Manager{
		mode:   mode,
		logger: slog.Default(),
		owners: make(map[script.ID]*Token),
		queue:  make(chan work, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.process = m.issue(0)
	return m, nil
}

// Mode returns the manager's mode.
func (m *Manager) Mode() Mode { return m.mode }

func (m *Manager) issue(owner script.ID) *Token {
	m.lastTok++
	return &Token{id: m.lastTok, owner: owner}
}

// NewToken issues the execution context for owner. In shared mode this is
// the process-wide token.
func (m *Manager) NewToken(owner script.ID) *Token {
	m.tokMu.Lock()
	defer m.tokMu.Unlock()

	if tok, ok := m.owners[owner]; ok {
		return tok
	}
	tok := m.process
	if m.mode == ModeIsolated {
		tok = m.issue(owner)
	}
	m.owners[owner] = tok
	return tok
}

// TokenFor returns owner's live token.
func (m *Manager) TokenFor(owner script.ID) (*Token, bool) {
	m.tokMu.Lock()
	defer m.tokMu.Unlock()
	tok, ok := m.owners[owner]
	return tok, ok
}

// Revoke invalidates owner's context. Queued work for owner is discarded on
// the next drain and further swaps to it fail.
func (m *Manager) Revoke(owner script.ID) {
	m.tokMu.Lock()
	defer m.tokMu.Unlock()

	tok, ok := m.owners[owner]
	if !ok {
		return
	}
	delete(m.owners, owner)
	if tok != m.process {
		tok.revoked.Store(true)
	}
}

// MainThread returns a thread whose current context is the process token.
func (m *Manager) MainThread() *Thread {
	return &Thread{current: m.process}
}

// NewThread returns a thread with no current context.
func (m *Manager) NewThread() *Thread {
	return &Thread{}
}

// Invoke runs fn on thread with token as the active context. The
// serialization lock is held for the duration; a thread that already holds
// it re-enters without blocking. In isolated mode the thread's previous
// context is restored afterwards, even if fn panics.
func (m *Manager) Invoke(ctx context.Context, thread *Thread, token *Token, fn func(context.Context) error) error {
	if thread == nil {
		thread = m.NewThread()
	}
	if m.mode == ModeIsolated {
		if !thread.current.Valid() {
			return ErrNoCurrentContext(token.Owner())
		}
		if !token.Valid() {
			return ErrRevokedToken(token.Owner())
		}
	}

	if !thread.holding {
		m.lock.Lock()
		thread.holding = true
		defer func() {
			thread.holding = false
			m.lock.Unlock()
		}()
	}

	if m.mode == ModeIsolated {
		prev := thread.current
		thread.current = token
		defer func() { thread.current = prev }()
	}

	return fn(WithThread(ctx, thread))
}

// Enter runs fn in owner's context on the thread carried by ctx. It
// satisfies the dispatcher's Invoker.
func (m *Manager) Enter(ctx context.Context, owner script.ID, fn func(context.Context) error) error {
	thread := ThreadFrom(ctx)
	tok, ok := m.TokenFor(owner)
	if !ok {
		if m.mode == ModeIsolated {
			if thread == nil || !thread.current.Valid() {
				return ErrNoCurrentContext(owner)
			}
			return ErrRevokedToken(owner)
		}
		tok = m.process
	}
	if thread == nil && m.mode == ModeShared {
		thread = m.MainThread()
	}
	return m.Invoke(ctx, thread, tok, fn)
}

// Locked runs fn under the serialization lock without changing context.
func (m *Manager) Locked(ctx context.Context, fn func(context.Context) error) error {
	thread := ThreadFrom(ctx)
	if thread == nil {
		thread = m.NewThread()
	}
	if !thread.holding {
		m.lock.Lock()
		thread.holding = true
		defer func() {
			thread.holding = false
			m.lock.Unlock()
		}()
	}
	return fn(WithThread(ctx, thread))
}

// Post queues fn to run in owner's context on the next Drain. It may be
// called from any goroutine and never runs fn itself.
func (m *Manager) Post(owner script.ID, fn func(context.Context) error) error {
	if m.closed.Load() {
		return ErrManagerClosed()
	}
	select {
	case m.queue <- work{owner: owner, fn: fn}:
		queueDepth.Set(float64(len(m.queue)))
		return nil
	default:
		return ErrQueueFull(owner, cap(m.queue))
	}
}

// Pending returns the number of queued items.
func (m *Manager) Pending() int { return len(m.queue) }

// Drain runs the work queued before the call, each item in its owner's
// context on thread. Work for revoked owners is discarded. It returns the
// number of items run.
func (m *Manager) Drain(ctx context.Context, thread *Thread) int {
	ran := 0
	for n := len(m.queue); n > 0; n-- {
		w, ok := m.take()
		if !ok {
			break
		}
		if _, live := m.TokenFor(w.owner); !live {
			recordWork(outcomeDiscarded)
			continue
		}
		if err := m.run(ctx, thread, w); err != nil {
			if errutil.Code(err) == CodeWorkTimeout {
				recordWork(outcomeTimeout)
			} else {
				recordWork(outcomeFailed)
			}
			errutil.LogError(m.logger, "background work failed",
				oops.In("execctx").With("script_id", w.owner).With("operation", "drain").Wrap(err))
		} else {
			recordWork(outcomeRan)
		}
		ran++
	}
	queueDepth.Set(float64(len(m.queue)))
	return ran
}

func (m *Manager) take() (work, bool) {
	select {
	case w := <-m.queue:
		return w, true
	default:
		return work{}, false
	}
}

func (m *Manager) run(ctx context.Context, thread *Thread, w work) (err error) {
	if m.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.budget)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = oops.In("execctx").With("panic", r).Errorf("background work panicked: %v", r)
		}
	}()
	err = m.Enter(WithThread(ctx, thread), w.owner, w.fn)
	if err != nil && m.budget > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrWorkTimeout(w.owner, m.budget, err)
	}
	return err
}

// Close rejects further posts. Items already queued stay drainable.
func (m *Manager) Close() {
	m.closed.Store(true)
}
