package calls

import (
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrBusy          = errors.New("participant already in a call")
	ErrNoPendingCall = errors.New("no pending call for pair")
)

// Table tracks every non-idle Call, keyed by both participants, and owns
// the per-call answer deadline. Methods hold the table lock while they
// mutate call state, so a deadline firing and an answer arriving for the
// same call resolve to exactly one terminal transition.
type Table struct {
	mu       sync.Mutex
	active   map[string]*Call
	timeout  time.Duration
	onExpire func(*Call)
	onLink   func(c *Call, linked bool)
}

func NewTable(timeout time.Duration) *Table {
	return &Table{
		active:  make(map[string]*Call),
		timeout: timeout,
	}
}

// OnExpire registers the callback invoked, outside the table lock, when
// an unanswered call hits its deadline. Must be set before Begin is used.
func (t *Table) OnExpire(fn func(*Call)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// OnLink registers the callback invoked under the table lock whenever a
// call enters the connected phase (linked=true) or leaves the table
// (linked=false). Peer bookkeeping belongs here so it cannot race a
// concurrent teardown. The callback must not call back into the table.
func (t *Table) OnLink(fn func(c *Call, linked bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLink = fn
}

// Begin creates a ringing Call between two idle participants and starts
// its answer deadline. Fails with ErrBusy if either side is already in a
// non-idle call.
func (t *Table) Begin(caller, callee string) (*Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.active[caller]; busy {
		return nil, ErrBusy
	}
	if _, busy := t.active[callee]; busy {
		return nil, ErrBusy
	}

	c := newCall(caller, callee)
	t.active[caller] = c
	t.active[callee] = c

	id := c.ID
	c.timer = time.AfterFunc(t.timeout, func() {
		t.expire(caller, id)
	})
	return c, nil
}

// Answer resolves the pending call initiated by caller toward callee.
// On accept the call moves to connected; on decline it is removed. Either
// way the answer deadline is cancelled. Fails with ErrNoPendingCall when
// there is no matching ringing call (a stale or duplicate answer), or
// when sid names a session other than the current one.
func (t *Table) Answer(callee, caller, sid string, accepted bool) (*Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.active[callee]
	if !ok || c.Caller != caller || c.Callee != callee || c.Phase() != StateRinging {
		return nil, ErrNoPendingCall
	}
	if sid != "" && sid != c.ID {
		return nil, ErrNoPendingCall
	}

	c.timer.Stop()
	if accepted {
		if err := c.fire(eventAccept); err != nil {
			return nil, err
		}
		c.ConnectedAt = time.Now()
		t.linkLocked(c, true)
		return c, nil
	}

	if err := c.fire(eventHangup); err != nil {
		return nil, err
	}
	t.removeLocked(c)
	return c, nil
}

// Establish confirms the connected state for a pair. It is idempotent:
// confirming an already-connected call is a no-op, and an unknown pair
// yields ErrNoPendingCall.
func (t *Table) Establish(a, b string) (*Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.pairLocked(a, b)
	if c == nil {
		return nil, ErrNoPendingCall
	}
	if err := c.fire(eventEstablish); err != nil {
		return nil, err
	}
	c.timer.Stop()
	if c.ConnectedAt.IsZero() {
		c.ConnectedAt = time.Now()
	}
	t.linkLocked(c, true)
	return c, nil
}

// End terminates the call between a pair from any non-idle phase and
// cancels its deadline. It returns nil when the pair has no active call
// (an already-ended call, torn down idempotently) or when sid names a
// different session than the current one (a stale message from a prior
// call).
func (t *Table) End(a, b, sid string) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.pairLocked(a, b)
	if c == nil {
		return nil
	}
	if sid != "" && sid != c.ID {
		log.Printf("Ignoring call-ended for stale session %s (current %s)", sid, c.ID)
		return nil
	}

	c.timer.Stop()
	if err := c.fire(eventHangup); err != nil {
		return nil
	}
	t.removeLocked(c)
	return c
}

// Drop terminates whatever call the identifier is part of, in any phase.
// Used on disconnect; returns nil when the identifier was idle.
func (t *Table) Drop(identifier string) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.active[identifier]
	if !ok {
		return nil
	}

	c.timer.Stop()
	if err := c.fire(eventHangup); err != nil {
		return nil
	}
	t.removeLocked(c)
	return c
}

// PairPhase returns the phase of the call between a pair, or "" when the
// pair is idle.
func (t *Table) PairPhase(a, b string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c := t.pairLocked(a, b); c != nil {
		return c.Phase()
	}
	return ""
}

// Lookup returns the call the identifier is part of, or nil when idle.
func (t *Table) Lookup(identifier string) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[identifier]
}

// expire is the deadline path. The session ID guards against the timer
// racing a cancellation: if the call was answered, ended, or replaced by
// a newer session before the lock was acquired, the expiry is void.
func (t *Table) expire(caller, sid string) {
	t.mu.Lock()

	c, ok := t.active[caller]
	if !ok || c.ID != sid || c.Phase() != StateRinging {
		t.mu.Unlock()
		return
	}

	if err := c.fire(eventExpire); err != nil {
		t.mu.Unlock()
		return
	}
	t.removeLocked(c)
	fn := t.onExpire
	t.mu.Unlock()

	if fn != nil {
		fn(c)
	}
}

func (t *Table) linkLocked(c *Call, linked bool) {
	if t.onLink != nil {
		t.onLink(c, linked)
	}
}

func (t *Table) pairLocked(a, b string) *Call {
	c, ok := t.active[a]
	if !ok || !c.Has(b) {
		return nil
	}
	return c
}

func (t *Table) removeLocked(c *Call) {
	delete(t.active, c.Caller)
	delete(t.active, c.Callee)
	t.linkLocked(c, false)
}
