package calls

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Call phases. Idle is represented by the absence of a Call from the
// table; a Call only exists while a session is being negotiated or is
// active. The initiator sees the ringing phase as "calling", the target
// as "ringing" — one state, two viewpoints.
const (
	StateRinging   = "ringing"
	StateConnected = "connected"
	StateEnded     = "ended"
)

// State machine events
const (
	eventAccept    = "accept"
	eventEstablish = "establish"
	eventHangup    = "hangup"
	eventExpire    = "expire"
)

// Call is one potential or active session between a caller and a callee.
// The session ID disambiguates messages from a prior call between the
// same pair.
type Call struct {
	ID          string
	Caller      string
	Callee      string
	StartedAt   time.Time
	ConnectedAt time.Time

	machine *fsm.FSM
	timer   *time.Timer
}

func newCall(caller, callee string) *Call {
	c := &Call{
		ID:        uuid.New().String(),
		Caller:    caller,
		Callee:    callee,
		StartedAt: time.Now(),
	}
	c.machine = fsm.NewFSM(
		StateRinging,
		fsm.Events{
			{Name: eventAccept, Src: []string{StateRinging}, Dst: StateConnected},
			{Name: eventEstablish, Src: []string{StateRinging, StateConnected}, Dst: StateConnected},
			{Name: eventHangup, Src: []string{StateRinging, StateConnected}, Dst: StateEnded},
			{Name: eventExpire, Src: []string{StateRinging}, Dst: StateEnded},
		},
		nil,
	)
	return c
}

// Phase returns the current call phase.
func (c *Call) Phase() string {
	return c.machine.Current()
}

// Has reports whether the identifier is one of the call's participants.
func (c *Call) Has(identifier string) bool {
	return c.Caller == identifier || c.Callee == identifier
}

// Other returns the counterpart of the given participant.
func (c *Call) Other(identifier string) string {
	if c.Caller == identifier {
		return c.Callee
	}
	return c.Caller
}

func (c *Call) fire(event string) error {
	err := c.machine.Event(context.Background(), event)
	if err == nil {
		return nil
	}
	// Re-firing establish on a connected call is an expected no-op
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}
