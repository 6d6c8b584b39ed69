package router

import (
	"errors"
	"log"

	"github.com/mossy-p/rendezvous/internal/calls"
	"github.com/mossy-p/rendezvous/internal/identity"
	"github.com/mossy-p/rendezvous/internal/metrics"
	"github.com/mossy-p/rendezvous/internal/models"
	"github.com/mossy-p/rendezvous/internal/redis"
	"github.com/mossy-p/rendezvous/internal/registry"
)

// Router translates inbound signal messages into registry and call-table
// mutations plus outbound sends. It holds no state of its own; everything
// it consults is injected at construction.
type Router struct {
	registry *registry.Registry
	calls    *calls.Table
	metrics  *metrics.Collector
	mirror   *redis.PresenceMirror
}

// New wires a Router over the given registry and call table. The metrics
// collector and presence mirror may be nil.
func New(reg *registry.Registry, table *calls.Table, m *metrics.Collector, mirror *redis.PresenceMirror) *Router {
	r := &Router{
		registry: reg,
		calls:    table,
		metrics:  m,
		mirror:   mirror,
	}
	table.OnExpire(r.callExpired)
	table.OnLink(r.callLinked)
	return r
}

// Register handles a register message from a not-yet-registered
// connection. Failures are replied on the connection as error messages
// and leave it open. Returns the registered identifier and whether
// registration succeeded.
func (r *Router) Register(conn registry.Sender, email string) (string, bool) {
	if !identity.IsValid(email) {
		conn.Send(models.SignalMessage{
			Type:    models.SignalTypeError,
			Message: "Invalid email format",
		})
		return "", false
	}

	_, replaced, err := r.registry.Register(email, conn)
	if err != nil {
		if errors.Is(err, registry.ErrDuplicateIdentifier) {
			conn.Send(models.SignalMessage{
				Type:    models.SignalTypeError,
				Message: "Email already in use",
			})
			return "", false
		}
		log.Printf("Failed to register %s: %v", email, err)
		conn.Send(models.SignalMessage{
			Type:    models.SignalTypeError,
			Message: "Registration failed",
		})
		return "", false
	}

	if replaced {
		// The previous connection died without its teardown running;
		// settle its affairs before this registration takes over.
		log.Printf("Replacing stale registration for %s", email)
		r.metrics.EndpointRemoved()
		r.dropCall(email)
	}

	r.mirror.Add(email)
	r.metrics.EndpointRegistered()
	log.Printf("User registered: %s", email)

	conn.Send(models.SignalMessage{
		Type:  models.SignalTypeRegistered,
		Email: email,
	})
	return email, true
}

// Dispatch routes one message from the registered endpoint `from`. The
// caller guarantees per-connection arrival order; Dispatch may run
// concurrently for different endpoints.
func (r *Router) Dispatch(from string, msg models.SignalMessage) {
	switch msg.Type {
	case models.SignalTypeRegister:
		r.registry.Send(from, models.SignalMessage{
			Type:    models.SignalTypeError,
			Message: "Already registered",
		})

	case models.SignalTypeCallRequest:
		r.handleCallRequest(from, msg.To)

	case models.SignalTypeCallAnswer:
		r.handleCallAnswer(from, msg)

	case models.SignalTypeCallEstablished:
		r.handleCallEstablished(from, msg.To)

	case models.SignalTypeCallEnded:
		r.handleCallEnded(from, msg)

	case models.SignalTypeSDPOffer, models.SignalTypeSDPAnswer, models.SignalTypeICECandidate:
		// Blind relay; requires a non-idle call for the pair. Late
		// candidates after teardown are expected and dropped quietly.
		if r.calls.PairPhase(from, msg.To) == "" {
			log.Printf("Dropping %s from %s to %s: no active call", msg.Type, from, msg.To)
			return
		}
		r.relay(from, msg)

	case models.SignalTypeMuteToggle, models.SignalTypeVideoToggle:
		if r.calls.PairPhase(from, msg.To) != calls.StateConnected {
			return
		}
		r.relay(from, msg)

	default:
		r.registry.Send(from, models.SignalMessage{
			Type:    models.SignalTypeError,
			Message: "Unknown message type: " + string(msg.Type),
		})
	}
}

func (r *Router) handleCallRequest(from, to string) {
	if r.registry.Lookup(to) == nil {
		r.metrics.CallFailed(models.ReasonNotOnline)
		r.registry.Send(from, models.SignalMessage{
			Type:   models.SignalTypeCallFailed,
			Reason: models.ReasonNotOnline,
		})
		return
	}

	c, err := r.calls.Begin(from, to)
	if err != nil {
		// Either side is mid-call; the busy endpoint is left untouched
		r.metrics.CallFailed(models.ReasonBusy)
		r.registry.Send(from, models.SignalMessage{
			Type:   models.SignalTypeCallFailed,
			Reason: models.ReasonBusy,
		})
		return
	}

	r.metrics.CallStarted()
	log.Printf("Call request from %s to %s (session %s)", from, to, c.ID)
	r.registry.Send(to, models.SignalMessage{
		Type: models.SignalTypeIncomingCall,
		From: from,
		SID:  c.ID,
	})
}

func (r *Router) handleCallAnswer(from string, msg models.SignalMessage) {
	accepted := msg.Accepted != nil && *msg.Accepted

	c, err := r.calls.Answer(from, msg.To, msg.SID, accepted)
	if err != nil {
		log.Printf("Ignoring call-answer from %s to %s: %v", from, msg.To, err)
		return
	}

	if accepted {
		r.metrics.CallConnected()
		log.Printf("Call accepted by %s (session %s)", from, c.ID)
	} else {
		r.metrics.CallEnded("declined", c.ConnectedAt)
		log.Printf("Call declined by %s (session %s)", from, c.ID)
	}

	r.registry.Send(msg.To, models.SignalMessage{
		Type:     models.SignalTypeCallAnswered,
		From:     from,
		Accepted: models.Bool(accepted),
		SID:      c.ID,
	})
}

func (r *Router) handleCallEstablished(from, to string) {
	c, err := r.calls.Establish(from, to)
	if err != nil {
		log.Printf("Ignoring call-established from %s to %s: %v", from, to, err)
		return
	}

	confirm := models.SignalMessage{
		Type: models.SignalTypeCallEstablished,
		From: c.Caller,
		To:   c.Callee,
		SID:  c.ID,
	}
	r.registry.Send(c.Caller, confirm)
	r.registry.Send(c.Callee, confirm)
	log.Printf("Call established between %s and %s", c.Caller, c.Callee)
}

func (r *Router) handleCallEnded(from string, msg models.SignalMessage) {
	reason := msg.Reason
	if reason == "" {
		reason = models.ReasonUserEnded
	}

	c := r.calls.End(from, msg.To, msg.SID)
	if c == nil {
		// Already idle; a second call-ended is ignored, not an error
		return
	}

	r.metrics.CallEnded(reason, c.ConnectedAt)

	// Best effort: an offline counterpart simply goes unnotified
	r.registry.Send(c.Other(from), models.SignalMessage{
		Type:   models.SignalTypeCallEnded,
		From:   from,
		To:     c.Other(from),
		Reason: reason,
		SID:    c.ID,
	})
	log.Printf("Call ended between %s and %s - Reason: %s", c.Caller, c.Callee, reason)
}

// Disconnect tears down everything the identifier owned: its registry
// entry, its presence mirror entry, and any call it was part of, with the
// surviving side notified exactly as if the endpoint had hung up. The
// connection handle guards against tearing down a newer registration that
// reused the identifier after this connection went stale; any call the
// stale connection left behind was already settled by the takeover.
func (r *Router) Disconnect(identifier string, conn registry.Sender) {
	if !r.registry.RemoveIf(identifier, conn) {
		return
	}
	r.mirror.Remove(identifier)
	r.metrics.EndpointRemoved()
	log.Printf("User disconnected: %s", identifier)

	r.dropCall(identifier)
}

// dropCall terminates whatever call the identifier was part of because
// its connection is gone, notifying the surviving side. Shared by the
// disconnect path and stale-registration replacement.
func (r *Router) dropCall(identifier string) {
	c := r.calls.Drop(identifier)
	if c == nil {
		return
	}

	other := c.Other(identifier)
	r.metrics.CallEnded(models.ReasonUserLogout, c.ConnectedAt)
	r.registry.Send(other, models.SignalMessage{
		Type:   models.SignalTypeCallEnded,
		From:   identifier,
		To:     other,
		Reason: models.ReasonUserLogout,
		SID:    c.ID,
	})
}

// callLinked runs under the call table's lock on every transition into
// connected and on every removal from the table, so the registry's peer
// references track the state machine without racing a teardown. It must
// not call back into the table.
func (r *Router) callLinked(c *calls.Call, linked bool) {
	if linked {
		r.registry.SetPeer(c.Caller, c.Callee)
		r.registry.SetPeer(c.Callee, c.Caller)
		return
	}
	r.registry.SetPeer(c.Caller, "")
	r.registry.SetPeer(c.Callee, "")
}

// callExpired runs when an unanswered call hits its deadline; the table
// has already moved it out of ringing, so both sides get exactly one
// timeout notice.
func (r *Router) callExpired(c *calls.Call) {
	r.metrics.CallEnded(models.ReasonTimeout, c.ConnectedAt)
	log.Printf("Call from %s to %s timed out (session %s)", c.Caller, c.Callee, c.ID)

	for _, id := range []string{c.Caller, c.Callee} {
		r.registry.Send(id, models.SignalMessage{
			Type:   models.SignalTypeCallEnded,
			From:   c.Other(id),
			To:     id,
			Reason: models.ReasonTimeout,
			SID:    c.ID,
		})
	}
}

// relay forwards a message verbatim to its target, stamping the sender.
func (r *Router) relay(from string, msg models.SignalMessage) {
	if !r.registry.Send(msg.To, models.SignalMessage{
		Type: msg.Type,
		From: from,
		To:   msg.To,
		Data: msg.Data,
	}) {
		log.Printf("Recipient %s not found for %s", msg.To, msg.Type)
	}
}
