package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/rendezvous/internal/models"
)

type fakeConn struct {
	mu    sync.Mutex
	alive bool
	msgs  []models.SignalMessage
}

func newFakeConn() *fakeConn {
	return &fakeConn{alive: true}
}

func (f *fakeConn) Send(msg models.SignalMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive {
		return false
	}
	f.msgs = append(f.msgs, msg)
	return true
}

func (f *fakeConn) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeConn) kill() {
	f.mu.Lock()
	f.alive = false
	f.mu.Unlock()
}

func TestRegisterAndLookup(t *testing.T) {
	reg := New()

	conn := newFakeConn()
	ep, replaced, err := reg.Register("alice@example.com", conn)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, "alice@example.com", ep.Identifier)

	assert.Same(t, ep, reg.Lookup("alice@example.com"))
	assert.Nil(t, reg.Lookup("bob@example.com"))
}

func TestRegisterDuplicateWhileLive(t *testing.T) {
	reg := New()

	_, _, err := reg.Register("alice@example.com", newFakeConn())
	require.NoError(t, err)

	_, _, err = reg.Register("alice@example.com", newFakeConn())
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
}

func TestRegisterReplacesDeadConnection(t *testing.T) {
	reg := New()

	stale := newFakeConn()
	_, replaced, err := reg.Register("alice@example.com", stale)
	require.NoError(t, err)
	assert.False(t, replaced)
	stale.kill()

	fresh := newFakeConn()
	ep, replaced, err := reg.Register("alice@example.com", fresh)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Same(t, ep, reg.Lookup("alice@example.com"))
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := New()

	_, _, err := reg.Register("alice@example.com", newFakeConn())
	require.NoError(t, err)

	reg.Remove("alice@example.com")
	assert.Nil(t, reg.Lookup("alice@example.com"))

	// Second remove and removes of unknowns are no-ops
	reg.Remove("alice@example.com")
	reg.Remove("nobody@example.com")
}

func TestRemoveIfGuardsStaleConnections(t *testing.T) {
	reg := New()

	stale := newFakeConn()
	_, _, err := reg.Register("alice@example.com", stale)
	require.NoError(t, err)
	stale.kill()

	fresh := newFakeConn()
	_, _, err = reg.Register("alice@example.com", fresh)
	require.NoError(t, err)

	// The stale connection's teardown must not evict the new registration
	assert.False(t, reg.RemoveIf("alice@example.com", stale))
	assert.NotNil(t, reg.Lookup("alice@example.com"))

	assert.True(t, reg.RemoveIf("alice@example.com", fresh))
	assert.Nil(t, reg.Lookup("alice@example.com"))
}

func TestListOthersKeepsRegistrationOrder(t *testing.T) {
	reg := New()

	for _, id := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, _, err := reg.Register(id, newFakeConn())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"a@example.com", "c@example.com"}, reg.ListOthers("b@example.com"))
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, reg.List())

	reg.Remove("a@example.com")
	_, _, err := reg.Register("a@example.com", newFakeConn())
	require.NoError(t, err)
	assert.Equal(t, []string{"b@example.com", "c@example.com", "a@example.com"}, reg.List())
}

func TestSetPeer(t *testing.T) {
	reg := New()

	_, _, err := reg.Register("alice@example.com", newFakeConn())
	require.NoError(t, err)

	reg.SetPeer("alice@example.com", "bob@example.com")
	assert.Equal(t, "bob@example.com", reg.Peer("alice@example.com"))

	reg.SetPeer("alice@example.com", "")
	assert.Empty(t, reg.Peer("alice@example.com"))

	// Unknown identifiers are ignored
	reg.SetPeer("nobody@example.com", "bob@example.com")
	assert.Empty(t, reg.Peer("nobody@example.com"))
}

func TestSendToOffline(t *testing.T) {
	reg := New()

	conn := newFakeConn()
	_, _, err := reg.Register("alice@example.com", conn)
	require.NoError(t, err)

	assert.True(t, reg.Send("alice@example.com", models.SignalMessage{Type: models.SignalTypeError}))
	assert.False(t, reg.Send("nobody@example.com", models.SignalMessage{Type: models.SignalTypeError}))
	assert.Len(t, conn.msgs, 1)
}
