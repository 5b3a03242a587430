package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSend(t *testing.T) {
	session := New()
	require.NoError(t, session.Send([]byte("a")))
	assert.Equal(t, []byte("a"), <-session.Queue())

	session.Close()
	assert.ErrorIs(t, session.Send([]byte("b")), ErrClosed)

	// Close is idempotent.
	session.Close()
}

func TestSessionSaturation(t *testing.T) {
	session := New()
	for i := 0; i < QueueSize; i++ {
		require.NoError(t, session.Send([]byte(fmt.Sprintf("%v", i))))
	}
	assert.ErrorIs(t, session.Send([]byte("overflow")), ErrSaturated)

	// Draining one slot makes room again.
	<-session.Queue()
	assert.NoError(t, session.Send([]byte("ok")))
}

func TestRegistryBroadcast(t *testing.T) {
	registry := NewRegistry()
	healthy := New()
	closed := New()
	saturated := New()
	registry.Add(healthy)
	registry.Add(closed)
	registry.Add(saturated)

	closed.Close()
	for i := 0; i < QueueSize; i++ {
		require.NoError(t, saturated.Send([]byte("fill")))
	}

	// Broadcast reaches every healthy session and reports exactly the
	// sessions that could not take the message.
	failed := registry.Broadcast([]byte("hello"))
	assert.ElementsMatch(t, []string{closed.Id(), saturated.Id()}, failed)
	assert.Equal(t, []byte("hello"), <-healthy.Queue())

	// Pruning the failed ids leaves the healthy session in place.
	for _, id := range failed {
		registry.Remove(id)
	}
	assert.Equal(t, 1, registry.Len())
	_, ok := registry.Get(healthy.Id())
	assert.True(t, ok)
}

func TestRegistrySend(t *testing.T) {
	registry := NewRegistry()
	session := New()
	registry.Add(session)

	require.NoError(t, registry.Send(session.Id(), []byte("direct")))
	assert.Equal(t, []byte("direct"), <-session.Queue())

	assert.ErrorIs(t, registry.Send("no-such-id", []byte("x")), ErrNotFound)
}

func TestRegistryRemove(t *testing.T) {
	registry := NewRegistry()
	session := New()
	registry.Add(session)
	registry.Remove(session.Id())

	// Removal closes the session so its server loop unblocks.
	select {
	case <-session.Done():
	default:
		t.Fatal("expected removed session to be closed")
	}
	assert.Equal(t, 0, registry.Len())

	// Removing an unknown id is a no-op.
	registry.Remove("no-such-id")
}

func TestRegistryCloseAll(t *testing.T) {
	registry := NewRegistry()
	first := New()
	second := New()
	registry.Add(first)
	registry.Add(second)

	registry.CloseAll()
	assert.Equal(t, 0, registry.Len())
	assert.ErrorIs(t, first.Send([]byte("x")), ErrClosed)
	assert.ErrorIs(t, second.Send([]byte("x")), ErrClosed)
}
