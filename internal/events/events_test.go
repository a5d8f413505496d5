package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a test Sender that records every frame it receives, in
// delivery order.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recorder) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	frame := append([]byte(nil), data...)
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recorder) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames))
	copy(out, r.frames)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestEmitDeliversToRegisteredRecipient(t *testing.T) {
	e := New(16)
	defer e.Shutdown()

	r := &recorder{}
	e.Register("u1", r)

	e.Emit(Event{Prefix: "newm", Data: []byte("hello"), Recipients: []string{"u1"}})

	waitFor(t, time.Second, func() bool { return len(r.snapshot()) == 1 })
	assert.Equal(t, []byte("newmhello"), r.snapshot()[0])
}

func TestEmitSkipsUnregisteredRecipients(t *testing.T) {
	e := New(16)
	defer e.Shutdown()

	r := &recorder{}
	e.Register("u1", r)

	e.Emit(Event{Prefix: "newm", Data: []byte("x"), Recipients: []string{"u2"}})
	e.Emit(Event{Prefix: "newm", Data: []byte("y"), Recipients: []string{"u1"}})

	waitFor(t, time.Second, func() bool { return len(r.snapshot()) == 1 })
	assert.Equal(t, []byte("newmy"), r.snapshot()[0])
}

func TestUnregisterStopsDelivery(t *testing.T) {
	e := New(16)
	defer e.Shutdown()

	r := &recorder{}
	e.Register("u1", r)
	e.Unregister("u1", r)

	e.Emit(Event{Prefix: "newm", Data: []byte("z"), Recipients: []string{"u1"}})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, r.snapshot())
}

func TestEventsDeliveredInOrderPerRecipient(t *testing.T) {
	e := New(64)
	defer e.Shutdown()

	r := &recorder{}
	e.Register("u1", r)

	for i := 0; i < 10; i++ {
		e.Emit(Event{Prefix: "n", Data: []byte{byte('0' + i)}, Recipients: []string{"u1"}})
	}

	waitFor(t, 2*time.Second, func() bool { return len(r.snapshot()) == 10 })
	frames := r.snapshot()
	for i, f := range frames {
		assert.Equal(t, byte('0'+i), f[1])
	}
}

func TestRegisterIsIdempotentForSameSender(t *testing.T) {
	e := New(16)
	defer e.Shutdown()

	r := &recorder{}
	e.Register("u1", r)
	e.Register("u1", r)

	e.Emit(Event{Prefix: "n", Data: []byte("once"), Recipients: []string{"u1"}})

	waitFor(t, time.Second, func() bool { return len(r.snapshot()) == 1 })
	assert.Len(t, r.snapshot(), 1)
}
