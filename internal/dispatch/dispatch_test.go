package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"predictrix/server/internal/wire"
)

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	d := New()
	var gotPayload string
	d.Register("ping", func(ctx context.Context, sess *wire.Session, payload string) bool {
		gotPayload = payload
		return true
	})

	cont := d.Dispatch(context.Background(), &wire.Session{}, []byte("pingHELLO"))
	assert.True(t, cont)
	assert.Equal(t, "HELLO", gotPayload)
}

func TestDispatchLowercasesCode(t *testing.T) {
	d := New()
	called := false
	d.Register("user", func(ctx context.Context, sess *wire.Session, payload string) bool {
		called = true
		return true
	})

	d.Dispatch(context.Background(), &wire.Session{}, []byte("USERtoken"))
	assert.True(t, called)
}

func TestDispatchHandlerReturnFalseIsFatal(t *testing.T) {
	d := New()
	d.Register("quit", func(ctx context.Context, sess *wire.Session, payload string) bool {
		return false
	})

	cont := d.Dispatch(context.Background(), &wire.Session{}, []byte("quit"))
	assert.False(t, cont)
}

func TestDispatchEmptyFrameIsFatal(t *testing.T) {
	d := New()
	cont := d.Dispatch(context.Background(), &wire.Session{}, []byte{})
	assert.False(t, cont)
}

func TestDispatchShortFrameIsFatal(t *testing.T) {
	d := New()
	cont := d.Dispatch(context.Background(), &wire.Session{}, []byte("abc"))
	assert.False(t, cont)
}

func TestRegisterRejectsNon4ByteCode(t *testing.T) {
	d := New()
	assert.Panics(t, func() {
		d.Register("toolong", func(ctx context.Context, sess *wire.Session, payload string) bool { return true })
	})
}

func TestRegisterRejectsDuplicateCode(t *testing.T) {
	d := New()
	h := func(ctx context.Context, sess *wire.Session, payload string) bool { return true }
	d.Register("dupe", h)
	assert.Panics(t, func() {
		d.Register("dupe", h)
	})
}
