package dispatch_test

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"predictrix/server/internal/dispatch"
	"predictrix/server/internal/wire"
)

// This file exercises dispatch.Dispatch against a real wire.Session,
// driving the client half of the handshake manually so the unknown
// command reply path (spec §4.2 scenario S2) is verified end-to-end
// through actual AES-GCM frames, not a bare struct.

func handshakeAsClient(t *testing.T, conn net.Conn) cipher.AEAD {
	t.Helper()
	pubPEM, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	block, _ := pem.Decode(pubPEM)
	require.NotNil(t, block)
	pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	pub := pubAny.(*rsa.PublicKey)

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, key, nil)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, ciphertext))

	_, err = wire.ReadFrame(conn) // naked nonce
	require.NoError(t, err)

	aesBlock, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(aesBlock, 16)
	require.NoError(t, err)
	return gcm
}

func TestDispatchUnknownCommandRepliesWhat(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	type acceptResult struct {
		sess *wire.Session
		err  error
	}
	acceptDone := make(chan acceptResult, 1)
	go func() {
		s, err := wire.Accept(serverConn)
		acceptDone <- acceptResult{s, err}
	}()

	gcm := handshakeAsClient(t, clientConn)
	r := <-acceptDone
	require.NoError(t, r.err)

	d := dispatch.New()

	replyDone := make(chan []byte, 1)
	go func() {
		frame, err := wire.ReadFrame(clientConn)
		require.NoError(t, err)
		nonce, sealed := frame[:16], frame[16:]
		plaintext, err := gcm.Open(nil, nonce, sealed, nil)
		require.NoError(t, err)
		replyDone <- plaintext
	}()

	cont := d.Dispatch(context.Background(), r.sess, []byte("zzzzpayload"))
	require.True(t, cont)

	reply := <-replyDone
	require.Equal(t, []byte("what"), reply)
}
