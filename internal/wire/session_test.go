package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient drives the client side of the handshake described in
// spec §4.1/§6 over one end of a net.Pipe, giving tests a peer to
// exchange encrypted frames with without standing up a real listener.
type testClient struct {
	conn net.Conn
	key  []byte
	gcm  cipher.AEAD
}

func dialTestClient(t *testing.T, conn net.Conn) *testClient {
	t.Helper()

	pubPEM, err := ReadFrame(conn)
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
	require.NoError(t, WriteFrame(conn, ciphertext))

	// naked nonce frame; its content carries no meaning for the client.
	_, err = ReadFrame(conn)
	require.NoError(t, err)

	block2, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(block2, nonceSize)
	require.NoError(t, err)

	return &testClient{conn: conn, key: key, gcm: gcm}
}

func (c *testClient) send(t *testing.T, plaintext []byte) {
	t.Helper()
	nonce := make([]byte, nonceSize)
	_, err := rand.Read(nonce)
	require.NoError(t, err)
	sealed := c.gcm.Seal(nil, nonce, plaintext, nil)
	require.NoError(t, WriteFrame(c.conn, append(nonce, sealed...)))
}

func (c *testClient) recv(t *testing.T) []byte {
	t.Helper()
	frame, err := ReadFrame(c.conn)
	require.NoError(t, err)
	require.True(t, len(frame) >= nonceSize)
	nonce, sealed := frame[:nonceSize], frame[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	require.NoError(t, err)
	return plaintext
}

func acceptPair(t *testing.T) (*Session, *testClient) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})

	type result struct {
		sess *Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		s, err := Accept(serverConn)
		done <- result{s, err}
	}()

	client := dialTestClient(t, clientConn)

	r := <-done
	require.NoError(t, r.err)
	require.NotNil(t, r.sess)
	return r.sess, client
}

func TestAcceptCompletesHandshake(t *testing.T) {
	sess, _ := acceptPair(t)
	assert.NotEmpty(t, sess.ConnID)
	assert.Equal(t, "", sess.UserID)
}

func TestSessionSendIsReadableByClient(t *testing.T) {
	sess, client := acceptPair(t)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Send([]byte("pongpong")) }()

	got := client.recv(t)
	assert.Equal(t, []byte("pongpong"), got)
	require.NoError(t, <-errCh)
}

func TestSessionRecvDecryptsClientFrame(t *testing.T) {
	sess, client := acceptPair(t)

	go client.send(t, []byte("userTOKEN123"))

	got, err := sess.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("userTOKEN123"), got)
}

func TestSessionRecvRejectsTamperedFrame(t *testing.T) {
	sess, client := acceptPair(t)

	go func() {
		nonce := make([]byte, nonceSize)
		_, _ = rand.Read(nonce)
		sealed := client.gcm.Seal(nil, nonce, []byte("payload"), nil)
		sealed[0] ^= 0xFF // corrupt the ciphertext so the GCM tag fails
		_ = WriteFrame(client.conn, append(nonce, sealed...))
	}()

	_, err := sess.Recv()
	assert.Error(t, err)
}

func TestAcceptFailsOnShortEncryptedKeyFrame(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := Accept(serverConn)
		done <- err
	}()

	_, err := ReadFrame(clientConn) // drain the pubkey frame
	require.NoError(t, err)

	go func() {
		for i := 0; i < maxShortReads; i++ {
			_ = WriteFrame(clientConn, []byte("short"))
		}
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not fail on short handshake body")
	}
}
