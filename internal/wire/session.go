package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

const (
	handshakeTimeout = 5 * time.Second
	rsaKeyBits       = 2048
	nonceSize        = 16
	maxShortReads    = 5
)

// Session is one accepted TCP connection: its framing, its AES-GCM
// session key once the handshake completes, and the userId the
// connection authenticates as once the "user" handler succeeds.
//
// This is the Go shape of the spec's transient Session record
// (remoteAddress, socket, sessionKey, authenticatedUserId).
type Session struct {
	ConnID     string
	RemoteAddr string

	conn      net.Conn
	sessionKey []byte

	UserID string // empty until authentication succeeds
}

// Accept wraps a freshly accepted connection, sets TCP_NODELAY, and
// runs the server-driven RSA/AES-GCM handshake described in spec §4.1
// and §6. On any failure the returned error is fatal: callers must
// close the connection and give up on this session.
func Accept(conn net.Conn) (*Session, error) {
	setTCPOptions(conn)

	s := &Session{
		ConnID:     uuid.NewString(),
		RemoteAddr: conn.RemoteAddr().String(),
		conn:       conn,
	}

	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, fmt.Errorf("wire: set handshake deadline: %w", err)
	}

	rsaKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("wire: generate rsa key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal rsa public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	if err := WriteFrame(conn, pubPEM); err != nil {
		return nil, fmt.Errorf("wire: send public key: %w", err)
	}

	encryptedKey, err := readHandshakeBody(conn)
	if err != nil {
		return nil, fmt.Errorf("wire: read encrypted session key: %w", err)
	}

	sessionKey, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, rsaKey, encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: decrypt session key: %w", err)
	}
	if _, err := aes.NewCipher(sessionKey); err != nil {
		return nil, fmt.Errorf("wire: invalid aes session key length %d: %w", len(sessionKey), err)
	}
	s.sessionKey = sessionKey

	// Wire-compatibility quirk (spec §9 "Nonce discipline"): send a raw,
	// unencrypted u32(16) length header plus a fresh 16-byte nonce. This
	// nonce is never reused for any real frame and carries no security
	// meaning of its own - the session key from RSA-OAEP is what
	// actually secures the channel.
	nakedNonce := make([]byte, nonceSize)
	if _, err := rand.Read(nakedNonce); err != nil {
		return nil, fmt.Errorf("wire: generate naked nonce: %w", err)
	}
	var nonceHeader [4]byte
	binary.BigEndian.PutUint32(nonceHeader[:], uint32(nonceSize))
	if _, err := conn.Write(nonceHeader[:]); err != nil {
		return nil, fmt.Errorf("wire: send naked nonce header: %w", err)
	}
	if _, err := conn.Write(nakedNonce); err != nil {
		return nil, fmt.Errorf("wire: send naked nonce: %w", err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("wire: clear handshake deadline: %w", err)
	}

	return s, nil
}

// readHandshakeBody reads the client's 256-byte RSA-OAEP ciphertext,
// retrying up to maxShortReads times if fewer bytes arrive than
// expected, per spec §4.1 step 2.
func readHandshakeBody(conn net.Conn) ([]byte, error) {
	const expected = 256
	buf := make([]byte, 0, expected)
	for attempt := 0; attempt < maxShortReads; attempt++ {
		frame, err := ReadFrame(conn)
		if err != nil {
			return nil, err
		}
		buf = append(buf, frame...)
		if len(buf) >= expected {
			return buf[:expected], nil
		}
	}
	return nil, fmt.Errorf("wire: handshake body too short after %d attempts (%d bytes)", maxShortReads, len(buf))
}

// Recv reads and decrypts the next frame. A frame failing AEAD
// verification is a fatal session error per spec §4.1.
func (s *Session) Recv() ([]byte, error) {
	body, err := ReadFrame(s.conn)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return body, nil
	}
	return s.decrypt(body)
}

// Send encrypts data with a fresh random nonce and writes it as one
// frame.
func (s *Session) Send(data []byte) error {
	body, err := s.encrypt(data)
	if err != nil {
		return err
	}
	return WriteFrame(s.conn, body)
}

func (s *Session) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.sessionKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// encrypt produces nonce(16) ‖ ciphertext ‖ tag(16).
func (s *Session) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// decrypt splits nonce(16) ‖ ciphertext ‖ tag(16) and verifies the
// authentication tag.
func (s *Session) decrypt(body []byte) ([]byte, error) {
	if len(body) < nonceSize+16 {
		return nil, fmt.Errorf("wire: frame too short to contain nonce and tag")
	}
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := body[:nonceSize]
	sealed := body[nonceSize:]
	return gcm.Open(nil, nonce, sealed, nil)
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
