// Package wire implements the session layer: length-prefixed framing,
// the RSA-OAEP/AES-GCM handshake, and authenticated per-frame
// encryption. This is the Go-native replacement for the original
// server's socket.Connection (connection.py) and its key_exchange
// function (main.py), restructured around net.Conn the way the
// teacher's reference TCP server layers a Client over net.Conn.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const maxFrameSize = 16 << 20 // defends against a malformed length header

// ReadFrame reads one u32-big-endian-length-prefixed frame from r. A
// zero-length frame returns an empty, non-nil body.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return []byte{}, nil
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("wire: frame size %d exceeds maximum", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes body prefixed with its u32 big-endian length.
func WriteFrame(w io.Writer, body []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// setTCPOptions applies the low-latency socket tuning the spec
// requires (TCP_NODELAY) when conn is a *net.TCPConn.
func setTCPOptions(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
