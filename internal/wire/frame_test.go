package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameThenReadFrameRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestReadFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got)
	assert.NotNil(t, got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	// Write a length header claiming more than maxFrameSize, no body.
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrameShortBodyErrors(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0, 0, 0, 10}
	buf.Write(header)
	buf.WriteString("short")

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}
