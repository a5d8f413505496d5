package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEntryMarshalText(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewTextMessage("u1", "hello", ts)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var probe map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &probe))
	assert.Equal(t, "text", probe["type"])
	assert.Equal(t, "u1", probe["sender"])
	assert.Equal(t, "hello", probe["content"])
	assert.NotContains(t, probe, "assertionId")
}

func TestMessageEntryMarshalAssertion(t *testing.T) {
	m := NewAssertionRef(42)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var probe map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &probe))
	assert.Equal(t, "assertion", probe["type"])
	assert.Equal(t, float64(42), probe["assertionId"])
	assert.NotContains(t, probe, "sender")
	assert.NotContains(t, probe, "content")
}

func TestMessageEntryRoundTripText(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	original := NewTextMessage("u2", "round trip", ts)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded MessageEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "text", decoded.Type)
	assert.Equal(t, "u2", decoded.Sender)
	assert.Equal(t, "round trip", decoded.Content)
	assert.True(t, ts.Equal(decoded.Timestamp))
}

func TestMessageEntryRoundTripAssertion(t *testing.T) {
	original := NewAssertionRef(7)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded MessageEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "assertion", decoded.Type)
	assert.Equal(t, int64(7), decoded.AssertionID)
}

func TestMessageEntryUnmarshalUnknownType(t *testing.T) {
	var decoded MessageEntry
	err := json.Unmarshal([]byte(`{"type":"poll"}`), &decoded)
	assert.Error(t, err)
}

func TestMessageEntryMarshalUnknownType(t *testing.T) {
	m := MessageEntry{Type: "poll"}
	_, err := json.Marshal(m)
	assert.Error(t, err)
}

func TestMessageEntryDefaultTypeMarshalsAsText(t *testing.T) {
	m := MessageEntry{Sender: "u3", Content: "implicit text"}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"text"`)
}
