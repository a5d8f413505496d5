package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// textMessageWire and assertionRefWire are the two concrete JSON
// shapes a MessageEntry can take on the wire and in the Chats.Messages
// JSON column.
type textMessageWire struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

type assertionRefWire struct {
	Type        string `json:"type"`
	AssertionID int64  `json:"assertionId"`
}

// MarshalJSON encodes a MessageEntry using an explicit "type"
// discriminant, never a numeric-looking-string heuristic.
func (m MessageEntry) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case "assertion":
		return json.Marshal(assertionRefWire{Type: "assertion", AssertionID: m.AssertionID})
	case "text", "":
		return json.Marshal(textMessageWire{
			Type:      "text",
			Sender:    m.Sender,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
			Content:   m.Content,
		})
	default:
		return nil, fmt.Errorf("domain: unknown message entry type %q", m.Type)
	}
}

// UnmarshalJSON decodes a MessageEntry by reading the "type" field
// first, then parsing the rest of the shape it names.
func (m *MessageEntry) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.Type {
	case "assertion":
		var w assertionRefWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		m.Type = "assertion"
		m.AssertionID = w.AssertionID
		return nil
	case "text":
		var w textMessageWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, w.Timestamp)
			if err != nil {
				return fmt.Errorf("domain: bad message timestamp %q: %w", w.Timestamp, err)
			}
		}
		m.Type = "text"
		m.Sender = w.Sender
		m.Timestamp = ts
		m.Content = w.Content
		return nil
	default:
		return fmt.Errorf("domain: unknown message entry type %q", probe.Type)
	}
}

// NewTextMessage builds a text MessageEntry.
func NewTextMessage(sender, content string, ts time.Time) MessageEntry {
	return MessageEntry{Type: "text", Sender: sender, Content: content, Timestamp: ts}
}

// NewAssertionRef builds an assertion-reference MessageEntry.
func NewAssertionRef(assertionID int64) MessageEntry {
	return MessageEntry{Type: "assertion", AssertionID: assertionID}
}
