package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the discriminator of a relay envelope
type MessageType string

const (
	TypeGetTabs          MessageType = "get-tabs"          // host -> peer
	TypeTabsList         MessageType = "tabs-list"         // peer -> host
	TypeActivateTab      MessageType = "activate-tab"      // host -> peer
	TypeTabActivated     MessageType = "tab-activated"     // peer -> host, informational
	TypeConnectionStatus MessageType = "connection-status" // peer -> host, informational
)

var (
	ErrMalformed   = errors.New("malformed relay envelope")
	ErrUnknownType = errors.New("unknown relay message type")
)

// Valid reports whether t is one of the fixed protocol types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeGetTabs, TypeTabsList, TypeActivateTab, TypeTabActivated, TypeConnectionStatus:
		return true
	}
	return false
}

// Envelope is the wire message shared by host and peer
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Tab describes one browser tab as reported by the peer
type Tab struct {
	TabID    int    `json:"tabId"`
	WindowID int    `json:"windowId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

// TabsListPayload is the payload of tabs-list
type TabsListPayload struct {
	Tabs []Tab `json:"tabs"`
}

// ActivateTabPayload is the payload of activate-tab and tab-activated
type ActivateTabPayload struct {
	TabID    int `json:"tabId"`
	WindowID int `json:"windowId"`
}

// ConnectionStatusPayload is the payload of connection-status
type ConnectionStatusPayload struct {
	Connected bool `json:"connected"`
}

// Encode builds a wire envelope. A nil payload omits the payload field.
func Encode(t MessageType, payload any) ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	env := Envelope{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
		}
		env.Payload = raw
	}

	return json.Marshal(env)
}

// Decode parses one envelope. Surrounding whitespace, including the newline
// of newline-delimited framing, is ignored.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return env, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !env.Type.Valid() {
		return env, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	return env, nil
}

// DecodeTabs extracts the tab list of a tabs-list envelope. A missing tabs
// array yields an empty, non-nil slice.
func DecodeTabs(env Envelope) ([]Tab, error) {
	if env.Type != TypeTabsList {
		return nil, fmt.Errorf("expected %s, got %s", TypeTabsList, env.Type)
	}

	var payload TabsListPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: tabs-list payload: %v", ErrMalformed, err)
		}
	}
	if payload.Tabs == nil {
		payload.Tabs = []Tab{}
	}

	return payload.Tabs, nil
}

// DecodeActivation extracts the tab reference of activate-tab or tab-activated.
func DecodeActivation(env Envelope) (ActivateTabPayload, error) {
	var payload ActivateTabPayload
	if len(env.Payload) == 0 {
		return payload, fmt.Errorf("%w: %s without payload", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return payload, nil
}

// DecodeConnectionStatus extracts the payload of connection-status.
func DecodeConnectionStatus(env Envelope) (ConnectionStatusPayload, error) {
	var payload ConnectionStatusPayload
	if len(env.Payload) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%w: connection-status payload: %v", ErrMalformed, err)
	}
	return payload, nil
}
