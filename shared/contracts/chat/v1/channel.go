package v1

import (
	"encoding/json"
	"errors"
	"strings"
)

// TokenErrorFrame is the reserved frame the server sends instead of an envelope
// when the channel token is rejected.
const TokenErrorFrame = "error.token"

// Channel query parameters (wire-stable).
const (
	QueryRoom  = "room"
	QueryToken = "token"
)

// InboundEnvelope is the canonical inbound channel frame.
//
// Message has no declared encoding: depending on the server build it carries
// plain text, Base64 text, a JSON byte array or a buffer object.
type InboundEnvelope struct {
	ClientID   SenderID        `json:"client_id"`
	ClientName string          `json:"client_name"`
	Message    json.RawMessage `json:"message"`
}

// Validate performs structural validation for an InboundEnvelope.
func (e InboundEnvelope) Validate() error {
	if len(e.Message) == 0 {
		return errors.New("missing field: message")
	}
	return nil
}

// SenderID accepts both string and numeric sender identifiers.
type SenderID string

// UnmarshalJSON keeps strings as-is and numbers (or other scalars) as their JSON text.
func (s *SenderID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "" || raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = SenderID(v)
		return nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return errors.New("client_id must be a scalar")
	}
	*s = SenderID(raw)
	return nil
}

// BufferPayload is the JSON rendition of a binary buffer: {"type":"Buffer","data":[...]}.
type BufferPayload struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}
