package realtime

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"

	xunicode "golang.org/x/text/encoding/unicode"
)

// PayloadEncoding selects how string payloads are interpreted.
type PayloadEncoding string

const (
	// EncodingAuto tries Base64 first and falls back to the literal string.
	EncodingAuto PayloadEncoding = "auto"
	// EncodingBase64 requires string payloads to be Base64.
	EncodingBase64 PayloadEncoding = "base64"
	// EncodingText takes string payloads literally.
	EncodingText PayloadEncoding = "text"
)

// ParsePayloadEncoding parses a configured encoding name. Empty means auto.
func ParsePayloadEncoding(s string) (PayloadEncoding, error) {
	switch PayloadEncoding(strings.ToLower(strings.TrimSpace(s))) {
	case "", EncodingAuto:
		return EncodingAuto, nil
	case EncodingBase64:
		return EncodingBase64, nil
	case EncodingText:
		return EncodingText, nil
	default:
		return "", fmt.Errorf("%w: payload encoding %q", ErrConfig, s)
	}
}

// Frame is a decoded inbound envelope. Text is trimmed and may be empty,
// in which case the frame must not be delivered.
type Frame struct {
	SenderID   string
	SenderName string
	Text       string
}

// DecodeFrame runs one raw inbound frame through the decoding pipeline.
//
// It returns ErrInvalidToken for the reserved token error frame and a
// DecodeError for frames that are not a usable envelope. It is a pure function.
func DecodeFrame(raw []byte, enc PayloadEncoding) (Frame, error) {
	if string(raw) == v1.TokenErrorFrame {
		return Frame{}, ErrInvalidToken
	}

	var env v1.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, DecodeError{Reason: "envelope", Err: err}
	}
	if err := env.Validate(); err != nil {
		return Frame{}, DecodeError{Reason: "envelope", Err: err}
	}

	text, err := decodePayload(env.Message, enc)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		SenderID:   string(env.ClientID),
		SenderName: env.ClientName,
		Text:       trimText(text),
	}, nil
}

func decodePayload(raw json.RawMessage, enc PayloadEncoding) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", DecodeError{Reason: "message is null"}
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", DecodeError{Reason: "message string", Err: err}
		}
		return decodeString(s, enc)

	case '[':
		var vals []int
		if err := json.Unmarshal(raw, &vals); err != nil {
			return "", DecodeError{Reason: "message byte array", Err: err}
		}
		b, err := bytesFromInts(vals)
		if err != nil {
			return "", err
		}
		return lenientUTF8(b), nil

	case '{':
		var buf v1.BufferPayload
		if err := json.Unmarshal(raw, &buf); err != nil {
			return "", DecodeError{Reason: "message buffer", Err: err}
		}
		if buf.Type != "Buffer" {
			return "", DecodeError{Reason: fmt.Sprintf("unsupported message object type %q", buf.Type)}
		}
		b, err := bytesFromInts(buf.Data)
		if err != nil {
			return "", err
		}
		return lenientUTF8(b), nil

	default:
		// Numbers and booleans render as their JSON text.
		return string(raw), nil
	}
}

func decodeString(s string, enc PayloadEncoding) (string, error) {
	switch enc {
	case EncodingText:
		return s, nil
	case EncodingBase64:
		b, ok := decodeBase64(s)
		if !ok {
			return "", DecodeError{Reason: "message is not base64"}
		}
		return lenientUTF8(b), nil
	default:
		if b, ok := decodeBase64(s); ok {
			return lenientUTF8(b), nil
		}
		return s, nil
	}
}

// decodeBase64 accepts standard-alphabet Base64 with or without padding.
func decodeBase64(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}

	var (
		b   []byte
		err error
	)
	switch len(s) % 4 {
	case 0:
		b, err = base64.StdEncoding.DecodeString(s)
	case 1:
		return nil, false
	default:
		b, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, false
	}
	return b, true
}

func bytesFromInts(vals []int) ([]byte, error) {
	b := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return nil, DecodeError{Reason: fmt.Sprintf("byte %d out of range: %d", i, v)}
		}
		b[i] = byte(v)
	}
	return b, nil
}

// lenientUTF8 decodes b as UTF-8, replacing invalid sequences with U+FFFD and
// dropping a leading byte order mark.
func lenientUTF8(b []byte) string {
	out, err := xunicode.UTF8BOM.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

func trimText(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}
