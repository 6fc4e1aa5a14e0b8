package realtime

import (
	"errors"
	"testing"
)

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		enc      PayloadEncoding
		wantText string
		wantID   string
		wantName string
	}{
		{name: "plain text not base64", raw: `{"client_id":"u1","client_name":"neo","message":"Hello"}`, wantText: "Hello", wantID: "u1", wantName: "neo"},
		{name: "base64 padded", raw: `{"client_id":"u1","message":"SGVsbG8gd29ybGQ="}`, wantText: "Hello world", wantID: "u1"},
		{name: "base64 unpadded", raw: `{"client_id":"u1","message":"SGVsbG8"}`, wantText: "Hello"},
		{name: "base64 utf8", raw: `{"message":"0J/RgNC40LLQtdGC"}`, wantText: "Привет"},
		{name: "text with spaces stays literal", raw: `{"message":"good morning all"}`, wantText: "good morning all"},
		{name: "byte array", raw: `{"message":[72,101,108,108,111]}`, wantText: "Hello"},
		{name: "buffer object", raw: `{"message":{"type":"Buffer","data":[72,105]}}`, wantText: "Hi"},
		{name: "invalid utf8 is replaced", raw: `{"message":[72,255,105]}`, wantText: "H\uFFFDi"},
		{name: "bom dropped", raw: `{"message":[239,187,191,79,75]}`, wantText: "OK"},
		{name: "numeric sender id", raw: `{"client_id":42,"client_name":"x","message":"Hello"}`, wantText: "Hello", wantID: "42", wantName: "x"},
		{name: "number payload", raw: `{"message":12345}`, wantText: "12345"},
		{name: "surrounding whitespace trimmed", raw: `{"message":"  Hello \n"}`, wantText: "Hello"},
		{name: "whitespace only is empty", raw: `{"message":"   "}`, wantText: ""},
		{name: "empty array is empty", raw: `{"message":[]}`, wantText: ""},
		{name: "text encoding keeps base64 literal", raw: `{"message":"SGVsbG8="}`, enc: EncodingText, wantText: "SGVsbG8="},
		{name: "base64 encoding", raw: `{"message":"SGk="}`, enc: EncodingBase64, wantText: "Hi"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			enc := tc.enc
			if enc == "" {
				enc = EncodingAuto
			}
			got, err := DecodeFrame([]byte(tc.raw), enc)
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if got.Text != tc.wantText {
				t.Fatalf("text = %q, want %q", got.Text, tc.wantText)
			}
			if tc.wantID != "" && got.SenderID != tc.wantID {
				t.Fatalf("sender id = %q, want %q", got.SenderID, tc.wantID)
			}
			if tc.wantName != "" && got.SenderName != tc.wantName {
				t.Fatalf("sender name = %q, want %q", got.SenderName, tc.wantName)
			}
		})
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		enc  PayloadEncoding
		want error
	}{
		{name: "token sentinel", raw: "error.token", want: ErrInvalidToken},
		{name: "not json", raw: "hello there", want: ErrDecode},
		{name: "missing message", raw: `{"client_id":"u1"}`, want: ErrDecode},
		{name: "null message", raw: `{"message":null}`, want: ErrDecode},
		{name: "byte out of range", raw: `{"message":[72,300]}`, want: ErrDecode},
		{name: "non-integer bytes", raw: `{"message":[1.5]}`, want: ErrDecode},
		{name: "unknown object", raw: `{"message":{"type":"Blob"}}`, want: ErrDecode},
		{name: "object sender id", raw: `{"client_id":{"a":1},"message":"x"}`, want: ErrDecode},
		{name: "strict base64 rejects text", raw: `{"message":"Hello"}`, enc: EncodingBase64, want: ErrDecode},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			enc := tc.enc
			if enc == "" {
				enc = EncodingAuto
			}
			_, err := DecodeFrame([]byte(tc.raw), enc)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeFrame_SentinelMustMatchExactly(t *testing.T) {
	t.Parallel()

	_, err := DecodeFrame([]byte(" error.token"), EncodingAuto)
	if errors.Is(err, ErrInvalidToken) {
		t.Fatalf("padded sentinel must not be treated as the token error")
	}
}

func TestDecodeFrame_Idempotent(t *testing.T) {
	t.Parallel()

	frames := []string{
		`{"message":"SGVsbG8="}`,
		`{"message":"Hello"}`,
		`{"message":[72,101,108,108,111]}`,
		`{"message":{"type":"Buffer","data":[200,201]}}`,
	}
	for _, raw := range frames {
		a, errA := DecodeFrame([]byte(raw), EncodingAuto)
		b, errB := DecodeFrame([]byte(raw), EncodingAuto)
		if (errA == nil) != (errB == nil) || a != b {
			t.Fatalf("decode of %s not idempotent: %+v/%v vs %+v/%v", raw, a, errA, b, errB)
		}
	}
}

func TestParsePayloadEncoding(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]PayloadEncoding{"": EncodingAuto, "AUTO": EncodingAuto, " base64 ": EncodingBase64, "text": EncodingText} {
		got, err := ParsePayloadEncoding(in)
		if err != nil || got != want {
			t.Fatalf("ParsePayloadEncoding(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePayloadEncoding("utf16"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestNewMessageID_OrderedByTime(t *testing.T) {
	t.Parallel()

	a := NewMessageID(testTime(0))
	b := NewMessageID(testTime(0))
	c := NewMessageID(testTime(1))
	if len(a) != 26 {
		t.Fatalf("expected 26-char ULID, got %q", a)
	}
	if a == b {
		t.Fatalf("duplicate id %s", a)
	}
	if !(a < c && b < c) {
		t.Fatalf("ids not ordered by time: %s %s %s", a, b, c)
	}
}
