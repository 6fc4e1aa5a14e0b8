package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"
)

const maxResponseBytes = 1 << 20 // 1MiB

// Request describes one REST call relative to the API base URL.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Response is a successful (2xx, JSON) REST response.
type Response struct {
	StatusCode int
	Status     string
	Message    string
	Data       json.RawMessage
}

// Decode unmarshals Response.Data into dst.
func (r *Response) Decode(dst any) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return errors.New("response has no data")
	}
	return json.Unmarshal(r.Data, dst)
}

// unauthenticated reports whether path is one of the endpoints that never carry a bearer token.
// Refresh and logout carry the refresh token in the body instead.
func unauthenticated(path string) bool {
	switch path {
	case v1.PathRegister, v1.PathLogin, v1.PathRefresh, v1.PathLogout:
		return true
	default:
		return false
	}
}

// do performs a single HTTP round-trip. bearer is attached when non-empty.
func (m *Manager) do(ctx context.Context, req Request, bearer string) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, req.Path, err)
		}
		body = bytes.NewReader(b)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, m.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, req.Path, err)
	}
	hreq.Header.Set("Accept", "application/json")
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		hreq.Header.Set("Authorization", "Bearer "+bearer)
	}

	hresp, err := m.httpc.Do(hreq)
	if err != nil {
		m.metrics.Request(req.Path, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, NetworkError{Method: method, Path: req.Path, Err: err}
	}
	defer func() { _ = hresp.Body.Close() }()

	m.metrics.Request(req.Path, hresp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(hresp.Body, maxResponseBytes))
	if err != nil {
		return nil, NetworkError{Method: method, Path: req.Path, Err: err}
	}

	if !isJSON(hresp.Header.Get("Content-Type")) {
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", hresp.StatusCode)
		}
		return nil, ServerError{Method: method, Path: req.Path, Status: hresp.StatusCode, Message: msg}
	}

	var wrapped v1.Response
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, ServerError{Method: method, Path: req.Path, Status: hresp.StatusCode, Message: "malformed JSON response"}
	}

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		msg := wrapped.Message
		if msg == "" {
			msg = wrapped.Status
		}
		return nil, ServerError{Method: method, Path: req.Path, Status: hresp.StatusCode, Message: msg}
	}

	return &Response{
		StatusCode: hresp.StatusCode,
		Status:     wrapped.Status,
		Message:    wrapped.Message,
		Data:       wrapped.Data,
	}, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// decodeTokenPair extracts a complete pair from an auth response.
func decodeTokenPair(resp *Response) (TokenPair, error) {
	var p v1.TokenPairPayload
	if err := resp.Decode(&p); err != nil {
		return TokenPair{}, ErrMissingToken
	}
	if strings.TrimSpace(p.AccessToken) == "" || strings.TrimSpace(p.RefreshToken) == "" {
		return TokenPair{}, ErrMissingToken
	}
	return TokenPair{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}, nil
}
