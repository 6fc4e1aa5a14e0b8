package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"

	"github.com/coder/websocket"
)

func testTime(ms int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(ms) * time.Millisecond)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// recorder collects handler events in order.
type recorder struct {
	mu   sync.Mutex
	seq  []string
	msgs []InboundMessage
	errs []error
}

func (r *recorder) events() Events {
	return Events{
		OnOpen: func() { r.add("open", nil, nil) },
		OnMessage: func(m InboundMessage) {
			r.add("message", &m, nil)
		},
		OnError: func(err error) { r.add("error", nil, err) },
		OnClose: func() { r.add("close", nil, nil) },
	}
}

func (r *recorder) add(kind string, m *InboundMessage, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = append(r.seq, kind)
	if m != nil {
		r.msgs = append(r.msgs, *m)
	}
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func (r *recorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.seq)
}

func (r *recorder) messages() []InboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

func (r *recorder) errList() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, k := range r.sequence() {
		if k == kind {
			n++
		}
	}
	return n
}

// channelServer is a fake rooms/ws endpoint.
type channelServer struct {
	*httptest.Server

	dials    atomic.Int32
	active   atomic.Int32
	received chan string
}

// newChannelServer starts a fake channel endpoint. serve runs per accepted
// connection; a nil serve reads until the client goes away.
func newChannelServer(t *testing.T, serve func(ctx context.Context, c *websocket.Conn)) *channelServer {
	t.Helper()

	cs := &channelServer{received: make(chan string, 64)}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.dials.Add(1)

		if r.URL.Path != "/api/v1"+v1.PathRoomsWS {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get(v1.QueryToken) == "bad" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if q.Get(v1.QueryRoom) == "" {
			http.Error(w, "room required", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		cs.active.Add(1)
		defer cs.active.Add(-1)

		if serve != nil {
			serve(r.Context(), c)
			return
		}
		cs.readAll(r.Context(), c)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *channelServer) readAll(ctx context.Context, c *websocket.Conn) {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		cs.received <- string(data)
	}
}

func (cs *channelServer) config(t *testing.T) Config {
	t.Helper()

	cfg, err := DefaultConfig(cs.URL + "/api/v1")
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	return cfg
}

func newTestHandler(t *testing.T, cs *channelServer, rec *recorder) *Handler {
	t.Helper()

	h := NewHandler(cs.config(t), rec.events())
	t.Cleanup(h.Disconnect)
	return h
}

func writeText(ctx context.Context, c *websocket.Conn, s string) error {
	return c.Write(ctx, websocket.MessageText, []byte(s))
}

func TestHandler_ConnectMissingCredentials(t *testing.T) {
	t.Parallel()

	cs := newChannelServer(t, nil)
	rec := &recorder{}
	h := newTestHandler(t, cs, rec)

	for _, tc := range [][2]string{{"", "tok"}, {"room", ""}, {"  ", "  "}} {
		if err := h.Connect(context.Background(), tc[0], tc[1]); !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("Connect(%q, %q) = %v, want ErrMissingCredentials", tc[0], tc[1], err)
		}
	}
	if got := cs.dials.Load(); got != 0 {
		t.Fatalf("expected no network attempt, got %d dials", got)
	}
	if h.State() != StateIdle || len(rec.sequence()) != 0 {
		t.Fatalf("state=%s events=%v", h.State(), rec.sequence())
	}
}

func TestHandler_DisconnectIdleIsNoop(t *testing.T) {
	t.Parallel()

	h := NewHandler(Config{URL: "ws://127.0.0.1:1/rooms/ws"}, Events{})
	h.Disconnect()
	h.Disconnect()

	if h.State() != StateIdle {
		t.Fatalf("state = %s", h.State())
	}
	if h.Send(context.Background(), "hi") {
		t.Fatalf("Send on idle handler must report false")
	}
}

func TestHandler_DeliversDecodedMessagesInOrder(t *testing.T) {
	t.Parallel()

	cs := newChannelServer(t, func(ctx context.Context, c *websocket.Conn) {
		for _, f := range []string{
			`{"client_id":1,"client_name":"ann","message":"SGVsbG8="}`,
			`{"client_id":2,"client_name":"bob","message":"   "}`,
			`not json at all`,
			`{"client_id":2,"client_name":"bob","message":[72,105]}`,
			`{"client_id":"3","client_name":"cy","message":"bye now"}`,
		} {
			if err := writeText(ctx, c, f); err != nil {
				return
			}
		}
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})

	rec := &recorder{}
	h := newTestHandler(t, cs, rec)

	if err := h.Connect(context.Background(), "42", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if h.State() != StateOpen || h.Room() != "42" {
		t.Fatalf("state=%s room=%q", h.State(), h.Room())
	}

	waitUntil(t, 2*time.Second, func() bool { return len(rec.messages()) == 3 })

	msgs := rec.messages()
	want := []struct{ id, name, text string }{{"1", "ann", "Hello"}, {"2", "bob", "Hi"}, {"3", "cy", "bye now"}}
	for i, w := range want {
		m := msgs[i]
		if m.SenderID != w.id || m.SenderName != w.name || m.Text != w.text || m.RoomID != "42" {
			t.Fatalf("message %d = %+v, want %+v", i, m, w)
		}
		if len(m.ID) != 26 || m.ReceivedAt.IsZero() {
			t.Fatalf("message %d missing id or timestamp: %+v", i, m)
		}
	}
	if seq := rec.sequence(); seq[0] != "open" || rec.count("error") != 0 {
		t.Fatalf("unexpected events: %v", seq)
	}
	if h.State() != StateOpen {
		t.Fatalf("decode failures must not close the channel, state=%s", h.State())
	}
}

func TestHandler_SendOnlyWhenOpen(t *testing.T) {
	t.Parallel()

	cs := newChannelServer(t, nil)
	rec := &recorder{}
	h := newTestHandler(t, cs, rec)

	if h.Send(context.Background(), "early") {
		t.Fatalf("Send before Connect must report false")
	}
	if err := h.Connect(context.Background(), "7", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !h.Send(context.Background(), "привет, мир") {
		t.Fatalf("Send on open channel must report true")
	}

	select {
	case got := <-cs.received:
		if got != "привет, мир" {
			t.Fatalf("server received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server received nothing")
	}

	h.Disconnect()
	if h.Send(context.Background(), "late") {
		t.Fatalf("Send after Disconnect must report false")
	}
	if h.State() != StateClosed {
		t.Fatalf("state = %s", h.State())
	}
}

func TestHandler_TokenSentinelTearsDown(t *testing.T) {
	t.Parallel()

	cs := newChannelServer(t, func(ctx context.Context, c *websocket.Conn) {
		_ = writeText(ctx, c, v1.TokenErrorFrame)
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})
	rec := &recorder{}
	h := newTestHandler(t, cs, rec)

	if err := h.Connect(context.Background(), "1", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return rec.count("close") == 1 })

	if seq := rec.sequence(); !slices.Equal(seq, []string{"open", "error", "close"}) {
		t.Fatalf("events = %v", seq)
	}
	if errs := rec.errList(); !errors.Is(errs[0], ErrInvalidToken) {
		t.Fatalf("error = %v", errs[0])
	}
	if len(rec.messages()) != 0 {
		t.Fatalf("sentinel must not be decoded as a message")
	}
	if h.State() != StateClosed {
		t.Fatalf("state = %s", h.State())
	}
	waitUntil(t, 2*time.Second, func() bool { return cs.active.Load() == 0 })
}

func TestHandler_CloseClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		close     func(c *websocket.Conn)
		wantSeq   []string
		wantError bool
	}{
		{
			name:      "no close frame is abnormal",
			close:     func(c *websocket.Conn) { _ = c.CloseNow() },
			wantSeq:   []string{"open", "error", "close"},
			wantError: true,
		},
		{
			name:    "normal closure is clean",
			close:   func(c *websocket.Conn) { _ = c.Close(websocket.StatusNormalClosure, "bye") },
			wantSeq: []string{"open", "close"},
		},
		{
			name:    "going away is clean",
			close:   func(c *websocket.Conn) { _ = c.Close(websocket.StatusGoingAway, "restart") },
			wantSeq: []string{"open", "close"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			release := make(chan struct{})
			cs := newChannelServer(t, func(ctx context.Context, c *websocket.Conn) {
				<-release
				tc.close(c)
			})
			rec := &recorder{}
			h := newTestHandler(t, cs, rec)

			if err := h.Connect(context.Background(), "9", "tok"); err != nil {
				close(release)
				t.Fatalf("Connect: %v", err)
			}
			close(release)

			waitUntil(t, 3*time.Second, func() bool { return rec.count("close") == 1 })

			if seq := rec.sequence(); !slices.Equal(seq, tc.wantSeq) {
				t.Fatalf("events = %v, want %v", seq, tc.wantSeq)
			}
			if tc.wantError {
				var ce ChannelError
				if err := rec.errList()[0]; !errors.As(err, &ce) || !errors.Is(err, ErrChannelUnavailable) || ce.Room != "9" {
					t.Fatalf("error = %v", err)
				}
			}
			if h.State() != StateClosed {
				t.Fatalf("state = %s", h.State())
			}
		})
	}
}

func TestHandler_HandshakeRejectedIsInvalidToken(t *testing.T) {
	t.Parallel()

	cs := newChannelServer(t, nil)
	rec := &recorder{}
	h := newTestHandler(t, cs, rec)

	err := h.Connect(context.Background(), "1", "bad")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if seq := rec.sequence(); !slices.Equal(seq, []string{"error", "close"}) {
		t.Fatalf("events = %v", seq)
	}
	if h.State() != StateFailed {
		t.Fatalf("state = %s", h.State())
	}
}

func TestHandler_UnreachableIsChannelUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	cfg, err := DefaultConfig(srv.URL)
	srv.Close()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	cfg.DialTimeout = time.Second

	rec := &recorder{}
	h := NewHandler(cfg, rec.events())

	err = h.Connect(context.Background(), "1", "tok")
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Fatalf("err = %v, want ErrChannelUnavailable", err)
	}
	if h.State() != StateFailed || rec.count("error") != 1 || rec.count("close") != 1 {
		t.Fatalf("state=%s events=%v", h.State(), rec.sequence())
	}
}

func TestHandler_ReconnectTearsDownPrior(t *testing.T) {
	t.Parallel()

	var serverClosed atomic.Int32
	cs := newChannelServer(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			if _, _, err := c.Read(ctx); err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					serverClosed.Add(1)
				}
				return
			}
		}
	})

	rec := &recorder{}
	h := newTestHandler(t, cs, rec)

	if err := h.Connect(context.Background(), "5", "tok"); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := h.Connect(context.Background(), "5", "tok"); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool { return serverClosed.Load() == 1 && cs.active.Load() == 1 })

	if seq := rec.sequence(); !slices.Equal(seq, []string{"open", "open"}) {
		t.Fatalf("replaced connection must not emit events, got %v", seq)
	}
	if cs.dials.Load() != 2 || h.State() != StateOpen {
		t.Fatalf("dials=%d state=%s", cs.dials.Load(), h.State())
	}
}

func TestHandler_NoEventsAfterDisconnect(t *testing.T) {
	t.Parallel()

	cs := newChannelServer(t, func(ctx context.Context, c *websocket.Conn) {
		ctx = c.CloseRead(ctx)
		for {
			if err := writeText(ctx, c, `{"client_id":1,"message":"tick tock"}`); err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	})
	rec := &recorder{}
	h := newTestHandler(t, cs, rec)

	if err := h.Connect(context.Background(), "3", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitUntil(t, 2*time.Second, func() bool { return len(rec.messages()) >= 3 })

	h.Disconnect()
	n := len(rec.sequence())
	time.Sleep(50 * time.Millisecond)

	if got := len(rec.sequence()); got != n {
		t.Fatalf("events after Disconnect: %d -> %d", n, got)
	}
	if rec.count("close") != 0 || rec.count("error") != 0 {
		t.Fatalf("Disconnect must not emit close/error: %v", rec.sequence())
	}
	h.Disconnect()
}

func TestHandler_DisconnectFromCallback(t *testing.T) {
	t.Parallel()

	cs := newChannelServer(t, func(ctx context.Context, c *websocket.Conn) {
		_ = writeText(ctx, c, `{"message":"stop here"}`)
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})

	var h *Handler
	done := make(chan struct{})
	h = NewHandler(cs.config(t), Events{
		OnMessage: func(m InboundMessage) {
			h.Disconnect()
			close(done)
		},
	})
	t.Cleanup(h.Disconnect)

	if err := h.Connect(context.Background(), "1", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Disconnect from a callback did not return")
	}
	if h.State() != StateClosed {
		t.Fatalf("state = %s", h.State())
	}
}

func TestHandler_DisconnectWaitsForRunningCallback(t *testing.T) {
	t.Parallel()

	cs := newChannelServer(t, func(ctx context.Context, c *websocket.Conn) {
		_ = writeText(ctx, c, `{"message":"slow reader"}`)
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	})

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var finished atomic.Bool
	h := NewHandler(cs.config(t), Events{
		OnMessage: func(InboundMessage) {
			close(entered)
			<-unblock
			finished.Store(true)
		},
	})
	t.Cleanup(h.Disconnect)

	if err := h.Connect(context.Background(), "1", "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatalf("OnMessage never ran")
	}

	returned := make(chan bool, 1)
	go func() {
		h.Disconnect()
		returned <- finished.Load()
	}()

	select {
	case <-returned:
		t.Fatalf("Disconnect returned while OnMessage was still running")
	case <-time.After(50 * time.Millisecond):
	}
	close(unblock)

	select {
	case done := <-returned:
		if !done {
			t.Fatalf("Disconnect returned before the callback finished")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Disconnect did not return after the callback finished")
	}
	if h.State() != StateClosed {
		t.Fatalf("state = %s", h.State())
	}
}

func TestGoroutineID(t *testing.T) {
	t.Parallel()

	self := goroutineID()
	if self == 0 || goroutineID() != self {
		t.Fatalf("goroutineID = %d, not stable", self)
	}
	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	if id := <-other; id == 0 || id == self {
		t.Fatalf("other goroutine id = %d, self = %d", id, self)
	}
}

func TestConfig_DialURLEscapesQuery(t *testing.T) {
	t.Parallel()

	cfg := Config{URL: "ws://example.test/api/v1/rooms/ws"}
	got, err := cfg.dialURL("r 1", "a&b=c")
	if err != nil {
		t.Fatalf("dialURL: %v", err)
	}
	if !strings.Contains(got, "room=r+1") || !strings.Contains(got, "token=a%26b%3Dc") {
		t.Fatalf("query not escaped: %s", got)
	}
}
