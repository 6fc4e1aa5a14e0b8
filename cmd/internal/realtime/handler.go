package realtime

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stowh/ChatRoom/cmd/internal/metrics"
	"github.com/stowh/ChatRoom/cmd/security/token"

	"github.com/coder/websocket"
)

// State is the lifecycle state of a Handler.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InboundMessage is one delivered chat message.
type InboundMessage struct {
	ID         string
	RoomID     string
	SenderID   string
	SenderName string
	Text       string
	ReceivedAt time.Time
}

// Events are the Handler callbacks. Nil callbacks are skipped.
//
// Callbacks run on the connection's read goroutine (OnOpen and dial failures
// run on the goroutine calling Connect). They are delivered in receipt order.
type Events struct {
	OnOpen    func()
	OnMessage func(InboundMessage)
	OnError   func(error)
	OnClose   func()
}

// Handler owns at most one live channel connection.
//
// Connect replaces any prior connection. Disconnect is idempotent and no event
// fires after it returns, unless it was called from inside an event callback,
// in which case only that callback may still be running.
type Handler struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	httpc   *http.Client
	events  Events

	// connectMu serializes Connect calls.
	connectMu sync.Mutex

	mu    sync.Mutex
	state State
	gen   uint64
	conn  *channelConn
}

// Option customizes a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithHTTPClient sets the client used for the opening handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) { h.httpc = c }
}

// NewHandler constructs an idle Handler.
func NewHandler(cfg Config, events Events, opts ...Option) *Handler {
	h := &Handler{
		cfg:    cfg,
		log:    slog.New(slog.DiscardHandler),
		events: events,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.cfg.DialTimeout <= 0 {
		h.cfg.DialTimeout = defaultDialTimeout
	}
	if h.cfg.WriteTimeout <= 0 {
		h.cfg.WriteTimeout = defaultWriteTimeout
	}
	if h.cfg.ReadLimit <= 0 {
		h.cfg.ReadLimit = defaultReadLimit
	}
	return h
}

// State returns the current lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Room returns the room of the live connection, or "".
func (h *Handler) Room() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return ""
	}
	return h.conn.room
}

// Connect opens the channel for roomID, authenticating with accessToken.
//
// Empty credentials fail with ErrMissingCredentials before any network attempt.
// A prior connection on this handler is torn down first. Dial failures are
// emitted through OnError and OnClose and also returned.
func (h *Handler) Connect(ctx context.Context, roomID, accessToken string) error {
	roomID = strings.TrimSpace(roomID)
	accessToken = strings.TrimSpace(accessToken)
	if roomID == "" || accessToken == "" {
		return ErrMissingCredentials
	}

	h.connectMu.Lock()
	defer h.connectMu.Unlock()

	h.mu.Lock()
	prior := h.conn
	h.conn = nil
	h.gen++
	gen := h.gen
	h.state = StateConnecting
	h.mu.Unlock()

	if prior != nil {
		h.log.Info("ws.replace", "room", prior.room)
		h.release(prior)
	}

	target, err := h.cfg.dialURL(roomID, accessToken)
	if err != nil {
		h.setStateIf(gen, StateFailed)
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, h.cfg.DialTimeout)
	ws, resp, err := websocket.Dial(dctx, target, &websocket.DialOptions{HTTPClient: h.httpc})
	cancel()
	if err != nil {
		cerr := classifyDialErr(roomID, resp, err)
		h.metrics.Connection(metrics.ConnFailed)
		h.log.Warn("ws.dial.fail", "room", roomID, "token", token.Fingerprint(accessToken), "err", token.Redact(err.Error(), accessToken))

		if !h.setStateIf(gen, StateFailed) {
			return ErrDisconnected
		}
		if h.events.OnError != nil {
			h.events.OnError(cerr)
		}
		if h.events.OnClose != nil {
			h.events.OnClose()
		}
		return cerr
	}
	ws.SetReadLimit(h.cfg.ReadLimit)

	lctx, lcancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &channelConn{
		ws:     ws,
		room:   roomID,
		ctx:    lctx,
		cancel: lcancel,
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.gen != gen {
		h.mu.Unlock()
		lcancel()
		_ = ws.CloseNow()
		return ErrDisconnected
	}
	h.conn = c
	h.state = StateOpen
	h.mu.Unlock()

	h.metrics.Connection(metrics.ConnOpen)
	h.log.Info("ws.open", "room", roomID, "token", token.Fingerprint(accessToken))

	c.emit(h.events.OnOpen)
	go h.readLoop(c)
	return nil
}

// Send writes text as one frame. It reports true only when the channel is
// open and the write succeeded. Nothing is queued or retried.
func (h *Handler) Send(ctx context.Context, text string) bool {
	h.mu.Lock()
	c, st := h.conn, h.state
	h.mu.Unlock()

	if c == nil || st != StateOpen || c.detached.Load() {
		return false
	}

	wctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()

	if err := c.ws.Write(wctx, websocket.MessageText, []byte(text)); err != nil {
		h.log.Info("ws.write.fail", "room", c.room, "close_status", websocket.CloseStatus(err), "err", err)
		return false
	}
	return true
}

// Disconnect closes the live connection, if any. It is idempotent and safe on
// a handler that never connected. It emits no events.
func (h *Handler) Disconnect() {
	h.mu.Lock()
	c := h.conn
	h.conn = nil
	h.gen++
	if h.state == StateConnecting || h.state == StateOpen {
		h.state = StateClosed
	}
	h.mu.Unlock()

	if c == nil {
		return
	}
	h.log.Info("ws.disconnect", "room", c.room)
	h.release(c)
}

// release detaches c, closes its transport and waits for its read loop and
// any running callback. A callback releasing its own connection cannot wait
// on itself, so that case returns at once.
func (h *Handler) release(c *channelConn) {
	c.detached.Store(true)
	if c.closeTransport(websocket.StatusNormalClosure, "bye") {
		h.metrics.ConnectionReleased()
	}
	if c.dispatcher.Load() == goroutineID() {
		return
	}
	<-c.done
}

func (h *Handler) setStateIf(gen uint64, st State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gen != gen {
		return false
	}
	h.state = st
	return true
}

// finish marks c as ended if it is still the live connection.
func (h *Handler) finish(c *channelConn, st State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == c {
		h.conn = nil
		h.state = st
	}
}

func (h *Handler) readLoop(c *channelConn) {
	defer close(c.done)
	defer c.cancel()

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			h.onReadErr(c, err)
			return
		}
		if c.detached.Load() {
			return
		}
		if stop := h.onFrame(c, data); stop {
			return
		}
	}
}

// onFrame handles one inbound frame and reports whether the loop must stop.
func (h *Handler) onFrame(c *channelConn, data []byte) bool {
	frame, err := DecodeFrame(data, h.cfg.Encoding)
	switch {
	case errors.Is(err, ErrInvalidToken):
		h.metrics.Frame(metrics.FrameTokenRejected)
		h.log.Warn("ws.token.rejected", "room", c.room)

		c.emitErr(h.events.OnError, ErrInvalidToken)
		h.finish(c, StateClosed)
		if c.closeTransport(websocket.StatusNormalClosure, "invalid token") {
			h.metrics.ConnectionReleased()
		}
		c.emit(h.events.OnClose)
		return true

	case err != nil:
		h.metrics.Frame(metrics.FrameDecodeError)
		h.log.Warn("ws.frame.decode_fail", "room", c.room, "bytes", len(data), "err", err)
		return false

	case frame.Text == "":
		h.metrics.Frame(metrics.FrameEmpty)
		h.log.Debug("ws.frame.drop", "room", c.room, "result", "empty")
		return false
	}

	now := time.Now().UTC()
	msg := InboundMessage{
		ID:         NewMessageID(now),
		RoomID:     c.room,
		SenderID:   frame.SenderID,
		SenderName: frame.SenderName,
		Text:       frame.Text,
		ReceivedAt: now,
	}
	h.metrics.Frame(metrics.FrameDelivered)

	if h.events.OnMessage != nil {
		c.emit(func() { h.events.OnMessage(msg) })
	}
	return false
}

func (h *Handler) onReadErr(c *channelConn, err error) {
	if c.detached.Load() || !c.markClosed() {
		return
	}

	status := websocket.CloseStatus(err)
	h.finish(c, StateClosed)

	if isAbnormalClose(status) {
		h.metrics.Connection(metrics.ConnAbnormalClose)
		h.log.Warn("ws.close.abnormal", "room", c.room, "close_status", int(status), "err", err)
		c.emitErr(h.events.OnError, ChannelError{Room: c.room, Code: int(status), Err: err})
	} else {
		h.metrics.Connection(metrics.ConnCleanClose)
		h.log.Info("ws.close", "room", c.room, "close_status", int(status))
	}
	_ = c.ws.CloseNow()
	c.emit(h.events.OnClose)
}

// isAbnormalClose reports whether a read ended without a clean close frame.
// 1005 (close frame without a code) is clean.
func isAbnormalClose(status websocket.StatusCode) bool {
	return status == -1 || status == websocket.StatusAbnormalClosure
}

func classifyDialErr(room string, resp *http.Response, err error) error {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return ErrInvalidToken
	}
	code := -1
	if resp != nil {
		code = resp.StatusCode
	}
	return ChannelError{Room: room, Code: code, Err: err}
}

// channelConn is one connection generation.
type channelConn struct {
	ws   *websocket.Conn
	room string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// detached is set once the owner stops wanting events from this connection.
	detached atomic.Bool
	closed   atomic.Bool
	// dispatcher is the id of the goroutine running a callback, or 0.
	dispatcher atomic.Uint64
}

func (c *channelConn) markClosed() bool {
	return c.closed.CompareAndSwap(false, true)
}

// closeTransport performs the close handshake once.
// It reports whether this call did the closing.
func (c *channelConn) closeTransport(code websocket.StatusCode, reason string) bool {
	if !c.markClosed() {
		return false
	}
	_ = c.ws.Close(code, reason)
	c.cancel()
	return true
}

func (c *channelConn) emit(fn func()) {
	if fn == nil {
		return
	}
	if c.detached.Load() {
		return
	}
	c.dispatcher.Store(goroutineID())
	defer c.dispatcher.Store(0)
	fn()
}

func (c *channelConn) emitErr(fn func(error), err error) {
	if fn == nil {
		return
	}
	c.emit(func() { fn(err) })
}

// goroutineID parses the calling goroutine's id from its stack header
// ("goroutine 42 [running]:"). Ids start at 1.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
