// Package main provides a CI-friendly smoke test for the ChatRoom room channel.
//
// It validates:
//   - handshake with room + token query parameters
//   - the token is accepted (no error.token frame)
//   - a text frame sent by A is delivered to B in the same room
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"
)

const maxReadBytes = 1 << 20 // 1MiB

type inbound struct {
	sender string
	text   string
}

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan inbound
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/api/v1/rooms/ws", "channel endpoint")
		room    = flag.String("room", "smoke-room", "room id to join")
		tokenA  = flag.String("token-a", os.Getenv("CHATROOM_SMOKE_TOKEN_A"), "access token for client A")
		tokenB  = flag.String("token-b", os.Getenv("CHATROOM_SMOKE_TOKEN_B"), "access token for client B (defaults to token-a)")
		text    = flag.String("text", "hello chatroom", "message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*tokenA) == "" {
		fatalf("missing -token-a")
	}
	if strings.TrimSpace(*tokenB) == "" {
		*tokenB = *tokenA
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *room, *tokenA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *room, *tokenB, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: room=%s\n", *room)
	}

	nonce := fmt.Sprintf("%s #%d", *text, time.Now().UnixNano())
	mustSend(root, a, nonce, *timeout)

	got := b.mustReadUntil(root, *timeout, func(m inbound) bool { return strings.Contains(m.text, nonce) })

	fmt.Printf("OK: room=%s sender=%q text=%q\n", *room, got.sender, got.text)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, room, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, _ := url.Parse(wsURL)
	q := u.Query()
	q.Set(v1.QueryRoom, room)
	q.Set(v1.QueryToken, token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.Dial(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			fatalf("connect %s: token rejected (%d)", name, resp.StatusCode)
		}
		fatalf("connect %s: %v", name, err)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan inbound, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	go func() {
		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.errCh <- err
				return
			}
			if string(data) == v1.TokenErrorFrame {
				c.errCh <- errors.New("server sent " + v1.TokenErrorFrame)
				return
			}

			var env v1.InboundEnvelope
			if err := json.Unmarshal(data, &env); err != nil || env.Validate() != nil {
				continue
			}
			c.inbox <- inbound{sender: string(env.ClientID), text: messageText(env.Message)}
		}
	}()
}

func (c *smokeClient) mustReadUntil(parent context.Context, stepTimeout time.Duration, match func(inbound) bool) inbound {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case m := <-c.inbox:
			if match(m) {
				return m
			}
		case err := <-c.errCh:
			fatalf("read %s: %v", c.name, err)
		case <-ctx.Done():
			fatalf("read %s: no matching message within %s", c.name, stepTimeout)
		}
	}
}

func mustSend(parent context.Context, c *smokeClient, text string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		fatalf("send %s: %v", c.name, err)
	}
}

// messageText renders the message field well enough to find the nonce.
func messageText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
			if b, err := enc.DecodeString(s); err == nil {
				return string(b)
			}
		}
		return s
	}

	var buf v1.BufferPayload
	if err := json.Unmarshal(raw, &buf); err == nil && buf.Type == "Buffer" {
		return intsToString(buf.Data)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err == nil {
		return intsToString(ints)
	}
	return string(raw)
}

func intsToString(ints []int) string {
	b := make([]byte, 0, len(ints))
	for _, n := range ints {
		b = append(b, byte(n))
	}
	return string(b)
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
