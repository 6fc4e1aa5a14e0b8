// Package authapi is the typed REST client of the ChatRoom service.
//
// Every call is delegated to the session layer, which attaches the access token
// and performs the renew-and-retry protocol. Errors from the session layer are
// returned unchanged.
package authapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stowh/ChatRoom/cmd/internal/auth/session"
	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"
)

// Session is the subset of *session.Manager the client needs.
type Session interface {
	Login(ctx context.Context, creds v1.LoginRequest) (*session.Response, error)
	Register(ctx context.Context, creds v1.RegisterRequest) (*session.Response, error)
	Logout(ctx context.Context)
	Invalidate(ctx context.Context)
	AuthorizedRequest(ctx context.Context, req session.Request) (*session.Response, error)
	Tokens(ctx context.Context) (session.TokenPair, error)
}

// Client exposes the ChatRoom REST operations.
type Client struct {
	log  *slog.Logger
	sess Session
}

// NewClient constructs a Client. A nil logger discards output.
func NewClient(sess Session, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{log: log, sess: sess}
}

// Register creates an account and opens a session for it.
func (c *Client) Register(ctx context.Context, login, email, password string) error {
	_, err := c.sess.Register(ctx, v1.RegisterRequest{Login: login, Email: email, Password: password})
	return err
}

// Login opens a session.
func (c *Client) Login(ctx context.Context, email, password string) error {
	_, err := c.sess.Login(ctx, v1.LoginRequest{Email: email, Password: password})
	return err
}

// Logout ends the session. The local session is always cleared.
func (c *Client) Logout(ctx context.Context) {
	c.sess.Logout(ctx)
}

// ValidateSession asks the server whether the current access token is valid.
func (c *Client) ValidateSession(ctx context.Context) (Profile, error) {
	resp, err := c.sess.AuthorizedRequest(ctx, session.Request{
		Method: http.MethodGet,
		Path:   v1.PathValidate,
	})
	if err != nil {
		return Profile{}, err
	}
	return decodeProfile(resp.Data), nil
}

// CreateRoom creates a room and returns its server-assigned id.
func (c *Client) CreateRoom(ctx context.Context, name string, maxUsers int) (Room, error) {
	resp, err := c.sess.AuthorizedRequest(ctx, session.Request{
		Method: http.MethodPost,
		Path:   v1.PathRoomCreate,
		Body:   v1.CreateRoomRequest{Name: name, MaxUser: maxUsers},
	})
	if err != nil {
		return Room{}, err
	}

	var payload v1.CreateRoomPayload
	if err := resp.Decode(&payload); err != nil {
		return Room{}, fmt.Errorf("decode %s: %w", v1.PathRoomCreate, err)
	}
	if strings.TrimSpace(payload.RoomID) == "" {
		return Room{}, fmt.Errorf("decode %s: missing room_id", v1.PathRoomCreate)
	}

	c.log.Info("rooms.create.ok", "room", payload.RoomID, "max_users", maxUsers)
	return Room{ID: payload.RoomID, Name: name, MaxUsers: maxUsers}, nil
}

// RemoveRoom deletes a room.
func (c *Client) RemoveRoom(ctx context.Context, roomID string) error {
	_, err := c.sess.AuthorizedRequest(ctx, session.Request{
		Method: http.MethodDelete,
		Path:   v1.PathRoomRemove,
		Body:   v1.RemoveRoomRequest{RoomID: roomID},
	})
	if err == nil {
		c.log.Info("rooms.remove.ok", "room", roomID)
	}
	return err
}

// CheckServiceStatus probes the service.
func (c *Client) CheckServiceStatus(ctx context.Context) (ServiceStatus, error) {
	resp, err := c.sess.AuthorizedRequest(ctx, session.Request{
		Method: http.MethodGet,
		Path:   v1.PathStatus,
	})
	if err != nil {
		return ServiceStatus{}, err
	}
	return ServiceStatus{Status: resp.Status, Message: resp.Message, Raw: resp.Data}, nil
}

// CheckAuth reports whether a stored session is still accepted by the server.
// Any validation failure ends the session locally.
func (c *Client) CheckAuth(ctx context.Context) (bool, error) {
	pair, err := c.sess.Tokens(ctx)
	if err != nil {
		return false, err
	}
	if pair.AccessToken == "" {
		return false, nil
	}

	if _, err := c.ValidateSession(ctx); err != nil {
		c.log.Info("auth.check.fail", "err", err)
		c.sess.Invalidate(ctx)
		return false, nil
	}
	return true, nil
}

// AccessToken returns the current access token, or "" when logged out.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	pair, err := c.sess.Tokens(ctx)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}
