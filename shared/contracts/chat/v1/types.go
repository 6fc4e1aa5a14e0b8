// Package v1 defines the ChatRoom wire contract v1: REST request/response bodies
// and the realtime channel frames.
//
// This package is intentionally stable and dependency-light.
// It is shared by the session manager, the API client and the channel handler
// so the wire format stays authoritative in one place.
package v1

import "encoding/json"

// REST paths, relative to the API base URL (wire-stable).
const (
	PathRegister = "/auth/register"
	PathLogin    = "/auth/login"
	PathRefresh  = "/auth/refresh"
	PathLogout   = "/auth/logout"
	PathValidate = "/auth/validate"

	PathRoomCreate = "/rooms/create"
	PathRoomRemove = "/rooms/remove"
	PathRoomsWS    = "/rooms/ws"

	PathStatus = "/status"
)

// StatusSuccess is the value of Response.Status for successful calls.
const StatusSuccess = "success"

// Response is the canonical REST response wrapper.
//
// Every endpoint answers with {status, message?, data?}; data is endpoint-specific.
type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ---- Requests ----

// RegisterRequest creates an account and a session.
type RegisterRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest opens a session for an existing account.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshTokenRequest carries the refresh token explicitly (refresh and logout).
type RefreshTokenRequest struct {
	Token string `json:"token"`
}

// CreateRoomRequest creates a chat room.
type CreateRoomRequest struct {
	Name    string `json:"name"`
	MaxUser int    `json:"max_user"`
}

// RemoveRoomRequest removes a chat room.
type RemoveRoomRequest struct {
	RoomID string `json:"room_id"`
}

// ---- Response payloads (Response.Data) ----

// TokenPairPayload is returned by register, login and refresh.
type TokenPairPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// CreateRoomPayload is returned by room creation.
type CreateRoomPayload struct {
	RoomID string `json:"room_id"`
}
