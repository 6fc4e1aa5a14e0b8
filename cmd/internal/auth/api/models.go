package authapi

import (
	"encoding/json"

	v1 "github.com/stowh/ChatRoom/shared/contracts/chat/v1"
)

// Room is the result of a successful room creation.
type Room struct {
	ID       string
	Name     string
	MaxUsers int
}

// Profile is the user profile returned by session validation.
// The server's profile shape is not fixed; Raw keeps the full payload.
type Profile struct {
	ID    string
	Login string
	Email string

	Raw json.RawMessage
}

// profilePayload accepts string or numeric ids.
type profilePayload struct {
	ID    v1.SenderID `json:"id"`
	Login string      `json:"login"`
	Email string      `json:"email"`
}

// ServiceStatus is the result of the status probe.
type ServiceStatus struct {
	Status  string
	Message string
	Raw     json.RawMessage
}

// OK reports whether the service declared itself healthy.
func (s ServiceStatus) OK() bool { return s.Status == v1.StatusSuccess || s.Status == "ok" }

func decodeProfile(data json.RawMessage) Profile {
	p := Profile{Raw: data}
	if len(data) == 0 {
		return p
	}
	// Best effort: unknown shapes still surface through Raw.
	var pl profilePayload
	if err := json.Unmarshal(data, &pl); err == nil {
		p.ID, p.Login, p.Email = string(pl.ID), pl.Login, pl.Email
	}
	return p
}
