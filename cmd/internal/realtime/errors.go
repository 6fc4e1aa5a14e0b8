package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned by Connect when the room id or the token is empty.
	ErrMissingCredentials = errors.New("channel: missing room or token")

	// ErrInvalidToken reports a channel-level authorization failure
	// (rejected handshake or the reserved token error frame).
	ErrInvalidToken = errors.New("channel: invalid token")

	// ErrChannelUnavailable reports a refused connection or an abnormal closure.
	ErrChannelUnavailable = errors.New("channel: room not found or unavailable")

	// ErrDecode reports a malformed inbound frame. Never fatal to the channel.
	ErrDecode = errors.New("channel: malformed frame")

	// ErrDisconnected is returned by Connect when Disconnect ran while dialing.
	ErrDisconnected = errors.New("channel: disconnected")

	// ErrConfig is returned for invalid channel configuration.
	ErrConfig = errors.New("channel: invalid config")
)

// ChannelError carries the room and, for closures, the close code (-1 when none was received).
type ChannelError struct {
	Room string
	Code int
	Err  error
}

func (e ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (room %s, code %d)", ErrChannelUnavailable, e.Room, e.Code)
	}
	return fmt.Sprintf("%v (room %s, code %d): %v", ErrChannelUnavailable, e.Room, e.Code, e.Err)
}

func (e ChannelError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrChannelUnavailable}
	}
	return []error{ErrChannelUnavailable, e.Err}
}

// DecodeError describes why an inbound frame could not be turned into text.
type DecodeError struct {
	Reason string
	Err    error
}

func (e DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", ErrDecode, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %v", ErrDecode, e.Reason, e.Err)
}

func (e DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}
