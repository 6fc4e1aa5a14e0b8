// Package realtime implements the per-room chat channel client.
//
// A Handler owns one websocket connection to a room, decodes inbound envelopes
// into InboundMessage events and classifies closures. A Hub keeps at most one
// live Handler per room.
package realtime
