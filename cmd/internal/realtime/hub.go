package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// Hub keeps at most one live Handler per room for this client.
type Hub struct {
	log  *slog.Logger
	cfg  Config
	opts []Option

	mu       sync.Mutex
	handlers map[string]*Handler
}

// NewHub constructs a Hub. opts are applied to every Handler it opens.
func NewHub(cfg Config, log *slog.Logger, opts ...Option) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		log:      log,
		cfg:      cfg,
		opts:     append([]Option{WithLogger(log)}, opts...),
		handlers: make(map[string]*Handler),
	}
}

// Open connects a new Handler for roomID. A prior Handler for the same room is
// disconnected before the new one dials.
func (h *Hub) Open(ctx context.Context, roomID, accessToken string, events Events) (*Handler, error) {
	next := NewHandler(h.cfg, events, h.opts...)

	h.mu.Lock()
	prior := h.handlers[roomID]
	h.handlers[roomID] = next
	h.mu.Unlock()

	if prior != nil {
		h.log.Info("hub.replace", "room", roomID)
		prior.Disconnect()
	}

	if err := next.Connect(ctx, roomID, accessToken); err != nil {
		h.mu.Lock()
		if h.handlers[roomID] == next {
			delete(h.handlers, roomID)
		}
		h.mu.Unlock()
		return nil, err
	}
	return next, nil
}

// Get returns the Handler registered for roomID.
func (h *Hub) Get(roomID string) (*Handler, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hd, ok := h.handlers[roomID]
	return hd, ok
}

// Close disconnects and forgets the Handler for roomID.
func (h *Hub) Close(roomID string) {
	h.mu.Lock()
	hd := h.handlers[roomID]
	delete(h.handlers, roomID)
	h.mu.Unlock()

	if hd != nil {
		hd.Disconnect()
	}
}

// CloseAll disconnects every Handler.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.handlers
	h.handlers = make(map[string]*Handler)
	h.mu.Unlock()

	for _, hd := range all {
		hd.Disconnect()
	}
}

// Rooms returns the number of registered rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}
