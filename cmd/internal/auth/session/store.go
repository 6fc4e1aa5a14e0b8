package session

import (
	"context"
	"sync"
)

// TokenPair is the client's credential pair. An empty field means absent.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether the pair is in the logged-out state (both fields absent).
func (p TokenPair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Store abstracts persistence for the token pair.
//
// Implementations must make Save and Clear atomic with respect to Load:
// a reader never observes one field updated and the other stale.
type Store interface {
	// Load returns the last saved pair (empty fields if never saved or cleared).
	Load(ctx context.Context) (TokenPair, error)

	// Save overwrites both fields.
	Save(ctx context.Context, pair TokenPair) error

	// Clear removes both fields.
	Clear(ctx context.Context) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

func (s *MemoryStore) Save(_ context.Context, pair TokenPair) error {
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.pair = TokenPair{}
	s.mu.Unlock()
	return nil
}

// MirrorStore keeps an in-memory copy of a durable Store.
//
// Reads are served from memory after the first load; writes go to the durable
// store first and update memory only on success. Clear always empties memory,
// even if the durable clear fails, so a logged-out client never reuses tokens.
type MirrorStore struct {
	durable Store

	mu     sync.RWMutex
	loaded bool
	pair   TokenPair
}

// NewMirrorStore wraps durable with an in-memory mirror.
func NewMirrorStore(durable Store) *MirrorStore {
	return &MirrorStore{durable: durable}
}

func (s *MirrorStore) Load(ctx context.Context) (TokenPair, error) {
	s.mu.RLock()
	if s.loaded {
		p := s.pair
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.pair, nil
	}
	p, err := s.durable.Load(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	s.pair = p
	s.loaded = true
	return p, nil
}

func (s *MirrorStore) Save(ctx context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.durable.Save(ctx, pair); err != nil {
		return err
	}
	s.pair = pair
	s.loaded = true
	return nil
}

func (s *MirrorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	s.loaded = true
	return s.durable.Clear(ctx)
}
