package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

var (
	pebbleKeyAccess  = []byte("tokens/access")
	pebbleKeyRefresh = []byte("tokens/refresh")
)

// PebbleStore persists the token pair in a local Pebble database.
// Both keys are written in a single synced batch, and reads go through a snapshot.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (or creates) a Pebble database at dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("pebble store: %w: empty dir", ErrConfig)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PebbleStore) Load(ctx context.Context) (TokenPair, error) {
	if err := ctx.Err(); err != nil {
		return TokenPair{}, err
	}

	snap := s.db.NewSnapshot()
	defer func() { _ = snap.Close() }()

	access, err := pebbleGet(snap, pebbleKeyAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := pebbleGet(snap, pebbleKeyRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *PebbleStore) Save(ctx context.Context, pair TokenPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()

	if err := pebblePut(b, pebbleKeyAccess, pair.AccessToken); err != nil {
		return err
	}
	if err := pebblePut(b, pebbleKeyRefresh, pair.RefreshToken); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *PebbleStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()

	if err := b.Delete(pebbleKeyAccess, nil); err != nil {
		return err
	}
	if err := b.Delete(pebbleKeyRefresh, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func pebbleGet(snap *pebble.Snapshot, key []byte) (string, error) {
	v, closer, err := snap.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// v is only valid until closer.Close().
	out := string(v)
	_ = closer.Close()
	return out, nil
}

func pebblePut(b *pebble.Batch, key []byte, value string) error {
	if value == "" {
		return b.Delete(key, nil)
	}
	return b.Set(key, []byte(value), nil)
}
