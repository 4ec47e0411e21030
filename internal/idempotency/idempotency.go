// Package idempotency lets a client retry a mutating call without applying
// it twice. The first call under a key runs and its encoded result is kept
// for a TTL together with a fingerprint of the request; later calls under
// the same key and request get that result back.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrInProgress is returned when another call holding the same key has
	// not finished yet.
	ErrInProgress = errors.New("request with this idempotency key is in progress")

	// ErrKeyReused is returned when a key is presented again with a request
	// that differs from the one it completed.
	ErrKeyReused = errors.New("idempotency key was used for a different request")

	errCorruptResult = errors.New("stored idempotent result is corrupt")
)

// Key derives a store key from parts. Every part is length-prefixed before
// hashing, so two different tuples never produce the same key whatever
// bytes the parts contain.
func Key(parts ...string) string {
	h := sha256.New()
	var n [binary.MaxVarintLen64]byte
	for _, p := range parts {
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(p)))])
		io.WriteString(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// KeyStore records claimed keys and their results.
type KeyStore interface {
	// Claim marks key as in progress. It returns false if the key is
	// already claimed or completed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Load returns the stored result. done is false while the key is
	// still in progress.
	Load(ctx context.Context, key string) (result []byte, done bool, err error)

	// Complete stores the result for key.
	Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error

	// Release forgets key so the call can be retried.
	Release(ctx context.Context, key string) error
}

// Guard runs calls at most once per key.
type Guard struct {
	keys KeyStore
	ttl  time.Duration
}

// NewGuard creates a Guard that keeps results for ttl.
func NewGuard(keys KeyStore, ttl time.Duration) *Guard {
	return &Guard{keys: keys, ttl: ttl}
}

// Do runs fn unless key has already completed, in which case the stored
// result is returned with replayed set. request identifies what the caller
// asked for; a completed key presented with a different request fails with
// ErrKeyReused. A failed fn releases the key.
func (g *Guard) Do(ctx context.Context, key string, request []byte, fn func(ctx context.Context) ([]byte, error)) (result []byte, replayed bool, err error) {
	fingerprint := sha256.Sum256(request)

	claimed, err := g.keys.Claim(ctx, key, g.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if !claimed {
		result, done, err := g.keys.Load(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("load idempotency key: %w", err)
		}
		if !done {
			return nil, false, ErrInProgress
		}
		if len(result) < sha256.Size {
			return nil, false, errCorruptResult
		}
		if !bytes.Equal(result[:sha256.Size], fingerprint[:]) {
			return nil, false, ErrKeyReused
		}
		return result[sha256.Size:], true, nil
	}

	result, err = fn(ctx)
	if err != nil {
		if relErr := g.keys.Release(context.WithoutCancel(ctx), key); relErr != nil {
			slog.Warn("Failed to release idempotency key", "key", key, "error", relErr)
		}
		return nil, false, err
	}

	stored := make([]byte, 0, sha256.Size+len(result))
	stored = append(append(stored, fingerprint[:]...), result...)
	if err := g.keys.Complete(context.WithoutCancel(ctx), key, stored, g.ttl); err != nil {
		// The call itself succeeded; a lost result only weakens replay.
		slog.Warn("Failed to store idempotent result", "key", key, "error", err)
	}
	return result, false, nil
}

type entry struct {
	result  []byte
	done    bool
	expires time.Time
}

// MemoryKeyStore is a process-local KeyStore. It is safe for concurrent use.
type MemoryKeyStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryKeyStore creates an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{entries: make(map[string]entry), now: time.Now}
}

func (m *MemoryKeyStore) live(key string) (entry, bool) {
	e, ok := m.entries[key]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, ok
}

// Claim implements KeyStore.
func (m *MemoryKeyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = entry{expires: m.now().Add(ttl)}
	return true, nil
}

// Load implements KeyStore.
func (m *MemoryKeyStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return nil, false, nil
	}
	return e.result, e.done, nil
}

// Complete implements KeyStore.
func (m *MemoryKeyStore) Complete(_ context.Context, key string, result []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{result: result, done: true, expires: m.now().Add(ttl)}
	return nil
}

// Release implements KeyStore.
func (m *MemoryKeyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Cleanup drops expired entries.
func (m *MemoryKeyStore) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.entries {
		m.live(key)
	}
}
