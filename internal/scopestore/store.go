// Package scopestore persists each session's AnnotationScope.
package scopestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgallion1/annoscope/internal/scope"
)

// ErrNotFound is returned when no scope is stored for a session.
var ErrNotFound = errors.New("scope not found")

// Record is a stored scope with its bookkeeping.
type Record struct {
	Scope     scope.AnnotationScope `json:"scope"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// Store keeps one scope per session.
type Store interface {
	Get(ctx context.Context, sessionID string) (Record, error)
	Put(ctx context.Context, sessionID string, sc scope.AnnotationScope) (Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is an in-process Store for single-instance deployments and
// tests. Entries expire after ttl when ttl > 0.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rec     Record
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, sessionID)
		return Record{}, ErrNotFound
	}
	e.rec.Scope = e.rec.Scope.Clone()
	return e.rec, nil
}

func (m *MemoryStore) Put(_ context.Context, sessionID string, sc scope.AnnotationScope) (Record, error) {
	if err := sc.Validate(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e := memoryEntry{rec: Record{Scope: sc.Clone(), UpdatedAt: now}}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
	}
	m.entries[sessionID] = e
	return Record{Scope: sc.Clone(), UpdatedAt: now}, nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

// GetOrDefault returns the stored scope, or scope.Default() when none is stored.
func GetOrDefault(ctx context.Context, st Store, sessionID string) (scope.AnnotationScope, error) {
	rec, err := st.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return scope.Default(), nil
	}
	if err != nil {
		return scope.AnnotationScope{}, err
	}
	return rec.Scope, nil
}
