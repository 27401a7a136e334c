package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStatus represents where a session's document is in the pipeline.
type SessionStatus string

const (
	StatusEmpty      SessionStatus = "empty"
	StatusUploaded   SessionStatus = "uploaded"
	StatusExtracting SessionStatus = "extracting"
	StatusReady      SessionStatus = "ready"
	StatusFailed     SessionStatus = "failed"
)

// Session is one reviewer's document and the cache built over it.
type Session struct {
	mu sync.Mutex

	ID       string
	Filename string
	Title    string

	Status      SessionStatus
	Phase       string
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	source *MemorySource
	cache  *Cache

	// scopeMu serializes read-modify-write edits of the stored scope.
	scopeMu sync.Mutex
}

// Cache returns the session's orchestration cache.
func (s *Session) Cache() *Cache {
	return s.cache
}

// LockScope holds the session's scope for a read-modify-write edit. Call
// the returned function to release it.
func (s *Session) LockScope() (unlock func()) {
	s.scopeMu.Lock()
	return s.scopeMu.Unlock
}

// SetStatus updates session status atomically.
func (s *Session) SetStatus(status SessionStatus, phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.Phase = phase
	s.UpdatedAt = time.Now()
}

// Upload replaces the session's document and drops everything derived from
// the previous one.
func (s *Session) Upload(doc Document) {
	s.source.Put(doc)
	s.cache.Invalidate()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Filename = doc.Filename
	s.Title = doc.Title
	s.ContentHash = ContentHashHex(doc.Data)
	s.Status = StatusUploaded
	s.Phase = "uploaded"
	s.UpdatedAt = time.Now()
}

// Touch marks the session as used so it survives cleanup.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now()
}

// SessionSnapshot is a read-only, JSON-safe copy of session state.
type SessionSnapshot struct {
	ID          string        `json:"sessionId"`
	Filename    string        `json:"filename"`
	Title       string        `json:"title"`
	Status      SessionStatus `json:"status"`
	Phase       string        `json:"phase"`
	ContentHash string        `json:"contentHash,omitempty"`
	Refreshing  bool          `json:"refreshing"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Snapshot returns a JSON-safe copy of the session state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		ID:          s.ID,
		Filename:    s.Filename,
		Title:       s.Title,
		Status:      s.Status,
		Phase:       s.Phase,
		ContentHash: s.ContentHash,
		Refreshing:  s.cache.Refreshing(),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.UpdatedAt)
}

// RegistryConfig holds what every session's cache shares.
type RegistryConfig struct {
	TTL        time.Duration
	Cache      CacheConfig
	Metrics    *Metrics
	OnEvict    func(sessionID string)
	CleanEvery time.Duration
}

// Registry is a thread-safe in-memory session registry with TTL eviction.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      RegistryConfig
	log      *slog.Logger
	now      func() time.Time
}

func NewRegistry(cfg RegistryConfig, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.CleanEvery <= 0 {
		cfg.CleanEvery = 5 * time.Minute
	}
	return &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Create starts an empty session with its own source and cache.
func (r *Registry) Create() *Session {
	now := r.now()
	s := &Session{
		ID:        uuid.NewString(),
		Status:    StatusEmpty,
		Phase:     "created",
		CreatedAt: now,
		UpdatedAt: now,
		source:    &MemorySource{},
	}
	cc := r.cfg.Cache
	cc.Source = s.source
	cc.Metrics = r.cfg.Metrics
	cc.Log = r.log.With("session_id", s.ID)
	cc.OnStatus = s.SetStatus
	s.cache = NewCache(cc)

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.cfg.Metrics.Sessions.Set(float64(n))
	r.log.Info("session created", "session_id", s.ID)
	return s
}

// Get returns a live session and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Touch()
	return s, nil
}

// Delete drops a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.cache.Invalidate()
	r.cfg.Metrics.Sessions.Set(float64(n))
	if r.cfg.OnEvict != nil {
		r.cfg.OnEvict(id)
	}
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Cleanup removes sessions idle for longer than the TTL.
func (r *Registry) Cleanup() {
	now := r.now()
	var expired []string
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince(now) > r.cfg.TTL {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		if err := r.Delete(id); err == nil {
			r.log.Info("session expired", "session_id", id)
		}
	}
}

// Run evicts idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CleanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cleanup()
		}
	}
}
