package urlstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"sticker-press/internal/metrics"
)

// PathPrefix is the route prefix download URLs are served under.
const PathPrefix = "/download/"

// Entry holds published result bytes and the metadata needed to serve them.
type Entry struct {
	Bytes       []byte
	Filename    string
	ContentType string
	CreatedAt   time.Time
}

// Store maps unguessable tokens to published results. It is the service-side
// equivalent of object URLs: Publish hands out an ephemeral URL, Revoke
// invalidates it exactly once, and revoked URLs answer Gone.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Publish registers bytes under a fresh token and returns the token and the
// URL path it is served at.
func (s *Store) Publish(data []byte, filename, contentType string) (token, url string) {
	token = uuid.NewString()

	s.mu.Lock()
	s.entries[token] = &Entry{
		Bytes:       data,
		Filename:    filename,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}
	active := len(s.entries)
	s.mu.Unlock()

	metrics.DownloadURLsActive.Set(float64(active))
	return token, PathPrefix + token
}

// Get returns the entry for a token, or false if the token was never
// published or has been revoked.
func (s *Store) Get(token string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[token]
	return e, ok
}

// Revoke invalidates a token. It returns true only the first time a live
// token is revoked, so callers can rely on exactly-once release semantics.
func (s *Store) Revoke(token string) bool {
	s.mu.Lock()
	_, ok := s.entries[token]
	if ok {
		delete(s.entries, token)
	}
	active := len(s.entries)
	s.mu.Unlock()

	if ok {
		metrics.DownloadURLRevocations.Inc()
		metrics.DownloadURLsActive.Set(float64(active))
	}
	return ok
}

// Len returns the number of live tokens.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
