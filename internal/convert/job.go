package convert

import (
	"fmt"
	"time"

	"sticker-press/internal/resultcache"
)

// State is a job's position in its lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether a state admits no further automatic transitions.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Source identifies an uploaded clip. Name, Size, and LastModified together
// form the cache key; Path is where the upload was saved so retries can
// re-read it.
type Source struct {
	Name         string
	Size         int64
	LastModified int64 // Unix milliseconds, as reported by the client
	MimeType     string
	Path         string
	Warning      string // soft validation notice, carried into snapshots
}

// CacheKey derives the result cache key from a source file's identity.
// Identity is metadata, not content: two different files with identical
// name, size, and modification time collide.
func CacheKey(name string, size, lastModified int64) string {
	return fmt.Sprintf("%s:%d:%d", name, size, lastModified)
}

// CacheKey returns the cache key for this source.
func (s Source) CacheKey() string {
	return CacheKey(s.Name, s.Size, s.LastModified)
}

// Job tracks one conversion request across attempts. All fields are guarded
// by the controller's mutex.
type Job struct {
	ID       string
	Source   Source
	State    State
	Progress int
	Result   *resultcache.Result
	Error    string
	Category Category

	CreatedAt time.Time
	UpdatedAt time.Time

	// attempt increments on retry and reset; stale goroutines from earlier
	// attempts compare it before touching the job, so a finished cancel or
	// reset always wins the race against a completing conversion.
	attempt int
	cancel  func()
}

// Snapshot is an immutable, JSON-ready view of a job handed to HTTP and
// WebSocket consumers.
type Snapshot struct {
	ID                string    `json:"id"`
	State             State     `json:"state"`
	Progress          int       `json:"progress"`
	SourceName        string    `json:"sourceName"`
	Error             string    `json:"error,omitempty"`
	Category          Category  `json:"category,omitempty"`
	Troubleshooting   string    `json:"troubleshooting,omitempty"`
	Retryable         bool      `json:"retryable,omitempty"`
	Warning           string    `json:"warning,omitempty"`
	DownloadURL       string    `json:"downloadUrl,omitempty"`
	SuggestedFilename string    `json:"suggestedFilename,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// snapshot builds a Snapshot; the caller must hold the controller's mutex.
func (j *Job) snapshot() Snapshot {
	s := Snapshot{
		ID:         j.ID,
		State:      j.State,
		Progress:   j.Progress,
		SourceName: j.Source.Name,
		Error:      j.Error,
		Category:   j.Category,
		Warning:    j.Source.Warning,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
	if j.State == StateFailed {
		s.Troubleshooting = j.Category.Troubleshooting()
		s.Retryable = j.Category.Retryable()
	}
	if j.Result != nil {
		s.DownloadURL = j.Result.DownloadURL
		s.SuggestedFilename = j.Result.SuggestedFilename
	}
	return s
}
