package approval

import (
	"errors"
	"sync"
	"time"

	"github.com/fineflow/internal/parse"
)

// ErrDuplicateHandle is returned when a request handle is registered twice.
// Handles are assigned by the chat platform, so this points at a transport
// bug rather than a user mistake.
var ErrDuplicateHandle = errors.New("request handle already registered")

// Registry maps card handles to their requests. It is the single source of
// truth for whether a request has been decided. Requests are never removed
// for the lifetime of the process.
type Registry struct {
	mu       sync.Mutex
	requests map[string]*Request
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{requests: make(map[string]*Request)}
}

// Create registers a new request under its card handle.
func (r *Registry) Create(handle, conversation string, fields parse.Fields, createdAt time.Time) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[handle]; exists {
		return nil, ErrDuplicateHandle
	}

	req := newRequest(handle, conversation, fields, createdAt)
	r.requests[handle] = req
	return req, nil
}

// Get looks up a request by its card handle.
func (r *Registry) Get(handle string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[handle]
	return req, ok
}

// Len reports the number of registered requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}
