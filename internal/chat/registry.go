package chat

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type registryEntry struct {
	session    *Session
	lastActive time.Time
}

// Registry maps chat hashes to live sessions. Entries idle longer than the
// TTL are dropped when next looked up; there is no background sweep.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// GetOrCreate returns the live session for hash, running bootstrap when there
// is none. Concurrent callers for the same hash share one bootstrap.
func (r *Registry) GetOrCreate(ctx context.Context, hash string, bootstrap func(context.Context) (*Session, error)) (*Session, error) {
	if s, ok := r.Lookup(hash); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(hash, func() (any, error) {
		if s, ok := r.Lookup(hash); ok {
			return s, nil
		}
		s, err := bootstrap(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[hash] = &registryEntry{session: s, lastActive: r.now()}
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Lookup returns the session for hash if it has been active within the TTL.
func (r *Registry) Lookup(hash string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[hash]
	if !ok {
		return nil, false
	}
	if r.now().Sub(e.lastActive) > r.ttl {
		delete(r.entries, hash)
		return nil, false
	}
	return e.session, true
}

// Touch marks the session as active now.
func (r *Registry) Touch(hash string) {
	r.mu.Lock()
	if e, ok := r.entries[hash]; ok {
		e.lastActive = r.now()
	}
	r.mu.Unlock()
}

// SetDocument replaces the current document of a live session owned by userID.
// It reports whether such a session existed.
func (r *Registry) SetDocument(userID, hash, html string) bool {
	s, ok := r.Lookup(hash)
	if !ok || s.UserID() != userID {
		return false
	}
	s.SetDocument(html)
	return true
}

func (r *Registry) Remove(hash string) {
	r.mu.Lock()
	delete(r.entries, hash)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
