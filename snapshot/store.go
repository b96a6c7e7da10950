// Package snapshot holds the TTL-bounded in-memory view of one entity
// collection. A store is constructed empty per session, populated on the
// first successful remote fetch, mutated incrementally on confirmed
// writes, and cleared on logout. Invalidation marks the snapshot stale
// without discarding it, so offline readers still get the last good
// data.
package snapshot

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orchidarium/go-taxon-repository/taxon"
)

// DefaultTTL is the maximum snapshot age before reads consider the
// store stale and attempt a remote refresh.
const DefaultTTL = 5 * time.Minute

// Store is a mutex-guarded snapshot of one entity collection. Records
// are cloned on the way in and out; no caller ever observes a
// half-updated collection or shares mutable state with the store.
type Store[T taxon.Record[T]] struct {
	mu            sync.Mutex
	byID          map[uuid.UUID]T
	lastRefreshed time.Time
	ttl           time.Duration
	now           func() time.Time
}

// New builds an empty store. A non-positive ttl uses DefaultTTL.
func New[T taxon.Record[T]](ttl time.Duration) *Store[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store[T]{
		byID: make(map[uuid.UUID]T),
		ttl:  ttl,
		now:  time.Now,
	}
}

// WithClock replaces the time source. Tests use this to step through
// TTL expiry without sleeping.
func (s *Store[T]) WithClock(now func() time.Time) *Store[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Snapshot returns an independent copy of the collection, optionally
// filtered to active records, sorted case-insensitively by name.
func (s *Store[T]) Snapshot(includeInactive bool) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.byID))
	for _, rec := range s.byID {
		if !includeInactive && !rec.Base().IsActive {
			continue
		}
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Base(), out[j].Base()
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

// Get returns a copy of a single record if present.
func (s *Store[T]) Get(id uuid.UUID) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		var zero T
		return zero, false
	}
	return rec.Clone(), true
}

// Upsert stores a copy of the record under its id.
func (s *Store[T]) Upsert(rec T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[rec.Base().ID] = rec.Clone()
}

// Remove evicts a record. Removing an absent id is a no-op.
func (s *Store[T]) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Populate replaces the whole collection with the given rows and stamps
// the refresh time. This is the only path that makes a store valid.
func (s *Store[T]) Populate(rows []T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[uuid.UUID]T, len(rows))
	for _, rec := range rows {
		s.byID[rec.Base().ID] = rec.Clone()
	}
	s.lastRefreshed = s.now()
}

// IsValid reports whether the snapshot is non-empty and within TTL.
func (s *Store[T]) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.byID) == 0 || s.lastRefreshed.IsZero() {
		return false
	}
	return s.now().Sub(s.lastRefreshed) < s.ttl
}

// Invalidate clears the refresh stamp without discarding data. The next
// read will attempt a refresh but can still fall back to what is here.
func (s *Store[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRefreshed = time.Time{}
}

// Clear drops everything. Called on logout and session teardown.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[uuid.UUID]T)
	s.lastRefreshed = time.Time{}
}

// LastRefreshed returns the time of the last successful populate.
func (s *Store[T]) LastRefreshed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefreshed
}

// Len reports how many records the store currently holds.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
