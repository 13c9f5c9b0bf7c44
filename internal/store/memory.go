// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a single-process Store used when Redis is unreachable and as
// the hermetic test backend. One mutex guards everything; expiry is enforced
// lazily on access against an injectable clock. It is explicitly best-effort
// and non-clustered: state lives and dies with the process.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*memEntry
}

type memEntry struct {
	expires time.Time // zero means no expiry

	hash     map[string]string
	scalar   string
	isScalar bool
	set      map[string]struct{}
	sorted   []scoredMember
	list     []string
}

type scoredMember struct {
	member string
	score  float64
}

// NewMemoryStore returns an empty MemoryStore using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		entries: make(map[string]*memEntry),
	}
}

// SetClock replaces the store's notion of "now". Tests use this to let leases
// lapse without sleeping.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// get returns the live entry for key, purging it first if its lease lapsed.
// Caller must hold the lock.
func (s *MemoryStore) get(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) put(key string) *memEntry {
	e := &memEntry{}
	s.entries[key] = e
	return e
}

func (s *MemoryStore) touch(e *memEntry, ttl time.Duration) {
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
}

func (s *MemoryStore) SetHash(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.put(key)
	e.hash = make(map[string]string, len(fields))
	for k, v := range fields {
		e.hash[k] = v
	}
	s.touch(e, ttl)
	return nil
}

func (s *MemoryStore) GetHash(_ context.Context, key string) (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.hash == nil {
		return nil, false, nil
	}
	out := make(map[string]string, len(e.hash))
	for k, v := range e.hash {
		out[k] = v
	}
	return out, true, nil
}

func (s *MemoryStore) MergeHash(_ context.Context, key string, fields map[string]string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.hash == nil {
		return false, nil
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	s.touch(e, ttl)
	return true, nil
}

func (s *MemoryStore) UpdateHash(_ context.Context, key string, ttl time.Duration, fn func(cur map[string]string) (map[string]string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snapshot map[string]string
	if e := s.get(key); e != nil && e.hash != nil {
		snapshot = make(map[string]string, len(e.hash))
		for k, v := range e.hash {
			snapshot[k] = v
		}
	}
	next, err := fn(snapshot)
	if err != nil {
		return err
	}
	if next == nil {
		delete(s.entries, key)
		return nil
	}
	e := s.put(key)
	e.hash = next
	s.touch(e, ttl)
	return nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.put(key)
	e.scalar = value
	e.isScalar = true
	s.touch(e, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || !e.isScalar {
		return "", false, nil
	}
	return e.scalar, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.get(key); e != nil {
		s.touch(e, ttl)
	}
	return nil
}

func (s *MemoryStore) AddToSet(_ context.Context, key, member string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.set == nil {
		e = s.put(key)
		e.set = make(map[string]struct{})
	}
	e.set[member] = struct{}{}
	s.touch(e, ttl)
	return nil
}

func (s *MemoryStore) RemoveFromSet(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.get(key); e != nil && e.set != nil {
		delete(e.set, member)
		if len(e.set) == 0 {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *MemoryStore) SetSize(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.get(key); e != nil && e.set != nil {
		return len(e.set), nil
	}
	return 0, nil
}

func (s *MemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.set == nil {
		return nil, nil
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) AddSorted(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.sorted == nil {
		e = s.put(key)
	}
	// Replace an existing member's score, mirroring ZADD.
	for i := range e.sorted {
		if e.sorted[i].member == member {
			e.sorted[i].score = score
			s.resortLocked(e)
			return nil
		}
	}
	e.sorted = append(e.sorted, scoredMember{member: member, score: score})
	s.resortLocked(e)
	return nil
}

// resortLocked keeps the sorted slice ordered by score ascending. The sort is
// stable so equal scores preserve insertion order, matching the FIFO tie-break
// the matchmaking queue depends on.
func (s *MemoryStore) resortLocked(e *memEntry) {
	sort.SliceStable(e.sorted, func(i, j int) bool {
		return e.sorted[i].score < e.sorted[j].score
	})
}

func (s *MemoryStore) RangeSorted(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.sorted == nil {
		return nil, nil
	}
	out := make([]string, len(e.sorted))
	for i, sm := range e.sorted {
		out[i] = sm.member
	}
	return out, nil
}

func (s *MemoryStore) RemoveSorted(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.sorted == nil {
		return false, nil
	}
	for i, sm := range e.sorted {
		if sm.member == member {
			e.sorted = append(e.sorted[:i], e.sorted[i+1:]...)
			if len(e.sorted) == 0 {
				delete(s.entries, key)
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) PushList(_ context.Context, key, value string, max int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.list == nil {
		e = s.put(key)
	}
	e.list = append([]string{value}, e.list...)
	if max > 0 && len(e.list) > max {
		e.list = e.list[:max]
	}
	s.touch(e, ttl)
	return nil
}

func (s *MemoryStore) RangeList(_ context.Context, key string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.list == nil {
		return nil, nil
	}
	n := len(e.list)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, n)
	copy(out, e.list[:n])
	return out, nil
}

func (s *MemoryStore) ScanKeys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if s.get(k) == nil { // lapsed lease
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
