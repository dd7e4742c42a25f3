// Package cache provides the in-process store for resolved units, per-unit
// statistics, reference overlays and market aggregates. Entries are bounded
// by count and by endpoint-specific time-to-live.
package cache

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL applies to endpoints without a configured TTL.
const DefaultTTL = 5 * time.Minute

// DefaultMaxEntries bounds the store when no maximum is configured.
const DefaultMaxEntries = 1000

// Options configures a Store.
type Options struct {
	MaxEntries   int
	DefaultTTL   time.Duration
	EndpointTTLs map[string]time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Stats is a snapshot of store occupancy and effectiveness.
type Stats struct {
	Size        int     `json:"size" yaml:"size"`
	MaxSize     int     `json:"max_size" yaml:"max_size"`
	ApproxBytes int64   `json:"approx_bytes" yaml:"approx_bytes"`
	Hits        int64   `json:"hits" yaml:"hits"`
	Misses      int64   `json:"misses" yaml:"misses"`
	Evictions   int64   `json:"evictions" yaml:"evictions"`
	Expirations int64   `json:"expirations" yaml:"expirations"`
	HitRate     float64 `json:"hit_rate" yaml:"hit_rate"`
}

type entry struct {
	value      any
	insertedAt time.Time
	expiresAt  time.Time
	size       int64
}

// Store is a concurrent-safe TTL cache with approximate LRU eviction. The
// entry map and the access map are only touched together under mu.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	accessed map[string]uint64 // key -> logical access time
	tick     uint64
	bytes    int64

	maxEntries int
	defaultTTL time.Duration
	ttls       map[string]time.Duration
	nowFunc    func() time.Time

	hits, misses, evictions, expirations int64
}

// New creates a Store.
func New(opts Options) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ttls := make(map[string]time.Duration, len(opts.EndpointTTLs))
	for k, v := range opts.EndpointTTLs {
		if v > 0 {
			ttls[k] = v
		}
	}
	return &Store{
		entries:    make(map[string]*entry),
		accessed:   make(map[string]uint64),
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		ttls:       ttls,
		nowFunc:    opts.Now,
	}
}

// TTLFor returns the configured TTL of an endpoint.
func (s *Store) TTLFor(endpoint string) time.Duration {
	if ttl, ok := s.ttls[endpoint]; ok {
		return ttl
	}
	return s.defaultTTL
}

// Get returns the value stored for (endpoint, params). An expired entry is
// removed and reported as not found.
func (s *Store) Get(endpoint string, params map[string]any) (any, bool) {
	key := Key(endpoint, params)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if !s.nowFunc().Before(e.expiresAt) {
		s.removeLocked(key, e)
		s.expirations++
		s.misses++
		return nil, false
	}

	s.touchLocked(key)
	s.hits++
	return e.value, true
}

// Set stores value for (endpoint, params). An optional ttl overrides the
// endpoint TTL for this entry. When the store is full, the least recently
// accessed entry is evicted first.
func (s *Store) Set(endpoint string, params map[string]any, value any, ttl ...time.Duration) {
	key := Key(endpoint, params)

	d := s.TTLFor(endpoint)
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}
	size := estimateSize(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	if old, ok := s.entries[key]; ok {
		s.bytes -= old.size
	} else if len(s.entries) >= s.maxEntries {
		s.evictLocked()
	}

	s.entries[key] = &entry{value: value, insertedAt: now, expiresAt: now.Add(d), size: size}
	s.bytes += size
	s.touchLocked(key)
}

// Delete removes the entry for (endpoint, params).
func (s *Store) Delete(endpoint string, params map[string]any) {
	key := Key(endpoint, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.removeLocked(key, e)
	}
}

// Clear drops every entry. Counters are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.accessed = make(map[string]uint64)
	s.bytes = 0
}

// Stats returns a snapshot of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Size:        len(s.entries),
		MaxSize:     s.maxEntries,
		ApproxBytes: s.bytes,
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	return st
}

func (s *Store) touchLocked(key string) {
	s.tick++
	s.accessed[key] = s.tick
}

func (s *Store) removeLocked(key string, e *entry) {
	delete(s.entries, key)
	delete(s.accessed, key)
	s.bytes -= e.size
}

// evictLocked removes the single least recently accessed entry. O(n) scan.
func (s *Store) evictLocked() {
	var oldestKey string
	var oldest uint64
	first := true
	for k, t := range s.accessed {
		if first || t < oldest {
			oldestKey, oldest, first = k, t, false
		}
	}
	if first {
		return
	}
	if e, ok := s.entries[oldestKey]; ok {
		s.removeLocked(oldestKey, e)
	} else {
		delete(s.accessed, oldestKey)
	}
	s.evictions++
	zap.L().Debug("cache: evicted entry", zap.String("key", oldestKey))
}

func estimateSize(v any) int64 {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(b))
}

// GetAs is Get with a type assertion. A stored value of another type is a miss.
func GetAs[T any](s *Store, endpoint string, params map[string]any) (T, bool) {
	var zero T
	v, ok := s.Get(endpoint, params)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
