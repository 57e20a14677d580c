package twin

import (
	"sync"
	"sync/atomic"
	"time"
)

// CapturedRequest is one POST /e as the collector received it.
type CapturedRequest struct {
	ID         string            `json:"id"`
	ReceivedAt time.Time         `json:"received_at"`
	Type       string            `json:"t"`
	Domain     string            `json:"c"`
	VisitorID  string            `json:"u"`
	VendorIDs  string            `json:"evs"`
	Metadata   string            `json:"m"`
	Extra      map[string]string `json:"extra,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
}

// Store holds the twin's state: captured requests in arrival order, the
// per-domain geo overrides and the tag fetch counter.
type Store struct {
	mu       sync.RWMutex
	captured []CapturedRequest
	geo      map[string]string

	tagFetches atomic.Int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{geo: make(map[string]string)}
}

// Add appends a captured request.
func (s *Store) Add(c CapturedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured = append(s.captured, c)
}

// List returns captured requests in arrival order.
func (s *Store) List() []CapturedRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CapturedRequest, len(s.captured))
	copy(out, s.captured)
	return out
}

// Filter returns the captured requests matching predicate, in arrival order.
func (s *Store) Filter(predicate func(CapturedRequest) bool) []CapturedRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CapturedRequest
	for _, c := range s.captured {
		if predicate(c) {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many requests have been captured.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.captured)
}

// SetGeoDomain overrides the geo domain served for domain. An empty geo makes
// the tag script carry no geo domain at all.
func (s *Store) SetGeoDomain(domain, geo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geo[domain] = geo
}

// GeoDomain returns the geo domain for domain: the override if set, else
// "<domain>-geo".
func (s *Store) GeoDomain(domain string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.geo[domain]; ok {
		return g
	}
	return domain + "-geo"
}

// GeoDomains returns a copy of the overrides.
func (s *Store) GeoDomains() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.geo))
	for k, v := range s.geo {
		out[k] = v
	}
	return out
}

// CountTagFetch records one tag script request.
func (s *Store) CountTagFetch() { s.tagFetches.Add(1) }

// TagFetches returns how many tag scripts have been served.
func (s *Store) TagFetches() int64 { return s.tagFetches.Load() }

// Reset clears captured requests, overrides and counters.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captured = nil
	s.geo = make(map[string]string)
	s.tagFetches.Store(0)
}
