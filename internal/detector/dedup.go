package detector

import (
	"sync"
	"time"
)

// Dedup defaults. A redelivered or restart-replayed source signature inside
// the TTL window is dropped so the same counterparty trade is never copied
// twice.
const (
	DefaultDedupTTL = 10 * time.Minute
	DefaultDedupCap = 4096
)

// seenSet is a bounded TTL set of source signatures.
type seenSet struct {
	ttl time.Duration
	max int
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time // signature -> first seen
}

func newSeenSet(ttl time.Duration, max int) *seenSet {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if max <= 0 {
		max = DefaultDedupCap
	}
	return &seenSet{
		ttl:     ttl,
		max:     max,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

// Seen records the signature and reports whether it was already present
// inside the TTL window.
func (s *seenSet) Seen(signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if at, ok := s.entries[signature]; ok && now.Sub(at) < s.ttl {
		return true
	}

	s.evictLocked(now)
	s.entries[signature] = now
	return false
}

// evictLocked drops expired entries, then the oldest ones if still over cap.
func (s *seenSet) evictLocked(now time.Time) {
	for sig, at := range s.entries {
		if now.Sub(at) >= s.ttl {
			delete(s.entries, sig)
		}
	}
	for len(s.entries) >= s.max {
		oldestSig := ""
		var oldestAt time.Time
		for sig, at := range s.entries {
			if oldestSig == "" || at.Before(oldestAt) {
				oldestSig, oldestAt = sig, at
			}
		}
		delete(s.entries, oldestSig)
	}
}

func (s *seenSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
