package apperror

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStoreSize bounds the number of distinct faults a Store remembers.
const DefaultStoreSize = 256

// Store deduplicates fault records by fingerprint.
//
// Reporting a fault whose fingerprint was already seen increments Count
// on the original record and returns it instead of keeping a duplicate.
// The least recently reported faults are evicted once the store is full.
type Store struct {
	mu      sync.Mutex
	records *lru.Cache[string, *Record]
	now     func() time.Time
}

// NewStore creates a dedup store holding up to size distinct faults.
func NewStore(size int) *Store {
	if size <= 0 {
		size = DefaultStoreSize
	}
	// lru.New only fails for non-positive sizes.
	cache, _ := lru.New[string, *Record](size)
	return &Store{
		records: cache,
		now:     time.Now,
	}
}

// Report records an occurrence of rec and returns the canonical record.
// The returned value is a copy; callers may read it freely.
func (s *Store) Report(rec *Record) *Record {
	if rec == nil {
		return nil
	}
	fp := rec.Fingerprint
	if fp == "" {
		fp = Fingerprint(rec.Message, rec.Stack, rec.Category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records.Get(fp); ok {
		existing.Count++
		existing.LastSeenAt = s.now()
		return existing.Clone()
	}

	stored := rec.Clone()
	stored.Fingerprint = fp
	if stored.Count <= 0 {
		stored.Count = 1
	}
	s.records.Add(fp, stored)
	return stored.Clone()
}

// Lookup returns the canonical record for a fingerprint.
func (s *Store) Lookup(fingerprint string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records.Peek(fingerprint)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Len returns the number of distinct faults currently remembered.
func (s *Store) Len() int {
	return s.records.Len()
}
