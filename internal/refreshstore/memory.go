package refreshstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the process-lifetime refresh record store.
//
// A single mutex serializes every operation, so a rotate racing another rotate
// on the same rotation id always observes the first one's delete.
// A production variant would shard the lock by subject.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]Record
	bySubject map[string]map[string]struct{}
	clock     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]Record),
		bySubject: make(map[string]map[string]struct{}),
		clock:     time.Now,
	}
}

// WithClock replaces the time source used to judge record expiry.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func (s *MemoryStore) Insert(_ context.Context, r Record) error {
	if r.RotationID == "" || r.Subject == "" {
		return ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.RotationID]; ok {
		return ErrDuplicateID
	}
	s.insertLocked(r)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, rotationID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[rotationID]
	return r, ok
}

// Delete removes the record if present. Deleting an absent id is not an error.
func (s *MemoryStore) Delete(_ context.Context, rotationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(rotationID)
}

// DeleteAllForSubject removes every record owned by subject and returns how many went.
func (s *MemoryStore) DeleteAllForSubject(_ context.Context, subject string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.bySubject[subject]
	n := len(ids)
	for id := range ids {
		delete(s.records, id)
	}
	delete(s.bySubject, subject)
	return n
}

// Rotate consumes oldID and inserts next in one step.
//
// It fails with ErrNotFound when oldID is absent or expired, and with
// ErrSubjectMismatch when the live record belongs to someone other than subject.
// On failure nothing is inserted; an expired record is dropped.
func (s *MemoryStore) Rotate(_ context.Context, oldID, subject string, next Record) error {
	if next.RotationID == "" || next.Subject == "" {
		return ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[oldID]
	if !ok {
		return ErrNotFound
	}
	if cur.Expired(s.clock()) {
		s.deleteLocked(oldID)
		return ErrNotFound
	}
	if cur.Subject != subject {
		return ErrSubjectMismatch
	}
	if _, dup := s.records[next.RotationID]; dup {
		return ErrDuplicateID
	}

	s.deleteLocked(oldID)
	s.insertLocked(next)
	return nil
}

// PurgeExpired drops every record whose expiry has passed at now.
func (s *MemoryStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if r.Expired(now) {
			s.deleteLocked(id)
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all records sorted by expiry, then id.
func (s *MemoryStore) Snapshot() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].RotationID < out[j].RotationID
	})
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep runs PurgeExpired every interval until ctx is done.
func (s *MemoryStore) Sweep(ctx context.Context, interval time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.PurgeExpired(s.clock()); n > 0 {
				log.Debug("refresh records purged", "count", n)
			}
		}
	}
}

func (s *MemoryStore) insertLocked(r Record) {
	s.records[r.RotationID] = r
	ids, ok := s.bySubject[r.Subject]
	if !ok {
		ids = make(map[string]struct{})
		s.bySubject[r.Subject] = ids
	}
	ids[r.RotationID] = struct{}{}
}

func (s *MemoryStore) deleteLocked(rotationID string) {
	r, ok := s.records[rotationID]
	if !ok {
		return
	}
	delete(s.records, rotationID)
	if ids := s.bySubject[r.Subject]; ids != nil {
		delete(ids, rotationID)
		if len(ids) == 0 {
			delete(s.bySubject, r.Subject)
		}
	}
}
