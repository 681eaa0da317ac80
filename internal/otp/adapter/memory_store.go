package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/otp/app"
)

var _ app.RecordStore = (*MemoryStore)(nil)

// MemoryStore keeps OTP records in process memory. A single mutex serializes
// every operation, which makes Create and Take atomic per key. It is only
// correct when issuance and verification hit the same process.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]domain.OTPRecord
	clock     domain.Clock
	retention time.Duration
}

// NewMemoryStore creates an empty MemoryStore. Expired records are kept for
// retention so reads can still report them as expired; after that the
// sweeper drops them.
func NewMemoryStore(clock domain.Clock, retention time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]domain.OTPRecord),
		clock:     clock,
		retention: retention,
	}
}

// Create stores rec unless a live record exists for its target.
func (s *MemoryStore) Create(_ context.Context, rec domain.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Target]; ok && !existing.IsExpired(s.clock.Now()) {
		return fmt.Errorf("memory otp store: create: %w", domain.ErrAlreadyPending)
	}
	s.records[rec.Target] = rec
	return nil
}

// Get returns a copy of the record for target.
func (s *MemoryStore) Get(_ context.Context, target string) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[target]
	if !ok {
		return nil, fmt.Errorf("memory otp store: get: %w", domain.ErrNotFound)
	}
	return &rec, nil
}

// Take removes and returns the record for target.
func (s *MemoryStore) Take(_ context.Context, target string) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[target]
	if !ok {
		return nil, fmt.Errorf("memory otp store: take: %w", domain.ErrNotFound)
	}
	delete(s.records, target)
	return &rec, nil
}

// DeleteIfID removes the record for target only while it still carries id.
func (s *MemoryStore) DeleteIfID(_ context.Context, target, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[target]; ok && rec.ID == id {
		delete(s.records, target)
	}
	return nil
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Sweep drops records that expired more than retention ago and returns how
// many were removed. Reads never depend on it having run.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-s.retention)
	removed := 0
	for target, rec := range s.records {
		if rec.IsExpired(cutoff) {
			delete(s.records, target)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done. It is meant to be
// run by the service's errgroup and always returns nil.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
