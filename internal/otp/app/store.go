package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aelexs/clinic-otp/internal/auth"
	"github.com/aelexs/clinic-otp/internal/domain"
)

// RecordStore persists OTP records keyed by canonical target. Implementations
// serialize Create and Take per key; that is what makes issuance and
// consumption safe under concurrent requests.
type RecordStore interface {
	// Create stores rec unless a live record already exists for rec.Target,
	// in which case it returns domain.ErrAlreadyPending. An expired record
	// counts as absent and is replaced.
	Create(ctx context.Context, rec domain.OTPRecord) error

	// Get returns the record for target without removing it, or
	// domain.ErrNotFound.
	Get(ctx context.Context, target string) (*domain.OTPRecord, error)

	// Take atomically reads and deletes the record for target. At most one
	// concurrent caller receives the record; the rest get domain.ErrNotFound.
	Take(ctx context.Context, target string) (*domain.OTPRecord, error)

	// DeleteIfID removes the record for target only while its ID equals id.
	// A missing record or one with another ID is left alone and is not an
	// error.
	DeleteIfID(ctx context.Context, target, id string) error
}

// CodeGenerator produces a fresh code for each issuance.
type CodeGenerator func() (string, error)

// StoreConfig holds the dependencies for Store.
type StoreConfig struct {
	Records  RecordStore
	Generate CodeGenerator // defaults to auth.GenerateCode
	Clock    domain.Clock  // defaults to domain.RealClock
}

// Store implements issue, peek and consume on top of a RecordStore. It owns
// code generation and the expiry and match rules; the backend only has to
// provide conditional create and atomic take.
type Store struct {
	records  RecordStore
	generate CodeGenerator
	clock    domain.Clock
}

// NewStore creates a Store with the given dependencies.
func NewStore(cfg StoreConfig) *Store {
	s := &Store{
		records:  cfg.Records,
		generate: cfg.Generate,
		clock:    cfg.Clock,
	}
	if s.generate == nil {
		s.generate = auth.GenerateCode
	}
	if s.clock == nil {
		s.clock = domain.RealClock{}
	}
	return s
}

// Issue creates a new record with a fresh code for target. It fails with
// domain.ErrAlreadyPending while a live record exists.
func (s *Store) Issue(ctx context.Context, target string, ch domain.Channel, ttl time.Duration) (*domain.OTPRecord, error) {
	if target == "" {
		return nil, fmt.Errorf("issue: empty target: %w", domain.ErrInvalidTarget)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("issue: ttl must be positive, got %s: %w", ttl, domain.ErrInvalidInput)
	}

	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}

	now := s.clock.Now().UTC()
	rec := domain.OTPRecord{
		ID:        domain.NewRecordID(),
		Target:    target,
		Code:      code,
		Channel:   ch,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("issue: %w", err)
	}
	return &rec, nil
}

// Peek returns the live record for target without consuming it, or nil when
// there is none. Expired records are reported as absent. Peek is for
// diagnostics; verification must go through Consume.
func (s *Store) Peek(ctx context.Context, target string) (*domain.OTPRecord, error) {
	rec, err := s.records.Get(ctx, target)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("peek: %w", err)
	}
	if rec.IsExpired(s.clock.Now()) {
		return nil, nil
	}
	return rec, nil
}

// Consume takes the record for target and checks it against code. The record
// is removed whatever the outcome. Failures are domain.ErrOTPNotFound,
// domain.ErrOTPExpired or domain.ErrOTPMismatch.
func (s *Store) Consume(ctx context.Context, target, code string) error {
	rec, err := s.records.Take(ctx, target)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrOTPNotFound
		}
		return fmt.Errorf("consume: %w", err)
	}

	if rec.IsExpired(s.clock.Now()) {
		return domain.ErrOTPExpired
	}
	if !auth.CodesEqual(code, rec.Code) {
		return domain.ErrOTPMismatch
	}
	return nil
}

// Discard removes the record issued as id for target. The gate uses it to
// roll back an issuance whose delivery failed; a record issued since then by
// another request survives.
func (s *Store) Discard(ctx context.Context, target, id string) error {
	if err := s.records.DeleteIfID(ctx, target, id); err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	return nil
}
