package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/domain/domaintest"
	"github.com/aelexs/clinic-otp/internal/otp/app"
)

var testStart = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

const testRetention = 15 * time.Minute

// storeFactory builds a fresh backend driven by clock.
type storeFactory func(t *testing.T, clock *domaintest.FakeClock) app.RecordStore

func newRecord(clock *domaintest.FakeClock, target, code string, ttl time.Duration) domain.OTPRecord {
	now := clock.Now().UTC()
	return domain.OTPRecord{
		ID:        domain.NewRecordID(),
		Target:    target,
		Code:      code,
		Channel:   domain.ChannelPhone,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// runRecordStoreContract checks the behavior every RecordStore backend must
// share.
func runRecordStoreContract(t *testing.T, factory storeFactory) {
	t.Helper()
	ctx := context.Background()

	t.Run("create then get round-trips every field", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		rec := newRecord(clock, "+639171234567", "123456", 5*time.Minute)
		rec.Channel = domain.ChannelEmail

		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Get(ctx, rec.Target)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Target, got.Target)
		assert.Equal(t, rec.Code, got.Code)
		assert.Equal(t, domain.ChannelEmail, got.Channel)
		assert.True(t, rec.IssuedAt.Equal(got.IssuedAt), "issued_at: want %s, got %s", rec.IssuedAt, got.IssuedAt)
		assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt), "expires_at: want %s, got %s", rec.ExpiresAt, got.ExpiresAt)
	})

	t.Run("create while live returns ErrAlreadyPending", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		first := newRecord(clock, "+639171234567", "111111", 5*time.Minute)
		require.NoError(t, s.Create(ctx, first))

		err := s.Create(ctx, newRecord(clock, "+639171234567", "222222", 5*time.Minute))

		require.ErrorIs(t, err, domain.ErrAlreadyPending)
		got, err := s.Get(ctx, first.Target)
		require.NoError(t, err)
		assert.Equal(t, "111111", got.Code, "live record must not be overwritten")
	})

	t.Run("record is still live at exactly its expiry", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		require.NoError(t, s.Create(ctx, newRecord(clock, "+639171234567", "111111", 5*time.Minute)))

		clock.Advance(5 * time.Minute)
		err := s.Create(ctx, newRecord(clock, "+639171234567", "222222", 5*time.Minute))

		require.ErrorIs(t, err, domain.ErrAlreadyPending)
	})

	t.Run("create replaces an expired record", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		first := newRecord(clock, "+639171234567", "111111", 5*time.Minute)
		require.NoError(t, s.Create(ctx, first))

		clock.AdvancePast(first.ExpiresAt)
		require.NoError(t, s.Create(ctx, newRecord(clock, "+639171234567", "222222", 5*time.Minute)))

		got, err := s.Get(ctx, "+639171234567")
		require.NoError(t, err)
		assert.Equal(t, "222222", got.Code)
	})

	t.Run("expired record is still readable within retention", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		rec := newRecord(clock, "a@b.com", "123456", time.Minute)
		require.NoError(t, s.Create(ctx, rec))

		clock.Advance(2 * time.Minute)
		got, err := s.Take(ctx, rec.Target)

		require.NoError(t, err)
		assert.True(t, got.IsExpired(clock.Now()))
	})

	t.Run("take returns the record once", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		rec := newRecord(clock, "+639171234567", "123456", 5*time.Minute)
		require.NoError(t, s.Create(ctx, rec))

		got, err := s.Take(ctx, rec.Target)
		require.NoError(t, err)
		assert.Equal(t, "123456", got.Code)

		_, err = s.Take(ctx, rec.Target)
		require.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Get(ctx, rec.Target)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("get and take on unknown target return ErrNotFound", func(t *testing.T) {
		s := factory(t, domaintest.NewFakeClock(testStart))

		_, err := s.Get(ctx, "+15550000000")
		require.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Take(ctx, "+15550000000")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("delete by id is idempotent", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		rec := newRecord(clock, "+639171234567", "123456", 5*time.Minute)
		require.NoError(t, s.Create(ctx, rec))

		require.NoError(t, s.DeleteIfID(ctx, rec.Target, rec.ID))
		require.NoError(t, s.DeleteIfID(ctx, rec.Target, rec.ID))

		_, err := s.Get(ctx, rec.Target)
		require.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, s.Create(ctx, newRecord(clock, rec.Target, "654321", 5*time.Minute)))
	})

	t.Run("delete with a stale id keeps the newer record", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		first := newRecord(clock, "+639171234567", "111111", 5*time.Minute)
		require.NoError(t, s.Create(ctx, first))
		_, err := s.Take(ctx, first.Target)
		require.NoError(t, err)

		second := newRecord(clock, first.Target, "222222", 5*time.Minute)
		require.NoError(t, s.Create(ctx, second))

		require.NoError(t, s.DeleteIfID(ctx, first.Target, first.ID))

		got, err := s.Get(ctx, second.Target)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
		assert.Equal(t, "222222", got.Code)

		require.NoError(t, s.DeleteIfID(ctx, second.Target, second.ID))
		_, err = s.Get(ctx, second.Target)
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("delete by id on unknown target is a no-op", func(t *testing.T) {
		s := factory(t, domaintest.NewFakeClock(testStart))
		require.NoError(t, s.DeleteIfID(ctx, "+15550000000", "otp-1"))
	})

	t.Run("targets are independent", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		require.NoError(t, s.Create(ctx, newRecord(clock, "+639171234567", "111111", 5*time.Minute)))
		require.NoError(t, s.Create(ctx, newRecord(clock, "a@b.com", "222222", 5*time.Minute)))

		got, err := s.Take(ctx, "a@b.com")
		require.NoError(t, err)
		assert.Equal(t, "222222", got.Code)

		got, err = s.Get(ctx, "+639171234567")
		require.NoError(t, err)
		assert.Equal(t, "111111", got.Code)
	})

	t.Run("concurrent takes hand the record to exactly one caller", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)
		rec := newRecord(clock, "+639171234567", "123456", 5*time.Minute)
		require.NoError(t, s.Create(ctx, rec))

		const workers = 16
		var wg sync.WaitGroup
		var winners, misses atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Take(ctx, rec.Target)
				switch {
				case err == nil:
					winners.Add(1)
				case errors.Is(err, domain.ErrNotFound):
					misses.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load())
		assert.Equal(t, int32(workers-1), misses.Load())
	})

	t.Run("concurrent creates admit exactly one record", func(t *testing.T) {
		clock := domaintest.NewFakeClock(testStart)
		s := factory(t, clock)

		const workers = 16
		var wg sync.WaitGroup
		var created, pending atomic.Int32
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Create(ctx, newRecord(clock, "+639171234567", "123456", 5*time.Minute))
				switch {
				case err == nil:
					created.Add(1)
				case errors.Is(err, domain.ErrAlreadyPending):
					pending.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), created.Load())
		assert.Equal(t, int32(workers-1), pending.Load())
	})
}
