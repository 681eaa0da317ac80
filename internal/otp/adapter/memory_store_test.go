package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/domain/domaintest"
	"github.com/aelexs/clinic-otp/internal/otp/app"
)

func TestMemoryStore_Contract(t *testing.T) {
	runRecordStoreContract(t, func(_ *testing.T, clock *domaintest.FakeClock) app.RecordStore {
		return NewMemoryStore(clock, testRetention)
	})
}

func TestMemoryStore_Get_ReturnsCopy(t *testing.T) {
	clock := domaintest.NewFakeClock(testStart)
	s := NewMemoryStore(clock, testRetention)
	require.NoError(t, s.Create(context.Background(), newRecord(clock, "+639171234567", "123456", time.Minute)))

	got, err := s.Get(context.Background(), "+639171234567")
	require.NoError(t, err)
	got.Code = "000000"

	again, err := s.Get(context.Background(), "+639171234567")
	require.NoError(t, err)
	assert.Equal(t, "123456", again.Code)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := domaintest.NewFakeClock(testStart)
	s := NewMemoryStore(clock, testRetention)

	require.NoError(t, s.Create(ctx, newRecord(clock, "+639170000001", "111111", time.Minute)))
	require.NoError(t, s.Create(ctx, newRecord(clock, "+639170000002", "222222", time.Hour)))

	t.Run("keeps expired records during retention", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		assert.Equal(t, 0, s.Sweep())
		assert.Equal(t, 2, s.Len())
	})

	t.Run("drops records past retention", func(t *testing.T) {
		clock.Advance(testRetention)
		assert.Equal(t, 1, s.Sweep())
		assert.Equal(t, 1, s.Len())

		_, err := s.Get(ctx, "+639170000001")
		require.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Get(ctx, "+639170000002")
		require.NoError(t, err)
	})
}

func TestMemoryStore_RunSweeper(t *testing.T) {
	clock := domaintest.NewFakeClock(testStart)
	s := NewMemoryStore(clock, 0)
	require.NoError(t, s.Create(context.Background(), newRecord(clock, "+639171234567", "123456", time.Minute)))
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunSweeper(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
