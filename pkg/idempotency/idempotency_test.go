package idempotency

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyTrimsHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/orders", nil)
	r.Header.Set(Header, "  abc ")
	assert.Equal(t, "abc", Key(r))
}

func TestRedisStoreReserveFresh(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Hour)

	mock.ExpectSetNX("idem:k1", pending, time.Hour).SetVal(true)

	res, reserved, err := s.Reserve(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Empty(t, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreReserveReplay(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Hour)

	mock.ExpectSetNX("idem:k1", pending, time.Hour).SetVal(false)
	mock.ExpectGet("idem:k1").SetVal("order-1")

	res, reserved, err := s.Reserve(context.Background(), "k1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "order-1", res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreReserveInFlight(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Hour)

	mock.ExpectSetNX("idem:k1", pending, time.Hour).SetVal(false)
	mock.ExpectGet("idem:k1").SetVal(pending)

	res, reserved, err := s.Reserve(context.Background(), "k1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Empty(t, res)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreCompleteAndRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, time.Minute)

	mock.ExpectSet("idem:k1", "order-1", time.Minute).SetVal("OK")
	mock.ExpectDel("idem:k2").SetVal(1)

	require.NoError(t, s.Complete(context.Background(), "k1", "order-1"))
	require.NoError(t, s.Release(context.Background(), "k2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, reserved, _ := s.Reserve(ctx, "k")
	assert.True(t, reserved)

	res, reserved, _ := s.Reserve(ctx, "k")
	assert.False(t, reserved)
	assert.Empty(t, res)

	require.NoError(t, s.Complete(ctx, "k", "order-1"))
	res, reserved, _ = s.Reserve(ctx, "k")
	assert.False(t, reserved)
	assert.Equal(t, "order-1", res)

	now = now.Add(2 * time.Minute)
	_, reserved, _ = s.Reserve(ctx, "k")
	assert.True(t, reserved)

	require.NoError(t, s.Release(ctx, "k"))
	_, reserved, _ = s.Reserve(ctx, "k")
	assert.True(t, reserved)
}

func TestMemoryStoreSweepsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		_, reserved, err := s.Reserve(ctx, k)
		require.NoError(t, err)
		require.True(t, reserved)
	}
	require.NoError(t, s.Complete(ctx, "b", "order-1"))

	now = now.Add(2 * time.Minute)
	_, reserved, err := s.Reserve(ctx, "d")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Len(t, s.items, 1)
}
