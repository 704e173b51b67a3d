package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/agentsync/internal/errors"
)

func TestRedisStore_TTLExpiry(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ns:kilo:a1", []byte("x"), time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("ns:kilo:a1"))

	mr.FastForward(time.Hour + time.Second)

	_, err := s.Get(ctx, "ns:kilo:a1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ZeroTTLPersists(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ns:kilo:a1", []byte("x"), 0))
	assert.Equal(t, time.Duration(0), mr.TTL("ns:kilo:a1"))
}

func TestRedisStore_UnavailableIsStoreError(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mr.Close()

	_, err := s.Get(ctx, "ns:kilo:a1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)

	var storeErr *errors.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, BackendRedis, storeErr.Backend)
	assert.Equal(t, "get", storeErr.Operation)
	assert.True(t, errors.IsRetryable(err))
}

func TestNewRedisStore_ConnectFailure(t *testing.T) {
	ctx := context.Background()
	_, err := NewRedisStore(ctx, RedisOptions{
		Addr:           "127.0.0.1:1",
		ConnectTimeout: 300 * time.Millisecond,
	})
	assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisOptions{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRedisStore_WatchSignalsOnChange(t *testing.T) {
	s, _ := newMiniredisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Watch(ctx, "ns:kilo:stage_a")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "ns:kilo:unrelated", []byte("x"), time.Hour))
	require.NoError(t, s.Set(ctx, "ns:kilo:stage_a", []byte("y"), time.Hour))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change notification for the watched key")
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watch channel should close after context cancellation")
		}
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ns:kilo:", "ns:kilo:"},
		{"a*b", `a\*b`},
		{"q?[x]", `q\?\[x\]`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeGlob(tt.in))
		})
	}
}
