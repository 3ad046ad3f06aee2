package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

// slowStore blocks until the context is done.
type slowStore struct{ store.Store }

func (s slowStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s slowStore) Create(ctx context.Context, collection, id string, doc store.Document) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := store.WithTimeout(slowStore{Store: store.NewMemory()}, 10*time.Millisecond)

	_, err := s.Get(ctx, "sessions", "x")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = s.Create(ctx, "usage", "x", store.Document{})
	assert.ErrorIs(t, err, store.ErrUnavailable)

	require.NoError(t, s.Set(ctx, "sessions", "y", store.Document{"a": 1}))
	_, err = s.Get(ctx, "sessions", "missing")
	assert.ErrorIs(t, err, store.ErrUnavailable, "slow backend never answers")
}

func TestWithTimeout_KeepsDomainErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.WithTimeout(store.NewMemory(), time.Second)

	_, err := s.Get(ctx, "sessions", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, store.ErrUnavailable)

	assert.ErrorIs(t, s.Update(ctx, "sessions", "missing", store.Document{"a": 1}), store.ErrNotFound)
}

func TestWithTimeout_ZeroReturnsSameStore(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	assert.Same(t, mem, store.WithTimeout(mem, 0))
}

func TestOpen_Memory(t *testing.T) {
	t.Parallel()
	b, err := store.Open(context.Background(), store.Config{Backend: store.BackendMemory, Timeout: time.Second}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Healthcheck(context.Background()))
	require.NoError(t, b.Store.Set(context.Background(), "c", "id", store.Document{"k": "v"}))
	require.NoError(t, b.Close(context.Background()))
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()
	_, err := store.Open(context.Background(), store.Config{Backend: "cassandra"}, nil)
	assert.ErrorIs(t, err, store.ErrUnknownBackend)
}
