package audit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamooSoluto/payment-sub001/pkg/audit"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

type actorKey struct{}

func TestTrail_RecordAndList(t *testing.T) {
	t.Parallel()
	ctx := context.WithValue(context.Background(), actorKey{}, audit.Actor{Kind: "admin", ID: "a1"})
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	trail := audit.New(store.NewMemory(),
		audit.WithActor(func(ctx context.Context) (audit.Actor, bool) {
			a, ok := ctx.Value(actorKey{}).(audit.Actor)
			return a, ok
		}),
		audit.WithRequestID(func(context.Context) string { return "req-1" }),
		audit.WithClock(func() time.Time { return now }),
	)

	for i := range 3 {
		_, err := trail.Record(ctx, fmt.Sprintf("step-%d", i), "t1", nil, map[string]any{"n": i})
		require.NoError(t, err)
	}
	failed, err := trail.Record(ctx, "suspend", "t1", errors.New("cannot suspend a canceled subscription"), nil)
	require.NoError(t, err)
	assert.Equal(t, audit.ResultError, failed.Result)
	_, err = trail.Record(context.Background(), "start", "t2", nil, nil)
	require.NoError(t, err)

	events, err := trail.ForTenant(context.Background(), "t1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "suspend", events[0].Action)
	assert.Equal(t, "cannot suspend a canceled subscription", events[0].Error)
	assert.Equal(t, "step-2", events[1].Action)
	assert.Equal(t, audit.Actor{Kind: "admin", ID: "a1"}, events[1].Actor)
	assert.Equal(t, "req-1", events[1].RequestID)
	assert.Equal(t, now, events[1].CreatedAt)

	all, err := trail.ForTenant(context.Background(), "t1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	other, err := trail.ForTenant(context.Background(), "t2", 10)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Empty(t, other[0].Actor.ID)
}

func TestTrail_StoreDown(t *testing.T) {
	t.Parallel()
	trail := audit.New(store.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, err := trail.Record(ctx, "start", "t1", nil, nil)
	assert.ErrorIs(t, err, audit.ErrUnavailable)
	require.NotNil(t, e)
	assert.Equal(t, "start", e.Action)

	_, err = trail.ForTenant(ctx, "t1", 0)
	assert.ErrorIs(t, err, audit.ErrUnavailable)
}

func TestTrail_InvalidEvent(t *testing.T) {
	t.Parallel()
	_, err := audit.New(store.NewMemory()).Record(context.Background(), "", "t1", nil, nil)
	assert.ErrorIs(t, err, audit.ErrInvalidEvent)
}
