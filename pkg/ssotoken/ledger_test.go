package ssotoken_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamooSoluto/payment-sub001/pkg/ssotoken"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

func usageAt(hash string, usedAt time.Time, ttl time.Duration) ssotoken.Usage {
	return ssotoken.Usage{
		TokenHash:      hash,
		Email:          "a@b.c",
		Purpose:        ssotoken.PurposeAccount,
		UsedAt:         usedAt,
		GraceExpiresAt: usedAt.Add(2 * time.Second),
		ExpiresAt:      usedAt.Add(ttl),
	}
}

func TestStoreLedger_ExpiredUsageIsReplaced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	l := ssotoken.NewStoreLedger(mem)

	existing, err := l.Claim(ctx, usageAt("h1", epoch, 10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, existing)

	existing, err = l.Claim(ctx, usageAt("h1", epoch.Add(time.Minute), 10*time.Minute))
	require.ErrorIs(t, err, ssotoken.ErrAlreadyClaimed)
	require.NotNil(t, existing)
	assert.True(t, existing.UsedAt.Equal(epoch))

	later := epoch.Add(11 * time.Minute)
	existing, err = l.Claim(ctx, usageAt("h1", later, 10*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, existing)

	doc, err := mem.Get(ctx, ssotoken.UsageCollection, "h1")
	require.NoError(t, err)
	var stored ssotoken.Usage
	require.NoError(t, store.Decode(doc, &stored))
	assert.True(t, stored.UsedAt.Equal(later))
}

func TestStoreLedger_Purge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	l := ssotoken.NewStoreLedger(mem)

	// epoch is 10:00; h1 expires 10:10, h2 expires 11:30.
	_, err := l.Claim(ctx, usageAt("h1", epoch, 10*time.Minute))
	require.NoError(t, err)
	_, err = l.Claim(ctx, usageAt("h2", epoch, 90*time.Minute))
	require.NoError(t, err)

	n, err := l.Purge(ctx, epoch.Add(59*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n, "the 10:00 hour has not elapsed yet")

	n, err = l.Purge(ctx, epoch.Add(65*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = mem.Get(ctx, ssotoken.UsageCollection, "h1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = mem.Get(ctx, ssotoken.UsageCollection, "h2")
	require.NoError(t, err)

	n, err = l.Purge(ctx, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = mem.Get(ctx, ssotoken.UsageCollection, "h2")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = l.Purge(ctx, epoch.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoreLedger_PurgeStoreDown(t *testing.T) {
	t.Parallel()
	l := ssotoken.NewStoreLedger(store.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Purge(ctx, epoch)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
