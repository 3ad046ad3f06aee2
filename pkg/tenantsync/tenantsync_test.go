package tenantsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
	"github.com/yamooSoluto/payment-sub001/pkg/tenantsync"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTenant(t *testing.T, s store.Store, id string) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), tenantsync.TenantCollection, id, store.Document{"name": "Cafe " + id}))
}

func activeSub(updated time.Time) *subscription.Subscription {
	next := t0.AddDate(0, 1, 0)
	return &subscription.Subscription{
		TenantID:           "t1",
		Plan:               "basic",
		Status:             subscription.StatusActive,
		CurrentPeriodStart: t0,
		CurrentPeriodEnd:   next,
		NextBillingDate:    &next,
		PricePolicy:        pricing.PolicyStandard,
		Amount:             29000,
		Currency:           "KRW",
		UpdatedAt:          updated,
	}
}

func TestViewOf(t *testing.T) {
	t.Parallel()

	v := tenantsync.ViewOf(activeSub(t0))
	assert.Equal(t, "basic", *v.Plan)
	assert.Equal(t, "active", *v.Status)
	assert.Equal(t, int64(29000), *v.Amount)
	require.NotNil(t, v.NextBillingDate)
	assert.ElementsMatch(t, []tenantsync.Field{tenantsync.FieldPendingPlan, tenantsync.FieldCancelAt}, v.Clear)
	assert.Equal(t, t0, v.SourceUpdatedAt)
	assert.False(t, v.Empty())
	assert.True(t, tenantsync.View{SourceUpdatedAt: t0}.Empty())
}

func TestApplier_MergesOnlySuppliedFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	newTenant(t, mem, "t1")
	a := tenantsync.NewApplier(mem, nil)

	out, err := a.Apply(ctx, "t1", tenantsync.ViewOf(activeSub(t0)))
	require.NoError(t, err)
	assert.Equal(t, tenantsync.Applied, out)

	out, err = a.Apply(ctx, "t1", tenantsync.View{
		Status:          ptr("past_due"),
		SourceUpdatedAt: t0.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, tenantsync.Applied, out)

	m, err := a.Mirror(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "basic", m.Plan)
	assert.Equal(t, "past_due", m.Status)
	require.NotNil(t, m.Amount)
	assert.Equal(t, int64(29000), *m.Amount)
	assert.True(t, t0.Add(time.Minute).Equal(m.SourceUpdatedAt))

	doc, err := mem.Get(ctx, tenantsync.TenantCollection, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Cafe t1", doc["name"])
}

func TestApplier_ClearsFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	newTenant(t, mem, "t1")
	a := tenantsync.NewApplier(mem, nil)

	_, err := a.Apply(ctx, "t1", tenantsync.ViewOf(activeSub(t0)))
	require.NoError(t, err)

	canceled := activeSub(t0.Add(time.Hour))
	canceled.Status = subscription.StatusCanceled
	canceled.NextBillingDate = nil
	_, err = a.Apply(ctx, "t1", tenantsync.ViewOf(canceled))
	require.NoError(t, err)

	m, err := a.Mirror(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "canceled", m.Status)
	assert.Nil(t, m.NextBillingDate)
}

func TestApplier_IgnoresStaleViews(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	newTenant(t, mem, "t1")
	a := tenantsync.NewApplier(mem, nil)

	_, err := a.Apply(ctx, "t1", tenantsync.View{Status: ptr("active"), SourceUpdatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)

	out, err := a.Apply(ctx, "t1", tenantsync.View{Status: ptr("trialing"), SourceUpdatedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, tenantsync.Stale, out)

	m, err := a.Mirror(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "active", m.Status)
}

func TestApplier_MissingTenantIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	a := tenantsync.NewApplier(mem, nil)

	out, err := a.Apply(ctx, "ghost", tenantsync.ViewOf(activeSub(t0)))
	require.NoError(t, err)
	assert.Equal(t, tenantsync.NoTenant, out)

	_, err = mem.Get(ctx, tenantsync.TenantCollection, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplier_StoreUnavailable(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tenantsync.NewApplier(store.NewMemory(), nil).Apply(ctx, "t1", tenantsync.View{Status: ptr("active")})
	assert.ErrorIs(t, err, tenantsync.ErrUnavailable)
}

func TestPropagator_SyncReadYourWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	newTenant(t, mem, "t1")
	a := tenantsync.NewApplier(mem, nil)
	p := tenantsync.NewPropagator(tenantsync.NewLocalDispatcher(a))

	_, err := p.Sync(ctx, "t1", tenantsync.ViewOf(activeSub(t0))).Await(ctx)
	require.NoError(t, err)

	m, err := a.Mirror(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "active", m.Status)
}

func TestPropagator_OutlivesCallerContext(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	newTenant(t, mem, "t1")
	a := tenantsync.NewApplier(mem, nil)
	p := tenantsync.NewPropagator(tenantsync.NewLocalDispatcher(a))

	ctx, cancel := context.WithCancel(context.Background())
	f := p.Sync(ctx, "t1", tenantsync.View{Status: ptr("active"), SourceUpdatedAt: t0})
	cancel()

	_, err := f.Await(context.Background())
	require.NoError(t, err)
}

func TestPropagator_ReportsFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("broker down")
	p := tenantsync.NewPropagator(tenantsync.DispatcherFunc(func(context.Context, tenantsync.Message) error {
		return boom
	}))

	_, err := p.Sync(context.Background(), "t1", tenantsync.View{Status: ptr("active")}).Await(context.Background())
	assert.ErrorIs(t, err, boom)

	select {
	case e := <-p.Errors():
		assert.Equal(t, "t1", e.TenantID)
		assert.ErrorIs(t, e, boom)
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
}

func TestPropagator_RecoversPanics(t *testing.T) {
	t.Parallel()
	p := tenantsync.NewPropagator(tenantsync.DispatcherFunc(func(context.Context, tenantsync.Message) error {
		panic("boom")
	}))

	_, err := p.Sync(context.Background(), "t1", tenantsync.View{Status: ptr("active")}).Await(context.Background())
	require.Error(t, err)
	e := <-p.Errors()
	assert.Equal(t, "t1", e.TenantID)
}

func TestPropagator_ErrorChannelNeverBlocks(t *testing.T) {
	t.Parallel()
	p := tenantsync.NewPropagator(tenantsync.DispatcherFunc(func(context.Context, tenantsync.Message) error {
		return errors.New("nope")
	}), tenantsync.WithErrorBuffer(1))

	ctx := context.Background()
	for range 3 {
		_, err := p.Sync(ctx, "t1", tenantsync.View{Status: ptr("active")}).Await(ctx)
		require.Error(t, err)
	}
	assert.Len(t, p.Errors(), 1)
}

func TestPropagator_EmptyViewSkipped(t *testing.T) {
	t.Parallel()
	called := false
	p := tenantsync.NewPropagator(tenantsync.DispatcherFunc(func(context.Context, tenantsync.Message) error {
		called = true
		return nil
	}))

	f := p.Sync(context.Background(), "t1", tenantsync.View{})
	assert.True(t, f.IsComplete())
	assert.False(t, called)
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  []string
	published []amqp.Publishing
	keys      []string
	err       error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if durable {
		c.declared = append(c.declared, name)
	}
	return amqp.Queue{Name: name}, nil
}

func TestAMQPDispatcher_Publish(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{}
	require.NoError(t, tenantsync.DeclareQueue(ch, tenantsync.DefaultQueue))
	assert.Equal(t, []string{tenantsync.DefaultQueue}, ch.declared)

	d := tenantsync.NewAMQPDispatcher(ch, "")
	require.NoError(t, d.Dispatch(context.Background(), tenantsync.Message{
		TenantID: "t1",
		View:     tenantsync.View{Status: ptr("active"), SourceUpdatedAt: t0},
	}))

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, "/"+tenantsync.DefaultQueue, ch.keys[0])
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)

	var msg tenantsync.Message
	require.NoError(t, json.Unmarshal(pub.Body, &msg))
	assert.Equal(t, "t1", msg.TenantID)
	assert.Equal(t, "active", *msg.View.Status)
}

func TestAMQPDispatcher_Errors(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{err: amqp.ErrClosed}
	d := tenantsync.NewAMQPDispatcher(ch, "q")

	err := d.Dispatch(context.Background(), tenantsync.Message{TenantID: "t1"})
	assert.ErrorIs(t, err, tenantsync.ErrUnavailable)

	err = d.Dispatch(context.Background(), tenantsync.Message{})
	assert.ErrorIs(t, err, tenantsync.ErrInvalidMessage)
}

type ack struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *ack) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ack) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ack) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func TestConsumer_Run(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	newTenant(t, mem, "t1")
	a := tenantsync.NewApplier(mem, nil)
	c := tenantsync.NewConsumer(a)

	body, err := json.Marshal(tenantsync.Message{
		TenantID: "t1",
		View:     tenantsync.View{Plan: ptr("business"), SourceUpdatedAt: t0},
	})
	require.NoError(t, err)

	acks := &ack{}
	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: body}
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, Body: []byte("{not json")}
	deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3, Body: []byte(`{"view":{}}`)}
	close(deliveries)

	err = c.Run(context.Background(), deliveries)
	assert.ErrorIs(t, err, tenantsync.ErrDeliveriesClosed)

	assert.Equal(t, []uint64{1}, acks.acked)
	assert.Equal(t, []uint64{2, 3}, acks.nacked)
	assert.Equal(t, []bool{false, false}, acks.requeue)

	m, err := a.Mirror(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "business", m.Plan)
}

func TestConsumer_StopsOnContext(t *testing.T) {
	t.Parallel()
	c := tenantsync.NewConsumer(tenantsync.NewApplier(store.NewMemory(), nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx, make(chan amqp.Delivery))
	assert.ErrorIs(t, err, context.Canceled)
}
