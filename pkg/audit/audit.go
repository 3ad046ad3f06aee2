// Package audit keeps the trail of operator actions on tenant subscriptions.
// Events are append-only documents in the shared store; ids are UUIDv7 so the
// store's id order is chronological.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
)

const Collection = "audit_events"

var (
	ErrInvalidEvent = errors.New("audit.invalid_event")
	ErrUnavailable  = errors.New("audit.unavailable")
)

// Result tells whether the audited action succeeded.
type Result string

const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

// Actor is who performed an action.
type Actor struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Event is one recorded operator or scheduler action.
type Event struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	TenantID  string         `json:"tenantId"`
	Actor     Actor          `json:"actor"`
	Result    Result         `json:"result"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Validate runs on every store read and write.
func (e *Event) Validate() error {
	switch {
	case e.ID == "" || e.Action == "":
		return fmt.Errorf("%w: missing id or action", ErrInvalidEvent)
	case e.Result != ResultSuccess && e.Result != ResultError:
		return fmt.Errorf("%w: result %q", ErrInvalidEvent, e.Result)
	}
	return nil
}

// Trail records and lists events.
type Trail struct {
	events    *store.Collection[Event]
	actor     func(context.Context) (Actor, bool)
	requestID func(context.Context) string
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Trail.
type Option func(*Trail)

// WithActor sets how the acting principal is read from the request context.
func WithActor(fn func(context.Context) (Actor, bool)) Option {
	return func(t *Trail) {
		if fn != nil {
			t.actor = fn
		}
	}
}

// WithRequestID sets how the request id is read from the context.
func WithRequestID(fn func(context.Context) string) Option {
	return func(t *Trail) {
		if fn != nil {
			t.requestID = fn
		}
	}
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Trail) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns a Trail writing to st. It panics when st is nil.
func New(st store.Store, opts ...Option) *Trail {
	if st == nil {
		panic("audit: nil store")
	}
	t := &Trail{
		events:    store.NewCollection[Event](st, Collection),
		actor:     func(context.Context) (Actor, bool) { return Actor{}, false },
		requestID: func(context.Context) string { return "" },
		now:       time.Now,
		logger:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logger.Component("audit"))
	return t
}

// Record stores the outcome of action on tenantID. A nil cause records a
// success. The event is returned even when storing it failed.
func (t *Trail) Record(ctx context.Context, action, tenantID string, cause error, metadata map[string]any) (*Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	e := &Event{
		ID:        id.String(),
		Action:    action,
		TenantID:  tenantID,
		Result:    ResultSuccess,
		Metadata:  metadata,
		RequestID: t.requestID(ctx),
		CreatedAt: t.now().UTC(),
	}
	if actor, ok := t.actor(ctx); ok {
		e.Actor = actor
	}
	if cause != nil {
		e.Result = ResultError
		e.Error = cause.Error()
	}

	if err := t.events.Create(ctx, e.ID, e); err != nil {
		t.logger.ErrorContext(ctx, "audit event lost",
			slog.String("action", action), logger.TenantID(tenantID), logger.Error(err))
		if errors.Is(err, store.ErrInvalidRecord) {
			return e, errors.Join(ErrInvalidEvent, err)
		}
		return e, errors.Join(ErrUnavailable, err)
	}
	return e, nil
}

// ForTenant returns the tenant's most recent events, newest first. A limit
// <= 0 returns all of them.
func (t *Trail) ForTenant(ctx context.Context, tenantID string, limit int) ([]*Event, error) {
	events, err := t.events.FindEquals(ctx, "tenantId", tenantID, 0)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	slices.Reverse(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
