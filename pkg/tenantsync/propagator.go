package tenantsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/async"
	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/metrics"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultErrBufSize = 64
)

// Propagator dispatches mirror updates without blocking the caller.
type Propagator struct {
	dispatcher Dispatcher
	timeout    time.Duration
	errs       chan SyncError
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithTimeout bounds each dispatch. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(p *Propagator) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithErrorBuffer sets the capacity of the Errors channel.
func WithErrorBuffer(n int) Option {
	return func(p *Propagator) {
		if n > 0 {
			p.errs = make(chan SyncError, n)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Propagator) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Propagator) { p.metrics = m }
}

// NewPropagator sends views through d. It panics when d is nil.
func NewPropagator(d Dispatcher, opts ...Option) *Propagator {
	if d == nil {
		panic("tenantsync: nil dispatcher")
	}
	p := &Propagator{
		dispatcher: d,
		timeout:    defaultTimeout,
		errs:       make(chan SyncError, defaultErrBufSize),
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("tenantsync"))
	return p
}

// Errors reports failed updates. Reports are dropped when nobody drains the
// channel fast enough.
func (p *Propagator) Errors() <-chan SyncError {
	return p.errs
}

// Sync dispatches v for tenantID on its own goroutine. The dispatch outlives
// ctx's cancellation but keeps its values. Callers that need to read their own
// write await the returned future; everyone else drops it.
func (p *Propagator) Sync(ctx context.Context, tenantID string, v View) *async.Future[struct{}] {
	msg := Message{TenantID: tenantID, View: v}
	if v.Empty() {
		p.metrics.TenantSynced(metrics.ResultSkipped, 0)
		return async.Completed(struct{}{}, nil)
	}

	base := context.WithoutCancel(ctx)
	return async.Go(base, func(ctx context.Context) (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		start := time.Now()
		err := p.dispatch(ctx, msg)
		elapsed := time.Since(start)
		if err != nil {
			p.metrics.TenantSynced(metrics.ResultFailed, elapsed.Seconds())
			p.logger.WarnContext(ctx, "tenant mirror update failed",
				logger.TenantID(tenantID),
				logger.Duration(elapsed),
				logger.Error(err),
			)
			p.report(SyncError{TenantID: tenantID, Err: err})
			return struct{}{}, err
		}
		p.metrics.TenantSynced(metrics.ResultOK, elapsed.Seconds())
		return struct{}{}, nil
	})
}

// dispatch turns a panicking dispatcher into an error so it is reported like
// any other failure.
func (p *Propagator) dispatch(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &async.PanicError{Value: r}
		}
	}()
	return p.dispatcher.Dispatch(ctx, msg)
}

func (p *Propagator) report(e SyncError) {
	select {
	case p.errs <- e:
	default:
		p.logger.Warn("sync error dropped, channel full", logger.TenantID(e.TenantID))
	}
}
