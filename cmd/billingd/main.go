// Command billingd serves the tenant billing console: portal SSO, checkout
// sessions, operator logins, the subscription admin API and the scheduler
// trigger endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/yamooSoluto/payment-sub001/modules/console"
	"github.com/yamooSoluto/payment-sub001/pkg/audit"
	"github.com/yamooSoluto/payment-sub001/pkg/config"
	"github.com/yamooSoluto/payment-sub001/pkg/httpserver"
	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/metrics"
	"github.com/yamooSoluto/payment-sub001/pkg/principal"
	"github.com/yamooSoluto/payment-sub001/pkg/ratelimiter"
	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
	"github.com/yamooSoluto/payment-sub001/pkg/redis"
	"github.com/yamooSoluto/payment-sub001/pkg/requestid"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
	"github.com/yamooSoluto/payment-sub001/pkg/ssotoken"
	"github.com/yamooSoluto/payment-sub001/pkg/store"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
	"github.com/yamooSoluto/payment-sub001/pkg/tenantsync"
	"github.com/yamooSoluto/payment-sub001/svc/auth"
	"github.com/yamooSoluto/payment-sub001/svc/billing"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	CatalogPath   string        `env:"CATALOG_PATH"`
	TriggerSecret string        `env:"BILLING_TRIGGER_SECRET"`
	MirrorWait    time.Duration `env:"TENANT_MIRROR_WAIT" envDefault:"2s"`
	SyncTimeout   time.Duration `env:"TENANT_SYNC_TIMEOUT" envDefault:"5s"`

	AMQPURL   string `env:"AMQP_URL"`
	SyncQueue string `env:"TENANT_SYNC_QUEUE" envDefault:"billing.tenant_sync"`

	OwnerLoginID  string `env:"BOOTSTRAP_OWNER_LOGIN"`
	OwnerPassword string `env:"BOOTSTRAP_OWNER_PASSWORD"`

	HTTP    httpserver.Config
	Login   ratelimiter.Config
	Store   store.Config
	Redis   redis.Config
	SSO     ssotoken.Config
	Session session.Config
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, "billingd"),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	}
	if cfg.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			opts = append(opts, logger.WithLevel(lvl))
		}
	}
	log := logger.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("billingd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	if cfg.SSO.Secret == "" {
		return errors.New("SSO_TOKEN_SECRET is required")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	backend, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close(context.WithoutCancel(ctx)) }()
	st := backend.Store
	checks := map[string]httpserver.Check{"store": backend.Healthcheck}

	var ledger ssotoken.Ledger
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		ledger = ssotoken.NewRedisLedger(client, "billing:sso:")
		checks["redis"] = redis.Healthcheck(client)
	} else {
		storeLedger := ssotoken.NewStoreLedger(st)
		go purgeUsage(ctx, storeLedger, 15*time.Minute, log)
		ledger = storeLedger
	}
	verifier := ssotoken.NewVerifier([]byte(cfg.SSO.Secret), ledger,
		append(cfg.SSO.Options(), ssotoken.WithLogger(log), ssotoken.WithMetrics(mt))...)

	authz, err := rbac.NewAuthorizer(ctx, rbac.DefaultRoles())
	if err != nil {
		return err
	}
	admins := principal.NewAdminStore(st, principal.WithRoleCheck(authz.VerifyRole))
	managers := principal.NewManagerStore(st)
	if err := bootstrapOwner(ctx, admins, cfg, log); err != nil {
		return err
	}

	newSessions := func(kind session.Kind, extra ...session.Option) *session.Manager {
		opts := append(cfg.Session.Options(kind), session.WithLogger(log), session.WithMetrics(mt))
		return session.New(kind, session.NewDocumentStore(st, kind), append(opts, extra...)...)
	}
	sessions := auth.Sessions{
		Auth:     newSessions(session.KindAuth),
		Checkout: newSessions(session.KindCheckout),
		Admin:    newSessions(session.KindAdmin),
		Manager:  newSessions(session.KindManager, session.WithRefresher(managers)),
	}

	catalog := subscription.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = subscription.LoadCatalogFile(cfg.CatalogPath); err != nil {
			return err
		}
	}

	applier := tenantsync.NewApplier(st, log)
	var dispatcher tenantsync.Dispatcher = tenantsync.NewLocalDispatcher(applier)
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return errors.Join(tenantsync.ErrUnavailable, err)
		}
		defer conn.Close()
		if dispatcher, err = startOutbox(ctx, conn, applier, cfg.SyncQueue, log); err != nil {
			return err
		}
		checks["amqp"] = func(context.Context) error {
			if conn.IsClosed() {
				return amqp.ErrClosed
			}
			return nil
		}
	}
	propagator := tenantsync.NewPropagator(dispatcher,
		tenantsync.WithTimeout(cfg.SyncTimeout),
		tenantsync.WithLogger(log),
		tenantsync.WithMetrics(mt),
	)
	go drainSyncErrors(ctx, propagator.Errors(), log)

	subs := subscription.NewService(subscription.NewDocumentStore(st), catalog,
		subscription.WithLogger(log), subscription.WithMetrics(mt))

	var limiter *ratelimiter.Limiter
	if cfg.Login.Enabled() {
		limiter = ratelimiter.New(cfg.Login)
		go sweep(ctx, limiter, 10*time.Minute)
	}

	authSvc := auth.NewService(verifier,
		principal.NewAuthenticator(admins, managers, principal.WithLogger(log)),
		catalog, sessions, auth.WithLogger(log))
	trail := audit.New(st,
		audit.WithActor(console.Actor),
		audit.WithRequestID(requestid.FromContext),
		audit.WithLogger(log))

	router := console.Router(console.Options{
		Auth:          authSvc,
		Billing:       billing.NewService(subs, propagator, billing.WithLogger(log)),
		Authorizer:    authz,
		Audit:         trail,
		LoginLimiter:  limiter,
		TriggerSecret: cfg.TriggerSecret,
		MirrorWait:    cfg.MirrorWait,
		Metrics:       mt.Handler(),
		Liveness:      http.HandlerFunc(httpserver.Liveness),
		Ready:         httpserver.Readiness(log, 2*time.Second, checks),
		Logger:        log,
	})
	if cfg.TriggerSecret == "" {
		log.Warn("BILLING_TRIGGER_SECRET is empty, billing trigger endpoints are disabled")
	}

	return httpserver.New(cfg.HTTP, httpserver.WithLogger(log)).Run(ctx, router)
}

// startOutbox routes tenant updates through the queue and starts the consumer
// that applies them.
func startOutbox(ctx context.Context, conn *amqp.Connection, applier *tenantsync.Applier, queue string, log *slog.Logger) (tenantsync.Dispatcher, error) {
	pub, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(tenantsync.ErrUnavailable, err)
	}
	if err := tenantsync.DeclareQueue(pub, queue); err != nil {
		return nil, errors.Join(tenantsync.ErrUnavailable, err)
	}
	sub, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(tenantsync.ErrUnavailable, err)
	}

	consumer := tenantsync.NewConsumer(applier, tenantsync.WithConsumerLogger(log))
	go func() {
		err := consumer.Subscribe(ctx, sub, queue)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("tenant sync consumer stopped", logger.Error(err))
		}
	}()
	return tenantsync.NewAMQPDispatcher(pub, queue), nil
}

func drainSyncErrors(ctx context.Context, errs <-chan tenantsync.SyncError, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-errs:
			log.Warn("tenant mirror out of date", logger.TenantID(e.TenantID), logger.Error(e.Err))
		}
	}
}

func sweep(ctx context.Context, l *ratelimiter.Limiter, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

func purgeUsage(ctx context.Context, l *ssotoken.StoreLedger, every time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := l.Purge(ctx, now)
			if err != nil {
				log.Warn("token usage purge failed", logger.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("token usage purged", slog.Int("removed", n))
			}
		}
	}
}

// bootstrapOwner creates the owner admin on first start when credentials are
// configured and no admin holds the login id yet.
func bootstrapOwner(ctx context.Context, admins *principal.AdminStore, cfg appConfig, log *slog.Logger) error {
	if cfg.OwnerLoginID == "" || cfg.OwnerPassword == "" {
		return nil
	}
	if _, err := admins.GetByLoginID(ctx, cfg.OwnerLoginID); err == nil {
		return nil
	} else if !errors.Is(err, principal.ErrNotFound) {
		return err
	}
	hash, err := principal.HashPassword(cfg.OwnerPassword, principal.DefaultCost)
	if err != nil {
		return err
	}
	owner := &principal.Admin{LoginID: cfg.OwnerLoginID, Name: "Owner", Role: rbac.RoleOwner, PasswordHash: hash}
	if err := admins.Save(ctx, owner); err != nil {
		return err
	}
	log.Info("owner admin created", logger.PrincipalID(owner.ID))
	return nil
}
