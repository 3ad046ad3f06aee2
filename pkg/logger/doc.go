// Package logger builds *slog.Logger instances for the billing console and
// provides attribute helpers so every component logs the same keys
// (tenant_id, session_kind, principal_id, transition, component).
//
// New wraps the configured text or JSON handler in a decorator that pulls
// request-scoped values out of context.Context on every record, which is how
// the chi request id ends up on log lines emitted deep inside services.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "billingd"),
//		logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	log.InfoContext(ctx, "subscription renewed", logger.TenantID(id))
package logger
