package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". A nil error yields an empty Attr, which
// slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component names the package or service emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// TenantID returns a tenant_id attribute.
func TenantID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("tenant_id", id)
}

func SessionKind(kind string) slog.Attr {
	return slog.String("session_kind", kind)
}

// PrincipalID records the admin, manager or user identifier.
func PrincipalID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("principal_id", id)
}

func Role(role string) slog.Attr {
	return slog.String("role", role)
}

// Transition records a subscription transition name.
func Transition(name string) slog.Attr {
	return slog.String("transition", name)
}

// Status returns a subscription status attribute.
func Status(status string) slog.Attr {
	return slog.String("status", status)
}

// Plan returns a plan id attribute.
func Plan(plan string) slog.Attr {
	if plan == "" {
		return slog.Attr{}
	}
	return slog.String("plan", plan)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Duration returns a duration attribute.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
