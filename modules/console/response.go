package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/principal"
	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
	"github.com/yamooSoluto/payment-sub001/pkg/tenantsync"
	"github.com/yamooSoluto/payment-sub001/svc/auth"
)

const maxBodyBytes = 64 << 10

// ErrBadRequest marks a malformed request body or parameter.
var ErrBadRequest = errors.New("console.bad_request")

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the error half of the response envelope.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPError is a classified error ready to be written.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e HTTPError) Error() string { return e.Code }

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	he := Classify(err)
	attrs := []any{
		slog.Int("status", he.Status),
		slog.String("code", he.Code),
		slog.String("path", r.URL.Path),
		logger.Error(err),
	}
	switch {
	case he.Status >= http.StatusInternalServerError:
		log.ErrorContext(r.Context(), "request failed", attrs...)
	case he.Status == http.StatusConflict:
		log.InfoContext(r.Context(), "request rejected", attrs...)
	default:
		log.DebugContext(r.Context(), "request rejected", attrs...)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(he.Status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: &ErrorDetail{Code: he.Code, Message: he.Message}})
}

// Classify maps service errors onto HTTP statuses. Unavailability wins over
// every other classification since it may be joined with any of them.
func Classify(err error) HTTPError {
	var he HTTPError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, auth.ErrUnavailable),
		errors.Is(err, session.ErrUnavailable),
		errors.Is(err, subscription.ErrUnavailable),
		errors.Is(err, principal.ErrUnavailable),
		errors.Is(err, tenantsync.ErrUnavailable):
		return HTTPError{Status: http.StatusServiceUnavailable, Code: "unavailable", Message: "service temporarily unavailable"}

	case errors.Is(err, auth.ErrInvalidCredentials):
		return HTTPError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "invalid login id or password"}
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, session.ErrUnauthenticated),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, rbac.ErrSubjectNotInContext):
		return HTTPError{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "authentication required"}

	case errors.Is(err, rbac.ErrUnauthorized):
		return HTTPError{Status: http.StatusForbidden, Code: "forbidden", Message: "permission denied"}

	case errors.Is(err, subscription.ErrNotFound):
		return HTTPError{Status: http.StatusNotFound, Code: "not_found", Message: "subscription not found"}

	case errors.Is(err, subscription.ErrAlreadySubscribed):
		return HTTPError{Status: http.StatusConflict, Code: "already_subscribed", Message: reason(err, "tenant already holds a live subscription")}
	case errors.Is(err, subscription.ErrIllegalTransition):
		return HTTPError{Status: http.StatusConflict, Code: "illegal_transition", Message: reason(err, "transition not allowed")}
	case errors.Is(err, auth.ErrCheckoutClosed):
		return HTTPError{Status: http.StatusConflict, Code: "checkout_closed", Message: "checkout already completed"}

	case errors.Is(err, subscription.ErrUnknownPlan):
		return HTTPError{Status: http.StatusBadRequest, Code: "unknown_plan", Message: err.Error()}
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, subscription.ErrInvalidInput),
		errors.Is(err, principal.ErrInvalidPrincipal):
		return HTTPError{Status: http.StatusBadRequest, Code: "invalid_input", Message: err.Error()}
	}
	return HTTPError{Status: http.StatusInternalServerError, Code: "internal_error", Message: http.StatusText(http.StatusInternalServerError)}
}

// reason returns the operator-facing reason of a rejected transition.
func reason(err error, fallback string) string {
	var te *subscription.TransitionError
	if errors.As(err, &te) && te.Reason != "" {
		return te.Reason
	}
	return fallback
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
