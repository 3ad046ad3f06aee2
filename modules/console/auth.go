package console

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
	"github.com/yamooSoluto/payment-sub001/svc/auth"
)

// sso exchanges a portal account token for an account session. Browsers land
// here from the portal, so failures redirect to the login page instead of
// answering JSON.
func (h *handlers) sso(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.ExchangeAccountToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		code := Classify(err).Code
		if code == "unauthenticated" {
			code = "invalid_token"
		}
		h.logger.InfoContext(r.Context(), "sso rejected", logger.Error(err))
		http.Redirect(w, r, "/login?error="+url.QueryEscape(code), http.StatusSeeOther)
		return
	}
	setCookie(w, h.auth.Sessions().Auth, sess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type accountView struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context(), session.KindAuth)
	writeJSON(w, http.StatusOK, accountView{Email: sess.Email, ExpiresAt: sess.ExpiresAt})
}

type checkoutRequest struct {
	Token string `json:"token"`
	auth.CheckoutRequest
}

type checkoutView struct {
	Email string `json:"email"`
	*session.Checkout
	ExpiresAt time.Time `json:"expiresAt"`
}

func viewCheckout(s *session.Session) checkoutView {
	return checkoutView{Email: s.Email, Checkout: s.Checkout, ExpiresAt: s.ExpiresAt}
}

func (h *handlers) beginCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sess, err := h.auth.BeginCheckout(r.Context(), req.Token, req.CheckoutRequest)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	setCookie(w, h.auth.Sessions().Checkout, sess)
	writeJSON(w, http.StatusCreated, viewCheckout(sess))
}

func (h *handlers) checkoutState(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context(), session.KindCheckout)
	writeJSON(w, http.StatusOK, viewCheckout(sess))
}

type completeRequest struct {
	OrderID string `json:"orderId"`
	Success bool   `json:"success"`
}

func (h *handlers) completeCheckout(w http.ResponseWriter, r *http.Request) {
	id, err := h.auth.Sessions().Checkout.Cookie().Token(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req completeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sess, err := h.auth.CompleteCheckout(r.Context(), id, req.OrderID, req.Success)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, viewCheckout(sess))
}

type loginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

type operatorView struct {
	Kind    session.Kind          `json:"kind"`
	LoginID string                `json:"loginId"`
	Name    string                `json:"name,omitempty"`
	Role    rbac.Role             `json:"role,omitempty"`
	Tenants []session.TenantScope `json:"tenants,omitempty"`
}

func viewOperator(s *session.Session) operatorView {
	return operatorView{Kind: s.Kind, LoginID: s.LoginID, Name: s.Name, Role: s.Role, Tenants: s.TenantScopes}
}

func (h *handlers) adminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.auth.AdminLogin, h.auth.Sessions().Admin)
}

func (h *handlers) managerLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.auth.ManagerLogin, h.auth.Sessions().Manager)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request, open func(ctx context.Context, loginID, password string) (*session.Session, error), m *session.Manager) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.LoginID == "" || req.Password == "" {
		writeError(w, r, h.logger, errors.Join(ErrBadRequest, errors.New("login id and password are required")))
		return
	}
	sess, err := open(r.Context(), req.LoginID, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	setCookie(w, m, sess)
	writeJSON(w, http.StatusOK, viewOperator(sess))
}

// logout revokes the kind's session named by the request cookie. It succeeds
// without a session so a stale client can always clear its cookie.
func (h *handlers) logout(kind session.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := sessionsOf(h.auth.Sessions(), kind)
		id, err := m.Cookie().Token(r)
		m.Cookie().Clear(w)
		if err == nil {
			if err := h.auth.Logout(r.Context(), kind, id); err != nil && errors.Is(err, auth.ErrUnavailable) {
				writeError(w, r, h.logger, err)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func setCookie(w http.ResponseWriter, m *session.Manager, s *session.Session) {
	m.Cookie().Set(w, s.ID, s.ExpiresAt.Sub(s.CreatedAt))
}

func sessionsOf(s auth.Sessions, kind session.Kind) *session.Manager {
	if kind == session.KindAdmin {
		return s.Admin
	}
	return s.Manager
}
