// Package web serves the account pages: register, update, delete, info and
// login. It is a thin transport over the flow service.
package web

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/louisbranch/authserver/internal/account"
	"github.com/louisbranch/authserver/internal/flow"
	"github.com/louisbranch/authserver/internal/storage"
)

const sessionCookie = "authserver_session"

// Handler serves the account pages.
type Handler struct {
	flows    *flow.Service
	accounts storage.AccountStore
	sessions storage.SessionStore
	logger   *log.Logger
	now      func() time.Time
}

// New assembles the web handler.
func New(flows *flow.Service, accounts storage.AccountStore, sessions storage.SessionStore, logger *log.Logger) *Handler {
	return &Handler{
		flows:    flows,
		accounts: accounts,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Routes returns the account page mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/account/register", h.handleRegister)
	mux.HandleFunc("/account/update", h.handleUpdate)
	mux.HandleFunc("/account/delete", h.handleDelete)
	mux.HandleFunc("/account/info", h.handleInfo)
	mux.HandleFunc("/account/login", h.handleLogin)
	mux.HandleFunc("/account/logout", h.handleLogout)
	mux.HandleFunc("/", h.handleRoot)
	return mux
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/account/info", http.StatusFound)
}

// currentAccount resolves the signed-in account from the session cookie.
func (h *Handler) currentAccount(ctx context.Context, r *http.Request) (account.Account, storage.WebSession, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return account.Account{}, storage.WebSession{}, false
	}
	session, err := h.sessions.GetSession(ctx, cookie.Value)
	if err != nil {
		return account.Account{}, storage.WebSession{}, false
	}
	if session.RevokedAt != nil || h.now().After(session.ExpiresAt) {
		return account.Account{}, storage.WebSession{}, false
	}
	a, err := h.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		return account.Account{}, storage.WebSession{}, false
	}
	return a, session, true
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, session *storage.WebSession) {
	if session == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, flow.LoginPath, http.StatusFound)
}
