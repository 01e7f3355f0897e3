package web

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/louisbranch/authserver/internal/account"
	"github.com/louisbranch/authserver/internal/flow"
	"github.com/louisbranch/authserver/internal/oidc"
	"github.com/louisbranch/authserver/internal/profile"
	"github.com/louisbranch/authserver/internal/storage"
)

const dateLayout = "2006-01-02"

type registerView struct {
	ReturnURL   string
	Username    string
	Email       string
	FirstName   string
	LastName    string
	DateOfBirth string
	PhoneNumber string
	Errors      []account.FieldError
}

type updateView struct {
	ReturnURL string
	Username  string
	Email     string
	Errors    []account.FieldError
}

type deleteView struct {
	Errors []account.FieldError
}

type infoView struct {
	Username  string
	Email     string
	CreatedAt string
}

type loginView struct {
	ReturnURL string
	Username  string
	Error     string
}

type loadingView struct {
	RedirectURL string
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.render(w, "register.html", registerView{ReturnURL: r.URL.Query().Get("returnUrl")})
	case http.MethodPost:
		h.handleRegisterPost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRegisterPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	view := registerView{
		ReturnURL:   r.FormValue("returnUrl"),
		Username:    r.FormValue("username"),
		Email:       r.FormValue("email"),
		FirstName:   r.FormValue("first_name"),
		LastName:    r.FormValue("last_name"),
		DateOfBirth: r.FormValue("date_of_birth"),
		PhoneNumber: r.FormValue("phone_number"),
	}

	payload := profile.Payload{
		FirstName:   view.FirstName,
		LastName:    view.LastName,
		Gender:      profile.Gender(r.FormValue("gender")),
		PhoneNumber: view.PhoneNumber,
	}
	if view.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, view.DateOfBirth)
		if err != nil {
			view.Errors = []account.FieldError{{Field: "date_of_birth", Message: "date of birth must be YYYY-MM-DD"}}
			h.render(w, "register.html", view)
			return
		}
		payload.DateOfBirth = dob
	}

	res, err := h.flows.Register(r.Context(), flow.RegisterInput{
		Candidate: account.Candidate{
			Username: view.Username,
			Email:    view.Email,
			Password: r.FormValue("password"),
		},
		Profile:   payload,
		ReturnURL: view.ReturnURL,
		Submit:    r.FormValue("button") == "create",
	})
	if err != nil {
		h.flowError(w, "register", err)
		return
	}
	if res.Failed() {
		view.Errors = res.Fields
		h.render(w, "register.html", view)
		return
	}

	h.setSessionCookie(w, res.Session)
	h.applyDestination(w, r, res.Destination)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	current, _, ok := h.currentAccount(r.Context(), r)
	if !ok {
		h.redirectToLogin(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.render(w, "update.html", updateView{
			ReturnURL: r.URL.Query().Get("returnUrl"),
			Username:  current.Username,
			Email:     current.Email,
		})
	case http.MethodPost:
		h.handleUpdatePost(w, r, current)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUpdatePost(w http.ResponseWriter, r *http.Request, current account.Account) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	view := updateView{
		ReturnURL: r.FormValue("returnUrl"),
		Username:  r.FormValue("username"),
		Email:     r.FormValue("email"),
	}

	res, err := h.flows.Update(r.Context(), flow.UpdateInput{
		AccountID: current.ID,
		Username:  view.Username,
		Email:     view.Email,
		ReturnURL: view.ReturnURL,
		Submit:    r.FormValue("button") == "update",
	})
	if err != nil {
		h.flowError(w, "update", err)
		return
	}
	if res.Failed() {
		view.Errors = res.Fields
		h.render(w, "update.html", view)
		return
	}

	h.setSessionCookie(w, res.Session)
	h.applyDestination(w, r, res.Destination)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	current, _, ok := h.currentAccount(r.Context(), r)
	if !ok {
		h.redirectToLogin(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.render(w, "delete.html", deleteView{})
	case http.MethodPost:
		res, err := h.flows.Delete(r.Context(), current.ID)
		if err != nil {
			h.flowError(w, "delete", err)
			return
		}
		if res.Failed() {
			h.render(w, "delete.html", deleteView{Errors: res.Fields})
			return
		}
		h.clearSessionCookie(w)
		h.applyDestination(w, r, res.Destination)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	current, _, ok := h.currentAccount(r.Context(), r)
	if !ok {
		h.redirectToLogin(w, r)
		return
	}
	h.render(w, "info.html", infoView{
		Username:  current.Username,
		Email:     current.Email,
		CreatedAt: current.CreatedAt.Format(time.RFC1123),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.render(w, "login.html", loginView{ReturnURL: r.URL.Query().Get("returnUrl")})
	case http.MethodPost:
		h.handleLoginPost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	view := loginView{
		ReturnURL: r.FormValue("returnUrl"),
		Username:  r.FormValue("username"),
	}

	a, hash, err := h.accounts.FindCredentials(r.Context(), view.Username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Printf("ERROR login lookup for %q: %v", view.Username, err)
		}
		view.Error = "invalid username or password"
		h.render(w, "login.html", view)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(r.FormValue("password"))) != nil {
		view.Error = "invalid username or password"
		h.render(w, "login.html", view)
		return
	}

	session, err := h.flows.SignIn(r.Context(), a.ID)
	if err != nil {
		h.logger.Printf("ERROR sign in %q: %v", view.Username, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.setSessionCookie(w, &session)

	target := "/"
	if oidc.IsLocalURL(view.ReturnURL) {
		target = view.ReturnURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := h.flows.SignOut(r.Context(), cookie.Value); err != nil {
			h.logger.Printf("ERROR sign out: %v", err)
		}
	}
	h.clearSessionCookie(w)
	h.redirectToLogin(w, r)
}

// applyDestination turns a flow destination into an HTTP response: a plain
// redirect, or the loading page for native clients.
func (h *Handler) applyDestination(w http.ResponseWriter, r *http.Request, dest oidc.Destination) {
	switch dest.Kind {
	case oidc.DestinationLoadingPage:
		h.render(w, "loading.html", loadingView{RedirectURL: dest.URL})
	default:
		url := dest.URL
		if url == "" {
			url = "/"
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

func (h *Handler) flowError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, oidc.ErrInvalidReturnURL) {
		http.Error(w, "invalid return URL", http.StatusBadRequest)
		return
	}
	h.logger.Printf("ERROR %s flow: %v", op, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, name string, view any) {
	if err := templates.ExecuteTemplate(w, name, view); err != nil {
		h.logger.Printf("ERROR render %s: %v", name, err)
	}
}
