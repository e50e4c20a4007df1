package gatekeep

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// ProfileHandlerFunc is called by identity providers once they have a
// verified profile for the user.
type ProfileHandlerFunc func(profile Profile, w http.ResponseWriter, r *http.Request)

// App is the route layer glue: it turns form posts and provider callbacks
// into verifier calls and reacts to the outcome with redirects.
type App struct {
	Local     *LocalVerifier
	Federated *FederatedVerifier
	Sessions  *SessionManager
	Gate      *Gate

	// Redirect targets. Defaults: "/login", "/register", "/secrets", "/".
	LoginURL          string
	RegisterURL       string
	SuccessURL        string
	LogoutRedirectURL string

	// Form field names. Defaults: "username" and "password".
	UsernameField string
	PasswordField string

	Logger *slog.Logger

	mux *http.ServeMux
}

// NewApp wires verifiers, sessions and a gate over a single store.
func NewApp(store CredentialStore, hasher PasswordHasher, sessions *SessionManager) *App {
	return (&App{
		Local:     NewLocalVerifier(store, hasher),
		Federated: NewFederatedVerifier(store),
		Sessions:  sessions,
	}).EnsureDefaults()
}

func (a *App) EnsureDefaults() *App {
	if a.LoginURL == "" {
		a.LoginURL = "/login"
	}
	if a.RegisterURL == "" {
		a.RegisterURL = "/register"
	}
	if a.SuccessURL == "" {
		a.SuccessURL = "/secrets"
	}
	if a.LogoutRedirectURL == "" {
		a.LogoutRedirectURL = "/"
	}
	if a.UsernameField == "" {
		a.UsernameField = "username"
	}
	if a.PasswordField == "" {
		a.PasswordField = "password"
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Sessions != nil {
		a.Sessions.EnsureDefaults()
	}
	if a.Gate == nil {
		a.Gate = &Gate{Sessions: a.Sessions, LoginURL: a.LoginURL}
	}
	a.Gate.EnsureReasonableDefaults()
	return a
}

// Handler serves the login, register and logout endpoints. It must be
// mounted behind Sessions.Session.LoadAndSave.
func (a *App) Handler() http.Handler {
	a.EnsureDefaults()
	if a.mux == nil {
		a.mux = http.NewServeMux()
		a.mux.HandleFunc("POST "+a.LoginURL, a.HandleLogin)
		a.mux.HandleFunc("POST "+a.RegisterURL, a.HandleRegister)
		a.mux.HandleFunc("/logout", a.HandleLogout)
	}
	return a.mux
}

// HandleLogin verifies a local email/password form post.
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.logFailure(r, "login", NewAuthError(KindInvalidInput, "error parsing form", ""))
		http.Redirect(w, r, a.LoginURL, http.StatusFound)
		return
	}
	email := r.FormValue(a.UsernameField)
	password := r.FormValue(a.PasswordField)

	user, err := a.Local.Verify(r.Context(), email, password)
	if err != nil {
		// Every failure looks the same to the client. The kind is only logged.
		a.logFailure(r, "login", err)
		http.Redirect(w, r, a.LoginURL, http.StatusFound)
		return
	}
	a.completeLogin(w, r, user)
}

// HandleRegister creates a local user and logs them in.
func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, a.RegisterURL, http.StatusFound)
		return
	}
	user, err := a.Local.Register(r.Context(), r.FormValue(a.UsernameField), r.FormValue(a.PasswordField))
	if err != nil {
		a.logFailure(r, "register", err)
		if KindOf(err) == KindEmailExists {
			http.Redirect(w, r, a.LoginURL, http.StatusFound)
		} else {
			http.Redirect(w, r, a.RegisterURL, http.StatusFound)
		}
		return
	}
	a.Logger.Info("registered user", "userId", user.ID)
	a.completeLogin(w, r, user)
}

// HandleProfile is the ProfileHandlerFunc given to identity providers.
func (a *App) HandleProfile(profile Profile, w http.ResponseWriter, r *http.Request) {
	user, err := a.Federated.VerifyOrProvision(r.Context(), profile)
	if err != nil {
		a.logFailure(r, "federated login", err, "provider", profile.Provider)
		http.Redirect(w, r, a.LoginURL, http.StatusFound)
		return
	}
	a.completeLogin(w, r, user)
}

// HandleLogout clears the session. A failure to tear it down is a 500.
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	cleared, err := a.Sessions.Clear(r.Context())
	if err != nil {
		a.Logger.Error("error logging out", "err", err)
		http.Error(w, "Logout failed", http.StatusInternalServerError)
		return
	}
	if cleared {
		a.Logger.Info("logged out user")
	}
	http.Redirect(w, r, a.LogoutRedirectURL, http.StatusFound)
}

// completeLogin rotates the session token and binds user to it. Only called
// after a verifier has succeeded.
func (a *App) completeLogin(w http.ResponseWriter, r *http.Request, user *User) {
	if err := a.Sessions.Session.RenewToken(r.Context()); err != nil {
		a.Logger.Error("error renewing session token", "err", err)
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}
	if _, err := a.Sessions.Establish(r.Context(), user); err != nil {
		a.Logger.Error("error establishing session", "err", err)
		http.Error(w, "Login failed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, a.redirectTarget(r), http.StatusFound)
}

type callbackURLKey struct{}

// ContextWithCallbackURL carries the page to return to after a login that
// did not come from a form post, such as an identity provider callback.
func ContextWithCallbackURL(ctx context.Context, callbackURL string) context.Context {
	return context.WithValue(ctx, callbackURLKey{}, callbackURL)
}

// redirectTarget honours the gate's callback parameter, but only for local paths.
func (a *App) redirectTarget(r *http.Request) string {
	target := r.FormValue(a.Gate.CallbackURLParam)
	if target == "" {
		target, _ = r.Context().Value(callbackURLKey{}).(string)
	}
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return a.SuccessURL
	}
	return target
}

func (a *App) logFailure(r *http.Request, action string, err error, args ...any) {
	args = append([]any{"action", action, "kind", string(KindOf(err)), "err", err, "path", r.URL.Path}, args...)
	switch {
	case IsDenial(err):
		a.Logger.Info("authentication denied", args...)
	case KindOf(err) == KindStore || KindOf(err) == KindHashVerification:
		a.Logger.Error("authentication failed", args...)
	default:
		a.Logger.Warn("authentication rejected", args...)
	}
}
