package gatekeep

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type userContextKey struct{}

// Decision is the outcome of a Gate check. User is nil unless Admitted.
type Decision struct {
	Admitted bool
	User     *User
}

// Gate decides whether a request carries a trusted session.
type Gate struct {
	Sessions *SessionManager

	// Where denied requests are redirected. If empty, denied requests get a 401.
	LoginURL string

	// Query parameter that carries the original path to the login page.
	CallbackURLParam string
}

/**
 * Ensures that config values have reasonable defaults.
 */
func (g *Gate) EnsureReasonableDefaults() {
	if g.CallbackURLParam == "" {
		g.CallbackURLParam = "callbackURL"
	}
}

// Check admits the request if the session resolves to a user.
func (g *Gate) Check(ctx context.Context) Decision {
	user, ok := g.Sessions.Resolve(ctx)
	if !ok {
		return Decision{}
	}
	return Decision{Admitted: true, User: user}
}

/**
 * Loads the logged in user (if any) into the request context for handlers
 * downstream.
 *
 * Note this does not perform any redirects if a valid user does not exist.
 * To also enforce a user exists, use EnsureUser.
 */
func (g *Gate) ExtractUser(next http.Handler) http.Handler {
	g.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := g.Check(r.Context()); d.Admitted {
			r = r.WithContext(ContextWithUser(r.Context(), d.User))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser only calls next for admitted requests. Everything else is sent
// to LoginURL with the original path in CallbackURLParam.
func (g *Gate) EnsureUser(next http.Handler) http.Handler {
	g.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Check(r.Context())
		if !d.Admitted {
			if g.LoginURL == "" {
				http.Error(w, "Login Required", http.StatusUnauthorized)
				return
			}
			encodedUrl := strings.Replace(url.QueryEscape(r.URL.Path), "+", "%20", -1)
			http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", g.LoginURL, g.CallbackURLParam, encodedUrl), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), d.User)))
	})
}

// ContextWithUser returns a copy of ctx carrying user.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user admitted by the Gate, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*User)
	return u, ok && u != nil
}
