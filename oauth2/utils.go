package oauth2

import (
	"log/slog"
	"net/http"
)

const stateCookieName = "oauthstate"

func setStateCookie(w http.ResponseWriter, nonce string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    nonce,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})
}

// OauthRedirector starts the authorization code flow. The callbackURL query
// parameter, if any, is carried through the signed state.
func OauthRedirector(b *BaseOAuth2) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callbackURL := r.URL.Query().Get("callbackURL")
		nonce, state, err := b.States.Sign(callbackURL)
		if err != nil {
			slog.Error("error generating oauth state", "err", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		setStateCookie(w, nonce, int(b.States.Lifetime.Seconds()))
		http.Redirect(w, r, b.oauthConfig.AuthCodeURL(state), http.StatusFound)
	}
}
