// Package oauth2 implements login through OAuth2 identity providers (google
// and github). Each provider runs the authorization code flow, turns the
// provider's userinfo into a gatekeep.Profile and hands it to a
// gatekeep.ProfileHandlerFunc, normally App.HandleProfile.
package oauth2

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	gk "github.com/panyam/gatekeep"
)

type BaseOAuth2 struct {
	ClientId      string
	ClientSecret  string
	CallbackURL   string
	HandleProfile gk.ProfileHandlerFunc

	// Where failed callbacks are redirected. Defaults to "/login".
	AuthFailureUrl string

	// Signs the state parameter. Defaults to a signer with a random key.
	States *StateSigner

	// Used for the code exchange and userinfo calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger

	oauthConfig oauth2.Config
	mux         *http.ServeMux
}

func NewBaseOAuth2(clientId string, clientSecret string, callbackUrl string, handleProfile gk.ProfileHandlerFunc) *BaseOAuth2 {
	return &BaseOAuth2{
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		HandleProfile:  handleProfile,
		AuthFailureUrl: "/login",
		States:         NewStateSigner(nil),
		Logger:         slog.Default(),
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
}

// Handler serves "/" (start the flow) and "/callback/" (finish it).
func (b *BaseOAuth2) Handler() http.Handler {
	return b.mux
}

// Config returns the underlying oauth2 configuration.
func (b *BaseOAuth2) Config() *oauth2.Config {
	return &b.oauthConfig
}

func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.HTTPClient = client
}

func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// ExchangeContext makes the oauth2 library use our HTTP client.
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.getHTTPClient())
}

// HandleLogin redirects to the provider's consent page.
func (b *BaseOAuth2) HandleLogin(w http.ResponseWriter, r *http.Request) {
	OauthRedirector(b)(w, r)
}

type profileFetcher func(ctx context.Context, token *oauth2.Token) (gk.Profile, error)

// handleCallback checks the state, exchanges the code and fetches the profile.
// State problems are a 400. Anything the provider gets wrong redirects to
// AuthFailureUrl.
func (b *BaseOAuth2) handleCallback(provider string, fetch profileFetcher, w http.ResponseWriter, r *http.Request) {
	nonceCookie, _ := r.Cookie(stateCookieName)
	if nonceCookie == nil {
		b.Logger.Info("oauth state cookie missing", "provider", provider)
		http.Error(w, "OauthState is nil", http.StatusBadRequest)
		return
	}
	clearStateCookie(w)

	claims, err := b.States.Verify(r.FormValue("state"), nonceCookie.Value)
	if err != nil {
		b.Logger.Info("invalid oauth state", "provider", provider, "err", err)
		http.Error(w, "invalid oauth "+provider+" state", http.StatusBadRequest)
		return
	}

	if errCode := r.FormValue("error"); errCode != "" {
		b.fail(w, r, provider, errors.New("provider returned "+errCode))
		return
	}

	ctx := b.ExchangeContext(r.Context())
	token, err := b.oauthConfig.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		b.fail(w, r, provider, err)
		return
	}
	profile, err := fetch(ctx, token)
	if err != nil {
		b.fail(w, r, provider, err)
		return
	}

	if claims.CallbackURL != "" {
		r = r.WithContext(gk.ContextWithCallbackURL(r.Context(), claims.CallbackURL))
	}
	b.HandleProfile(profile, w, r)
}

func (b *BaseOAuth2) fail(w http.ResponseWriter, r *http.Request, provider string, err error) {
	b.Logger.Info("oauth login failed, redirecting", "provider", provider, "err", err)
	http.Redirect(w, r, b.AuthFailureUrl, http.StatusFound)
}
