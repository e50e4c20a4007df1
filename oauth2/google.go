package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	gk "github.com/panyam/gatekeep"
)

type GoogleOAuth2 struct {
	*BaseOAuth2

	// Base URL of the Google API the userinfo call goes to. Can be
	// overridden for testing.
	UserInfoURL string
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string, handleProfile gk.ProfileHandlerFunc) *GoogleOAuth2 {
	out := GoogleOAuth2{
		BaseOAuth2:  NewBaseOAuth2(clientId, clientSecret, callbackUrl, handleProfile),
		UserInfoURL: "https://www.googleapis.com/",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = google.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{
		googleoauth2.UserinfoEmailScope,
		googleoauth2.UserinfoProfileScope,
	}

	out.mux.HandleFunc("/{$}", out.HandleLogin)
	out.mux.HandleFunc("/callback/", out.HandleCallback)
	return &out
}

func (g *GoogleOAuth2) HandleCallback(w http.ResponseWriter, r *http.Request) {
	g.handleCallback("google", g.fetchProfile, w, r)
}

func (g *GoogleOAuth2) fetchProfile(ctx context.Context, token *oauth2.Token) (gk.Profile, error) {
	svc, err := googleoauth2.NewService(ctx,
		option.WithHTTPClient(g.oauthConfig.Client(ctx, token)),
		option.WithEndpoint(g.UserInfoURL))
	if err != nil {
		return gk.Profile{}, fmt.Errorf("failed creating oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return gk.Profile{}, fmt.Errorf("failed getting user info: %w", err)
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return gk.Profile{}, errors.New("google account email is not verified")
	}
	return gk.Profile{
		Provider: "google",
		Subject:  info.Id,
		Email:    info.Email,
		Name:     info.Name,
	}, nil
}
