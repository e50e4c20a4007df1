package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	gk "github.com/panyam/gatekeep"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the URL to fetch user info from. Defaults to GitHub's API.
	// Can be overridden for testing.
	UserInfoURL string

	// EmailsURL lists the user's addresses, used when the profile email is
	// private.
	EmailsURL string
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func NewGithubOAuth2(clientId string, clientSecret string, callbackUrl string, handleProfile gk.ProfileHandlerFunc) *GithubOAuth2 {
	out := GithubOAuth2{
		BaseOAuth2:  NewBaseOAuth2(clientId, clientSecret, callbackUrl, handleProfile),
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
	}
	out.BaseOAuth2.oauthConfig.Endpoint = github.Endpoint
	out.BaseOAuth2.oauthConfig.Scopes = []string{
		"read:user", "user:email",
	}

	out.mux.HandleFunc("/{$}", out.HandleLogin)
	out.mux.HandleFunc("/callback/", out.HandleCallback)
	return &out
}

func (g *GithubOAuth2) HandleCallback(w http.ResponseWriter, r *http.Request) {
	g.handleCallback("github", g.fetchProfile, w, r)
}

func (g *GithubOAuth2) fetchProfile(ctx context.Context, token *oauth2.Token) (gk.Profile, error) {
	client := g.oauthConfig.Client(ctx, token)

	var user githubUser
	if err := getJSON(ctx, client, g.UserInfoURL, &user); err != nil {
		return gk.Profile{}, fmt.Errorf("failed getting user info from github: %w", err)
	}

	profile := gk.Profile{
		Provider: "github",
		Subject:  strconv.FormatInt(user.ID, 10),
		Email:    user.Email,
		Name:     user.Name,
	}
	if profile.Name == "" {
		profile.Name = user.Login
	}
	if profile.Email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, g.EmailsURL, &emails); err != nil {
			return gk.Profile{}, fmt.Errorf("failed getting emails from github: %w", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email = e.Email
				break
			}
		}
	}
	return profile, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	response, err := client.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", response.StatusCode, body)
	}
	return json.NewDecoder(response.Body).Decode(out)
}
