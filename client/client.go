package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gkgrpc "github.com/panyam/gatekeep/grpc"
)

var (
	// ErrLoginFailed is returned when the server sends the login form back.
	// The server does not say why.
	ErrLoginFailed = errors.New("login failed")

	// ErrEmailExists is returned by Register when the server redirects to
	// the login page instead.
	ErrEmailExists = errors.New("email already registered")

	ErrRegisterFailed = errors.New("registration failed")

	ErrNotLoggedIn = errors.New("not logged in")
)

// AuthClient logs in to one server with the login form and keeps the
// session cookie it gets back.
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	store         SessionStore
	baseTransport http.RoundTripper

	cookieName    string
	loginPath     string
	registerPath  string
	logoutPath    string
	usernameField string
	passwordField string
	metadataKey   string
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithCookieName sets the session cookie name. Defaults to "session".
func WithCookieName(name string) ClientOption {
	return func(c *AuthClient) {
		c.cookieName = name
	}
}

// WithPaths overrides the login, register and logout paths.
func WithPaths(login, register, logout string) ClientOption {
	return func(c *AuthClient) {
		c.loginPath, c.registerPath, c.logoutPath = login, register, logout
	}
}

// WithFormFields overrides the form field names for email and password.
func WithFormFields(username, password string) ClientOption {
	return func(c *AuthClient) {
		c.usernameField, c.passwordField = username, password
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// WithMetadataKey sets the gRPC metadata key used by OutgoingContext.
func WithMetadataKey(key string) ClientOption {
	return func(c *AuthClient) {
		c.metadataKey = key
	}
}

// NewAuthClient creates a client for the server at serverURL. Only the
// scheme and host of serverURL are kept.
func NewAuthClient(serverURL string, store SessionStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		store:         store,
		baseTransport: http.DefaultTransport,
		cookieName:    "session",
		loginPath:     "/login",
		registerPath:  "/register",
		logoutPath:    "/logout",
		usernameField: "username",
		passwordField: "password",
		metadataKey:   gkgrpc.DefaultMetadataKeySessionToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Login posts the login form and stores the session on success.
func (c *AuthClient) Login(ctx context.Context, email, password string) error {
	location, cookie, err := c.postForm(ctx, c.loginPath, email, password)
	if err != nil {
		return err
	}
	if location == c.loginPath || cookie == nil {
		return ErrLoginFailed
	}
	return c.remember(email, cookie)
}

// Register creates an account and stores the session the server opens for it.
func (c *AuthClient) Register(ctx context.Context, email, password string) error {
	location, cookie, err := c.postForm(ctx, c.registerPath, email, password)
	if err != nil {
		return err
	}
	switch {
	case location == c.loginPath:
		return ErrEmailExists
	case location == c.registerPath || cookie == nil:
		return ErrRegisterFailed
	}
	return c.remember(email, cookie)
}

// Logout ends the session on the server and forgets it locally. The local
// copy is kept if the server could not end the session.
func (c *AuthClient) Logout(ctx context.Context) error {
	sess, err := c.Session()
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNotLoggedIn
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+c.logoutPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.noRedirectClient(sess.Token).Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveSession(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

// Session returns the stored session, or nil if there is none or it has
// expired.
func (c *AuthClient) Session() (*ServerSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, err := c.store.GetSession(c.serverURL)
	if err != nil || sess == nil || sess.IsExpired() {
		return nil, err
	}
	return sess, nil
}

// HTTPClient returns a client that sends the current session cookie. It
// does not follow a later Login or Logout; call it again after those.
func (c *AuthClient) HTTPClient() (*http.Client, error) {
	sess, err := c.Session()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotLoggedIn
	}
	return &http.Client{Transport: c.transport(sess.Token)}, nil
}

// OutgoingContext attaches the session token to ctx as gRPC metadata.
func (c *AuthClient) OutgoingContext(ctx context.Context) (context.Context, error) {
	sess, err := c.Session()
	if err != nil {
		return ctx, err
	}
	if sess == nil {
		return ctx, ErrNotLoggedIn
	}
	return gkgrpc.SessionTokenToOutgoingContextWithKey(ctx, sess.Token, c.metadataKey), nil
}

func (c *AuthClient) transport(token string) http.RoundTripper {
	return &SessionTransport{Base: c.baseTransport, CookieName: c.cookieName, Token: token}
}

func (c *AuthClient) noRedirectClient(token string) *http.Client {
	return &http.Client{
		Transport: c.transport(token),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// postForm posts credentials to path and returns the redirect target's
// path and the session cookie, if the server set one.
func (c *AuthClient) postForm(ctx context.Context, path, email, password string) (string, *http.Cookie, error) {
	form := url.Values{}
	form.Set(c.usernameField, email)
	form.Set(c.passwordField, password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.noRedirectClient("").Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		return "", nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	location, err := resp.Location()
	if err != nil {
		return "", nil, fmt.Errorf("redirect without location from %s: %w", path, err)
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == c.cookieName && ck.Value != "" {
			return location.Path, ck, nil
		}
	}
	return location.Path, nil, nil
}

func (c *AuthClient) remember(email string, cookie *http.Cookie) error {
	sess := &ServerSession{
		Token:     cookie.Value,
		UserEmail: email,
		ExpiresAt: cookie.Expires,
		CreatedAt: time.Now(),
	}
	if sess.ExpiresAt.IsZero() && cookie.MaxAge > 0 {
		sess.ExpiresAt = sess.CreatedAt.Add(time.Duration(cookie.MaxAge) * time.Second)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetSession(c.serverURL, sess); err != nil {
		return err
	}
	return c.store.Save()
}
