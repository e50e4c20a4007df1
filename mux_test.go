package gatekeep_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alexedwards/scs/v2"

	gk "github.com/panyam/gatekeep"
)

// TestApp is a browser talking to a server wired like cmd/server.
type TestApp struct {
	t       *testing.T
	App     *gk.App
	Store   gk.CredentialStore
	Session *scs.SessionManager
	Server  *httptest.Server
	Client  *http.Client
}

func setupApp(t *testing.T, session *scs.SessionManager) *TestApp {
	t.Helper()
	if session == nil {
		session = scs.New()
	}
	store := newTestStore(t)
	app := gk.NewApp(store, newTestHasher(), gk.NewSessionManager(session, store))

	mux := http.NewServeMux()
	mux.Handle("/", app.Handler())
	mux.Handle("/secrets", app.Gate.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := gk.UserFromContext(r.Context())
		w.Write([]byte("secrets for " + user.Email))
	})))
	mux.Handle("/secrets/{rest...}", app.Gate.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	})))
	mux.HandleFunc("/visit", func(w http.ResponseWriter, r *http.Request) {
		session.Put(r.Context(), "visited", true)
	})
	// stands in for a provider callback that has already verified carol
	mux.HandleFunc("/auth/test/callback", func(w http.ResponseWriter, r *http.Request) {
		app.HandleProfile(gk.Profile{Provider: "test", Email: r.URL.Query().Get("email")}, w, r)
	})

	server := httptest.NewServer(session.LoadAndSave(mux))
	t.Cleanup(server.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &TestApp{t: t, App: app, Store: store, Session: session, Server: server, Client: client}
}

func (a *TestApp) get(path string) (*http.Response, string) {
	a.t.Helper()
	resp, err := a.Client.Get(a.Server.URL + path)
	if err != nil {
		a.t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (a *TestApp) post(path string, form url.Values) *http.Response {
	a.t.Helper()
	resp, err := a.Client.PostForm(a.Server.URL+path, form)
	if err != nil {
		a.t.Fatalf("POST %s failed: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func (a *TestApp) sessionCookie() string {
	u, _ := url.Parse(a.Server.URL)
	for _, c := range a.Client.Jar.Cookies(u) {
		if c.Name == "session" {
			return c.Value
		}
	}
	return ""
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("Expected redirect to %q, got %q", location, got)
	}
}

func creds(email, password string) url.Values {
	return url.Values{"username": {email}, "password": {password}}
}

func TestJourney_RegisterLoginLogout(t *testing.T) {
	app := setupApp(t, nil)

	resp, _ := app.get("/secrets")
	expectRedirect(t, resp, "/login?callbackURL=%2Fsecrets")

	expectRedirect(t, app.post("/register", creds("alice@example.com", "hunter2")), "/secrets")
	resp, body := app.get("/secrets")
	if resp.StatusCode != http.StatusOK || body != "secrets for alice@example.com" {
		t.Fatalf("Expected secrets after register, got %d %q", resp.StatusCode, body)
	}

	resp, _ = app.get("/logout")
	expectRedirect(t, resp, "/")
	resp, _ = app.get("/secrets")
	expectRedirect(t, resp, "/login?callbackURL=%2Fsecrets")

	expectRedirect(t, app.post("/login", creds("alice@example.com", "hunter2")), "/secrets")
	resp, body = app.get("/secrets")
	if resp.StatusCode != http.StatusOK || body != "secrets for alice@example.com" {
		t.Fatalf("Expected secrets after login, got %d %q", resp.StatusCode, body)
	}
}

func TestJourney_LoginFailuresLookTheSame(t *testing.T) {
	app := setupApp(t, nil)
	registerUser(t, app.Store, "alice@example.com", "hunter2")

	wrong := app.post("/login", creds("alice@example.com", "wrong"))
	unknown := app.post("/login", creds("bob@example.com", "hunter2"))
	expectRedirect(t, wrong, "/login")
	expectRedirect(t, unknown, "/login")

	resp, _ := app.get("/secrets")
	expectRedirect(t, resp, "/login?callbackURL=%2Fsecrets")
}

func TestJourney_CallbackURL(t *testing.T) {
	app := setupApp(t, nil)
	registerUser(t, app.Store, "alice@example.com", "hunter2")

	form := creds("alice@example.com", "hunter2")
	form.Set("callbackURL", "/secrets/deep/page")
	expectRedirect(t, app.post("/login", form), "/secrets/deep/page")

	resp, body := app.get("/secrets/deep/page")
	if resp.StatusCode != http.StatusOK || body != "/secrets/deep/page" {
		t.Errorf("Expected deep page, got %d %q", resp.StatusCode, body)
	}

	for _, target := range []string{"//evil.example.com/", "https://evil.example.com/", "/\\evil.example.com"} {
		form.Set("callbackURL", target)
		expectRedirect(t, app.post("/login", form), "/secrets")
	}
}

func TestJourney_RegisterFailures(t *testing.T) {
	app := setupApp(t, nil)
	registerUser(t, app.Store, "alice@example.com", "hunter2")

	expectRedirect(t, app.post("/register", creds("alice@example.com", "other")), "/login")
	expectRedirect(t, app.post("/register", creds("not-an-email", "hunter2")), "/register")
	expectRedirect(t, app.post("/register", creds("bob@example.com", "")), "/register")

	resp, _ := app.get("/secrets")
	expectRedirect(t, resp, "/login?callbackURL=%2Fsecrets")
}

func TestJourney_FederatedLogin(t *testing.T) {
	app := setupApp(t, nil)

	resp, _ := app.get("/auth/test/callback?email=carol@example.com")
	expectRedirect(t, resp, "/secrets")
	_, body := app.get("/secrets")
	if body != "secrets for carol@example.com" {
		t.Fatalf("Expected carol's secrets, got %q", body)
	}
	app.get("/logout")

	// carol has no password, not even the sentinel
	expectRedirect(t, app.post("/login", creds("carol@example.com", gk.FederatedOnlyPassword)), "/login")

	// second provider login lands on the same account
	resp, _ = app.get("/auth/test/callback?email=carol@example.com")
	expectRedirect(t, resp, "/secrets")
	user, _ := app.Store.FindByEmail(t.Context(), "carol@example.com")
	if user == nil || !user.IsFederatedOnly() {
		t.Errorf("Expected one federated only carol, got %+v", user)
	}
}

func TestJourney_FederatedLoginWithoutEmail(t *testing.T) {
	app := setupApp(t, nil)

	resp, _ := app.get("/auth/test/callback?email=")
	expectRedirect(t, resp, "/login")
	resp, _ = app.get("/secrets")
	expectRedirect(t, resp, "/login?callbackURL=%2Fsecrets")
}

func TestJourney_LoginRotatesSessionToken(t *testing.T) {
	app := setupApp(t, nil)
	registerUser(t, app.Store, "alice@example.com", "hunter2")

	app.get("/visit")
	before := app.sessionCookie()
	if before == "" {
		t.Fatal("Expected an anonymous session cookie")
	}

	app.post("/login", creds("alice@example.com", "hunter2"))
	after := app.sessionCookie()
	if after == "" || after == before {
		t.Errorf("Expected a new session token after login, got %q then %q", before, after)
	}
}

func TestJourney_LogoutAnonymous(t *testing.T) {
	app := setupApp(t, nil)
	resp, _ := app.get("/logout")
	expectRedirect(t, resp, "/")
}

func TestJourney_LogoutFailure(t *testing.T) {
	session := scs.New()
	session.Store = newUndeletableStore()
	app := setupApp(t, session)

	expectRedirect(t, app.post("/register", creds("alice@example.com", "hunter2")), "/secrets")
	resp, _ := app.get("/logout")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500 when the session cannot be destroyed, got %d", resp.StatusCode)
	}
}
