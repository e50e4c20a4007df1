// Command server runs the login demo: local email/password accounts, google,
// github and SAML logins, and a /secrets page only logged in users can see.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/crewjam/saml/samlsp"
	"github.com/gorilla/mux"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"

	gk "github.com/panyam/gatekeep"
	"github.com/panyam/gatekeep/oauth2"
	"github.com/panyam/gatekeep/saml"
	"github.com/panyam/gatekeep/stores/fs"
	"github.com/panyam/gatekeep/stores/gae"
	gormstore "github.com/panyam/gatekeep/stores/gorm"
	"github.com/panyam/gatekeep/stores/postgres"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	cfg, err := LoadConfig(*envFile)
	if err != nil {
		slog.Error("error loading config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

// backend is the store pair picked by STORE_DRIVER.
type backend struct {
	users    gk.CredentialStore
	sessions scs.Store // nil keeps the scs in-memory store
	close    func() error
}

func openBackend(ctx context.Context, cfg Config) (*backend, error) {
	switch cfg.StoreDriver {
	case "fs":
		slog.Info("using fs store", "path", cfg.FSStorePath)
		return &backend{
			users: fs.NewFSCredentialStore(cfg.FSStorePath),
			close: func() error { return nil },
		}, nil

	case "gorm":
		db, err := gorm.Open(gormpg.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("gorm open error: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("gorm migrate error: %w", err)
		}
		sessions := gormstore.NewSessionStore(db)
		sessions.StartCleanup(ctx, cfg.CleanupInterval)
		return &backend{
			users:    gormstore.NewCredentialStore(db),
			sessions: sessions,
			close: func() error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		sessions := postgres.NewSessionStore(db)
		go sweepExpired(ctx, cfg.CleanupInterval, func(ctx context.Context) (int64, error) {
			return sessions.DeleteExpired(ctx)
		})
		return &backend{
			users:    postgres.NewCredentialStore(db),
			sessions: sessions,
			close:    db.Close,
		}, nil

	case "datastore":
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, fmt.Errorf("datastore client error: %w", err)
		}
		sessions := gae.NewSessionStore(client, cfg.DatastoreNamespace)
		go sweepExpired(ctx, cfg.CleanupInterval, func(ctx context.Context) (int64, error) {
			n, err := sessions.DeleteExpired(ctx)
			return int64(n), err
		})
		return &backend{
			users:    gae.NewCredentialStore(client, cfg.DatastoreNamespace),
			sessions: sessions,
			close:    client.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// sweepExpired runs deleteExpired every interval until ctx is done.
func sweepExpired(ctx context.Context, interval time.Duration, deleteExpired func(context.Context) (int64, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := deleteExpired(ctx); err != nil {
				slog.Error("error deleting expired sessions", "err", err)
			} else if n > 0 {
				slog.Debug("deleted expired sessions", "count", n)
			}
		}
	}
}

func newSessionManager(cfg Config, store scs.Store) *scs.SessionManager {
	session := scs.New()
	session.Lifetime = cfg.SessionLifetime
	session.Cookie.HttpOnly = true
	session.Cookie.SameSite = http.SameSiteLaxMode
	session.Cookie.Secure = cfg.CookieSecure
	if store != nil {
		session.Store = store
	}
	return session
}

// newRouter mounts every route. Only /secrets sits behind the gate; the
// whole tree runs inside the session middleware.
func newRouter(ctx context.Context, cfg Config, app *gk.App) (http.Handler, error) {
	r := mux.NewRouter()

	var states *oauth2.StateSigner
	if cfg.SessionSecret != "" {
		states = oauth2.NewStateSigner([]byte(cfg.SessionSecret))
	} else {
		slog.Warn("SESSION_SECRET not set, oauth state is signed with a random key")
		states = oauth2.NewStateSigner(nil)
	}

	auth := r.PathPrefix("/auth").Subrouter()
	if cfg.GoogleEnabled() {
		google := oauth2.NewGoogleOAuth2(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL, app.HandleProfile)
		google.States = states
		auth.HandleFunc("/google", google.HandleLogin).Methods(http.MethodGet)
		auth.HandleFunc("/google/secrets", google.HandleCallback).Methods(http.MethodGet)
	}
	if cfg.GithubEnabled() {
		github := oauth2.NewGithubOAuth2(cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubCallbackURL, app.HandleProfile)
		github.States = states
		auth.HandleFunc("/github", github.HandleLogin).Methods(http.MethodGet)
		auth.HandleFunc("/github/secrets", github.HandleCallback).Methods(http.MethodGet)
	}
	if cfg.SAMLEnabled() {
		provider, err := newSAMLProvider(ctx, cfg, app.HandleProfile)
		if err != nil {
			return nil, err
		}
		provider.Register(auth)
	}

	r.Handle("/secrets", app.Gate.EnsureUser(http.HandlerFunc(handleSecrets))).Methods(http.MethodGet)
	r.HandleFunc("/", handleHome).Methods(http.MethodGet)
	r.HandleFunc("/login", handleLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/register", handleRegisterPage).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(app.Handler())

	return app.Sessions.Session.LoadAndSave(r), nil
}

func newSAMLProvider(ctx context.Context, cfg Config, handle gk.ProfileHandlerFunc) (*saml.Provider, error) {
	key, cert, err := saml.LoadKeyPair(cfg.SAMLCertFile, cfg.SAMLKeyFile)
	if err != nil {
		return nil, err
	}
	idpMetadata, err := saml.FetchIDPMetadata(ctx, http.DefaultClient, cfg.SAMLMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("error fetching idp metadata: %w", err)
	}
	rootURL, err := url.Parse(cfg.BaseURL + "/auth")
	if err != nil {
		return nil, err
	}
	return saml.NewProvider(samlsp.Options{
		URL:         *rootURL,
		Key:         key,
		Certificate: cert,
		IDPMetadata: idpMetadata,
		SignRequest: true,
	}, cfg.SAMLIssuer, handle)
}

func run(ctx context.Context, cfg Config) error {
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.close(); err != nil {
			slog.Error("error closing store", "err", err)
		}
	}()

	session := newSessionManager(cfg, be.sessions)
	app := gk.NewApp(be.users, &gk.BcryptHasher{Cost: cfg.BcryptCost}, gk.NewSessionManager(session, be.users))
	app.Local.ValidateSignup = gk.MinPasswordLength(cfg.MinPasswordLength)

	handler, err := newRouter(ctx, cfg, app)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", srv.Addr, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
