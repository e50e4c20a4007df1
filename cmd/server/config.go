package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is read from the environment, after an optional .env file.
type Config struct {
	Port    int    `env:"PORT" envDefault:"3000"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`

	// Signs OAuth state. A random key is used when empty, which breaks
	// callbacks across restarts and replicas.
	SessionSecret   string        `env:"SESSION_SECRET"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"5m"`

	BcryptCost        int `env:"BCRYPT_COST" envDefault:"10"`
	MinPasswordLength int `env:"MIN_PASSWORD_LENGTH" envDefault:"1"`

	// One of fs, gorm, postgres, datastore.
	StoreDriver        string `env:"STORE_DRIVER" envDefault:"fs"`
	FSStorePath        string `env:"FS_STORE_PATH" envDefault:"./data"`
	DatabaseURL        string `env:"DATABASE_URL"`
	DatastoreProject   string `env:"DATASTORE_PROJECT"`
	DatastoreNamespace string `env:"DATASTORE_NAMESPACE"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL" envDefault:"http://localhost:3000/auth/google/secrets"`

	GithubClientID     string `env:"GITHUB_CLIENT_ID"`
	GithubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GithubCallbackURL  string `env:"GITHUB_CALLBACK_URL" envDefault:"http://localhost:3000/auth/github/secrets"`

	SAMLMetadataURL string `env:"SAML_IDP_METADATA_URL"`
	SAMLCertFile    string `env:"SAML_CERT_FILE"`
	SAMLKeyFile     string `env:"SAML_KEY_FILE"`
	SAMLIssuer      string `env:"SAML_ISSUER" envDefault:"saml"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// LoadConfig loads envFile into the environment (a missing file is fine)
// and parses the result. Variables already set win over the file.
func LoadConfig(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv parses environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "fs":
		if c.FSStorePath == "" {
			return errors.New("FS_STORE_PATH is required for the fs store")
		}
	case "gorm", "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", c.StoreDriver)
		}
	case "datastore":
		if c.DatastoreProject == "" {
			return errors.New("DATASTORE_PROJECT is required for the datastore store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SAMLMetadataURL != "" && (c.SAMLCertFile == "" || c.SAMLKeyFile == "") {
		return errors.New("SAML_CERT_FILE and SAML_KEY_FILE are required with SAML_IDP_METADATA_URL")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST %d out of range", c.BcryptCost)
	}
	return nil
}

func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c Config) GithubEnabled() bool {
	return c.GithubClientID != "" && c.GithubClientSecret != ""
}

func (c Config) SAMLEnabled() bool {
	return c.SAMLMetadataURL != ""
}
