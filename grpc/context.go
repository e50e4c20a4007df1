// Package grpc carries gatekeep sessions over gRPC. Clients send the scs
// session token in request metadata; the server interceptors load that
// session and run it through a gatekeep.Gate.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"

	gk "github.com/panyam/gatekeep"
)

// DefaultMetadataKeySessionToken is the default gRPC metadata key for the session token.
const DefaultMetadataKeySessionToken = "x-session-token"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeySessionToken is the gRPC metadata key for the session token.
	// Defaults to "x-session-token".
	MetadataKeySessionToken string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeySessionToken: DefaultMetadataKeySessionToken,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionToken == "" {
		c.MetadataKeySessionToken = DefaultMetadataKeySessionToken
	}
}

// SessionTokenFromContext returns the session token from incoming metadata,
// or "" if there is none.
func SessionTokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeySessionToken); len(values) > 0 {
		return values[0]
	}
	return ""
}

// SessionTokenToOutgoingContext adds the session token to outgoing gRPC context metadata.
func SessionTokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return SessionTokenToOutgoingContextWithKey(ctx, token, DefaultMetadataKeySessionToken)
}

// SessionTokenToOutgoingContextWithKey adds the session token with a custom key.
func SessionTokenToOutgoingContextWithKey(ctx context.Context, token string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, token)
}

// UserFromContext returns the user the interceptor admitted, if any.
func UserFromContext(ctx context.Context) (*gk.User, bool) {
	return gk.UserFromContext(ctx)
}

// IsAuthenticated returns true if the interceptor admitted a user.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := gk.UserFromContext(ctx)
	return ok
}
