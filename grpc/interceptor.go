package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	gk "github.com/panyam/gatekeep"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but UserFromContext reports no user.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig() *InterceptorConfig {
	config := DefaultInterceptorConfig()
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c == nil {
		c = DefaultInterceptorConfig()
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	return c
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that admits calls
// whose session token passes gate.
func UnaryAuthInterceptor(gate *gk.Gate, config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := authenticate(ctx, gate, config, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that admits
// streams whose session token passes gate.
func StreamAuthInterceptor(gate *gk.Gate, config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), gate, config, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authServerStream{ServerStream: ss, ctx: ctx})
	}
}

type authServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authServerStream) Context() context.Context {
	return s.ctx
}

// authenticate loads the session named by the token metadata and asks the
// gate about it. Admitted users are put in the returned context.
func authenticate(ctx context.Context, gate *gk.Gate, config *InterceptorConfig, method string) (context.Context, error) {
	admitted := false
	if token := SessionTokenFromContext(ctx, config.Config); token != "" {
		loaded, err := gate.Sessions.Session.Load(ctx, token)
		if err != nil {
			slog.Error("error loading session", "method", method, "err", err)
			return nil, status.Error(codes.Internal, "error loading session")
		}
		if d := gate.Check(loaded); d.Admitted {
			ctx = gk.ContextWithUser(loaded, d.User)
			admitted = true
		}
	}

	if !admitted && config.RequireAuth && !config.PublicMethods[method] {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return ctx, nil
}
