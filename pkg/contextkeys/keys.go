// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// packages never collide on ad-hoc string keys.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/beacon/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.ClientKey, client)
//	client := ctx.Value(contextkeys.ClientKey).(*middleware.Client)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ClientKey contains *middleware.Client
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: /auth/info and every handler that reports client_info
	ClientKey Key = "api_client"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.RequestIDMiddleware
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"
)
