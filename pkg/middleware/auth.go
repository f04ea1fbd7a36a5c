package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/beacon/pkg/contextkeys"
	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// Client is the authenticated caller of a request
type Client struct {
	Key      *APIKey
	ClientID string
}

// ClientInfo is the client_info block echoed by several endpoints
type ClientInfo struct {
	Authenticated bool         `json:"authenticated"`
	KeyName       string       `json:"key_name,omitempty"`
	Permissions   []Permission `json:"permissions,omitempty"`
	RateLimit     int          `json:"rate_limit,omitempty"`
	ClientIP      string       `json:"client_ip,omitempty"`
}

// WithClient stores the authenticated client in ctx
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, contextkeys.ClientKey, c)
}

// ClientFromContext returns the authenticated client, or nil
func ClientFromContext(ctx context.Context) *Client {
	c, _ := ctx.Value(contextkeys.ClientKey).(*Client)
	return c
}

// GetClientInfo describes the caller of r
func GetClientInfo(r *http.Request) ClientInfo {
	if c := ClientFromContext(r.Context()); c != nil && c.Key != nil {
		return ClientInfo{
			Authenticated: true,
			KeyName:       c.Key.Name,
			Permissions:   c.Key.Permissions,
			RateLimit:     c.Key.RateLimit,
		}
	}
	return ClientInfo{
		Authenticated: false,
		ClientIP:      httputil.GetClientIP(r),
	}
}

// Authenticator checks API keys, permissions and per-key rate limits
type Authenticator struct {
	keys     *KeyStore
	limiter  *RateLimiter
	disabled bool
	logger   *observability.Logger
}

// AuthOption configures an Authenticator
type AuthOption func(*Authenticator)

// WithRateLimiter enables per-key rate limiting
func WithRateLimiter(rl *RateLimiter) AuthOption {
	return func(a *Authenticator) { a.limiter = rl }
}

// WithAuthDisabled lets every request through unauthenticated. Only for
// development.
func WithAuthDisabled(disabled bool) AuthOption {
	return func(a *Authenticator) { a.disabled = disabled }
}

// WithAuthLogger sets the logger
func WithAuthLogger(logger *observability.Logger) AuthOption {
	return func(a *Authenticator) { a.logger = logger }
}

// NewAuthenticator creates an authenticator over keys
func NewAuthenticator(keys *KeyStore, opts ...AuthOption) *Authenticator {
	a := &Authenticator{
		keys:   keys,
		logger: observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// extractAPIKey looks at the Authorization bearer token, then X-API-Key,
// then the api_key query parameter
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// Require wraps next so that only keys holding perm reach it
func (a *Authenticator) Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := observability.FromContext(r.Context())

			if a.disabled {
				logger.Debug("Skipping authentication in development mode")
				next.ServeHTTP(w, r)
				return
			}

			raw := extractAPIKey(r)
			if raw == "" {
				logger.WithField("path", r.URL.Path).Warn("Missing API key")
				httputil.WriteUnauthorized(w, "Authentication required",
					"API key must be provided in Authorization header or X-API-Key header")
				return
			}

			key, ok := a.keys.Lookup(raw)
			if !ok {
				logger.WithField("key_prefix", prefix(raw)).Warn("Invalid API key attempted")
				httputil.WriteUnauthorized(w, "Invalid API key", "The provided API key is not valid")
				return
			}

			if !key.Has(perm) {
				logger.WithField("key_name", key.Name).Warnf("Insufficient permissions: required %s", perm)
				httputil.WriteForbidden(w, "Insufficient permissions",
					fmt.Sprintf("This API key does not have %s permission", perm))
				return
			}

			client := &Client{Key: key, ClientID: ClientID(raw)}

			if a.limiter != nil {
				decision, err := a.limiter.Allow(r.Context(), client.ClientID, key.RateLimit)
				if err != nil {
					logger.WithError(err).Warn("Rate limiter unavailable, allowing request")
				}
				decision.writeHeaders(w)
				if !decision.Allowed {
					logger.WithField("client_id", client.ClientID).Warn("Rate limit exceeded")
					httputil.WriteTooManyRequests(w, "Rate limit exceeded",
						fmt.Sprintf("Rate limit of %d requests per hour exceeded", key.RateLimit))
					return
				}
			}

			logger.WithField("key_name", key.Name).Debugf("Authenticated request with %s permission", perm)
			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
		})
	}
}

func prefix(key string) string {
	if len(key) > 8 {
		return key[:8] + "..."
	}
	return key
}
