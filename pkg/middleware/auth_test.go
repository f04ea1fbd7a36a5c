package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "admin-secret"

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := GetClientInfo(r)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(info))
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthenticator_Require(t *testing.T) {
	auth := NewAuthenticator(NewKeyStore(testAdminKey))

	tests := []struct {
		name       string
		perm       Permission
		setup      func(*http.Request)
		wantStatus int
		wantError  string
		wantMsg    string
	}{
		{
			name:       "missing key",
			perm:       PermRead,
			setup:      func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Authentication required",
			wantMsg:    "API key must be provided in Authorization header or X-API-Key header",
		},
		{
			name:       "invalid key",
			perm:       PermRead,
			setup:      func(r *http.Request) { r.Header.Set("X-API-Key", "wrong-key-123") },
			wantStatus: http.StatusUnauthorized,
			wantError:  "Invalid API key",
			wantMsg:    "The provided API key is not valid",
		},
		{
			name:       "insufficient permission",
			perm:       PermWrite,
			setup:      func(r *http.Request) { r.Header.Set("X-API-Key", DemoReadOnlyKey) },
			wantStatus: http.StatusForbidden,
			wantError:  "Insufficient permissions",
			wantMsg:    "This API key does not have write permission",
		},
		{
			name:       "bearer token",
			perm:       PermAdmin,
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+testAdminKey) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "x-api-key header",
			perm:       PermRead,
			setup:      func(r *http.Request) { r.Header.Set("X-API-Key", DemoReadOnlyKey) },
			wantStatus: http.StatusOK,
		},
		{
			name: "query parameter",
			perm: PermRead,
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("api_key", DemoReadOnlyKey)
				r.URL.RawQuery = q.Encode()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "bearer wins over header",
			perm: PermWrite,
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+testAdminKey)
				r.Header.Set("X-API-Key", DemoReadOnlyKey)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "non-bearer authorization falls through",
			perm: PermRead,
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic abc")
				r.Header.Set("X-API-Key", DemoReadOnlyKey)
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/analytics/", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			auth.Require(tt.perm)(okHandler(t)).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
				assert.Equal(t, tt.wantMsg, body["message"])
				return
			}
			assert.Equal(t, true, body["authenticated"])
		})
	}
}

func TestAuthenticator_ClientInfo(t *testing.T) {
	auth := NewAuthenticator(NewKeyStore(testAdminKey))

	req := httptest.NewRequest(http.MethodGet, "/auth/info", nil)
	req.Header.Set("X-API-Key", testAdminKey)
	w := httptest.NewRecorder()
	auth.Require(PermRead)(okHandler(t)).ServeHTTP(w, req)

	body := decode(t, w)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "Admin Key", body["key_name"])
	assert.Equal(t, []interface{}{"read", "write", "admin"}, body["permissions"])
	assert.Equal(t, float64(1000), body["rate_limit"])
	assert.NotContains(t, body, "client_ip")
}

func TestAuthenticator_Disabled(t *testing.T) {
	auth := NewAuthenticator(NewKeyStore(testAdminKey), WithAuthDisabled(true))

	req := httptest.NewRequest(http.MethodPost, "/generate-sample-data/10/", nil)
	req.RemoteAddr = "192.0.2.10:4242"
	w := httptest.NewRecorder()
	auth.Require(PermAdmin)(okHandler(t)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, "192.0.2.10", body["client_ip"])
}

func TestAuthenticator_RateLimit(t *testing.T) {
	rl, mr := setupLimiter(t)
	auth := NewAuthenticator(NewKeyStore(testAdminKey), WithRateLimiter(rl))
	handler := auth.Require(PermRead)(okHandler(t))

	// Demo key allows 100 per hour; start just under the limit
	require.NoError(t, mr.Set("ratelimit:"+ClientID(DemoReadOnlyKey), "99"))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/analytics/", nil)
		req.Header.Set("X-API-Key", DemoReadOnlyKey)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := send()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Rate limit exceeded", body["error"])
	assert.Equal(t, "Rate limit of 100 requests per hour exceeded", body["message"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// The admin key is counted separately
	req := httptest.NewRequest(http.MethodGet, "/analytics/", nil)
	req.Header.Set("X-API-Key", testAdminKey)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticator_RateLimiterDown(t *testing.T) {
	rl, mr := setupLimiter(t)
	mr.Close()
	auth := NewAuthenticator(NewKeyStore(testAdminKey), WithRateLimiter(rl))

	req := httptest.NewRequest(http.MethodGet, "/analytics/", nil)
	req.Header.Set("X-API-Key", testAdminKey)
	w := httptest.NewRecorder()
	auth.Require(PermRead)(okHandler(t)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetClientInfo_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	info := GetClientInfo(req)
	assert.False(t, info.Authenticated)
	assert.Equal(t, "203.0.113.9", info.ClientIP)
	assert.Nil(t, ClientFromContext(req.Context()))
}
