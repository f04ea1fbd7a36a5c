package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	err := WriteJSON(w, http.StatusCreated, map[string]string{"event_id": "evt_1"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "evt_1", decodeBody(t, w)["event_id"])
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "Missing required fields: user_id")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Missing required fields: user_id", body["error"])
	assert.NotContains(t, body, "message")
	assert.NotContains(t, body, "details")
}

func TestWriteTitledErrors(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
	}{
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "Invalid API key", "msg") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "Insufficient permissions", "msg") }, http.StatusForbidden},
		{"rate limited", func(w http.ResponseWriter) { WriteTooManyRequests(w, "Rate limit exceeded", "msg") }, http.StatusTooManyRequests},
		{"unavailable", func(w http.ResponseWriter) { WriteServiceUnavailable(w, "Database connection failed", "msg") }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			body := decodeBody(t, w)
			assert.NotEmpty(t, body["error"])
			assert.Equal(t, "msg", body["message"])
		})
	}
}

func TestWriteInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalError(w, "Platform error", errors.New("redis HSET analytics_events: WRONGTYPE"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Platform error", body["error"])
	assert.Equal(t, "redis HSET analytics_events: WRONGTYPE", body["details"])

	w = httptest.NewRecorder()
	WriteInternalError(w, "Internal server error", nil)
	assert.NotContains(t, decodeBody(t, w), "details")
}
