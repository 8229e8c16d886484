package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/compare", nil))
	id := rec.Header().Get("X-Request-ID")
	assert.Len(t, id, 16)
	assert.Equal(t, id, seen, "generated ID is visible to later handlers")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "bench-run-42")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "bench-run-42", rec.Header().Get("X-Request-ID"))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	h := RequestID(Logger(zerolog.New(&buf))(okHandler))

	req := httptest.NewRequest("POST", "/api/v1/compare", nil)
	req.Header.Set("X-Request-ID", "abc123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "request", entry["message"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/api/v1/compare", entry["path"])
	assert.Equal(t, "abc123", entry["request_id"])
	assert.EqualValues(t, 200, entry["status"])
}

func TestCORSWithOrigins(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
		wantVary   string
	}{
		{"empty_list_allows_all", nil, "GET", "https://any.example", 200, "*", ""},
		{"allowed_origin_echoed", []string{"https://ui.example/"}, "GET", "https://ui.example", 200, "https://ui.example", "Origin"},
		{"preflight_allowed", []string{"https://ui.example"}, "OPTIONS", "https://ui.example", 204, "https://ui.example", "Origin"},
		{"preflight_disallowed", []string{"https://ui.example"}, "OPTIONS", "https://evil.example", 403, "", ""},
		{"plain_request_disallowed_origin", []string{"https://ui.example"}, "GET", "https://evil.example", 200, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/compare", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORSWithOrigins(tt.origins)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantVary, rec.Header().Get("Vary"))
			if tt.wantAllow != "" {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
			}
		})
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		query      string
		wantStatus int
	}{
		{"disabled", "", "", "", 200},
		{"valid_header", "s3cret", "Bearer s3cret", "", 200},
		{"valid_query", "s3cret", "", "?token=s3cret", 200},
		{"wrong_token", "s3cret", "Bearer nope", "", 401},
		{"missing", "s3cret", "", "", 401},
		{"not_bearer_scheme", "s3cret", "Basic s3cret", "", 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/evaluations"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			BearerAuth(tt.token)(okHandler).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, ErrUnauthorized, resp.Code)
			}
		})
	}
}

func TestRecoverer(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("scorer exploded")
	})

	rec := httptest.NewRecorder()
	Recoverer(panicky).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrInternal, resp.Code)
}
