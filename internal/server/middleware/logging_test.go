package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		handler   http.HandlerFunc
		name      string
		wantLevel string
		wantCode  string
	}{
		{
			name:      "ok",
			handler:   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("success")) },
			wantLevel: "level=INFO",
			wantCode:  "status=200",
		},
		{
			name:      "not found",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantLevel: "level=WARN",
			wantCode:  "status=404",
		},
		{
			name:      "server error",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			wantLevel: "level=ERROR",
			wantCode:  "status=500",
		},
		{
			name:      "nothing written",
			handler:   func(w http.ResponseWriter, r *http.Request) {},
			wantLevel: "level=INFO",
			wantCode:  "status=200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/records/appointments", nil)
			w := httptest.NewRecorder()
			LoggingMiddleware(logger)(tt.handler).ServeHTTP(w, req)

			out := buf.String()
			assert.Contains(t, out, "HTTP request")
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, tt.wantCode)
			assert.Contains(t, out, "path=/api/v1/records/appointments")
		})
	}
}

func TestLoggingMiddleware_MasksSensitiveQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed?entity=appointments&token=secret&phone=5511", nil)
	LoggingMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "entity=appointments")
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "5511")
}

func TestLoggingWithSkip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := LoggingWithSkip(logger, []string{"/api/v1/health"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Empty(t, buf.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/records/appointments", nil))
	assert.Contains(t, buf.String(), "HTTP request")
}

func TestSanitizeQuery(t *testing.T) {
	assert.Equal(t, "", sanitizeQuery(""))
	assert.Equal(t, "access_token=%2A%2A%2A&entity=appointments", sanitizeQuery("entity=appointments&access_token=abc"))
	assert.Equal(t, "***", sanitizeQuery("%zz"))
}
