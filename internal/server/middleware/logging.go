package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// sensitiveParams не попадают в лог в открытом виде
var sensitiveParams = []string{"token", "access_token", "phone"}

// LoggingMiddleware создает middleware для логирования HTTP запросов.
// Логирует метод, путь, статус, время выполнения, размер ответа;
// query parameters carrying tokens or phone numbers are masked.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Обертка сохраняет Hijacker, нужный для websocket
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logLevel := slog.LevelInfo
			if status >= 500 {
				logLevel = slog.LevelError
			} else if status >= 400 {
				logLevel = slog.LevelWarn
			}

			logger.Log(r.Context(), logLevel, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", sanitizeQuery(r.URL.RawQuery),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_written", ww.BytesWritten(),
			)
		})
	}
}

// sanitizeQuery маскирует значения чувствительных параметров
func sanitizeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "***"
	}
	for _, name := range sensitiveParams {
		if _, ok := values[name]; ok {
			values.Set(name, "***")
		}
	}
	return values.Encode()
}

// LoggingWithSkip создает middleware с возможностью пропуска определенных путей.
// Используется для health checks и /metrics.
func LoggingWithSkip(logger *slog.Logger, skipPaths []string) func(http.Handler) http.Handler {
	skipMap := make(map[string]bool)
	for _, path := range skipPaths {
		skipMap[path] = true
	}

	return func(next http.Handler) http.Handler {
		logged := LoggingMiddleware(logger)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipMap[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			logged.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
