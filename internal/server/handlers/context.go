package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/iudanet/clinicsync/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

const (
	// UserIDKey ключ для хранения user_id в контексте
	UserIDKey contextKey = "user_id"
	// PhoneKey ключ для хранения телефона вызывающего в контексте
	PhoneKey contextKey = "phone"
)

// WithUser returns ctx carrying the authenticated caller
func WithUser(ctx context.Context, userID, phone string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, PhoneKey, phone)
}

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// writeJSON пишет JSON ответ с указанным статусом
func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeError пишет ответ с ошибкой в формате api.ErrorResponse
func writeError(logger *slog.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, api.ErrorResponse{Error: http.StatusText(status), Message: msg})
}
