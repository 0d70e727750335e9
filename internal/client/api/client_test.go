package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/clinicsync/internal/models"
	"github.com/iudanet/clinicsync/pkg/api"
)

type staticToken struct {
	err   error
	token string
}

func (s staticToken) AccessToken(ctx context.Context) (string, error) {
	return s.token, s.err
}

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8080", client.BaseURL())
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

// TestClient_Deliver проверяет отправку элемента очереди
func TestClient_Deliver(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		wantBody string
	}{
		{name: "POST carries body", method: http.MethodPost, wantBody: `{"name":"Maria"}`},
		{name: "PATCH carries body", method: http.MethodPatch, wantBody: `{"name":"Maria"}`},
		{name: "DELETE has no body", method: http.MethodDelete, wantBody: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.method, r.Method)
				assert.Equal(t, "/api/v1/records/appointments", r.URL.Path)
				assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
				assert.Equal(t, "key-1", r.Header.Get(api.IdempotencyKeyHeader))

				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				assert.Equal(t, tt.wantBody, string(body))

				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			client := NewClient(server.URL, WithTokenProvider(staticToken{token: "token-1"}))
			err := client.Deliver(context.Background(), &models.QueueItem{
				Endpoint: "/api/v1/records/appointments",
				Method:   tt.method,
				Payload:  json.RawMessage(`{"name":"Maria"}`),
				Headers:  map[string]string{api.IdempotencyKeyHeader: "key-1"},
			})
			require.NoError(t, err)
		})
	}
}

// TestClient_Deliver_Error проверяет обработку ошибок доставки
func TestClient_Deliver_Error(t *testing.T) {
	tests := []struct {
		responseBody   any
		name           string
		expectedErrMsg string
		statusCode     int
	}{
		{
			name:           "Conflict with message",
			statusCode:     http.StatusConflict,
			responseBody:   api.ErrorResponse{Error: "conflict", Message: "slot taken"},
			expectedErrMsg: "server error (409): slot taken",
		},
		{
			name:           "Internal server error",
			statusCode:     http.StatusInternalServerError,
			responseBody:   "Internal Server Error",
			expectedErrMsg: "request failed with status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if errResp, ok := tt.responseBody.(api.ErrorResponse); ok {
					_ = json.NewEncoder(w).Encode(errResp)
				} else {
					_, _ = w.Write([]byte(tt.responseBody.(string)))
				}
			}))
			defer server.Close()

			client := NewClient(server.URL)
			err := client.Deliver(context.Background(), &models.QueueItem{
				Endpoint: "/api/v1/records/appointments",
				Method:   http.MethodPost,
			})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErrMsg)
			assert.ErrorIs(t, err, ErrNetwork)

			var derr *DeliveryError
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, tt.statusCode, derr.StatusCode)
		})
	}
}

// TestClient_Deliver_Unreachable проверяет ошибку транспорта
func TestClient_Deliver_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url)
	err := client.Deliver(context.Background(), &models.QueueItem{Endpoint: "/x", Method: http.MethodPost})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	var derr *DeliveryError
	require.True(t, errors.As(err, &derr))
	assert.Zero(t, derr.StatusCode)
}

// TestClient_Deliver_TokenError проверяет что ошибка токена не отправляет запрос
func TestClient_Deliver_TokenError(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	tokenErr := errors.New("no token")
	client := NewClient(server.URL, WithTokenProvider(staticToken{err: tokenErr}))
	err := client.Deliver(context.Background(), &models.QueueItem{Endpoint: "/x", Method: http.MethodPost})

	require.Error(t, err)
	assert.ErrorIs(t, err, tokenErr)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.False(t, called)
}

// TestClient_Deliver_Timeout проверяет отмену по контексту
func TestClient_Deliver_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL)
	err := client.Deliver(ctx, &models.QueueItem{Endpoint: "/slow", Method: http.MethodPut})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrNetwork)
}

// TestClient_Health проверяет health check
func TestClient_Health(t *testing.T) {
	now := time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok", Time: now})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, now.Equal(resp.Time))
	assert.NoError(t, client.Ping(context.Background()))
}

// TestClient_HealthWithoutToken проверяет, что health check не требует входа
func TestClient_HealthWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok"})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithTokenProvider(staticToken{err: errors.New("not authenticated")}))
	assert.NoError(t, client.Ping(context.Background()))
}

// TestClient_Get проверяет чтение с декодированием
func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/records/clinic_info", r.URL.Path)
		_ = json.NewEncoder(w).Encode(api.RecordListResponse{
			Records: []api.RecordResponse{{ID: "c1", Entity: "clinic_info"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	var out api.RecordListResponse
	require.NoError(t, client.Get(context.Background(), "/api/v1/records/clinic_info", &out))
	require.Len(t, out.Records, 1)
	assert.Equal(t, "c1", out.Records[0].ID)
}
