package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iudanet/clinicsync/internal/models"
	"github.com/iudanet/clinicsync/pkg/api"
)

// DefaultTimeout ограничивает любой запрос, если не задан свой http.Client
const DefaultTimeout = 30 * time.Second

// TokenProvider returns the caller's bearer token
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
	baseURL    string
}

// Option configures Client
type Option func(*Client)

// WithTokenProvider adds Authorization to every request
func WithTokenProvider(tp TokenProvider) Option {
	return func(c *Client) { c.tokens = tp }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient создает новый API клиент
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Deliver performs one queued write.
// The body is sent only for POST, PUT and PATCH; any non-2xx status is a failure.
func (c *Client) Deliver(ctx context.Context, item *models.QueueItem) error {
	var body io.Reader
	if item.HasBody() && len(item.Payload) > 0 {
		body = bytes.NewReader(item.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, item.Method, c.baseURL+item.Endpoint, body)
	if err != nil {
		return &DeliveryError{Method: item.Method, Endpoint: item.Endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range item.Headers {
		req.Header.Set(k, v)
	}

	return c.send(req, nil, true)
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	// Health check не требует авторизации: монитор работает и до входа
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp, false); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// Ping reports whether the server answers the health check
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

// Get выполняет GET запрос и декодирует JSON ответ в out
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out, true)
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, authorized bool) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, result, authorized)
}

// send добавляет токен, выполняет запрос и разбирает ответ.
// Все ошибки транспорта и не-2xx статусы возвращаются как *DeliveryError.
func (c *Client) send(req *http.Request, result any, authorized bool) error {
	endpoint := req.URL.Path
	fail := func(status int, msg string, err error) error {
		return &DeliveryError{Method: req.Method, Endpoint: endpoint, StatusCode: status, Message: msg, Err: err}
	}

	if authorized && c.tokens != nil {
		token, err := c.tokens.AccessToken(req.Context())
		if err != nil {
			return fail(0, "", fmt.Errorf("failed to get access token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, "", fmt.Errorf("request failed: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(0, "", fmt.Errorf("failed to read response body: %w", err))
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return fail(resp.StatusCode, errResp.Message, nil)
		}
		return fail(resp.StatusCode, "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
