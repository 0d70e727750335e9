package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iudanet/clinicsync/internal/client/data"
	"github.com/iudanet/clinicsync/internal/client/storage"
	"github.com/iudanet/clinicsync/internal/metrics"
	"github.com/iudanet/clinicsync/internal/models"
	"github.com/iudanet/clinicsync/internal/server/middleware"
	"github.com/iudanet/clinicsync/internal/validation"
)

// Пути локального API демона
const (
	LocalAppointmentsPath = "/local/v1/appointments"
	LocalIngestPath       = "/local/v1/ingest"
	LocalMetricsPath      = "/metrics"
)

const maxLocalBody = 1 << 20

// ErrDaemonRunning is returned by LocalClient for operations that need the
// local database, which the running daemon holds
var ErrDaemonRunning = errors.New("sync daemon is running and holds the local database")

// AppointmentRequest is the body of a local appointment write
type AppointmentRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Service        string `json:"service,omitempty"`
	Clinic         string `json:"clinic,omitempty"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Notes          string `json:"notes,omitempty"`
	Source         string `json:"source,omitempty"`
	RawDate        string `json:"raw_date,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// IngestRequest is the body of a local agent message
type IngestRequest struct {
	Text        string `json:"text"`
	DeliveryID  string `json:"delivery_id,omitempty"`
	CallerPhone string `json:"caller_phone,omitempty"`
}

// localError is the error body of the local API
type localError struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

// LocalHandler serves the daemon's local API: appointment writes and agent
// messages go through the daemon's open store, plus Prometheus metrics.
func (a *App) LocalHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RecoveryMiddleware(a.Logger))
	r.Use(middleware.LoggingWithSkip(a.Logger, []string{LocalMetricsPath}))

	r.Handle(LocalMetricsPath, metrics.Handler())
	r.Post(LocalAppointmentsPath, a.handleAppointment)
	r.Post(LocalIngestPath, a.handleIngest)
	return r
}

func (a *App) handleAppointment(w http.ResponseWriter, r *http.Request) {
	var req AppointmentRequest
	if !decodeLocal(w, r, &req) {
		return
	}

	record, err := a.Data.CreateAppointment(r.Context(), data.AppointmentInput{
		Name:           req.Name,
		Phone:          req.Phone,
		Service:        req.Service,
		Clinic:         req.Clinic,
		Date:           req.Date,
		Time:           req.Time,
		Notes:          req.Notes,
		Source:         req.Source,
		RawDate:        req.RawDate,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		a.writeLocalError(w, err)
		return
	}
	writeLocalJSON(a.Logger, w, http.StatusCreated, record)
}

func (a *App) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decodeLocal(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeLocalJSON(a.Logger, w, http.StatusBadRequest, localError{Error: "bad_request", Message: "text is required"})
		return
	}

	result, err := a.Data.IngestAgentMessage(r.Context(), data.AgentMessage{
		Text:        req.Text,
		DeliveryID:  req.DeliveryID,
		CallerPhone: req.CallerPhone,
	})
	if err != nil {
		a.writeLocalError(w, err)
		return
	}

	status := http.StatusOK
	if result.Record != nil && !result.Duplicate {
		status = http.StatusCreated
	}
	writeLocalJSON(a.Logger, w, status, result)
}

func decodeLocal(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxLocalBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(localError{Error: "bad_request", Message: "invalid JSON body"})
		return false
	}
	return true
}

func (a *App) writeLocalError(w http.ResponseWriter, err error) {
	var vErr *validation.Error
	switch {
	case errors.As(err, &vErr):
		writeLocalJSON(a.Logger, w, http.StatusUnprocessableEntity, localError{Error: "validation_failed", Field: vErr.Field, Message: vErr.Message})
	case errors.Is(err, data.ErrAlreadyCleanedUp):
		writeLocalJSON(a.Logger, w, http.StatusConflict, localError{Error: "already_cleaned_up", Message: err.Error()})
	default:
		a.Logger.Error("Local write failed", "error", err)
		writeLocalJSON(a.Logger, w, http.StatusInternalServerError, localError{Error: "internal", Message: err.Error()})
	}
}

func writeLocalJSON(logger *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// LocalClient sends writes to a running daemon's local API.
// It implements data.Service for the CLI while the daemon holds the store;
// operations that read the store return ErrDaemonRunning.
type LocalClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ data.Service = (*LocalClient)(nil)

// NewLocalClient creates a client for the daemon listening on addr
// (host:port or a full http URL)
func NewLocalClient(addr string) *LocalClient {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &LocalClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    base,
	}
}

// CreateAppointment forwards an appointment write to the daemon
func (c *LocalClient) CreateAppointment(ctx context.Context, in data.AppointmentInput) (*models.OfflineRecord, error) {
	var record models.OfflineRecord
	err := c.post(ctx, LocalAppointmentsPath, AppointmentRequest{
		Name:           in.Name,
		Phone:          in.Phone,
		Service:        in.Service,
		Clinic:         in.Clinic,
		Date:           in.Date,
		Time:           in.Time,
		Notes:          in.Notes,
		Source:         in.Source,
		RawDate:        in.RawDate,
		IdempotencyKey: in.IdempotencyKey,
	}, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// IngestAgentMessage forwards an agent message to the daemon
func (c *LocalClient) IngestAgentMessage(ctx context.Context, msg data.AgentMessage) (*data.IngestResult, error) {
	var result data.IngestResult
	err := c.post(ctx, LocalIngestPath, IngestRequest{
		Text:        msg.Text,
		DeliveryID:  msg.DeliveryID,
		CallerPhone: msg.CallerPhone,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SaveOffline is not available through the daemon
func (c *LocalClient) SaveOffline(ctx context.Context, payload models.Payload, priority models.Priority) (*models.OfflineRecord, error) {
	return nil, ErrDaemonRunning
}

// GetOfflineData is not available through the daemon
func (c *LocalClient) GetOfflineData(ctx context.Context, t models.RecordType) ([]*models.OfflineRecord, error) {
	return nil, ErrDaemonRunning
}

// GetStorageStats is not available through the daemon
func (c *LocalClient) GetStorageStats(ctx context.Context) (*storage.Stats, error) {
	return nil, ErrDaemonRunning
}

// CleanupSynced is not available through the daemon
func (c *LocalClient) CleanupSynced(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, ErrDaemonRunning
}

func (c *LocalClient) post(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxLocalBody))
	if err != nil {
		return fmt.Errorf("failed to read daemon response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp localError
		_ = json.Unmarshal(respBody, &errResp)
		switch resp.StatusCode {
		case http.StatusUnprocessableEntity:
			return &validation.Error{Field: errResp.Field, Message: errResp.Message}
		case http.StatusConflict:
			return data.ErrAlreadyCleanedUp
		}
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, errResp.Message)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode daemon response: %w", err)
	}
	return nil
}
