package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clientapi "github.com/iudanet/clinicsync/internal/client/api"
	"github.com/iudanet/clinicsync/internal/client/realtime"
	"github.com/iudanet/clinicsync/internal/models"
	"github.com/iudanet/clinicsync/internal/server/handlers"
	"github.com/iudanet/clinicsync/internal/server/jwt"
	"github.com/iudanet/clinicsync/internal/server/middleware"
	"github.com/iudanet/clinicsync/internal/server/storage/sqlite"
	pkgapi "github.com/iudanet/clinicsync/pkg/api"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

type testServer struct {
	*httptest.Server
	feed   *handlers.FeedHub
	tokens *jwt.Service
}

func setupServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ts := &testServer{
		feed:   handlers.NewFeedHub(logger),
		tokens: jwt.NewService("router-test-secret-0123", time.Hour),
	}
	t.Cleanup(ts.feed.Close)

	ts.Server = httptest.NewServer(New(Deps{
		Logger:   logger,
		Store:    store,
		Tokens:   ts.tokens,
		Feed:     ts.feed,
		Presence: handlers.NewPresenceHub(logger),
		Limiter:  limiter,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) token(t *testing.T, userID string) staticToken {
	t.Helper()
	token, _, err := ts.tokens.IssueToken(userID, "")
	require.NoError(t, err)
	return staticToken(token)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	ts := setupServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + pkgapi.RecordsPath("appointments"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "clinicsync_http_requests_total")
}

// TestRouter_DeliveryReachesFeed прогоняет доставку клиента до подписчика ленты
func TestRouter_DeliveryReachesFeed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts := setupServer(t, nil)
	token := ts.token(t, "user-1")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bridge := realtime.NewBridge(ts.URL, logger, realtime.WithTokenProvider(token))
	inserted := make(chan models.ChangeEvent, 4)
	sub, err := bridge.Subscribe(ctx, "appointments", realtime.Filter{Column: "owner_id", Value: "user-1"}, realtime.Handlers{
		OnInsert: func(ev models.ChangeEvent) { inserted <- ev },
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.Eventually(t, func() bool { return ts.feed.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	client := clientapi.NewClient(ts.URL, clientapi.WithTokenProvider(token))
	item := &models.QueueItem{
		ID:       "q-1",
		Method:   http.MethodPost,
		Endpoint: pkgapi.RecordsPath("appointments"),
		Payload:  json.RawMessage(`{"id":"a-1","name":"Maria Silva","date":"2024-08-15"}`),
		Headers:  map[string]string{pkgapi.IdempotencyKeyHeader: "key-1"},
	}
	require.NoError(t, client.Deliver(ctx, item))
	// Повторная доставка того же элемента безопасна
	require.NoError(t, client.Deliver(ctx, item))

	select {
	case ev := <-inserted:
		assert.Equal(t, "appointments", ev.EntityType)
		assert.Equal(t, "a-1", ev.Record["id"])
		assert.Equal(t, "Maria Silva", ev.Record["name"])
	case <-ctx.Done():
		t.Fatal("insert event was not delivered")
	}
	select {
	case ev := <-inserted:
		t.Fatalf("unexpected second insert: %v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	var list pkgapi.RecordListResponse
	require.NoError(t, client.Get(ctx, pkgapi.RecordsPath("appointments"), &list))
	require.Len(t, list.Records, 1)
	assert.Equal(t, "user-1", list.Records[0].OwnerID)

	// Другой пользователь не видит записи
	other := clientapi.NewClient(ts.URL, clientapi.WithTokenProvider(ts.token(t, "user-2")))
	require.NoError(t, other.Get(ctx, pkgapi.RecordsPath("appointments"), &list))
	assert.Empty(t, list.Records)
}

func TestRouter_PresenceRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ts := setupServer(t, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bridge := realtime.NewBridge(ts.URL, logger, realtime.WithTokenProvider(ts.token(t, "user-1")))

	synced := make(chan models.PresenceEvent, 1)
	pc, err := bridge.JoinPresence(ctx, "front-desk", "desk-1", map[string]any{"status": "online"}, realtime.PresenceHandlers{
		OnSync: func(ev models.PresenceEvent) { synced <- ev },
	})
	require.NoError(t, err)
	defer pc.Leave()

	select {
	case <-synced:
	case <-ctx.Done():
		t.Fatal("presence sync was not received")
	}
	assert.Equal(t, map[string]map[string]any{"desk-1": {"status": "online"}}, pc.Members())
}

func TestRouter_RateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer limiter.Stop()
	ts := setupServer(t, limiter)
	token := ts.token(t, "user-1")

	get := func() int {
		req, err := http.NewRequest(http.MethodGet, ts.URL+pkgapi.RecordsPath("appointments"), nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+string(token))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())

	// Health не лимитируется
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/api/v1/health")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
