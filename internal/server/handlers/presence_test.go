package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/clinicsync/pkg/api"
)

func joinPresence(t *testing.T, srv *httptest.Server, channel, key string, meta map[string]any) *websocket.Conn {
	t.Helper()
	target := "ws" + strings.TrimPrefix(srv.URL, "http") + "/presence/" + channel + "?key=" + key
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteJSON(api.PresenceFrame{Type: api.PresenceTrack, Key: key, Meta: meta}))
	return conn
}

func readPresence(t *testing.T, conn *websocket.Conn) api.PresenceFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame api.PresenceFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestPresenceHub_JoinSyncLeave(t *testing.T) {
	hub := NewPresenceHub(testLogger())
	r := chi.NewRouter()
	r.Get("/presence/{channel}", asUser("user-1", hub.Serve))
	srv := httptest.NewServer(r)
	defer srv.Close()

	first := joinPresence(t, srv, "front-desk", "desk-1", map[string]any{"status": "online"})
	sync := readPresence(t, first)
	assert.Equal(t, api.PresenceSync, sync.Type)
	assert.Equal(t, map[string]map[string]any{"desk-1": {"status": "online"}}, sync.Presences)

	second := joinPresence(t, srv, "front-desk", "desk-2", map[string]any{"status": "away"})
	sync = readPresence(t, second)
	assert.Equal(t, api.PresenceSync, sync.Type)
	assert.Len(t, sync.Presences, 2)

	join := readPresence(t, first)
	assert.Equal(t, api.PresenceJoin, join.Type)
	assert.Equal(t, "desk-2", join.Key)
	assert.Equal(t, "away", join.Meta["status"])
	assert.Len(t, hub.Members("front-desk"), 2)

	// Повторный track обновляет метаданные
	require.NoError(t, second.WriteJSON(api.PresenceFrame{Type: api.PresenceTrack, Key: "desk-2", Meta: map[string]any{"status": "online"}}))
	update := readPresence(t, first)
	assert.Equal(t, api.PresenceJoin, update.Type)
	assert.Equal(t, "online", update.Meta["status"])

	require.NoError(t, second.Close())
	leave := readPresence(t, first)
	assert.Equal(t, api.PresenceLeave, leave.Type)
	assert.Equal(t, "desk-2", leave.Key)
	require.Eventually(t, func() bool { return len(hub.Members("front-desk")) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Каналы изолированы друг от друга
	assert.Empty(t, hub.Members("lab"))
}
