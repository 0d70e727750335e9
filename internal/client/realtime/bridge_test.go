package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/clinicsync/internal/client/events"
	"github.com/iudanet/clinicsync/internal/models"
	pkgapi "github.com/iudanet/clinicsync/pkg/api"
)

const waitTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// feedServer отдает заданные фреймы и затем ведет себя согласно after
type feedServer struct {
	t        *testing.T
	frames   []string
	after    func(conn *websocket.Conn)
	requests chan *http.Request
}

func (s *feedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Logf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	select {
	case s.requests <- r:
	default:
	}

	for _, f := range s.frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			return
		}
	}
	if s.after != nil {
		s.after(conn)
	}
}

// waitForClose держит соединение до закрытия клиентом
func waitForClose(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newFeedServer(t *testing.T, frames []string, after func(conn *websocket.Conn)) (*httptest.Server, *feedServer) {
	t.Helper()
	fs := &feedServer{t: t, frames: frames, after: after, requests: make(chan *http.Request, 1)}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return srv, fs
}

func frame(t *testing.T, f pkgapi.ChangeFrame) string {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	return string(data)
}

// collector собирает события обработчиков
type collector struct {
	events []models.ChangeEvent
	errs   []error
	mu     sync.Mutex
	got    chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 16)}
}

func (c *collector) add(ev models.ChangeEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) handlers() Handlers {
	return Handlers{
		OnInsert: c.add,
		OnUpdate: c.add,
		OnDelete: c.add,
		OnError: func(err error) {
			c.mu.Lock()
			c.errs = append(c.errs, err)
			c.mu.Unlock()
			c.got <- struct{}{}
		},
	}
}

func (c *collector) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

func (c *collector) snapshot() ([]models.ChangeEvent, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChangeEvent(nil), c.events...), append([]error(nil), c.errs...)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("read loop did not exit")
	}
}

func TestBridge_Subscribe_DeliversEachChangeOnce(t *testing.T) {
	srv, fs := newFeedServer(t, []string{
		frame(t, pkgapi.ChangeFrame{EventType: pkgapi.EventInsert, Entity: "appointments", Record: map[string]any{"id": "a1"}}),
		frame(t, pkgapi.ChangeFrame{EventType: pkgapi.EventUpdate, Entity: "appointments", Record: map[string]any{"id": "a1", "time": "15:00"}, OldRecord: map[string]any{"id": "a1"}}),
		frame(t, pkgapi.ChangeFrame{EventType: pkgapi.EventDelete, Entity: "appointments", OldRecord: map[string]any{"id": "a1"}}),
	}, waitForClose)

	bus := events.NewBus()
	var republished []events.Event
	var busMu sync.Mutex
	bus.Subscribe(events.TopicChangePrefix+"appointments", func(ev events.Event) {
		busMu.Lock()
		republished = append(republished, ev)
		busMu.Unlock()
	})

	bridge := NewBridge(srv.URL, testLogger(), WithPublisher(bus))
	c := newCollector()

	sub, err := bridge.Subscribe(context.Background(), "appointments", Filter{Column: "owner_id", Value: "user-1"}, c.handlers())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Сервер получил фильтр
	req := <-fs.requests
	assert.Equal(t, "appointments", req.URL.Query().Get("entity"))
	assert.Equal(t, "owner_id=eq.user-1", req.URL.Query().Get("filter"))

	c.wait(t, 3)
	got, errs := c.snapshot()
	assert.Empty(t, errs)
	require.Len(t, got, 3)
	assert.Equal(t, models.ChangeInsert, got[0].Kind)
	assert.Equal(t, models.ChangeUpdate, got[1].Kind)
	assert.Equal(t, "15:00", got[1].Record["time"])
	assert.Equal(t, models.ChangeDelete, got[2].Kind)
	assert.Equal(t, "a1", got[2].OldRecord["id"])
	assert.Equal(t, "appointments", got[0].EntityType)

	busMu.Lock()
	assert.Len(t, republished, 3)
	busMu.Unlock()
}

func TestBridge_Subscribe_ConnectionLossReportsError(t *testing.T) {
	srv, _ := newFeedServer(t, nil, nil)
	// Сервер закрывает соединение сразу после handshake

	bridge := NewBridge(srv.URL, testLogger())
	c := newCollector()

	sub, err := bridge.Subscribe(context.Background(), "appointments", Filter{}, c.handlers())
	require.NoError(t, err)

	c.wait(t, 1)
	waitDone(t, sub.Done())

	_, errs := c.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrChannel)

	var chErr *ChannelError
	require.ErrorAs(t, errs[0], &chErr)
	assert.Equal(t, "feed:appointments", chErr.Channel)

	// Unsubscribe после ошибки безопасен
	sub.Unsubscribe()
}

func TestBridge_Subscribe_UndecodableFrameStopsDelivery(t *testing.T) {
	srv, _ := newFeedServer(t, []string{
		"{not json",
		`{"event_type":"insert","entity":"appointments","record":{"id":"late"}}`,
	}, waitForClose)

	bridge := NewBridge(srv.URL, testLogger())
	c := newCollector()

	sub, err := bridge.Subscribe(context.Background(), "appointments", Filter{}, c.handlers())
	require.NoError(t, err)

	c.wait(t, 1)
	waitDone(t, sub.Done())

	got, errs := c.snapshot()
	assert.Empty(t, got)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrChannel)
}

func TestBridge_Subscribe_ServerErrorFrame(t *testing.T) {
	srv, _ := newFeedServer(t, []string{
		`{"event_type":"error","message":"filter not allowed"}`,
	}, waitForClose)

	bridge := NewBridge(srv.URL, testLogger())
	c := newCollector()

	sub, err := bridge.Subscribe(context.Background(), "appointments", Filter{}, c.handlers())
	require.NoError(t, err)

	c.wait(t, 1)
	waitDone(t, sub.Done())
	_, errs := c.snapshot()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "filter not allowed")
}

func TestBridge_Subscribe_SilentConnectionTimesOut(t *testing.T) {
	// Сервер молчит и не шлет ping: полуоткрытое соединение
	srv, _ := newFeedServer(t, nil, waitForClose)

	bridge := NewBridge(srv.URL, testLogger(), WithDialer(NewWSDialer(time.Second, 200*time.Millisecond)))
	c := newCollector()

	sub, err := bridge.Subscribe(context.Background(), "appointments", Filter{}, c.handlers())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	c.wait(t, 1)
	waitDone(t, sub.Done())

	_, errs := c.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrChannel)
}

func TestBridge_Subscribe_PingsKeepConnectionAlive(t *testing.T) {
	insert := frame(t, pkgapi.ChangeFrame{EventType: pkgapi.EventInsert, Entity: "appointments", Record: map[string]any{"id": "a1"}})
	srv, _ := newFeedServer(t, nil, func(conn *websocket.Conn) {
		// Пинги дольше дедлайна чтения, затем одно изменение
		for i := 0; i < 12; i++ {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(insert)); err != nil {
			return
		}
		waitForClose(conn)
	})

	bridge := NewBridge(srv.URL, testLogger(), WithDialer(NewWSDialer(time.Second, 200*time.Millisecond)))
	c := newCollector()

	sub, err := bridge.Subscribe(context.Background(), "appointments", Filter{}, c.handlers())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	c.wait(t, 1)
	got, errs := c.snapshot()
	assert.Empty(t, errs)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].Record["id"])
}

func TestBridge_Unsubscribe_IdempotentWithoutError(t *testing.T) {
	srv, _ := newFeedServer(t, nil, waitForClose)

	bridge := NewBridge(srv.URL, testLogger())
	c := newCollector()

	sub, err := bridge.Subscribe(context.Background(), "appointments", Filter{}, c.handlers())
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()
	waitDone(t, sub.Done())

	got, errs := c.snapshot()
	assert.Empty(t, got)
	assert.Empty(t, errs)
}

func TestBridge_Subscribe_ContextCancelCloses(t *testing.T) {
	srv, _ := newFeedServer(t, nil, waitForClose)

	bridge := NewBridge(srv.URL, testLogger())
	c := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := bridge.Subscribe(ctx, "appointments", Filter{}, c.handlers())
	require.NoError(t, err)

	cancel()
	waitDone(t, sub.Done())

	_, errs := c.snapshot()
	assert.Empty(t, errs)
}

func TestBridge_Subscribe_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	bridge := NewBridge(srv.URL, testLogger())
	_, err := bridge.Subscribe(context.Background(), "appointments", Filter{}, Handlers{})
	assert.ErrorIs(t, err, ErrChannel)
}

type staticToken string

func (s staticToken) AccessToken(ctx context.Context) (string, error) { return string(s), nil }

func TestBridge_Subscribe_SendsToken(t *testing.T) {
	srv, fs := newFeedServer(t, nil, waitForClose)

	bridge := NewBridge(srv.URL, testLogger(), WithTokenProvider(staticToken("tok")))
	sub, err := bridge.Subscribe(context.Background(), "appointments", Filter{}, Handlers{})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	req := <-fs.requests
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
}

func TestBridge_JoinPresence(t *testing.T) {
	tracked := make(chan pkgapi.PresenceFrame, 4)

	srv, fs := newFeedServer(t, nil, func(conn *websocket.Conn) {
		// Первый фрейм клиента - track
		var track pkgapi.PresenceFrame
		if err := conn.ReadJSON(&track); err != nil {
			return
		}
		tracked <- track

		_ = conn.WriteJSON(pkgapi.PresenceFrame{
			Type:      pkgapi.PresenceSync,
			Presences: map[string]map[string]any{track.Key: track.Meta},
		})
		_ = conn.WriteJSON(pkgapi.PresenceFrame{Type: pkgapi.PresenceJoin, Key: "bob", Meta: map[string]any{"status": "online"}})
		_ = conn.WriteJSON(pkgapi.PresenceFrame{Type: pkgapi.PresenceLeave, Key: "bob"})

		for {
			var f pkgapi.PresenceFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			tracked <- f
		}
	})

	var (
		mu     sync.Mutex
		kinds  []models.PresenceKind
		joined = make(chan struct{}, 4)
	)
	record := func(ev models.PresenceEvent) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
		joined <- struct{}{}
	}

	bridge := NewBridge(srv.URL, testLogger())
	pc, err := bridge.JoinPresence(context.Background(), "clinic-1", "alice", map[string]any{"status": "online"}, PresenceHandlers{
		OnSync:  record,
		OnJoin:  record,
		OnLeave: record,
	})
	require.NoError(t, err)

	req := <-fs.requests
	assert.Equal(t, "/api/v1/presence/clinic-1", req.URL.Path)
	assert.Equal(t, "alice", req.URL.Query().Get("key"))

	first := <-tracked
	assert.Equal(t, pkgapi.PresenceTrack, first.Type)
	assert.Equal(t, "alice", first.Key)

	for i := 0; i < 3; i++ {
		select {
		case <-joined:
		case <-time.After(waitTimeout):
			t.Fatal("timed out waiting for presence events")
		}
	}

	mu.Lock()
	assert.Equal(t, []models.PresenceKind{models.PresenceSync, models.PresenceJoin, models.PresenceLeave}, kinds)
	mu.Unlock()

	members := pc.Members()
	assert.Len(t, members, 1)
	assert.Equal(t, "online", members["alice"]["status"])

	require.NoError(t, pc.Track(map[string]any{"status": "away"}))
	select {
	case f := <-tracked:
		assert.Equal(t, "away", f.Meta["status"])
	case <-time.After(waitTimeout):
		t.Fatal("track frame not received")
	}

	pc.Leave()
	pc.Leave()
	waitDone(t, pc.Done())

	assert.ErrorIs(t, pc.Track(nil), ErrChannel)
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080", websocketURL("http://localhost:8080/"))
	assert.Equal(t, "wss://api.example.com", websocketURL("https://api.example.com"))
}
