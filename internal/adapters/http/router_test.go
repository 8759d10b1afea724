package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/metrics"
	"github.com/dkeye/Relay/internal/protocol"
)

type wireFrame struct {
	Type    string          `json:"type"`
	Version uint64          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mode:           "test",
		Secret:         "test-secret",
		AllowedOrigins: []string{"*"},
		Signal: config.SignalConfig{
			ReadLimit:    4096,
			PongWait:     time.Minute,
			PingPeriod:   50 * time.Second,
			WriteWait:    time.Second,
			SendBuffer:   16,
			RateLimit:    100,
			RateInterval: time.Second,
		},
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	registry := app.NewRegistry()
	o := &orch.Orchestrator{
		Registry:  registry,
		Presence:  app.NewPresence(),
		Router:    app.NewRouter(registry, m),
		Policy:    app.SimplePolicy{Action: app.KickMember},
		Directory: app.NewMemoryDirectory(),
		Metrics:   m,
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctl := signal.NewSignalWSController(o, signal.OptionsFromConfig(cfg))
	srv := httptest.NewServer(WithCORS(SetupRouter(ctx, cfg, o, ctl, reg), cfg.AllowedOrigins))
	t.Cleanup(func() {
		cancel()
		ctl.Wait()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if data != nil {
		msg["data"] = data
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return f
}

func expect(t *testing.T, conn *websocket.Conn, typ string, into any) wireFrame {
	t.Helper()
	f := read(t, conn)
	if f.Type != typ {
		t.Fatalf("got %s %s, want %s", f.Type, f.Data, typ)
	}
	if into != nil {
		if err := json.Unmarshal(f.Data, into); err != nil {
			t.Fatalf("payload %s: %v", f.Data, err)
		}
	}
	return f
}

func joinRoom(t *testing.T, conn *websocket.Conn, room, name string) []protocol.User {
	t.Helper()
	send(t, conn, protocol.TypeJoinRoom, map[string]string{"roomId": room, "username": name})
	var users []protocol.User
	expect(t, conn, protocol.TypeRoomUsers, &users)
	return users
}

func TestChatOverWebSocket(t *testing.T) {
	srv := newTestServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)

	if users := joinRoom(t, alice, "R1", "alice"); len(users) != 1 || users[0].Username != "alice" {
		t.Fatalf("alice roster = %+v", users)
	}
	if users := joinRoom(t, bob, "R1", "bob"); len(users) != 2 {
		t.Fatalf("bob roster = %+v", users)
	}

	var notice protocol.ReceiveMessage
	expect(t, alice, protocol.TypeReceiveMessage, &notice)
	if notice.Username != "System" || notice.Message != "bob has joined the room" {
		t.Fatalf("notice = %+v", notice)
	}
	var users []protocol.User
	expect(t, alice, protocol.TypeRoomUsers, &users)
	if len(users) != 2 || users[1].Username != "bob" {
		t.Fatalf("alice sees %+v", users)
	}

	send(t, bob, protocol.TypeSendMessage, map[string]string{"message": "hello"})
	for _, c := range []*websocket.Conn{alice, bob} {
		var msg protocol.ReceiveMessage
		expect(t, c, protocol.TypeReceiveMessage, &msg)
		if msg.Username != "bob" || msg.Message != "hello" {
			t.Fatalf("message = %+v", msg)
		}
	}

	_ = bob.Close()
	expect(t, alice, protocol.TypeRoomUsers, &users)
	if len(users) != 1 || users[0].Username != "alice" {
		t.Fatalf("roster after bob left = %+v", users)
	}
	expect(t, alice, protocol.TypeReceiveMessage, &notice)
	if notice.Message != "bob has left the room" {
		t.Fatalf("leave notice = %+v", notice)
	}
}

func TestBadFramesAnswered(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	var e protocol.Error
	expect(t, conn, protocol.TypeError, &e)
	if e.Code != protocol.CodeBadPayload {
		t.Fatalf("code = %s", e.Code)
	}

	send(t, conn, protocol.TypeJoinRoom, map[string]string{"roomId": "R1", "username": ""})
	expect(t, conn, protocol.TypeError, &e)
	if e.Code != protocol.CodeInvalidJoinRequest {
		t.Fatalf("code = %s", e.Code)
	}

	// the connection survives both errors
	send(t, conn, protocol.TypePing, nil)
	expect(t, conn, protocol.TypePong, nil)
}

func TestWhoAmI(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv)
	joinRoom(t, conn, "R9", "carol")

	send(t, conn, protocol.TypeWhoAmI, nil)
	var who protocol.Identity
	expect(t, conn, protocol.TypeWhoAmI, &who)
	if who.ID == "" || who.RoomID != "R9" || who.Username != "carol" {
		t.Fatalf("whoami = %+v", who)
	}
}

func TestRoomsAPI(t *testing.T) {
	srv := newTestServer(t)
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Jar: jar, Timeout: 5 * time.Second}

	resp, err := client.Post(srv.URL+"/api/rooms", "application/json",
		bytes.NewBufferString(`{"groupName":"Team","maxMembers":2}`))
	if err != nil {
		t.Fatal(err)
	}
	var created RoomResponse
	decodeBody(t, resp, http.StatusCreated, &created)
	if len(created.ID) != 6 || created.GroupName != "Team" || created.MaxMembers != 2 {
		t.Fatalf("created = %+v", created)
	}

	resp, err = client.Post(srv.URL+"/api/rooms", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, http.StatusBadRequest, nil)

	resp, err = client.Get(srv.URL + "/api/rooms/NOSUCH")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, http.StatusNotFound, nil)

	conn := dial(t, srv)
	joinRoom(t, conn, string(created.ID), "dave")

	resp, err = client.Get(srv.URL + "/api/rooms/" + string(created.ID))
	if err != nil {
		t.Fatal(err)
	}
	var got RoomResponse
	decodeBody(t, resp, http.StatusOK, &got)
	if got.Online != 1 {
		t.Fatalf("online = %d", got.Online)
	}

	resp, err = client.Get(srv.URL + "/api/rooms/" + string(created.ID) + "/members")
	if err != nil {
		t.Fatal(err)
	}
	var members struct {
		Users []protocol.User `json:"users"`
	}
	decodeBody(t, resp, http.StatusOK, &members)
	if len(members.Users) != 1 || members.Users[0].Username != "dave" {
		t.Fatalf("members = %+v", members.Users)
	}

	resp, err = client.Get(srv.URL + "/api/session")
	if err != nil {
		t.Fatal(err)
	}
	var sess SessionResponse
	decodeBody(t, resp, http.StatusOK, &sess)
	if sess.ClientToken == "" || sess.RoomID != created.ID {
		t.Fatalf("session = %+v", sess)
	}
}

// Session cookies must come back over plain HTTP, otherwise the remembered
// room is lost between requests.
func TestSessionCookieOverPlainHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/rooms", "application/json",
		bytes.NewBufferString(`{"groupName":"Team","maxMembers":2}`))
	if err != nil {
		t.Fatal(err)
	}
	var created RoomResponse
	decodeBody(t, resp, http.StatusCreated, &created)

	resp, err = http.Get(srv.URL + "/api/rooms/" + string(created.ID))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name != sessionName {
			continue
		}
		found = true
		if c.Secure {
			t.Fatal("session cookie marked Secure on a plain-HTTP server")
		}
		if c.SameSite != http.SameSiteLaxMode {
			t.Fatalf("SameSite = %v, want Lax", c.SameSite)
		}
	}
	if !found {
		t.Fatalf("no %s cookie in %v", sessionName, resp.Header.Values("Set-Cookie"))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, http.StatusOK, nil)

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "relay_connections_active") {
		t.Fatalf("metrics missing relay collectors:\n%s", body)
	}
}

func TestCORS(t *testing.T) {
	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), []string{"https://app.test"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.test" {
		t.Fatalf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://other.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), []string{"*"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("credentials allowed for wildcard origin: %q", got)
	}
}

func TestCORSDisabledWithoutOrigins(t *testing.T) {
	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("cross-origin allowed without configuration: %q", got)
	}
}

func decodeBody(t *testing.T, resp *http.Response, status int, into any) {
	t.Helper()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != status {
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, status, body)
	}
	if into != nil {
		if err := json.Unmarshal(body, into); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
	}
}
