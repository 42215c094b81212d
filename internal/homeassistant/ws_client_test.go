package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
)

// fakeHA is a minimal Home Assistant WebSocket endpoint. handle returns the
// result for a command; a non-nil *WSError makes it fail.
type fakeHA struct {
	t      *testing.T
	token  string
	handle func(cmd map[string]any) (any, *WSError)

	mu       sync.Mutex
	commands []map[string]any
}

func (f *fakeHA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/websocket" {
		http.NotFound(w, r)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		f.t.Errorf("Accept() error = %v", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck // test server

	ctx := r.Context()
	if err := wsjson.Write(ctx, conn, map[string]any{"type": "auth_required", "ha_version": "2026.10.0"}); err != nil {
		return
	}
	var auth WSAuthMessage
	if err := wsjson.Read(ctx, conn, &auth); err != nil {
		return
	}
	if auth.AccessToken != f.token {
		_ = wsjson.Write(ctx, conn, map[string]any{"type": "auth_invalid", "message": "Invalid access token or password"})
		return
	}
	if err := wsjson.Write(ctx, conn, map[string]any{"type": "auth_ok"}); err != nil {
		return
	}

	for {
		var cmd map[string]any
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return
		}
		f.mu.Lock()
		f.commands = append(f.commands, cmd)
		f.mu.Unlock()

		result, wsErr := f.handle(cmd)
		msg := map[string]any{"id": cmd["id"], "type": "result", "success": wsErr == nil}
		if wsErr != nil {
			msg["error"] = wsErr
		} else {
			msg["result"] = result
		}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return
		}
	}
}

func (f *fakeHA) received() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.commands...)
}

func startFakeHA(t *testing.T, handle func(map[string]any) (any, *WSError)) (*fakeHA, string) {
	t.Helper()

	f := &fakeHA{t: t, token: "good-token", handle: handle}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func testWSConfig() *WSClientConfig {
	return &WSClientConfig{ReconnectConfig: DefaultReconnectConfig()}
}

func TestNewWSClient(t *testing.T) {
	t.Parallel()

	client := NewWSClient("http://homeassistant.local:8123", "test_token")
	if client.pending == nil || client.reconnectMgr == nil {
		t.Fatal("client not initialised")
	}
	if !client.config.AutoReconnect || client.config.PingInterval != 30*time.Second {
		t.Errorf("config = %+v, want defaults", client.config)
	}
	if client.IsConnected() || client.IsHealthy() {
		t.Error("new client reports connected")
	}
}

func TestWSClient_BuildWSURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		baseURL string
		want    string
		wantErr bool
	}{
		{baseURL: "http://homeassistant.local:8123", want: "ws://homeassistant.local:8123/api/websocket"},
		{baseURL: "https://ha.example.com", want: "wss://ha.example.com/api/websocket"},
		{baseURL: "ws://ha:8123/some/path", want: "ws://ha:8123/api/websocket"},
		{baseURL: "ftp://ha:8123", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.baseURL, func(t *testing.T) {
			t.Parallel()

			got, err := NewWSClient(tt.baseURL, "x").buildWSURL()
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildWSURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("buildWSURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWSClient_SendCommand_NotConnected(t *testing.T) {
	t.Parallel()

	_, err := NewWSClient("http://ha", "x").SendCommand(context.Background(), "lovelace/info", nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendCommand() error = %v, want ErrNotConnected", err)
	}
}

func TestWSClient_Close_NotConnected(t *testing.T) {
	t.Parallel()

	if err := NewWSClient("http://ha", "x").Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestConnect_AuthInvalid(t *testing.T) {
	t.Parallel()

	_, url := startFakeHA(t, func(map[string]any) (any, *WSError) { return nil, nil })

	_, err := NewConnectedWSClient(context.Background(), url, "wrong-token", testWSConfig())
	if err == nil || !strings.Contains(err.Error(), "Invalid access token") {
		t.Errorf("NewConnectedWSClient() error = %v, want auth failure", err)
	}
}

func TestConnectedClient_Commands(t *testing.T) {
	t.Parallel()

	fake, url := startFakeHA(t, func(cmd map[string]any) (any, *WSError) {
		switch cmd["type"] {
		case "config/entity_registry/list":
			return []map[string]any{
				{"entity_id": "select.macs_mood_2", "unique_id": "macs_mood", "platform": "mqtt"},
				{"entity_id": "light.kitchen", "platform": "hue"},
			}, nil
		case "lovelace/info":
			return map[string]any{"mode": "storage", "resource_mode": "storage"}, nil
		case "lovelace/resources":
			return []map[string]any{{"id": "r1", "type": "module", "url": "/macs/macs-card.js?v=0.9"}}, nil
		case "lovelace/resources/create", "lovelace/resources/update":
			return map[string]any{"id": "r2", "type": cmd["res_type"], "url": cmd["url"]}, nil
		case "config/entity_registry/update":
			if cmd["new_entity_id"] == "select.taken" {
				return nil, &WSError{Code: "invalid_info", Message: "Entity with this ID is already registered"}
			}
			return map[string]any{}, nil
		case "call_service":
			return map[string]any{"context": map[string]any{"id": "ctx"}}, nil
		}
		return nil, &WSError{Code: "unknown_command", Message: "Unknown command."}
	})

	client, err := NewConnectedWSClient(context.Background(), url, "good-token", testWSConfig())
	if err != nil {
		t.Fatalf("NewConnectedWSClient() error = %v", err)
	}
	defer CloseClient(client) //nolint:errcheck // test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := client.GetEntityRegistry(ctx)
	if err != nil {
		t.Fatalf("GetEntityRegistry() error = %v", err)
	}
	if len(entries) != 2 || entries[0].UniqueID != "macs_mood" || entries[0].Platform != "mqtt" {
		t.Errorf("GetEntityRegistry() = %+v", entries)
	}

	info, err := client.GetLovelaceInfo(ctx)
	if err != nil || info.YAMLResources() {
		t.Errorf("GetLovelaceInfo() = %+v, %v", info, err)
	}

	res, err := client.ListLovelaceResources(ctx)
	if err != nil || len(res) != 1 || res[0].ID != "r1" {
		t.Errorf("ListLovelaceResources() = %+v, %v", res, err)
	}

	created, err := client.CreateLovelaceResource(ctx, ResourceTypeModule, "/macs/macs-card.js?v=1.0")
	if err != nil || created.URL != "/macs/macs-card.js?v=1.0" || created.Type != ResourceTypeModule {
		t.Errorf("CreateLovelaceResource() = %+v, %v", created, err)
	}

	if _, err := client.UpdateLovelaceResource(ctx, "r1", ResourceTypeModule, "/macs/macs-card.js?v=1.0"); err != nil {
		t.Errorf("UpdateLovelaceResource() error = %v", err)
	}

	if err := client.UpdateEntityID(ctx, "select.macs_mood_2", "select.macs_mood"); err != nil {
		t.Errorf("UpdateEntityID() error = %v", err)
	}
	err = client.UpdateEntityID(ctx, "select.macs_mood_2", "select.taken")
	if !IsAPIErrorCode(err, "invalid_info") {
		t.Errorf("UpdateEntityID() error = %v, want invalid_info APIError", err)
	}

	if err := client.CallService(ctx, "select", ServiceSelectOption, map[string]any{"entity_id": "select.macs_mood", "option": "happy"}); err != nil {
		t.Errorf("CallService() error = %v", err)
	}

	cmds := fake.received()
	last := cmds[len(cmds)-1]
	raw, _ := json.Marshal(last)
	var gotCall map[string]any
	_ = json.Unmarshal(raw, &gotCall)
	delete(gotCall, "id")
	wantCall := map[string]any{
		"type":         "call_service",
		"domain":       "select",
		"service":      "select_option",
		"service_data": map[string]any{"entity_id": "select.macs_mood", "option": "happy"},
	}
	if diff := cmp.Diff(wantCall, gotCall); diff != "" {
		t.Errorf("call_service frame mismatch (-want +got):\n%s", diff)
	}

	var ids []float64
	for _, c := range cmds {
		ids = append(ids, c["id"].(float64))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("message ids not increasing: %v", ids)
			break
		}
	}
}

func TestConnectedClient_ConcurrentCommands(t *testing.T) {
	t.Parallel()

	_, url := startFakeHA(t, func(cmd map[string]any) (any, *WSError) {
		return map[string]any{"mode": "storage", "resource_mode": cmd["tag"]}, nil
	})

	client, err := NewConnectedWSClient(context.Background(), url, "good-token", testWSConfig())
	if err != nil {
		t.Fatalf("NewConnectedWSClient() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tag := strings.Repeat("x", i+1)
			res, err := client.WS().SendCommand(context.Background(), "lovelace/info", map[string]any{"tag": tag})
			if err != nil {
				t.Errorf("SendCommand() error = %v", err)
				return
			}
			var info LovelaceInfo
			if err := json.Unmarshal(res.Result, &info); err != nil || info.ResourceMode != tag {
				t.Errorf("response for %q routed wrong: %+v", tag, info)
			}
		}()
	}
	wg.Wait()
}

// acceptAuthenticated accepts a WebSocket and completes the auth handshake
// with any token.
func acceptAuthenticated(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, false
	}
	ctx := r.Context()
	if err := wsjson.Write(ctx, conn, map[string]any{"type": "auth_required"}); err != nil {
		return conn, false
	}
	var auth WSAuthMessage
	if err := wsjson.Read(ctx, conn, &auth); err != nil {
		return conn, false
	}
	return conn, wsjson.Write(ctx, conn, map[string]any{"type": "auth_ok"}) == nil
}

func TestWSClient_StalledConnection(t *testing.T) {
	t.Parallel()

	// The server authenticates and then stops reading, so pings go unanswered.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _ := acceptAuthenticated(w, r)
		if conn == nil {
			return
		}
		defer conn.CloseNow() //nolint:errcheck // test server
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	var disconnects atomic.Int32
	client, err := NewConnectedWSClient(context.Background(), srv.URL, "token", &WSClientConfig{
		ReconnectConfig: ReconnectConfig{InitialDelay: 30 * time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2},
		AutoReconnect:   true,
		PingInterval:    50 * time.Millisecond,
		PingTimeout:     50 * time.Millisecond,
		OnDisconnect:    func(error) { disconnects.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewConnectedWSClient() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	deadline := time.Now().Add(2 * time.Second)
	for disconnects.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if disconnects.Load() == 0 {
		t.Fatal("stalled connection was never dropped")
	}

	// While the backoff runs the read loop must stay parked.
	time.Sleep(300 * time.Millisecond)
	if got := disconnects.Load(); got != 1 {
		t.Errorf("OnDisconnect called %d times during backoff, want 1", got)
	}
	if client.WS().IsConnected() || client.WS().IsHealthy() {
		t.Error("client reports connected while reconnecting")
	}
	if _, err := client.WS().SendCommand(context.Background(), "lovelace/info", nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendCommand() error = %v, want ErrNotConnected", err)
	}
}

func TestWSClient_Reconnect(t *testing.T) {
	t.Parallel()

	fake := &fakeHA{t: t, token: "good-token", handle: func(map[string]any) (any, *WSError) {
		return map[string]any{"mode": "storage", "resource_mode": "storage"}, nil
	}}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) > 1 {
			fake.ServeHTTP(w, r)
			return
		}
		conn, _ := acceptAuthenticated(w, r)
		if conn != nil {
			_ = conn.Close(websocket.StatusGoingAway, "restarting")
		}
	}))
	t.Cleanup(srv.Close)

	reconnected := make(chan int, 1)
	var disconnects atomic.Int32
	client, err := NewConnectedWSClient(context.Background(), srv.URL, "good-token", &WSClientConfig{
		ReconnectConfig: ReconnectConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2},
		AutoReconnect:   true,
		OnReconnect:     func(attempts int) { reconnected <- attempts },
		OnDisconnect:    func(error) { disconnects.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewConnectedWSClient() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // test cleanup

	select {
	case attempts := <-reconnected:
		if attempts != 1 {
			t.Errorf("OnReconnect attempts = %d, want 1", attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client did not reconnect")
	}

	info, err := client.GetLovelaceInfo(context.Background())
	if err != nil {
		t.Fatalf("GetLovelaceInfo() after reconnect error = %v", err)
	}
	if info.ResourceMode != "storage" {
		t.Errorf("ResourceMode = %q", info.ResourceMode)
	}
	if got := disconnects.Load(); got != 1 {
		t.Errorf("OnDisconnect called %d times, want 1", got)
	}
	if got := conns.Load(); got != 2 {
		t.Errorf("server saw %d connections, want 2", got)
	}
}
