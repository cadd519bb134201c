package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmer/wsbridge/internal/transport"
)

// End-to-end coverage over the gorilla-backed transport.

func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestManager_EndToEnd(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
			return
		}
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, append([]byte("echo:"), msg...)); err != nil {
				return
			}
		}
	})
	defer server.Close()

	dialer := transport.NewWSDialer(transport.DefaultDialConfig(), nil)
	cfg := DefaultManagerConfig()
	cfg.SendResolveDelay = 0
	m := NewManager(cfg, dialer, nil)

	sub := m.Events()
	defer sub.Cancel()

	nextEvent(t, sub) // created

	if err := m.Connect(context.Background(), transport.Request{URL: wsURL(server)}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if ev := nextEvent(t, sub); ev.Kind != KindConnected {
		t.Fatalf("event = %s, want connected", ev.Kind)
	}

	if ev := nextEvent(t, sub); ev.Kind != KindFrame || ev.Text() != "hello" {
		t.Fatalf("event = %s %q, want frame %q", ev.Kind, ev.Text(), "hello")
	}

	p, err := m.SendText("one")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("send result = %v", err)
	}

	if ev := nextEvent(t, sub); ev.Kind != KindFrame || ev.Text() != "echo:one" {
		t.Fatalf("event = %s %q, want frame %q", ev.Kind, ev.Text(), "echo:one")
	}

	if err := m.Disconnect(1000, "bye"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if m.IsConnected() {
		t.Error("IsConnected true after Disconnect")
	}

	ev := nextEvent(t, sub)
	if ev.Kind != KindDisconnected || ev.Code != 1000 || ev.Reason != "bye" {
		t.Fatalf("event = %s %d %q, want disconnected 1000 bye", ev.Kind, ev.Code, ev.Reason)
	}
}

func TestManager_EndToEndServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "maintenance")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		// Wait for the client's close echo.
		conn.ReadMessage()
	})
	defer server.Close()

	dialer := transport.NewWSDialer(transport.DefaultDialConfig(), nil)
	cfg := DefaultManagerConfig()
	cfg.SendResolveDelay = 0
	m := NewManager(cfg, dialer, nil)

	sub := m.Events()
	defer sub.Cancel()

	if err := m.Connect(context.Background(), transport.Request{URL: wsURL(server)}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	nextEvent(t, sub) // created
	nextEvent(t, sub) // connected

	ev := nextEvent(t, sub)
	if ev.Kind != KindDisconnected || ev.Code != websocket.CloseGoingAway || ev.Reason != "maintenance" {
		t.Fatalf("event = %s %d %q, want disconnected 1001 maintenance", ev.Kind, ev.Code, ev.Reason)
	}

	waitFor(t, func() bool { return !m.IsConnected() })
}

func TestManager_EndToEndAbruptTeardown(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the TCP connection without a close frame.
		conn.UnderlyingConn().Close()
	})
	defer server.Close()

	dialer := transport.NewWSDialer(transport.DefaultDialConfig(), nil)
	cfg := DefaultManagerConfig()
	cfg.SendResolveDelay = 0
	m := NewManager(cfg, dialer, nil)

	sub := m.Events()
	defer sub.Cancel()

	if err := m.Connect(context.Background(), transport.Request{URL: wsURL(server)}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	nextEvent(t, sub) // created
	nextEvent(t, sub) // connected

	// The manager must observe the loss and release the session so a
	// fresh Connect is possible.
	ev := nextEvent(t, sub)
	if ev.Kind != KindDisconnected || ev.Code != websocket.CloseAbnormalClosure {
		t.Fatalf("event = %s %d, want disconnected %d", ev.Kind, ev.Code, websocket.CloseAbnormalClosure)
	}

	waitFor(t, func() bool { return !m.IsConnected() })
}

func TestSupervisor_RedialsAfterAbruptTeardown(t *testing.T) {
	var mu sync.Mutex
	dials := 0

	server := mockWSServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		dials++
		n := dials
		mu.Unlock()
		if n == 1 {
			// Kill the first session without a close frame.
			conn.UnderlyingConn().Close()
			return
		}
		// Later sessions idle until the client leaves.
		conn.ReadMessage()
	})
	defer server.Close()

	dialer := transport.NewWSDialer(transport.DefaultDialConfig(), nil)
	cfg := DefaultManagerConfig()
	cfg.SendResolveDelay = 0
	m := NewManager(cfg, dialer, nil)

	sup := NewSupervisor(SupervisorConfig{
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  50 * time.Millisecond,
	}, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- sup.Run(ctx, transport.Request{URL: wsURL(server)})
	}()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 2
	})
	waitFor(t, m.IsConnected)

	cancel()
	select {
	case err := <-runDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}
