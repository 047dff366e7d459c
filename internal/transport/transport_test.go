package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
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

func testConfig(url string) Config {
	return Config{
		URL:          url,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		BufferSize:   100,
	}
}

func TestConn_ConnectClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	c := New(testConfig(wsURL(server)), nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !c.IsConnected() {
		t.Error("expected IsConnected after Connect")
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if c.IsConnected() {
		t.Error("expected not connected after Close")
	}

	// Idempotent
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestConn_AuthHeader(t *testing.T) {
	var gotAuth string
	var mu sync.Mutex

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer server.Close()

	cfg := testConfig(wsURL(server))
	cfg.Token = "tok-123"
	c := New(cfg, nil)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-123")
	}
}

func TestConn_SendAndReceive(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Echo everything back
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	})
	defer server.Close()

	c := New(testConfig(wsURL(server)), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	payload := []byte(`{"event":"typing","data":{"chatId":"c1","isTyping":true}}`)
	if err := c.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-c.Messages():
		if string(msg.Data) != string(payload) {
			t.Errorf("received %q, want %q", msg.Data, payload)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("missing receive timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echo")
	}
}

func TestConn_SendWithZeroWriteTimeout(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	})
	defer server.Close()

	// An unset write timeout must not leave every write deadline in the past.
	cfg := Config{
		URL:          wsURL(server),
		PingInterval: 30 * time.Second,
		BufferSize:   10,
	}
	c := New(cfg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	if err := c.Send([]byte(`{"event":"typing","data":{"chatId":"c1"}}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-c.Messages():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echo")
	}
}

func TestConn_SendNotConnected(t *testing.T) {
	c := New(testConfig("ws://127.0.0.1:0"), nil)

	if err := c.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestConn_ServerDropSignalsError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the connection without a close frame.
		conn.UnderlyingConn().Close()
	})
	defer server.Close()

	c := New(testConfig(wsURL(server)), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	select {
	case err := <-c.Errors():
		if err == nil {
			t.Error("nil error from Errors()")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error after server drop")
	}

	// readLoop marks the conn dead
	deadline := time.Now().Add(time.Second)
	for c.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.IsConnected() {
		t.Error("still connected after server drop")
	}
}

func TestConn_CloseSuppressesReadError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	c := New(testConfig(wsURL(server)), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	c.Close()

	select {
	case err := <-c.Errors():
		t.Errorf("unexpected error after explicit Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}
