package amcp_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MegaGrindStone/go-amcp"
)

func TestWebSocketServer(t *testing.T) {
	ws := amcp.NewWebSocketServer()
	srv := amcp.NewServer(ws, newTestStrategy(t, nil, nil))
	go srv.Serve()

	ts := httptest.NewServer(ws.HandleWebSocket())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// One frame may carry several lines; each reply comes back in its own frame.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("VERSION\r\nREQ 1 PLAY 1\n\nPLAY 7")); err != nil {
		t.Fatalf("failed to write message: %v", err)
	}

	want := []string{
		"201 VERSION OK\r\n2.3.0\r\n",
		"RES 1 202 PLAY OK\r\n",
		"401 PLAY ERROR\r\n",
	}
	for i, w := range want {
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("failed to set deadline: %v", err)
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("failed to read reply %d: %v", i, err)
		}
		if msgType != websocket.TextMessage {
			t.Errorf("reply %d type = %d, want text", i, msgType)
		}
		if string(data) != w {
			t.Errorf("reply %d = %q, want %q", i, data, w)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("failed to shutdown: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set deadline: %v", err)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read after shutdown error = %v, want a normal close", err)
	}
}

func TestWebSocketServerRejectsPlainHTTP(t *testing.T) {
	ws := amcp.NewWebSocketServer()
	ts := httptest.NewServer(ws.HandleWebSocket())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		t.Errorf("status = %d, want an error status", resp.StatusCode)
	}
}
