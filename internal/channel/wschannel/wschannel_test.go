package wschannel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer upgrades and echoes every envelope back to the sender.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, frame, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, frame); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEmitAndDispatch(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn, err := Dial(context.Background(), wsURL(srv), Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	got := make(chan json.RawMessage, 1)
	conn.On("ping_me", func(data json.RawMessage) { got <- data })

	if err := conn.Emit("ping_me", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	select {
	case data := <-got:
		var payload map[string]string
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload["k"] != "v" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the echoed event")
	}
}

func TestOffStopsDelivery(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn, err := Dial(context.Background(), wsURL(srv), Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	silenced := make(chan struct{}, 4)
	marker := make(chan struct{}, 1)
	conn.On("silenced", func(json.RawMessage) { silenced <- struct{}{} })
	conn.On("marker", func(json.RawMessage) { marker <- struct{}{} })
	conn.Off("silenced")

	if err := conn.Emit("silenced", nil); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := conn.Emit("marker", nil); err != nil {
		t.Fatalf("emit: %v", err)
	}

	// Delivery is sequential: once the marker arrives, the silenced event
	// has already been through dispatch.
	select {
	case <-marker:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the marker event")
	}
	select {
	case <-silenced:
		t.Fatal("an unregistered handler must not fire")
	default:
	}
}

func TestCloseIsCleanAndFinal(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	gone := make(chan error, 1)
	conn, err := Dial(context.Background(), wsURL(srv), Options{
		OnDisconnect: func(err error) { gone <- err },
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-gone:
		if err != nil {
			t.Fatalf("a local close should disconnect without an error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the disconnect callback")
	}

	if err := conn.Emit("anything", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("emit after close should fail with ErrClosed, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("a second close should be a no-op, got %v", err)
	}
}

func TestServerDisconnectReportsCause(t *testing.T) {
	srv := echoServer(t)

	gone := make(chan error, 1)
	conn, err := Dial(context.Background(), wsURL(srv), Options{
		OnDisconnect: func(err error) { gone <- err },
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	srv.CloseClientConnections()
	select {
	case err := <-gone:
		if err == nil {
			t.Fatal("a dropped connection should carry its cause")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the disconnect callback")
	}
}
