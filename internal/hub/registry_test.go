package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newWSPair dials a throwaway httptest server and returns both ends of
// one WebSocket connection.
func newWSPair(t *testing.T) (*Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-connCh:
		return NewConn(server), client
	case <-time.After(2 * time.Second):
		t.Fatal("server side never arrived")
		return nil, nil
	}
}

func TestRegistryRegisterLookup(t *testing.T) {
	reg := NewRegistry()
	conn, _ := newWSPair(t)

	reg.Register("alice", conn)
	got, ok := reg.Lookup("alice")
	if !ok || got != conn {
		t.Fatal("Lookup did not return the registered connection")
	}
	if _, ok := reg.Lookup("bob"); ok {
		t.Fatal("Lookup returned a connection for an unknown id")
	}
	if reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", reg.Len())
	}
}

func TestRegistrySupersede(t *testing.T) {
	reg := NewRegistry()
	first, firstClient := newWSPair(t)
	second, _ := newWSPair(t)

	reg.Register("alice", first)
	reg.Register("alice", second)

	got, ok := reg.Lookup("alice")
	if !ok || got != second {
		t.Fatal("second registration did not win")
	}

	// The superseded connection was closed, so its peer sees EOF.
	firstClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := firstClient.ReadMessage(); err == nil {
		t.Fatal("superseded connection still readable")
	}
}

func TestRegistryStaleUnregister(t *testing.T) {
	reg := NewRegistry()
	first, _ := newWSPair(t)
	second, _ := newWSPair(t)

	reg.Register("alice", first)
	reg.Register("alice", second)

	// The superseded connection's cleanup must not remove its successor.
	reg.Unregister("alice", first)
	if _, ok := reg.Lookup("alice"); !ok {
		t.Fatal("stale unregister removed the live connection")
	}

	reg.Unregister("alice", second)
	if _, ok := reg.Lookup("alice"); ok {
		t.Fatal("live connection still registered after its own unregister")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	reg := NewRegistry()
	a, aClient := newWSPair(t)
	b, bClient := newWSPair(t)
	reg.Register("alice", a)
	reg.Register("bob", b)

	reg.CloseAll()
	if reg.Len() != 0 {
		t.Fatalf("Len = %d after CloseAll, want 0", reg.Len())
	}
	for _, client := range []*websocket.Conn{aClient, bClient} {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := client.ReadMessage(); err == nil {
			t.Fatal("connection still readable after CloseAll")
		}
	}
}
