// Package hub tracks live WebSocket connections and runs the
// per-connection session loop that dispatches client envelopes to the
// relays.
package hub

import (
	"sync"

	"github.com/gorilla/websocket"

	codetutor "github.com/tutorlab/codetutor"
)

// Conn wraps a WebSocket connection with a write mutex so relay
// goroutines and the session loop never interleave frames.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
}

// NewConn wraps an upgraded WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Send writes one envelope as a JSON text frame. Safe for concurrent use.
func (c *Conn) Send(env codetutor.ServerEnvelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(env)
}

// Read blocks for the next inbound frame.
func (c *Conn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close closes the underlying socket. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}

// Registry maps client ids to their live connections. All registry
// mutation happens through these methods; one mutex guards the map.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register stores the connection under id. A prior connection under the
// same id is closed and replaced: the newest connection always wins.
func (r *Registry) Register(id string, conn *Conn) {
	r.mu.Lock()
	prev := r.conns[id]
	r.conns[id] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		prev.Close()
	}
}

// Unregister removes the mapping only if conn is still the registered
// connection. A stale unregister from a superseded connection is a no-op,
// so a fast reconnect is never torn down by its predecessor's cleanup.
func (r *Registry) Unregister(id string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[id] == conn {
		delete(r.conns, id)
	}
}

// Lookup returns the live connection for id, if any.
func (r *Registry) Lookup(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll closes every registered connection and empties the registry.
// Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
