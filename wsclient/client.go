// Package wsclient implements the reconnecting WebSocket client used by
// the CLI. Connection establishment retries with linear backoff up to a
// bounded attempt count; the timer and dialer are injectable so the
// state machine is testable without sockets or sleeps.
package wsclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	codetutor "github.com/tutorlab/codetutor"
)

// ErrNotConnected is returned by Send when the client is not open.
var ErrNotConnected = errors.New("wsclient: not connected")

// Conn is one established connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes connections. The default uses gorilla/websocket.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Scheduler runs a function after a delay. The returned cancel stops a
// pending run. The default uses time.AfterFunc.
type Scheduler interface {
	Schedule(d time.Duration, f func()) (cancel func())
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return gorillaConn{ws}, nil
}

type gorillaConn struct {
	ws *websocket.Conn
}

func (c gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c gorillaConn) WriteMessage(data []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c gorillaConn) Close() error { return c.ws.Close() }

type timerScheduler struct{}

func (timerScheduler) Schedule(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithScheduler replaces the retry timer.
func WithScheduler(s Scheduler) Option {
	return func(c *Client) { c.scheduler = s }
}

// WithBackoff sets the linear backoff base delay and the consecutive
// failure bound.
func WithBackoff(base time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxAttempts = maxAttempts
	}
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client owns one logical WebSocket connection and reconnects across
// drops. Reconnect attempt n waits base*n before dialing; after
// maxAttempts consecutive failures the client goes Disconnected and
// stays there until Connect is called again. Any successful open resets
// the counter.
type Client struct {
	url         string
	dialer      Dialer
	scheduler   Scheduler
	baseDelay   time.Duration
	maxAttempts int
	logger      *slog.Logger

	mu          sync.Mutex
	state       State
	attempts    int
	conn        Conn
	cancelRetry func()
	closed      bool
	onMessage   func(codetutor.ServerEnvelope)
	onChange    func(State)
}

// New creates a client for the given WebSocket URL. It does not dial
// until Connect.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		dialer:      gorillaDialer{},
		scheduler:   timerScheduler{},
		baseDelay:   time.Second,
		maxAttempts: 5,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnMessage registers the inbound envelope handler. Single subscriber;
// the last registration wins.
func (c *Client) OnMessage(h func(codetutor.ServerEnvelope)) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

// OnConnectionChange registers the state transition handler. Single
// subscriber; the last registration wins.
func (c *Client) OnConnectionChange(h func(State)) {
	c.mu.Lock()
	c.onChange = h
	c.mu.Unlock()
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts connection establishment. It resets the attempt
// counter, so it also restarts a client that went Disconnected. Calling
// it while connecting or open is a no-op.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.closed = false
	c.attempts = 0
	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
	c.mu.Unlock()
	c.dial()
}

// Send encodes the envelope onto the socket. When not open it drops the
// envelope with a diagnostic and returns ErrNotConnected.
func (c *Client) Send(env codetutor.ClientEnvelope) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		c.logger.Debug("dropping envelope, not connected", "action", env.Action)
		return ErrNotConnected
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return conn.WriteMessage(data)
}

// Close tears the connection down and stops any pending retry.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.setState(StateIdle)
	return err
}

func (c *Client) dial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, err := c.dialer.Dial(context.Background(), c.url)
	if err != nil {
		c.logger.Warn("dial failed", "url", c.url, "err", err)
		c.retry()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.setState(StateOpen)
	go c.readLoop(conn)
}

// retry schedules the next dial with linear backoff, or gives up once
// the attempt bound is reached.
func (c *Client) retry() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts >= c.maxAttempts {
		c.mu.Unlock()
		c.logger.Warn("giving up after consecutive failures", "attempts", c.maxAttempts)
		c.setState(StateDisconnected)
		return
	}
	delay := c.baseDelay * time.Duration(c.attempts)
	c.cancelRetry = c.scheduler.Schedule(delay, c.dial)
	c.mu.Unlock()
	c.setState(StateIdle)
}

func (c *Client) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		env, err := codetutor.DecodeServerEnvelope(data)
		if err != nil {
			c.logger.Warn("ignoring malformed frame", "err", err)
			continue
		}
		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(env)
		}
	}
	conn.Close()

	c.mu.Lock()
	stale := c.closed || c.conn != conn
	if !stale {
		c.conn = nil
	}
	c.mu.Unlock()
	if stale {
		return
	}
	// retry owns the Open -> Idle transition so a state observer never
	// sees Idle before the reconnect timer exists.
	c.retry()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	handler := c.onChange
	c.mu.Unlock()
	if handler != nil {
		handler(s)
	}
}
