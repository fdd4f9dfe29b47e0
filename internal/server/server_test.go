package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	codetutor "github.com/tutorlab/codetutor"
	"github.com/tutorlab/codetutor/explain"
	"github.com/tutorlab/codetutor/relay"
	"github.com/tutorlab/codetutor/sandbox"
	"github.com/tutorlab/codetutor/store/sqlite"
)

// echoRunner pretends every program prints one line and exits 0.
type echoRunner struct{}

func (echoRunner) Run(ctx context.Context, req sandbox.Request, ch chan<- sandbox.Event) error {
	defer close(ch)
	ch <- sandbox.Event{Kind: sandbox.EventStdout, Content: "Hello, World!\n"}
	ch <- sandbox.Event{Kind: sandbox.EventResult, Success: true, ExitCode: 0}
	return nil
}

func (echoRunner) Name() string  { return "echo" }
func (echoRunner) Trusted() bool { return true }

func newTestServer(t *testing.T, withStore bool) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	var store *sqlite.Store
	if withStore {
		store = sqlite.New(filepath.Join(t.TempDir(), "history.db"))
		t.Cleanup(func() { store.Close() })
		if err := store.Init(context.Background()); err != nil {
			t.Fatalf("store init: %v", err)
		}
	}
	srv := New(Config{
		Execution:   relay.NewExecution(echoRunner{}),
		Explanation: relay.NewExplanation(explain.NewStatic()),
		Store:       store,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, store
}

func dialWS(t *testing.T, ts *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntilTerminal(t *testing.T, conn *websocket.Conn) []codetutor.ServerEnvelope {
	t.Helper()
	var envs []codetutor.ServerEnvelope
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		env, err := codetutor.DecodeServerEnvelope(data)
		if err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		envs = append(envs, env)
		if env.Terminal() {
			return envs
		}
	}
}

func TestWebSocketExecute(t *testing.T) {
	ts, _ := newTestServer(t, false)
	conn := dialWS(t, ts, "alice")

	req, _ := codetutor.ClientEnvelope{
		Action:   codetutor.ActionExecute,
		Code:     `print("Hello, World!")`,
		Language: "python",
	}.Encode()
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	envs := readUntilTerminal(t, conn)
	if envs[0].Type != codetutor.TypeExecutionStart {
		t.Fatalf("first = %q", envs[0].Type)
	}
	if envs[len(envs)-1].Type != codetutor.TypeExecutionComplete {
		t.Fatalf("terminal = %q", envs[len(envs)-1].Type)
	}
	var output strings.Builder
	for _, env := range envs {
		if env.Type == codetutor.TypeExecutionOutput && env.Data.Kind == codetutor.OutputStdout {
			output.WriteString(env.Data.Content)
		}
	}
	if output.String() != "Hello, World!\n" {
		t.Errorf("output = %q", output.String())
	}
}

func TestWebSocketDegradedExplain(t *testing.T) {
	ts, _ := newTestServer(t, false)
	conn := dialWS(t, ts, "alice")

	req, _ := codetutor.ClientEnvelope{
		Action: codetutor.ActionExplain,
		Code:   `print("hi")`,
		Output: "hi\n",
	}.Encode()
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	envs := readUntilTerminal(t, conn)
	if envs[0].Type != codetutor.TypeExplanationStart {
		t.Fatalf("first = %q", envs[0].Type)
	}
	if envs[len(envs)-1].Type != codetutor.TypeExplanationComplete {
		t.Fatalf("terminal = %q", envs[len(envs)-1].Type)
	}
	if len(envs) < 3 || envs[1].Type != codetutor.TypeExplanationChunk {
		t.Fatalf("no chunks in degraded explain: %+v", envs)
	}
	if envs[1].Data.Text != explain.FallbackMarker {
		t.Errorf("first chunk = %q, want the fallback marker", envs[1].Data.Text)
	}
}

func TestWebSocketSupersede(t *testing.T) {
	ts, _ := newTestServer(t, false)
	first := dialWS(t, ts, "alice")
	_ = dialWS(t, ts, "alice")

	// The first connection is closed once the second registers.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatal("superseded connection still readable")
	}
}

func TestRESTExecute(t *testing.T) {
	ts, _ := newTestServer(t, false)

	body, _ := json.Marshal(executeRequest{Code: `print("hi")`, Language: "python"})
	resp, err := http.Post(ts.URL+"/api/execute", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success {
		t.Error("success = false")
	}
	if got.Output != "Hello, World!\n" {
		t.Errorf("output = %q", got.Output)
	}
	if got.Language != "python" {
		t.Errorf("language = %q", got.Language)
	}
}

func TestRESTExecuteUnsupportedLanguage(t *testing.T) {
	ts, _ := newTestServer(t, false)

	body, _ := json.Marshal(executeRequest{Code: "puts 1", Language: "ruby"})
	resp, err := http.Post(ts.URL+"/api/execute", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var got executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Success {
		t.Error("success = true for unsupported language")
	}
	if !strings.Contains(got.Error, "ruby") {
		t.Errorf("error %q does not name the language", got.Error)
	}
}

func TestRESTExplain(t *testing.T) {
	ts, _ := newTestServer(t, false)

	body, _ := json.Marshal(explainRequest{Code: `print("hi")`})
	resp, err := http.Post(ts.URL+"/api/explain", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(got["explanation"], explain.FallbackMarker) {
		t.Errorf("explanation does not lead with the fallback marker: %q", got["explanation"])
	}
}

func TestHistoryEndpoint(t *testing.T) {
	ts, store := newTestServer(t, true)
	if err := store.RecordRun(context.Background(), sqlite.Run{
		ID: "r1", ClientID: "alice", Kind: "execute", Language: "python", Success: true, Elapsed: 0.4,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/history/alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got struct {
		Runs []sqlite.Run `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Runs) != 1 || got.Runs[0].ID != "r1" {
		t.Fatalf("runs = %+v", got.Runs)
	}
}

func TestHistoryDisabled(t *testing.T) {
	ts, _ := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/api/history/alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" {
		t.Errorf("status = %v", got["status"])
	}
	if got["sandbox"] != "echo" || got["explain"] != "static" {
		t.Errorf("backends = %v / %v", got["sandbox"], got["explain"])
	}
}

func TestDocs(t *testing.T) {
	ts, _ := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/docs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
}

func TestOriginCheck(t *testing.T) {
	srv := New(Config{
		Execution:      relay.NewExecution(echoRunner{}),
		Explanation:    relay.NewExplanation(explain.NewStatic()),
		AllowedOrigins: []string{"https://tutor.example"},
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/alice"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	if conn, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		conn.Close()
		t.Fatal("upgrade succeeded from a disallowed origin")
	}

	header = http.Header{"Origin": []string{"https://tutor.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("upgrade failed from an allowed origin: %v", err)
	}
	conn.Close()
}
