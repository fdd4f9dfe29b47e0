package explain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	codetutor "github.com/tutorlab/codetutor"
)

// stream runs the explainer and gathers all chunks.
func stream(t *testing.T, e Explainer, req Request) ([]string, string, error) {
	t.Helper()
	ch := make(chan string, 64)
	type result struct {
		full string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		full, err := e.ExplainStream(context.Background(), req, ch)
		resCh <- result{full, err}
	}()
	var chunks []string
	for c := range ch {
		chunks = append(chunks, c)
	}
	res := <-resCh
	return chunks, res.full, res.err
}

func sseChunk(text string) string {
	return fmt.Sprintf(`data: {"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text) + "\n\n"
}

func TestGeminiStreamsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "alt=sse") {
			t.Errorf("query = %q, want alt=sse", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, text := range []string{"This code ", "assigns 1 ", "to x."} {
			fmt.Fprint(w, sseChunk(text))
		}
	}))
	defer srv.Close()

	g := NewGemini("test-key", "test-model", WithGeminiBaseURL(srv.URL))
	chunks, full, err := stream(t, g, Request{Code: "x=1"})
	if err != nil {
		t.Fatalf("ExplainStream: %v", err)
	}

	want := "This code assigns 1 to x."
	if full != want {
		t.Errorf("full = %q, want %q", full, want)
	}
	// Chunk concatenation reproduces the full text exactly.
	if got := strings.Join(chunks, ""); got != want {
		t.Errorf("joined chunks = %q, want %q", got, want)
	}
	if len(chunks) != 3 {
		t.Errorf("got %d chunks, want 3", len(chunks))
	}
}

func TestGeminiSkipsEmptyAndMalformedChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: ping\n\n")
		fmt.Fprint(w, sseChunk("hello"))
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":""}]}}]}`+"\n\n")
		fmt.Fprint(w, sseChunk(" world"))
	}))
	defer srv.Close()

	g := NewGemini("k", "m", WithGeminiBaseURL(srv.URL))
	chunks, full, err := stream(t, g, Request{Code: "x"})
	if err != nil {
		t.Fatalf("ExplainStream: %v", err)
	}
	if full != "hello world" {
		t.Errorf("full = %q, want %q", full, "hello world")
	}
	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2: %q", len(chunks), chunks)
	}
}

func TestGeminiClassifiesFaults(t *testing.T) {
	tests := []struct {
		status int
		want   codetutor.FaultReason
	}{
		{http.StatusUnauthorized, codetutor.FaultAuth},
		{http.StatusForbidden, codetutor.FaultAuth},
		{http.StatusTooManyRequests, codetutor.FaultQuota},
		{http.StatusInternalServerError, codetutor.FaultUnavailable},
		{http.StatusBadRequest, codetutor.FaultBadInput},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			g := NewGemini("k", "m", WithGeminiBaseURL(srv.URL))
			_, _, err := stream(t, g, Request{Code: "x"})
			var cerr *codetutor.ErrCollaborator
			if !errors.As(err, &cerr) {
				t.Fatalf("err = %v, want *ErrCollaborator", err)
			}
			if cerr.Reason != tt.want {
				t.Errorf("Reason = %q, want %q", cerr.Reason, tt.want)
			}
		})
	}
}

func TestGeminiUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	g := NewGemini("k", "m", WithGeminiBaseURL(srv.URL))
	_, _, err := stream(t, g, Request{Code: "x"})
	var cerr *codetutor.ErrCollaborator
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *ErrCollaborator", err)
	}
	if cerr.Reason != codetutor.FaultUnavailable {
		t.Errorf("Reason = %q, want %q", cerr.Reason, codetutor.FaultUnavailable)
	}
}

func TestPromptIncludesContext(t *testing.T) {
	p := buildPrompt(Request{Code: "x=1", Output: "out", Error: "err"})
	for _, want := range []string{"x=1", "Program output", "out", "Error encountered", "err", "how to fix it"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	p = buildPrompt(Request{Code: "x=1"})
	if strings.Contains(p, "Error encountered") {
		t.Error("prompt should omit error section when no error captured")
	}
	if !strings.Contains(p, "how this code works") {
		t.Error("prompt missing success-path instruction")
	}
}
