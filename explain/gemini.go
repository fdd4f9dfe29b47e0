package explain

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	codetutor "github.com/tutorlab/codetutor"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements Explainer against the Google Gemini streaming API.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// compile-time check
var _ Explainer = (*Gemini)(nil)

// GeminiOption configures a Gemini explainer.
type GeminiOption func(*Gemini)

// WithGeminiTimeout bounds one explanation stream. Default: 60s.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) { g.timeout = d }
}

// WithGeminiBaseURL overrides the API base URL. Used by tests.
func WithGeminiBaseURL(u string) GeminiOption {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithGeminiHTTPClient overrides the HTTP client.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.httpClient = c }
}

// NewGemini creates a Gemini explainer for the given model
// (e.g. "gemini-2.5-flash").
func NewGemini(apiKey, model string, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		timeout:    60 * time.Second,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

// --- request/response wire types ---

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateChunk struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ExplainStream implements Explainer. It POSTs to the SSE streaming
// endpoint and relays each text delta as one increment.
func (g *Gemini) ExplainStream(ctx context.Context, req Request, ch chan<- string) (string, error) {
	defer close(ch)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: buildPrompt(req)}}}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fault("gemini", codetutor.FaultBadInput, "marshal body: "+err.Error())
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", g.baseURL, g.model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return "", fault("gemini", codetutor.FaultBadInput, "create request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", fault("gemini", codetutor.FaultTimeout, fmt.Sprintf("model timed out after %s", g.timeout))
		}
		return "", fault("gemini", codetutor.FaultUnavailable, "model service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus(resp.StatusCode, string(b))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		// SSE data lines; everything else is framing.
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "" || data == "[DONE]" {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, cand := range chunk.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				full.WriteString(p.Text)
				select {
				case ch <- p.Text:
				case <-ctx.Done():
					return full.String(), fault("gemini", codetutor.FaultTimeout, fmt.Sprintf("model timed out after %s", g.timeout))
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return full.String(), fault("gemini", codetutor.FaultTimeout, fmt.Sprintf("model timed out after %s", g.timeout))
		}
		return full.String(), fault("gemini", codetutor.FaultUnavailable, "model stream interrupted")
	}

	return full.String(), nil
}

// classifyStatus maps an HTTP status to a collaborator fault.
func classifyStatus(status int, body string) *codetutor.ErrCollaborator {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fault("gemini", codetutor.FaultAuth, "model credential rejected")
	case status == http.StatusTooManyRequests:
		return fault("gemini", codetutor.FaultQuota, "model quota exceeded")
	case status >= 500:
		return fault("gemini", codetutor.FaultUnavailable, "model service unavailable")
	default:
		return fault("gemini", codetutor.FaultBadInput, fmt.Sprintf("model rejected request (%d): %s", status, body))
	}
}
