package explain

import (
	"context"
	"strings"
)

// FallbackMarker is the first chunk emitted by the static explainer so
// clients can distinguish the canned template from real model output.
const FallbackMarker = "**Code Analysis** (fallback mode, AI service unavailable)\n"

// Static implements Explainer without any external service: it emits a
// fixed, clearly labeled template. Used as the degraded mode when no
// model credential is configured.
type Static struct{}

// compile-time check
var _ Explainer = (*Static)(nil)

// NewStatic creates the degraded-mode explainer.
func NewStatic() *Static { return &Static{} }

// Name returns "static".
func (s *Static) Name() string { return "static" }

// ExplainStream implements Explainer. The marker chunk always comes
// first; the remaining template is streamed as section chunks.
func (s *Static) ExplainStream(ctx context.Context, req Request, ch chan<- string) (string, error) {
	defer close(ch)

	chunks := []string{FallbackMarker}
	chunks = append(chunks, "\n**Code:**\n```\n"+req.Code+"\n```\n")

	if req.Output != "" {
		chunks = append(chunks, "\n**Output:**\n```\n"+req.Output+"\n```\n")
	}
	if req.Error != "" {
		chunks = append(chunks,
			"\n**Error:**\n```\n"+req.Error+"\n```\n",
			"\n**Note:** This code encountered an error. Please check the syntax and logic.\n")
	} else {
		chunks = append(chunks, "\n**Note:** This code executed successfully.\n")
	}

	chunks = append(chunks, "\n**Tip:** To get detailed AI-powered explanations, configure a model API key.")

	var full strings.Builder
	for _, c := range chunks {
		full.WriteString(c)
		select {
		case ch <- c:
		case <-ctx.Done():
			return full.String(), ctx.Err()
		}
	}
	return full.String(), nil
}
