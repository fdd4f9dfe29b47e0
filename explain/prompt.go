package explain

import "strings"

// buildPrompt composes the tutoring prompt sent to the language model.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an expert programming tutor. Explain the following code in a clear, educational manner.\n")
	b.WriteString("\nCode to explain:\n```\n" + req.Code + "\n```\n")

	if req.Output != "" {
		b.WriteString("\nProgram output:\n```\n" + req.Output + "\n```\n")
	}

	if req.Error != "" {
		b.WriteString("\nError encountered:\n```\n" + req.Error + "\n```\n")
		b.WriteString("\nPlease explain what caused this error and how to fix it.\n")
	} else {
		b.WriteString("\nPlease explain how this code works, what it does, and any important concepts.\n")
	}

	b.WriteString("\nProvide a helpful explanation suitable for learning.")
	return b.String()
}
