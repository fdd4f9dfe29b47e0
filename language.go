package codetutor

// Language is a supported execution language tag.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
)

// Supported reports whether the language can be executed.
func (l Language) Supported() bool {
	return l == LangPython || l == LangJavaScript
}

// Runtime returns the sandbox runtime name for the language
// ("python" or "node"), or "" for unsupported languages.
func (l Language) Runtime() string {
	switch l {
	case LangPython:
		return "python"
	case LangJavaScript:
		return "node"
	}
	return ""
}
