package server

import (
	"bytes"
	"net/http"
	"sort"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/tutorlab/codetutor/docs"
)

var (
	docsOnce sync.Once
	docsPage []byte
)

// handleDocs serves the embedded documentation rendered to HTML. The
// docs are static, so rendering happens once per process.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	docsOnce.Do(func() {
		docsPage = renderDocs()
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(docsPage)
}

func renderDocs() []byte {
	entries, err := docs.FS.ReadDir(".")
	if err != nil {
		return []byte("<html><body><p>documentation unavailable</p></body></html>")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html><html><head><title>Code Tutor</title>")
	page.WriteString(`<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem}pre{background:#f4f4f4;padding:.75rem;overflow-x:auto}</style>`)
	page.WriteString("</head><body>")
	for _, name := range names {
		src, err := docs.FS.ReadFile(name)
		if err != nil {
			continue
		}
		if err := gm.Convert(src, &page); err != nil {
			continue
		}
		page.WriteString("<hr>")
	}
	page.WriteString("</body></html>")
	return page.Bytes()
}
