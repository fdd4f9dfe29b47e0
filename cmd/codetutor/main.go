// Command codetutor is a terminal client for the Code Tutor backend. It
// sends one file for execution or explanation over the WebSocket
// protocol and streams the result to the terminal.
//
//	codetutor -addr localhost:8000 hello.py
//	codetutor -explain hello.py
//	codetutor -lang javascript script.txt
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	codetutor "github.com/tutorlab/codetutor"
	"github.com/tutorlab/codetutor/wsclient"
)

func main() {
	addr := flag.String("addr", "localhost:8000", "backend host:port")
	lang := flag.String("lang", "", "language (default inferred from file extension)")
	explainFlag := flag.Bool("explain", false, "explain the code instead of running it")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: codetutor [flags] <file>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	code, err := os.ReadFile(path)
	if err != nil {
		fatal("read %s: %v", path, err)
	}

	language := *lang
	if language == "" {
		language = inferLanguage(path)
	}
	if !codetutor.Language(language).Supported() && !*explainFlag {
		fatal("unsupported language %q (use -lang python|javascript)", language)
	}

	logger := slog.New(slog.DiscardHandler)
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	url := fmt.Sprintf("ws://%s/ws/%s", *addr, codetutor.NewID())
	client := wsclient.New(url, wsclient.WithLogger(logger))

	done := make(chan int, 1)
	client.OnMessage(func(env codetutor.ServerEnvelope) {
		printEnvelope(env, done)
	})
	client.OnConnectionChange(func(s wsclient.State) {
		switch s {
		case wsclient.StateOpen:
			req := codetutor.ClientEnvelope{Code: string(code)}
			if *explainFlag {
				req.Action = codetutor.ActionExplain
			} else {
				req.Action = codetutor.ActionExecute
				req.Language = language
			}
			if err := client.Send(req); err != nil {
				fatal("send: %v", err)
			}
		case wsclient.StateDisconnected:
			fatal("could not connect to %s", *addr)
		}
	})

	client.Connect()
	defer client.Close()

	select {
	case status := <-done:
		os.Exit(status)
	case <-time.After(5 * time.Minute):
		fatal("timed out waiting for a result")
	}
}

// printEnvelope renders one server envelope and signals completion on
// the terminal ones.
func printEnvelope(env codetutor.ServerEnvelope, done chan<- int) {
	switch env.Type {
	case codetutor.TypeExecutionOutput:
		switch env.Data.Kind {
		case codetutor.OutputStdout:
			fmt.Print(env.Data.Content)
		default:
			fmt.Fprint(os.Stderr, env.Data.Content)
		}
	case codetutor.TypeExecutionResult:
		if env.Data.Success != nil && !*env.Data.Success && env.Data.ExitCode != nil {
			fmt.Fprintf(os.Stderr, "exit status %d\n", *env.Data.ExitCode)
		}
	case codetutor.TypeExecutionComplete:
		done <- 0
	case codetutor.TypeExplanationChunk:
		fmt.Print(env.Data.Text)
	case codetutor.TypeExplanationComplete:
		fmt.Println()
		done <- 0
	case codetutor.TypeError:
		fmt.Fprintf(os.Stderr, "error: %s\n", env.Message)
		done <- 1
	}
}

func inferLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "python"
	case ".js", ".mjs":
		return "javascript"
	}
	return ""
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
