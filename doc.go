// Package codetutor contains the shared wire types and error taxonomy for
// the Code Tutor service: an educational backend that brokers WebSocket
// sessions between a browser code editor and two external collaborators,
// a sandboxed code-execution service and a streaming language model.
//
// The root package holds the message envelopes exchanged over the socket
// and the fault classification used at relay boundaries. The moving parts
// live in subpackages:
//
//   - sandbox:  execution collaborator clients (remote HTTP, subprocess, Docker)
//   - explain:  language-model collaborator clients (Gemini, static fallback)
//   - relay:    forwards client requests to collaborators and streams envelopes back
//   - wsclient: reconnecting WebSocket client with linear backoff
//   - internal/hub, internal/server: connection registry and HTTP/WS surface
package codetutor
