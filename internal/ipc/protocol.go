// Package ipc provides the control channel between the pastad daemon
// and its clients over a unix socket. Messages are newline-delimited
// JSON: one request line in, one response line out.
package ipc

import (
	"encoding/json"
	"fmt"
)

// Operation names.
const (
	OpStatus    = "status"
	OpList      = "list"
	OpSearch    = "search"
	OpGet       = "get"
	OpDelete    = "delete"
	OpClear     = "clear"
	OpPaste     = "paste"
	OpAbort     = "abort"
	OpStats     = "stats"
	OpPrivacy   = "privacy"
	OpRotateKey = "rotate-key"
	OpExport    = "export"
	OpImport    = "import"
	OpSetLimit  = "set-limit"
	OpSnippet   = "snippet"
	OpShutdown  = "shutdown"
)

// Request is one client command.
type Request struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args,omitempty"`
}

// Response is the daemon's answer.
type Response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Ok builds a success response carrying v, which must marshal cleanly.
func Ok(v any) Response {
	if v == nil {
		return Response{OK: true}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Fail(fmt.Errorf("encode response: %w", err))
	}
	return Response{OK: true, Data: data}
}

// Fail builds an error response.
func Fail(err error) Response {
	return Response{Error: err.Error()}
}

// Failf builds a formatted error response.
func Failf(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

// StringArg reads a string argument, with "" when absent or mistyped.
func (r *Request) StringArg(key string) string {
	if v, ok := r.Args[key].(string); ok {
		return v
	}
	return ""
}

// LookupStringArg reads a string argument and reports whether it was
// present, so callers can tell an absent argument from an empty one.
func (r *Request) LookupStringArg(key string) (string, bool) {
	v, ok := r.Args[key].(string)
	return v, ok
}

// IntArg reads an integer argument. JSON numbers arrive as float64.
func (r *Request) IntArg(key string) (int64, bool) {
	switch v := r.Args[key].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// BoolArg reads a boolean argument.
func (r *Request) BoolArg(key string) (bool, bool) {
	v, ok := r.Args[key].(bool)
	return v, ok
}
