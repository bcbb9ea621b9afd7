//go:build !windows

package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func startTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "test.sock")
	s := NewServer(socket, nil)
	t.Cleanup(func() { s.Stop() })
	return s, NewClient(socket)
}

func TestRequestResponse(t *testing.T) {
	s, c := startTestServer(t)
	s.Handle("echo", func(_ context.Context, req *Request) Response {
		return Ok(map[string]string{"echo": req.StringArg("text")})
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := c.Call(Request{Op: "echo", Args: map[string]any{"text": "hello"}})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !resp.OK {
		t.Fatalf("response error: %s", resp.Error)
	}

	var data map[string]string
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["echo"] != "hello" {
		t.Errorf("echo = %q", data["echo"])
	}
}

func TestUnknownOperation(t *testing.T) {
	s, c := startTestServer(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := c.Call(Request{Op: "levitate"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.OK {
		t.Fatal("unknown op should not succeed")
	}
	if !strings.Contains(resp.Error, "levitate") {
		t.Errorf("error should name the operation: %s", resp.Error)
	}
}

func TestHandlerError(t *testing.T) {
	s, c := startTestServer(t)
	s.Handle("boom", func(context.Context, *Request) Response {
		return Fail(errors.New("it broke"))
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := c.Call(Request{Op: "boom"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.OK || resp.Error != "it broke" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestLargePayload(t *testing.T) {
	s, c := startTestServer(t)
	s.Handle("len", func(_ context.Context, req *Request) Response {
		return Ok(map[string]int{"len": len(req.StringArg("payload"))})
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	payload := strings.Repeat("x", 1<<20)
	resp, err := c.Call(Request{Op: "len", Args: map[string]any{"payload": payload}})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	var data map[string]int
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["len"] != 1<<20 {
		t.Errorf("len = %d", data["len"])
	}
}

func TestConcurrentClients(t *testing.T) {
	s, c := startTestServer(t)
	s.Handle("ping", func(context.Context, *Request) Response { return Ok(nil) })
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Call(Request{Op: "ping"})
			if err != nil {
				errs <- err
				return
			}
			if !resp.OK {
				errs <- errors.New(resp.Error)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}
}

func TestCallWithoutServer(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "nobody-home.sock"))
	if _, err := c.Call(Request{Op: "status"}); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("err = %v, want ErrDaemonNotRunning", err)
	}
}

func TestStopRemovesSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "gone.sock")
	s := NewServer(socket, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A restart over the same path works.
	if err := s.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	s.Stop()
}

func TestArgHelpers(t *testing.T) {
	req := Request{Args: map[string]any{
		"name":  "zed",
		"count": float64(7),
		"on":    true,
	}}

	if req.StringArg("name") != "zed" || req.StringArg("missing") != "" {
		t.Error("StringArg mismatch")
	}
	if n, ok := req.IntArg("count"); !ok || n != 7 {
		t.Errorf("IntArg = %d, %v", n, ok)
	}
	if _, ok := req.IntArg("name"); ok {
		t.Error("IntArg should reject non-numbers")
	}
	if b, ok := req.BoolArg("on"); !ok || !b {
		t.Error("BoolArg mismatch")
	}
	if v, ok := req.LookupStringArg("name"); !ok || v != "zed" {
		t.Errorf("LookupStringArg = %q, %v", v, ok)
	}
	if _, ok := req.LookupStringArg("missing"); ok {
		t.Error("LookupStringArg should report absent keys")
	}
}
