package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrDaemonNotRunning is returned when the control socket cannot be
// reached.
var ErrDaemonNotRunning = errors.New("ipc: daemon is not running")

const (
	defaultConnectTimeout = 2 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// Client issues one-shot requests to the daemon.
type Client struct {
	socketPath     string
	connectTimeout time.Duration
	requestTimeout time.Duration
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath:     socketPath,
		connectTimeout: defaultConnectTimeout,
		requestTimeout: defaultRequestTimeout,
	}
}

// Call sends a request and waits for the response.
func (c *Client) Call(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.requestTimeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, errors.New("ipc: connection closed without response")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
