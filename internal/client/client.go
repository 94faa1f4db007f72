// Package client is a line-protocol client for the whiteboard server.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/collab-whiteboard/backend/internal/protocol"
)

const writeWait = 10 * time.Second

// Client is one connection to a whiteboard server. Send may be called
// concurrently with Receive.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner

	mu     sync.Mutex
	writer *bufio.Writer
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 16*1024*1024)
	return &Client{
		conn:    conn,
		scanner: scanner,
		writer:  bufio.NewWriter(conn),
	}
}

// Send writes one request.
func (c *Client) Send(cmd protocol.Command) error {
	return c.SendLine(cmd.String())
}

// SendLine writes a raw request line. Any trailing newline is replaced.
func (c *Client) SendLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := c.writer.WriteString(strings.TrimRight(line, "\r\n") + "\n"); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// ReceiveLine blocks for the next raw server line. It returns io.EOF once
// the server closes the connection.
func (c *Client) ReceiveLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", fmt.Errorf("receive: %w", err)
		}
		return "", io.EOF
	}
	return c.scanner.Text(), nil
}

// Receive blocks for the next server line and parses it.
func (c *Client) Receive() (protocol.Response, error) {
	line, err := c.ReceiveLine()
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.ParseResponse(line)
}

// Expect reads responses until one of kind arrives, returning it. Other
// responses are passed to skip when it is not nil.
func (c *Client) Expect(kind string, skip func(protocol.Response)) (protocol.Response, error) {
	for {
		resp, err := c.Receive()
		if err != nil {
			return protocol.Response{}, err
		}
		if resp.Kind == kind {
			return resp, nil
		}
		if skip != nil {
			skip(resp)
		}
	}
}

// Responses delivers server lines until the connection closes or ctx is
// done. The error channel receives the reason reading stopped, nil for a
// clean close.
func (c *Client) Responses(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		for {
			line, err := c.ReceiveLine()
			if err != nil {
				if err == io.EOF {
					err = nil
				}
				errc <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return lines, errc
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
