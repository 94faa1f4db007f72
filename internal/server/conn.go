package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collab-whiteboard/backend/internal/model"
)

const (
	// Time allowed to write a line to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from a WebSocket peer.
	pongWait = 60 * time.Second

	// Send pings to WebSocket peers with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxLineBytes bounds a single request line.
	DefaultMaxLineBytes = 64 * 1024
)

// LineConn is a bidirectional stream of protocol lines. ReadLine and
// WriteLine may be called from different goroutines; Close unblocks both.
type LineConn interface {
	// ReadLine returns the next line without its terminator. It returns
	// io.EOF when the peer closes the stream.
	ReadLine() (string, error)
	// WriteLine sends one line, adding the terminator.
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
	Transport() string
}

// tcpConn frames lines with '\n' on a raw socket. A trailing '\r' is
// stripped, so CRLF clients work too.
type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	writer  *bufio.Writer
}

// NewTCPConn wraps a socket. maxLineBytes bounds a request line.
func NewTCPConn(conn net.Conn, maxLineBytes int) LineConn {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	scanner := bufio.NewScanner(conn)
	// The scanner's limit is the larger of max and the initial capacity.
	scanner.Buffer(make([]byte, 0, min(4096, maxLineBytes)), maxLineBytes)

	return &tcpConn{
		conn:    conn,
		scanner: scanner,
		writer:  bufio.NewWriter(conn),
	}
}

func (c *tcpConn) ReadLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return "", fmt.Errorf("request line too long: %w", model.ErrProtocol)
			}
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
}

func (c *tcpConn) WriteLine(line string) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := c.writer.WriteString(line); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpConn) Transport() string {
	return model.TransportTCP
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}

// wsConn carries one protocol line per WebSocket text frame and keeps the
// peer alive with pings.
type wsConn struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// UpgradeWebSocket upgrades an HTTP request to a line connection.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request, maxLineBytes int) (LineConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketConn(conn, maxLineBytes), nil
}

// NewWebSocketConn wraps an established WebSocket connection.
func NewWebSocketConn(conn *websocket.Conn, maxLineBytes int) LineConn {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	conn.SetReadLimit(int64(maxLineBytes))
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c := &wsConn{conn: conn, done: make(chan struct{})}
	go c.pingLoop()
	return c
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// WriteControl may run concurrently with WriteMessage.
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) ReadLine() (string, error) {
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(message), "\r\n"), nil
	}
}

func (c *wsConn) WriteLine(line string) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *wsConn) Transport() string {
	return model.TransportWebSocket
}
