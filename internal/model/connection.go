package model

import "time"

// Transport names.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Connection is the audit record of one client connection.
type Connection struct {
	ID             string     `json:"id"`
	UserID         int        `json:"userId"`
	UserName       string     `json:"userName"`
	Transport      string     `json:"transport"`
	RemoteAddr     string     `json:"remoteAddr"`
	Commands       int        `json:"commands"`
	Failures       int        `json:"failures"`
	CloseReason    string     `json:"closeReason,omitempty"`
	ConnectedAt    time.Time  `json:"connectedAt"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
}

// Open reports whether the connection has not been closed yet.
func (c *Connection) Open() bool {
	return c.DisconnectedAt == nil
}
