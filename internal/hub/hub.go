// Package hub routes outbound protocol lines to connected clients.
package hub

import (
	"sort"
	"sync"
)

// DefaultSendBuffer is the outbound queue capacity of a client when none is
// configured.
const DefaultSendBuffer = 256

// Client is the outbound side of one connection: a bounded queue of lines
// drained by the connection's writer.
type Client struct {
	userID     int
	send       chan string
	mu         sync.Mutex
	closed     bool
	overflowed bool
}

// NewClient creates a client for userID with the given queue capacity.
func NewClient(userID, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Client{
		userID: userID,
		send:   make(chan string, bufferSize),
	}
}

// Send queues a line for the client without blocking. If the queue is full
// the client is closed and marked as overflowed. Send reports whether the
// line was queued.
func (c *Client) Send(line string) bool {
	queued, _ := c.offer(line)
	return queued
}

// offer queues line and additionally reports whether this call is the one
// that closed the client for overflowing.
func (c *Client) offer(line string) (queued, dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, false
	}

	select {
	case c.send <- line:
		return true, false
	default:
		// Buffer full, close the client
		c.overflowed = true
		c.closeLocked()
		return false, true
	}
}

// Close closes the queue. Lines already queued can still be drained.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Overflowed returns true if the client was closed because it fell behind.
func (c *Client) Overflowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflowed
}

// UserID returns the user this client delivers to.
func (c *Client) UserID() int {
	return c.userID
}

// SendChan returns the queue the connection writer drains.
func (c *Client) SendChan() <-chan string {
	return c.send
}

// Router delivers lines to clients by user id. Sends never block, so the
// router may be used while the registry lock is held.
type Router struct {
	clients map[int]*Client
	mu      sync.RWMutex

	onDrop    func(userID int)
	onDeliver func(n int)
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		clients: make(map[int]*Client),
	}
}

// SetOnDrop sets the callback run when a client is closed for falling
// behind. It runs on the sending goroutine and must not block.
func (r *Router) SetOnDrop(callback func(userID int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDrop = callback
}

// SetOnDeliver sets the callback run with the number of clients each
// routed line was queued for.
func (r *Router) SetOnDeliver(callback func(n int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDeliver = callback
}

// Attach registers a client under its user id. A client already attached
// for the same user is closed and replaced.
func (r *Router) Attach(client *Client) {
	r.mu.Lock()
	old := r.clients[client.userID]
	r.clients[client.userID] = client
	r.mu.Unlock()

	if old != nil && old != client {
		old.Close()
	}
}

// Detach removes the client for userID and closes it.
func (r *Router) Detach(userID int) {
	r.mu.Lock()
	client, ok := r.clients[userID]
	delete(r.clients, userID)
	r.mu.Unlock()

	if ok {
		client.Close()
	}
}

// Send queues a line for a single user. Unknown users are ignored.
func (r *Router) Send(userID int, line string) {
	r.SendAll([]int{userID}, line)
}

// SendAll queues a line for every listed user, in list order.
func (r *Router) SendAll(userIDs []int, line string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, id := range userIDs {
		if client, ok := r.clients[id]; ok && r.deliverLocked(client, line) {
			delivered++
		}
	}
	if r.onDeliver != nil {
		r.onDeliver(delivered)
	}
}

// Broadcast queues a line for every attached client.
func (r *Router) Broadcast(line string) {
	r.SendAll(r.UserIDs(), line)
}

func (r *Router) deliverLocked(client *Client, line string) bool {
	queued, dropped := client.offer(line)
	if dropped && r.onDrop != nil {
		r.onDrop(client.userID)
	}
	return queued
}

// UserIDs returns the ids of every attached client in ascending order.
func (r *Router) UserIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Count returns the number of attached clients.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close closes every client and empties the router.
func (r *Router) Close() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	r.clients = make(map[int]*Client)
	r.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
