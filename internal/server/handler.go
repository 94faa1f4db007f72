package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/collab-whiteboard/backend/internal/dispatch"
	"github.com/collab-whiteboard/backend/internal/hub"
	"github.com/collab-whiteboard/backend/internal/logger"
	"github.com/collab-whiteboard/backend/internal/metrics"
	"github.com/collab-whiteboard/backend/internal/model"
	"github.com/collab-whiteboard/backend/internal/protocol"
	"github.com/collab-whiteboard/backend/internal/registry"
	"github.com/collab-whiteboard/backend/internal/repository"
)

// ErrSlowConsumer is returned for a connection whose outbound queue filled
// up faster than the peer read it.
var ErrSlowConsumer = errors.New("slow consumer")

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Close reasons recorded in the audit log.
const (
	reasonLogout       = "logout"
	reasonEOF          = "eof"
	reasonError        = "error"
	reasonSlowConsumer = "slow_consumer"
	reasonShutdown     = "shutdown"
)

// Handler runs connections: it registers the user, pumps request lines
// into the dispatcher and queued responses out to the peer, and cleans up
// when either side stops.
type Handler struct {
	dispatcher   *dispatch.Dispatcher
	registry     *registry.Registry
	logger       *slog.Logger
	metrics      *metrics.Metrics
	transcripts  *logger.Store
	audit        *repository.ConnectionRepository
	maxLineBytes int

	base     context.Context
	shutdown context.CancelFunc
	active   atomic.Int64
}

// HandlerConfig holds the optional collaborators of a Handler.
type HandlerConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Transcripts records every connection's traffic when set.
	Transcripts *logger.Store
	// Audit stores a record of every connection when set.
	Audit        *repository.ConnectionRepository
	MaxLineBytes int
}

// NewHandler creates a Handler.
func NewHandler(d *dispatch.Dispatcher, reg *registry.Registry, config HandlerConfig) *Handler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxLineBytes <= 0 {
		config.MaxLineBytes = DefaultMaxLineBytes
	}

	base, cancel := context.WithCancel(context.Background())
	return &Handler{
		dispatcher:   d,
		registry:     reg,
		logger:       config.Logger,
		metrics:      config.Metrics,
		transcripts:  config.Transcripts,
		audit:        config.Audit,
		maxLineBytes: config.MaxLineBytes,
		base:         base,
		shutdown:     cancel,
	}
}

// Shutdown closes every connection the handler is running. Each one goes
// through the usual implicit logout.
func (h *Handler) Shutdown() {
	h.shutdown()
}

// Active returns the number of connections currently being served.
func (h *Handler) Active() int {
	return int(h.active.Load())
}

// ServeHTTP upgrades the request to a WebSocket line connection and serves
// it until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := UpgradeWebSocket(w, r, h.maxLineBytes)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	// The request context ends with the handler, so it cannot cancel the
	// connection early.
	h.Serve(context.WithoutCancel(r.Context()), conn)
}

// connection is the per-connection state shared by the reader and writer.
type connection struct {
	id         string
	userID     int
	name       string
	conn       LineConn
	client     *hub.Client
	transcript *logger.Transcript
	log        *slog.Logger
	record     *model.Connection
	state      atomic.Int32
	reason     atomic.Value
}

func (c *connection) setState(s State) {
	c.state.Store(int32(s))
	c.log.Debug("connection state", "state", s)
}

func (c *connection) setReason(reason string) {
	c.reason.CompareAndSwap(nil, reason)
}

// Serve runs conn until the peer disconnects, logs out, falls behind or
// ctx is canceled. It always closes conn.
func (h *Handler) Serve(ctx context.Context, conn LineConn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopShutdown := context.AfterFunc(h.base, cancel)
	defer stopShutdown()

	c := &connection{
		id:   uuid.New().String(),
		conn: conn,
	}
	c.log = h.logger.With("conn_id", c.id, "transport", conn.Transport(), "remote", conn.RemoteAddr())
	c.setState(StateConnecting)

	userID, client, err := h.dispatcher.Connect(ctx)
	if err != nil {
		conn.Close()
		return err
	}
	c.userID, c.client = userID, client
	c.log = c.log.With("user_id", userID)

	h.active.Add(1)
	defer h.active.Add(-1)
	h.metrics.ConnectionOpened(conn.Transport())
	defer h.metrics.ConnectionClosed()

	h.openRecords(ctx, c)
	c.setState(StateActive)
	c.log.Info("client connected")

	g, gctx := errgroup.WithContext(ctx)
	stopClose := context.AfterFunc(gctx, func() { conn.Close() })
	defer stopClose()

	g.Go(func() error {
		err := h.readLoop(gctx, c)
		c.setState(StateClosing)
		// Implicit logout: removes the user if it is still registered and
		// closes its queue so the writer can finish.
		h.dispatcher.Disconnect(context.WithoutCancel(ctx), c.userID)
		return err
	})
	g.Go(func() error {
		return h.writeLoop(gctx, c)
	})

	err = g.Wait()
	conn.Close()
	c.setState(StateClosed)

	if ctx.Err() != nil {
		c.setReason(reasonShutdown)
	}
	if err != nil {
		c.setReason(reasonError)
	}
	h.closeRecords(c)

	if err != nil && !errors.Is(err, ErrSlowConsumer) {
		c.log.Info("client disconnected", "reason", c.reason.Load(), "error", err)
	} else {
		c.log.Info("client disconnected", "reason", c.reason.Load())
	}
	return err
}

func (h *Handler) readLoop(ctx context.Context, c *connection) error {
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.setReason(reasonEOF)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if c.transcript != nil {
			c.transcript.WriteInput(line)
		}

		out := h.dispatcher.Dispatch(ctx, c.userID, line)
		if c.record != nil {
			c.record.Commands++
			if out.Err != nil {
				c.record.Failures++
			}
		}
		if out.Err == nil && out.Command == protocol.CmdSetUsername {
			if name, err := h.registry.UserName(c.userID); err == nil {
				c.name = name
			}
		}
		if out.Err != nil && !dispatch.IsClientError(out.Err) {
			c.log.Warn("request failed", "command", out.Command, "error", out.Err)
		}
		if out.Close {
			c.setReason(reasonLogout)
			return nil
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, c *connection) error {
	for {
		select {
		case line, ok := <-c.client.SendChan():
			// An overflowed client is dropped without draining what it
			// already has queued.
			if c.client.Overflowed() {
				c.setReason(reasonSlowConsumer)
				c.log.Warn("dropping slow consumer")
				return ErrSlowConsumer
			}
			if !ok {
				return nil
			}
			if c.transcript != nil {
				c.transcript.WriteOutput(line)
			}
			if err := c.conn.WriteLine(line); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// openRecords starts the transcript and the audit record. Failures are
// logged and the connection carries on without them.
func (h *Handler) openRecords(ctx context.Context, c *connection) {
	if name, err := h.registry.UserName(c.userID); err == nil {
		c.name = name
	}

	if h.transcripts != nil {
		t, err := h.transcripts.Open(logger.Header{
			ConnectionID: c.id,
			UserID:       c.userID,
			Transport:    c.conn.Transport(),
			RemoteAddr:   c.conn.RemoteAddr(),
		})
		if err != nil {
			c.log.Warn("failed to open transcript", "error", err)
		} else {
			c.transcript = t
		}
	}

	if h.audit != nil {
		record := &model.Connection{
			ID:          c.id,
			UserID:      c.userID,
			UserName:    c.name,
			Transport:   c.conn.Transport(),
			RemoteAddr:  c.conn.RemoteAddr(),
			ConnectedAt: time.Now(),
		}
		if err := h.audit.Create(ctx, record); err != nil {
			c.log.Warn("failed to record connection", "error", err)
		} else {
			c.record = record
		}
	}
}

func (h *Handler) closeRecords(c *connection) {
	if c.transcript != nil {
		if err := c.transcript.Close(); err != nil {
			c.log.Warn("failed to close transcript", "error", err)
		}
		h.transcripts.Forget(c.userID)
	}

	if c.record != nil {
		now := time.Now()
		c.record.DisconnectedAt = &now
		if reason, ok := c.reason.Load().(string); ok {
			c.record.CloseReason = reason
		}
		c.record.UserName = c.name
		if err := h.audit.Finish(context.Background(), c.record); err != nil {
			c.log.Warn("failed to finish connection record", "error", err)
		}
	}
}
