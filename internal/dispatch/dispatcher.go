// Package dispatch turns request lines into registry effects and routed
// responses.
//
// Every request runs inside a single registry transaction, and responses are
// queued on the router before the transaction ends. Queuing never blocks, so
// holding the registry lock while routing is cheap, and it makes every
// client observe responses in the registry's mutation order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/collab-whiteboard/backend/internal/hub"
	"github.com/collab-whiteboard/backend/internal/metrics"
	"github.com/collab-whiteboard/backend/internal/model"
	"github.com/collab-whiteboard/backend/internal/protocol"
	"github.com/collab-whiteboard/backend/internal/registry"
)

// TracerName identifies spans created by the dispatcher.
const TracerName = "github.com/collab-whiteboard/backend/internal/dispatch"

// Dispatcher executes protocol requests against a registry.
type Dispatcher struct {
	reg     *registry.Registry
	router  *hub.Router
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	sendBuffer int
}

// Config holds optional dependencies of a Dispatcher.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Tracer defaults to the global OpenTelemetry provider's tracer.
	Tracer trace.Tracer
	// SendBuffer is the outbound queue capacity of each connection.
	SendBuffer int
}

// Outcome reports what a request did.
type Outcome struct {
	// Command is the parsed command name, empty if the line did not parse.
	Command string
	// Err is the reason the request was answered with failed.
	Err error
	// Close asks the connection to shut down after draining its queue.
	Close bool
}

// NewDispatcher creates a dispatcher over reg that delivers through router.
func NewDispatcher(reg *registry.Registry, router *hub.Router, config Config) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer(TracerName)
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = hub.DefaultSendBuffer
	}

	return &Dispatcher{
		reg:        reg,
		router:     router,
		logger:     config.Logger,
		metrics:    config.Metrics,
		tracer:     config.Tracer,
		sendBuffer: config.SendBuffer,
	}
}

// Connect registers a new user in the lobby, attaches its outbound client,
// queues the welcome line and notifies the lobby.
func (d *Dispatcher) Connect(ctx context.Context) (int, *hub.Client, error) {
	_, span := d.tracer.Start(ctx, "whiteboard.connect", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var (
		userID int
		client *hub.Client
	)
	err := d.reg.Atomically(func(tx *registry.Txn) error {
		var err error
		userID, err = tx.AddUser("")
		if err != nil {
			return err
		}
		client = hub.NewClient(userID, d.sendBuffer)
		d.router.Attach(client)

		d.router.Send(userID, protocol.Welcome(userID))
		return d.notifyBoard(tx, model.LobbyID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, fmt.Errorf("failed to register user: %w", err)
	}

	span.SetAttributes(attribute.Int("whiteboard.user_id", userID))
	return userID, client, nil
}

// Disconnect removes a user whose connection is going away and tells its
// former board-mates. It is a no-op for a user that already logged out,
// apart from releasing the outbound client.
func (d *Dispatcher) Disconnect(ctx context.Context, userID int) {
	_, span := d.tracer.Start(ctx, "whiteboard.disconnect",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.Int("whiteboard.user_id", userID)),
	)
	defer span.End()

	_ = d.reg.Atomically(func(tx *registry.Txn) error {
		if !tx.HasUser(userID) {
			return nil
		}
		span.SetAttributes(attribute.Bool("whiteboard.implicit_logout", true))
		_, err := d.removeUser(tx, userID)
		return err
	})
	d.router.Detach(userID)
}

// Dispatch handles one request line from userID.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int, line string) Outcome {
	start := time.Now()

	cmd, err := protocol.Parse(line)
	if err != nil {
		d.logger.Debug("rejected request", "user_id", userID, "error", err)
		d.router.Send(userID, protocol.Failed())
		d.metrics.CommandHandled("", false, time.Since(start))
		return Outcome{Err: err}
	}

	_, span := d.tracer.Start(ctx, "whiteboard."+cmd.Name(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int("whiteboard.user_id", userID),
			attribute.String("whiteboard.command", cmd.Name()),
		),
	)
	defer span.End()

	out := Outcome{Command: cmd.Name()}
	err = d.reg.Atomically(func(tx *registry.Txn) error {
		err := d.apply(tx, userID, cmd, &out)
		if err != nil {
			d.router.Send(userID, protocol.Failed())
		}
		return err
	})

	if err != nil {
		out.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Debug("request failed", "user_id", userID, "command", cmd.Name(), "error", err)
	} else {
		span.SetStatus(codes.Ok, "")
		d.logger.Debug("request handled", "user_id", userID, "command", cmd.Name())
	}
	d.metrics.CommandHandled(cmd.Name(), err == nil, time.Since(start))
	return out
}

// apply runs one command. Every check that can fail happens before the
// first mutation, so a failed command leaves the registry unchanged.
func (d *Dispatcher) apply(tx *registry.Txn, self int, cmd protocol.Command, out *Outcome) error {
	current, err := tx.BoardOf(self)
	if err != nil {
		return err
	}

	switch c := cmd.(type) {
	case protocol.GetBoardIDs:
		d.router.Send(self, protocol.BoardIDs(tx.Boards()))

	case protocol.SetUsername:
		name, err := tx.RenameUser(self, c.Username)
		if err != nil {
			return err
		}
		d.router.Send(self, protocol.ChangedUsername(name))
		return d.notifyBoard(tx, current)

	case protocol.CreateBoard:
		boardID := tx.AddBoard(c.BoardName)
		if err := tx.JoinBoard(self, boardID); err != nil {
			return err
		}
		d.metrics.BoardCreated()

		d.router.SendAll(userIDs(tx.Users()), protocol.BoardIDs(tx.Boards()))
		d.router.Send(self, protocol.CurrentBoardID(boardID))
		return d.notifyBoard(tx, current)

	case protocol.GetCurrentBoardID:
		d.router.Send(self, protocol.CurrentBoardID(current))

	case protocol.GetUsersForBoardID:
		names, err := tx.UserNames(c.BoardID)
		if err != nil {
			return err
		}
		d.router.Send(self, protocol.UsersForBoardID(c.BoardID, names))

	case protocol.JoinBoardID:
		if !tx.HasBoard(c.BoardID) {
			return fmt.Errorf("board %d: %w", c.BoardID, model.ErrNotFound)
		}
		if err := tx.JoinBoard(self, c.BoardID); err != nil {
			return err
		}

		names, _ := tx.UserNames(c.BoardID)
		ids, _ := tx.UserIDs(c.BoardID)
		d.router.SendAll(without(ids, self), protocol.UsersForBoardID(c.BoardID, names))

		lines, _ := tx.Lines(c.BoardID)
		d.router.Send(self, protocol.BoardLines(names, lines))

		if current != c.BoardID {
			return d.notifyBoard(tx, current)
		}

	case protocol.Logout:
		if _, err := d.removeUser(tx, self); err != nil {
			return err
		}
		d.router.Send(self, protocol.LoggedOut())
		out.Close = true

	case protocol.GetUsersInMyBoard:
		names, _ := tx.UserNames(current)
		d.router.Send(self, protocol.UsersForBoardID(current, names))

	case protocol.LeaveBoard:
		if err := tx.LeaveBoard(self, current); err != nil {
			return err
		}
		if current != model.LobbyID {
			if err := d.notifyBoard(tx, current); err != nil {
				return err
			}
			if err := d.notifyBoard(tx, model.LobbyID); err != nil {
				return err
			}
		}
		d.router.Send(self, protocol.Done())

	case protocol.Draw:
		if err := tx.AddLine(current, c.Line); err != nil {
			return err
		}
		d.metrics.LineDrawn()
		ids, _ := tx.UserIDs(current)
		d.router.SendAll(ids, protocol.DrawLine(c.Line))

	case protocol.Clear:
		if err := tx.ClearBoard(current); err != nil {
			return err
		}
		ids, _ := tx.UserIDs(current)
		d.router.SendAll(ids, protocol.ClearBoard())

	default:
		return fmt.Errorf("unhandled command %q: %w", cmd.Name(), model.ErrProtocol)
	}
	return nil
}

// removeUser deletes a user and refreshes the member list of the board it
// was on. It returns that board.
func (d *Dispatcher) removeUser(tx *registry.Txn, userID int) (int, error) {
	boardID, err := tx.BoardOf(userID)
	if err != nil {
		return 0, err
	}
	tx.DeleteUser(userID)
	return boardID, d.notifyBoard(tx, boardID)
}

// notifyBoard sends the current member list of boardID to its members.
// For the lobby this is the lobby notification.
func (d *Dispatcher) notifyBoard(tx *registry.Txn, boardID int) error {
	ids, err := tx.UserIDs(boardID)
	if err != nil {
		return err
	}
	names, err := tx.UserNames(boardID)
	if err != nil {
		return err
	}
	d.router.SendAll(ids, protocol.UsersForBoardID(boardID, names))
	return nil
}

// IsClientError reports whether err is one the dispatcher answers with
// failed rather than treating as a server fault.
func IsClientError(err error) bool {
	return errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrProtocol) ||
		errors.Is(err, model.ErrNotMember)
}

func userIDs(users []model.User) []int {
	ids := make([]int, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func without(ids []int, id int) []int {
	out := make([]int, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
