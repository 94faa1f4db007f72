// Package protocol implements the whiteboard's newline-delimited text
// protocol: request parsing into typed commands, request encoding for
// clients, and response construction and parsing.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/collab-whiteboard/backend/internal/model"
)

// Request command names.
const (
	CmdGetBoardIDs        = "get_board_ids"
	CmdSetUsername        = "set_username"
	CmdCreateBoard        = "create_board"
	CmdGetCurrentBoardID  = "get_current_board_id"
	CmdGetUsersForBoardID = "get_users_for_board_id"
	CmdJoinBoardID        = "join_board_id"
	CmdLogout             = "logout"
	CmdGetUsersInMyBoard  = "get_users_in_my_board"
	CmdLeaveBoard         = "leave_board"
	CmdDraw               = "req_draw"
	CmdClear              = "req_clear"
)

// Command is one parsed request. The concrete types below form a closed set.
type Command interface {
	// Name returns the request's command token.
	Name() string
	// String returns the request's wire form without the trailing newline.
	String() string
}

type (
	GetBoardIDs       struct{}
	GetCurrentBoardID struct{}
	Logout            struct{}
	GetUsersInMyBoard struct{}
	LeaveBoard        struct{}
	Clear             struct{}

	SetUsername struct{ Username string }
	CreateBoard struct{ BoardName string }

	GetUsersForBoardID struct{ BoardID int }
	JoinBoardID        struct{ BoardID int }

	Draw struct{ Line model.Line }
)

func (GetBoardIDs) Name() string        { return CmdGetBoardIDs }
func (SetUsername) Name() string        { return CmdSetUsername }
func (CreateBoard) Name() string        { return CmdCreateBoard }
func (GetCurrentBoardID) Name() string  { return CmdGetCurrentBoardID }
func (GetUsersForBoardID) Name() string { return CmdGetUsersForBoardID }
func (JoinBoardID) Name() string        { return CmdJoinBoardID }
func (Logout) Name() string             { return CmdLogout }
func (GetUsersInMyBoard) Name() string  { return CmdGetUsersInMyBoard }
func (LeaveBoard) Name() string         { return CmdLeaveBoard }
func (Draw) Name() string               { return CmdDraw }
func (Clear) Name() string              { return CmdClear }

func (c GetBoardIDs) String() string       { return c.Name() }
func (c GetCurrentBoardID) String() string { return c.Name() }
func (c Logout) String() string            { return c.Name() }
func (c GetUsersInMyBoard) String() string { return c.Name() }
func (c LeaveBoard) String() string        { return c.Name() }
func (c Clear) String() string             { return c.Name() }

func (c SetUsername) String() string { return c.Name() + " " + EncodeName(c.Username) }
func (c CreateBoard) String() string { return c.Name() + " " + EncodeName(c.BoardName) }

func (c GetUsersForBoardID) String() string { return fmt.Sprintf("%s %d", c.Name(), c.BoardID) }
func (c JoinBoardID) String() string        { return fmt.Sprintf("%s %d", c.Name(), c.BoardID) }

func (c Draw) String() string { return c.Name() + " " + c.Line.String() }

// EncodeName makes a user or board name a single protocol token by
// replacing whitespace with underscores.
func EncodeName(name string) string {
	return strings.Join(strings.Fields(name), "_")
}

// commandArity maps each command to the number of arguments it takes.
var commandArity = map[string]int{
	CmdGetBoardIDs:        0,
	CmdSetUsername:        1,
	CmdCreateBoard:        1,
	CmdGetCurrentBoardID:  0,
	CmdGetUsersForBoardID: 1,
	CmdJoinBoardID:        1,
	CmdLogout:             0,
	CmdGetUsersInMyBoard:  0,
	CmdLeaveBoard:         0,
	CmdDraw:               9,
	CmdClear:              0,
}

// Parse turns one request line into a typed command. Unknown commands,
// wrong argument counts and malformed arguments are reported as
// model.ErrProtocol.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty request: %w", model.ErrProtocol)
	}

	name, args := fields[0], fields[1:]
	arity, ok := commandArity[name]
	if !ok {
		if hint, ok := Suggest(name); ok {
			return nil, fmt.Errorf("unknown command %q (did you mean %q?): %w", name, hint, model.ErrProtocol)
		}
		return nil, fmt.Errorf("unknown command %q: %w", name, model.ErrProtocol)
	}
	if len(args) != arity {
		return nil, fmt.Errorf("%s takes %d arguments, got %d: %w", name, arity, len(args), model.ErrProtocol)
	}

	switch name {
	case CmdGetBoardIDs:
		return GetBoardIDs{}, nil
	case CmdSetUsername:
		return SetUsername{Username: args[0]}, nil
	case CmdCreateBoard:
		return CreateBoard{BoardName: args[0]}, nil
	case CmdGetCurrentBoardID:
		return GetCurrentBoardID{}, nil
	case CmdGetUsersForBoardID:
		id, err := parseBoardID(args[0])
		if err != nil {
			return nil, err
		}
		return GetUsersForBoardID{BoardID: id}, nil
	case CmdJoinBoardID:
		id, err := parseBoardID(args[0])
		if err != nil {
			return nil, err
		}
		return JoinBoardID{BoardID: id}, nil
	case CmdLogout:
		return Logout{}, nil
	case CmdGetUsersInMyBoard:
		return GetUsersInMyBoard{}, nil
	case CmdLeaveBoard:
		return LeaveBoard{}, nil
	case CmdDraw:
		l, err := model.ParseLine(args)
		if err != nil {
			return nil, err
		}
		return Draw{Line: l}, nil
	default:
		return Clear{}, nil
	}
}

func parseBoardID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("board id %q: %w", s, model.ErrProtocol)
	}
	return id, nil
}

// maxSuggestDistance bounds how far a typo may be from a real command.
const maxSuggestDistance = 3

// Suggest returns the known command closest to name, if any is close enough
// to be a plausible typo.
func Suggest(name string) (string, bool) {
	best, bestDist := "", maxSuggestDistance+1
	for _, cmd := range Commands() {
		if d := levenshtein.ComputeDistance(name, cmd); d < bestDist {
			best, bestDist = cmd, d
		}
	}
	return best, best != ""
}

// Commands returns every request command name in a stable order.
func Commands() []string {
	return []string{
		CmdGetBoardIDs,
		CmdSetUsername,
		CmdCreateBoard,
		CmdGetCurrentBoardID,
		CmdGetUsersForBoardID,
		CmdJoinBoardID,
		CmdLogout,
		CmdGetUsersInMyBoard,
		CmdLeaveBoard,
		CmdDraw,
		CmdClear,
	}
}
