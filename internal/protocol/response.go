package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/collab-whiteboard/backend/internal/model"
)

// Response kinds, the first token of every server line.
const (
	RespWelcome         = "welcome"
	RespBoardIDs        = "board_ids"
	RespChangedUsername = "changed_username"
	RespUsersForBoardID = "users_for_board_id"
	RespCurrentBoardID  = "current_board_id"
	RespDraw            = "draw"
	RespBoardLines      = "board_lines"
	RespClearBoard      = "clear_board"
	RespDone            = "done"
	RespFailed          = "failed"
	RespLoggedOut       = "logged_out"
)

// Welcome greets a freshly connected user.
func Welcome(userID int) string {
	return RespWelcome + " " + strconv.Itoa(userID)
}

// BoardIDs lists every board as id/name pairs.
func BoardIDs(boards []model.BoardInfo) string {
	var b strings.Builder
	b.WriteString(RespBoardIDs)
	for _, board := range boards {
		fmt.Fprintf(&b, " %d %s", board.ID, board.Name)
	}
	return b.String()
}

// ChangedUsername reports the name actually assigned by set_username.
func ChangedUsername(name string) string {
	return RespChangedUsername + " " + name
}

// UsersForBoardID lists the members of a board.
func UsersForBoardID(boardID int, names []string) string {
	var b strings.Builder
	b.WriteString(RespUsersForBoardID)
	b.WriteString(" ")
	b.WriteString(strconv.Itoa(boardID))
	for _, name := range names {
		b.WriteString(" ")
		b.WriteString(name)
	}
	return b.String()
}

// CurrentBoardID reports the board the requester is on.
func CurrentBoardID(boardID int) string {
	return RespCurrentBoardID + " " + strconv.Itoa(boardID)
}

// DrawLine announces a line drawn on the recipient's board.
func DrawLine(l model.Line) string {
	return RespDraw + " " + l.String()
}

// BoardLines is the full replay sent to a user joining a board: the member
// names followed by every line in drawing order.
func BoardLines(names []string, lines []model.Line) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %d", RespBoardLines, len(names), len(lines))
	for _, name := range names {
		b.WriteString(" ")
		b.WriteString(name)
	}
	for _, l := range lines {
		b.WriteString(" ")
		b.WriteString(l.String())
	}
	return b.String()
}

// ClearBoard, Done, Failed and LoggedOut carry no arguments.
func ClearBoard() string { return RespClearBoard }
func Done() string       { return RespDone }
func Failed() string     { return RespFailed }
func LoggedOut() string  { return RespLoggedOut }

// Response is a server line split into its kind and arguments.
type Response struct {
	Kind string
	Args []string
}

// String returns the wire form of the response.
func (r Response) String() string {
	if len(r.Args) == 0 {
		return r.Kind
	}
	return r.Kind + " " + strings.Join(r.Args, " ")
}

var responseKinds = map[string]bool{
	RespWelcome:         true,
	RespBoardIDs:        true,
	RespChangedUsername: true,
	RespUsersForBoardID: true,
	RespCurrentBoardID:  true,
	RespDraw:            true,
	RespBoardLines:      true,
	RespClearBoard:      true,
	RespDone:            true,
	RespFailed:          true,
	RespLoggedOut:       true,
}

// ParseResponse splits a server line and checks that its kind is known.
func ParseResponse(line string) (Response, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Response{}, fmt.Errorf("empty response: %w", model.ErrProtocol)
	}
	if !responseKinds[fields[0]] {
		return Response{}, fmt.Errorf("unknown response %q: %w", fields[0], model.ErrProtocol)
	}
	return Response{Kind: fields[0], Args: fields[1:]}, nil
}

// BoardEntry is one id/name pair of a board_ids response.
type BoardEntry struct {
	ID   int
	Name string
}

// DecodeBoardIDs reads the pairs of a board_ids response.
func (r Response) DecodeBoardIDs() ([]BoardEntry, error) {
	if r.Kind != RespBoardIDs || len(r.Args)%2 != 0 {
		return nil, fmt.Errorf("malformed %s: %w", RespBoardIDs, model.ErrProtocol)
	}
	entries := make([]BoardEntry, 0, len(r.Args)/2)
	for i := 0; i < len(r.Args); i += 2 {
		id, err := strconv.Atoi(r.Args[i])
		if err != nil {
			return nil, fmt.Errorf("board id %q: %w", r.Args[i], model.ErrProtocol)
		}
		entries = append(entries, BoardEntry{ID: id, Name: r.Args[i+1]})
	}
	return entries, nil
}

// Replay is the decoded payload of a board_lines response.
type Replay struct {
	Names []string
	Lines []model.Line
}

// DecodeBoardLines reads the member names and lines of a board_lines
// response.
func (r Response) DecodeBoardLines() (Replay, error) {
	if r.Kind != RespBoardLines || len(r.Args) < 2 {
		return Replay{}, fmt.Errorf("malformed %s: %w", RespBoardLines, model.ErrProtocol)
	}
	nNames, err1 := strconv.Atoi(r.Args[0])
	nLines, err2 := strconv.Atoi(r.Args[1])
	if err1 != nil || err2 != nil || nNames < 0 || nLines < 0 {
		return Replay{}, fmt.Errorf("malformed %s counts: %w", RespBoardLines, model.ErrProtocol)
	}

	rest := r.Args[2:]
	lineFields := model.LineFields
	if len(rest) != nNames+nLines*lineFields {
		return Replay{}, fmt.Errorf("%s: expected %d names and %d lines: %w", RespBoardLines, nNames, nLines, model.ErrProtocol)
	}

	replay := Replay{Names: append([]string(nil), rest[:nNames]...)}
	rest = rest[nNames:]
	for i := 0; i < nLines; i++ {
		l, err := model.ParseLine(rest[i*lineFields : (i+1)*lineFields])
		if err != nil {
			return Replay{}, err
		}
		replay.Lines = append(replay.Lines, l)
	}
	return replay, nil
}
