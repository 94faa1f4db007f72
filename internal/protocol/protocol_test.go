package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/collab-whiteboard/backend/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"get_board_ids", GetBoardIDs{}},
		{"set_username Rob_Miller", SetUsername{Username: "Rob_Miller"}},
		{"create_board BoardName1", CreateBoard{BoardName: "BoardName1"}},
		{"get_current_board_id", GetCurrentBoardID{}},
		{"get_users_for_board_id -1", GetUsersForBoardID{BoardID: -1}},
		{"join_board_id 234", JoinBoardID{BoardID: 234}},
		{"logout", Logout{}},
		{"get_users_in_my_board", GetUsersInMyBoard{}},
		{"leave_board", LeaveBoard{}},
		{"req_draw 0 1 2 3 4.0 5 6 7 8", Draw{Line: model.Line{X1: 0, Y1: 1, X2: 2, Y2: 3, Width: 4, R: 5, G: 6, B: 7, A: 8}}},
		{"req_clear", Clear{}},
		{"  req_clear\r", Clear{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"get_board_ids extra",
		"set_username",
		"set_username two words",
		"create_board",
		"join_board_id",
		"join_board_id abc",
		"get_users_for_board_id 1.5",
		"logout now",
		"req_draw 0 1 2 3 4.0 5 6 7",
		"req_draw 0 1 2 3 4.0 5 6 7 8 9",
		"req_draw 0 1 2 3 thick 5 6 7 8",
		"req_clear all",
		"draw 0 1 2 3 4 5 6 7 8",
		"GET_BOARD_IDS",
		"hello",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if !errors.Is(err, model.ErrProtocol) {
				t.Errorf("Parse(%q): expected ErrProtocol, got %v", input, err)
			}
		})
	}
}

func TestParse_SuggestsCloseCommand(t *testing.T) {
	_, err := Parse("get_bord_ids")
	if err == nil || !strings.Contains(err.Error(), `"get_board_ids"`) {
		t.Errorf("expected a suggestion in %v", err)
	}

	if _, ok := Suggest("completely_unrelated_text"); ok {
		t.Errorf("no suggestion expected for unrelated input")
	}
	if got, ok := Suggest("req_claer"); !ok || got != CmdClear {
		t.Errorf("Suggest(req_claer) = %q, %v", got, ok)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{GetBoardIDs{}, "get_board_ids"},
		{SetUsername{Username: "Rob Miller"}, "set_username Rob_Miller"},
		{CreateBoard{BoardName: "My  Board "}, "create_board My_Board"},
		{GetCurrentBoardID{}, "get_current_board_id"},
		{GetUsersForBoardID{BoardID: 234}, "get_users_for_board_id 234"},
		{JoinBoardID{BoardID: -1}, "join_board_id -1"},
		{Logout{}, "logout"},
		{GetUsersInMyBoard{}, "get_users_in_my_board"},
		{LeaveBoard{}, "leave_board"},
		{Draw{Line: model.Line{X1: 0, Y1: 1, X2: 2, Y2: 3, Width: 4, R: 5, G: 6, B: 7, A: 8}}, "req_draw 0 1 2 3 4.000000 5 6 7 8"},
		{Clear{}, "req_clear"},
	}

	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("%T.String() = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestResponses(t *testing.T) {
	boards := []model.BoardInfo{
		{ID: model.LobbyID, Name: model.LobbyName},
		{ID: 0, Name: "BoardName1"},
	}
	line := model.Line{X1: 0, Y1: 1, X2: 2, Y2: 3, Width: 4, R: 5, G: 6, B: 7, A: 8}

	tests := []struct {
		got  string
		want string
	}{
		{Welcome(0), "welcome 0"},
		{BoardIDs(boards), "board_ids -1 Lobby 0 BoardName1"},
		{BoardIDs(nil), "board_ids"},
		{ChangedUsername("SomeUserName(2)"), "changed_username SomeUserName(2)"},
		{UsersForBoardID(0, []string{"User0", "User1"}), "users_for_board_id 0 User0 User1"},
		{UsersForBoardID(-1, nil), "users_for_board_id -1"},
		{CurrentBoardID(0), "current_board_id 0"},
		{DrawLine(line), "draw 0 1 2 3 4.000000 5 6 7 8"},
		{BoardLines([]string{"User0", "User1"}, nil), "board_lines 2 0 User0 User1"},
		{BoardLines([]string{"User0", "User1"}, []model.Line{line}), "board_lines 2 1 User0 User1 0 1 2 3 4.000000 5 6 7 8"},
		{ClearBoard(), "clear_board"},
		{Done(), "done"},
		{Failed(), "failed"},
		{LoggedOut(), "logged_out"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseResponse(t *testing.T) {
	r, err := ParseResponse("board_ids -1 Lobby 0 BoardName1")
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	entries, err := r.DecodeBoardIDs()
	if err != nil {
		t.Fatalf("DecodeBoardIDs failed: %v", err)
	}
	want := []BoardEntry{{ID: -1, Name: "Lobby"}, {ID: 0, Name: "BoardName1"}}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("entries = %v, want %v", entries, want)
	}

	if _, err := ParseResponse("bogus 1 2"); !errors.Is(err, model.ErrProtocol) {
		t.Errorf("expected ErrProtocol for unknown response, got %v", err)
	}
	if _, err := ParseResponse(""); !errors.Is(err, model.ErrProtocol) {
		t.Errorf("expected ErrProtocol for empty response, got %v", err)
	}

	bad, _ := ParseResponse("board_ids -1")
	if _, err := bad.DecodeBoardIDs(); !errors.Is(err, model.ErrProtocol) {
		t.Errorf("expected ErrProtocol for odd board_ids, got %v", err)
	}
}

func TestDecodeBoardLines(t *testing.T) {
	line := model.Line{X1: 0, Y1: 1, X2: 2, Y2: 3, Width: 4, R: 5, G: 6, B: 7, A: 8}
	r, err := ParseResponse(BoardLines([]string{"User0", "User1"}, []model.Line{line, line}))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	replay, err := r.DecodeBoardLines()
	if err != nil {
		t.Fatalf("DecodeBoardLines failed: %v", err)
	}
	if !reflect.DeepEqual(replay.Names, []string{"User0", "User1"}) {
		t.Errorf("names = %v", replay.Names)
	}
	if !reflect.DeepEqual(replay.Lines, []model.Line{line, line}) {
		t.Errorf("lines = %v", replay.Lines)
	}

	truncated, _ := ParseResponse("board_lines 1 1 User0 0 1 2")
	if _, err := truncated.DecodeBoardLines(); !errors.Is(err, model.ErrProtocol) {
		t.Errorf("expected ErrProtocol for truncated replay, got %v", err)
	}
}

// Every encoded request parses back to the command it came from.
func TestCommandRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("usernames survive encoding", prop.ForAll(
		func(name string) bool {
			cmd, err := Parse(SetUsername{Username: name}.String())
			if err != nil {
				return false
			}
			return cmd == SetUsername{Username: EncodeName(name)}
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.Property("board ids survive encoding", prop.ForAll(
		func(id int) bool {
			join, err1 := Parse(JoinBoardID{BoardID: id}.String())
			users, err2 := Parse(GetUsersForBoardID{BoardID: id}.String())
			return err1 == nil && err2 == nil &&
				join == JoinBoardID{BoardID: id} &&
				users == GetUsersForBoardID{BoardID: id}
		},
		gen.IntRange(-1, 1<<20),
	))

	properties.TestingRun(t)
}
