package registry

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/collab-whiteboard/backend/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(nil)
	t.Cleanup(func() {
		if err := r.CheckInvariants(); err != nil {
			t.Errorf("invariants violated: %v", err)
		}
	})
	return r
}

func TestRegistry_AddUser(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("default names and lobby placement", func(t *testing.T) {
		id0, err := r.AddUser("")
		if err != nil {
			t.Fatalf("AddUser failed: %v", err)
		}
		id1, err := r.AddUser("")
		if err != nil {
			t.Fatalf("AddUser failed: %v", err)
		}
		if id0 != 0 || id1 != 1 {
			t.Errorf("expected ids 0 and 1, got %d and %d", id0, id1)
		}

		name, _ := r.UserName(id1)
		if name != "User1" {
			t.Errorf("expected User1, got %s", name)
		}

		boardID, err := r.BoardOf(id0)
		if err != nil {
			t.Fatalf("BoardOf failed: %v", err)
		}
		if boardID != model.LobbyID {
			t.Errorf("new user should be in the lobby, got board %d", boardID)
		}
	})

	t.Run("name collisions are suffixed", func(t *testing.T) {
		a, _ := r.AddUser("Rob_Miller")
		b, _ := r.AddUser("Rob_Miller")
		c, _ := r.AddUser("Rob_Miller")

		for id, want := range map[int]string{a: "Rob_Miller", b: "Rob_Miller(2)", c: "Rob_Miller(3)"} {
			got, _ := r.UserName(id)
			if got != want {
				t.Errorf("user %d: expected %s, got %s", id, want, got)
			}
		}
	})
}

func TestRegistry_IDsAreNeverReused(t *testing.T) {
	r := newTestRegistry(t)

	a, _ := r.AddUser("")
	r.DeleteUser(a)
	b, _ := r.AddUser("")
	if a == b {
		t.Errorf("user id %d was reused", a)
	}
}

func TestRegistry_AddBoard(t *testing.T) {
	r := newTestRegistry(t)

	first, _ := r.AddBoard("BoardName1")
	second, _ := r.AddBoard("BoardName1")
	third, _ := r.AddBoard("BoardName1")
	lobbyClash, _ := r.AddBoard(model.LobbyName)
	unnamed, _ := r.AddBoard("")

	if first != 0 || second != 1 || third != 2 {
		t.Errorf("expected board ids 0,1,2, got %d,%d,%d", first, second, third)
	}

	boards := r.Boards()
	got := make([]string, 0, len(boards))
	for _, b := range boards {
		got = append(got, b.Name)
	}
	want := []string{"Lobby", "BoardName1", "BoardName1(2)", "BoardName1(3)", "Lobby(2)", "Board"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("board names: got %v, want %v", got, want)
	}
	if boards[0].ID != model.LobbyID {
		t.Errorf("lobby should be listed first, got id %d", boards[0].ID)
	}
	if lobbyClash == model.LobbyID || unnamed == model.LobbyID {
		t.Errorf("lobby id must never be allocated")
	}

	// Creating a board does not move anyone.
	u, _ := r.AddUser("")
	r.AddBoard("Another")
	if boardID, _ := r.BoardOf(u); boardID != model.LobbyID {
		t.Errorf("AddBoard must not auto-join, user is on %d", boardID)
	}
}

func TestRegistry_JoinAndLeave(t *testing.T) {
	r := newTestRegistry(t)

	u0, _ := r.AddUser("")
	u1, _ := r.AddUser("")
	b0, _ := r.AddBoard("B0")
	b1, _ := r.AddBoard("B1")

	if err := r.JoinBoard(u0, b0); err != nil {
		t.Fatalf("JoinBoard failed: %v", err)
	}
	if err := r.JoinBoard(u1, b0); err != nil {
		t.Fatalf("JoinBoard failed: %v", err)
	}

	names, _ := r.UserNames(b0)
	if !reflect.DeepEqual(names, []string{"User0", "User1"}) {
		t.Errorf("board 0 members: %v", names)
	}
	lobby, _ := r.UserIDs(model.LobbyID)
	if len(lobby) != 0 {
		t.Errorf("lobby should be empty, got %v", lobby)
	}

	// Moving between boards leaves exactly one membership.
	if err := r.JoinBoard(u0, b1); err != nil {
		t.Fatalf("JoinBoard failed: %v", err)
	}
	if ids, _ := r.UserIDs(b0); !reflect.DeepEqual(ids, []int{u1}) {
		t.Errorf("board 0 after move: %v", ids)
	}
	mates, _ := r.BoardMates(u1)
	if !reflect.DeepEqual(mates, []int{u1}) {
		t.Errorf("board mates of user 1: %v", mates)
	}

	if err := r.LeaveBoard(u0, b1); err != nil {
		t.Fatalf("LeaveBoard failed: %v", err)
	}
	if boardID, _ := r.BoardOf(u0); boardID != model.LobbyID {
		t.Errorf("user should be back in the lobby, got %d", boardID)
	}

	t.Run("leaving a board the user is not on", func(t *testing.T) {
		err := r.LeaveBoard(u0, b0)
		if !errors.Is(err, model.ErrNotMember) {
			t.Errorf("expected ErrNotMember, got %v", err)
		}
	})

	t.Run("leaving the lobby rejoins the lobby", func(t *testing.T) {
		if err := r.LeaveBoard(u0, model.LobbyID); err != nil {
			t.Fatalf("LeaveBoard(lobby) failed: %v", err)
		}
		if boardID, _ := r.BoardOf(u0); boardID != model.LobbyID {
			t.Errorf("expected lobby, got %d", boardID)
		}
	})
}

func TestRegistry_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	u, _ := r.AddUser("")

	checks := map[string]error{
		"join unknown board":   r.JoinBoard(u, 42),
		"join unknown user":    r.JoinBoard(42, model.LobbyID),
		"leave unknown board":  r.LeaveBoard(u, 42),
		"add line":             r.AddLine(42, model.Line{}),
		"clear":                r.ClearBoard(42),
		"rename unknown user":  func() error { _, err := r.RenameUser(42, "x"); return err }(),
		"names unknown board":  func() error { _, err := r.UserNames(42); return err }(),
		"board of unknown":     func() error { _, err := r.BoardOf(42); return err }(),
		"lines of unknown":     func() error { _, err := r.Lines(42); return err }(),
		"summary unknown":      func() error { _, err := r.Board(42); return err }(),
		"mates of unknown":     func() error { _, err := r.BoardMates(42); return err }(),
		"name of unknown user": func() error { _, err := r.UserName(42); return err }(),
	}
	for name, err := range checks {
		if !errors.Is(err, model.ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}

	if boardID, _ := r.BoardOf(u); boardID != model.LobbyID {
		t.Errorf("failed operations must not move the user")
	}
}

func TestRegistry_DeleteUser(t *testing.T) {
	r := newTestRegistry(t)

	u, _ := r.AddUser("Alice")
	b, _ := r.AddBoard("B")
	r.JoinBoard(u, b)

	r.DeleteUser(u)
	r.DeleteUser(u)

	if _, err := r.BoardOf(u); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("deleted user should be unknown, got %v", err)
	}
	for _, info := range r.Boards() {
		if len(info.Members) != 0 {
			t.Errorf("board %d still lists %v", info.ID, info.Members)
		}
	}

	// The freed name is available again.
	v, _ := r.AddUser("Alice")
	if name, _ := r.UserName(v); name != "Alice" {
		t.Errorf("expected Alice, got %s", name)
	}
}

func TestRegistry_RenameUser(t *testing.T) {
	r := newTestRegistry(t)

	u0, _ := r.AddUser("")
	u1, _ := r.AddUser("")
	u2, _ := r.AddUser("")

	tests := []struct {
		user int
		name string
		want string
	}{
		{u0, "SomeUserName", "SomeUserName"},
		{u1, "SomeUserName", "SomeUserName(2)"},
		{u2, "SomeUserName", "SomeUserName(3)"},
		// Renaming to one's own name keeps it.
		{u0, "SomeUserName", "SomeUserName"},
		// Taking a free default-looking name.
		{u1, "User0", "User0"},
	}
	for _, tt := range tests {
		got, err := r.RenameUser(tt.user, tt.name)
		if err != nil {
			t.Fatalf("RenameUser failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("rename user %d to %q: got %q, want %q", tt.user, tt.name, got, tt.want)
		}
	}
}

func TestRegistry_Lines(t *testing.T) {
	r := newTestRegistry(t)
	b, _ := r.AddBoard("B")

	lines := []model.Line{
		{X1: 0, Y1: 1, X2: 2, Y2: 3, Width: 4, R: 5, G: 6, B: 7, A: 8},
		{X1: 9, Y1: 9, X2: 9, Y2: 9, Width: 1, R: 0, G: 0, B: 0, A: 255},
		{X1: 1, Y1: 2, X2: 3, Y2: 4, Width: 2.5, R: 1, G: 1, B: 1, A: 1},
	}
	for _, l := range lines {
		if err := r.AddLine(b, l); err != nil {
			t.Fatalf("AddLine failed: %v", err)
		}
	}

	got, _ := r.Lines(b)
	if !reflect.DeepEqual(got, lines) {
		t.Errorf("lines out of order: %v", got)
	}

	// The returned slice is a copy.
	got[0].X1 = 1000
	again, _ := r.Lines(b)
	if again[0].X1 != 0 {
		t.Errorf("Lines must return a copy")
	}

	if err := r.ClearBoard(b); err != nil {
		t.Fatalf("ClearBoard failed: %v", err)
	}
	if err := r.ClearBoard(b); err != nil {
		t.Fatalf("second ClearBoard failed: %v", err)
	}
	got, _ = r.Lines(b)
	if len(got) != 0 {
		t.Errorf("expected empty board, got %v", got)
	}
}

func TestRegistry_Atomically(t *testing.T) {
	r := newTestRegistry(t)

	var userID, boardID int
	err := r.Atomically(func(tx *Txn) error {
		var err error
		userID, err = tx.AddUser("Creator")
		if err != nil {
			return err
		}
		boardID = tx.AddBoard("Fresh")
		return tx.JoinBoard(userID, boardID)
	})
	if err != nil {
		t.Fatalf("Atomically failed: %v", err)
	}

	info, err := r.Board(boardID)
	if err != nil {
		t.Fatalf("Board failed: %v", err)
	}
	if !reflect.DeepEqual(info.Members, []string{"Creator"}) {
		t.Errorf("unexpected members %v", info.Members)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry(t)
	b, _ := r.AddBoard("Shared")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := r.AddUser("")
			if err != nil {
				t.Errorf("AddUser failed: %v", err)
				return
			}
			for j := 0; j < 50; j++ {
				r.JoinBoard(u, b)
				r.AddLine(b, model.Line{X1: j})
				r.LeaveBoard(u, b)
				r.RenameUser(u, "Same")
			}
			r.DeleteUser(u)
		}()
	}
	wg.Wait()

	lines, _ := r.Lines(b)
	if len(lines) != 20*50 {
		t.Errorf("expected %d lines, got %d", 20*50, len(lines))
	}
	if users := r.Users(); len(users) != 0 {
		t.Errorf("expected no users left, got %v", users)
	}
}

func TestRegistry_IndependentAllocators(t *testing.T) {
	a := New(NewAllocator())
	b := New(NewAllocatorFrom(100, 7))

	ua, _ := a.AddUser("")
	ub, _ := b.AddUser("")
	ba, _ := a.AddBoard("x")
	bb, _ := b.AddBoard("x")

	if ua != 0 || ub != 100 || ba != 0 || bb != 7 {
		t.Errorf("unexpected ids: %d %d %d %d", ua, ub, ba, bb)
	}
}
