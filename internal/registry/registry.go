// Package registry holds the authoritative in-memory state of the whiteboard
// server: users, boards, board membership and drawn lines.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/collab-whiteboard/backend/internal/model"
)

// Registry is the single source of truth for users, boards and membership.
// Every public method is atomic with respect to every other one.
type Registry struct {
	mu sync.Mutex
	tx *Txn
}

// Txn is the registry state as seen from inside Atomically. Its methods do
// not lock; a Txn must not be retained after the callback returns.
type Txn struct {
	alloc *Allocator

	users  map[int]*model.User
	boards map[int]*model.Board

	// members maps board id to the set of user ids on that board.
	members map[int]map[int]struct{}
	// boardOf maps user id to the single board the user is on.
	boardOf map[int]int

	userByName  map[string]int
	boardByName map[string]int
}

// New creates a registry containing only the lobby. A nil allocator is
// replaced by one starting at 0.
func New(alloc *Allocator) *Registry {
	if alloc == nil {
		alloc = NewAllocator()
	}

	tx := &Txn{
		alloc:       alloc,
		users:       make(map[int]*model.User),
		boards:      make(map[int]*model.Board),
		members:     make(map[int]map[int]struct{}),
		boardOf:     make(map[int]int),
		userByName:  make(map[string]int),
		boardByName: make(map[string]int),
	}
	tx.boards[model.LobbyID] = &model.Board{ID: model.LobbyID, Name: model.LobbyName}
	tx.members[model.LobbyID] = make(map[int]struct{})
	tx.boardByName[model.LobbyName] = model.LobbyID

	return &Registry{tx: tx}
}

// Atomically runs fn while holding the registry lock. All reads and writes
// fn performs through tx form one step that no other caller can observe
// half-done.
func (r *Registry) Atomically(fn func(tx *Txn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.tx)
}

// AddUser creates a user in the lobby and returns its id.
func (r *Registry) AddUser(name string) (id int, err error) {
	err = r.Atomically(func(tx *Txn) error {
		id, err = tx.AddUser(name)
		return err
	})
	return id, err
}

// AddBoard creates a board and returns its id.
func (r *Registry) AddBoard(name string) (id int, err error) {
	err = r.Atomically(func(tx *Txn) error {
		id = tx.AddBoard(name)
		return nil
	})
	return id, err
}

// JoinBoard moves a user onto a board.
func (r *Registry) JoinBoard(userID, boardID int) error {
	return r.Atomically(func(tx *Txn) error {
		return tx.JoinBoard(userID, boardID)
	})
}

// LeaveBoard removes a user from a board and puts it back in the lobby.
func (r *Registry) LeaveBoard(userID, boardID int) error {
	return r.Atomically(func(tx *Txn) error {
		return tx.LeaveBoard(userID, boardID)
	})
}

// DeleteUser removes a user. Deleting an unknown user is a no-op.
func (r *Registry) DeleteUser(userID int) {
	_ = r.Atomically(func(tx *Txn) error {
		tx.DeleteUser(userID)
		return nil
	})
}

// RenameUser renames a user and returns the name actually assigned.
func (r *Registry) RenameUser(userID int, newName string) (name string, err error) {
	err = r.Atomically(func(tx *Txn) error {
		name, err = tx.RenameUser(userID, newName)
		return err
	})
	return name, err
}

// AddLine appends a line to a board.
func (r *Registry) AddLine(boardID int, line model.Line) error {
	return r.Atomically(func(tx *Txn) error {
		return tx.AddLine(boardID, line)
	})
}

// ClearBoard removes every line from a board.
func (r *Registry) ClearBoard(boardID int) error {
	return r.Atomically(func(tx *Txn) error {
		return tx.ClearBoard(boardID)
	})
}

// Lines returns a copy of a board's lines in drawing order.
func (r *Registry) Lines(boardID int) (lines []model.Line, err error) {
	err = r.Atomically(func(tx *Txn) error {
		lines, err = tx.Lines(boardID)
		return err
	})
	return lines, err
}

// Boards returns a summary of every board, lobby first.
func (r *Registry) Boards() (boards []model.BoardInfo) {
	_ = r.Atomically(func(tx *Txn) error {
		boards = tx.Boards()
		return nil
	})
	return boards
}

// Board returns a summary of one board.
func (r *Registry) Board(boardID int) (info model.BoardInfo, err error) {
	err = r.Atomically(func(tx *Txn) error {
		info, err = tx.Board(boardID)
		return err
	})
	return info, err
}

// Users returns every current user ordered by id.
func (r *Registry) Users() (users []model.User) {
	_ = r.Atomically(func(tx *Txn) error {
		users = tx.Users()
		return nil
	})
	return users
}

// UserName returns the name of a user.
func (r *Registry) UserName(userID int) (name string, err error) {
	err = r.Atomically(func(tx *Txn) error {
		name, err = tx.UserName(userID)
		return err
	})
	return name, err
}

// UserNames returns the names of the users on a board ordered by user id.
func (r *Registry) UserNames(boardID int) (names []string, err error) {
	err = r.Atomically(func(tx *Txn) error {
		names, err = tx.UserNames(boardID)
		return err
	})
	return names, err
}

// UserIDs returns the ids of the users on a board in ascending order.
func (r *Registry) UserIDs(boardID int) (ids []int, err error) {
	err = r.Atomically(func(tx *Txn) error {
		ids, err = tx.UserIDs(boardID)
		return err
	})
	return ids, err
}

// BoardOf returns the board a user is currently on.
func (r *Registry) BoardOf(userID int) (boardID int, err error) {
	err = r.Atomically(func(tx *Txn) error {
		boardID, err = tx.BoardOf(userID)
		return err
	})
	return boardID, err
}

// BoardMates returns the ids of every user sharing a board with userID,
// including userID itself.
func (r *Registry) BoardMates(userID int) (ids []int, err error) {
	err = r.Atomically(func(tx *Txn) error {
		ids, err = tx.BoardMates(userID)
		return err
	})
	return ids, err
}

// CheckInvariants verifies the registry's structural invariants.
func (r *Registry) CheckInvariants() error {
	return r.Atomically(func(tx *Txn) error {
		return tx.CheckInvariants()
	})
}

// AddUser creates a user in the lobby. An empty name means "User<id>".
func (tx *Txn) AddUser(name string) (int, error) {
	id := tx.alloc.NextUserID()
	if _, exists := tx.users[id]; exists {
		return 0, fmt.Errorf("user id %d already allocated", id)
	}
	if name == "" {
		name = model.DefaultUserName(id)
	}
	name = Disambiguate(name, tx.userNameTaken(-1))

	tx.users[id] = &model.User{ID: id, Name: name}
	tx.userByName[name] = id
	tx.members[model.LobbyID][id] = struct{}{}
	tx.boardOf[id] = model.LobbyID
	return id, nil
}

// AddBoard creates an empty board. An empty name means "Board".
func (tx *Txn) AddBoard(name string) int {
	id := tx.alloc.NextBoardID()
	if name == "" {
		name = model.DefaultBoardName
	}
	name = Disambiguate(name, func(n string) bool {
		_, taken := tx.boardByName[n]
		return taken
	})

	tx.boards[id] = &model.Board{ID: id, Name: name}
	tx.boardByName[name] = id
	tx.members[id] = make(map[int]struct{})
	return id
}

// JoinBoard removes the user from its current board and adds it to boardID.
func (tx *Txn) JoinBoard(userID, boardID int) error {
	if _, ok := tx.boards[boardID]; !ok {
		return fmt.Errorf("board %d: %w", boardID, model.ErrNotFound)
	}
	if _, ok := tx.users[userID]; !ok {
		return fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}

	if current, ok := tx.boardOf[userID]; ok {
		delete(tx.members[current], userID)
	}
	tx.members[boardID][userID] = struct{}{}
	tx.boardOf[userID] = boardID
	return nil
}

// LeaveBoard removes the user from boardID and returns it to the lobby.
func (tx *Txn) LeaveBoard(userID, boardID int) error {
	if _, ok := tx.boards[boardID]; !ok {
		return fmt.Errorf("board %d: %w", boardID, model.ErrNotFound)
	}
	if _, ok := tx.users[userID]; !ok {
		return fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}
	if tx.boardOf[userID] != boardID {
		return fmt.Errorf("user %d, board %d: %w", userID, boardID, model.ErrNotMember)
	}
	return tx.JoinBoard(userID, model.LobbyID)
}

// DeleteUser removes the user and its membership. Unknown ids are ignored.
func (tx *Txn) DeleteUser(userID int) {
	user, ok := tx.users[userID]
	if !ok {
		return
	}
	if boardID, ok := tx.boardOf[userID]; ok {
		delete(tx.members[boardID], userID)
	}
	delete(tx.boardOf, userID)
	delete(tx.userByName, user.Name)
	delete(tx.users, userID)
}

// RenameUser disambiguates newName against every other user and assigns it.
func (tx *Txn) RenameUser(userID int, newName string) (string, error) {
	user, ok := tx.users[userID]
	if !ok {
		return "", fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}
	if newName == "" {
		newName = model.DefaultUserName(userID)
	}
	name := Disambiguate(newName, tx.userNameTaken(userID))

	delete(tx.userByName, user.Name)
	user.Name = name
	tx.userByName[name] = userID
	return name, nil
}

// AddLine appends a line to a board.
func (tx *Txn) AddLine(boardID int, line model.Line) error {
	board, ok := tx.boards[boardID]
	if !ok {
		return fmt.Errorf("board %d: %w", boardID, model.ErrNotFound)
	}
	board.Lines = append(board.Lines, line)
	return nil
}

// ClearBoard truncates a board's lines.
func (tx *Txn) ClearBoard(boardID int) error {
	board, ok := tx.boards[boardID]
	if !ok {
		return fmt.Errorf("board %d: %w", boardID, model.ErrNotFound)
	}
	board.Lines = nil
	return nil
}

// Lines returns a copy of a board's lines.
func (tx *Txn) Lines(boardID int) ([]model.Line, error) {
	board, ok := tx.boards[boardID]
	if !ok {
		return nil, fmt.Errorf("board %d: %w", boardID, model.ErrNotFound)
	}
	lines := make([]model.Line, len(board.Lines))
	copy(lines, board.Lines)
	return lines, nil
}

// Boards returns every board ordered by id, so the lobby comes first.
func (tx *Txn) Boards() []model.BoardInfo {
	ids := make([]int, 0, len(tx.boards))
	for id := range tx.boards {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	infos := make([]model.BoardInfo, 0, len(ids))
	for _, id := range ids {
		info, _ := tx.Board(id)
		infos = append(infos, info)
	}
	return infos
}

// Board returns a summary of one board.
func (tx *Txn) Board(boardID int) (model.BoardInfo, error) {
	board, ok := tx.boards[boardID]
	if !ok {
		return model.BoardInfo{}, fmt.Errorf("board %d: %w", boardID, model.ErrNotFound)
	}
	names, _ := tx.UserNames(boardID)
	return model.BoardInfo{
		ID:        board.ID,
		Name:      board.Name,
		LineCount: len(board.Lines),
		Members:   names,
	}, nil
}

// HasBoard reports whether a board exists.
func (tx *Txn) HasBoard(boardID int) bool {
	_, ok := tx.boards[boardID]
	return ok
}

// HasUser reports whether a user exists.
func (tx *Txn) HasUser(userID int) bool {
	_, ok := tx.users[userID]
	return ok
}

// Users returns every user ordered by id.
func (tx *Txn) Users() []model.User {
	users := make([]model.User, 0, len(tx.users))
	for _, u := range tx.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// UserName returns a user's current name.
func (tx *Txn) UserName(userID int) (string, error) {
	user, ok := tx.users[userID]
	if !ok {
		return "", fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}
	return user.Name, nil
}

// UserNames returns the names on a board ordered by user id.
func (tx *Txn) UserNames(boardID int) ([]string, error) {
	ids, err := tx.UserIDs(boardID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, tx.users[id].Name)
	}
	return names, nil
}

// UserIDs returns the ids on a board in ascending order.
func (tx *Txn) UserIDs(boardID int) ([]int, error) {
	set, ok := tx.members[boardID]
	if !ok {
		return nil, fmt.Errorf("board %d: %w", boardID, model.ErrNotFound)
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// BoardOf returns the board a user is on.
func (tx *Txn) BoardOf(userID int) (int, error) {
	boardID, ok := tx.boardOf[userID]
	if !ok {
		return 0, fmt.Errorf("user %d: %w", userID, model.ErrNotFound)
	}
	return boardID, nil
}

// BoardMates returns every user on userID's board, userID included.
func (tx *Txn) BoardMates(userID int) ([]int, error) {
	boardID, err := tx.BoardOf(userID)
	if err != nil {
		return nil, err
	}
	return tx.UserIDs(boardID)
}

// CheckInvariants verifies that every user is on exactly one board, that
// names are unique, and that the lobby exists.
func (tx *Txn) CheckInvariants() error {
	lobby, ok := tx.boards[model.LobbyID]
	if !ok || lobby.Name != model.LobbyName {
		return fmt.Errorf("lobby missing")
	}

	seen := make(map[int]int, len(tx.users))
	for boardID, set := range tx.members {
		if _, ok := tx.boards[boardID]; !ok {
			return fmt.Errorf("membership for unknown board %d", boardID)
		}
		for userID := range set {
			if prev, dup := seen[userID]; dup {
				return fmt.Errorf("user %d on boards %d and %d", userID, prev, boardID)
			}
			if _, ok := tx.users[userID]; !ok {
				return fmt.Errorf("unknown user %d on board %d", userID, boardID)
			}
			if tx.boardOf[userID] != boardID {
				return fmt.Errorf("user %d index says board %d, membership says %d", userID, tx.boardOf[userID], boardID)
			}
			seen[userID] = boardID
		}
	}
	for userID := range tx.users {
		if _, ok := seen[userID]; !ok {
			return fmt.Errorf("user %d is on no board", userID)
		}
	}
	if len(tx.boardOf) != len(tx.users) {
		return fmt.Errorf("board index has %d entries for %d users", len(tx.boardOf), len(tx.users))
	}

	if len(tx.userByName) != len(tx.users) {
		return fmt.Errorf("user names are not unique")
	}
	for name, id := range tx.userByName {
		if u, ok := tx.users[id]; !ok || u.Name != name {
			return fmt.Errorf("user name index out of date for %q", name)
		}
	}

	if len(tx.boardByName) != len(tx.boards) {
		return fmt.Errorf("board names are not unique")
	}
	for name, id := range tx.boardByName {
		if b, ok := tx.boards[id]; !ok || b.Name != name {
			return fmt.Errorf("board name index out of date for %q", name)
		}
	}
	return nil
}

// userNameTaken reports names held by any user other than except.
func (tx *Txn) userNameTaken(except int) func(string) bool {
	return func(name string) bool {
		id, ok := tx.userByName[name]
		return ok && id != except
	}
}
