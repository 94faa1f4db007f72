package model

import "errors"

var (
	// ErrNotFound is returned when a user or board id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProtocol is returned when a request line cannot be parsed.
	ErrProtocol = errors.New("protocol error")

	// ErrNotMember is returned when a user leaves a board it is not in.
	ErrNotMember = errors.New("user is not a member of board")

	// ErrInvalidPort is returned when a port is outside 0-65535.
	ErrInvalidPort = errors.New("port out of range")
)
