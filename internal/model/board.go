package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// LobbyID is the reserved id of the lobby board.
	LobbyID = -1

	// LobbyName is the name of the lobby board.
	LobbyName = "Lobby"

	// DefaultBoardName is used when a board is created without a name.
	DefaultBoardName = "Board"

	// LineFields is the number of tokens in the text form of a Line.
	LineFields = 9
)

// User represents a connected client.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DefaultUserName returns the name assigned to a user that did not pick one.
func DefaultUserName(id int) string {
	return "User" + strconv.Itoa(id)
}

// Board represents a shared drawing surface.
type Board struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Lines []Line `json:"-"`
}

// BoardInfo is a read-only summary of a board.
type BoardInfo struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	LineCount int      `json:"lineCount"`
	Members   []string `json:"members"`
}

// Line is a single drawn stroke. Lines are values and never change after
// they are created.
type Line struct {
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Width float32 `json:"width"`
	R     int     `json:"r"`
	G     int     `json:"g"`
	B     int     `json:"b"`
	A     int     `json:"a"`
}

// String returns the wire form: "x1 y1 x2 y2 width r g b a", with the width
// printed using six decimals.
func (l Line) String() string {
	return fmt.Sprintf("%d %d %d %d %f %d %d %d %d",
		l.X1, l.Y1, l.X2, l.Y2, l.Width, l.R, l.G, l.B, l.A)
}

// ParseLine parses the nine wire tokens of a line.
func ParseLine(fields []string) (Line, error) {
	if len(fields) != LineFields {
		return Line{}, fmt.Errorf("%w: line needs %d fields, got %d", ErrProtocol, LineFields, len(fields))
	}

	ints := make([]int, 0, LineFields-1)
	for i, f := range fields {
		if i == 4 {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return Line{}, fmt.Errorf("%w: bad integer %q", ErrProtocol, f)
		}
		ints = append(ints, v)
	}

	width, err := strconv.ParseFloat(fields[4], 32)
	if err != nil || math.IsNaN(width) || math.IsInf(width, 0) {
		return Line{}, fmt.Errorf("%w: bad stroke width %q", ErrProtocol, fields[4])
	}

	return Line{
		X1:    ints[0],
		Y1:    ints[1],
		X2:    ints[2],
		Y2:    ints[3],
		Width: float32(width),
		R:     ints[4],
		G:     ints[5],
		B:     ints[6],
		A:     ints[7],
	}, nil
}

// ParseLineString parses a line from its space separated wire form.
func ParseLineString(s string) (Line, error) {
	return ParseLine(strings.Fields(s))
}
