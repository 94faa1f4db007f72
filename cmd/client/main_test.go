package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collab-whiteboard/backend/internal/model"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"   ", ""},
		{"get_board_ids", "get_board_ids"},
		{"set_username Ada Lovelace", "set_username Ada_Lovelace"},
		{"create_board  team  sketch ", "create_board team_sketch"},
		{"join_board_id 3", "join_board_id 3"},
		{"req_draw 0 0 5 5 1 0 0 0 255", "req_draw 0 0 5 5 1.000000 0 0 0 255"},
	}
	for _, tt := range tests {
		got, err := buildRequest(tt.input)
		require.NoError(t, err, tt.input)
		require.Equal(t, tt.want, got, tt.input)
	}
}

func TestBuildRequest_Errors(t *testing.T) {
	_, err := buildRequest("get_bord_ids")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), `did you mean "get_board_ids"`), err.Error())

	_, err = buildRequest("join_board_id")
	require.True(t, errors.Is(err, model.ErrProtocol), "got %v", err)

	_, err = buildRequest("req_draw 1 2")
	require.ErrorIs(t, err, model.ErrProtocol)
}

func TestRender(t *testing.T) {
	require.Contains(t, render("welcome 3"), "welcome")
	require.Contains(t, render("welcome 3"), "3")
	require.Contains(t, render("failed"), "failed")
	require.Equal(t, "???", stripANSI(render("???")))
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && r == 'm':
			inEscape = false
		case !inEscape:
			b.WriteRune(r)
		}
	}
	return b.String()
}
