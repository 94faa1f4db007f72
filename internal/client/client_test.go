package client_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/collab-whiteboard/backend/internal/client"
	"github.com/collab-whiteboard/backend/internal/dispatch"
	"github.com/collab-whiteboard/backend/internal/hub"
	"github.com/collab-whiteboard/backend/internal/model"
	"github.com/collab-whiteboard/backend/internal/protocol"
	"github.com/collab-whiteboard/backend/internal/registry"
	"github.com/collab-whiteboard/backend/internal/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	reg := registry.New(nil)
	d := dispatch.NewDispatcher(reg, hub.NewRouter(), dispatch.Config{})
	srv := server.New(server.NewHandler(d, reg, server.HandlerConfig{}), nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr().String()
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Welcome(t *testing.T) {
	c := dial(t, startServer(t))

	resp, err := c.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.RespWelcome, resp.Kind)
	require.Equal(t, []string{"0"}, resp.Args)
}

// Client 0 draws one line; client 1 joins and receives it in the replay.
func TestClient_DrawAndReplay(t *testing.T) {
	addr := startServer(t)
	c0 := dial(t, addr)
	_, err := c0.Expect(protocol.RespUsersForBoardID, nil)
	require.NoError(t, err)

	require.NoError(t, c0.Send(protocol.CreateBoard{BoardName: "my board"}))
	resp, err := c0.Expect(protocol.RespBoardIDs, nil)
	require.NoError(t, err)
	boards, err := resp.DecodeBoardIDs()
	require.NoError(t, err)
	require.Equal(t, []protocol.BoardEntry{{ID: -1, Name: "Lobby"}, {ID: 0, Name: "my_board"}}, boards)

	line := model.Line{X1: 1, Y1: 2, X2: 3, Y2: 4, Width: 1.5, R: 10, G: 20, B: 30, A: 255}
	require.NoError(t, c0.Send(protocol.Draw{Line: line}))
	resp, err = c0.Expect(protocol.RespDraw, nil)
	require.NoError(t, err)
	require.Equal(t, protocol.DrawLine(line), resp.String())

	c1 := dial(t, addr)
	_, err = c1.Expect(protocol.RespWelcome, nil)
	require.NoError(t, err)
	require.NoError(t, c1.Send(protocol.JoinBoardID{BoardID: 0}))

	var skipped []string
	resp, err = c1.Expect(protocol.RespBoardLines, func(r protocol.Response) {
		skipped = append(skipped, r.Kind)
	})
	require.NoError(t, err)
	require.Equal(t, []string{protocol.RespUsersForBoardID}, skipped)

	replay, err := resp.DecodeBoardLines()
	require.NoError(t, err)
	require.Equal(t, []string{"User0", "User1"}, replay.Names)
	require.Equal(t, []model.Line{line}, replay.Lines)
}

func TestClient_ResponsesEndOnLogout(t *testing.T) {
	c := dial(t, startServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lines, errc := c.Responses(ctx)

	require.NoError(t, c.Send(protocol.Logout{}))

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	require.NoError(t, <-errc)
	require.Equal(t, []string{"welcome 0", "users_for_board_id -1 User0", "logged_out"}, got)

	_, err := c.ReceiveLine()
	require.ErrorIs(t, err, io.EOF)
}

func TestClient_FailedRequest(t *testing.T) {
	c := dial(t, startServer(t))
	_, err := c.Expect(protocol.RespUsersForBoardID, nil)
	require.NoError(t, err)

	require.NoError(t, c.SendLine("join_board_id 99\n"))
	resp, err := c.Receive()
	require.NoError(t, err)
	require.Equal(t, protocol.RespFailed, resp.Kind)
}
