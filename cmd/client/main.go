package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/collab-whiteboard/backend/internal/client"
	"github.com/collab-whiteboard/backend/internal/config"
	"github.com/collab-whiteboard/backend/internal/protocol"
)

var (
	colorText    = lipgloss.Color("#cdd6f4")
	colorSubtext = lipgloss.Color("#7f849c")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorRed     = lipgloss.Color("#f38ba8")
	colorPeach   = lipgloss.Color("#fab387")

	kindStyle   = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	failedStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	argStyle    = lipgloss.NewStyle().Foreground(colorText)
	hintStyle   = lipgloss.NewStyle().Foreground(colorPeach)
	metaStyle   = lipgloss.NewStyle().Foreground(colorSubtext)
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failedStyle.Render("error:"), err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		ip   string
		port string
	)

	cmd := &cobra.Command{
		Use:   "whiteboard-client",
		Short: "Interactive console for a whiteboard server",
		Long: `Connects to a whiteboard server and sends one request per input line.

Names passed to set_username and create_board may contain spaces; they
are sent with underscores in their place.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.ParsePort(port)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			c, err := client.Dial(ctx, net.JoinHostPort(ip, strconv.Itoa(p)))
			cancel()
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintln(cmd.OutOrStdout(), metaStyle.Render("connected to "+net.JoinHostPort(ip, strconv.Itoa(p))))
			return console(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&ip, "ip", "127.0.0.1", "server host")
	cmd.Flags().StringVar(&port, "port", strconv.Itoa(config.DefaultPort), "server port")
	return cmd
}

// console copies requests from in to the server and prints responses to out
// until either side closes.
func console(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines, errc := c.Responses(ctx)
	inputDone := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			request, err := buildRequest(scanner.Text())
			if err != nil {
				fmt.Fprintln(out, hintStyle.Render(err.Error()))
				continue
			}
			if request == "" {
				continue
			}
			if err := c.SendLine(request); err != nil {
				inputDone <- err
				return
			}
		}
		inputDone <- scanner.Err()
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			fmt.Fprintln(out, render(line))
		case err := <-inputDone:
			if err != nil {
				return err
			}
			// Input ended; leave the way a client is expected to.
			if err := c.Send(protocol.Logout{}); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// buildRequest turns console input into a request line, checking it locally
// so typos get a hint instead of a bare "failed".
func buildRequest(input string) (string, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return "", nil
	}

	switch fields[0] {
	case protocol.CmdSetUsername, protocol.CmdCreateBoard:
		if len(fields) > 1 {
			fields = []string{fields[0], protocol.EncodeName(strings.Join(fields[1:], " "))}
		}
	}

	cmd, err := protocol.Parse(strings.Join(fields, " "))
	if err != nil {
		if !slices.Contains(protocol.Commands(), fields[0]) {
			if hint, ok := protocol.Suggest(fields[0]); ok {
				return "", fmt.Errorf("unknown command %q, did you mean %q?", fields[0], hint)
			}
		}
		return "", err
	}
	return cmd.String(), nil
}

func render(line string) string {
	resp, err := protocol.ParseResponse(line)
	if err != nil {
		return metaStyle.Render(line)
	}
	kind := kindStyle.Render(resp.Kind)
	if resp.Kind == protocol.RespFailed {
		kind = failedStyle.Render(resp.Kind)
	}
	if len(resp.Args) == 0 {
		return kind
	}
	return kind + " " + argStyle.Render(strings.Join(resp.Args, " "))
}
