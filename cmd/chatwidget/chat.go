package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ashureev/shsh-chat/internal/widget"
	"github.com/spf13/cobra"
)

// command is one parsed input line.
type command struct {
	kind string // send, pick, open, close, reconnect, quit, help
	text string
	pick int
}

func parseCommand(line string) (command, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return command{kind: "send", text: line}, nil
	}

	name := strings.TrimPrefix(trimmed, "/")
	if n, err := strconv.Atoi(name); err == nil {
		if n < 1 {
			return command{}, fmt.Errorf("no suggestion %d", n)
		}
		return command{kind: "pick", pick: n}, nil
	}
	switch name {
	case "open", "close", "reconnect", "quit", "help":
		return command{kind: name}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s, try /help", name)
	}
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the configured backend",
		Long: `Open a chat session against chat_url and read messages from stdin.

Commands:
  /N          ask visible suggestion N
  /open       open the widget (reconnects if disconnected)
  /close      close the widget
  /reconnect  retry the connection now
  /quit       end the session`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	p := newPrinter(out)

	h, err := widget.Init(a.cfg, widget.WithLogger(a.logger), widget.WithoutConnect())
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Teardown(); err != nil {
			a.logger.Error("Failed to tear down chat widget", "error", err)
		}
	}()

	h.OnSuggestions(p.suggestions)
	h.OnVisibility(func(open bool) {
		if open {
			p.notice("chat opened")
		} else {
			p.notice("chat closed")
		}
	})
	h.Subscribe(p.state)
	h.Open()
	p.suggestions(h.Suggestions())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(h, p, line); quit {
				return nil
			}
		}
	}
}

// handleLine executes one input line and reports whether the session should end.
func handleLine(h *widget.Handle, p *printer, line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	cmd, err := parseCommand(line)
	if err != nil {
		p.error(err)
		return false
	}

	switch cmd.kind {
	case "quit":
		return true
	case "open":
		h.Open()
	case "close":
		h.Close()
	case "reconnect":
		h.Reconnect()
	case "help":
		p.notice("/N ask suggestion N, /open, /close, /reconnect, /quit")
	case "pick":
		visible := h.Suggestions()
		if cmd.pick > len(visible) {
			p.error(fmt.Errorf("no suggestion %d", cmd.pick))
			return false
		}
		if err := h.AskSuggestion(visible[cmd.pick-1]); err != nil {
			p.error(err)
		}
	case "send":
		if !h.IsOpen() {
			p.error(errors.New("chat is closed, use /open"))
			return false
		}
		if err := h.SendMessage(cmd.text); err != nil {
			p.error(err)
		}
	}
	return false
}
