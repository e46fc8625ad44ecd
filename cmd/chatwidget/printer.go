package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/session"
)

// printer renders session snapshots as an append-only terminal transcript,
// writing streamed text as deltas.
type printer struct {
	mu  sync.Mutex
	out io.Writer

	printed int    // messages fully written
	partial bool   // the next message is already partly written
	shown   string // text already written for it
	status  domain.ConnectionStatus
	seen    bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) state(s session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.seen || s.Status != p.status {
		p.seen = true
		p.status = s.Status
		fmt.Fprintln(p.out, statusStyle.Render("["+s.Status.String()+"]"))
	}

	for i := p.printed; i < len(s.History); i++ {
		msg := s.History[i]
		inProgress := i == len(s.History)-1 && s.Phase == domain.PhaseStreaming && msg.Role == domain.RoleAssistant

		switch {
		case !p.partial:
			fmt.Fprintf(p.out, "%s: %s", roleLabel(msg.Role), msg.Text)
		case strings.HasPrefix(msg.Text, p.shown):
			fmt.Fprint(p.out, msg.Text[len(p.shown):])
		default:
			// An error replaced the partial text.
			fmt.Fprintf(p.out, "\n%s: %s", roleLabel(msg.Role), msg.Text)
		}

		if inProgress {
			p.partial = true
			p.shown = msg.Text
			return
		}
		if msg.IsError {
			fmt.Fprint(p.out, " "+errorStyle.Render("(error)"))
		}
		fmt.Fprintln(p.out)
		p.printed++
		p.partial = false
		p.shown = ""
	}
}

func (p *printer) suggestions(visible []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(visible) == 0 {
		return
	}
	var b strings.Builder
	for i, q := range visible {
		fmt.Fprintf(&b, "  /%d %s\n", i+1, q)
	}
	fmt.Fprint(p.out, suggestionStyle.Render("Suggestions:\n"+strings.TrimRight(b.String(), "\n"))+"\n")
}

func (p *printer) notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, statusStyle.Render(fmt.Sprintf(format, args...)))
}

func (p *printer) error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, errorStyle.Render(err.Error()))
}
