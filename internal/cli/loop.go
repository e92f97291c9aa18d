package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/soyeahso/supportchat/internal/domain"
	"github.com/soyeahso/supportchat/internal/escalation"
	"github.com/soyeahso/supportchat/internal/realtime"
	"golang.org/x/sync/errgroup"
)

// errStop ends an interactive run without reporting a failure.
var errStop = errors.New("stop")

const helpText = "commands: /typing  /human (customer)  /intervene (watcher)  /quit"

// chatLoop feeds stdin lines to the current view until the user quits,
// stdin ends or the socket closes.
type chatLoop struct {
	kit *viewKit
	in  io.Reader

	mu      sync.Mutex
	current *realtime.View
}

func (l *chatLoop) view() *realtime.View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// swap makes v current and closes the previous view.
func (l *chatLoop) swap(v *realtime.View) {
	l.mu.Lock()
	old := l.current
	l.current = v
	l.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (l *chatLoop) run(ctx context.Context) error {
	lines := make(chan string)
	stop := make(chan struct{})
	defer close(stop)
	go scanLines(l.in, lines, stop)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errStop
				}
				if err := l.handle(ctx, line); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		for {
			v := l.view()
			select {
			case <-ctx.Done():
				return nil
			case <-v.Done():
				if l.view() == v {
					return errStop
				}
			}
		}
	})

	err := g.Wait()
	if v := l.view(); v != nil {
		v.Close()
	}
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

// scanLines is not part of the group: a blocked stdin read cannot be
// interrupted, so it is abandoned once stop closes.
func scanLines(in io.Reader, out chan<- string, stop <-chan struct{}) {
	defer close(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case out <- sc.Text():
		case <-stop:
			return
		}
	}
}

func (l *chatLoop) handle(ctx context.Context, line string) error {
	v := l.view()
	cmd := strings.TrimSpace(line)

	var err error
	switch {
	case cmd == "":
		return nil
	case cmd == "/quit":
		return errStop
	case cmd == "/help":
		l.kit.printer.Printf(helpText)
		return nil
	case cmd == "/typing":
		err = v.SendTyping()
	case cmd == "/human":
		err = v.RequestHuman()
	case cmd == "/intervene":
		err = l.intervene(ctx)
	case strings.HasPrefix(cmd, "/"):
		l.kit.printer.Printf("unknown command %s (try /help)", cmd)
		return nil
	default:
		err = v.SendMessage(line)
	}

	switch {
	case err == nil:
	case errors.Is(err, realtime.ErrReadOnly):
		l.kit.printer.Printf("watching is read-only; use /intervene to join")
	case errors.Is(err, realtime.ErrWrongRole):
		l.kit.printer.Printf("%s is not available in this view", cmd)
	case errors.Is(err, realtime.ErrNotOpen):
		l.kit.printer.Printf("not connected")
	default:
		// the view has already surfaced send failures
		log.Debug().Err(err).Str("input", cmd).Msg("action failed")
	}
	return nil
}

// intervene escalates the watched session, takes it and replaces the
// watcher with an agent view.
func (l *chatLoop) intervene(ctx context.Context) error {
	v := l.view()
	if v.Role() != realtime.RoleWatch {
		return realtime.ErrWrongRole
	}
	h := escalation.New(l.kit.client, l.connectAgent, log)
	b, err := h.Run(ctx, v.SessionID())
	if err != nil {
		l.kit.printer.Printf("intervention failed: %v", err)
		return nil
	}
	l.kit.printer.Printf("joined %s as %s", b.SessionID, b.AgentID)
	return nil
}

// connectAgent is the escalation Connector: it opens the agent view for a
// taken session and makes it current once its socket is up. A failed dial
// leaves the current view in place.
func (l *chatLoop) connectAgent(ctx context.Context, b domain.AgentBinding) error {
	if s, err := l.kit.client.Summary(ctx, b.SessionID); err == nil && s.Summary != "" {
		l.kit.printer.Printf("summary: %s", s.Summary)
	}

	av, err := l.kit.view(realtime.RoleAgent, b.SessionID, b.AgentID)
	if err != nil {
		return err
	}
	if err := av.Start(ctx); err != nil {
		av.Close()
		if cur := l.view(); cur != nil {
			if rerr := l.kit.record(cur.Role(), cur.SessionID(), ""); rerr != nil {
				log.Warn().Err(rerr).Msg("resuming transcript")
			}
		}
		return err
	}
	l.swap(av)
	return nil
}
