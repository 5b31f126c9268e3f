package rsp

import (
	"bufio"
	"context"
	"log"
	"net"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/halt"
	"github.com/GodelMachine/epiphany-libs/internal/target"
)

// Server accepts connections and runs one Context per connection. Unlike
// the teacher's Server, which owns a single in-process program image,
// this one owns nothing beyond the target gateway and the per-connection
// config: every Context below it gets its own breakpoint table, IVT
// shadow, and thread selection, so connections never share debug state.
// Accepted connections are served concurrently, all against the one
// shared target: a second connection simply starts a fresh session
// against whatever the target happens to be doing.
type Server struct {
	Ctl    target.Control
	Config Config
	Logger *log.Logger

	// Seed, if non-nil, runs once per accepted connection right after its
	// Context is built and before the session loop starts — the hook the
	// CLI's -bp-seed file uses to pre-plant breakpoints in every fresh
	// session without this package needing to know about files or
	// fsnotify itself.
	Seed func(ctx context.Context, c *Context)
}

// NewServer builds a Server that dispatches accepted connections against
// ctl using cfg for every session.
func NewServer(ctl target.Control, cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	return &Server{Ctl: ctl, Config: cfg, Logger: logger}
}

// Serve accepts connections on ln until ctx is done or Accept fails,
// supervising the accept loop and every session goroutine under one
// errgroup.Group rather than the teacher's bare `go func(conn){...}()` —
// an Accept error or a session's I/O error is reported rather than
// silently swallowed, and Wait returns once the listener is closed and
// every in-flight session has ended. The caller is expected to close ln
// when ctx is done (the teacher's accept-loop pattern).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					return err
				}
			}

			g.Go(func() error {
				return s.HandleConn(gctx, conn)
			})
		}
	})

	return g.Wait()
}

// HandleConn runs one RSP session over conn to completion: read a
// packet, ack or nack it, dispatch it, write the reply, repeat until the
// client sends 'k', 'D', or the connection is lost. A step-engine
// invariant violation (errorReply's panic, per §7) is caught here and
// turned into process termination rather than a dropped connection —
// these indicate a logic bug in the step engine, not a condition any
// client retry could recover from.
func (s *Server) HandleConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			s.Logger.Fatalf("rsp: invariant violation, terminating: %v", r)
		}
	}()

	c := NewContext(s.Ctl, s.Config, s.Logger)

	if s.Config.HaltOnAttach {
		haltOnAttach(ctx, c)
	}

	if s.Seed != nil {
		s.Seed(ctx, c)
	}

	r := bufio.NewReader(conn)
	events := make(chan event)

	go readLoop(r, events)

	for {
		ev, ok := <-events
		if !ok {
			return nil
		}

		if ev.err != nil {
			return ev.err
		}

		if ev.brk {
			// A Ctrl-C with nothing running: RSP defines no reply for
			// this, so it is simply dropped.
			continue
		}

		if ev.nack {
			if _, werr := conn.Write([]byte("-")); werr != nil {
				return werr
			}

			continue
		}

		if !c.noAck {
			if _, werr := conn.Write([]byte("+")); werr != nil {
				return werr
			}
		}

		reply, closeConn, noReply := c.Dispatch(ctx, ev.pkt, events)

		if !noReply {
			if werr := writePacket(conn, reply); werr != nil {
				return werr
			}
		}

		if closeConn {
			return nil
		}
	}
}

// haltOnAttach implements the Config.HaltOnAttach convenience the CLI
// exposes: halt the target before the session loop starts, logging but
// otherwise ignoring failure (the client's first '?' will surface the
// real state either way).
func haltOnAttach(ctx context.Context, c *Context) {
	if !halt.Halt(ctx, c.Ctl) {
		c.logf(LogStopResume, "halt-on-attach: target did not reach debug state")

		return
	}

	c.logf(LogStopResume, "halt-on-attach: halted before first packet")
}
