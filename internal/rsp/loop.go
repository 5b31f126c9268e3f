package rsp

import (
	"context"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/halt"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/rsperr"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/step"
)

// runLoop implements §4.8's "if running, enter a break-poll loop that
// alternates between checking for the transport's break-request and
// re-invoking continue": it resumes once, then alternates a
// non-blocking check of events against another bounded poll until the
// target halts or GDB sends a Ctrl-C.
func (c *Context) runLoop(ctx context.Context, events <-chan event, addr *uint32) (step.Result, *rsperr.Error) {
	res, stillRunning, rerr := c.Step.Continue(ctx, addr)
	if rerr != nil {
		return res, rerr
	}

	for stillRunning {
		select {
		case ev, ok := <-events:
			if !ok || ev.err != nil {
				return step.Result{}, rsperr.Transport("connection lost while running")
			}

			if ev.brk {
				return c.handleBreak(ctx)
			}

			// A stray full packet or nack while the target is running;
			// GDB never does this in practice, but dropping it rather
			// than blocking keeps the loop alive either way.
		case <-ctx.Done():
			return step.Result{}, rsperr.Transport(ctx.Err().Error())
		default:
		}

		res, stillRunning, rerr = c.Step.PollContinue(ctx)
		if rerr != nil {
			return res, rerr
		}
	}

	return res, nil
}

// handleBreak implements §5's Ctrl-C cancellation policy: halt (with a
// HUP fallback reported by the caller if that fails), then classify the
// observed PC exactly as a normal continue-stop would.
func (c *Context) handleBreak(ctx context.Context) (step.Result, *rsperr.Error) {
	c.logf(LogCtrlCWait, "ctrl-c received, halting target")

	if !halt.Halt(ctx, c.Ctl) {
		return step.Result{}, rsperr.HaltFailed("ctrl-c: target did not halt")
	}

	res, stillRunning, rerr := c.Step.PollContinue(ctx)
	if rerr != nil {
		return res, rerr
	}

	if stillRunning {
		return step.Result{}, rsperr.HaltFailed("ctrl-c: target still reported running after halt")
	}

	return res, nil
}
