// Package semihost implements the semihosting trap bridge (C7): it turns
// a TRAP instruction's register state into a GDB File-I/O request
// string, and applies the matching F-reply back onto the registers.
//
// No example in the retrieved pack implements GDB File-I/O, so this
// package is built directly from §4.7; its request/reply string-building
// follows the fmt.Sprintf-based packet construction style used
// throughout the teacher's server.go rather than any borrowed algorithm.
package semihost

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/coreregs"
	"github.com/GodelMachine/epiphany-libs/internal/target"
)

// Signal names §4.7's exit/pass/fail traps report, reusing the numeric
// convention halt.Signal already defines (duplicated here as plain
// untyped constants rather than imported from the halt package).
const (
	SignalQuit = 3
	SignalTrap = 5
)

const maxPathname = 1024

// Request is a fully-built GDB File-I/O request, ready to frame as an
// "F..." RSP packet by the dispatcher.
type Request struct {
	// Body is the request payload after the leading 'F', e.g.
	// "write,1,8000,5". Empty when Stop is set instead.
	Body string

	// Stop is set for trap numbers 3/4/5 (exit/pass/fail), which report
	// a signal directly rather than going through GDB's File-I/O.
	Stop   bool
	Signal int
}

// Build implements §4.7's table: given the trap number n observed by the
// step engine and a target to read argument registers/memory from, it
// produces the request to send GDB (or a direct stop signal for
// exit/pass/fail), or handles trap 7 locally against tty if configured.
func Build(ctx context.Context, ctl target.Control, n uint8, tty io.Writer) (Request, bool) {
	r0, ok0 := coreregs.Read(ctx, ctl, 0)
	r1, ok1 := coreregs.Read(ctx, ctl, 1)
	r2, ok2 := coreregs.Read(ctx, ctl, 2)
	r3, ok3 := coreregs.Read(ctx, ctl, 3)

	switch n {
	case 0: // write
		if !ok0 || !ok1 || !ok2 {
			return Request{}, false
		}

		return Request{Body: fmt.Sprintf("write,%x,%x,%x", r0, r1, r2)}, true

	case 1: // read
		if !ok0 || !ok1 || !ok2 {
			return Request{}, false
		}

		return Request{Body: fmt.Sprintf("read,%x,%x,%x", r0, r1, r2)}, true

	case 2: // open
		if !ok0 || !ok1 {
			return Request{}, false
		}

		path, ok := readCString(ctx, ctl, r0, maxPathname)
		if !ok {
			return Request{}, false
		}

		return Request{Body: fmt.Sprintf("open,%x/%x,%x,%o", r0, len(path), r1, 0o600)}, true

	case 3: // exit
		return Request{Stop: true, Signal: SignalQuit}, true

	case 4: // pass
		return Request{Stop: true, Signal: SignalTrap}, true

	case 5: // fail
		return Request{Stop: true, Signal: SignalQuit}, true

	case 6: // close
		if !ok0 {
			return Request{}, false
		}

		return Request{Body: fmt.Sprintf("close,%x", r0)}, true

	case 7: // other
		if !ok0 || !ok1 || !ok2 || !ok3 {
			return Request{}, false
		}

		if tty != nil {
			if handlePrintf(ctx, ctl, tty, r0, r1, r2) {
				return Request{}, true
			}
		}

		return buildOtherDispatch(r3, r0, r1, r2)

	default:
		return Request{}, false
	}
}

// buildOtherDispatch implements the no-tty fallback branch of trap 7:
// dispatch by R3 to the matching named F-request.
func buildOtherDispatch(call, r0, r1, r2 uint32) (Request, bool) {
	switch call {
	case 0:
		return Request{Body: fmt.Sprintf("close,%x", r0)}, true
	case 1:
		return Request{Body: fmt.Sprintf("open,%x,%x,%x", r0, r1, r2)}, true
	case 2:
		return Request{Body: fmt.Sprintf("read,%x,%x,%x", r0, r1, r2)}, true
	case 3:
		return Request{Body: fmt.Sprintf("write,%x,%x,%x", r0, r1, r2)}, true
	case 4:
		return Request{Body: fmt.Sprintf("lseek,%x,%x,%x", r0, r1, r2)}, true
	case 5:
		return Request{Body: fmt.Sprintf("unlink,%x", r0)}, true
	case 6:
		return Request{Body: fmt.Sprintf("stat,%x,%x", r0, r1)}, true
	case 7:
		return Request{Body: fmt.Sprintf("fstat,%x,%x", r0, r1)}, true
	default:
		return Request{}, false
	}
}

// handlePrintf implements trap 7's tty branch: R2 bytes at R0, the first
// R1 of which are a format string, the rest a packed argument blob.
// Returns true if it consumed the trap (caller never emits an F-request
// for this case — the dispatcher just resumes).
func handlePrintf(ctx context.Context, ctl target.Control, tty io.Writer, r0, r1, r2 uint32) bool {
	blob := make([]byte, r2)
	if !ctl.ReadBurst(ctx, r0, blob) {
		return false
	}
	if r1 > r2 {
		return false
	}

	format := string(blob[:r1])
	args := blob[r1:]

	var out strings.Builder
	ai := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			out.WriteByte(format[i])

			continue
		}

		i++
		switch format[i] {
		case 's':
			s, n := cStringFrom(args[ai:])
			out.WriteString(s)
			ai += n
		case 'd', 'i':
			out.WriteString(strconv.FormatInt(int64(int32(be32(args[ai:]))), 10))
			ai += 4
		case 'u':
			out.WriteString(strconv.FormatUint(uint64(be32(args[ai:])), 10))
			ai += 4
		case 'x':
			out.WriteString(strconv.FormatUint(uint64(be32(args[ai:])), 16))
			ai += 4
		case 'X':
			out.WriteString(strings.ToUpper(strconv.FormatUint(uint64(be32(args[ai:])), 16)))
			ai += 4
		case 'p':
			out.WriteString(fmt.Sprintf("0x%x", be32(args[ai:])))
			ai += 4
		case 'f':
			out.WriteString(fmt.Sprintf("%g", math.Float32frombits(be32(args[ai:]))))
			ai += 4
		case '%':
			out.WriteByte('%')
		default:
			out.WriteByte('%')
			out.WriteByte(format[i])
		}
	}

	_, err := io.WriteString(tty, out.String())

	return err == nil
}

// Apply implements §4.7's F-reply handling: parse "ret[,errno[,C]]",
// write ret into R0 and errno into R3. interrupted reports whether the C
// flag was present, meaning the dispatcher should still stop and report
// TRAP after applying the registers rather than silently resuming.
func Apply(ctx context.Context, ctl target.Control, reply string) (interrupted bool, ok bool) {
	interrupted = strings.HasSuffix(reply, ",C")
	reply = strings.TrimSuffix(reply, ",C")

	parts := strings.SplitN(reply, ",", 2)

	ret, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil {
		return false, false
	}

	var errno int64
	if len(parts) == 2 {
		errno, err = strconv.ParseInt(parts[1], 16, 64)
		if err != nil {
			return false, false
		}
	}

	if !coreregs.Write(ctx, ctl, 0, uint32(ret)) {
		return false, false
	}
	if !coreregs.Write(ctx, ctl, 3, uint32(errno)) {
		return false, false
	}

	return interrupted, true
}

func readCString(ctx context.Context, ctl target.Control, addr uint32, cap int) (string, bool) {
	var b strings.Builder
	for i := 0; i < cap; i++ {
		c, ok := ctl.ReadMem8(ctx, addr+uint32(i))
		if !ok {
			return "", false
		}
		if c == 0 {
			return b.String(), true
		}

		b.WriteByte(c)
	}

	return b.String(), true
}

func cStringFrom(buf []byte) (string, int) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), i + 1
		}
	}

	return string(buf), len(buf)
}

func be32(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}

	return binary.BigEndian.Uint32(b)
}

