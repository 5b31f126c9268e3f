// Package rsp implements the RSP dispatcher (C8): the session loop, the
// packet-letter switch, the q/Q/v subsystems, and Ctrl-C handling. This
// is the component everything else in internal/rsp/* exists to serve.
package rsp

import (
	"log"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/breakpoint"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/step"
	"github.com/GodelMachine/epiphany-libs/internal/target"
)

// LogMask is a bitmask of the verbosity categories spec.md §6 names.
// Modeled as an explicit field on Context rather than a package-level
// global, per DESIGN NOTES §9's "model the global verbose flag as an
// explicit log-level field" instruction.
type LogMask uint8

const (
	LogStopResume LogMask = 1 << iota
	LogTrapAndRSPCon
	LogCtrlCWait
	LogTranDetail
)

func (m LogMask) has(bit LogMask) bool { return m&bit != 0 }

// Config carries the session-wide settings the CLI entrypoint derives
// from its flags: verbosity, halt-on-attach, the semihosting tty sink,
// and the packet buffer capacity advertised via qSupported.
type Config struct {
	Verbose      LogMask
	HaltOnAttach bool
	TTYOut       func(s string) // nil disables trap-7 printf semihosting
	PacketCap    int
	Version      string
}

// DefaultPacketCap is advertised by qSupported as PacketSize=4000; it is
// comfortably larger than any reply this server formats (a full register burst is
// Count*8 hex chars, well under this).
const DefaultPacketCap = 0x4000

// Context is one session's state: everything spec.md §3 describes as
// "server context" plus the components that operate on it. One Context
// exists per accepted connection — sessions never share a breakpoint
// table, IVT shadow, or thread selection, so no Context-level locking is
// needed (spec.md §5's single-threaded-per-session model).
type Context struct {
	Ctl  target.Control
	BP   *breakpoint.Table
	Step *step.Engine

	// generalTID/executeTID are spec.md §3's two thread selections: one
	// for 'g'/'G'/'p'/'P'/'m'/'M' (general/register/memory) packets, one
	// for 'c'/'s' (execution) packets. 0 means "any" (core 0's channel).
	generalTID uint16
	executeTID uint16

	running bool // set while the target is between resume and halt
	noAck   bool // QStartNoAckMode negotiated

	cfg Config
	log *log.Logger
}

// NewContext builds a fresh per-connection Context over ctl.
func NewContext(ctl target.Control, cfg Config, logger *log.Logger) *Context {
	if cfg.PacketCap == 0 {
		cfg.PacketCap = DefaultPacketCap
	}

	bp := breakpoint.New()

	return &Context{
		Ctl:  ctl,
		BP:   bp,
		Step: step.NewEngine(ctl, bp),
		cfg:  cfg,
		log:  logger,
	}
}

func (c *Context) logf(bit LogMask, format string, args ...interface{}) {
	if c.log == nil || !c.cfg.Verbose.has(bit) {
		return
	}

	c.log.Printf(format, args...)
}

// selectThread applies an H<op><tid> request to the right selection and
// steers the target gateway's own thread-select state to match.
func (c *Context) selectThread(op byte, tid uint16) bool {
	switch op {
	case 'g':
		if !c.Ctl.SetThreadGeneral(tid) {
			return false
		}

		c.generalTID = tid

		return true
	case 'c':
		if !c.Ctl.SetThreadExecute(tid) {
			return false
		}

		c.executeTID = tid

		return true
	default:
		return false
	}
}
