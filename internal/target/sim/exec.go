package sim

import (
	"github.com/GodelMachine/epiphany-libs/internal/target"
	"github.com/GodelMachine/epiphany-libs/internal/target/isa"
)

// maxInstrPerResume bounds a single RUN command's interpretation loop.
// A program that runs this long without hitting a planted BKPT or a
// TRAP is, for this simulator's purposes, just running — the core is
// left not halted, exactly as real hardware would leave it mid-flight
// when the debugger next polls.
const maxInstrPerResume = 1 << 16

// handleDebugCmd implements what writing to CORE_DEBUGCMD does: HALT
// sets the halt bits immediately (there is no concurrency here, so a
// halt request always "catches" the core instantly); RUN executes
// instructions synchronously, within this single call, until the core
// hits a stopping condition or the bound above is reached.
func (c *core) handleDebugCmd(v uint32) {
	switch v {
	case target.DebugCmdHalt:
		c.setHalted(true)
	case target.DebugCmdRun:
		c.setHalted(false)
		c.run()
	}
}

// run interprets instructions starting at the current PC until a BKPT
// or TRAP halts the core, or maxInstrPerResume is exhausted.
func (c *core) run() {
	for i := 0; i < maxInstrPerResume; i++ {
		pc := c.scr[target.OffPC]

		op16, ok := c.readWord16(pc)
		if !ok {
			c.setHalted(false)

			return
		}
		op := isa.Opcode(op16)

		if op == isa.BKPT {
			c.scr[target.OffPC] = pc + 2
			c.setHalted(true)

			return
		}

		if _, trapped := isa.IsTrap(op); trapped {
			c.scr[target.OffPC] = pc + 2
			c.setHalted(true)

			return
		}

		if isa.IsIdle(op) {
			c.scr[target.OffPC] = target.IVTBase + target.IVTEntrySize

			continue
		}

		var ext isa.Opcode
		if isa.IsLong(op) {
			extWord, ok := c.readWord16(pc + 2)
			if !ok {
				c.setHalted(false)

				return
			}

			ext = isa.Opcode(extWord)
		}

		fallthroughAddr := pc + uint32(isa.Size(op))
		c.scr[target.OffPC] = c.predictTarget(pc, op, ext, fallthroughAddr)
	}

	// Bound exhausted: the core is still running, just not halted on
	// anything this simulator recognizes as a stop.
	c.setHalted(false)
}

// predictTarget mirrors the step engine's own predictTarget: the same
// immediate-branch/RTI/register-jump/fallthrough decision, made here
// against this core's own registers instead of through target.Control.
func (c *core) predictTarget(pc uint32, op, ext isa.Opcode, fallthroughAddr uint32) uint32 {
	switch {
	case isa.IsImmediateBranch(op):
		bf := isa.DecodeBranchImmediate(op, ext)

		return uint32(int32(pc) + bf.Imm)

	case isa.IsRTI(op):
		return c.scr[target.OffIRET]

	default:
		if rj, ok := isa.IsRegJump(op); ok {
			reg := isa.RegField(op)
			if rj.Long {
				reg = isa.ExtendedRegField(ext)
			}

			if reg < 0 || int(reg) >= len(c.gpr) {
				return fallthroughAddr
			}

			return c.gpr[reg]
		}

		return fallthroughAddr
	}
}
