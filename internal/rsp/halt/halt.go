// Package halt implements the halt/run controller (C6): halt, resume,
// debug/exception/idle state inspection, and software/hardware reset.
//
// Polling here follows the same bounded-loop idiom the teacher's
// cont/stepLocked use (lock, check a condition, sleep, repeat up to a
// bound) rather than blocking indefinitely, so a stuck target cannot wedge
// the dispatcher loop.
package halt

import (
	"context"
	"time"

	"github.com/GodelMachine/epiphany-libs/internal/target"
)

// verifyInterval and verifyAttempts bound Halt's debug-state check to
// about one second, per §4.6.
const (
	verifyInterval = 50 * time.Millisecond
	verifyAttempts = 20
)

// Signal is a GDB stop/exception signal number, used the way §4.6 and §7
// describe exception_state's mapping.
type Signal uint8

const (
	SignalNone Signal = 0
	SignalTrap Signal = 5
	SignalHup  Signal = 1
	SignalBus  Signal = 10
	SignalFPE  Signal = 8
	SignalIll  Signal = 4
	SignalAbrt Signal = 6
	SignalQuit Signal = 3
)

func debugCmdAddr() uint32 { return target.CoreDebugCmd }
func debugAddr() uint32    { return target.CoreDebug }
func statusAddr() uint32   { return target.CoreConfig + target.OffStatus*4 }

// Halt writes the HALT command and verifies debug state is reached within
// the verification window. ok is false if the target never reports
// halted; the dispatcher should then report SignalHup.
func Halt(ctx context.Context, ctl target.Control) (ok bool) {
	if !ctl.WriteMem32(ctx, debugCmdAddr(), target.DebugCmdHalt) {
		return false
	}

	for i := 0; i < verifyAttempts; i++ {
		if InDebugState(ctx, ctl) {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(verifyInterval):
		}
	}

	return InDebugState(ctx, ctl)
}

// Resume writes RUN to the debug-command register. The caller is
// responsible for tracking the session's "running" flag; Resume itself
// has no state beyond the single register write.
func Resume(ctx context.Context, ctl target.Control) bool {
	return ctl.WriteMem32(ctx, debugCmdAddr(), target.DebugCmdRun)
}

// InDebugState reads DEBUG and requires both the halt bit and the
// out-tran-false bit to be set.
func InDebugState(ctx context.Context, ctl target.Control) bool {
	v, ok := ctl.ReadMem32(ctx, debugAddr())
	if !ok {
		return false
	}

	haltSet := v&(1<<target.DebugHaltBit) != 0
	outTranFalse := v&(1<<target.DebugOutTranFalseBit) != 0

	return haltSet && outTranFalse
}

// ExceptionState reads STATUS bits [18:16] and maps the target's
// exception cause to a GDB signal, per §4.6's table.
func ExceptionState(ctx context.Context, ctl target.Control) (sig Signal, ok bool) {
	v, ok := ctl.ReadMem32(ctx, statusAddr())
	if !ok {
		return SignalNone, false
	}

	cause := (v >> target.StatusExceptionShift) & target.StatusExceptionMask

	switch cause {
	case target.ExcNone:
		return SignalNone, true
	case target.ExcUnalignedAcc:
		return SignalBus, true
	case target.ExcFPU:
		return SignalFPE, true
	case target.ExcUnimplemented:
		return SignalIll, true
	default:
		return SignalAbrt, true
	}
}

// IsIdle reports whether STATUS's idle bit is set.
func IsIdle(ctx context.Context, ctl target.Control) (idle bool, ok bool) {
	v, ok := ctl.ReadMem32(ctx, statusAddr())
	if !ok {
		return false, false
	}

	return v&(1<<target.StatusIdleBit) != 0, true
}

// InterruptsEnabled reports whether STATUS bit 1 (global interrupt
// disable) is clear, i.e. interrupts are currently allowed to dispatch.
func InterruptsEnabled(ctx context.Context, ctl target.Control) (enabled bool, ok bool) {
	v, ok := ctl.ReadMem32(ctx, statusAddr())
	if !ok {
		return false, false
	}

	return v&(1<<target.StatusGlobalIntDisableBit) == 0, true
}

// swResetPulses is how many times §4.6 requires writing 1 to
// MESH_SWRESET before the final 0.
const swResetPulses = 12

// SWReset writes 1 to the mesh software-reset register twelve times, then
// 0, per §4.6.
func SWReset(ctx context.Context, ctl target.Control) bool {
	for i := 0; i < swResetPulses; i++ {
		if !ctl.WriteMem32(ctx, target.MeshSWReset, 1) {
			return false
		}
	}

	return ctl.WriteMem32(ctx, target.MeshSWReset, 0)
}

// HWReset delegates to the target's platform reset.
func HWReset(ctx context.Context, ctl target.Control) {
	ctl.PlatformReset(ctx)
}
