// Package step implements the single-step synthesis engine (C5): since
// the target has no hardware step bit, one instruction of progress is
// produced by predicting where control flow goes next, planting
// temporary breakpoints there, resuming, and unwinding once halted.
//
// The polling shape (lock implicit in the caller's single-threaded loop,
// check a condition, bounded sleep, repeat) follows the teacher's
// stepLocked/cont state machine; everything about *which* addresses to
// plant breakpoints at is new, driven by internal/target/isa decoding
// the real instruction encoding the teacher's toy line-table stepper
// never had to deal with.
package step

import (
	"context"
	"time"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/breakpoint"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/coreregs"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/halt"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/rsperr"
	"github.com/GodelMachine/epiphany-libs/internal/target"
	"github.com/GodelMachine/epiphany-libs/internal/target/isa"
)

const (
	stepPollInterval = 20 * time.Millisecond
	stepPollAttempts = 50

	continuePollInterval = 300 * time.Millisecond
	continuePollAttempts = 3

	// bkptSize is the width, in bytes, of the BKPT opcode every planted
	// breakpoint replaces — always 2, even when it sits at the start of
	// a 32-bit instruction (spec §3: saved_word is a u16).
	bkptSize = 2

	// backtrackSlots bounds continue's search for a NOP-padded TRAP
	// behind the halted PC, per §4.5.2.
	backtrackSlots = 9
)

// Kind distinguishes the two ways Step/Continue can end: an ordinary
// TRAP-signal stop, or a semihosting request that still needs an
// F-reply from GDB before the target resumes.
type Kind int

const (
	StopTrap Kind = iota
	StopSemihost
)

// Result is what a completed Step or Continue reports to the dispatcher.
// Signal is only meaningful for StopTrap: the mapped exception signal per
// §7 if the halted core reports one pending, SignalTrap otherwise.
type Result struct {
	Kind    Kind
	PC      uint32
	TrapNum uint8
	Signal  halt.Signal
}

// Engine owns the IVT shadow buffer and shares the breakpoint table and
// target gateway with the rest of the session context.
type Engine struct {
	Ctl target.Control
	BP  *breakpoint.Table

	ivtShadow []byte
}

// NewEngine builds a step engine over ctl and bp, sized for the target's
// fixed IVT region.
func NewEngine(ctl target.Control, bp *breakpoint.Table) *Engine {
	return &Engine{
		Ctl:       ctl,
		BP:        bp,
		ivtShadow: make([]byte, target.IVTEntryCount*int(target.IVTEntrySize)),
	}
}

// planted records one breakpoint the engine planted (or found already
// planted by the user) for the duration of a single Step call.
type planted struct {
	addr       uint32
	wasUsers   bool // true if a user breakpoint already lived here
}

// Step performs one instruction of progress from addr (or the current PC
// if addr is nil), per §4.5.
func (e *Engine) Step(ctx context.Context, addr *uint32) (Result, *rsperr.Error) {
	if !halt.InDebugState(ctx, e.Ctl) {
		return Result{}, rsperr.Bus("step: target not in debug state")
	}

	if addr != nil {
		if !coreregs.Write(ctx, e.Ctl, coreregs.RegPC, *addr) {
			return Result{}, rsperr.Bus("step: failed to set PC")
		}
	}

	p, ok := coreregs.Read(ctx, e.Ctl, coreregs.RegPC)
	if !ok {
		return Result{}, rsperr.Bus("step: failed to read PC")
	}

	op, ok := e.readOpcode16(ctx, p)
	if !ok {
		return Result{}, rsperr.Bus("step: failed to fetch opcode")
	}

	if isa.IsIdle(op) {
		return e.stepIdle(ctx, p)
	}

	if n, ok := isa.IsTrap(op); ok {
		if !coreregs.Write(ctx, e.Ctl, coreregs.RegPC, p+2) {
			return Result{}, rsperr.Bus("step: failed to advance PC past trap")
		}

		return Result{Kind: StopSemihost, PC: p + 2, TrapNum: n}, nil
	}

	return e.stepGeneral(ctx, p, op)
}

func (e *Engine) stepGeneral(ctx context.Context, p uint32, op isa.Opcode) (Result, *rsperr.Error) {
	long := isa.IsLong(op)

	var ext isa.Opcode
	if long {
		var ok bool
		ext, ok = e.readOpcode16(ctx, p+2)
		if !ok {
			return Result{}, rsperr.Bus("step: failed to fetch extension word")
		}
	}

	fallthroughAddr := p + uint32(isa.Size(op))
	branchTarget := e.predictTarget(ctx, p, op, ext, fallthroughAddr)

	ft, rerr := e.plantTemp(ctx, fallthroughAddr)
	if rerr != nil {
		return Result{}, rerr
	}

	var bt *planted
	if branchTarget != fallthroughAddr {
		bt, rerr = e.plantTemp(ctx, branchTarget)
		if rerr != nil {
			e.cleanupTemp(ctx, ft)

			return Result{}, rerr
		}
	}

	e.shadowAndPlantIVT(ctx, p)

	if !halt.Resume(ctx, e.Ctl) {
		e.restoreIVT(ctx)
		e.cleanupTemp(ctx, ft)
		e.cleanupTemp(ctx, bt)

		return Result{}, rsperr.Bus("step: failed to resume")
	}

	halted := e.pollHalted(ctx, stepPollInterval, stepPollAttempts)
	e.restoreIVT(ctx)

	if !halted {
		e.cleanupTemp(ctx, ft)
		e.cleanupTemp(ctx, bt)

		return Result{}, rsperr.HaltFailed("step: target did not halt")
	}

	observed, ok := coreregs.Read(ctx, e.Ctl, coreregs.RegPC)
	if !ok {
		e.cleanupTemp(ctx, ft)
		e.cleanupTemp(ctx, bt)

		return Result{}, rsperr.Bus("step: failed to read PC after halt")
	}

	corrected := observed - bkptSize

	if rerr := e.checkUnwindInvariant(ctx, corrected, branchTarget); rerr != nil {
		return Result{}, rerr
	}

	e.cleanupTemp(ctx, ft)
	e.cleanupTemp(ctx, bt)

	sig := e.classifySignal(ctx)

	if !coreregs.Write(ctx, e.Ctl, coreregs.RegPC, corrected) {
		return Result{}, rsperr.Bus("step: failed to write back corrected PC")
	}

	return Result{Kind: StopTrap, PC: corrected, Signal: sig}, nil
}

// classifySignal reports the stop signal for a just-halted core: the
// exception cause mapped per §7 if one is pending, TRAP otherwise — the
// path that makes halt.ExceptionState's mapping actually reach GDB.
func (e *Engine) classifySignal(ctx context.Context) halt.Signal {
	sig, ok := halt.ExceptionState(ctx, e.Ctl)
	if !ok || sig == halt.SignalNone {
		return halt.SignalTrap
	}

	return sig
}

// predictTarget implements §4.5 step 5: decide where control flow goes
// after op, defaulting to fallthroughAddr when op is not a branch/jump.
func (e *Engine) predictTarget(ctx context.Context, p uint32, op, ext isa.Opcode, fallthroughAddr uint32) uint32 {
	switch {
	case isa.IsImmediateBranch(op):
		bf := isa.DecodeBranchImmediate(op, ext)

		return uint32(int32(p) + bf.Imm)

	case isa.IsRTI(op):
		iret, ok := coreregs.Read(ctx, e.Ctl, coreregs.RegIRET)
		if !ok {
			return fallthroughAddr
		}

		return iret

	default:
		if rj, ok := isa.IsRegJump(op); ok {
			regField := isa.RegField(op)
			if rj.Long {
				regField = isa.ExtendedRegField(ext)
			}

			v, ok := coreregs.Read(ctx, e.Ctl, int(regField))
			if !ok {
				return fallthroughAddr
			}

			return v
		}

		return fallthroughAddr
	}
}

// stepIdle implements §4.5.1: if global interrupts are enabled and one is
// actually latched and unmasked, the next dispatched instruction will be
// the ISR entry — handle with the same shadow-and-resume shape as the
// general case, except every non-reset IVT entry gets a breakpoint, not
// just the fallthrough/branch pair. Otherwise nothing will ever dispatch
// from IDLE, so step reports the stop without resuming at all. In either
// case the reported PC is the pre-idle PC.
func (e *Engine) stepIdle(ctx context.Context, p uint32) (Result, *rsperr.Error) {
	if !e.interruptPending(ctx) {
		return Result{Kind: StopTrap, PC: p, Signal: halt.SignalTrap}, nil
	}

	e.shadowAndPlantIVT(ctx, p)

	if !halt.Resume(ctx, e.Ctl) {
		e.restoreIVT(ctx)

		return Result{}, rsperr.Bus("step: failed to resume from idle")
	}

	halted := e.pollHalted(ctx, stepPollInterval, stepPollAttempts)
	e.restoreIVT(ctx)

	if !halted {
		return Result{}, rsperr.HaltFailed("step: target did not wake from idle")
	}

	sig := e.classifySignal(ctx)

	if !coreregs.Write(ctx, e.Ctl, coreregs.RegPC, p) {
		return Result{}, rsperr.Bus("step: failed to restore pre-idle PC")
	}

	return Result{Kind: StopTrap, PC: p, Signal: sig}, nil
}

// interruptPending reports whether STATUS and IMASK/ILAT together mean an
// interrupt handler is actually about to dispatch out of IDLE: global
// interrupts enabled (halt.InterruptsEnabled) and at least one latched,
// unmasked request ((~IMASK) & ILAT != 0), per §4.5.1.
func (e *Engine) interruptPending(ctx context.Context) bool {
	enabled, ok := halt.InterruptsEnabled(ctx, e.Ctl)
	if !ok || !enabled {
		return false
	}

	ilat, ok := coreregs.Read(ctx, e.Ctl, coreregs.RegILAT)
	if !ok {
		return false
	}

	imask, ok := coreregs.Read(ctx, e.Ctl, coreregs.RegIMASK)
	if !ok {
		return false
	}

	return (^imask)&ilat != 0
}

// checkUnwindInvariant implements §4.5 step 10's assertion: either the
// corrected address has a known saved word in the breakpoint table, or
// the fetched word at the predicted branch target is still BKPT (the
// core never branched, because the fallthrough bp fired instead).
func (e *Engine) checkUnwindInvariant(ctx context.Context, corrected, branchTarget uint32) *rsperr.Error {
	if _, ok := e.BP.Lookup(breakpoint.KindSoftware, corrected); ok {
		return nil
	}

	op, ok := e.readOpcode16(ctx, branchTarget)
	if ok && op == isa.BKPT {
		return nil
	}

	return rsperr.Invariant("step: halted at unexpected address with no matching breakpoint")
}

// plantTemp plants a BKPT at addr, saving whatever was there — unless a
// breakpoint (the user's or a still-pending engine one) is already
// planted at addr, in which case it is left untouched and marked
// wasUsers so cleanupTemp knows not to remove it.
func (e *Engine) plantTemp(ctx context.Context, addr uint32) (*planted, *rsperr.Error) {
	if _, exists := e.BP.LookupAddr(addr); exists {
		return &planted{addr: addr, wasUsers: true}, nil
	}

	saved, ok := e.readOpcode16(ctx, addr)
	if !ok {
		return nil, rsperr.Bus("step: failed to read instruction before planting breakpoint")
	}

	if !e.Ctl.WriteMem16(ctx, addr, uint16(isa.BKPT)) {
		return nil, rsperr.Bus("step: failed to plant breakpoint")
	}

	e.BP.Add(breakpoint.KindSoftware, addr, uint32(saved), bkptSize)

	return &planted{addr: addr}, nil
}

// cleanupTemp removes and restores a breakpoint plantTemp planted, doing
// nothing if p is nil or the breakpoint there predates this step.
func (e *Engine) cleanupTemp(ctx context.Context, p *planted) {
	if p == nil || p.wasUsers {
		return
	}

	entry, ok := e.BP.Remove(breakpoint.KindSoftware, p.addr)
	if ok {
		e.Ctl.WriteMem16(ctx, p.addr, uint16(entry.Saved))
	}
}

// shadowAndPlantIVT implements §4.5 step 7: copy the IVT region into the
// shadow buffer, then plant a raw BKPT at every entry except entry 0
// (reset) and any entry that coincides with excludeAddr. These are not
// recorded in the breakpoint table — their lifecycle belongs entirely to
// the in-progress step, restored verbatim by restoreIVT.
func (e *Engine) shadowAndPlantIVT(ctx context.Context, excludeAddr uint32) {
	e.Ctl.ReadBurst(ctx, target.IVTBase, e.ivtShadow)

	for i := 1; i < target.IVTEntryCount; i++ {
		addr := target.IVTBase + uint32(i)*target.IVTEntrySize
		if addr == excludeAddr {
			continue
		}

		e.Ctl.WriteMem16(ctx, addr, uint16(isa.BKPT))
	}
}

// restoreIVT writes the shadow buffer back verbatim.
func (e *Engine) restoreIVT(ctx context.Context) {
	e.Ctl.WriteBurst(ctx, target.IVTBase, e.ivtShadow)
}

func (e *Engine) readOpcode16(ctx context.Context, addr uint32) (isa.Opcode, bool) {
	v, ok := e.Ctl.ReadMem16(ctx, addr)

	return isa.Opcode(v), ok
}

// Continue implements §4.5.2's first half: optionally set PC, resume,
// and perform one bounded poll. stillRunning is true if the target
// hadn't halted by the time the poll bound was reached — the caller
// (the dispatcher's break-poll loop) should check for a Ctrl-C request
// and, absent one, call PollContinue again rather than re-resuming.
func (e *Engine) Continue(ctx context.Context, addr *uint32) (Result, bool, *rsperr.Error) {
	if addr != nil {
		if !coreregs.Write(ctx, e.Ctl, coreregs.RegPC, *addr) {
			return Result{}, false, rsperr.Bus("continue: failed to set PC")
		}
	}

	if !halt.Resume(ctx, e.Ctl) {
		return Result{}, false, rsperr.Bus("continue: failed to resume")
	}

	return e.PollContinue(ctx)
}

// PollContinue performs one bounded poll of the already-running target
// and, once halted, applies §4.5.2's BKPT/TRAP classification of the
// observed PC.
func (e *Engine) PollContinue(ctx context.Context) (Result, bool, *rsperr.Error) {
	if !e.pollHalted(ctx, continuePollInterval, continuePollAttempts) {
		return Result{}, true, nil
	}

	observed, ok := coreregs.Read(ctx, e.Ctl, coreregs.RegPC)
	if !ok {
		return Result{}, false, rsperr.Bus("continue: failed to read PC after halt")
	}

	pcMinus2 := observed - bkptSize

	if op, ok := e.readOpcode16(ctx, pcMinus2); ok && op == isa.BKPT {
		if _, known := e.BP.Lookup(breakpoint.KindSoftware, pcMinus2); known {
			coreregs.Write(ctx, e.Ctl, coreregs.RegPC, pcMinus2)

			return Result{Kind: StopTrap, PC: pcMinus2, Signal: e.classifySignal(ctx)}, false, nil
		}
	}

	for i := 1; i <= backtrackSlots; i++ {
		addr := observed - uint32(bkptSize*i)

		op, ok := e.readOpcode16(ctx, addr)
		if !ok {
			break
		}

		if n, isTrap := isa.IsTrap(op); isTrap {
			return Result{Kind: StopSemihost, PC: addr, TrapNum: n}, false, nil
		}
	}

	return Result{Kind: StopTrap, PC: observed, Signal: e.classifySignal(ctx)}, false, nil
}

// pollHalted polls InDebugState up to attempts times, sleeping interval
// between checks, returning true as soon as the target halts.
func (e *Engine) pollHalted(ctx context.Context, interval time.Duration, attempts int) bool {
	for i := 0; i < attempts; i++ {
		if halt.InDebugState(ctx, e.Ctl) {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}

	return halt.InDebugState(ctx, e.Ctl)
}
