package step

import (
	"context"
	"testing"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/breakpoint"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/coreregs"
	"github.com/GodelMachine/epiphany-libs/internal/target"
	"github.com/GodelMachine/epiphany-libs/internal/target/isa"
	"github.com/GodelMachine/epiphany-libs/internal/target/sim"
)

func newEngine(t *testing.T) (*Engine, *sim.Mesh) {
	t.Helper()

	mesh := sim.NewMesh(1, 1)
	bp := breakpoint.New()

	return NewEngine(mesh, bp), mesh
}

func setPC(t *testing.T, ctx context.Context, mesh *sim.Mesh, v uint32) {
	t.Helper()

	if !coreregs.Write(ctx, mesh, coreregs.RegPC, v) {
		t.Fatal("setup: failed to write PC")
	}
}

func readIVT(t *testing.T, ctx context.Context, mesh *sim.Mesh) []byte {
	t.Helper()

	buf := make([]byte, target.IVTEntryCount*int(target.IVTEntrySize))
	if !mesh.ReadBurst(ctx, target.IVTBase, buf) {
		t.Fatal("setup: failed to read IVT")
	}

	return buf
}

func TestStepOverPlainInstructionLeavesNoResidue(t *testing.T) {
	ctx := context.Background()
	e, mesh := newEngine(t)

	const start = 0x2000
	if !mesh.WriteMem16(ctx, start, uint16(isa.NOP)) {
		t.Fatal("setup: failed to write instruction")
	}
	setPC(t, ctx, mesh, start)

	before := readIVT(t, ctx, mesh)

	res, rerr := e.Step(ctx, nil)
	if rerr != nil {
		t.Fatalf("Step failed: %v", rerr)
	}
	if res.Kind != StopTrap {
		t.Fatalf("Kind = %v, want StopTrap", res.Kind)
	}
	if res.PC != start+2 {
		t.Fatalf("PC = %#x, want %#x", res.PC, start+2)
	}

	if e.BP.Len() != 0 {
		t.Fatalf("expected no leaked breakpoints, got %d", e.BP.Len())
	}

	after := readIVT(t, ctx, mesh)
	if string(before) != string(after) {
		t.Fatal("IVT region changed across step")
	}
}

func TestStepWithPredictedBranchCleansUpBothSlots(t *testing.T) {
	ctx := context.Background()
	e, mesh := newEngine(t)

	const start = 0x3000
	// low3 bits = 0 (immediate branch), low nibble = 0 (16-bit form).
	// op>>8 == 0x10 sign-extends to +16, shifted left 1 == +32.
	branchOp := isa.Opcode(0x1000)
	if !mesh.WriteMem16(ctx, start, uint16(branchOp)) {
		t.Fatal("setup: failed to write instruction")
	}
	setPC(t, ctx, mesh, start)

	res, rerr := e.Step(ctx, nil)
	if rerr != nil {
		t.Fatalf("Step failed: %v", rerr)
	}
	if res.Kind != StopTrap {
		t.Fatalf("Kind = %v, want StopTrap", res.Kind)
	}

	if e.BP.Len() != 0 {
		t.Fatalf("expected both temporary breakpoints cleaned up, got %d entries", e.BP.Len())
	}

	// The fallthrough slot's original (NOP-filled) word must be restored,
	// not left as BKPT.
	op, ok := mesh.ReadMem16(ctx, start+2)
	if !ok {
		t.Fatal("failed to read fallthrough slot after step")
	}
	if isa.Opcode(op) == isa.BKPT {
		t.Fatal("fallthrough slot still holds a planted BKPT after step")
	}

	op, ok = mesh.ReadMem16(ctx, start+32)
	if !ok {
		t.Fatal("failed to read branch target slot after step")
	}
	if isa.Opcode(op) == isa.BKPT {
		t.Fatal("branch target slot still holds a planted BKPT after step")
	}
}

func TestStepPreservesExistingUserBreakpoint(t *testing.T) {
	ctx := context.Background()
	e, mesh := newEngine(t)

	const start = 0x4000
	const userBP = start + 2 // the fallthrough address

	if !mesh.WriteMem16(ctx, start, uint16(isa.NOP)) {
		t.Fatal("setup: failed to write instruction")
	}
	if !mesh.WriteMem16(ctx, userBP, 0x0102) {
		t.Fatal("setup: failed to write original word at user bp")
	}
	e.BP.Add(breakpoint.KindSoftware, userBP, 0x0102, 2)
	if !mesh.WriteMem16(ctx, userBP, uint16(isa.BKPT)) {
		t.Fatal("setup: failed to plant user breakpoint")
	}

	setPC(t, ctx, mesh, start)

	_, rerr := e.Step(ctx, nil)
	if rerr != nil {
		t.Fatalf("Step failed: %v", rerr)
	}

	entry, ok := e.BP.Lookup(breakpoint.KindSoftware, userBP)
	if !ok {
		t.Fatal("user's breakpoint was removed by the step engine")
	}
	if entry.Saved != 0x0102 {
		t.Fatalf("user's saved word corrupted: got %#x want 0x102", entry.Saved)
	}
}

func TestStepOnTrapAdvancesWithoutResuming(t *testing.T) {
	ctx := context.Background()
	e, mesh := newEngine(t)

	const start = 0x5000
	// trapLow10 pattern with trap number 2 in bits [15:10].
	trapOp := isa.Opcode(0x3E2 | (2 << 10))
	if !mesh.WriteMem16(ctx, start, uint16(trapOp)) {
		t.Fatal("setup: failed to write trap instruction")
	}
	setPC(t, ctx, mesh, start)

	res, rerr := e.Step(ctx, nil)
	if rerr != nil {
		t.Fatalf("Step failed: %v", rerr)
	}
	if res.Kind != StopSemihost {
		t.Fatalf("Kind = %v, want StopSemihost", res.Kind)
	}
	if res.TrapNum != 2 {
		t.Fatalf("TrapNum = %d, want 2", res.TrapNum)
	}
	if res.PC != start+2 {
		t.Fatalf("PC = %#x, want %#x", res.PC, start+2)
	}
}

func TestStepOnIdleReportsPreIdlePC(t *testing.T) {
	ctx := context.Background()
	e, mesh := newEngine(t)

	const start = 0x6000
	if !mesh.WriteMem16(ctx, start, uint16(isa.IDLE)) {
		t.Fatal("setup: failed to write idle instruction")
	}
	setPC(t, ctx, mesh, start)

	res, rerr := e.Step(ctx, nil)
	if rerr != nil {
		t.Fatalf("Step failed: %v", rerr)
	}
	if res.Kind != StopTrap {
		t.Fatalf("Kind = %v, want StopTrap", res.Kind)
	}
	if res.PC != start {
		t.Fatalf("PC = %#x, want pre-idle PC %#x", res.PC, start)
	}
}

func TestContinueHitsPlantedBreakpoint(t *testing.T) {
	ctx := context.Background()
	e, mesh := newEngine(t)

	const start = 0x7000
	const bpAddr = 0x7010

	if !mesh.WriteMem16(ctx, start, uint16(isa.NOP)) {
		t.Fatal("setup failed")
	}

	orig, ok := mesh.ReadMem16(ctx, bpAddr)
	if !ok {
		t.Fatal("setup: failed to read original word")
	}
	e.BP.Add(breakpoint.KindSoftware, bpAddr, uint32(orig), 2)
	if !mesh.WriteMem16(ctx, bpAddr, uint16(isa.BKPT)) {
		t.Fatal("setup: failed to plant breakpoint")
	}

	res, stillRunning, rerr := e.Continue(ctx, addrOf(start))
	if rerr != nil {
		t.Fatalf("Continue failed: %v", rerr)
	}
	if stillRunning {
		t.Fatal("expected Continue to report halted, not still running")
	}
	if res.Kind != StopTrap {
		t.Fatalf("Kind = %v, want StopTrap", res.Kind)
	}
	if res.PC != bpAddr {
		t.Fatalf("PC = %#x, want %#x", res.PC, bpAddr)
	}
}

func addrOf(v uint32) *uint32 { return &v }
