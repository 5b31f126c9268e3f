package sim

import (
	"context"
	"testing"

	"github.com/GodelMachine/epiphany-libs/internal/target"
)

func TestNewMeshStartsHalted(t *testing.T) {
	ctx := context.Background()
	m := NewMesh(1, 1)

	v, ok := m.ReadMem32(ctx, target.CoreDebug)
	if !ok {
		t.Fatal("ReadMem32(CoreDebug) failed")
	}
	if v&(1<<target.DebugHaltBit) == 0 {
		t.Fatal("expected a freshly-built mesh to start halted")
	}
}

func TestUnwrittenMemoryReadsAsNOP(t *testing.T) {
	ctx := context.Background()
	m := NewMesh(1, 1)

	v, ok := m.ReadMem16(ctx, 0x5000)
	if !ok {
		t.Fatal("ReadMem16 failed")
	}
	if isaNOP := uint16(0x01A2); v != isaNOP {
		t.Fatalf("ReadMem16(unwritten) = %#x, want NOP %#x", v, isaNOP)
	}
}

func TestGPRAndSCRRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMesh(1, 1)

	if !m.WriteMem32(ctx, target.CoreR0+3*4, 0xDEADBEEF) {
		t.Fatal("WriteMem32(r3) failed")
	}
	v, ok := m.ReadMem32(ctx, target.CoreR0+3*4)
	if !ok || v != 0xDEADBEEF {
		t.Fatalf("ReadMem32(r3) = %#x ok=%v, want 0xDEADBEEF", v, ok)
	}

	if !m.WriteMem32(ctx, target.CoreConfig+target.OffPC*4, 0x1234) {
		t.Fatal("WriteMem32(PC) failed")
	}
	v, ok = m.ReadMem32(ctx, target.CoreConfig+target.OffPC*4)
	if !ok || v != 0x1234 {
		t.Fatalf("ReadMem32(PC) = %#x ok=%v, want 0x1234", v, ok)
	}
}

func TestSelectThreadZeroIsAny(t *testing.T) {
	m := NewMesh(2, 1)

	if !m.SetThreadGeneral(2) {
		t.Fatal("SetThreadGeneral(2) failed")
	}
	if m.active != 1 {
		t.Fatalf("active = %d, want 1", m.active)
	}

	if !m.SetThreadExecute(0) {
		t.Fatal("SetThreadExecute(0) failed")
	}
	if m.active != 0 {
		t.Fatalf("active = %d, want 0 after selecting tid 0", m.active)
	}
}

func TestSelectThreadOutOfRangeFails(t *testing.T) {
	m := NewMesh(1, 1)

	if m.SetThreadGeneral(5) {
		t.Fatal("expected out-of-range tid to fail")
	}
}

func TestResumeAdvancesPastPlainInstructions(t *testing.T) {
	ctx := context.Background()
	m := NewMesh(1, 1)

	const start = 0x100
	if !m.WriteMem32(ctx, target.CoreConfig+target.OffPC*4, start) {
		t.Fatal("seed PC failed")
	}

	const bkptAddr = start + 10
	if !m.WriteMem16(ctx, bkptAddr, 0x01C2) {
		t.Fatal("plant BKPT failed")
	}

	if !m.WriteMem32(ctx, target.CoreDebugCmd, target.DebugCmdRun) {
		t.Fatal("write RUN failed")
	}

	pc, ok := m.ReadMem32(ctx, target.CoreConfig+target.OffPC*4)
	if !ok {
		t.Fatal("read PC after run failed")
	}
	if pc != bkptAddr+2 {
		t.Fatalf("PC = %#x, want %#x", pc, bkptAddr+2)
	}

	debug, _ := m.ReadMem32(ctx, target.CoreDebug)
	if debug&(1<<target.DebugHaltBit) == 0 {
		t.Fatal("expected core halted after hitting BKPT")
	}
}

func TestResetWriteCountTracksMeshSWReset(t *testing.T) {
	ctx := context.Background()
	m := NewMesh(1, 1)

	for i := 0; i < 3; i++ {
		if !m.WriteMem32(ctx, target.MeshSWReset, 1) {
			t.Fatal("write MeshSWReset failed")
		}
	}

	if got := m.ResetWriteCount(); got != 3 {
		t.Fatalf("ResetWriteCount() = %d, want 3", got)
	}
}
