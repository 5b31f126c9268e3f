package halt

import (
	"context"
	"testing"

	"github.com/GodelMachine/epiphany-libs/internal/target"
	"github.com/GodelMachine/epiphany-libs/internal/target/sim"
)

func TestHaltThenInDebugState(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	if !Halt(ctx, mesh) {
		t.Fatal("Halt failed")
	}
	if !InDebugState(ctx, mesh) {
		t.Fatal("expected InDebugState true after Halt")
	}
}

func TestResumeClearsHaltBit(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	if !Halt(ctx, mesh) {
		t.Fatal("Halt failed")
	}
	if !Resume(ctx, mesh) {
		t.Fatal("Resume failed")
	}

	v, ok := mesh.ReadMem32(ctx, target.CoreDebug)
	if !ok {
		t.Fatal("ReadMem32(CoreDebug) failed")
	}
	if v&(1<<target.DebugHaltBit) != 0 {
		t.Fatalf("expected halt bit clear after Resume, DEBUG=%#x", v)
	}
}

func TestExceptionStateMapsCauses(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	cases := []struct {
		cause uint32
		want  Signal
	}{
		{target.ExcNone, SignalNone},
		{target.ExcUnalignedAcc, SignalBus},
		{target.ExcFPU, SignalFPE},
		{target.ExcUnimplemented, SignalIll},
		{0x5, SignalAbrt},
	}

	for _, c := range cases {
		status := c.cause << target.StatusExceptionShift
		if !mesh.WriteMem32(ctx, target.CoreConfig+target.OffStatus*4, status) {
			t.Fatalf("setup: failed to seed STATUS for cause %#x", c.cause)
		}

		got, ok := ExceptionState(ctx, mesh)
		if !ok {
			t.Fatalf("ExceptionState failed for cause %#x", c.cause)
		}
		if got != c.want {
			t.Fatalf("cause %#x: got signal %d, want %d", c.cause, got, c.want)
		}
	}
}

func TestSWResetWritesTwelvePulsesThenZero(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	if !SWReset(ctx, mesh) {
		t.Fatal("SWReset failed")
	}
	if got := mesh.ResetWriteCount(); got != swResetPulses+1 {
		t.Fatalf("ResetWriteCount() = %d, want %d", got, swResetPulses+1)
	}
}

func TestInterruptsEnabled(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	if !mesh.WriteMem32(ctx, target.CoreConfig+target.OffStatus*4, 0) {
		t.Fatal("setup failed")
	}
	enabled, ok := InterruptsEnabled(ctx, mesh)
	if !ok || !enabled {
		t.Fatalf("expected interrupts enabled with STATUS=0, got enabled=%v ok=%v", enabled, ok)
	}

	if !mesh.WriteMem32(ctx, target.CoreConfig+target.OffStatus*4, 1<<target.StatusGlobalIntDisableBit) {
		t.Fatal("setup failed")
	}
	enabled, ok = InterruptsEnabled(ctx, mesh)
	if !ok || enabled {
		t.Fatalf("expected interrupts disabled, got enabled=%v ok=%v", enabled, ok)
	}
}
