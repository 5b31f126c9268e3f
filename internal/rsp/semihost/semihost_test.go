package semihost

import (
	"bytes"
	"context"
	"testing"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/coreregs"
	"github.com/GodelMachine/epiphany-libs/internal/target/sim"
)

func TestBuildWriteRequest(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	coreregs.Write(ctx, mesh, 0, 1)
	coreregs.Write(ctx, mesh, 1, 0x8000)
	coreregs.Write(ctx, mesh, 2, 5)

	req, ok := Build(ctx, mesh, 0, nil)
	if !ok {
		t.Fatal("Build(trap 0) failed")
	}
	if req.Stop {
		t.Fatal("write request should not be a Stop")
	}
	if req.Body != "write,1,8000,5" {
		t.Fatalf("Body = %q, want %q", req.Body, "write,1,8000,5")
	}
}

func TestBuildExitIsStopQuit(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	req, ok := Build(ctx, mesh, 3, nil)
	if !ok {
		t.Fatal("Build(trap 3) failed")
	}
	if !req.Stop || req.Signal != SignalQuit {
		t.Fatalf("got %+v, want Stop with SignalQuit", req)
	}
}

func TestApplyWritesR0AndR3(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	interrupted, ok := Apply(ctx, mesh, "5,0")
	if !ok {
		t.Fatal("Apply failed")
	}
	if interrupted {
		t.Fatal("did not expect interrupted flag")
	}

	r0, _ := coreregs.Read(ctx, mesh, 0)
	r3, _ := coreregs.Read(ctx, mesh, 3)
	if r0 != 5 || r3 != 0 {
		t.Fatalf("R0=%d R3=%d, want R0=5 R3=0", r0, r3)
	}
}

func TestApplyDetectsInterruptedFlag(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	interrupted, ok := Apply(ctx, mesh, "-1,4,C")
	if !ok {
		t.Fatal("Apply failed")
	}
	if !interrupted {
		t.Fatal("expected interrupted flag to be detected")
	}
}

func TestBuildOpenReadsPathname(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	path := "/tmp/x"
	for i, c := range []byte(path) {
		mesh.WriteMem8(ctx, uint32(0x9000+i), c)
	}
	mesh.WriteMem8(ctx, uint32(0x9000+len(path)), 0)

	coreregs.Write(ctx, mesh, 0, 0x9000)
	coreregs.Write(ctx, mesh, 1, 0x241) // O_WRONLY|O_CREAT|O_TRUNC on Linux, arbitrary

	req, ok := Build(ctx, mesh, 2, nil)
	if !ok {
		t.Fatal("Build(trap 2) failed")
	}
	want := "open,9000/6,241,600"
	if req.Body != want {
		t.Fatalf("Body = %q, want %q", req.Body, want)
	}
}

func TestHandlePrintfFormatsDecimalAndString(t *testing.T) {
	ctx := context.Background()
	mesh := sim.NewMesh(1, 1)

	format := "n=%d s=%s\n"
	argBlob := []byte{0, 0, 0, 42, 'h', 'i', 0}

	base := uint32(0xA000)
	for i, c := range []byte(format) {
		mesh.WriteMem8(ctx, base+uint32(i), c)
	}
	for i, c := range argBlob {
		mesh.WriteMem8(ctx, base+uint32(len(format)+i), c)
	}

	coreregs.Write(ctx, mesh, 0, base)
	coreregs.Write(ctx, mesh, 1, uint32(len(format)))
	coreregs.Write(ctx, mesh, 2, uint32(len(format)+len(argBlob)))
	coreregs.Write(ctx, mesh, 3, 0)

	var buf bytes.Buffer
	req, ok := Build(ctx, mesh, 7, &buf)
	if !ok {
		t.Fatal("Build(trap 7) failed")
	}
	if req.Body != "" || req.Stop {
		t.Fatalf("expected consumed-locally empty Request, got %+v", req)
	}

	want := "n=42 s=hi\n"
	if buf.String() != want {
		t.Fatalf("tty output = %q, want %q", buf.String(), want)
	}
}
