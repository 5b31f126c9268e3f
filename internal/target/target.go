// Package target defines the debug-gateway contract (C3) the rest of the
// server talks to: a flat memory-mapped register/memory interface plus
// the handful of mesh-wide operations (thread steering, core
// enumeration, reset, tracing) that don't fit a plain address.
//
// There is exactly one implementation in this repo, internal/target/sim,
// since the mesh ships with no real silicon transport — but every other
// package only ever imports Control, never sim, so a JTAG- or
// Ethernet-backed gateway could be dropped in without touching the RSP
// layer above it.
package target

import "context"

// Control is the gateway every session in internal/rsp drives: register
// and memory access, breakpoint planting (via the same Read/WriteMem16
// calls as any other memory write), thread steering, and the mesh-wide
// controls (reset, tracing, core enumeration) that sit outside any
// single core's address space.
//
// Every accessor reports ok=false on failure instead of an error value,
// matching the teacher's own bus-access methods — a failed access is a
// routine, expected outcome (bad address, target wedged) rather than a
// program error worth an error type.
type Control interface {
	ReadMem8(ctx context.Context, addr uint32) (uint8, bool)
	ReadMem16(ctx context.Context, addr uint32) (uint16, bool)
	ReadMem32(ctx context.Context, addr uint32) (uint32, bool)

	WriteMem8(ctx context.Context, addr uint32, v uint8) bool
	WriteMem16(ctx context.Context, addr uint32, v uint16) bool
	WriteMem32(ctx context.Context, addr uint32, v uint32) bool

	// ReadBurst and WriteBurst move len(buf) bytes starting at addr in
	// one transaction — used for the register window's bulk g/G
	// accessors and the step engine's IVT shadow save/restore.
	ReadBurst(ctx context.Context, addr uint32, buf []byte) bool
	WriteBurst(ctx context.Context, addr uint32, buf []byte) bool

	// PlatformReset performs a hard reset of the whole gateway (cores,
	// memory, mesh-level registers) — what HWReset delegates to.
	PlatformReset(ctx context.Context)

	// ListCoreIDs, Rows and Cols describe the mesh's shape for osdata's
	// process/load/traffic annexes and for thread enumeration.
	ListCoreIDs() []uint16
	Rows() int
	Cols() int

	// SetThreadGeneral and SetThreadExecute steer subsequent
	// register/memory accesses and execution-control accesses (step,
	// continue) respectively. tid 0 means "any thread".
	SetThreadGeneral(tid uint16) bool
	SetThreadExecute(tid uint16) bool

	// TraceStart, TraceStop and TraceInit back the QTStart/QTStop/QTinit
	// tracepoint stubs — this gateway has no real trace buffer, so these
	// only need to report whether the mesh accepted the request.
	TraceStart(ctx context.Context) bool
	TraceStop(ctx context.Context) bool
	TraceInit(ctx context.Context) bool
}
