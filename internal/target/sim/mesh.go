// Package sim is the repo's only internal/target.Control
// implementation: an in-memory mesh of simulated cores standing in for
// the real JTAG/Ethernet debug transport this repo ships without. Its
// register-file-plus-memory shape is grounded on the retrieved pack's
// own tiny register-machine VM (KTStephano-GVM): a flat array of
// registers and a byte-addressable memory the interpreter steps
// through, here split per core and wired to the fixed address ranges
// internal/target names instead of a bespoke bytecode format.
//
// Each core starts halted, as if the debugger had already attached and
// stopped it — every package in internal/rsp is exercised directly
// against a fresh Mesh in its tests without an explicit initial Halt.
package sim

import (
	"context"
	"sync"

	"github.com/GodelMachine/epiphany-libs/internal/target"
	"github.com/GodelMachine/epiphany-libs/internal/target/isa"
)

// localMemSize is each core's local byte-addressable memory, covering
// the fixed-address IVT region (at 0) and every other address a
// program, breakpoint, or semihosting buffer might use — well short of
// CoreR0, so the register windows never alias into it.
const localMemSize = 0x20000

const (
	scrWords = 12
	gprWords = 64
)

// core is one mesh tile: its register file, SCR block, and local
// memory, plus the halt/debug bit the debug-command register toggles.
type core struct {
	mem []byte
	gpr [gprWords]uint32
	scr [scrWords]uint32
}

func newCore() *core {
	c := &core{mem: make([]byte, localMemSize)}
	c.reset()

	return c
}

// reset restores a freshly-powered-up core: memory filled with NOPs,
// registers zeroed, and halted — ready for the debugger to take over.
func (c *core) reset() {
	for i := 0; i < len(c.mem); i += 2 {
		c.mem[i] = byte(isa.NOP & 0xFF)
		c.mem[i+1] = byte(isa.NOP >> 8)
	}

	for i := range c.gpr {
		c.gpr[i] = 0
	}
	for i := range c.scr {
		c.scr[i] = 0
	}

	c.setHalted(true)
}

func (c *core) setHalted(halted bool) {
	bits := uint32(1<<target.DebugHaltBit | 1<<target.DebugOutTranFalseBit)
	if halted {
		c.scr[target.OffDebug] |= bits
	} else {
		c.scr[target.OffDebug] &^= bits
	}
}

// kind classifies an address into the region that backs it.
type kind int

const (
	kindLocal kind = iota
	kindGPR
	kindSCR
	kindDebugCmd
)

func classify(addr uint32) (kind, uint32) {
	switch {
	case addr == target.CoreDebugCmd:
		return kindDebugCmd, 0
	case addr >= target.CoreConfig && addr < target.CoreConfig+scrWords*4:
		return kindSCR, (addr - target.CoreConfig) / 4
	case addr >= target.CoreR0 && addr < target.CoreR0+gprWords*4:
		return kindGPR, (addr - target.CoreR0) / 4
	default:
		return kindLocal, addr
	}
}

func wordByte(word, off uint32) byte { return byte(word >> (8 * off)) }

func setWordByte(word, off uint32, b byte) uint32 {
	shift := 8 * off

	return (word &^ (uint32(0xFF) << shift)) | (uint32(b) << shift)
}

func (c *core) readByte(addr uint32) (byte, bool) {
	k, idx := classify(addr)

	switch k {
	case kindGPR:
		if idx >= gprWords {
			return 0, false
		}

		return wordByte(c.gpr[idx], addr%4), true
	case kindSCR:
		if idx >= scrWords {
			return 0, false
		}

		return wordByte(c.scr[idx], addr%4), true
	case kindDebugCmd:
		return 0, true
	default:
		if addr >= uint32(len(c.mem)) {
			return 0, false
		}

		return c.mem[addr], true
	}
}

func (c *core) writeByte(addr uint32, v byte) bool {
	k, idx := classify(addr)

	switch k {
	case kindGPR:
		if idx >= gprWords {
			return false
		}

		c.gpr[idx] = setWordByte(c.gpr[idx], addr%4, v)

		return true
	case kindSCR:
		if idx >= scrWords {
			return false
		}

		c.scr[idx] = setWordByte(c.scr[idx], addr%4, v)

		return true
	case kindDebugCmd:
		return true
	default:
		if addr >= uint32(len(c.mem)) {
			return false
		}

		c.mem[addr] = v

		return true
	}
}

func (c *core) readWord16(addr uint32) (uint16, bool) {
	lo, ok := c.readByte(addr)
	if !ok {
		return 0, false
	}

	hi, ok := c.readByte(addr + 1)
	if !ok {
		return 0, false
	}

	return uint16(lo) | uint16(hi)<<8, true
}

func (c *core) writeWord16(addr uint32, v uint16) bool {
	return c.writeByte(addr, byte(v)) && c.writeByte(addr+1, byte(v>>8))
}

func (c *core) readWord32(addr uint32) (uint32, bool) {
	k, idx := classify(addr)

	switch k {
	case kindGPR:
		if idx >= gprWords {
			return 0, false
		}

		return c.gpr[idx], true
	case kindSCR:
		if idx >= scrWords {
			return 0, false
		}

		return c.scr[idx], true
	case kindDebugCmd:
		return 0, true
	default:
		if addr+4 > uint32(len(c.mem)) {
			return 0, false
		}

		b := c.mem[addr : addr+4]

		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
	}
}

func (c *core) writeWord32(addr uint32, v uint32) bool {
	k, idx := classify(addr)

	switch k {
	case kindDebugCmd:
		c.handleDebugCmd(v)

		return true
	case kindGPR:
		if idx >= gprWords {
			return false
		}

		c.gpr[idx] = v

		return true
	case kindSCR:
		if idx >= scrWords {
			return false
		}

		c.scr[idx] = v

		return true
	default:
		if addr+4 > uint32(len(c.mem)) {
			return false
		}

		b := c.mem[addr : addr+4]
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
		b[3] = byte(v >> 24)

		return true
	}
}

// Mesh is a rows x cols grid of simulated cores. There is a single
// active-core selection shared by SetThreadGeneral and
// SetThreadExecute: the gateway this stands in for only ever has one
// core attached to its debug scan chain at a time, so GDB's separate
// Hg/Hc selections resolve to the same underlying steering.
type Mesh struct {
	mu sync.Mutex

	rows, cols int
	cores      []*core
	active     int

	resetWrites int
}

// NewMesh builds a rows x cols mesh with every core freshly reset.
func NewMesh(rows, cols int) *Mesh {
	m := &Mesh{rows: rows, cols: cols}

	m.cores = make([]*core, rows*cols)
	for i := range m.cores {
		m.cores[i] = newCore()
	}

	return m
}

func (m *Mesh) current() *core { return m.cores[m.active] }

func (m *Mesh) selectThread(tid uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tid == 0 {
		m.active = 0

		return true
	}

	idx := int(tid) - 1
	if idx < 0 || idx >= len(m.cores) {
		return false
	}

	m.active = idx

	return true
}

func (m *Mesh) SetThreadGeneral(tid uint16) bool { return m.selectThread(tid) }
func (m *Mesh) SetThreadExecute(tid uint16) bool { return m.selectThread(tid) }

func (m *Mesh) ReadMem8(_ context.Context, addr uint32) (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current().readByte(addr)
}

func (m *Mesh) WriteMem8(_ context.Context, addr uint32, v uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current().writeByte(addr, v)
}

func (m *Mesh) ReadMem16(_ context.Context, addr uint32) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current().readWord16(addr)
}

func (m *Mesh) WriteMem16(_ context.Context, addr uint32, v uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current().writeWord16(addr, v)
}

func (m *Mesh) ReadMem32(_ context.Context, addr uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if addr == target.MeshSWReset {
		return 0, true
	}

	return m.current().readWord32(addr)
}

func (m *Mesh) WriteMem32(_ context.Context, addr uint32, v uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if addr == target.MeshSWReset {
		m.resetWrites++

		return true
	}

	return m.current().writeWord32(addr, v)
}

func (m *Mesh) ReadBurst(_ context.Context, addr uint32, buf []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.current()
	for i := range buf {
		b, ok := c.readByte(addr + uint32(i))
		if !ok {
			return false
		}

		buf[i] = b
	}

	return true
}

func (m *Mesh) WriteBurst(_ context.Context, addr uint32, buf []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.current()
	for i, b := range buf {
		if !c.writeByte(addr+uint32(i), b) {
			return false
		}
	}

	return true
}

// PlatformReset reinitializes every core in the mesh, as a hard reset
// would.
func (m *Mesh) PlatformReset(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.cores {
		c.reset()
	}

	m.active = 0
}

// ListCoreIDs returns the mesh's cores in row-major order, 0-indexed —
// the same indexing osdata's traffic annex uses to compute each core's
// row/column.
func (m *Mesh) ListCoreIDs() []uint16 {
	ids := make([]uint16, len(m.cores))
	for i := range ids {
		ids[i] = uint16(i)
	}

	return ids
}

func (m *Mesh) Rows() int { return m.rows }
func (m *Mesh) Cols() int { return m.cols }

// TraceStart, TraceStop and TraceInit have no real trace buffer behind
// them; they exist so the QTStart/QTStop/QTinit stubs have something
// concrete to report success from.
func (m *Mesh) TraceStart(_ context.Context) bool { return true }
func (m *Mesh) TraceStop(_ context.Context) bool  { return true }
func (m *Mesh) TraceInit(_ context.Context) bool  { return true }

// ResetWriteCount reports how many times MESH_SWRESET has been written,
// for halt_test.go to confirm SWReset's twelve-pulses-then-zero shape.
func (m *Mesh) ResetWriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.resetWrites
}
