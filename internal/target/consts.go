package target

// Per-core register windows. CoreR0 is the base of the 64-word GPR
// block (r0..r63, one word each); CoreConfig is the base of the
// contiguous 12-word SCR group-0 + DMA block coreregs.burstOrder walks
// in physical order. Both sit well above any core's local-memory
// address range (see internal/target/sim), so a stray instruction
// fetch or qXfer read can never alias into the register file.
const (
	CoreR0     uint32 = 0x00100000
	CoreConfig uint32 = 0x00100400
)

// Word offsets from CoreConfig, in the physical burst order a g/G
// transfer actually reads the SCR block in (see coreregs.burstOrder).
// pOrder in package coreregs renumbers these into GDB's logical
// register layout, which is deliberately different.
const (
	OffConfig uint32 = 0
	OffStatus uint32 = 1
	OffPC     uint32 = 2
	OffDebug  uint32 = 3
	OffIRET   uint32 = 4
	OffILAT   uint32 = 5
	OffIMASK  uint32 = 6
	OffIPEND  uint32 = 7

	OffDMA0Config uint32 = 8
	OffDMA0Status uint32 = 9
	OffDMA1Config uint32 = 10
	OffDMA1Status uint32 = 11
)

// CoreDebug is the same register as CoreConfig+OffDebug*4 — the halt
// controller reaches it directly by this alias rather than going
// through coreregs, since it only ever needs two bits of it.
// CoreDebugCmd is a distinct, write-only command register just past the
// SCR block: writing DebugCmdHalt/DebugCmdRun to it is what actually
// starts or stops execution.
const (
	CoreDebug    = CoreConfig + OffDebug*4
	CoreDebugCmd = CoreConfig + 0x40
)

// DEBUG register bits (read via CoreDebug).
const (
	DebugHaltBit         = 0
	DebugOutTranFalseBit = 1
)

// Commands written to CoreDebugCmd.
const (
	DebugCmdRun  uint32 = 0
	DebugCmdHalt uint32 = 1
)

// STATUS register layout: bits [18:16] carry the exception cause,
// bit 1 disables interrupt dispatch globally, bit 0 reports idle.
const (
	StatusExceptionShift uint32 = 16
	StatusExceptionMask  uint32 = 0x7

	StatusGlobalIntDisableBit = 1
	StatusIdleBit             = 0
)

// Exception cause codes found in STATUS bits [18:16].
const (
	ExcNone          uint32 = 0
	ExcUnalignedAcc  uint32 = 1
	ExcFPU           uint32 = 2
	ExcUnimplemented uint32 = 3
)

// IVTBase is the fixed address of entry 0 (the reset vector); entries
// are IVTEntrySize bytes apart and IVTEntryCount of them exist, per the
// step engine's "plant a breakpoint at every entry but reset" routine.
const (
	IVTBase       uint32 = 0x00000000
	IVTEntryCount        = 10
	IVTEntrySize  uint32 = 4
)

// Mesh-wide registers, outside any single core's address space.
const (
	MeshSWReset uint32 = 0x00200000
	MeshCoreID  uint32 = 0x00200004
)
