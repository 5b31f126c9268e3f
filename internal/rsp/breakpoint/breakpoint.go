// Package breakpoint implements the (kind, address) -> saved instruction
// word table the dispatcher and step engine share: software breakpoints
// planted by replacing the target word with BKPT, and the original word
// kept so it can be restored.
//
// Only software breakpoints are modeled (spec.md's Non-goals exclude
// hardware breakpoints/watchpoints); the kind field still exists so the
// dispatcher can answer an unsupported kind with an empty reply rather
// than silently treating every Z/z request as a software breakpoint.
package breakpoint

import "sync"

// Kind identifies which Z/z breakpoint-type byte a request named. Only
// KindSoftware is ever planted; the others are recognized so the
// dispatcher can reject them cleanly.
type Kind uint8

const (
	KindSoftware Kind = iota
	KindHardware
	KindWriteWatch
	KindReadWatch
	KindAccessWatch
)

// Supported reports whether kind is one this table can actually plant.
func Supported(kind Kind) bool { return kind == KindSoftware }

type key struct {
	kind Kind
	addr uint32
}

// Entry records a single planted breakpoint: the address it lives at and
// the instruction word it replaced, which must be restored verbatim when
// the breakpoint is removed or when the step engine needs to step over it.
type Entry struct {
	Addr     uint32
	Saved    uint32
	SaveSize int // width of Saved in bytes; the dispatcher and step engine always record 2
}

// Table is a (kind, address) -> Entry map with O(1) add/lookup/remove.
// Safe for concurrent use; in practice only ever touched by the one
// goroutine handling a given connection's dispatch loop, but the mutex
// keeps it safe if that ever changes (e.g. a Ctrl-C handler running
// concurrently with dispatch).
type Table struct {
	mu      sync.Mutex
	entries map[key]Entry
}

// New returns an empty breakpoint table.
func New() *Table {
	return &Table{entries: make(map[key]Entry)}
}

// Add records a breakpoint at (kind, addr), saving the original word that
// was there so it can be restored later, and returns the previous entry at
// (kind, addr) if one existed — re-adding the same (kind, addr) replaces it
// with the new saved word. Callers must fetch the original word from the
// target *before* planting BKPT and pass it here, never after.
func (t *Table) Add(kind Kind, addr uint32, saved uint32, saveSize int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{kind, addr}
	prev, existed := t.entries[k]
	t.entries[k] = Entry{Addr: addr, Saved: saved, SaveSize: saveSize}

	return prev, existed
}

// Lookup returns the entry at (kind, addr), if any.
func (t *Table) Lookup(kind Kind, addr uint32) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key{kind, addr}]

	return e, ok
}

// LookupAddr reports whether a software breakpoint is planted at addr
// (entries of other kinds are not consulted), which is what the step engine needs when deciding whether a predicted
// next-PC already carries a user breakpoint it must step over rather than
// plant its own temporary one on top of.
func (t *Table) LookupAddr(addr uint32) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key{KindSoftware, addr}]

	return e, ok
}

// Remove deletes the entry at (kind, addr) and returns it so the caller
// can restore the saved word. ok is false if nothing was planted there.
func (t *Table) Remove(kind Kind, addr uint32) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{kind, addr}
	e, ok := t.entries[k]
	if ok {
		delete(t.entries, k)
	}

	return e, ok
}

// Len reports how many breakpoints are currently planted, across all
// kinds.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Each calls fn for every planted entry, in no particular order. fn must
// not call back into t.
func (t *Table) Each(fn func(kind Kind, e Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, e := range t.entries {
		fn(k.kind, e)
	}
}
