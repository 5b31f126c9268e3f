package rsp

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/breakpoint"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/codec"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/coreregs"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/halt"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/osdata"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/rsperr"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/semihost"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/step"
	"github.com/GodelMachine/epiphany-libs/internal/target/isa"
)

// monitorCommands are the qRcmd names §6 lists as supported; help-hidden
// additionally surfaces link/spi, which real users rarely need but which
// GDB's "monitor help-hidden" convention expects a server to document
// somewhere.
var monitorCommands = []string{"swreset", "hwreset", "halt", "run", "coreid", "help", "help-hidden"}
var hiddenMonitorCommands = []string{"link", "spi"}

// Dispatch handles one complete packet and returns the reply payload
// (unframed — the caller frames and writes it), whether the session
// should close, and whether no reply at all should be sent (only 'k',
// which real GDB clients never wait on). For 'c', vCont;c and a resuming
// F reply it blocks inside the run loop until the target stops or GDB
// sends a Ctrl-C, consuming events as needed; 's' and vCont;s block only
// for the step engine's bounded poll and do not watch for Ctrl-C; every
// other packet returns immediately.
func (c *Context) Dispatch(ctx context.Context, pkt []byte, events <-chan event) (reply []byte, closeConn bool, noReply bool) {
	if string(pkt) == "k" {
		c.running = false

		return nil, true, true
	}

	reply, closeConn = c.dispatchCore(ctx, pkt, events)

	return reply, closeConn, false
}

func (c *Context) dispatchCore(ctx context.Context, pkt []byte, events <-chan event) (reply []byte, closeConn bool) {
	cmd := string(pkt)

	switch {
	case cmd == "!":
		return nil, false

	case cmd == "?":
		return []byte(c.formatStop(halt.SignalTrap)), false

	case len(cmd) > 0 && strings.ContainsRune("AbBdrtiI", rune(cmd[0])):
		return c.unsupportedReply(fmt.Sprintf("packet %q", cmd)), false

	case cmd == "c" || strings.HasPrefix(cmd, "c"):
		return c.dispatchRun(ctx, cmd[1:], events)

	case strings.HasPrefix(cmd, "C"):
		return c.dispatchSignalledContinue(cmd)

	case cmd == "D":
		c.running = false

		return []byte("OK"), true

	case strings.HasPrefix(cmd, "F"):
		return c.dispatchSemihostReply(ctx, cmd[1:], events)

	case cmd == "g":
		return c.dispatchReadAllRegisters(ctx)

	case strings.HasPrefix(cmd, "G"):
		return c.dispatchWriteAllRegisters(ctx, cmd[1:])

	case strings.HasPrefix(cmd, "H"):
		return c.dispatchSetThread(cmd[1:])

	case strings.HasPrefix(cmd, "m"):
		return c.dispatchReadMemory(ctx, cmd[1:])

	case strings.HasPrefix(cmd, "M"):
		return c.dispatchWriteMemory(ctx, cmd[1:])

	case strings.HasPrefix(cmd, "p"):
		return c.dispatchReadRegister(ctx, cmd[1:])

	case strings.HasPrefix(cmd, "P"):
		return c.dispatchWriteRegister(ctx, cmd[1:])

	case strings.HasPrefix(cmd, "qRcmd,"):
		return c.dispatchQRcmd(ctx, strings.TrimPrefix(cmd, "qRcmd,"))

	case strings.HasPrefix(cmd, "qXfer:osdata:read:"):
		return c.dispatchQXferOsdata(strings.TrimPrefix(cmd, "qXfer:osdata:read:"))

	case strings.HasPrefix(cmd, "q") || strings.HasPrefix(cmd, "Q"):
		return c.dispatchQuery(cmd)

	case cmd == "R" || strings.HasPrefix(cmd, "R"):
		if !coreregs.Write(ctx, c.Ctl, coreregs.RegPC, 0) {
			return []byte("E01"), false
		}

		return nil, false

	case cmd == "s" || strings.HasPrefix(cmd, "s"):
		return c.dispatchStep(ctx, cmd[1:])

	case strings.HasPrefix(cmd, "S"):
		c.logf(LogTrapAndRSPCon, "%v", rsperr.Unsupported(fmt.Sprintf("stepping with signal %q", cmd)))

		return []byte(cmd), false

	case strings.HasPrefix(cmd, "T"):
		return []byte("OK"), false

	case strings.HasPrefix(cmd, "v"):
		return c.dispatchV(ctx, cmd, events)

	case strings.HasPrefix(cmd, "X"):
		return c.dispatchBinaryWrite(ctx, cmd[1:])

	case strings.HasPrefix(cmd, "z"):
		return c.dispatchRemoveBreakpoint(ctx, cmd[1:])

	case strings.HasPrefix(cmd, "Z"):
		return c.dispatchAddBreakpoint(ctx, cmd[1:])

	default:
		c.logf(LogTrapAndRSPCon, "unrecognized packet %q", cmd)

		return nil, false
	}
}

// formatStop renders a stop reply for the currently selected execute
// thread: bare S<hh> for thread 0 (no explicit selection), T<hh>thread:
// <tid>; otherwise, per §6.
func (c *Context) formatStop(sig halt.Signal) string {
	if c.executeTID == 0 {
		return fmt.Sprintf("S%02x", uint8(sig))
	}

	return fmt.Sprintf("T%02xthread:%d;", uint8(sig), c.executeTID)
}

// resultToReply turns a step.Result into the wire reply it produces: a
// stop reply for StopTrap, an F-request for StopSemihost.
func (c *Context) resultToReply(ctx context.Context, res step.Result) []byte {
	switch res.Kind {
	case step.StopSemihost:
		req, ok := semihost.Build(ctx, c.Ctl, res.TrapNum, c.tty())
		if !ok {
			return []byte("E01")
		}

		if req.Stop {
			return []byte(c.formatStop(halt.Signal(req.Signal)))
		}

		return []byte("F" + req.Body)

	default:
		return []byte(c.formatStop(res.Signal))
	}
}

// tty adapts Config.TTYOut to an io.Writer for semihost.Build, returning
// a genuine nil interface when no sink is configured — a typed nil
// ttyWriter wrapped in an io.Writer would compare non-nil and panic on
// first use instead.
func (c *Context) tty() io.Writer {
	if c.cfg.TTYOut == nil {
		return nil
	}

	return ttyWriter(c.cfg.TTYOut)
}

// ttyWriter adapts Config.TTYOut (a plain func(string)) to io.Writer so
// semihost.Build can treat "no tty configured" and "write failed" alike.
type ttyWriter func(string)

func (w ttyWriter) Write(p []byte) (int, error) {
	if w == nil {
		return 0, errNoTTY
	}

	w(string(p))

	return len(p), nil
}

var errNoTTY = fmt.Errorf("rsp: no tty sink configured")

// dispatchRun handles bare 'c' and 'c<addr>'.
func (c *Context) dispatchRun(ctx context.Context, rest string, events <-chan event) ([]byte, bool) {
	addr, hasAddr := parseOptionalHexAddr(rest)

	c.running = true

	res, rerr := c.runLoop(ctx, events, addrPtr(addr, hasAddr))
	c.running = false

	if rerr != nil {
		return c.errorReply(rerr), false
	}

	return c.resultToReply(ctx, res), false
}

// dispatchSignalledContinue implements the open question's resolution:
// C<sig> always warns and reports TRAP without resuming, preserving the
// source's behavior verbatim regardless of which signal was requested.
func (c *Context) dispatchSignalledContinue(cmd string) ([]byte, bool) {
	c.logf(LogTrapAndRSPCon, "C (signalled continue) not resumed: %q", cmd)

	sig := halt.SignalTrap
	if cmd == "C03" {
		sig = halt.SignalQuit
	}

	return []byte(c.formatStop(sig)), false
}

func (c *Context) dispatchStep(ctx context.Context, rest string) ([]byte, bool) {
	addr, hasAddr := parseOptionalHexAddr(rest)

	res, rerr := c.Step.Step(ctx, addrPtr(addr, hasAddr))
	if rerr != nil {
		return c.errorReply(rerr), false
	}

	return c.resultToReply(ctx, res), false
}

// dispatchSemihostReply applies GDB's F-reply and, unless it carried the
// interrupted flag, resumes execution by re-entering the run loop.
func (c *Context) dispatchSemihostReply(ctx context.Context, rest string, events <-chan event) ([]byte, bool) {
	interrupted, ok := semihost.Apply(ctx, c.Ctl, rest)
	if !ok {
		return []byte("E01"), false
	}

	if interrupted {
		return []byte(c.formatStop(halt.SignalTrap)), false
	}

	c.running = true

	res, rerr := c.runLoop(ctx, events, nil)
	c.running = false

	if rerr != nil {
		return c.errorReply(rerr), false
	}

	return c.resultToReply(ctx, res), false
}

func (c *Context) dispatchReadAllRegisters(ctx context.Context) ([]byte, bool) {
	vals, ok := coreregs.ReadAll(ctx, c.Ctl)
	if !ok {
		return []byte("E01"), false
	}

	var b strings.Builder
	for _, v := range vals {
		b.WriteString(codec.EncodeReg32(v))
	}

	return []byte(b.String()), false
}

func (c *Context) dispatchWriteAllRegisters(ctx context.Context, hexPayload string) ([]byte, bool) {
	if len(hexPayload)%8 != 0 {
		return c.malformedReply("G: payload length not a multiple of 8 hex digits"), false
	}

	vals := make([]uint32, 0, coreregs.Count)
	for i := 0; i+8 <= len(hexPayload); i += 8 {
		v, ok := codec.DecodeReg32(hexPayload[i : i+8])
		if !ok {
			return c.malformedReply("G: bad hex register value"), false
		}

		vals = append(vals, v)
	}

	if !coreregs.WriteAll(ctx, c.Ctl, vals) {
		return []byte("E01"), false
	}

	return []byte("OK"), false
}

func (c *Context) dispatchReadRegister(ctx context.Context, rest string) ([]byte, bool) {
	n, err := strconv.ParseInt(rest, 16, 32)
	if err != nil {
		return c.malformedReply(fmt.Sprintf("p: bad register index %q", rest)), false
	}

	v, ok := coreregs.Read(ctx, c.Ctl, int(n))
	if !ok {
		return []byte("E01"), false
	}

	return []byte(codec.EncodeReg32(v)), false
}

func (c *Context) dispatchWriteRegister(ctx context.Context, rest string) ([]byte, bool) {
	parts := strings.SplitN(rest, "=", 2)
	if len(parts) != 2 {
		return c.malformedReply(fmt.Sprintf("P: missing '=' in %q", rest)), false
	}

	n, err := strconv.ParseInt(parts[0], 16, 32)
	if err != nil {
		return c.malformedReply(fmt.Sprintf("P: bad register index %q", parts[0])), false
	}

	v, ok := codec.DecodeReg32(parts[1])
	if !ok {
		return c.malformedReply(fmt.Sprintf("P: bad hex register value %q", parts[1])), false
	}

	if !coreregs.Write(ctx, c.Ctl, int(n), v) {
		return []byte("E01"), false
	}

	return []byte("OK"), false
}

func (c *Context) dispatchSetThread(rest string) ([]byte, bool) {
	if len(rest) < 1 {
		return c.malformedReply("H: missing op byte"), false
	}

	op := rest[0]
	tidStr := rest[1:]

	tid, err := strconv.ParseInt(tidStr, 16, 32)
	if err != nil || tid < 0 {
		tid = 0
	}

	if !c.selectThread(op, uint16(tid)) {
		return []byte("E01"), false
	}

	return []byte("OK"), false
}

func (c *Context) dispatchReadMemory(ctx context.Context, rest string) ([]byte, bool) {
	addr, length, ok := parseAddrLen(rest)
	if !ok {
		return c.malformedReply(fmt.Sprintf("m: bad addr,length %q", rest)), false
	}

	if 2*length >= c.cfg.PacketCap {
		return c.malformedReply(fmt.Sprintf("m: length %d exceeds negotiated packet size", length)), false
	}

	buf := make([]byte, length)
	if !c.Ctl.ReadBurst(ctx, addr, buf) {
		return []byte("E01"), false
	}

	return []byte(codec.EncodeBytes(buf)), false
}

func (c *Context) dispatchWriteMemory(ctx context.Context, rest string) ([]byte, bool) {
	head, hexData, found := strings.Cut(rest, ":")
	if !found {
		return c.malformedReply(fmt.Sprintf("M: missing ':' in %q", rest)), false
	}

	addr, length, ok := parseAddrLen(head)
	if !ok {
		return c.malformedReply(fmt.Sprintf("M: bad addr,length %q", head)), false
	}

	if len(hexData) != 2*length {
		return c.malformedReply("M: hex payload length doesn't match declared length"), false
	}

	buf, ok := codec.DecodeBytes(hexData)
	if !ok {
		return c.malformedReply("M: bad hex payload"), false
	}

	if !c.Ctl.WriteBurst(ctx, addr, buf) {
		return []byte("E01"), false
	}

	return []byte("OK"), false
}

func (c *Context) dispatchBinaryWrite(ctx context.Context, rest string) ([]byte, bool) {
	head, rawData, found := strings.Cut(rest, ":")
	if !found {
		return c.malformedReply(fmt.Sprintf("X: missing ':' in %q", rest)), false
	}

	addr, length, ok := parseAddrLen(head)
	if !ok {
		return c.malformedReply(fmt.Sprintf("X: bad addr,length %q", head)), false
	}

	buf := codec.Unescape([]byte(rawData))
	if len(buf) != length {
		return c.malformedReply("X: escaped payload length doesn't match declared length"), false
	}

	if !c.Ctl.WriteBurst(ctx, addr, buf) {
		return []byte("E01"), false
	}

	return []byte("OK"), false
}

func (c *Context) dispatchAddBreakpoint(ctx context.Context, rest string) ([]byte, bool) {
	kind, addr, _, ok := parseBreakpointTriplet(rest)
	if !ok {
		return c.malformedReply(fmt.Sprintf("Z: bad type,addr,length %q", rest)), false
	}

	if !breakpoint.Supported(kind) {
		return c.unsupportedReply(fmt.Sprintf("Z: breakpoint kind %d", kind)), false
	}

	if _, exists := c.BP.Lookup(kind, addr); exists {
		return []byte("OK"), false
	}

	saved, ok := c.Ctl.ReadMem16(ctx, addr)
	if !ok {
		return []byte("E01"), false
	}

	if !c.Ctl.WriteMem16(ctx, addr, uint16(isa.BKPT)) {
		return []byte("E01"), false
	}

	c.BP.Add(kind, addr, uint32(saved), 2)

	return []byte("OK"), false
}

func (c *Context) dispatchRemoveBreakpoint(ctx context.Context, rest string) ([]byte, bool) {
	kind, addr, _, ok := parseBreakpointTriplet(rest)
	if !ok {
		return c.malformedReply(fmt.Sprintf("z: bad type,addr,length %q", rest)), false
	}

	if !breakpoint.Supported(kind) {
		return c.unsupportedReply(fmt.Sprintf("z: breakpoint kind %d", kind)), false
	}

	entry, ok := c.BP.Remove(kind, addr)
	if !ok {
		return []byte("E01"), false
	}

	if !c.Ctl.WriteMem16(ctx, addr, uint16(entry.Saved)) {
		return []byte("E01"), false
	}

	return []byte("OK"), false
}

func (c *Context) dispatchV(ctx context.Context, cmd string, events <-chan event) ([]byte, bool) {
	switch {
	case cmd == "vCont?":
		return []byte("vCont;c;s"), false

	case strings.HasPrefix(cmd, "vAttach;"):
		return []byte(c.formatStop(halt.SignalTrap)), false

	case strings.HasPrefix(cmd, "vCont;c"):
		return c.dispatchRun(ctx, "", events)

	case strings.HasPrefix(cmd, "vCont;s"):
		return c.dispatchStep(ctx, "")

	case strings.HasPrefix(cmd, "vRun;"):
		coreregs.Write(ctx, c.Ctl, coreregs.RegPC, 0)

		return []byte(c.formatStop(halt.SignalTrap)), false

	default:
		return c.unsupportedReply(fmt.Sprintf("v-packet %q", cmd)), false
	}
}

func (c *Context) dispatchQuery(cmd string) ([]byte, bool) {
	switch {
	case cmd == "qC":
		return []byte(fmt.Sprintf("QC%d", c.generalThreadOrDefault())), false

	case cmd == "qfThreadInfo":
		return []byte(fmt.Sprintf("m%d", c.generalThreadOrDefault())), false

	case cmd == "qsThreadInfo":
		return []byte("l"), false

	case strings.HasPrefix(cmd, "qSupported"):
		return []byte(fmt.Sprintf("PacketSize=%x;qXfer:osdata:read+", c.cfg.PacketCap)), false

	case cmd == "qOffsets":
		return []byte("Text=0;Data=0;Bss=0"), false

	case strings.HasPrefix(cmd, "qAttached"):
		return c.unsupportedReply("qAttached"), false

	case strings.HasPrefix(cmd, "qTStatus"):
		return []byte("T0"), false

	case strings.HasPrefix(cmd, "qSymbol:"):
		return []byte("OK"), false

	case strings.HasPrefix(cmd, "qThreadExtraInfo"):
		return []byte(codec.AsciiToHex("runnable")), false

	case strings.HasPrefix(cmd, "QStartNoAckMode"):
		c.noAck = true

		return []byte("OK"), false

	case strings.HasPrefix(cmd, "QTStart") || strings.HasPrefix(cmd, "QTStop") || strings.HasPrefix(cmd, "QTinit"):
		return c.dispatchTraceStub(cmd), false

	case strings.HasPrefix(cmd, "QTDP") || strings.HasPrefix(cmd, "QFrame") || strings.HasPrefix(cmd, "QTro"):
		return []byte("OK"), false

	case strings.HasPrefix(cmd, "QPassSignals:"):
		return c.unsupportedReply("QPassSignals"), false

	default:
		return c.unsupportedReply(fmt.Sprintf("query %q", cmd)), false
	}
}

func (c *Context) dispatchTraceStub(cmd string) []byte {
	var ok bool

	switch {
	case strings.HasPrefix(cmd, "QTStart"):
		ok = c.Ctl.TraceStart(context.Background())
	case strings.HasPrefix(cmd, "QTStop"):
		ok = c.Ctl.TraceStop(context.Background())
	case strings.HasPrefix(cmd, "QTinit"):
		ok = c.Ctl.TraceInit(context.Background())
	}

	if !ok {
		return []byte("E01")
	}

	return []byte("OK")
}

func (c *Context) dispatchQXferOsdata(rest string) ([]byte, bool) {
	annex, offsetLen, found := strings.Cut(rest, ":")
	if !found {
		return c.malformedReply(fmt.Sprintf("qXfer:osdata: missing ':' in %q", rest)), false
	}

	offsetStr, lenStr, found := strings.Cut(offsetLen, ",")
	if !found {
		return c.malformedReply(fmt.Sprintf("qXfer:osdata: missing ',' in %q", offsetLen)), false
	}

	offset, err := strconv.ParseInt(offsetStr, 16, 64)
	if err != nil {
		return c.malformedReply(fmt.Sprintf("qXfer:osdata: bad offset %q", offsetStr)), false
	}

	length, err := strconv.ParseInt(lenStr, 16, 64)
	if err != nil {
		return c.malformedReply(fmt.Sprintf("qXfer:osdata: bad length %q", lenStr)), false
	}

	data, ok := osdata.Render(osdata.Annex(annex), c.Ctl)
	if !ok {
		return c.unsupportedReply(fmt.Sprintf("qXfer:osdata: annex %q", annex)), false
	}

	marker, chunk := osdata.Window(data, int(offset), int(length))

	return append([]byte{marker}, chunk...), false
}

func (c *Context) dispatchQRcmd(ctx context.Context, hexCmd string) ([]byte, bool) {
	text, ok := codec.HexToAscii(hexCmd)
	if !ok {
		return c.malformedReply(fmt.Sprintf("qRcmd: bad hex payload %q", hexCmd)), false
	}

	text = strings.TrimSpace(text)

	switch text {
	case "swreset":
		if !halt.SWReset(ctx, c.Ctl) {
			return []byte("E01"), false
		}

		return []byte("OK"), false

	case "hwreset":
		halt.HWReset(ctx, c.Ctl)

		return []byte("OK"), false

	case "halt":
		if !halt.Halt(ctx, c.Ctl) {
			return []byte("E01"), false
		}

		return []byte("OK"), false

	case "run":
		if !halt.Resume(ctx, c.Ctl) {
			return []byte("E01"), false
		}

		return []byte("OK"), false

	case "coreid":
		return []byte(codec.AsciiToHex(fmt.Sprintf("coreid=%d\n", c.generalThreadOrDefault()))), false

	case "help":
		return []byte(codec.AsciiToHex(c.monitorHelpText(false))), false

	case "help-hidden":
		return []byte(codec.AsciiToHex(c.monitorHelpText(true))), false

	case "link", "spi":
		c.logf(LogTrapAndRSPCon, "monitor %s: acknowledged, no-op", text)

		return []byte("OK"), false

	default:
		c.logf(LogTrapAndRSPCon, "unknown monitor command %q", text)

		return []byte("OK"), false
	}
}

// monitorHelpText renders the two-tier qRcmd,help listing: the public
// command set, and — only when hidden is requested — the extra
// link/spi pass-throughs layered on top. The version string is parsed
// through semver so a malformed build-time version string degrades to
// the raw text rather than panicking.
func (c *Context) monitorHelpText(hidden bool) string {
	var b strings.Builder

	version := c.cfg.Version
	if v, err := semver.NewVersion(version); err == nil {
		version = v.String()
	}

	fmt.Fprintf(&b, "epiphany-rsp-server %s\nmonitor commands:\n", version)

	for _, name := range monitorCommands {
		fmt.Fprintf(&b, "  %s\n", name)
	}

	if hidden {
		for _, name := range hiddenMonitorCommands {
			fmt.Fprintf(&b, "  %s (hidden)\n", name)
		}
	}

	return b.String()
}

func (c *Context) generalThreadOrDefault() int {
	if c.generalTID == 0 {
		return 1
	}

	return int(c.generalTID)
}

// errorReply renders the wire consequence of a *rsperr.Error per §7: a
// halt timeout is reported as a HUP stop reply (the target may still be
// alive and halted, just slow to confirm it), every other category is a
// plain E01 — except CategoryInvariant, which §7 calls a logic bug rather
// than a user-facing error and which this server treats as fatal: it
// panics instead of returning, and HandleConn's recover turns that into
// process termination.
func (c *Context) errorReply(rerr *rsperr.Error) []byte {
	c.logf(LogTrapAndRSPCon, "dispatch error: %v", rerr)

	if rerr.Category == rsperr.CategoryInvariant {
		panic(rerr)
	}

	if rerr.Category == rsperr.CategoryHaltFailed {
		return []byte(c.formatStop(halt.SignalHup))
	}

	return []byte("E01")
}

// malformedReply logs a packet that failed to parse through rsperr's
// taxonomy and returns the E01 GDB expects for it.
func (c *Context) malformedReply(detail string) []byte {
	c.logf(LogTrapAndRSPCon, "%v", rsperr.Malformed(detail))

	return []byte("E01")
}

// unsupportedReply logs a well-formed request for a feature this server
// doesn't implement through rsperr's taxonomy and returns RSP's
// empty-reply convention for it.
func (c *Context) unsupportedReply(detail string) []byte {
	c.logf(LogTrapAndRSPCon, "%v", rsperr.Unsupported(detail))

	return nil
}

func addrPtr(addr uint32, has bool) *uint32 {
	if !has {
		return nil
	}

	return &addr
}

func parseOptionalHexAddr(s string) (uint32, bool) {
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}

	return uint32(v), true
}

func parseAddrLen(s string) (addr uint32, length int, ok bool) {
	addrStr, lenStr, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}

	a, err := strconv.ParseUint(addrStr, 16, 32)
	if err != nil {
		return 0, 0, false
	}

	l, err := strconv.ParseUint(lenStr, 16, 32)
	if err != nil {
		return 0, 0, false
	}

	return uint32(a), int(l), true
}

// parseBreakpointTriplet parses "<type>,<addr>,<len>" as used by both
// Z and z packets (the leading z/Z letter and type digit are already
// split apart by the caller via prefix match, so rest here still starts
// with the type digit).
func parseBreakpointTriplet(rest string) (kind breakpoint.Kind, addr uint32, length int, ok bool) {
	parts := strings.SplitN(rest, ",", 3)
	if len(parts) != 3 {
		return 0, 0, 0, false
	}

	k, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return 0, 0, 0, false
	}

	a, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}

	l, err := strconv.ParseUint(parts[2], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}

	return breakpoint.Kind(k), uint32(a), int(l), true
}
