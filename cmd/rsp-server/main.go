// Command rsp-server exposes a mesh's debug-control registers over the
// GDB Remote Serial Protocol: connect with `target remote host:port` and
// GDB drives register/memory access, breakpoints, and single-step through
// whatever internal/target.Control is wired in — here, the in-memory
// simulator, since this repo ships no real silicon transport.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"

	"github.com/GodelMachine/epiphany-libs/internal/rsp"
	"github.com/GodelMachine/epiphany-libs/internal/rsp/breakpoint"
	"github.com/GodelMachine/epiphany-libs/internal/target/isa"
	"github.com/GodelMachine/epiphany-libs/internal/target/sim"
)

// version is stamped at build time (-ldflags "-X main.version=..."); the
// default matches the teacher's own zero-value-means-dev convention.
var version = "0.0.0-dev"

func main() {
	var (
		addr         string
		rows, cols   int
		verbose      uint
		haltOnAttach bool
		ttyOut       bool
		bpSeedPath   string
	)

	flag.StringVar(&addr, "addr", ":3333", "listen address for the RSP TCP transport")
	flag.IntVar(&rows, "rows", 4, "simulated mesh rows")
	flag.IntVar(&cols, "cols", 4, "simulated mesh columns")
	flag.UintVar(&verbose, "verbose", 0, "log verbosity bitmask (1=stop/resume 2=trap/conn 4=ctrl-c 8=transport detail)")
	flag.BoolVar(&haltOnAttach, "halt-on-attach", false, "halt the target before serving the first packet")
	flag.BoolVar(&ttyOut, "tty-out", false, "relay File-I/O trap 7 printf-style semihosting output to stdout")
	flag.StringVar(&bpSeedPath, "bp-seed", "", "optional file of hex breakpoint addresses (one per line) to plant in every session, reloaded on write")
	flag.Parse()

	sv, err := semver.NewVersion(version)
	if err != nil {
		sv = semver.MustParse("0.0.0")
	}

	logger := log.New(os.Stderr, "rsp-server: ", log.LstdFlags)

	cfg := rsp.Config{
		Verbose:      rsp.LogMask(verbose),
		HaltOnAttach: haltOnAttach,
		PacketCap:    rsp.DefaultPacketCap,
		Version:      sv.String(),
	}

	if ttyOut {
		cfg.TTYOut = func(s string) { fmt.Print(s) }
	}

	mesh := sim.NewMesh(rows, cols)

	var seed atomic.Value // []uint32
	seed.Store([]uint32(nil))

	if bpSeedPath != "" {
		if addrs, err := loadSeedFile(bpSeedPath); err != nil {
			logger.Printf("bp-seed: %v", err)
		} else {
			seed.Store(addrs)
		}

		go watchSeedFile(bpSeedPath, &seed, logger)
	}

	srv := rsp.NewServer(mesh, cfg, logger)
	srv.Seed = func(ctx context.Context, c *rsp.Context) {
		plantSeed(ctx, c, seed.Load().([]uint32), logger)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalf("listen %s: %v", addr, err)
	}

	logger.Printf("rsp-server %s listening on %s (mesh %dx%d)", sv.String(), ln.Addr(), rows, cols)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	if err := srv.Serve(ctx, ln); err != nil {
		select {
		case <-ctx.Done():
		default:
			logger.Printf("serve: %v", err)
		}
	}

	logger.Println("rsp-server stopped")
}

// plantSeed plants a software breakpoint at each address in addrs against
// a fresh session's gateway and breakpoint table, the same sequence
// dispatchAddBreakpoint performs for a live Z0 request: read the
// original word, overwrite it with BKPT, record the original for
// restoration.
func plantSeed(ctx context.Context, c *rsp.Context, addrs []uint32, logger *log.Logger) {
	for _, addr := range addrs {
		if _, exists := c.BP.Lookup(breakpoint.KindSoftware, addr); exists {
			continue
		}

		saved, ok := c.Ctl.ReadMem16(ctx, addr)
		if !ok {
			logger.Printf("bp-seed: read at %#x failed, skipping", addr)

			continue
		}

		if !c.Ctl.WriteMem16(ctx, addr, uint16(isa.BKPT)) {
			logger.Printf("bp-seed: plant at %#x failed, skipping", addr)

			continue
		}

		c.BP.Add(breakpoint.KindSoftware, addr, uint32(saved), 2)
	}
}

// loadSeedFile parses one hex address per line, skipping blank lines and
// '#'-prefixed comments.
func loadSeedFile(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var addrs []uint32

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		v, err := strconv.ParseUint(strings.TrimPrefix(line, "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("bp-seed %s: %q: %w", path, line, err)
		}

		addrs = append(addrs, uint32(v))
	}

	return addrs, sc.Err()
}

// watchSeedFile reloads path into seed whenever fsnotify reports a write,
// so an operator can add or remove breakpoints between GDB sessions
// without restarting the server.
func watchSeedFile(path string, seed *atomic.Value, logger *log.Logger) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Printf("bp-seed watch: %v", err)

		return
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		logger.Printf("bp-seed watch: %v", err)

		return
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			addrs, err := loadSeedFile(path)
			if err != nil {
				logger.Printf("bp-seed reload: %v", err)

				continue
			}

			seed.Store(addrs)
			logger.Printf("bp-seed: reloaded %d addresses from %s", len(addrs), path)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}

			logger.Printf("bp-seed watch error: %v", err)
		}
	}
}
