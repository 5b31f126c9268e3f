package rsp

import (
	"bufio"
	"io"

	"github.com/GodelMachine/epiphany-libs/internal/rsp/codec"
)

// ctrlC is the raw byte GDB sends to request a break during continue,
// outside of any $...#cc packet framing.
const ctrlC = 0x03

// event is one thing the reader goroutine observed on the wire: a
// complete packet, a Ctrl-C break, or a fatal transport error. Splitting
// byte-stream parsing into its own goroutine is what lets the dispatch
// loop notice a break arriving mid-continue without itself blocking on
// the next full packet — the rest of the server still only ever touches
// the target gateway from the single goroutine running the session loop.
type event struct {
	pkt  []byte
	brk  bool
	nack bool // checksum mismatch: caller should send '-' and keep going
	err  error
}

// readPacket waits for '$', then reads the payload up to an unescaped
// '#' (a byte immediately following 0x7d is always part of the payload,
// never the terminator), then the two checksum hex digits. A raw 0x03
// seen while waiting for '$' is reported as a break rather than folded
// into the next packet.
func readPacket(r *bufio.Reader) (payload []byte, brk bool, err error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, false, err
		}

		if b == ctrlC {
			return nil, true, nil
		}

		if b == '$' {
			break
		}
	}

	payload = make([]byte, 0, 64)
	escaped := false

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, false, err
		}

		if b == '#' && !escaped {
			break
		}

		payload = append(payload, b)
		escaped = !escaped && b == 0x7d
	}

	csum := make([]byte, 2)
	if _, err := io.ReadFull(r, csum); err != nil {
		return nil, false, err
	}

	if string(csum) != codec.Checksum(payload) {
		return payload, false, errChecksum
	}

	return payload, false, nil
}

// errChecksum is a sentinel distinguishing a checksum mismatch from a
// genuine transport error: the caller nacks and keeps the connection
// open rather than tearing it down.
var errChecksum = checksumError{}

type checksumError struct{}

func (checksumError) Error() string { return "rsp: packet checksum mismatch" }

func writePacket(w io.Writer, payload []byte) error {
	_, err := w.Write(codec.Frame(payload))

	return err
}

func readLoop(r *bufio.Reader, events chan<- event) {
	for {
		pkt, brk, err := readPacket(r)
		if err != nil {
			if err == errChecksum { //nolint:errorlint // sentinel compared by identity, never wrapped
				events <- event{nack: true}

				continue
			}

			events <- event{err: err}

			return
		}

		events <- event{pkt: pkt, brk: brk}
	}
}
