package rsp

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"testing"

	"github.com/GodelMachine/epiphany-libs/internal/target/sim"
)

func encodeRSP(payload string) []byte {
	sum := byte(0)
	for i := 0; i < len(payload); i++ {
		sum += payload[i]
	}

	return []byte(fmt.Sprintf("$%s#%02x", payload, sum))
}

// readReply reads an optional leading ack byte followed by one RSP
// packet, mirroring the teacher's net.Pipe()-based harness.
func readReply(r *bufio.Reader) (ack bool, payload string, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, "", err
	}

	if b != '+' {
		if err := r.UnreadByte(); err != nil {
			return false, "", err
		}
	} else {
		ack = true
	}

	for {
		ch, err := r.ReadByte()
		if err != nil {
			return ack, "", err
		}

		if ch == '$' {
			break
		}
	}

	data := make([]byte, 0, 128)

	for {
		ch, err := r.ReadByte()
		if err != nil {
			return ack, "", err
		}

		if ch == '#' {
			break
		}

		data = append(data, ch)
	}

	csum := make([]byte, 2)
	if _, err := r.Read(csum); err != nil {
		return ack, "", err
	}

	return ack, string(data), nil
}

func newTestServer() *Server {
	mesh := sim.NewMesh(1, 1)

	return NewServer(mesh, Config{}, log.Default())
}

func TestHandleConnAcksAndRepliesQSupported(t *testing.T) {
	srv := newTestServer()
	c1, c2 := net.Pipe()

	defer c1.Close()
	defer c2.Close()

	go func() { _ = srv.HandleConn(context.Background(), c1) }()

	w := bufio.NewWriter(c2)
	r := bufio.NewReader(c2)

	if _, err := w.Write(encodeRSP("qSupported")); err != nil {
		t.Fatal(err)
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	ack, payload, err := readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if !ack {
		t.Fatal("expected ack for qSupported")
	}

	if payload == "" {
		t.Fatal("expected a non-empty qSupported reply")
	}
}

func TestHandleConnNoAckModeStopsAcking(t *testing.T) {
	srv := newTestServer()
	c1, c2 := net.Pipe()

	defer c1.Close()
	defer c2.Close()

	go func() { _ = srv.HandleConn(context.Background(), c1) }()

	w := bufio.NewWriter(c2)
	r := bufio.NewReader(c2)

	if _, err := w.Write(encodeRSP("QStartNoAckMode")); err != nil {
		t.Fatal(err)
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	ack, payload, err := readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if !ack {
		t.Fatal("expected ack for QStartNoAckMode itself")
	}

	if payload != "OK" {
		t.Fatalf("expected OK, got %q", payload)
	}

	if _, err := w.Write(encodeRSP("qAttached")); err != nil {
		t.Fatal(err)
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	ack, _, err = readReply(r)
	if err != nil {
		t.Fatal(err)
	}

	if ack {
		t.Fatal("expected no ack once no-ack mode is negotiated")
	}
}

func TestHandleConnKillClosesWithoutReply(t *testing.T) {
	srv := newTestServer()
	c1, c2 := net.Pipe()

	defer c1.Close()
	defer c2.Close()

	done := make(chan error, 1)

	go func() { done <- srv.HandleConn(context.Background(), c1) }()

	w := bufio.NewWriter(c2)

	if _, err := w.Write(encodeRSP("k")); err != nil {
		t.Fatal(err)
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := <-done; err != nil {
		t.Fatalf("HandleConn returned error: %v", err)
	}
}

func TestServerSeedHookRunsBeforeSessionLoop(t *testing.T) {
	mesh := sim.NewMesh(1, 1)
	srv := NewServer(mesh, Config{}, log.Default())

	var seeded bool

	srv.Seed = func(ctx context.Context, c *Context) {
		seeded = true
	}

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	done := make(chan error, 1)

	go func() { done <- srv.HandleConn(context.Background(), c1) }()

	w := bufio.NewWriter(c2)

	if _, err := w.Write(encodeRSP("k")); err != nil {
		t.Fatal(err)
	}

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := <-done; err != nil {
		t.Fatalf("HandleConn returned error: %v", err)
	}

	if !seeded {
		t.Fatal("expected Seed hook to run")
	}
}
