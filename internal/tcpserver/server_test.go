package tcpserver

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/konikvranik/cecbridge/internal/adapter"
	"github.com/konikvranik/cecbridge/internal/frame"
	"github.com/konikvranik/cecbridge/internal/hdmi"
)

type fakeAdapter struct {
	mu        sync.Mutex
	present   map[frame.LogicalAddress]bool
	inbound   adapter.InboundFunc
	transmits []frame.Frame
}

func (a *fakeAdapter) Init(ctx context.Context) error { return nil }
func (a *fakeAdapter) Poll(ctx context.Context, addr frame.LogicalAddress) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.present[addr], nil
}
func (a *fakeAdapter) Transmit(ctx context.Context, f frame.Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transmits = append(a.transmits, f)
	return nil
}
func (a *fakeAdapter) StandbyAll(ctx context.Context) error { return nil }
func (a *fakeAdapter) PowerOnAll(ctx context.Context) error { return nil }
func (a *fakeAdapter) LogicalAddress() frame.LogicalAddress { return 0xF }
func (a *fakeAdapter) Shutdown(ctx context.Context) error   { return nil }
func (a *fakeAdapter) SetInboundCallback(fn adapter.InboundFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inbound = fn
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

func startServer(t *testing.T) (*Server, *fakeAdapter, func()) {
	t.Helper()
	fa := &fakeAdapter{present: map[frame.LogicalAddress]bool{4: true, 9: false}}

	var srv *Server
	n := hdmi.New(fa, time.Hour, time.Hour, hdmi.Sinks{OnCommand: func(f frame.Frame) {
		srv.Broadcast(f)
	}})
	srv = New(n)

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(ctx, conn)
		}
	}()

	return srv, fa, func() {
		cancel()
		ln.Close()
	}
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestSuccessfulPoll(t *testing.T) {
	srv, _, stop := startServer(t)
	defer stop()

	conn := dial(t, srv.listener.Addr().String())
	defer conn.Close()

	if _, err := conn.Write([]byte("14\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if strings.TrimSpace(line) != "f4" {
		t.Fatalf("reply = %q, want %q", strings.TrimSpace(line), "f4")
	}
}

func TestFailedPollWritesNothing(t *testing.T) {
	srv, _, stop := startServer(t)
	defer stop()

	conn := dial(t, srv.listener.Addr().String())
	defer conn.Close()

	if _, err := conn.Write([]byte("19\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if n != 0 {
		t.Fatalf("expected no reply bytes, got %q", buf[:n])
	}
	if err == nil {
		t.Fatalf("expected a read timeout, got data")
	}
}

func TestInjectDoesNotTriggerPollReply(t *testing.T) {
	srv, fa, stop := startServer(t)
	defer stop()

	conn := dial(t, srv.listener.Addr().String())
	defer conn.Close()

	if _, err := conn.Write([]byte("1f:90:02\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	fa.mu.Lock()
	n := len(fa.transmits)
	fa.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly 1 transmit from inject, got %d", n)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 16)
	if got, _ := conn.Read(buf); got != 0 {
		t.Fatalf("expected no reply to an inject, got %q", buf[:got])
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	srv, _, stop := startServer(t)
	defer stop()

	conn1 := dial(t, srv.listener.Addr().String())
	defer conn1.Close()
	conn2 := dial(t, srv.listener.Addr().String())
	defer conn2.Close()

	time.Sleep(50 * time.Millisecond) // let both connections register

	f, _ := frame.Parse("0f:90:02")
	srv.Broadcast(f)

	for _, conn := range []net.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		reader := bufio.NewReader(conn)
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read broadcast: %v", err)
		}
		if strings.TrimSpace(line) != "0f:90:02" {
			t.Fatalf("broadcast = %q, want %q", strings.TrimSpace(line), "0f:90:02")
		}
	}
}
